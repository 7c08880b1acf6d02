package gitlab_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/skaphos/gitlab-sync/internal/gitlab"
)

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	Expect(json.NewEncoder(w).Encode(v)).To(Succeed())
}

var _ = Describe("Client", func() {
	var (
		ctx    context.Context
		mux    *http.ServeMux
		server *httptest.Server
		hits   atomic.Int32
		client *gitlab.Client
	)

	BeforeEach(func() {
		ctx = context.Background()
		hits.Store(0)
		mux = http.NewServeMux()
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			if r.Header.Get("PRIVATE-TOKEN") != "secret" {
				http.Error(w, `{"message":"401 Unauthorized"}`, http.StatusUnauthorized)
				return
			}
			mux.ServeHTTP(w, r)
		}))
		DeferCleanup(server.Close)
		client = gitlab.NewClient(server.URL+"/", "secret", server.Client(), nil)
	})

	It("returns the current user", func() {
		mux.HandleFunc("/api/v4/user", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, map[string]any{"id": 7, "username": "jdoe", "name": "Jo Doe"})
		})

		user, err := client.CurrentUser(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(user).To(Equal(gitlab.User{ID: 7, Username: "jdoe", Name: "Jo Doe"}))
	})

	It("maps rejected tokens to ErrUnauthorized", func() {
		client = gitlab.NewClient(server.URL, "wrong", server.Client(), nil)
		_, err := client.CurrentUser(ctx)
		Expect(errors.Is(err, gitlab.ErrUnauthorized)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("/api/v4/user"))
	})

	It("escapes group paths and maps 404 to ErrNotFound", func() {
		var requested string
		mux.HandleFunc("/api/v4/groups/", func(w http.ResponseWriter, r *http.Request) {
			requested = r.URL.EscapedPath()
			http.NotFound(w, r)
		})

		_, err := client.Group(ctx, "acme/platform")
		Expect(errors.Is(err, gitlab.ErrNotFound)).To(BeTrue())
		Expect(requested).To(Equal("/api/v4/groups/acme%2Fplatform"))
	})

	It("reports unreachable servers as ErrConnection", func() {
		server.Close()
		_, err := client.CurrentUser(ctx)
		Expect(errors.Is(err, gitlab.ErrConnection)).To(BeTrue())
	})

	It("reports other statuses with the request URL", func() {
		mux.HandleFunc("/api/v4/user", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})
		_, err := client.CurrentUser(ctx)
		Expect(err).To(MatchError(ContainSubstring("failed with status: 502")))
	})

	It("follows X-Next-Page and preserves listing order", func() {
		var queries []string
		mux.HandleFunc("/api/v4/groups/42/projects", func(w http.ResponseWriter, r *http.Request) {
			queries = append(queries, r.URL.RawQuery)
			page := r.URL.Query().Get("page")
			switch page {
			case "1":
				w.Header().Set("X-Next-Page", "2")
				writeJSON(w, []map[string]any{{"id": 1, "name": "one"}, {"id": 2, "name": "two"}})
			case "2":
				w.Header().Set("X-Next-Page", "")
				writeJSON(w, []map[string]any{{"id": 3, "name": "three"}})
			default:
				http.Error(w, fmt.Sprintf("unexpected page %q", page), http.StatusBadRequest)
			}
		})

		projects, err := client.GroupProjects(ctx, gitlab.Group{ID: 42}, true)
		Expect(err).NotTo(HaveOccurred())
		Expect(projects).To(HaveLen(3))
		Expect([]string{projects[0].Name, projects[1].Name, projects[2].Name}).To(Equal([]string{"one", "two", "three"}))
		Expect(queries).To(Equal([]string{
			"include_subgroups=true&page=1&per_page=100",
			"include_subgroups=true&page=2&per_page=100",
		}))
		Expect(hits.Load()).To(BeEquivalentTo(2))
	})

	It("decodes project fields", func() {
		mux.HandleFunc("/api/v4/groups/42/projects", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, []map[string]any{{
				"id":                  9,
				"name":                "App",
				"path":                "app",
				"path_with_namespace": "acme/app",
				"default_branch":      "main",
				"archived":            true,
				"ssh_url_to_repo":     "git@gitlab.example.com:acme/app.git",
				"http_url_to_repo":    "https://gitlab.example.com/acme/app.git",
				"namespace":           map[string]any{"id": 42, "full_path": "acme"},
			}})
		})

		projects, err := client.GroupProjects(ctx, gitlab.Group{ID: 42}, false)
		Expect(err).NotTo(HaveOccurred())
		Expect(projects).To(ConsistOf(gitlab.Project{
			ID:                9,
			Name:              "App",
			Path:              "app",
			PathWithNamespace: "acme/app",
			DefaultBranch:     "main",
			Archived:          true,
			SSHURLToRepo:      "git@gitlab.example.com:acme/app.git",
			HTTPURLToRepo:     "https://gitlab.example.com/acme/app.git",
			Namespace:         gitlab.Namespace{ID: 42, FullPath: "acme"},
		}))
	})
})
