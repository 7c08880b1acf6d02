package gitlab_test

import (
	"context"
	"errors"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/skaphos/gitlab-sync/internal/gitlab"
	"github.com/skaphos/gitlab-sync/internal/model"
)

type listerStub struct {
	group    gitlab.Group
	projects []gitlab.Project
	groupErr error
	listErr  error

	requestedGroup string
	subgroups      bool
}

func (l *listerStub) Group(_ context.Context, idOrPath string) (gitlab.Group, error) {
	l.requestedGroup = idOrPath
	return l.group, l.groupErr
}

func (l *listerStub) GroupProjects(_ context.Context, _ gitlab.Group, includeSubgroups bool) ([]gitlab.Project, error) {
	l.subgroups = includeSubgroups
	return l.projects, l.listErr
}

var _ = Describe("Source", func() {
	var stub *listerStub

	BeforeEach(func() {
		stub = &listerStub{
			group: gitlab.Group{ID: 42, FullPath: "acme"},
			projects: []gitlab.Project{
				{Name: "API", Path: "api", PathWithNamespace: "acme/api", DefaultBranch: "main", SSHURLToRepo: "git@gl:acme/api.git", HTTPURLToRepo: "https://gl/acme/api.git"},
				{Name: "Infra", Path: "infra", PathWithNamespace: "acme/ops/infra", DefaultBranch: "master", Archived: true},
				{Name: "Scratch", Path: "scratch", PathWithNamespace: "acme/sandbox/scratch"},
			},
		}
	})

	It("maps projects to flat local paths in listing order", func() {
		src := gitlab.Source{Client: stub, Group: "acme", Root: "/srv/git", Layout: gitlab.LayoutFlat, IncludeSubgroups: true}
		projects, err := src.Projects(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(stub.requestedGroup).To(Equal("acme"))
		Expect(stub.subgroups).To(BeTrue())
		Expect(projects).To(HaveLen(3))
		Expect(projects[0]).To(Equal(model.Project{
			Name:          "API",
			Path:          "acme/api",
			LocalPath:     filepath.Join("/srv/git", "api"),
			DefaultBranch: "main",
			SSHURL:        "git@gl:acme/api.git",
			HTTPURL:       "https://gl/acme/api.git",
		}))
		Expect(projects[1].LocalPath).To(Equal(filepath.Join("/srv/git", "infra")))
		Expect(projects[1].Archived).To(BeTrue())
	})

	It("mirrors the namespace below the group", func() {
		src := gitlab.Source{Client: stub, Group: "acme", Root: "/srv/git", Layout: gitlab.LayoutNamespace}
		projects, err := src.Projects(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(projects[1].LocalPath).To(Equal(filepath.Join("/srv/git", "ops", "infra")))
		Expect(projects[2].LocalPath).To(Equal(filepath.Join("/srv/git", "sandbox", "scratch")))
	})

	It("defaults the root to the working directory", func() {
		projects, err := gitlab.Source{Client: stub, Group: "acme"}.Projects(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(projects[0].LocalPath).To(Equal("api"))
	})

	It("drops projects matching an exclude pattern", func() {
		src := gitlab.Source{Client: stub, Group: "acme", Exclude: []string{"acme/sandbox/**", "*/api"}}
		projects, err := src.Projects(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(projects).To(HaveLen(1))
		Expect(projects[0].Name).To(Equal("Infra"))
	})

	It("wraps lookup and listing errors", func() {
		stub.groupErr = gitlab.ErrNotFound
		_, err := gitlab.Source{Client: stub, Group: "missing"}.Projects(context.Background())
		Expect(errors.Is(err, gitlab.ErrNotFound)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("lookup group missing"))

		stub.groupErr = nil
		stub.listErr = gitlab.ErrUnauthorized
		_, err = gitlab.Source{Client: stub, Group: "acme"}.Projects(context.Background())
		Expect(errors.Is(err, gitlab.ErrUnauthorized)).To(BeTrue())
	})
})
