// Package gitlab talks to the GitLab REST API and turns a group's projects
// into the project list the sync engine works through.
package gitlab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

var (
	// ErrUnauthorized is returned for 401 and 403 responses.
	ErrUnauthorized = errors.New("gitlab: unauthorized")
	// ErrNotFound is returned for 404 responses.
	ErrNotFound = errors.New("gitlab: not found")
	// ErrConnection is returned when the server cannot be reached.
	ErrConnection = errors.New("gitlab: connection failed")
)

const projectsPerPage = 100

// User is the authenticated account.
type User struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

// Group is a GitLab group or subgroup.
type Group struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Path     string `json:"path"`
	FullPath string `json:"full_path"`
}

// Namespace is the owner of a project.
type Namespace struct {
	ID       int    `json:"id"`
	FullPath string `json:"full_path"`
}

// Project is one entry of a group project listing.
type Project struct {
	ID                int       `json:"id"`
	Name              string    `json:"name"`
	Path              string    `json:"path"`
	PathWithNamespace string    `json:"path_with_namespace"`
	DefaultBranch     string    `json:"default_branch"`
	Archived          bool      `json:"archived"`
	SSHURLToRepo      string    `json:"ssh_url_to_repo"`
	HTTPURLToRepo     string    `json:"http_url_to_repo"`
	Namespace         Namespace `json:"namespace"`
}

// Client is a minimal GitLab v4 API client.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     logrus.FieldLogger
}

// NewClient creates a Client for the GitLab instance at baseURL. A nil
// httpClient uses http.DefaultClient.
func NewClient(baseURL, token string, httpClient *http.Client, log logrus.FieldLogger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/") + "/api/v4",
		token:   token,
		http:    httpClient,
		log:     log,
	}
}

// CurrentUser returns the account the token belongs to.
func (c *Client) CurrentUser(ctx context.Context) (User, error) {
	user, _, err := get[User](ctx, c, "/user")
	return user, err
}

// Group looks up a group by numeric id or full path.
func (c *Client) Group(ctx context.Context, idOrPath string) (Group, error) {
	group, _, err := get[Group](ctx, c, "/groups/"+url.PathEscape(idOrPath))
	return group, err
}

// GroupProjects lists every project of a group, following pagination.
func (c *Client) GroupProjects(ctx context.Context, group Group, includeSubgroups bool) ([]Project, error) {
	var all []Project
	page := "1"
	for page != "" {
		query := url.Values{}
		query.Set("per_page", strconv.Itoa(projectsPerPage))
		query.Set("page", page)
		query.Set("include_subgroups", strconv.FormatBool(includeSubgroups))
		path := fmt.Sprintf("/groups/%d/projects?%s", group.ID, query.Encode())

		projects, header, err := get[[]Project](ctx, c, path)
		if err != nil {
			return nil, err
		}
		all = append(all, projects...)
		page = strings.TrimSpace(header.Get("X-Next-Page"))
	}
	return all, nil
}

func get[T any](ctx context.Context, c *Client, path string) (T, http.Header, error) {
	var emptyResult T
	endpoint := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return emptyResult, nil, err
	}
	req.Header.Set("PRIVATE-TOKEN", c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return emptyResult, nil, fmt.Errorf("%w: GET %s: %w", ErrConnection, endpoint, err)
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			c.log.Errorf("failed to close response body: %v", err)
		}
	}(resp.Body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return emptyResult, nil, fmt.Errorf("%w: GET %s: %s", ErrUnauthorized, endpoint, resp.Status)
	case resp.StatusCode == http.StatusNotFound:
		return emptyResult, nil, fmt.Errorf("%w: GET %s: %s", ErrNotFound, endpoint, resp.Status)
	case resp.StatusCode != http.StatusOK:
		return emptyResult, nil, fmt.Errorf("GitLab API request on %s failed with status: %s", endpoint, resp.Status)
	}

	var decoded T
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return emptyResult, nil, fmt.Errorf("decode %s: %w", endpoint, err)
	}
	return decoded, resp.Header, nil
}
