package gitlab

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/skaphos/gitlab-sync/internal/model"
)

// Layout controls where projects land under the sync root.
type Layout string

const (
	// LayoutFlat places every project at <root>/<project path>.
	LayoutFlat Layout = "flat"
	// LayoutNamespace mirrors the namespace below the configured group.
	LayoutNamespace Layout = "namespace"
)

// Lister is the subset of Client a Source needs.
type Lister interface {
	Group(ctx context.Context, idOrPath string) (Group, error)
	GroupProjects(ctx context.Context, group Group, includeSubgroups bool) ([]Project, error)
}

// Source lists the projects of one group as sync targets.
type Source struct {
	Client           Lister
	Group            string
	Root             string
	Layout           Layout
	Exclude          []string
	IncludeSubgroups bool
	Log              logrus.FieldLogger
}

// Projects returns the group's projects in listing order, mapped to local
// paths and filtered by the exclude patterns.
func (s Source) Projects(ctx context.Context) ([]model.Project, error) {
	log := s.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	group, err := s.Client.Group(ctx, s.Group)
	if err != nil {
		return nil, fmt.Errorf("lookup group %s: %w", s.Group, err)
	}
	listed, err := s.Client.GroupProjects(ctx, group, s.IncludeSubgroups)
	if err != nil {
		return nil, fmt.Errorf("list projects of %s: %w", group.FullPath, err)
	}

	kept := lo.Filter(listed, func(p Project, _ int) bool {
		if pattern, ok := s.excludedBy(p.PathWithNamespace); ok {
			log.Debugf("excluding %s (matches %s)", p.PathWithNamespace, pattern)
			return false
		}
		return true
	})
	return lo.Map(kept, func(p Project, _ int) model.Project {
		return model.Project{
			Name:          p.Name,
			Path:          p.PathWithNamespace,
			LocalPath:     s.localPath(group, p),
			DefaultBranch: p.DefaultBranch,
			Archived:      p.Archived,
			SSHURL:        p.SSHURLToRepo,
			HTTPURL:       p.HTTPURLToRepo,
		}
	}), nil
}

func (s Source) excludedBy(fullPath string) (string, bool) {
	return lo.Find(s.Exclude, func(pattern string) bool {
		ok, err := doublestar.Match(pattern, fullPath)
		return err == nil && ok
	})
}

func (s Source) localPath(group Group, p Project) string {
	root := s.Root
	if root == "" {
		root = "."
	}
	rel := p.Path
	if s.Layout == LayoutNamespace {
		rel = strings.TrimPrefix(p.PathWithNamespace, group.FullPath+"/")
	}
	return filepath.Join(root, filepath.FromSlash(path.Clean(rel)))
}
