// Package model defines the core data types used throughout gitlab-sync.
package model

// DefaultRemoteName is the canonical remote every mirrored clone carries.
const DefaultRemoteName = "gitlab"

// Project is one repository listed by the forge for the configured group.
// Values are immutable for the duration of a run.
type Project struct {
	// Name is the human-readable project name.
	Name string `json:"name" yaml:"name"`
	// Path is the namespaced project path (for example, "group/sub/app").
	Path string `json:"path" yaml:"path"`
	// LocalPath is the directory the working copy lives in.
	LocalPath string `json:"local_path" yaml:"local_path"`
	// DefaultBranch is the branch kept in sync with the canonical remote.
	DefaultBranch string `json:"default_branch" yaml:"default_branch"`
	// Archived reports whether the project is read-only upstream.
	Archived bool `json:"archived" yaml:"archived"`
	// SSHURL is the ssh clone URL.
	SSHURL string `json:"ssh_url" yaml:"ssh_url"`
	// HTTPURL is the http(s) clone URL.
	HTTPURL string `json:"http_url" yaml:"http_url"`
}

// Transport selects which clone URL a project resolves to.
type Transport string

const (
	TransportSSH   Transport = "ssh"
	TransportHTTP  Transport = "http"
	TransportHTTPS Transport = "https"
)

// RemoteSpec names the canonical remote and the URL it points at.
type RemoteSpec struct {
	Name string `json:"name" yaml:"name"`
	URL  string `json:"url" yaml:"url"`
}

// RepoState is the prober's classification of a local path.
type RepoState struct {
	// Path is the probed directory.
	Path string `json:"path" yaml:"path"`
	// Absent is true when the path does not exist as a directory.
	Absent bool `json:"absent" yaml:"absent"`
	// MissingRemote is true when the canonical remote is not configured.
	MissingRemote bool `json:"missing_remote" yaml:"missing_remote"`
	// RemoteURL is the canonical remote's first URL when configured.
	RemoteURL string `json:"remote_url,omitempty" yaml:"remote_url,omitempty"`
	// Dirty reports uncommitted modifications, untracked files included.
	Dirty bool `json:"dirty" yaml:"dirty"`
	// Empty reports a repository with zero refs.
	Empty bool `json:"empty" yaml:"empty"`
}

// Mode selects what the batch driver does with each project.
type Mode string

const (
	// ModeSync clones absent projects and pulls then pushes present ones.
	ModeSync Mode = "sync"
	// ModePull pulls present projects only.
	ModePull Mode = "pull"
	// ModePush pulls then pushes present projects only.
	ModePush Mode = "push"
)

// Head represents the current HEAD state of a repo.
type Head struct {
	// Branch is the current branch name when HEAD is attached.
	Branch string `json:"branch" yaml:"branch"`
	// Detached reports whether HEAD is detached.
	Detached bool `json:"detached" yaml:"detached"`
	// Unborn reports a branch with no commits yet.
	Unborn bool `json:"unborn" yaml:"unborn"`
}

// RefChange is one remote-tracking ref moved by a fetch.
type RefChange struct {
	Ref string `json:"ref" yaml:"ref"`
	Old string `json:"old,omitempty" yaml:"old,omitempty"`
	New string `json:"new,omitempty" yaml:"new,omitempty"`
	// Note is one of "new", "updated" or "deleted".
	Note string `json:"note" yaml:"note"`
}

// RefUpdate is one ref reported by `git push --porcelain`.
type RefUpdate struct {
	// Flag is the porcelain flag character (" ", "+", "-", "*", "!", "=").
	Flag string `json:"flag" yaml:"flag"`
	// Local is the source ref.
	Local string `json:"local" yaml:"local"`
	// Remote is the destination ref on the remote.
	Remote string `json:"remote" yaml:"remote"`
	// Summary is git's summary (for example "abc123..def456" or "[new branch]").
	Summary string `json:"summary" yaml:"summary"`
}

// Rejected reports whether the remote refused the update.
func (u RefUpdate) Rejected() bool { return u.Flag == "!" }
