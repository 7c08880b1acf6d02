// Package endpoint resolves the canonical remote for a project.
package endpoint

import (
	"strings"

	"github.com/skaphos/gitlab-sync/internal/model"
)

// HTTPAdvisory is emitted when a project resolves to its http(s) URL.
const HTTPAdvisory = "Using ssh-key authentication is recommended to avoid entering your password for each repository and request"

// Resolution is the remote a project should carry plus an optional advisory.
type Resolution struct {
	Spec     model.RemoteSpec
	Advisory string
}

// Resolve picks the clone URL for transport. Only "ssh" selects the ssh URL;
// every other preference falls back to http(s) with an advisory.
func Resolve(project model.Project, transport model.Transport, remoteName string) Resolution {
	name := strings.TrimSpace(remoteName)
	if name == "" {
		name = model.DefaultRemoteName
	}
	if strings.EqualFold(strings.TrimSpace(string(transport)), string(model.TransportSSH)) {
		return Resolution{Spec: model.RemoteSpec{Name: name, URL: project.SSHURL}}
	}
	return Resolution{
		Spec:     model.RemoteSpec{Name: name, URL: project.HTTPURL},
		Advisory: HTTPAdvisory,
	}
}
