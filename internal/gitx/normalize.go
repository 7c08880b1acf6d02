package gitx

import (
	"net/url"
	"strings"
)

// NormalizeURL reduces a GitLab remote URL to host/path so that the ssh and
// http clone URLs of one project compare equal. The host is lowercased; the
// user, port, trailing slash and ".git" suffix are dropped. Anything that is
// neither a URL nor scp-like (a local path) is returned with only the suffix
// trimmed.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	var host, path string
	if u, err := url.Parse(raw); err == nil && u.Scheme != "" && u.Host != "" {
		host, path = u.Hostname(), u.Path
	} else if authority, rest, ok := strings.Cut(raw, ":"); ok && !strings.Contains(authority, "/") {
		// scp-like git@host:group/project.git
		host, path = authority[strings.LastIndex(authority, "@")+1:], rest
	} else {
		return trimRepoSuffix(raw)
	}
	return strings.ToLower(host) + "/" + trimRepoSuffix(strings.TrimLeft(path, "/"))
}

func trimRepoSuffix(path string) string {
	return strings.TrimSuffix(strings.TrimRight(path, "/"), ".git")
}

// SameRepository reports whether two remote URLs address the same
// repository, ignoring transport and credentials.
func SameRepository(a, b string) bool {
	return NormalizeURL(a) == NormalizeURL(b)
}
