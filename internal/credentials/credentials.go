// Package credentials resolves the GitLab API token.
package credentials

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	// EnvToken is the environment variable checked first.
	EnvToken = "GITLAB_TOKEN"
	// KeyringService is the OS credential store service name.
	KeyringService = "gitlab-sync"
)

// ErrMissingToken is returned when no source yields a token.
var ErrMissingToken = errors.New("no GitLab token configured")

// Source names where a token came from.
type Source string

const (
	SourceEnv     Source = "env"
	SourceConfig  Source = "config"
	SourceKeyring Source = "keyring"
)

// Token is a resolved API token.
type Token struct {
	Value  string
	Source Source
}

// Options describes the token sources to consult.
type Options struct {
	// GitLabURL identifies the keyring entry by host.
	GitLabURL string
	// ConfigToken is the token from the config file, if any.
	ConfigToken string
	// UseKeyring enables the OS keyring lookup.
	UseKeyring bool
	// LookupEnv defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// Resolve returns the first token found in the environment, the config file
// or the OS keyring, in that order.
func Resolve(opts Options) (Token, error) {
	lookup := opts.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if v, ok := lookup(EnvToken); ok && strings.TrimSpace(v) != "" {
		return Token{Value: strings.TrimSpace(v), Source: SourceEnv}, nil
	}
	if v := strings.TrimSpace(opts.ConfigToken); v != "" {
		return Token{Value: v, Source: SourceConfig}, nil
	}
	if opts.UseKeyring {
		v, err := keyring.Get(KeyringService, Host(opts.GitLabURL))
		switch {
		case err == nil && strings.TrimSpace(v) != "":
			return Token{Value: strings.TrimSpace(v), Source: SourceKeyring}, nil
		case err != nil && !errors.Is(err, keyring.ErrNotFound):
			return Token{}, fmt.Errorf("failed to retrieve token from credential store: %w", err)
		}
	}
	return Token{}, ErrMissingToken
}

// Store saves token in the OS keyring for the GitLab host.
func Store(gitlabURL, token string) error {
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("token cannot be empty")
	}
	if err := keyring.Set(KeyringService, Host(gitlabURL), token); err != nil {
		return fmt.Errorf("failed to store token in credential store: %w", err)
	}
	return nil
}

// Host returns the keyring user for a GitLab URL.
func Host(gitlabURL string) string {
	u, err := url.Parse(gitlabURL)
	if err != nil || u.Host == "" {
		return strings.TrimSpace(gitlabURL)
	}
	return strings.ToLower(u.Host)
}
