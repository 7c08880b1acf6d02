// SPDX-License-Identifier: MIT
package gitx

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrAuthFailure marks authentication/authorization failures.
	ErrAuthFailure = errors.New("git auth error")
	// ErrNetworkFailure marks network/transport failures.
	ErrNetworkFailure = errors.New("git network error")
	// ErrCorruptRepo marks corrupt or invalid-repository failures.
	ErrCorruptRepo = errors.New("git corrupt repository")
	// ErrMissingRemoteRef marks missing upstream/ref/remote failures.
	ErrMissingRemoteRef = errors.New("git missing remote")
	// ErrMergeConflict marks merges that stopped on conflicts.
	ErrMergeConflict = errors.New("git merge conflict")
)

// Error classes reported by ClassifyError.
const (
	ClassTimeout       = "timeout"
	ClassAuth          = "auth"
	ClassNetwork       = "network"
	ClassCorrupt       = "corrupt"
	ClassMissingRemote = "missing_remote"
	ClassConflict      = "conflict"
	ClassRejected      = "rejected"
	ClassUnknown       = "unknown"
)

// ClassifyError maps git/process errors into broad actionable categories.
func ClassifyError(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ClassTimeout
	}
	if errors.Is(err, ErrAuthFailure) {
		return ClassAuth
	}
	if errors.Is(err, ErrNetworkFailure) {
		return ClassNetwork
	}
	if errors.Is(err, ErrCorruptRepo) {
		return ClassCorrupt
	}
	if errors.Is(err, ErrMissingRemoteRef) {
		return ClassMissingRemote
	}
	if errors.Is(err, ErrMergeConflict) {
		return ClassConflict
	}

	msg := strings.ToLower(err.Error())
	// Heuristics are intentionally broad to keep categories actionable for users.
	switch {
	case containsAny(msg, "permission denied", "authentication failed", "access denied", "publickey", "could not read username", "credential", "http basic: access denied"):
		return ClassAuth
	case containsAny(msg, "could not resolve host", "network is unreachable", "connection timed out", "connection refused", "failed to connect", "temporary failure in name resolution", "tls handshake timeout"):
		return ClassNetwork
	case containsAny(msg, "timeout", "timed out", "deadline exceeded"):
		return ClassTimeout
	case containsAny(msg, "[rejected]", "non-fast-forward", "failed to push some refs", "[remote rejected]"):
		return ClassRejected
	case containsAny(msg, "not a git repository", "bad object", "corrupt", "object file"):
		return ClassCorrupt
	case containsAny(msg, "repository not found", "does not appear to be a git repository", "couldn't find remote ref", "remote ref does not exist", "no such remote"):
		return ClassMissingRemote
	case containsAny(msg, "conflict", "automatic merge failed"):
		return ClassConflict
	default:
		return ClassUnknown
	}
}

func containsAny(msg string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}
