package auth

import (
	"context"
	"strings"
)

// StaticAuthenticator is a development-only authenticator that accepts any qbk_ key.
type StaticAuthenticator struct{}

func NewStaticAuthenticator() *StaticAuthenticator {
	return &StaticAuthenticator{}
}

func (a *StaticAuthenticator) Authenticate(_ context.Context, token string) (*WorkspaceContext, error) {
	if len(token) < 8 || !strings.HasPrefix(token, "qbk_") {
		return nil, ErrUnauthenticated
	}
	// Accept any qbk_ prefixed key with a static workspace ID
	return &WorkspaceContext{
		WorkspaceID: "static-" + token[:8],
		Role:        "admin",
		FailOpen:    true,
	}, nil
}
