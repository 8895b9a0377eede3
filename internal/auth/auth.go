package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// Authenticator validates API keys and returns a WorkspaceContext.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*WorkspaceContext, error)
}

// WorkspaceContext holds the authenticated workspace's identity and configuration.
type WorkspaceContext struct {
	WorkspaceID string
	Role        string // "admin" or "operator"
	FailOpen    bool
}

// ErrUnauthenticated is returned when no valid credentials are found.
var ErrUnauthenticated = errors.New("unauthenticated")

// ExtractBearerToken extracts a qbk_ API key from the request's
// Authorization header.
func ExtractBearerToken(r *http.Request) (string, error) {
	token := r.Header.Get("Authorization")
	if token == "" {
		return "", ErrUnauthenticated
	}
	token = strings.TrimPrefix(token, "Bearer ")
	token = strings.TrimPrefix(token, "bearer ")
	if !strings.HasPrefix(token, "qbk_") {
		return "", ErrUnauthenticated
	}
	return token, nil
}
