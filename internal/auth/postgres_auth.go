package auth

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/querybridge/querybridge/internal/ttlcache"
)

// WorkspaceStore abstracts DB queries for testability.
type WorkspaceStore interface {
	LookupByPrefix(ctx context.Context, prefix string) (*workspaceRow, error)
}

type workspaceRow struct {
	WorkspaceID string
	APIKeyHash  string
	Role        string
	FailOpen    bool
}

// sqlWorkspaceStore is the real implementation using *sql.DB.
type sqlWorkspaceStore struct {
	db *sql.DB
}

func (s *sqlWorkspaceStore) LookupByPrefix(ctx context.Context, prefix string) (*workspaceRow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, api_key_hash, role, fail_open
		FROM workspaces
		WHERE api_key_prefix = $1
	`, prefix)

	var r workspaceRow
	if err := row.Scan(&r.WorkspaceID, &r.APIKeyHash, &r.Role, &r.FailOpen); err != nil {
		return nil, err
	}
	return &r, nil
}

// PostgresAuthenticator validates API keys against the workspaces table.
type PostgresAuthenticator struct {
	store    WorkspaceStore
	cache    *ttlcache.Cache[*WorkspaceContext]
	logger   *zap.Logger
	failOpen bool
}

// PostgresAuthConfig configures the PostgresAuthenticator.
type PostgresAuthConfig struct {
	DB       *sql.DB
	CacheTTL time.Duration
	FailOpen bool
	Logger   *zap.Logger
}

// NewPostgresAuthenticator creates a new PostgresAuthenticator.
func NewPostgresAuthenticator(cfg PostgresAuthConfig) *PostgresAuthenticator {
	ttl := cfg.CacheTTL
	if ttl == 0 {
		ttl = 30 * time.Second
	}
	return &PostgresAuthenticator{
		store:    &sqlWorkspaceStore{db: cfg.DB},
		cache:    ttlcache.New[*WorkspaceContext](ttl),
		logger:   cfg.Logger,
		failOpen: cfg.FailOpen,
	}
}

// NewPostgresAuthenticatorWithStore creates an authenticator with a custom store (for testing).
func NewPostgresAuthenticatorWithStore(store WorkspaceStore, cacheTTL time.Duration, failOpen bool, logger *zap.Logger) *PostgresAuthenticator {
	if cacheTTL == 0 {
		cacheTTL = 30 * time.Second
	}
	return &PostgresAuthenticator{
		store:    store,
		cache:    ttlcache.New[*WorkspaceContext](cacheTTL),
		logger:   logger,
		failOpen: failOpen,
	}
}

func (a *PostgresAuthenticator) Authenticate(ctx context.Context, token string) (*WorkspaceContext, error) {
	// Check cache
	cacheResult := a.cache.Get(token)
	if cacheResult.Hit {
		if cacheResult.NeedsRefresh {
			go a.refreshInBackground(token)
		}
		return cacheResult.Value, nil
	}

	// Cache miss — authenticate synchronously
	workspace, err := a.authenticateFromDB(ctx, token)
	if err != nil {
		if a.failOpen {
			a.logger.Warn("auth failed, degrading to fail-open",
				zap.Error(err),
			)
			return &WorkspaceContext{
				WorkspaceID: "unknown",
				Role:        "operator",
				FailOpen:    true,
			}, nil
		}
		return nil, fmt.Errorf("Authenticate: %w", err)
	}

	a.cache.Set(token, workspace)
	return workspace, nil
}

func (a *PostgresAuthenticator) authenticateFromDB(ctx context.Context, token string) (*WorkspaceContext, error) {
	if len(token) < 8 {
		return nil, ErrUnauthenticated
	}
	prefix := token[:8]

	row, err := a.store.LookupByPrefix(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("authenticateFromDB: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(row.APIKeyHash), []byte(token)); err != nil {
		return nil, ErrUnauthenticated
	}

	return &WorkspaceContext{
		WorkspaceID: row.WorkspaceID,
		Role:        row.Role,
		FailOpen:    row.FailOpen,
	}, nil
}

func (a *PostgresAuthenticator) refreshInBackground(token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	workspace, err := a.authenticateFromDB(ctx, token)
	if err != nil {
		a.logger.Warn("background auth refresh failed", zap.Error(err))
		return
	}
	a.cache.Set(token, workspace)
}
