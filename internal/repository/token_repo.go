package repository

import (
	"context"

	"github.com/user/medcrawl/internal/entity"
)

// TokenRepository persists access credentials keyed by source. It must be
// safe for concurrent readers; writes are serialized by the token manager
// (one refresh in flight per source).
type TokenRepository interface {
	// Get returns the stored credential for a source, or nil if absent.
	// Expired credentials are treated as absent.
	Get(ctx context.Context, source string) (*entity.Credential, error)
	// Put stores or replaces the credential for its source.
	Put(ctx context.Context, cred *entity.Credential) error
	// Invalidate drops the credential for a source, typically after the
	// source rejected it.
	Invalidate(ctx context.Context, source string) error
}
