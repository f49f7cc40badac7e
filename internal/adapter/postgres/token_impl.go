package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/user/medcrawl/internal/entity"
	"github.com/user/medcrawl/internal/repository"
)

// TokenRepoImpl persists credentials in the `credentials` table, one row
// per source.
type TokenRepoImpl struct {
	db *pgxpool.Pool
}

// NewTokenRepo creates a new instance of TokenRepoImpl.
func NewTokenRepo(db *pgxpool.Pool) *TokenRepoImpl {
	return &TokenRepoImpl{db: db}
}

// Get returns the credential for a source, or nil when absent or already
// expired. Expired rows are filtered in SQL so clock handling stays in one
// place.
func (r *TokenRepoImpl) Get(ctx context.Context, source string) (*entity.Credential, error) {
	query := `
		SELECT source, token, issued_at, expires_at, expiry_known
		FROM credentials
		WHERE source = $1 AND (NOT expiry_known OR expires_at > NOW());
	`
	row := r.db.QueryRow(ctx, query, source)

	var cred entity.Credential
	err := row.Scan(&cred.Source, &cred.Token, &cred.IssuedAt, &cred.ExpiresAt, &cred.ExpiryKnown)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading credential for %s: %v", repository.ErrStorageUnavailable, source, err)
	}
	return &cred, nil
}

// Put stores or replaces the credential for its source.
func (r *TokenRepoImpl) Put(ctx context.Context, cred *entity.Credential) error {
	query := `
		INSERT INTO credentials (source, token, issued_at, expires_at, expiry_known)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (source) DO UPDATE SET
			token = EXCLUDED.token,
			issued_at = EXCLUDED.issued_at,
			expires_at = EXCLUDED.expires_at,
			expiry_known = EXCLUDED.expiry_known;
	`
	_, err := r.db.Exec(ctx, query,
		cred.Source,
		cred.Token,
		cred.IssuedAt,
		cred.ExpiresAt,
		cred.ExpiryKnown,
	)
	if err != nil {
		return fmt.Errorf("%w: storing credential for %s: %v", repository.ErrStorageUnavailable, cred.Source, err)
	}
	return nil
}

// Invalidate drops the credential for a source.
func (r *TokenRepoImpl) Invalidate(ctx context.Context, source string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM credentials WHERE source = $1;`, source)
	if err != nil {
		return fmt.Errorf("%w: invalidating credential for %s: %v", repository.ErrStorageUnavailable, source, err)
	}
	return nil
}
