package repository

import (
	"context"

	"github.com/user/medcrawl/internal/entity"
)

// ChallengeSolver obtains a solved captcha answer for the board portal.
// The chromedp implementation blocks until a human completes the challenge
// or the context deadline fires; a timeout counts as a failed attempt.
type ChallengeSolver interface {
	Solve(ctx context.Context) (string, error)
}

// TokenVerifier submits a captcha solution to the source's verification
// endpoint. A nil return means the source accepted the token.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) error
}

// LoginGateway performs a credentialed login against a source and returns
// the resulting session credential.
type LoginGateway interface {
	Login(ctx context.Context) (*entity.Credential, error)
}
