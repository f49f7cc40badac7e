package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/user/medcrawl/internal/entity"
	"github.com/user/medcrawl/internal/repository"
	"github.com/user/medcrawl/pkg/backoff"
	"github.com/user/medcrawl/pkg/metrics"
	"go.uber.org/zap"
)

// TokenManager maintains one valid credential per source, refreshing
// through the source's Refresher when the stored one is absent, expired or
// rejected.
type TokenManager interface {
	// Ensure returns a valid credential, refreshing if needed. Refreshes
	// are mutually exclusive per source: concurrent callers observing an
	// expired credential wait for the in-flight refresh and share its
	// result.
	Ensure(ctx context.Context, source string) (*entity.Credential, error)
	// Invalidate reports that the source rejected the current credential.
	Invalidate(ctx context.Context, source string) error
	// BeginRun resets any per-run refresh state for the source, such as
	// the consecutive-login-failure count.
	BeginRun(source string)
}

// Refresher produces a fresh credential for one source. Implementations
// own their attempt bounds and report exhaustion as ErrAuthExhausted.
type Refresher interface {
	Refresh(ctx context.Context) (*entity.Credential, error)
}

// runScoped is implemented by refreshers that carry state bounded to a
// single run.
type runScoped interface {
	beginRun()
}

type tokenManager struct {
	repo       repository.TokenRepository
	refreshers map[string]Refresher
	logger     *zap.Logger
	now        func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewTokenManager creates a new TokenManager over the given per-source
// refreshers.
func NewTokenManager(repo repository.TokenRepository, refreshers map[string]Refresher, logger *zap.Logger) TokenManager {
	return &tokenManager{
		repo:       repo,
		refreshers: refreshers,
		logger:     logger,
		now:        time.Now,
		locks:      make(map[string]*sync.Mutex),
	}
}

func (m *tokenManager) sourceLock(source string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[source]
	if !ok {
		l = &sync.Mutex{}
		m.locks[source] = l
	}
	return l
}

func (m *tokenManager) Ensure(ctx context.Context, source string) (*entity.Credential, error) {
	cred, err := m.repo.Get(ctx, source)
	if err != nil {
		// A broken credential store means "no valid credential", not a
		// dead end: acquisition below may still succeed and Put will
		// surface persistent storage trouble.
		m.logger.Warn("credential store read failed", zap.String("source", source), zap.Error(err))
	}
	if cred.Valid(m.now()) {
		return cred, nil
	}

	lock := m.sourceLock(source)
	lock.Lock()
	defer lock.Unlock()

	// Another caller may have finished the refresh while we waited.
	cred, err = m.repo.Get(ctx, source)
	if err == nil && cred.Valid(m.now()) {
		return cred, nil
	}

	refresher, ok := m.refreshers[source]
	if !ok {
		return nil, fmt.Errorf("no refresher registered for source %q", source)
	}

	m.logger.Info("refreshing credential", zap.String("source", source))
	fresh, err := refresher.Refresh(ctx)
	if err != nil {
		metrics.TokenRefreshesTotal.WithLabelValues(source, "failure").Inc()
		return nil, fmt.Errorf("refreshing credential for %s: %w", source, err)
	}

	if err := m.repo.Put(ctx, fresh); err != nil {
		metrics.TokenRefreshesTotal.WithLabelValues(source, "failure").Inc()
		return nil, err
	}
	metrics.TokenRefreshesTotal.WithLabelValues(source, "success").Inc()

	m.logger.Info("credential refreshed",
		zap.String("source", source),
		zap.Duration("ttl", fresh.TTL(m.now())),
	)
	return fresh, nil
}

func (m *tokenManager) Invalidate(ctx context.Context, source string) error {
	m.logger.Info("invalidating credential", zap.String("source", source))
	return m.repo.Invalidate(ctx, source)
}

func (m *tokenManager) BeginRun(source string) {
	if rs, ok := m.refreshers[source].(runScoped); ok {
		rs.beginRun()
	}
}

// CaptchaRefresher acquires board credentials: obtain a solved challenge,
// submit it to the verification endpoint, wrap the accepted token in a
// credential with the configured conservative TTL.
type CaptchaRefresher struct {
	Solver      repository.ChallengeSolver
	Verifier    repository.TokenVerifier
	TTL         time.Duration
	MaxAttempts int
	Policy      backoff.Policy
	Logger      *zap.Logger

	// Overridable in tests.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

func (r *CaptchaRefresher) Refresh(ctx context.Context) (*entity.Credential, error) {
	now := r.Now
	if now == nil {
		now = time.Now
	}
	sleep := r.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var lastErr error
	for attempt := 1; attempt <= r.MaxAttempts; attempt++ {
		token, err := r.Solver.Solve(ctx)
		if err != nil {
			if !repository.Retryable(err) {
				return nil, err
			}
			lastErr = err
			r.Logger.Warn("captcha challenge failed",
				zap.Int("attempt", attempt), zap.Error(err))
			if err := sleep(ctx, r.Policy.NextDelay(attempt)); err != nil {
				return nil, err
			}
			continue
		}

		err = r.Verifier.Verify(ctx, token)
		if err == nil {
			issued := now()
			return &entity.Credential{
				Source:      entity.SourceCFM,
				Token:       token,
				IssuedAt:    issued,
				ExpiresAt:   issued.Add(r.TTL),
				ExpiryKnown: true,
			}, nil
		}

		// A rejected solution gets a fresh challenge; a transient
		// verification failure gets a backoff. Both count against the
		// same attempt bound.
		if !repository.Retryable(err) && !errors.Is(err, repository.ErrAuthExpired) {
			return nil, err
		}
		lastErr = err
		r.Logger.Warn("captcha verification failed",
			zap.Int("attempt", attempt), zap.Error(err))
		if repository.Retryable(err) {
			if err := sleep(ctx, r.Policy.NextDelay(attempt)); err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("%w: captcha not accepted after %d attempts: %v",
		repository.ErrAuthExhausted, r.MaxAttempts, lastErr)
}

// SessionRefresher acquires marketplace credentials by logging in. Two
// consecutive failures within one run are fatal: that is credential
// misconfiguration, not an upstream blip.
type SessionRefresher struct {
	Gateway repository.LoginGateway
	Logger  *zap.Logger

	mu       sync.Mutex
	failures int
}

// beginRun clears the consecutive-failure count: the two-failure rule is
// scoped to a single run, not the refresher's lifetime.
func (r *SessionRefresher) beginRun() {
	r.mu.Lock()
	r.failures = 0
	r.mu.Unlock()
}

func (r *SessionRefresher) Refresh(ctx context.Context) (*entity.Credential, error) {
	cred, err := r.Gateway.Login(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.failures++
		r.Logger.Warn("login failed", zap.Int("consecutive", r.failures), zap.Error(err))
		if r.failures >= 2 {
			return nil, fmt.Errorf("%w: login failed %d times consecutively: %v",
				repository.ErrAuthExhausted, r.failures, err)
		}
		return nil, err
	}
	r.failures = 0
	return cred, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
