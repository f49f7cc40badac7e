package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/medcrawl/internal/entity"
	"github.com/user/medcrawl/internal/repository"
	"github.com/user/medcrawl/pkg/backoff"
	"go.uber.org/zap"
)

func TestEnsureReturnsStoredCredential(t *testing.T) {
	repo := newFakeTokenRepo()
	repo.creds[entity.SourceCFM] = validCred(entity.SourceCFM)
	refresher := &fakeRefresher{}
	mgr := NewTokenManager(repo, map[string]Refresher{entity.SourceCFM: refresher}, zap.NewNop())

	cred, err := mgr.Ensure(context.Background(), entity.SourceCFM)
	require.NoError(t, err)
	assert.Equal(t, "valid-token", cred.Token)
	assert.Equal(t, 0, refresher.callCount())
}

func TestEnsureRefreshesExpiredCredential(t *testing.T) {
	repo := newFakeTokenRepo()
	repo.creds[entity.SourceCFM] = &entity.Credential{
		Source:      entity.SourceCFM,
		Token:       "stale",
		ExpiresAt:   time.Now().Add(-time.Minute),
		ExpiryKnown: true,
	}
	refresher := &fakeRefresher{cred: validCred(entity.SourceCFM)}
	mgr := NewTokenManager(repo, map[string]Refresher{entity.SourceCFM: refresher}, zap.NewNop())

	cred, err := mgr.Ensure(context.Background(), entity.SourceCFM)
	require.NoError(t, err)
	assert.Equal(t, "valid-token", cred.Token)
	assert.Equal(t, 1, refresher.callCount())
	assert.Equal(t, "valid-token", repo.creds[entity.SourceCFM].Token)
}

func TestEnsureConcurrentCallersShareOneRefresh(t *testing.T) {
	repo := newFakeTokenRepo()
	refresher := &fakeRefresher{cred: validCred(entity.SourceCFM), delay: 20 * time.Millisecond}
	mgr := NewTokenManager(repo, map[string]Refresher{entity.SourceCFM: refresher}, zap.NewNop())

	const callers = 8
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cred, err := mgr.Ensure(context.Background(), entity.SourceCFM)
			errs[i] = err
			if cred != nil {
				tokens[i] = cred.Token
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "valid-token", tokens[i])
	}
	assert.Equal(t, 1, refresher.callCount(), "losers of the race must reuse the winner's credential")
}

func TestEnsureUnknownSource(t *testing.T) {
	mgr := NewTokenManager(newFakeTokenRepo(), nil, zap.NewNop())
	_, err := mgr.Ensure(context.Background(), "nonexistent")
	require.Error(t, err)
}

func TestInvalidateRemovesCredential(t *testing.T) {
	repo := newFakeTokenRepo()
	repo.creds[entity.SourceCFM] = validCred(entity.SourceCFM)
	mgr := NewTokenManager(repo, nil, zap.NewNop())

	require.NoError(t, mgr.Invalidate(context.Background(), entity.SourceCFM))
	assert.Nil(t, repo.creds[entity.SourceCFM])
}

func TestCaptchaRefresherSuccess(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	r := &CaptchaRefresher{
		Solver:      &fakeSolver{tokens: []string{"solved"}},
		Verifier:    &fakeVerifier{},
		TTL:         30 * time.Minute,
		MaxAttempts: 3,
		Policy:      backoff.Default(),
		Logger:      zap.NewNop(),
		Now:         func() time.Time { return now },
		Sleep:       noSleep,
	}

	cred, err := r.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, entity.SourceCFM, cred.Source)
	assert.Equal(t, "solved", cred.Token)
	assert.True(t, cred.ExpiryKnown)
	assert.Equal(t, now.Add(30*time.Minute), cred.ExpiresAt)
}

func TestCaptchaRefresherRetriesTransientSolve(t *testing.T) {
	solver := &fakeSolver{
		tokens: []string{"", "solved"},
		errs:   []error{repository.ErrTransient, nil},
	}
	r := &CaptchaRefresher{
		Solver:      solver,
		Verifier:    &fakeVerifier{},
		TTL:         30 * time.Minute,
		MaxAttempts: 3,
		Policy:      backoff.Default(),
		Logger:      zap.NewNop(),
		Sleep:       noSleep,
	}

	cred, err := r.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "solved", cred.Token)
	assert.Equal(t, 2, solver.created)
}

func TestCaptchaRefresherRejectedSolutionGetsFreshChallenge(t *testing.T) {
	solver := &fakeSolver{tokens: []string{"rejected", "accepted"}}
	verifier := &fakeVerifier{errs: []error{repository.ErrAuthExpired, nil}}
	r := &CaptchaRefresher{
		Solver:      solver,
		Verifier:    verifier,
		TTL:         30 * time.Minute,
		MaxAttempts: 3,
		Policy:      backoff.Default(),
		Logger:      zap.NewNop(),
		Sleep:       noSleep,
	}

	cred, err := r.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "accepted", cred.Token)
	assert.Equal(t, 2, solver.created)
}

func TestCaptchaRefresherExhaustion(t *testing.T) {
	verifier := &fakeVerifier{errs: []error{
		repository.ErrAuthExpired, repository.ErrAuthExpired, repository.ErrAuthExpired,
	}}
	solver := &fakeSolver{}
	r := &CaptchaRefresher{
		Solver:      solver,
		Verifier:    verifier,
		TTL:         30 * time.Minute,
		MaxAttempts: 3,
		Policy:      backoff.Default(),
		Logger:      zap.NewNop(),
		Sleep:       noSleep,
	}

	_, err := r.Refresh(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, repository.ErrAuthExhausted)
	assert.Equal(t, 3, solver.created)
}

func TestCaptchaRefresherNonRetryableStopsImmediately(t *testing.T) {
	fatal := errors.New("browser missing")
	solver := &fakeSolver{errs: []error{fatal}}
	r := &CaptchaRefresher{
		Solver:      solver,
		Verifier:    &fakeVerifier{},
		TTL:         30 * time.Minute,
		MaxAttempts: 3,
		Policy:      backoff.Default(),
		Logger:      zap.NewNop(),
		Sleep:       noSleep,
	}

	_, err := r.Refresh(context.Background())
	require.ErrorIs(t, err, fatal)
	assert.NotErrorIs(t, err, repository.ErrAuthExhausted)
	assert.Equal(t, 1, solver.created)
}

func TestSessionRefresherSecondConsecutiveFailureIsFatal(t *testing.T) {
	loginErr := errors.New("bad password")
	gw := &fakeGateway{errs: []error{loginErr, loginErr}}
	r := &SessionRefresher{Gateway: gw, Logger: zap.NewNop()}

	_, err := r.Refresh(context.Background())
	require.ErrorIs(t, err, loginErr)
	assert.NotErrorIs(t, err, repository.ErrAuthExhausted)

	_, err = r.Refresh(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, repository.ErrAuthExhausted)
}

func TestSessionRefresherFailureCountScopedToRun(t *testing.T) {
	loginErr := errors.New("timeout")
	gw := &fakeGateway{errs: []error{loginErr, loginErr}}
	r := &SessionRefresher{Gateway: gw, Logger: zap.NewNop()}
	mgr := NewTokenManager(newFakeTokenRepo(),
		map[string]Refresher{entity.SourcePegaPlantao: r}, zap.NewNop())

	_, err := r.Refresh(context.Background())
	require.Error(t, err)

	// A new run must not inherit the previous run's failure.
	mgr.BeginRun(entity.SourcePegaPlantao)

	_, err = r.Refresh(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, repository.ErrAuthExhausted,
		"the consecutive-failure count is bounded to one run")
}

func TestSessionRefresherSuccessResetsFailureCount(t *testing.T) {
	loginErr := errors.New("timeout")
	gw := &fakeGateway{
		errs: []error{loginErr, nil, loginErr},
		cred: validCred(entity.SourcePegaPlantao),
	}
	r := &SessionRefresher{Gateway: gw, Logger: zap.NewNop()}

	_, err := r.Refresh(context.Background())
	require.Error(t, err)

	cred, err := r.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "valid-token", cred.Token)

	// A single failure after a success is not fatal again.
	_, err = r.Refresh(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, repository.ErrAuthExhausted)
}
