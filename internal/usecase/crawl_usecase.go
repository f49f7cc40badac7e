package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/user/medcrawl/internal/entity"
	"github.com/user/medcrawl/internal/extractor"
	"github.com/user/medcrawl/internal/repository"
	"github.com/user/medcrawl/pkg/backoff"
	"github.com/user/medcrawl/pkg/metrics"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrRunInProgress is returned by Run when the runner is already mid-run.
var ErrRunInProgress = errors.New("run already in progress")

// RunnerOptions tunes one orchestrated crawl.
type RunnerOptions struct {
	Workers        int
	MaxPageRetries int
	Backoff        backoff.Policy
	// RestartCheckpoints discards stored progress before the run starts.
	RestartCheckpoints bool
}

// CrawlRunner drives a full crawl of one source: authenticate, walk every
// dimension page by page through a bounded worker pool, extract and store
// records, and checkpoint progress after each committed page.
type CrawlRunner struct {
	client      repository.SourceClient
	tokens      TokenManager
	sink        repository.RecordSink
	checkpoints repository.CheckpointRepository
	limiter     *rate.Limiter
	opts        RunnerOptions
	logger      *zap.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	running atomic.Bool

	mu      sync.Mutex
	summary *entity.RunSummary
}

// NewCrawlRunner creates a runner for the given source client. The limiter
// is shared across all workers so the aggregate request rate stays bounded
// no matter the pool size.
func NewCrawlRunner(
	client repository.SourceClient,
	tokens TokenManager,
	sink repository.RecordSink,
	checkpoints repository.CheckpointRepository,
	limiter *rate.Limiter,
	opts RunnerOptions,
	logger *zap.Logger,
) *CrawlRunner {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.MaxPageRetries < 1 {
		opts.MaxPageRetries = 1
	}
	return &CrawlRunner{
		client:      client,
		tokens:      tokens,
		sink:        sink,
		checkpoints: checkpoints,
		limiter:     limiter,
		opts:        opts,
		logger:      logger.With(zap.String("source", client.Source())),
		now:         time.Now,
		sleep:       sleepCtx,
	}
}

// LastSummary returns the summary of the most recent run, or nil when the
// runner has never run.
func (r *CrawlRunner) LastSummary() *entity.RunSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.summary == nil {
		return nil
	}
	s := *r.summary
	return &s
}

func (r *CrawlRunner) setSummary(s *entity.RunSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *s
	r.summary = &copied
}

// Running reports whether a run is currently in flight.
func (r *CrawlRunner) Running() bool {
	return r.running.Load()
}

// Run executes one crawl to completion. A summary is produced even when
// the run fails. At most one run per runner is in flight at a time.
func (r *CrawlRunner) Run(ctx context.Context) (*entity.RunSummary, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer r.running.Store(false)

	source := r.client.Source()
	r.tokens.BeginRun(source)
	summary := &entity.RunSummary{
		Source:    source,
		State:     entity.RunAuthenticating,
		StartedAt: r.now(),
	}
	r.setSummary(summary)
	r.logger.Info("run starting")

	fail := func(err error) (*entity.RunSummary, error) {
		summary.State = entity.RunFailed
		summary.Err = err.Error()
		summary.FinishedAt = r.now()
		r.setSummary(summary)
		r.logger.Error("run failed", zap.Error(err))
		return summary, err
	}

	holder := &credHolder{}
	if err := r.authenticate(ctx, holder); err != nil {
		return fail(err)
	}

	if r.opts.RestartCheckpoints {
		if err := r.checkpoints.Clear(ctx, source); err != nil {
			return fail(fmt.Errorf("clearing checkpoints: %w", err))
		}
		r.logger.Info("checkpoints cleared")
	}

	dims, err := r.client.Dimensions(ctx)
	if err != nil {
		return fail(fmt.Errorf("listing dimensions: %w", err))
	}

	summary.State = entity.RunCrawling
	r.setSummary(summary)
	r.logger.Info("crawling", zap.Int("dimensions", len(dims)), zap.Int("workers", r.opts.Workers))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	tally := &runTally{}
	dimCh := make(chan entity.FetchDimension)
	var wg sync.WaitGroup
	for i := 0; i < r.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for dim := range dimCh {
				if runCtx.Err() != nil {
					continue
				}
				if err := r.crawlDimension(runCtx, holder, dim, tally); err != nil {
					if isRunFatal(err) {
						tally.setFatal(err)
						cancel()
						continue
					}
					tally.addFailedDimension(dim.ID)
					metrics.DimensionFailures.WithLabelValues(source).Inc()
					r.logger.Error("dimension abandoned",
						zap.String("dimension", dim.ID), zap.Error(err))
				}
			}
		}()
	}

	for _, dim := range dims {
		select {
		case dimCh <- dim:
		case <-runCtx.Done():
		}
		if runCtx.Err() != nil {
			break
		}
	}
	close(dimCh)

	summary.State = entity.RunDraining
	r.setSummary(summary)
	wg.Wait()

	stored, extErrs, failedDims, fatal := tally.snapshot()
	summary.Stored = stored
	summary.ExtractionErrors = extErrs
	summary.DimensionsFailed = failedDims
	if fatal != nil {
		return fail(fatal)
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	summary.State = entity.RunDone
	summary.FinishedAt = r.now()
	r.setSummary(summary)
	r.logger.Info("run finished",
		zap.Int64("stored", summary.Stored),
		zap.Int64("extraction_errors", summary.ExtractionErrors),
		zap.Strings("dimensions_failed", summary.DimensionsFailed),
	)
	return summary, nil
}

// authenticate acquires the initial credential. One failed acquisition is
// retried once; a second consecutive failure ends the run.
func (r *CrawlRunner) authenticate(ctx context.Context, holder *credHolder) error {
	source := r.client.Source()
	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		cred, err := r.tokens.Ensure(ctx, source)
		if err == nil {
			holder.set(cred)
			return nil
		}
		lastErr = err
		if errors.Is(err, repository.ErrAuthExhausted) || ctx.Err() != nil {
			return err
		}
		r.logger.Warn("authentication attempt failed", zap.Int("attempt", attempt), zap.Error(err))
		if attempt < 2 {
			if err := r.sleep(ctx, r.opts.Backoff.NextDelay(attempt)); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("%w: authentication failed twice: %v", repository.ErrAuthExhausted, lastErr)
}

// crawlDimension walks one dimension from its checkpoint to exhaustion.
func (r *CrawlRunner) crawlDimension(ctx context.Context, holder *credHolder, dim entity.FetchDimension, tally *runTally) error {
	source := r.client.Source()
	log := r.logger.With(zap.String("dimension", dim.ID))

	cursor := ""
	var records int64
	cp, err := r.checkpoints.Get(ctx, source, dim.ID)
	if err != nil {
		log.Warn("checkpoint read failed, starting from scratch", zap.Error(err))
	} else if cp != nil {
		if cp.Status == entity.CheckpointComplete {
			log.Info("dimension already complete, skipping")
			return nil
		}
		cursor = cp.Cursor
		records = cp.Records
		log.Info("resuming from checkpoint", zap.String("cursor", cursor), zap.Int64("records", records))
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, next, err := r.fetchWithRetry(ctx, holder, dim, cursor)
		if err != nil {
			if cpErr := r.putCheckpoint(ctx, log, &entity.Checkpoint{
				Source:    source,
				Dimension: dim.ID,
				Cursor:    cursor,
				Status:    entity.CheckpointFailed,
				Records:   records,
				UpdatedAt: r.now(),
			}); cpErr != nil {
				return cpErr
			}
			return err
		}

		recs, extErrs, err := extractor.Extract(page, r.now())
		if err != nil {
			return fmt.Errorf("%w: %v", repository.ErrNonRetryable, err)
		}
		for _, e := range extErrs {
			log.Warn("record rejected",
				zap.String("cursor", e.Cursor), zap.String("reason", e.Reason))
		}
		if len(extErrs) > 0 {
			metrics.ExtractionErrorsTotal.WithLabelValues(source).Add(float64(len(extErrs)))
			tally.addExtractionErrors(len(extErrs))
		}

		if len(recs) > 0 {
			if err := r.sink.Upsert(ctx, recs); err != nil {
				return fmt.Errorf("storing records: %w", err)
			}
			metrics.RecordsStoredTotal.WithLabelValues(source).Add(float64(len(recs)))
			tally.addStored(len(recs))
			records += int64(len(recs))
		}

		// A missing or repeated next cursor both mean the dimension is
		// exhausted.
		done := next == "" || next == cursor
		status := entity.CheckpointRunning
		checkpointCursor := next
		if done {
			status = entity.CheckpointComplete
			checkpointCursor = cursor
		}
		if err := r.putCheckpoint(ctx, log, &entity.Checkpoint{
			Source:    source,
			Dimension: dim.ID,
			Cursor:    checkpointCursor,
			Status:    status,
			Records:   records,
			UpdatedAt: r.now(),
		}); err != nil {
			return err
		}
		if done {
			log.Info("dimension complete", zap.Int64("records", records))
			return nil
		}
		cursor = next
	}
}

// fetchWithRetry performs one page fetch with bounded retries on transient
// failures and a single reauthentication on credential rejection.
func (r *CrawlRunner) fetchWithRetry(ctx context.Context, holder *credHolder, dim entity.FetchDimension, cursor string) (*entity.RawPage, string, error) {
	source := r.client.Source()
	reauthed := false
	var lastErr error

	for attempt := 1; attempt <= r.opts.MaxPageRetries; attempt++ {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, "", err
		}

		start := r.now()
		page, next, err := r.client.FetchPage(ctx, holder.get(), dim, cursor)
		metrics.FetchDuration.WithLabelValues(source).Observe(r.now().Sub(start).Seconds())
		if err == nil {
			metrics.PagesFetchedTotal.WithLabelValues(source, "success").Inc()
			return page, next, nil
		}
		lastErr = err

		switch {
		case errors.Is(err, repository.ErrAuthExpired):
			if reauthed {
				metrics.PagesFetchedTotal.WithLabelValues(source, "failure").Inc()
				return nil, "", fmt.Errorf("%w: credential rejected twice: %v",
					repository.ErrAuthExhausted, err)
			}
			reauthed = true
			r.logger.Warn("credential rejected, reauthenticating",
				zap.String("dimension", dim.ID), zap.String("cursor", cursor))
			if err := r.reauth(ctx, holder); err != nil {
				return nil, "", err
			}
			// The failed call does not count against the retry bound.
			attempt--
		case repository.Retryable(err):
			metrics.PagesFetchedTotal.WithLabelValues(source, "retry").Inc()
			r.logger.Warn("page fetch failed",
				zap.String("dimension", dim.ID),
				zap.String("cursor", cursor),
				zap.Int("attempt", attempt),
				zap.Error(err))
			if attempt < r.opts.MaxPageRetries {
				if err := r.sleep(ctx, r.opts.Backoff.NextDelay(attempt)); err != nil {
					return nil, "", err
				}
			}
		default:
			metrics.PagesFetchedTotal.WithLabelValues(source, "failure").Inc()
			return nil, "", err
		}
	}
	metrics.PagesFetchedTotal.WithLabelValues(source, "failure").Inc()
	return nil, "", fmt.Errorf("page retries exhausted at cursor %q: %w", cursor, lastErr)
}

func (r *CrawlRunner) reauth(ctx context.Context, holder *credHolder) error {
	source := r.client.Source()
	if err := r.tokens.Invalidate(ctx, source); err != nil {
		r.logger.Warn("credential invalidation failed", zap.Error(err))
	}
	cred, err := r.tokens.Ensure(ctx, source)
	if err != nil {
		return err
	}
	holder.set(cred)
	return nil
}

// putCheckpoint persists progress. An unavailable checkpoint store is
// fatal: continuing would report a successful run that cannot resume.
func (r *CrawlRunner) putCheckpoint(ctx context.Context, log *zap.Logger, cp *entity.Checkpoint) error {
	err := r.checkpoints.Put(ctx, cp)
	if err == nil {
		return nil
	}
	if errors.Is(err, repository.ErrStorageUnavailable) {
		return fmt.Errorf("writing checkpoint at cursor %q: %w", cp.Cursor, err)
	}
	log.Warn("checkpoint write failed", zap.String("cursor", cp.Cursor), zap.Error(err))
	return nil
}

func isRunFatal(err error) bool {
	return errors.Is(err, repository.ErrAuthExhausted) ||
		errors.Is(err, repository.ErrStorageUnavailable) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// credHolder shares the current credential between workers. Reads vastly
// outnumber writes.
type credHolder struct {
	mu   sync.RWMutex
	cred *entity.Credential
}

func (h *credHolder) get() *entity.Credential {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cred
}

func (h *credHolder) set(c *entity.Credential) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cred = c
}

// runTally accumulates per-run counters across workers.
type runTally struct {
	mu         sync.Mutex
	stored     int64
	extErrs    int64
	failedDims []string
	fatal      error
}

func (t *runTally) addStored(n int) {
	t.mu.Lock()
	t.stored += int64(n)
	t.mu.Unlock()
}

func (t *runTally) addExtractionErrors(n int) {
	t.mu.Lock()
	t.extErrs += int64(n)
	t.mu.Unlock()
}

func (t *runTally) addFailedDimension(id string) {
	t.mu.Lock()
	t.failedDims = append(t.failedDims, id)
	t.mu.Unlock()
}

func (t *runTally) setFatal(err error) {
	t.mu.Lock()
	if t.fatal == nil {
		t.fatal = err
	}
	t.mu.Unlock()
}

func (t *runTally) snapshot() (stored, extErrs int64, failedDims []string, fatal error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	dims := make([]string, len(t.failedDims))
	copy(dims, t.failedDims)
	sort.Strings(dims)
	return t.stored, t.extErrs, dims, t.fatal
}
