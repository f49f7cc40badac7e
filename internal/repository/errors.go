package repository

import "errors"

// Failure taxonomy shared by adapters and use cases. Adapters classify
// every source response into exactly one of these; use cases decide the
// recovery (backoff retry, single re-auth, abandon dimension, abort run).
var (
	// ErrTransient covers network failures, HTTP 429 and 5xx. Worth
	// retrying under the backoff policy.
	ErrTransient = errors.New("transient source failure")

	// ErrAuthExpired means the source rejected the current credential.
	// Triggers one re-authentication, never a retry loop.
	ErrAuthExpired = errors.New("authorization expired")

	// ErrAuthExhausted means authentication attempts ran out. Fatal for
	// the run.
	ErrAuthExhausted = errors.New("authentication attempts exhausted")

	// ErrNonRetryable covers HTTP 4xx other than 401/403/429 and protocol
	// responses that retrying cannot fix.
	ErrNonRetryable = errors.New("non-retryable source failure")

	// ErrStorageUnavailable means the durable sink or credential store is
	// unreachable. Fatal: continuing would lose data silently.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// Retryable reports whether the backoff policy applies to err.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransient)
}
