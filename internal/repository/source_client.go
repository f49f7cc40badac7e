package repository

import (
	"context"

	"github.com/user/medcrawl/internal/entity"
)

// SourceClient drives the request side of one remote source.
type SourceClient interface {
	// Source returns the source identifier this client crawls.
	Source() string
	// Dimensions enumerates the units of work in a fixed, reproducible
	// order across runs.
	Dimensions(ctx context.Context) ([]entity.FetchDimension, error)
	// FetchPage fetches one page of a dimension. An empty cursor means
	// the first page. An empty next cursor signals exhaustion; so does a
	// next cursor equal to the one just fetched (some sources repeat the
	// last page forever instead of declaring an end).
	FetchPage(ctx context.Context, cred *entity.Credential, dim entity.FetchDimension, cursor string) (page *entity.RawPage, next string, err error)
}
