// Package extractor turns raw source payloads into validated records. It
// performs no I/O: given the same page it always produces the same records
// and the same rejections.
package extractor

import (
	"fmt"
	"time"

	"github.com/user/medcrawl/internal/entity"
)

type extractFunc func(page *entity.RawPage, now time.Time) ([]entity.Record, []entity.ExtractionError)

// One extractor per page shape. The set is closed: new shapes are a code
// change, not a registration API.
var extractors = map[string]extractFunc{
	entity.ShapeCFMSearch:        extractPhysicians,
	entity.ShapePegaPlantaoShift: extractShifts,
}

// Extract parses a raw page. Records that fail natural-key validation are
// returned as ExtractionErrors without blocking their siblings; the error
// return fires only for a page shape no extractor handles.
func Extract(page *entity.RawPage, now time.Time) ([]entity.Record, []entity.ExtractionError, error) {
	fn, ok := extractors[page.Shape]
	if !ok {
		return nil, nil, fmt.Errorf("no extractor for page shape %q", page.Shape)
	}
	records, errs := fn(page, now)
	return records, errs, nil
}

func pageError(page *entity.RawPage, reason string) entity.ExtractionError {
	return entity.ExtractionError{
		Source:    page.Source,
		Dimension: page.Dimension,
		Cursor:    page.Cursor,
		Reason:    reason,
	}
}
