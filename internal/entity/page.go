package entity

// FetchDimension is one independent unit of crawl work (a federal unit on
// the board, a date window on the marketplace). Sources enumerate
// dimensions in a fixed order so that resumption is well defined.
type FetchDimension struct {
	ID    string
	Label string
}

// Page shape tags. Each tag selects the extractor for that payload.
const (
	ShapeCFMSearch        = "cfm.search"
	ShapePegaPlantaoShift = "pegaplantao.shifts"
)

// RawPage is the opaque payload of one fetch call, paired with the
// position that produced it. It is transient: it lives only between the
// fetcher and the extractor.
type RawPage struct {
	Source    string
	Shape     string
	Dimension string
	Cursor    string
	Payload   []byte
}

// ExtractionError records a single rejected record. It is reported in the
// run summary, never raised as a fault.
type ExtractionError struct {
	Source    string
	Dimension string
	Cursor    string
	Reason    string
}
