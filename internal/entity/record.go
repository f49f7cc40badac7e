package entity

// Record is a validated output entity, uniquely identifiable for an
// idempotent upsert. The set of implementations is closed: *Physician and
// *ShiftPosting.
type Record interface {
	NaturalKey() string
}
