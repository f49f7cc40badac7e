package entity

import "time"

// ShiftPosting mirrors the `shift_postings` PostgreSQL table. The natural
// key is the marketplace-assigned ServiceID.
type ShiftPosting struct {
	ID             int64
	ServiceID      string
	ShiftID        string
	ProfessionalID string
	Location       string
	Section        string
	ShiftTypeID    string
	ShiftType      string
	StartsAt       time.Time
	EndsAt         time.Time
	Value          float64
	NeedsCoverage  bool
	CrawledAt      time.Time
}

// NaturalKey implements Record.
func (s *ShiftPosting) NaturalKey() string { return s.ServiceID }
