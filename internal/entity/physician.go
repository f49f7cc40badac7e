package entity

import (
	"fmt"
	"time"
)

// Specialty is one parsed entry from the board's specialty string.
type Specialty struct {
	Name string `json:"name"`
	Code string `json:"specialty_code"`
	RQE  string `json:"rqe,omitempty"`
}

// Physician mirrors the `physicians` PostgreSQL table. The natural key is
// (CRM, State): registration numbers repeat across federal units.
type Physician struct {
	ID                    int64
	CRM                   int64
	RawCRM                string
	State                 string
	Name                  string
	SocialName            string
	Status                string
	RegistrationType      string
	RegistrationDate      *time.Time
	GraduationInstitution string
	GraduationDate        string
	IsForeign             bool
	SecurityHash          string
	InterdictionNote      string
	Specialties           []Specialty // stored as JSONB
	RawData               []byte      // original API record, stored as JSONB
	CrawledAt             time.Time
}

// NaturalKey implements Record.
func (p *Physician) NaturalKey() string {
	return fmt.Sprintf("%d/%s", p.CRM, p.State)
}
