package extractor

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/user/medcrawl/internal/entity"
)

// shiftRaw mirrors one entry of the marketplace listing response.
type shiftRaw struct {
	ServiceID        string  `json:"ServiceId"`
	ServiceStartDate string  `json:"ServiceStartDate"`
	ServiceEndDate   string  `json:"ServiceEndDate"`
	UserID           string  `json:"UserId"`
	GroupName        string  `json:"GroupName"`
	GroupID          string  `json:"GroupId"`
	ServiceTypeID    string  `json:"ServiceTypeId"`
	ServiceTypeName  string  `json:"ServiceTypeName"`
	NeedsCoverage    bool    `json:"NeedsCoverage"`
	Value            float64 `json:"Value"`
}

var shiftLayouts = []string{"2006-01-02T15:04:05", time.RFC3339, "2006-01-02T15:04:05.999"}

func extractShifts(page *entity.RawPage, now time.Time) ([]entity.Record, []entity.ExtractionError) {
	var env struct {
		Services []json.RawMessage `json:"Services"`
	}
	if err := json.Unmarshal(page.Payload, &env); err != nil {
		return nil, []entity.ExtractionError{pageError(page, fmt.Sprintf("payload is not a shift listing: %v", err))}
	}

	var records []entity.Record
	var errs []entity.ExtractionError
	for i, row := range env.Services {
		var raw shiftRaw
		if err := json.Unmarshal(row, &raw); err != nil {
			errs = append(errs, pageError(page, fmt.Sprintf("service %d: %v", i, err)))
			continue
		}

		s, err := raw.toShift(now)
		if err != nil {
			errs = append(errs, pageError(page, fmt.Sprintf("service %d: %v", i, err)))
			continue
		}
		records = append(records, s)
	}
	return records, errs
}

func (r shiftRaw) toShift(now time.Time) (*entity.ShiftPosting, error) {
	id := strings.TrimSpace(r.ServiceID)
	if id == "" {
		return nil, fmt.Errorf("service has no id")
	}

	starts, err := parseShiftTime(r.ServiceStartDate)
	if err != nil {
		return nil, fmt.Errorf("service %s: bad start %q", id, r.ServiceStartDate)
	}
	ends, err := parseShiftTime(r.ServiceEndDate)
	if err != nil {
		return nil, fmt.Errorf("service %s: bad end %q", id, r.ServiceEndDate)
	}

	// "HOSPITAL X - UTI Adulto" carries the unit and the sector.
	location, section, _ := strings.Cut(r.GroupName, " - ")

	return &entity.ShiftPosting{
		ServiceID:      id,
		ShiftID:        strings.TrimSpace(r.GroupID),
		ProfessionalID: strings.TrimSpace(r.UserID),
		Location:       strings.TrimSpace(location),
		Section:        strings.TrimSpace(section),
		ShiftTypeID:    strings.TrimSpace(r.ServiceTypeID),
		ShiftType:      strings.TrimSpace(r.ServiceTypeName),
		StartsAt:       starts,
		EndsAt:         ends,
		Value:          r.Value,
		NeedsCoverage:  r.NeedsCoverage,
		CrawledAt:      now,
	}, nil
}

func parseShiftTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range shiftLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable time %q", s)
}
