package extractor

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/user/medcrawl/internal/entity"
	"github.com/user/medcrawl/pkg/textutil"
)

// physicianRaw mirrors one record of the board's search response. All
// values arrive as strings, ALL CAPS, with the page's running total
// repeated on every row.
type physicianRaw struct {
	State            string `json:"SG_UF"`
	CRM              string `json:"NU_CRM"`
	Name             string `json:"NM_MEDICO"`
	SocialName       string `json:"NM_SOCIAL"`
	StatusCode       string `json:"COD_SITUACAO"`
	Status           string `json:"SITUACAO"`
	RegistrationDate string `json:"DT_INSCRICAO"`
	RegistrationType string `json:"TIPO_INSCRICAO"`
	Specialties      string `json:"ESPECIALIDADE"`
	InterdictionNote string `json:"OBS_INTERDICAO"`
	GraduationSchool string `json:"NM_INSTITUICAO_GRADUACAO"`
	GraduationDate   string `json:"DT_GRADUACAO"`
	ForeignSchool    string `json:"NM_FACULDADE_ESTRANGEIRA_GRADUACAO"`
	SecurityHash     string `json:"SECURITYHASH"`
}

var registrationLayouts = []string{"2006-01-02", "02/01/2006", time.RFC3339}

func extractPhysicians(page *entity.RawPage, now time.Time) ([]entity.Record, []entity.ExtractionError) {
	var rows []json.RawMessage
	if err := json.Unmarshal(page.Payload, &rows); err != nil {
		return nil, []entity.ExtractionError{pageError(page, fmt.Sprintf("payload is not a record array: %v", err))}
	}

	var records []entity.Record
	var errs []entity.ExtractionError
	for i, row := range rows {
		var raw physicianRaw
		if err := json.Unmarshal(row, &raw); err != nil {
			errs = append(errs, pageError(page, fmt.Sprintf("record %d: %v", i, err)))
			continue
		}

		p, err := raw.toPhysician(row, now)
		if err != nil {
			errs = append(errs, pageError(page, fmt.Sprintf("record %d: %v", i, err)))
			continue
		}
		records = append(records, p)
	}
	return records, errs
}

// toPhysician validates the natural-key fields and normalizes the rest.
func (r physicianRaw) toPhysician(raw json.RawMessage, now time.Time) (*entity.Physician, error) {
	crm, err := strconv.ParseInt(strings.TrimSpace(r.CRM), 10, 64)
	if err != nil || crm <= 0 {
		return nil, fmt.Errorf("invalid registration number %q", r.CRM)
	}
	state := strings.ToUpper(strings.TrimSpace(r.State))
	if len(state) != 2 {
		return nil, fmt.Errorf("invalid federal unit %q", r.State)
	}
	name := strings.TrimSpace(r.Name)
	if name == "" {
		return nil, fmt.Errorf("physician %d/%s has no name", crm, state)
	}

	var regDate *time.Time
	if s := strings.TrimSpace(r.RegistrationDate); s != "" {
		for _, layout := range registrationLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				regDate = &t
				break
			}
		}
	}

	specs := make([]entity.Specialty, 0)
	for _, s := range textutil.ParseSpecialties(r.Specialties) {
		specs = append(specs, entity.Specialty{Name: s.Name, Code: s.Code, RQE: s.RQE})
	}

	return &entity.Physician{
		CRM:                   crm,
		RawCRM:                strings.TrimSpace(r.CRM),
		State:                 state,
		Name:                  textutil.TitleCase(name),
		SocialName:            textutil.TitleCase(strings.TrimSpace(r.SocialName)),
		Status:                strings.TrimSpace(r.Status),
		RegistrationType:      strings.TrimSpace(r.RegistrationType),
		RegistrationDate:      regDate,
		GraduationInstitution: textutil.TitleCase(strings.TrimSpace(r.GraduationSchool)),
		GraduationDate:        strings.TrimSpace(r.GraduationDate),
		IsForeign:             strings.TrimSpace(r.ForeignSchool) != "",
		SecurityHash:          strings.TrimSpace(r.SecurityHash),
		InterdictionNote:      strings.TrimSpace(r.InterdictionNote),
		Specialties:           specs,
		RawData:               raw,
		CrawledAt:             now,
	}, nil
}
