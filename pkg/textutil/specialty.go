package textutil

import (
	"regexp"
	"strings"
)

// ParsedSpecialty is one entry parsed from the board's specialty string.
type ParsedSpecialty struct {
	Name string
	Code string
	RQE  string
}

var (
	// "RQE Nº: 12345", with the ordinal sign in any of its encodings.
	rqeRe = regexp.MustCompile(`(?i)\s*-?\s*RQE\s*N[ºo°]?\s*:?\s*(\d+)`)
	// Parenthesized practice-area annotations, e.g. "(Cirurgia do Trauma)".
	parenRe = regexp.MustCompile(`\s*\(.*?\)\s*`)
)

// ParseSpecialties splits the board's specialty field into entries.
//
// Input format, as the API emits it:
//
//	"&CARDIOLOGIA - RQE Nº: 12345&PEDIATRIA - RQE Nº: 67890"
//	"&CIRURGIA GERAL - RQE Nº: 123 (Cirurgia do Trauma)"
func ParseSpecialties(raw string) []ParsedSpecialty {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	var out []ParsedSpecialty
	for _, part := range strings.Split(raw, "&") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		var rqe string
		if m := rqeRe.FindStringSubmatch(part); m != nil {
			rqe = m[1]
		}

		name := rqeRe.ReplaceAllString(part, "")
		name = parenRe.ReplaceAllString(name, "")
		name = strings.Trim(name, " -()")
		if name == "" {
			continue
		}

		out = append(out, ParsedSpecialty{
			Name: TitleCase(name),
			Code: strings.ToUpper(strings.TrimSpace(name)),
			RQE:  rqe,
		})
	}
	return out
}
