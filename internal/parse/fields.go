// Package parse holds the heuristic parsers that pull structured identity
// out of unstructured certificate text and embedded code payloads. Both
// parsers are best-effort: absence of a match is a nil field, never an error.
package parse

import (
	"regexp"
	"strings"
)

// ParsedFields carries the identity fields recovered from certificate text.
// A nil field means the label was not found; values are never empty strings.
type ParsedFields struct {
	CertificateID *string `json:"certificate_id"`
	RollNumber    *string `json:"roll_number"`
	Name          *string `json:"name"`
	Course        *string `json:"course"`
}

// Each field tries its label synonyms in order; the first hit wins. The value
// charset differs per field: identifiers allow alphanumerics plus hyphen and
// slash, names allow letters and punctuation, courses allow both.
var (
	certIDPatterns = compileLabels(`[\s:]*([A-Za-z0-9\-/]+)`,
		`Certificate\s*ID`,
		`Cert(?:ificate)?\s*No\.?`,
		`Serial\s*No\.?`,
	)
	rollPatterns = compileLabels(`[\s:]*([A-Za-z0-9\-/]+)`,
		`Roll\s*No\.?`,
		`Enrollment\s*No\.?`,
		`Reg(?:istration)?\s*No\.?`,
	)
	namePatterns = compileLabels(`\s*[:\-\s]*([A-Za-z ,\-.]+)`,
		`Student\s*Name`,
		`Candidate`,
		`Name`,
	)
	coursePatterns = compileLabels(`\s*[:\-\s]*([A-Za-z0-9 &\-.]+)`,
		`Course`,
		`Programme`,
		`Degree`,
	)
)

func compileLabels(valueExpr string, labels ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(labels))
	for _, l := range labels {
		out = append(out, regexp.MustCompile(`(?i)(?:`+l+`)`+valueExpr))
	}
	return out
}

// Fields extracts labeled identity fields from plain text.
func Fields(text string) ParsedFields {
	return ParsedFields{
		CertificateID: firstMatch(certIDPatterns, text),
		RollNumber:    firstMatch(rollPatterns, text),
		Name:          firstMatch(namePatterns, text),
		Course:        firstMatch(coursePatterns, text),
	}
}

func firstMatch(patterns []*regexp.Regexp, text string) *string {
	for _, re := range patterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if v := strings.TrimSpace(m[1]); v != "" {
			return &v
		}
	}
	return nil
}
