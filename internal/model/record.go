package model

import (
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// CertificateRecord is a registered certificate as stored in the registry.
// The *_normalized copies are derived at write time and used for
// case/whitespace-insensitive matching; the original casing is preserved.
type CertificateRecord struct {
	ID            string `json:"id"`
	CertificateID string `json:"certificate_id"`
	Name          string `json:"name,omitempty"`
	RollNumber    string `json:"roll_number,omitempty"`
	Course        string `json:"course,omitempty"`
	IssueDate     string `json:"issue_date,omitempty"`
	Issuer        string `json:"issuer,omitempty"`
	IssuerID      string `json:"issuer_id,omitempty"`
	FileHash      string `json:"file_hash,omitempty"`
	FileName      string `json:"file_name,omitempty"`
	FileExt       string `json:"file_ext,omitempty"`

	NameNormalized   string `json:"name_normalized,omitempty"`
	RollNormalized   string `json:"roll_number_normalized,omitempty"`
	CourseNormalized string `json:"course_normalized,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RecordInput is an incoming record for registration or bulk import.
// Pointer fields distinguish "not supplied" from "supplied empty": on
// merge-upsert only non-nil fields overwrite the stored record.
type RecordInput struct {
	CertificateID string  `json:"certificate_id" yaml:"certificate_id"`
	Name          *string `json:"name,omitempty" yaml:"name"`
	RollNumber    *string `json:"roll_number,omitempty" yaml:"roll_number"`
	Course        *string `json:"course,omitempty" yaml:"course"`
	IssueDate     *string `json:"issue_date,omitempty" yaml:"issue_date"`
	Issuer        *string `json:"issuer,omitempty" yaml:"issuer"`
	IssuerID      *string `json:"issuer_id,omitempty" yaml:"issuer_id"`
	FileHash      *string `json:"file_hash,omitempty" yaml:"file_hash"`
	FileName      *string `json:"file_name,omitempty" yaml:"file_name"`
	FileExt       *string `json:"file_ext,omitempty" yaml:"file_ext"`
}

// ImportSummary aggregates the outcome of a bulk import.
type ImportSummary struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Total    int `json:"total"`
}

// RegistryStats holds read-only aggregate counts over the registry.
type RegistryStats struct {
	Certificates int    `json:"certificates"`
	Logs         int    `json:"logs"`
	Issuers      int    `json:"issuers"`
	Driver       string `json:"database_type"`
}

// Normalize lowercases s and strips all whitespace. The input is NFKC-folded
// first so OCR artifacts such as ligatures and fullwidth digits compare equal
// to their plain forms.
func Normalize(s string) string {
	folded := norm.NFKC.String(s)
	return strings.Join(strings.Fields(strings.ToLower(folded)), "")
}
