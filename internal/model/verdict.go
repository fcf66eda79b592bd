package model

import "time"

// VerdictStatus is the authenticity outcome of a verification.
type VerdictStatus string

const (
	VerdictValid    VerdictStatus = "valid"
	VerdictNotFound VerdictStatus = "not_found"
)

// MatchSource records which signal produced a verification match.
type MatchSource string

const (
	MatchedByCertificateID MatchSource = "certificate_id"
	MatchedByCode          MatchSource = "code"
	MatchedByFields        MatchSource = "fields"
	MatchedByNone          MatchSource = "none"
)

// IntegrityStatus is the content-hash comparison outcome.
type IntegrityStatus string

const (
	IntegrityMatch    IntegrityStatus = "match"
	IntegrityMismatch IntegrityStatus = "mismatch"
	IntegrityUnknown  IntegrityStatus = "unknown"
)

// Verdict is the stable boundary-facing result of a verification.
// HTTP and CLI layers surface it unmodified.
type Verdict struct {
	Success          bool               `json:"success"`
	Verdict          VerdictStatus      `json:"verdict"`
	MatchedBy        MatchSource        `json:"matched_by"`
	Record           *CertificateRecord `json:"record"`
	Integrity        IntegrityStatus    `json:"integrity"`
	ObservedFileHash string             `json:"observed_file_hash,omitempty"`
	CodePayload      string             `json:"code_payload,omitempty"`
	CodeVerified     bool               `json:"code_verified"`
}

// VerificationLog is an append-only audit entry written by the boundary
// after registrations and verifications.
type VerificationLog struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"` // "verification" | "registration"
	CertificateID string    `json:"certificate_id,omitempty"`
	FileHash      string    `json:"file_hash,omitempty"`
	Verdict       string    `json:"verdict,omitempty"`
	MatchedBy     string    `json:"matched_by,omitempty"`
	AdminRole     string    `json:"admin_role,omitempty"`
	IssuerID      string    `json:"issuer_id,omitempty"`
	Inserted      bool      `json:"inserted,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}
