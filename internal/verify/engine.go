// Package verify reconciles extracted identity, a content-integrity hash,
// and an optional code payload against the registry to produce a verdict.
package verify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/certledger/certverify/internal/extract"
	"github.com/certledger/certverify/internal/model"
	"github.com/certledger/certverify/internal/parse"
	"github.com/certledger/certverify/internal/store"
)

// Extractor is the document-to-text capability the engine consumes.
// *extract.Engine satisfies it.
type Extractor interface {
	Extract(ctx context.Context, data []byte, kind extract.MediaKind) (extract.Result, error)
	DetectCode(ctx context.Context, data []byte, kind extract.MediaKind) string
}

// Input is either raw document bytes or pre-supplied fields. When both are
// present, directly supplied fields win over anything derived from the
// document.
type Input struct {
	Data []byte
	Kind extract.MediaKind

	CertificateID string
	Name          string
	RollNumber    string
	Course        string
	FileHash      string
	CodePayload   string
}

// Engine orchestrates extraction, parsing, and registry lookup. Stateless
// between calls; safe for concurrent use.
type Engine struct {
	store     store.Store
	extractor Extractor
}

func New(st store.Store, ex Extractor) *Engine {
	return &Engine{store: st, extractor: ex}
}

// FileHash is the content-integrity digest: SHA-256 over the exact raw
// bytes, lowercase hex.
func FileHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Verify renders a verdict for the given input. Extraction failures and
// store failures surface as errors; an absent record is a not_found
// verdict, never an error.
func (e *Engine) Verify(ctx context.Context, in Input) (model.Verdict, error) {
	certID := in.CertificateID
	name := in.Name
	roll := in.RollNumber
	course := in.Course
	observedHash := in.FileHash
	payload := in.CodePayload

	if len(in.Data) > 0 {
		res, err := e.extractor.Extract(ctx, in.Data, in.Kind)
		if err != nil {
			return model.Verdict{}, eris.Wrap(err, "verify: extract document")
		}
		fields := parse.Fields(res.Text)
		certID = firstNonEmpty(certID, deref(fields.CertificateID))
		name = firstNonEmpty(name, deref(fields.Name))
		roll = firstNonEmpty(roll, deref(fields.RollNumber))
		course = firstNonEmpty(course, deref(fields.Course))

		observedHash = FileHash(in.Data)
		if payload == "" {
			payload = e.extractor.DetectCode(ctx, in.Data, in.Kind)
		}
	}

	var code parse.CodePayload
	if payload != "" {
		code = parse.Code(payload)
	}

	// A code-derived identifier is only adopted when no explicit id exists.
	viaCode := false
	if certID == "" && code.CandidateID != nil {
		certID = *code.CandidateID
		viaCode = true
	}

	matchedBy := model.MatchedByNone
	var rec *model.CertificateRecord
	var err error

	if certID != "" {
		rec, err = e.store.GetByID(ctx, certID)
		if err != nil {
			return model.Verdict{}, err
		}
		if rec != nil {
			if viaCode {
				matchedBy = model.MatchedByCode
			} else {
				matchedBy = model.MatchedByCertificateID
			}
		}
	}
	if rec == nil {
		rec, err = e.store.FindCandidate(ctx, name, roll, course)
		if err != nil {
			return model.Verdict{}, err
		}
		if rec != nil {
			matchedBy = model.MatchedByFields
		}
	}

	verdict := model.VerdictNotFound
	if rec != nil {
		verdict = model.VerdictValid
	}

	integrity := model.IntegrityUnknown
	if rec != nil && observedHash != "" && rec.FileHash != "" {
		if rec.FileHash == observedHash {
			integrity = model.IntegrityMatch
		} else {
			integrity = model.IntegrityMismatch
		}
	}

	zap.L().Info("verification decided",
		zap.String("verdict", string(verdict)),
		zap.String("matched_by", string(matchedBy)),
		zap.String("integrity", string(integrity)),
	)

	return model.Verdict{
		Success:          true,
		Verdict:          verdict,
		MatchedBy:        matchedBy,
		Record:           rec,
		Integrity:        integrity,
		ObservedFileHash: observedHash,
		CodePayload:      payload,
		CodeVerified:     codeVerified(rec, payload, code),
	}, nil
}

// codeVerified: a record was found, a code payload was present, and either
// the code-derived id matches the record's id (normalized) or the
// code-derived hash matches the stored hash.
func codeVerified(rec *model.CertificateRecord, payload string, code parse.CodePayload) bool {
	if rec == nil || payload == "" {
		return false
	}
	if code.CandidateID != nil &&
		model.Normalize(*code.CandidateID) == model.Normalize(rec.CertificateID) {
		return true
	}
	return code.CandidateHash != nil && rec.FileHash != "" && *code.CandidateHash == rec.FileHash
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
