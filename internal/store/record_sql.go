package store

import (
	"database/sql"
	"strings"
	"time"

	"github.com/certledger/certverify/internal/model"
)

// recordColumns is the shared column order for certificate selects and the
// RETURNING clause of the upsert.
const recordColumns = `id, certificate_id, certificate_id_norm,
	name, roll_number, course, issue_date, issuer, issuer_id,
	file_hash, file_name, file_ext,
	name_norm, roll_norm, course_norm,
	created_at, updated_at`

// upsertArgs flattens a RecordInput into the argument list both backends
// bind to their upsert statement. Nil input fields become SQL NULLs so the
// merge keeps the stored value; non-nil fields (including empty strings)
// overwrite it, and their normalized copies are recomputed alongside.
func upsertArgs(id string, in model.RecordInput, now time.Time) []any {
	certID := strings.TrimSpace(in.CertificateID)
	return []any{
		id, certID, model.Normalize(certID),
		optVal(in.Name), optVal(in.RollNumber), optVal(in.Course),
		optVal(in.IssueDate), optVal(in.Issuer), optVal(in.IssuerID),
		optVal(in.FileHash), optVal(in.FileName), optVal(in.FileExt),
		optNorm(in.Name), optNorm(in.RollNumber), optNorm(in.Course),
		now, now,
	}
}

func optVal(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func optNorm(p *string) any {
	if p == nil {
		return nil
	}
	return model.Normalize(*p)
}

type scannable interface {
	Scan(dest ...any) error
}

// scanRecord reads one certificate row in recordColumns order. Works for
// both database/sql rows and pgx rows.
func scanRecord(row scannable) (*model.CertificateRecord, error) {
	var r model.CertificateRecord
	var certIDNorm string
	var name, roll, course, issueDate, issuer, issuerID sql.NullString
	var fileHash, fileName, fileExt sql.NullString
	var nameNorm, rollNorm, courseNorm sql.NullString

	err := row.Scan(
		&r.ID, &r.CertificateID, &certIDNorm,
		&name, &roll, &course, &issueDate, &issuer, &issuerID,
		&fileHash, &fileName, &fileExt,
		&nameNorm, &rollNorm, &courseNorm,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.Name = name.String
	r.RollNumber = roll.String
	r.Course = course.String
	r.IssueDate = issueDate.String
	r.Issuer = issuer.String
	r.IssuerID = issuerID.String
	r.FileHash = fileHash.String
	r.FileName = fileName.String
	r.FileExt = fileExt.String
	r.NameNormalized = nameNorm.String
	r.RollNormalized = rollNorm.String
	r.CourseNormalized = courseNorm.String
	return &r, nil
}

// matchesCriteria applies the in-memory filter of the roll-only relaxation:
// provided criteria must equal the record's normalized copies.
func matchesCriteria(r *model.CertificateRecord, nameNorm, courseNorm string) bool {
	if nameNorm != "" && r.NameNormalized != nameNorm {
		return false
	}
	if courseNorm != "" && r.CourseNormalized != courseNorm {
		return false
	}
	return true
}
