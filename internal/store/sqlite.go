package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/certledger/certverify/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS certificates (
	id                  TEXT PRIMARY KEY,
	certificate_id      TEXT NOT NULL DEFAULT '',
	certificate_id_norm TEXT NOT NULL DEFAULT '',
	name        TEXT,
	roll_number TEXT,
	course      TEXT,
	issue_date  TEXT,
	issuer      TEXT,
	issuer_id   TEXT,
	file_hash   TEXT,
	file_name   TEXT,
	file_ext    TEXT,
	name_norm   TEXT,
	roll_norm   TEXT,
	course_norm TEXT,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_certificates_id_norm
	ON certificates(certificate_id_norm) WHERE certificate_id_norm <> '';
CREATE INDEX IF NOT EXISTS idx_certificates_roll_norm ON certificates(roll_norm);
CREATE INDEX IF NOT EXISTS idx_certificates_created_at ON certificates(created_at DESC);

CREATE TABLE IF NOT EXISTS verifications (
	id             TEXT PRIMARY KEY,
	type           TEXT NOT NULL,
	certificate_id TEXT,
	file_hash      TEXT,
	verdict        TEXT,
	matched_by     TEXT,
	admin_role     TEXT,
	issuer_id      TEXT,
	inserted       INTEGER NOT NULL DEFAULT 0,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_verifications_created_at ON verifications(created_at DESC);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// sqliteUpsert is a single-statement atomic merge-upsert. The conflict
// target is the partial unique index over the normalized certificate id, so
// rows with an empty id never conflict and always insert. The returned id
// tells insert from update: only a fresh insert carries the generated uuid.
const sqliteUpsert = `
INSERT INTO certificates (` + recordColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(certificate_id_norm) WHERE certificate_id_norm <> '' DO UPDATE SET
	certificate_id = excluded.certificate_id,
	name        = COALESCE(excluded.name, certificates.name),
	roll_number = COALESCE(excluded.roll_number, certificates.roll_number),
	course      = COALESCE(excluded.course, certificates.course),
	issue_date  = COALESCE(excluded.issue_date, certificates.issue_date),
	issuer      = COALESCE(excluded.issuer, certificates.issuer),
	issuer_id   = COALESCE(excluded.issuer_id, certificates.issuer_id),
	file_hash   = COALESCE(excluded.file_hash, certificates.file_hash),
	file_name   = COALESCE(excluded.file_name, certificates.file_name),
	file_ext    = COALESCE(excluded.file_ext, certificates.file_ext),
	name_norm   = COALESCE(excluded.name_norm, certificates.name_norm),
	roll_norm   = COALESCE(excluded.roll_norm, certificates.roll_norm),
	course_norm = COALESCE(excluded.course_norm, certificates.course_norm),
	updated_at  = excluded.updated_at
RETURNING ` + recordColumns

func (s *SQLiteStore) Upsert(ctx context.Context, in model.RecordInput) (bool, *model.CertificateRecord, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	row := s.db.QueryRowContext(ctx, sqliteUpsert, upsertArgs(id, in, now)...)
	rec, err := scanRecord(row)
	if err != nil {
		return false, nil, eris.Wrap(err, "sqlite: upsert certificate")
	}
	return rec.ID == id, rec, nil
}

func (s *SQLiteStore) GetByID(ctx context.Context, certificateID string) (*model.CertificateRecord, error) {
	norm := model.Normalize(certificateID)
	if norm == "" {
		return nil, nil
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM certificates WHERE certificate_id_norm = ? LIMIT 1`,
		norm,
	)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get certificate %s", certificateID)
	}
	return rec, nil
}

func (s *SQLiteStore) FindCandidate(ctx context.Context, name, roll, course string) (*model.CertificateRecord, error) {
	nName := model.Normalize(name)
	nRoll := model.Normalize(roll)
	nCourse := model.Normalize(course)
	if nName == "" && nRoll == "" && nCourse == "" {
		return nil, nil
	}

	// Exact match on every provided criterion.
	query := `SELECT ` + recordColumns + ` FROM certificates WHERE 1=1`
	var args []any
	if nName != "" {
		query += ` AND name_norm = ?`
		args = append(args, nName)
	}
	if nRoll != "" {
		query += ` AND roll_norm = ?`
		args = append(args, nRoll)
	}
	if nCourse != "" {
		query += ` AND course_norm = ?`
		args = append(args, nCourse)
	}
	query += ` ORDER BY created_at ASC LIMIT 1`

	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, args...))
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrap(err, "sqlite: find candidate")
	}

	// Relax to roll-only and filter the rest in memory.
	if nRoll == "" {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM certificates WHERE roll_norm = ? ORDER BY created_at ASC`,
		nRoll,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: find candidate by roll")
	}
	defer rows.Close()

	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan candidate")
		}
		if matchesCriteria(r, nName, nCourse) {
			return r, nil
		}
	}
	return nil, eris.Wrap(rows.Err(), "sqlite: find candidate iterate")
}

func (s *SQLiteStore) ImportMany(ctx context.Context, inputs []model.RecordInput) (model.ImportSummary, error) {
	var sum model.ImportSummary
	for _, in := range inputs {
		inserted, _, err := s.Upsert(ctx, in)
		if err != nil {
			return sum, err
		}
		if inserted {
			sum.Inserted++
		} else {
			sum.Updated++
		}
		sum.Total++
	}
	return sum, nil
}

func (s *SQLiteStore) List(ctx context.Context, limit, offset int) ([]model.CertificateRecord, int, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM certificates`).Scan(&total); err != nil {
		return nil, 0, eris.Wrap(err, "sqlite: count certificates")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM certificates ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, eris.Wrap(err, "sqlite: list certificates")
	}
	defer rows.Close()

	var items []model.CertificateRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, 0, eris.Wrap(err, "sqlite: scan certificate")
		}
		items = append(items, *r)
	}
	return items, total, eris.Wrap(rows.Err(), "sqlite: list certificates iterate")
}

func (s *SQLiteStore) Stats(ctx context.Context) (model.RegistryStats, error) {
	stats := model.RegistryStats{Driver: "sqlite"}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM certificates`).Scan(&stats.Certificates); err != nil {
		return stats, eris.Wrap(err, "sqlite: count certificates")
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM verifications`).Scan(&stats.Logs); err != nil {
		return stats, eris.Wrap(err, "sqlite: count verifications")
	}
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT issuer) FROM certificates WHERE issuer IS NOT NULL AND issuer <> ''`,
	).Scan(&stats.Issuers)
	return stats, eris.Wrap(err, "sqlite: count issuers")
}

func (s *SQLiteStore) LogVerification(ctx context.Context, entry model.VerificationLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO verifications
		 (id, type, certificate_id, file_hash, verdict, matched_by, admin_role, issuer_id, inserted, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Type, entry.CertificateID, entry.FileHash,
		entry.Verdict, entry.MatchedBy, entry.AdminRole, entry.IssuerID,
		entry.Inserted, entry.Timestamp,
	)
	return eris.Wrap(err, "sqlite: insert verification log")
}
