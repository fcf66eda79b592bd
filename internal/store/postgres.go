package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/certledger/certverify/internal/db"
	"github.com/certledger/certverify/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// postgresUpsert mirrors the SQLite statement: atomic merge-upsert keyed on
// the partial unique index over the normalized certificate id. The returned
// id distinguishes insert from update.
const postgresUpsert = `
INSERT INTO certificates (` + recordColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
ON CONFLICT (certificate_id_norm) WHERE certificate_id_norm <> '' DO UPDATE SET
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

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hottest store operations.
var preparedStatements = map[string]string{
	"upsert_certificate": postgresUpsert,
	"get_certificate":    `SELECT ` + recordColumns + ` FROM certificates WHERE certificate_id_norm = $1 LIMIT 1`,
	"insert_verification": `INSERT INTO verifications
		 (id, type, certificate_id, file_hash, verdict, matched_by, admin_role, issuer_id, inserted, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
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
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
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
	inserted       BOOLEAN NOT NULL DEFAULT false,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_verifications_created_at ON verifications(created_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) Upsert(ctx context.Context, in model.RecordInput) (bool, *model.CertificateRecord, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	row := s.pool.QueryRow(ctx, postgresUpsert, upsertArgs(id, in, now)...)
	rec, err := scanRecord(row)
	if err != nil {
		return false, nil, eris.Wrap(err, "postgres: upsert certificate")
	}
	return rec.ID == id, rec, nil
}

func (s *PostgresStore) GetByID(ctx context.Context, certificateID string) (*model.CertificateRecord, error) {
	norm := model.Normalize(certificateID)
	if norm == "" {
		return nil, nil
	}

	row := s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM certificates WHERE certificate_id_norm = $1 LIMIT 1`,
		norm,
	)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get certificate %s", certificateID)
	}
	return rec, nil
}

func (s *PostgresStore) FindCandidate(ctx context.Context, name, roll, course string) (*model.CertificateRecord, error) {
	nName := model.Normalize(name)
	nRoll := model.Normalize(roll)
	nCourse := model.Normalize(course)
	if nName == "" && nRoll == "" && nCourse == "" {
		return nil, nil
	}

	query := `SELECT ` + recordColumns + ` FROM certificates WHERE true`
	var args []any
	if nName != "" {
		args = append(args, nName)
		query += fmt.Sprintf(` AND name_norm = $%d`, len(args))
	}
	if nRoll != "" {
		args = append(args, nRoll)
		query += fmt.Sprintf(` AND roll_norm = $%d`, len(args))
	}
	if nCourse != "" {
		args = append(args, nCourse)
		query += fmt.Sprintf(` AND course_norm = $%d`, len(args))
	}
	query += ` ORDER BY created_at ASC LIMIT 1`

	rec, err := scanRecord(s.pool.QueryRow(ctx, query, args...))
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrap(err, "postgres: find candidate")
	}

	if nRoll == "" {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+recordColumns+` FROM certificates WHERE roll_norm = $1 ORDER BY created_at ASC`,
		nRoll,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find candidate by roll")
	}
	defer rows.Close()

	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan candidate")
		}
		if matchesCriteria(r, nName, nCourse) {
			return r, nil
		}
	}
	return nil, eris.Wrap(rows.Err(), "postgres: find candidate iterate")
}

func (s *PostgresStore) ImportMany(ctx context.Context, inputs []model.RecordInput) (model.ImportSummary, error) {
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

func (s *PostgresStore) List(ctx context.Context, limit, offset int) ([]model.CertificateRecord, int, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM certificates`).Scan(&total); err != nil {
		return nil, 0, eris.Wrap(err, "postgres: count certificates")
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+recordColumns+` FROM certificates ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, eris.Wrap(err, "postgres: list certificates")
	}
	defer rows.Close()

	var items []model.CertificateRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, 0, eris.Wrap(err, "postgres: scan certificate")
		}
		items = append(items, *r)
	}
	return items, total, eris.Wrap(rows.Err(), "postgres: list certificates iterate")
}

func (s *PostgresStore) Stats(ctx context.Context) (model.RegistryStats, error) {
	stats := model.RegistryStats{Driver: "postgres"}

	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM certificates`).Scan(&stats.Certificates); err != nil {
		return stats, eris.Wrap(err, "postgres: count certificates")
	}
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM verifications`).Scan(&stats.Logs); err != nil {
		return stats, eris.Wrap(err, "postgres: count verifications")
	}
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(DISTINCT issuer) FROM certificates WHERE issuer IS NOT NULL AND issuer <> ''`,
	).Scan(&stats.Issuers)
	return stats, eris.Wrap(err, "postgres: count issuers")
}

func (s *PostgresStore) LogVerification(ctx context.Context, entry model.VerificationLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO verifications
		 (id, type, certificate_id, file_hash, verdict, matched_by, admin_role, issuer_id, inserted, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		entry.ID, entry.Type, entry.CertificateID, entry.FileHash,
		entry.Verdict, entry.MatchedBy, entry.AdminRole, entry.IssuerID,
		entry.Inserted, entry.Timestamp,
	)
	return eris.Wrap(err, "postgres: insert verification log")
}
