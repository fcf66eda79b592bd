package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certledger/certverify/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

var recordColumnNames = []string{
	"id", "certificate_id", "certificate_id_norm",
	"name", "roll_number", "course", "issue_date", "issuer", "issuer_id",
	"file_hash", "file_name", "file_ext",
	"name_norm", "roll_norm", "course_norm",
	"created_at", "updated_at",
}

// upsertArgMatchers matches the 17 bound upsert arguments for an input
// carrying only a certificate id: the generated uuid and both timestamps are
// AnyArg, every optional field binds NULL.
func upsertArgMatchers(certID string) []any {
	args := []any{pgxmock.AnyArg(), certID, model.Normalize(certID)}
	for i := 0; i < 12; i++ {
		args = append(args, nil)
	}
	return append(args, pgxmock.AnyArg(), pgxmock.AnyArg())
}

func certRow(id, certID, name, roll string) *pgxmock.Rows {
	now := time.Now().UTC()
	return pgxmock.NewRows(recordColumnNames).AddRow(
		id, certID, model.Normalize(certID),
		name, roll, nil, nil, nil, nil,
		nil, nil, nil,
		model.Normalize(name), model.Normalize(roll), nil,
		now, now,
	)
}

func TestPostgresStore_Upsert_ExistingRecordIsUpdate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	// The returned id is not the freshly generated one, so this was a merge
	// into an existing row.
	mock.ExpectQuery(`INSERT INTO certificates`).
		WithArgs(upsertArgMatchers("CERT-1")...).
		WillReturnRows(certRow("stored-id", "CERT-1", "Jane Doe", "2021CS001"))

	inserted, rec, err := s.Upsert(context.Background(), model.RecordInput{CertificateID: "CERT-1"})
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, "stored-id", rec.ID)
	assert.Equal(t, "Jane Doe", rec.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Upsert_ErrorPropagates(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`INSERT INTO certificates`).
		WithArgs(upsertArgMatchers("CERT-1")...).
		WillReturnError(pgx.ErrTxClosed)

	_, _, err := s.Upsert(context.Background(), model.RecordInput{CertificateID: "CERT-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert certificate")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetByID_Found(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .+ FROM certificates WHERE certificate_id_norm = \$1`).
		WithArgs("cert-1").
		WillReturnRows(certRow("id-1", "CERT-1", "Jane Doe", "2021CS001"))

	rec, err := s.GetByID(context.Background(), "  CERT-1 ")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "CERT-1", rec.CertificateID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetByID_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .+ FROM certificates WHERE certificate_id_norm = \$1`).
		WithArgs("cert-404").
		WillReturnError(pgx.ErrNoRows)

	rec, err := s.GetByID(context.Background(), "CERT-404")
	require.NoError(t, err, "no rows is an absent record, not a store failure")
	assert.Nil(t, rec)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetByID_EmptyID(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rec, err := s.GetByID(context.Background(), "   ")
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.NoError(t, mock.ExpectationsWereMet(), "empty ids never touch the database")
}

func TestPostgresStore_FindCandidate_RollRelaxation(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	// Exact multi-criteria query misses.
	mock.ExpectQuery(`SELECT .+ FROM certificates WHERE true AND name_norm = \$1 AND roll_norm = \$2`).
		WithArgs("janedoe", "2021cs001").
		WillReturnError(pgx.ErrNoRows)

	// Roll-only relaxation returns two rows; the first contradicts the
	// provided name and is filtered out in memory.
	rows := pgxmock.NewRows(recordColumnNames)
	now := time.Now().UTC()
	rows.AddRow("id-a", "CERT-A", "certa", "John Smith", "2021CS001", nil, nil, nil, nil,
		nil, nil, nil, "johnsmith", "2021cs001", nil, now, now)
	rows.AddRow("id-b", "CERT-B", "certb", "Jane Doe", "2021CS001", nil, nil, nil, nil,
		nil, nil, nil, "janedoe", "2021cs001", nil, now, now)
	mock.ExpectQuery(`SELECT .+ FROM certificates WHERE roll_norm = \$1`).
		WithArgs("2021cs001").
		WillReturnRows(rows)

	rec, err := s.FindCandidate(context.Background(), "Jane Doe", "2021CS001", "")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "CERT-B", rec.CertificateID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindCandidate_NoCriteria(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rec, err := s.FindCandidate(context.Background(), "", "", "")
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LogVerification(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO verifications`).
		WithArgs(pgxmock.AnyArg(), "verification", "", "", "valid", "", "", "", false, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.LogVerification(context.Background(), model.VerificationLog{
		Type:    "verification",
		Verdict: "valid",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Stats(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM certificates`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(7))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM verifications`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(`SELECT COUNT\(DISTINCT issuer\) FROM certificates`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(2))

	stats, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.RegistryStats{Certificates: 7, Logs: 3, Issuers: 2, Driver: "postgres"}, stats)
	assert.NoError(t, mock.ExpectationsWereMet())
}
