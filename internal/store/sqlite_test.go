package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certledger/certverify/internal/config"
	"github.com/certledger/certverify/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "certs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func strPtr(s string) *string { return &s }

func fullInput(certID string) model.RecordInput {
	return model.RecordInput{
		CertificateID: certID,
		Name:          strPtr("Jane Doe"),
		RollNumber:    strPtr("2021CS001"),
		Course:        strPtr("B.Tech CSE"),
		Issuer:        strPtr("ACME Institute"),
		FileHash:      strPtr("aaaa1111"),
	}
}

func TestUpsert_InsertThenIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	inserted, first, err := s.Upsert(ctx, fullInput("CERT-1"))
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, "CERT-1", first.CertificateID)
	assert.Equal(t, "cert-1", model.Normalize(first.CertificateID))
	assert.Equal(t, "janedoe", first.NameNormalized)

	inserted, second, err := s.Upsert(ctx, fullInput("CERT-1"))
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Name, second.Name)
	assert.Equal(t, first.RollNumber, second.RollNumber)
	assert.Equal(t, first.Course, second.Course)
	assert.Equal(t, first.FileHash, second.FileHash)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
}

func TestUpsert_MergeKeepsExistingOnNil(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, _, err := s.Upsert(ctx, fullInput("CERT-2"))
	require.NoError(t, err)

	// Only course supplied: everything else must survive the merge.
	inserted, rec, err := s.Upsert(ctx, model.RecordInput{
		CertificateID: "CERT-2",
		Course:        strPtr("M.Tech CSE"),
	})
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, "Jane Doe", rec.Name)
	assert.Equal(t, "2021CS001", rec.RollNumber)
	assert.Equal(t, "aaaa1111", rec.FileHash)
	assert.Equal(t, "M.Tech CSE", rec.Course)
	assert.Equal(t, "m.techcse", rec.CourseNormalized)
}

func TestUpsert_NonNilEmptyOverwrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, _, err := s.Upsert(ctx, fullInput("CERT-3"))
	require.NoError(t, err)

	_, rec, err := s.Upsert(ctx, model.RecordInput{
		CertificateID: "CERT-3",
		Name:          strPtr(""),
	})
	require.NoError(t, err)
	assert.Empty(t, rec.Name, "a supplied empty string is an overwrite, not an omission")
	assert.Empty(t, rec.NameNormalized)
}

func TestUpsert_CaseAndSpaceInsensitiveCollision(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	inserted, _, err := s.Upsert(ctx, fullInput("CERT-4"))
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, rec, err := s.Upsert(ctx, model.RecordInput{CertificateID: "  cert-4 "})
	require.NoError(t, err)
	assert.False(t, inserted, "ids differing only in case/whitespace are the same record")
	assert.Equal(t, "cert-4", rec.CertificateID, "stored casing follows the latest write")
}

func TestUpsert_EmptyIDAlwaysInserts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		inserted, _, err := s.Upsert(ctx, model.RecordInput{Name: strPtr("Anon")})
		require.NoError(t, err)
		assert.True(t, inserted)
	}

	rec, err := s.GetByID(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, rec, "empty ids are never matched by exact lookup")

	_, total, err := s.List(ctx, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestGetByID_Normalized(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, _, err := s.Upsert(ctx, fullInput("CERT-5"))
	require.NoError(t, err)

	rec, err := s.GetByID(ctx, "  CeRt-5 ")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "CERT-5", rec.CertificateID)

	rec, err = s.GetByID(ctx, "cert-404")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestFindCandidate_Normalization(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, _, err := s.Upsert(ctx, model.RecordInput{
		CertificateID: "CERT-6",
		Name:          strPtr("  jane   doe "),
	})
	require.NoError(t, err)

	for _, name := range []string{"Jane Doe", "JANE DOE", " jane doe "} {
		rec, err := s.FindCandidate(ctx, name, "", "")
		require.NoError(t, err)
		require.NotNil(t, rec, "name %q", name)
		assert.Equal(t, "CERT-6", rec.CertificateID)
	}
}

func TestFindCandidate_RollRelaxation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Record has roll and name but no course on file.
	_, _, err := s.Upsert(ctx, model.RecordInput{
		CertificateID: "CERT-7",
		Name:          strPtr("Jane Doe"),
		RollNumber:    strPtr("2021CS001"),
	})
	require.NoError(t, err)

	rec, err := s.FindCandidate(ctx, "", "2021cs 001", "")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "CERT-7", rec.CertificateID)

	// Roll matches, provided name matches after relaxation.
	rec, err = s.FindCandidate(ctx, "JANE DOE", "2021CS001", "")
	require.NoError(t, err)
	assert.NotNil(t, rec)

	// Roll matches but the provided name contradicts the record.
	rec, err = s.FindCandidate(ctx, "John Smith", "2021CS001", "")
	require.NoError(t, err)
	assert.Nil(t, rec)

	// Provided course contradicts a record with no course on file.
	rec, err = s.FindCandidate(ctx, "Jane Doe", "2021CS001", "B.Sc Math")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestFindCandidate_NoCriteria(t *testing.T) {
	s := newTestStore(t)

	_, _, err := s.Upsert(context.Background(), fullInput("CERT-8"))
	require.NoError(t, err)

	rec, err := s.FindCandidate(context.Background(), "", "  ", "")
	require.NoError(t, err)
	assert.Nil(t, rec, "absence of all criteria must never return an arbitrary record")
}

func TestImportMany_Counts(t *testing.T) {
	s := newTestStore(t)

	sum, err := s.ImportMany(context.Background(), []model.RecordInput{
		fullInput("IMP-1"),
		fullInput("IMP-2"),
		{CertificateID: "imp-1", Course: strPtr("Updated Course")},
	})
	require.NoError(t, err)
	assert.Equal(t, model.ImportSummary{Inserted: 2, Updated: 1, Total: 3}, sum)
}

func TestList_OrderAndPagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"L-1", "L-2", "L-3"} {
		_, _, err := s.Upsert(ctx, model.RecordInput{CertificateID: id})
		require.NoError(t, err)
	}

	items, total, err := s.List(ctx, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, items, 2)
	assert.Equal(t, "L-3", items[0].CertificateID, "newest first")
	assert.Equal(t, "L-2", items[1].CertificateID)

	items, _, err = s.List(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "L-1", items[0].CertificateID)
}

func TestStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, _, err := s.Upsert(ctx, model.RecordInput{CertificateID: "S-1", Issuer: strPtr("ACME")})
	require.NoError(t, err)
	_, _, err = s.Upsert(ctx, model.RecordInput{CertificateID: "S-2", Issuer: strPtr("ACME")})
	require.NoError(t, err)
	_, _, err = s.Upsert(ctx, model.RecordInput{CertificateID: "S-3"})
	require.NoError(t, err)

	require.NoError(t, s.LogVerification(ctx, model.VerificationLog{
		Type:          "verification",
		CertificateID: "S-1",
		Verdict:       "valid",
		MatchedBy:     "certificate_id",
	}))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Certificates)
	assert.Equal(t, 1, stats.Logs)
	assert.Equal(t, 1, stats.Issuers)
	assert.Equal(t, "sqlite", stats.Driver)
}

func TestNew_DriverSelection(t *testing.T) {
	s, err := New(context.Background(), config.StoreConfig{
		Driver:      "sqlite",
		DatabaseURL: filepath.Join(t.TempDir(), "x.db"),
	})
	require.NoError(t, err)
	defer s.Close()
	assert.IsType(t, &SQLiteStore{}, s)

	_, err = New(context.Background(), config.StoreConfig{Driver: "mongodb"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")
}
