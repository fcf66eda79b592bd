package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strOf(t *testing.T, p *string) string {
	t.Helper()
	require.NotNil(t, p)
	return *p
}

func TestFields_FullCertificate(t *testing.T) {
	text := `
		ACME Institute of Technology
		Certificate ID: CERT-2024/0042
		Student Name: Jane Doe
		Roll No. 2021CS001
		Course: B.Tech Computer Science & Engineering
	`
	f := Fields(text)
	assert.Equal(t, "CERT-2024/0042", strOf(t, f.CertificateID))
	assert.Equal(t, "Jane Doe", strOf(t, f.Name))
	assert.Equal(t, "2021CS001", strOf(t, f.RollNumber))
	assert.Equal(t, "B.Tech Computer Science & Engineering", strOf(t, f.Course))
}

func TestFields_LabelSynonyms(t *testing.T) {
	cases := []struct {
		text string
		want string
		get  func(ParsedFields) *string
	}{
		{"Cert No. ABC-123", "ABC-123", func(f ParsedFields) *string { return f.CertificateID }},
		{"Serial No: XYZ/9", "XYZ/9", func(f ParsedFields) *string { return f.CertificateID }},
		{"certificate id: lower-42", "lower-42", func(f ParsedFields) *string { return f.CertificateID }},
		{"Enrollment No. EN-77", "EN-77", func(f ParsedFields) *string { return f.RollNumber }},
		{"Registration No: R2020", "R2020", func(f ParsedFields) *string { return f.RollNumber }},
		{"Candidate: John Smith", "John Smith", func(f ParsedFields) *string { return f.Name }},
		{"Name - Mary Ann O. Brien", "Mary Ann O. Brien", func(f ParsedFields) *string { return f.Name }},
		{"Programme: M.Sc Physics", "M.Sc Physics", func(f ParsedFields) *string { return f.Course }},
		{"Degree: BBA", "BBA", func(f ParsedFields) *string { return f.Course }},
	}
	for _, tc := range cases {
		f := Fields(tc.text)
		assert.Equal(t, tc.want, strOf(t, tc.get(f)), "text %q", tc.text)
	}
}

func TestFields_AbsentFieldsAreNil(t *testing.T) {
	f := Fields("nothing recognizable in this text at all")
	assert.Nil(t, f.CertificateID)
	assert.Nil(t, f.RollNumber)
	assert.Nil(t, f.Name)
	assert.Nil(t, f.Course)
}

func TestFields_EmptyValueIsNil(t *testing.T) {
	// A label with no value after it must not yield an empty-string field.
	f := Fields("Name:   ")
	assert.Nil(t, f.Name)
}

func TestFields_FirstLabelWins(t *testing.T) {
	f := Fields("Certificate ID: FIRST-1\nSerial No: SECOND-2")
	assert.Equal(t, "FIRST-1", strOf(t, f.CertificateID))
}

func TestCode_ResolutionOrder(t *testing.T) {
	t.Run("structured object", func(t *testing.T) {
		c := Code(`{"certificate_id":"X1"}`)
		assert.Equal(t, "X1", strOf(t, c.CandidateID))
		assert.Nil(t, c.CandidateHash)
	})
	t.Run("url query", func(t *testing.T) {
		c := Code("https://x/y?certificate_id=X2")
		assert.Equal(t, "X2", strOf(t, c.CandidateID))
	})
	t.Run("raw token scan", func(t *testing.T) {
		// "random-text" is long enough but has no digit; identifier tokens
		// need at least one.
		c := Code("random-text ABCDE12345 more")
		assert.Equal(t, "ABCDE12345", strOf(t, c.CandidateID))
		assert.Nil(t, c.CandidateHash)
	})
	t.Run("token scan skips short tokens", func(t *testing.T) {
		c := Code("ab c1 ABCDE12345 more")
		assert.Equal(t, "ABCDE12345", strOf(t, c.CandidateID))
	})
}

func TestCode_KeySynonyms(t *testing.T) {
	c := Code(`{"cert_id":"C-1","hash":"deadbeef"}`)
	assert.Equal(t, "C-1", strOf(t, c.CandidateID))
	assert.Equal(t, "deadbeef", strOf(t, c.CandidateHash))

	c = Code(`{"id":"C-2","file_hash":"cafe"}`)
	assert.Equal(t, "C-2", strOf(t, c.CandidateID))
	assert.Equal(t, "cafe", strOf(t, c.CandidateHash))
}

func TestCode_ObjectWithoutKnownKeysFallsThrough(t *testing.T) {
	// Valid JSON but no accepted keys: the token scanner still gets a shot.
	c := Code(`{"other":"CERTXX-99"}`)
	assert.Equal(t, "CERTXX-99", strOf(t, c.CandidateID))
}

func TestCode_QueryHashOnly(t *testing.T) {
	c := Code("https://verify.example/c?file_hash=abc123def456")
	assert.Nil(t, c.CandidateID)
	assert.Equal(t, "abc123def456", strOf(t, c.CandidateHash))
}

func TestCode_NonStringJSONValueIgnored(t *testing.T) {
	c := Code(`{"certificate_id":12345,"file_hash":"feed00"}`)
	assert.Nil(t, c.CandidateID)
	assert.Equal(t, "feed00", strOf(t, c.CandidateHash))
}

func TestCode_TotalFailureIsAllNil(t *testing.T) {
	c := Code("!!! ??")
	assert.True(t, c.Empty())

	c = Code("")
	assert.True(t, c.Empty())
	assert.Empty(t, c.Raw)
}
