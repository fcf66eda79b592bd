package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certledger/certverify/internal/extract"
)

func TestReadDocument(t *testing.T) {
	dir := t.TempDir()

	imgPath := filepath.Join(dir, "cert.PNG")
	require.NoError(t, os.WriteFile(imgPath, []byte("png bytes"), 0o644))

	data, kind, err := readDocument(imgPath)
	require.NoError(t, err)
	assert.Equal(t, extract.MediaImage, kind, "extension match is case-insensitive")
	assert.Equal(t, []byte("png bytes"), data)

	pdfPath := filepath.Join(dir, "cert.pdf")
	require.NoError(t, os.WriteFile(pdfPath, []byte("%PDF"), 0o644))
	_, kind, err = readDocument(pdfPath)
	require.NoError(t, err)
	assert.Equal(t, extract.MediaPDF, kind)
}

func TestReadDocument_UnsupportedExtension(t *testing.T) {
	_, _, err := readDocument(filepath.Join(t.TempDir(), "cert.docx"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file type")
}

func TestReadDocument_MissingFile(t *testing.T) {
	_, _, err := readDocument(filepath.Join(t.TempDir(), "absent.png"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read document")
}
