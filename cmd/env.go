package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/certledger/certverify/internal/extract"
	"github.com/certledger/certverify/internal/store"
)

// initStore opens the configured registry backend and runs migrations.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.New(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

// readDocument loads a certificate document from disk and classifies it by
// extension.
func readDocument(path string) ([]byte, extract.MediaKind, error) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	kind, ok := extract.KindForExt(ext)
	if !ok {
		return nil, "", eris.Errorf("unsupported file type %q", ext)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", eris.Wrap(err, "read document")
	}
	return data, kind, nil
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
