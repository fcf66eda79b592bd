package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/certledger/certverify/internal/model"
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Bulk-import certificate records",
	Long:  "Imports records from a JSON, YAML, or XLSX file. Records merge into existing entries by certificate id: supplied fields overwrite, omitted fields keep the stored value.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		records, err := loadRecords(args[0])
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return eris.New("no records found in file")
		}

		if issuerID, _ := cmd.Flags().GetString("issuer-id"); issuerID != "" {
			for i := range records {
				records[i].IssuerID = &issuerID
			}
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		summary, err := st.ImportMany(ctx, records)
		if err != nil {
			return eris.Wrap(err, "import records")
		}

		zap.L().Info("import complete",
			zap.Int("inserted", summary.Inserted),
			zap.Int("updated", summary.Updated),
			zap.String("file", args[0]),
		)
		return printJSON(summary)
	},
}

// loadRecords decodes the import file by extension.
func loadRecords(path string) ([]model.RecordInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "read import file")
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return decodeJSONRecords(data)
	case ".yaml", ".yml":
		return decodeYAMLRecords(data)
	case ".xlsx":
		return decodeXLSXRecords(data)
	default:
		return nil, eris.Errorf("unsupported import format %q", filepath.Ext(path))
	}
}

// decodeJSONRecords accepts either a bare array or {"records": [...]}.
func decodeJSONRecords(data []byte) ([]model.RecordInput, error) {
	var wrapped struct {
		Records []model.RecordInput `json:"records"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && len(wrapped.Records) > 0 {
		return wrapped.Records, nil
	}
	var records []model.RecordInput
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, eris.Wrap(err, "decode json records")
	}
	return records, nil
}

func decodeYAMLRecords(data []byte) ([]model.RecordInput, error) {
	var records []model.RecordInput
	if err := yaml.Unmarshal(data, &records); err != nil {
		return nil, eris.Wrap(err, "decode yaml records")
	}
	return records, nil
}

// decodeXLSXRecords maps columns by header name: the first row holds headers,
// matched case-insensitively with spaces folded to underscores.
func decodeXLSXRecords(data []byte) ([]model.RecordInput, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrap(err, "open xlsx")
	}
	if len(f.Sheets) == 0 || len(f.Sheets[0].Rows) < 2 {
		return nil, nil
	}

	rows := f.Sheets[0].Rows
	headers := make([]string, len(rows[0].Cells))
	for i, c := range rows[0].Cells {
		headers[i] = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(c.String())), " ", "_")
	}

	var records []model.RecordInput
	for _, row := range rows[1:] {
		var in model.RecordInput
		empty := true
		for i, c := range row.Cells {
			if i >= len(headers) {
				break
			}
			v := strings.TrimSpace(c.String())
			if v == "" {
				continue
			}
			empty = false
			switch headers[i] {
			case "certificate_id", "cert_id", "id":
				in.CertificateID = v
			case "name", "student_name":
				in.Name = &v
			case "roll_number", "roll_no", "roll":
				in.RollNumber = &v
			case "course", "programme", "degree":
				in.Course = &v
			case "issue_date":
				in.IssueDate = &v
			case "issuer":
				in.Issuer = &v
			case "issuer_id":
				in.IssuerID = &v
			case "file_hash":
				in.FileHash = &v
			}
		}
		if !empty {
			records = append(records, in)
		}
	}
	return records, nil
}

func init() {
	importCmd.Flags().String("issuer-id", "", "stamp all imported records with this issuer id")
	rootCmd.AddCommand(importCmd)
}
