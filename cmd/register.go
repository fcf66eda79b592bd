package main

import (
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/certledger/certverify/internal/extract"
	"github.com/certledger/certverify/internal/model"
	"github.com/certledger/certverify/internal/parse"
	"github.com/certledger/certverify/internal/verify"
)

var registerCmd = &cobra.Command{
	Use:   "register [file]",
	Short: "Register a certificate in the registry",
	Long:  "Registers a certificate from flags plus an optional document. With --auto-ocr, fields not supplied as flags are filled from the document text.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := model.RecordInput{}
		in.CertificateID, _ = cmd.Flags().GetString("id")
		in.Name = flagPtr(cmd, "name")
		in.RollNumber = flagPtr(cmd, "roll")
		in.Course = flagPtr(cmd, "course")
		in.IssueDate = flagPtr(cmd, "issue-date")
		in.Issuer = flagPtr(cmd, "issuer")
		in.IssuerID = flagPtr(cmd, "issuer-id")

		ctx := cmd.Context()

		var docText string
		if len(args) == 1 {
			data, kind, err := readDocument(args[0])
			if err != nil {
				return err
			}
			hash := verify.FileHash(data)
			name := filepath.Base(args[0])
			ext := strings.TrimPrefix(filepath.Ext(args[0]), ".")
			in.FileHash = &hash
			in.FileName = &name
			in.FileExt = &ext

			if autoOCR, _ := cmd.Flags().GetBool("auto-ocr"); autoOCR {
				res, err := extract.New(cfg.Extract).Extract(ctx, data, kind)
				if err != nil {
					return err
				}
				docText = res.Text
			}
		}

		if docText != "" {
			fields := parse.Fields(docText)
			if in.CertificateID == "" && fields.CertificateID != nil {
				in.CertificateID = *fields.CertificateID
			}
			if in.Name == nil {
				in.Name = fields.Name
			}
			if in.RollNumber == nil {
				in.RollNumber = fields.RollNumber
			}
			if in.Course == nil {
				in.Course = fields.Course
			}
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		inserted, rec, err := st.Upsert(ctx, in)
		if err != nil {
			return err
		}

		zap.L().Info("certificate registered",
			zap.String("certificate_id", rec.CertificateID),
			zap.Bool("inserted", inserted),
		)
		return printJSON(map[string]any{
			"success":  true,
			"inserted": inserted,
			"record":   rec,
		})
	},
}

// flagPtr returns the flag value as a pointer, nil when unset or empty.
func flagPtr(cmd *cobra.Command, name string) *string {
	v, _ := cmd.Flags().GetString(name)
	if v == "" {
		return nil
	}
	return &v
}

func init() {
	registerCmd.Flags().String("id", "", "certificate id")
	registerCmd.Flags().String("name", "", "holder name")
	registerCmd.Flags().String("roll", "", "roll number")
	registerCmd.Flags().String("course", "", "course name")
	registerCmd.Flags().String("issue-date", "", "issue date")
	registerCmd.Flags().String("issuer", "", "issuing institution")
	registerCmd.Flags().String("issuer-id", "", "issuer id")
	registerCmd.Flags().Bool("auto-ocr", false, "fill missing fields from the document text")
	rootCmd.AddCommand(registerCmd)
}
