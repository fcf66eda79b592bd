package main

import (
	"github.com/spf13/cobra"

	"github.com/certledger/certverify/internal/extract"
	"github.com/certledger/certverify/internal/verify"
)

var verifyCmd = &cobra.Command{
	Use:   "verify [file]",
	Short: "Verify a certificate against the registry",
	Long:  "Verifies a certificate document or directly supplied fields. Explicitly supplied fields win over anything extracted from the document.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := verify.Input{}
		in.CertificateID, _ = cmd.Flags().GetString("id")
		in.Name, _ = cmd.Flags().GetString("name")
		in.RollNumber, _ = cmd.Flags().GetString("roll")
		in.Course, _ = cmd.Flags().GetString("course")
		in.FileHash, _ = cmd.Flags().GetString("hash")
		in.CodePayload, _ = cmd.Flags().GetString("code")

		if len(args) == 1 {
			data, kind, err := readDocument(args[0])
			if err != nil {
				return err
			}
			in.Data = data
			in.Kind = kind
		}

		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		engine := verify.New(st, extract.New(cfg.Extract))
		verdict, err := engine.Verify(ctx, in)
		if err != nil {
			return err
		}

		return printJSON(verdict)
	},
}

func init() {
	verifyCmd.Flags().String("id", "", "certificate id")
	verifyCmd.Flags().String("name", "", "holder name")
	verifyCmd.Flags().String("roll", "", "roll number")
	verifyCmd.Flags().String("course", "", "course name")
	verifyCmd.Flags().String("hash", "", "expected file hash (sha-256 hex)")
	verifyCmd.Flags().String("code", "", "raw code payload (e.g. decoded QR content)")
	rootCmd.AddCommand(verifyCmd)
}
