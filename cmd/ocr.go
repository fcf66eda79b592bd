package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/certledger/certverify/internal/extract"
	"github.com/certledger/certverify/internal/parse"
)

var ocrCmd = &cobra.Command{
	Use:   "ocr <file>",
	Short: "Extract text and identity fields from a certificate document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, kind, err := readDocument(args[0])
		if err != nil {
			return err
		}

		engine := extract.New(cfg.Extract)
		res, err := engine.Extract(cmd.Context(), data, kind)
		if err != nil {
			return eris.Wrap(err, "ocr")
		}

		return printJSON(struct {
			extract.Result
			Fields parse.ParsedFields `json:"fields"`
		}{Result: res, Fields: parse.Fields(res.Text)})
	},
}

func init() {
	rootCmd.AddCommand(ocrCmd)
}
