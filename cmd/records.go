package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/certledger/certverify/internal/model"
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Inspect the certificate registry",
	Long:  "Commands for listing registered certificates and registry statistics.",
}

// -- records list --

var recordsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered certificates",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		records, total, err := st.List(ctx, limit, offset)
		if err != nil {
			return eris.Wrap(err, "records list")
		}

		if len(records) == 0 {
			fmt.Fprintln(os.Stderr, "No records found.")
			return nil
		}

		formatRecordsList(os.Stdout, records, total)
		return nil
	},
}

// -- records stats --

var recordsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate registry statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		stats, err := st.Stats(ctx)
		if err != nil {
			return eris.Wrap(err, "records stats")
		}

		formatRegistryStats(os.Stdout, stats)
		return nil
	},
}

func init() {
	recordsListCmd.Flags().Int("limit", 50, "max number of records to display")
	recordsListCmd.Flags().Int("offset", 0, "number of records to skip")

	recordsCmd.AddCommand(recordsListCmd)
	recordsCmd.AddCommand(recordsStatsCmd)
	rootCmd.AddCommand(recordsCmd)
}

// formatRecordsList writes a tabular list of records to w.
func formatRecordsList(out io.Writer, records []model.CertificateRecord, total int) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CERTIFICATE_ID\tNAME\tROLL\tCOURSE\tISSUER\tCREATED")
	_, _ = fmt.Fprintln(w, "--------------\t----\t----\t------\t------\t-------")

	for _, r := range records {
		name := r.Name
		if len(name) > 30 {
			name = name[:27] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.CertificateID,
			name,
			r.RollNumber,
			r.Course,
			r.Issuer,
			r.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
	fmt.Fprintf(out, "\n%d of %d records\n", len(records), total)
}

// formatRegistryStats writes aggregate stats to w.
func formatRegistryStats(out io.Writer, s model.RegistryStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Certificates:\t%d\n", s.Certificates)
	_, _ = fmt.Fprintf(w, "Verification logs:\t%d\n", s.Logs)
	_, _ = fmt.Fprintf(w, "Distinct issuers:\t%d\n", s.Issuers)
	_, _ = fmt.Fprintf(w, "Backend:\t%s\n", s.Driver)
	_ = w.Flush()
}
