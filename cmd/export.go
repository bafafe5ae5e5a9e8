package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/parity/internal/fault"
)

var exportCmd = &cobra.Command{
	Use:   "export <deal-id>",
	Short: "Run the analysis pipeline and export an immutable snapshot",
	Long:  "Gates on document readiness, reuses the latest snapshot when nothing changed, and otherwise computes a fresh analysis run and a content-addressed snapshot.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		requestedBy, _ := cmd.Flags().GetString("requested-by")

		svc := newIngestService(st)
		res, err := svc.Export(ctx, args[0], requestedBy)
		if err != nil {
			if fault.IsKind(err, fault.KindDocumentsNotReady) {
				return eris.Wrap(err, "export: documents not ready")
			}
			return eris.Wrap(err, "export")
		}

		out := cmd.OutOrStdout()
		if res.Reused {
			fmt.Fprintf(out, "snapshot %s reused (nothing changed since %s)\n",
				res.Snapshot.ID, res.Snapshot.CreatedAt.Format("2006-01-02 15:04:05 MST"))
			return nil
		}

		fmt.Fprintf(out, "Run:                  %s\n", res.Run.ID)
		fmt.Fprintf(out, "Coverage:             %d bp\n", res.Run.CoverageBP)
		fmt.Fprintf(out, "Reconciliation:       %s\n", res.Run.ReconciliationStatus)
		fmt.Fprintf(out, "Final confidence:     %d bp (%s)\n", res.Run.FinalConfidenceBP, res.Run.Tier)
		fmt.Fprintf(out, "Snapshot:             %s\n", res.Snapshot.ID)
		fmt.Fprintf(out, "Financial state hash: %s\n", res.Snapshot.FinancialStateHash)
		fmt.Fprintf(out, "SHA-256:              %s\n", res.Snapshot.SHA256Hash)
		return nil
	},
}

func init() {
	exportCmd.Flags().String("requested-by", "", "requester identifier")
	rootCmd.AddCommand(exportCmd)
}
