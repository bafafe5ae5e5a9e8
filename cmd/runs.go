package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect analysis run history",
}

var runsListCmd = &cobra.Command{
	Use:   "list <deal-id>",
	Short: "List analysis runs for a deal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := st.ListRuns(ctx, args[0], limit)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}
		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "RUN\tCREATED\tCOVERAGE\tRECON\tCONFIDENCE\tTIER")
		for _, r := range runs {
			fmt.Fprintf(w, "%s\t%s\t%d bp\t%s\t%d bp\t%s\n",
				r.ID, r.CreatedAt.Format("2006-01-02 15:04"), r.CoverageBP,
				r.ReconciliationStatus, r.FinalConfidenceBP, r.Tier)
		}
		return w.Flush()
	},
}

var snapshotShowCmd = &cobra.Command{
	Use:   "snapshot <snapshot-id>",
	Short: "Print a snapshot's canonical JSON payload",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		sn, err := st.GetSnapshot(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "snapshot show")
		}

		pretty, _ := cmd.Flags().GetBool("pretty")
		if !pretty {
			fmt.Fprintln(cmd.OutOrStdout(), sn.CanonicalJSON)
			return nil
		}

		var v any
		if err := json.Unmarshal([]byte(sn.CanonicalJSON), &v); err != nil {
			return eris.Wrap(err, "snapshot show: decode payload")
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	},
}

func init() {
	runsListCmd.Flags().Int("limit", 20, "max runs to list")
	snapshotShowCmd.Flags().Bool("pretty", false, "indent the payload")

	runsCmd.AddCommand(runsListCmd)
	rootCmd.AddCommand(runsCmd, snapshotShowCmd)
}
