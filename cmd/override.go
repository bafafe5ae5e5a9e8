package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/parity/internal/model"
)

var overrideCmd = &cobra.Command{
	Use:   "override <deal-id> <entity-id> <new-role>",
	Short: "Record a role override for an entity",
	Long:  "Appends an override to the deal's audit ledger. Weight is derived automatically: revert 0 bp, revenue-boundary crossing 10000 bp, otherwise 5000 bp.",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		createdBy, _ := cmd.Flags().GetString("created-by")

		svc := newIngestService(st)
		ov, err := svc.RecordOverride(ctx, args[0], args[1], model.Role(args[2]), createdBy)
		if err != nil {
			return eris.Wrap(err, "override")
		}

		fmt.Fprintf(cmd.OutOrStdout(), "override %s: %s -> %s (weight %d bp)\n",
			ov.ID, ov.OldValue, ov.NewValue, ov.WeightBP)
		return nil
	},
}

func init() {
	overrideCmd.Flags().String("created-by", "", "analyst identifier")
	rootCmd.AddCommand(overrideCmd)
}
