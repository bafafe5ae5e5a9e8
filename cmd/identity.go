package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/sells-group/parity/internal/version"
)

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Print the pipeline identity descriptor",
	Long:  "Prints schema version, config version, and deterministic mode. Two deployments with the same identity produce byte-identical snapshots for identical inputs.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(version.Current())
	},
}

func init() {
	rootCmd.AddCommand(identityCmd)
}
