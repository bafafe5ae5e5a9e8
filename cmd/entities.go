package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/parity/internal/model"
)

var entitiesCmd = &cobra.Command{
	Use:   "entities",
	Short: "Inspect resolved counterparties",
}

var entitiesListCmd = &cobra.Command{
	Use:   "list <deal-id>",
	Short: "List a deal's entities with their classified roles",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		entities, err := st.ListEntities(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "entities list")
		}
		if len(entities) == 0 {
			fmt.Fprintln(os.Stderr, "No entities found. Run an export first.")
			return nil
		}

		mappings, err := st.ListMappings(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "entities list: load mappings")
		}
		roles := make(map[string]map[model.Role]bool)
		for _, m := range mappings {
			if roles[m.EntityID] == nil {
				roles[m.EntityID] = make(map[model.Role]bool)
			}
			roles[m.EntityID][m.Role] = true
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ENTITY\tDISPLAY NAME\tTXNS\tROLES")
		for _, e := range entities {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
				e.EntityID, e.DisplayName, countRoles(mappings, e.EntityID), roleList(roles[e.EntityID]))
		}
		return w.Flush()
	},
}

func countRoles(mappings []model.TxnEntityMapping, entityID string) int {
	n := 0
	for _, m := range mappings {
		if m.EntityID == entityID {
			n++
		}
	}
	return n
}

func roleList(set map[model.Role]bool) string {
	if len(set) == 0 {
		return "-"
	}
	var out string
	for _, r := range []model.Role{
		model.RoleRevenueOperational, model.RoleRevenueNonOperational,
		model.RoleSupplier, model.RolePayroll, model.RoleOther, model.RoleTransfer,
	} {
		if !set[r] {
			continue
		}
		if out != "" {
			out += ","
		}
		out += string(r)
	}
	return out
}

func init() {
	entitiesCmd.AddCommand(entitiesListCmd)
	rootCmd.AddCommand(entitiesCmd)
}
