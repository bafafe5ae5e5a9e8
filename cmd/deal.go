package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/parity/internal/model"
)

var dealCmd = &cobra.Command{
	Use:   "deal",
	Short: "Manage deals under analysis",
}

var dealCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a deal, optionally with an accrual revenue reference",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		currency, _ := cmd.Flags().GetString("currency")
		createdBy, _ := cmd.Flags().GetString("created-by")
		accrualCents, _ := cmd.Flags().GetInt64("accrual-revenue-cents")
		accrualStart, _ := cmd.Flags().GetString("accrual-period-start")
		accrualEnd, _ := cmd.Flags().GetString("accrual-period-end")

		deal := &model.Deal{
			Name:      args[0],
			Currency:  currency,
			CreatedBy: createdBy,
		}
		if accrualCents != 0 {
			if accrualStart == "" || accrualEnd == "" {
				return eris.New("deal create: accrual reference needs --accrual-period-start and --accrual-period-end")
			}
			deal.Accrual = &model.Accrual{
				RevenueCents: accrualCents,
				PeriodStart:  accrualStart,
				PeriodEnd:    accrualEnd,
			}
		}

		created, err := st.CreateDeal(ctx, deal)
		if err != nil {
			return eris.Wrap(err, "deal create")
		}

		fmt.Fprintf(cmd.OutOrStdout(), "created deal %s (%s, %s)\n", created.ID, created.Name, created.Currency)
		return nil
	},
}

var dealShowCmd = &cobra.Command{
	Use:   "show <deal-id>",
	Short: "Show a deal and its documents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		deal, err := st.GetDeal(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "deal show")
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Deal:     %s\n", deal.ID)
		fmt.Fprintf(out, "Name:     %s\n", deal.Name)
		fmt.Fprintf(out, "Currency: %s\n", deal.Currency)
		if deal.Accrual != nil {
			fmt.Fprintf(out, "Accrual:  %d cents over %s..%s\n",
				deal.Accrual.RevenueCents, deal.Accrual.PeriodStart, deal.Accrual.PeriodEnd)
		}

		docs, err := st.ListDocuments(ctx, deal.ID)
		if err != nil {
			return eris.Wrap(err, "deal show: documents")
		}
		if len(docs) == 0 {
			fmt.Fprintln(os.Stderr, "No documents.")
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "DOCUMENT\tFILE\tTYPE\tSTATUS\tERROR")
		for _, d := range docs {
			errCol := ""
			if d.Status == model.DocStatusFailed {
				errCol = d.ErrorType + " @ " + d.ErrorStage
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", d.ID, d.FileName, d.FileType, d.Status, errCol)
		}
		return w.Flush()
	},
}

func init() {
	dealCreateCmd.Flags().String("currency", "USD", "deal currency (ISO code)")
	dealCreateCmd.Flags().String("created-by", "", "creator identifier")
	dealCreateCmd.Flags().Int64("accrual-revenue-cents", 0, "declared accrual revenue in cents")
	dealCreateCmd.Flags().String("accrual-period-start", "", "accrual period start (YYYY-MM-DD)")
	dealCreateCmd.Flags().String("accrual-period-end", "", "accrual period end (YYYY-MM-DD)")

	dealCmd.AddCommand(dealCreateCmd, dealShowCmd)
	rootCmd.AddCommand(dealCmd)
}
