package pipeline

import (
	"strings"

	"github.com/sells-group/parity/internal/model"
)

// keywordGroup maps a substring vocabulary to a classification outcome.
// signSplit groups resolve to revenue_non_operational on inflows and
// supplier on outflows; fixed groups always yield the same role.
type keywordGroup struct {
	keywords  []string
	signSplit bool
	fixed     model.Role
}

// classifierGroups is evaluated strictly in order. Loan keywords come before
// revenue-operational so "loan repayment" matches loan rather than the
// "payment" substring inside "repayment".
var classifierGroups = []keywordGroup{
	{keywords: []string{"loan", "facility", "credit", "disbursement"}, signSplit: true},
	{keywords: []string{"capital", "director", "owner", "shareholder", "investment", "equity"}, signSplit: true},
	{keywords: []string{"reversal", "refund", "chargeback"}, signSplit: true},
	{keywords: []string{"sale", "pos", "mpesa", "payment", "client", "receipt"}, fixed: model.RoleRevenueOperational},
	{keywords: []string{"salary", "payroll", "wages", "staff"}, fixed: model.RolePayroll},
	{keywords: []string{"tax", "kra", "vat", "paye"}, fixed: model.RoleSupplier},
}

// Classify assigns a role to one transaction. Transfers short-circuit; then
// the keyword groups run in order; with no keyword match the sign decides.
// Zero-amount transactions never reach this stage (rejected at parse time).
func Classify(t *model.Transaction) model.Role {
	if t.IsTransfer {
		return model.RoleTransfer
	}

	descriptor := strings.ToLower(t.NormalizedDescriptor)
	for _, group := range classifierGroups {
		if !containsAny(descriptor, group.keywords) {
			continue
		}
		if group.signSplit {
			if t.AmountCents > 0 {
				return model.RoleRevenueNonOperational
			}
			return model.RoleSupplier
		}
		return group.fixed
	}

	if t.AmountCents > 0 {
		return model.RoleRevenueOperational
	}
	if t.AmountCents < 0 {
		return model.RoleSupplier
	}
	return model.RoleOther
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
