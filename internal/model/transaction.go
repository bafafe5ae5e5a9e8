package model

// Role is the classification assigned to a non-transfer transaction.
type Role string

const (
	RoleRevenueOperational    Role = "revenue_operational"
	RoleRevenueNonOperational Role = "revenue_non_operational"
	RoleSupplier              Role = "supplier"
	RolePayroll               Role = "payroll"
	RoleOther                 Role = "other"
	RoleTransfer              Role = "transfer"
)

// revenueRoles is the set whose boundary determines major override weight.
var revenueRoles = map[Role]bool{
	RoleRevenueOperational:    true,
	RoleRevenueNonOperational: true,
}

// IsRevenue reports whether r is a revenue-side role.
func (r Role) IsRevenue() bool { return revenueRoles[r] }

// Transaction is the canonical parsed bank-transaction record. Immutable
// once written, except IsTransfer which the transfer matcher sets exactly
// once, and Role which classification recomputes on every pipeline run.
type Transaction struct {
	TxnID                string `json:"txn_id"`
	DealID               string `json:"deal_id"`
	DocumentID           string `json:"document_id"`
	Date                 string `json:"txn_date"` // YYYY-MM-DD
	AmountCents          int64  `json:"signed_amount_cents"`
	RawDescriptor        string `json:"raw_descriptor"`
	ParsedDescriptor     string `json:"parsed_descriptor"`
	NormalizedDescriptor string `json:"normalized_descriptor"`
	AccountID            string `json:"account_id"`
	IsTransfer           bool   `json:"is_transfer"`
	Role                 Role   `json:"role"`
}

// AbsAmountCents is the unsigned volume this transaction contributes.
func (t *Transaction) AbsAmountCents() int64 {
	if t.AmountCents < 0 {
		return -t.AmountCents
	}
	return t.AmountCents
}

// SortTransactions orders records by (date, account, amount, normalized
// descriptor, txn_id). This ordering is what makes every downstream hash
// invariant to input row order.
func SortTransactions(txns []Transaction) {
	sortSlice(txns, func(a, b Transaction) bool {
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.AccountID != b.AccountID {
			return a.AccountID < b.AccountID
		}
		if a.AmountCents != b.AmountCents {
			return a.AmountCents < b.AmountCents
		}
		if a.NormalizedDescriptor != b.NormalizedDescriptor {
			return a.NormalizedDescriptor < b.NormalizedDescriptor
		}
		return a.TxnID < b.TxnID
	})
}

// TransferLink pairs the two legs of a detected intra-deal transfer.
// Created only by the transfer matcher, never updated.
type TransferLink struct {
	ID               string `json:"id"`
	DealID           string `json:"deal_id"`
	TxnOutID         string `json:"txn_out_id"` // negative leg
	TxnInID          string `json:"txn_in_id"`  // positive leg
	AbsAmountCents   int64  `json:"abs_amount_cents"`
	MatchRuleVersion string `json:"match_rule_version"`
}

// SortTransferLinks orders links by (txn_out_id, txn_in_id).
func SortTransferLinks(links []TransferLink) {
	sortSlice(links, func(a, b TransferLink) bool {
		if a.TxnOutID != b.TxnOutID {
			return a.TxnOutID < b.TxnOutID
		}
		return a.TxnInID < b.TxnInID
	})
}
