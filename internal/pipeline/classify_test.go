package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/parity/internal/model"
)

func TestClassify_TransferShortCircuits(t *testing.T) {
	tx := txn("t1", "2026-01-10", "acc-a", 50_000, "client payment")
	tx.IsTransfer = true
	assert.Equal(t, model.RoleTransfer, Classify(&tx))
}

func TestClassify_KeywordGroups(t *testing.T) {
	cases := []struct {
		desc  string
		cents int64
		want  model.Role
	}{
		{"loan disbursement", 500_000, model.RoleRevenueNonOperational},
		{"loan repayment", -50_000, model.RoleSupplier}, // loan outranks the payment substring
		{"director capital injection", 200_000, model.RoleRevenueNonOperational},
		{"shareholder drawing", -80_000, model.RoleSupplier},
		{"refund issued", -5_000, model.RoleSupplier},
		{"chargeback received", 5_000, model.RoleRevenueNonOperational},
		{"pos sale batch", 32_000, model.RoleRevenueOperational},
		{"mpesa till settlement", 12_000, model.RoleRevenueOperational},
		{"client payment received", 40_000, model.RoleRevenueOperational},
		{"monthly salary run", -120_000, model.RolePayroll},
		{"staff wages week 3", -30_000, model.RolePayroll},
		{"kra vat remittance", -22_000, model.RoleSupplier},
	}
	for _, tc := range cases {
		tx := txn("t1", "2026-01-10", "acc-a", tc.cents, tc.desc)
		assert.Equal(t, tc.want, Classify(&tx), tc.desc)
	}
}

func TestClassify_SignFallback(t *testing.T) {
	inflow := txn("t1", "2026-01-10", "acc-a", 10_000, "sundries xyz")
	assert.Equal(t, model.RoleRevenueOperational, Classify(&inflow))

	outflow := txn("t2", "2026-01-10", "acc-a", -10_000, "sundries xyz")
	assert.Equal(t, model.RoleSupplier, Classify(&outflow))
}
