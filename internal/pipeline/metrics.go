package pipeline

import (
	"time"

	"github.com/sells-group/parity/internal/model"
)

// Basis-point scale: 10000 bp = 100%. All ratio arithmetic in this file is
// integer floor division.
const bpScale = 10000

const (
	missingMonthPenaltyPerMonthBP = 1000
	missingMonthPenaltyCapBP      = 5000
	reconOverlapThresholdBP       = 6000
)

// Metrics is the deterministic measurement block of one pipeline run.
type Metrics struct {
	NonTransferAbsTotalCents   int64
	ClassifiedAbsTotalCents    int64
	BankOperationalInflowCents int64
	CoverageBP                 int
	MissingMonthCount          int
	MissingMonthPenaltyBP      int
	ReconciliationStatus       model.ReconciliationStatus
	ReconciliationBP           *int
	BaseConfidenceBP           int
	BaseAfterMonthsBP          int
}

// ComputeMetrics derives coverage, the missing-month penalty, and accrual
// reconciliation from classified transactions. An empty volume yields all
// zeros with reconciliation NOT_RUN; the denominator is never guessed.
func ComputeMetrics(txns []model.Transaction, accrual *model.Accrual) Metrics {
	var m Metrics
	m.ReconciliationStatus = model.ReconNotRun

	for i := range txns {
		t := &txns[i]
		if t.IsTransfer {
			continue
		}
		m.NonTransferAbsTotalCents += t.AbsAmountCents()
		if t.Role != model.RoleOther {
			m.ClassifiedAbsTotalCents += t.AbsAmountCents()
		}
		if t.AmountCents > 0 && t.Role == model.RoleRevenueOperational {
			m.BankOperationalInflowCents += t.AmountCents
		}
	}

	if m.NonTransferAbsTotalCents == 0 {
		return m
	}

	m.CoverageBP = int(m.ClassifiedAbsTotalCents * bpScale / m.NonTransferAbsTotalCents)

	m.MissingMonthCount = missingMonths(txns)
	m.MissingMonthPenaltyBP = m.MissingMonthCount * missingMonthPenaltyPerMonthBP
	if m.MissingMonthPenaltyBP > missingMonthPenaltyCapBP {
		m.MissingMonthPenaltyBP = missingMonthPenaltyCapBP
	}

	m.ReconciliationStatus, m.ReconciliationBP = reconcile(txns, accrual, m.BankOperationalInflowCents)

	m.BaseConfidenceBP = m.CoverageBP
	if m.ReconciliationStatus == model.ReconOK && m.ReconciliationBP != nil && *m.ReconciliationBP < m.BaseConfidenceBP {
		m.BaseConfidenceBP = *m.ReconciliationBP
	}
	m.BaseAfterMonthsBP = m.BaseConfidenceBP - m.MissingMonthPenaltyBP
	if m.BaseAfterMonthsBP < 0 {
		m.BaseAfterMonthsBP = 0
	}

	return m
}

// missingMonths counts whole calendar months strictly between the first and
// last transaction date that contain zero transactions. The partial months
// at the very start and end are excluded by construction.
func missingMonths(txns []model.Transaction) int {
	if len(txns) == 0 {
		return 0
	}

	seen := make(map[int]bool) // year*12 + month-1
	minKey, maxKey := 0, 0
	first := true
	for i := range txns {
		t, err := time.Parse("2006-01-02", txns[i].Date)
		if err != nil {
			continue
		}
		key := t.Year()*12 + int(t.Month()) - 1
		seen[key] = true
		if first {
			minKey, maxKey = key, key
			first = false
			continue
		}
		if key < minKey {
			minKey = key
		}
		if key > maxKey {
			maxKey = key
		}
	}

	missing := 0
	for key := minKey + 1; key < maxKey; key++ {
		if !seen[key] {
			missing++
		}
	}
	return missing
}

// reconcile compares bank-observed operational inflow against the declared
// accrual revenue. It runs only with a positive declared revenue, a declared
// period, and at least 60% day-overlap between the observed transaction
// range and the accrual period.
func reconcile(txns []model.Transaction, accrual *model.Accrual, inflowCents int64) (model.ReconciliationStatus, *int) {
	if accrual == nil || accrual.RevenueCents <= 0 || accrual.PeriodStart == "" || accrual.PeriodEnd == "" {
		return model.ReconNotRun, nil
	}

	activeStart, activeEnd, ok := observedRange(txns)
	if !ok {
		return model.ReconNotRun, nil
	}
	accrStart, err1 := time.Parse("2006-01-02", accrual.PeriodStart)
	accrEnd, err2 := time.Parse("2006-01-02", accrual.PeriodEnd)
	if err1 != nil || err2 != nil || accrEnd.Before(accrStart) {
		return model.ReconFailedOverlap, nil
	}

	accrualDays := daysInclusive(accrStart, accrEnd)
	overlapDays := overlapInclusive(activeStart, activeEnd, accrStart, accrEnd)
	if int64(overlapDays)*bpScale/int64(accrualDays) < reconOverlapThresholdBP {
		return model.ReconFailedOverlap, nil
	}

	if inflowCents <= 0 {
		return model.ReconNotRun, nil
	}

	diff := accrual.RevenueCents - inflowCents
	if diff < 0 {
		diff = -diff
	}
	bp := bpScale - int(diff*bpScale/accrual.RevenueCents)
	if bp < 0 {
		bp = 0
	}
	return model.ReconOK, &bp
}

func observedRange(txns []model.Transaction) (time.Time, time.Time, bool) {
	var start, end time.Time
	found := false
	for i := range txns {
		t, err := time.Parse("2006-01-02", txns[i].Date)
		if err != nil {
			continue
		}
		if !found {
			start, end = t, t
			found = true
			continue
		}
		if t.Before(start) {
			start = t
		}
		if t.After(end) {
			end = t
		}
	}
	return start, end, found
}

func daysInclusive(a, b time.Time) int {
	return int(b.Sub(a).Hours()/24) + 1
}

func overlapInclusive(aStart, aEnd, bStart, bEnd time.Time) int {
	start := aStart
	if bStart.After(start) {
		start = bStart
	}
	end := aEnd
	if bEnd.Before(end) {
		end = bEnd
	}
	if end.Before(start) {
		return 0
	}
	return daysInclusive(start, end)
}
