package model

import "time"

// ReconciliationStatus reports the accrual reconciliation outcome.
type ReconciliationStatus string

const (
	ReconOK            ReconciliationStatus = "OK"
	ReconNotRun        ReconciliationStatus = "NOT_RUN"
	ReconFailedOverlap ReconciliationStatus = "FAILED_OVERLAP"
)

// Tier is the discrete confidence grade.
type Tier string

const (
	TierHigh   Tier = "High"
	TierMedium Tier = "Medium"
	TierLow    Tier = "Low"
)

// AnalysisRun is the complete, immutable computed output of one pipeline
// execution. Insert-only.
type AnalysisRun struct {
	ID            string `json:"id"`
	DealID        string `json:"deal_id"`
	State         string `json:"state"`
	SchemaVersion string `json:"schema_version"`
	ConfigVersion string `json:"config_version"`
	RunTrigger    string `json:"run_trigger"`

	NonTransferAbsTotalCents   int64                `json:"non_transfer_abs_total_cents"`
	ClassifiedAbsTotalCents    int64                `json:"classified_abs_total_cents"`
	BankOperationalInflowCents int64                `json:"bank_operational_inflow_cents"`
	CoverageBP                 int                  `json:"coverage_bp"`
	MissingMonthCount          int                  `json:"missing_month_count"`
	MissingMonthPenaltyBP      int                  `json:"missing_month_penalty_bp"`
	OverridePenaltyBP          int                  `json:"override_penalty_bp"`
	ReconciliationStatus       ReconciliationStatus `json:"reconciliation_status"`
	ReconciliationBP           *int                 `json:"reconciliation_bp"`
	BaseConfidenceBP           int                  `json:"base_confidence_bp"`
	FinalConfidenceBP          int                  `json:"final_confidence_bp"`
	Tier                       Tier                 `json:"tier"`
	TierCapped                 bool                 `json:"tier_capped"`

	RawTransactionHash string `json:"raw_transaction_hash"`
	TransferLinksHash  string `json:"transfer_links_hash"`
	EntitiesHash       string `json:"entities_hash"`
	OverridesHash      string `json:"overrides_hash"`

	CreatedAt time.Time `json:"created_at"`
}
