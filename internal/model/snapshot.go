package model

import "time"

// Snapshot is the content-addressed audit record of one exported analysis.
// Insert-only and immutable after creation; the storage layer enforces that
// no update or delete ever succeeds on a snapshot row.
type Snapshot struct {
	ID                 string    `json:"id"`
	DealID             string    `json:"deal_id"`
	AnalysisRunID      string    `json:"analysis_run_id"`
	SchemaVersion      string    `json:"schema_version"`
	ConfigVersion      string    `json:"config_version"`
	FinancialStateHash string    `json:"financial_state_hash"`
	SHA256Hash         string    `json:"sha256_hash"`
	CanonicalJSON      string    `json:"canonical_json"`
	CreatedBy          string    `json:"created_by"`
	CreatedAt          time.Time `json:"created_at"`
}
