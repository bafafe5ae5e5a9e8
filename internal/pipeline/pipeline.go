// Package pipeline is the deterministic analysis core: transfer matching,
// entity resolution, classification, metrics, and confidence scoring over an
// explicit input snapshot. Run is a pure function; given the same inputs it
// always returns bit-identical output.
package pipeline

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/parity/internal/canon"
	"github.com/sells-group/parity/internal/model"
	"github.com/sells-group/parity/internal/version"
)

// RunState for freshly computed analysis runs.
const RunStateLiveDraft = "LIVE_DRAFT"

// Input is the full input snapshot of one pipeline execution. The caller
// (export orchestration) re-reads and re-derives this set before each run.
type Input struct {
	DealID       string
	Transactions []model.Transaction
	Overrides    []model.Override
	Accrual      *model.Accrual
	RunTrigger   string
}

// Result is the complete computed output of one pipeline execution. The
// analysis run id and timestamps are assigned at persistence time so the
// computation itself stays pure.
type Result struct {
	Run          model.AnalysisRun
	Transactions []model.Transaction // canonical order, transfer-flagged, classified
	Links        []model.TransferLink
	Entities     []model.Entity
	Mappings     []model.TxnEntityMapping
	Metrics      Metrics
	Confidence   Confidence
}

// Run sequences transfer matching, entity resolution, classification,
// metrics, and confidence over an input snapshot, stamping each stage's
// content hash onto the analysis run. The input transaction slice is never
// mutated; Run works on its own canonical copy.
func Run(in Input) (*Result, error) {
	txns := make([]model.Transaction, len(in.Transactions))
	copy(txns, in.Transactions)
	for i := range txns {
		txns[i].IsTransfer = false
		txns[i].Role = ""
	}
	model.SortTransactions(txns)

	links := MatchTransfers(txns)

	entities, assignment := ResolveEntities(in.DealID, txns)

	mappings := make([]model.TxnEntityMapping, 0, len(txns))
	for i := range txns {
		t := &txns[i]
		t.Role = Classify(t)
		mappings = append(mappings, model.TxnEntityMapping{
			DealID:      in.DealID,
			TxnID:       t.TxnID,
			EntityID:    assignment[t.TxnID],
			Role:        t.Role,
			RoleVersion: version.RoleVersion,
		})
	}
	model.SortMappings(mappings)

	metrics := ComputeMetrics(txns, in.Accrual)

	entityVolumes := make(map[string]int64, len(entities))
	for i := range txns {
		t := &txns[i]
		entityVolumes[assignment[t.TxnID]] += t.AbsAmountCents()
	}
	penaltyBP := OverridePenaltyBP(in.Overrides, entityVolumes, metrics.NonTransferAbsTotalCents)
	confidence := FinalizeConfidence(metrics.BaseAfterMonthsBP, penaltyBP, metrics.ReconciliationStatus)

	run, err := buildRun(in, txns, links, entities, metrics, confidence)
	if err != nil {
		return nil, err
	}

	return &Result{
		Run:          run,
		Transactions: txns,
		Links:        links,
		Entities:     entities,
		Mappings:     mappings,
		Metrics:      metrics,
		Confidence:   confidence,
	}, nil
}

func buildRun(in Input, txns []model.Transaction, links []model.TransferLink, entities []model.Entity, m Metrics, c Confidence) (model.AnalysisRun, error) {
	rawHash, err := canon.Hash(txns)
	if err != nil {
		return model.AnalysisRun{}, eris.Wrap(err, "pipeline: hash transactions")
	}
	linksHash, err := canon.Hash(links)
	if err != nil {
		return model.AnalysisRun{}, eris.Wrap(err, "pipeline: hash transfer links")
	}
	entitiesHash, err := canon.Hash(entities)
	if err != nil {
		return model.AnalysisRun{}, eris.Wrap(err, "pipeline: hash entities")
	}
	overrides := make([]model.Override, len(in.Overrides))
	copy(overrides, in.Overrides)
	model.SortOverridesByID(overrides)
	overridesHash, err := canon.Hash(overrides)
	if err != nil {
		return model.AnalysisRun{}, eris.Wrap(err, "pipeline: hash overrides")
	}

	trigger := in.RunTrigger
	if trigger == "" {
		trigger = "export"
	}

	return model.AnalysisRun{
		DealID:        in.DealID,
		State:         RunStateLiveDraft,
		SchemaVersion: version.SchemaVersion,
		ConfigVersion: version.ConfigVersion,
		RunTrigger:    trigger,

		NonTransferAbsTotalCents:   m.NonTransferAbsTotalCents,
		ClassifiedAbsTotalCents:    m.ClassifiedAbsTotalCents,
		BankOperationalInflowCents: m.BankOperationalInflowCents,
		CoverageBP:                 m.CoverageBP,
		MissingMonthCount:          m.MissingMonthCount,
		MissingMonthPenaltyBP:      m.MissingMonthPenaltyBP,
		OverridePenaltyBP:          c.OverridePenaltyBP,
		ReconciliationStatus:       m.ReconciliationStatus,
		ReconciliationBP:           m.ReconciliationBP,
		BaseConfidenceBP:           m.BaseConfidenceBP,
		FinalConfidenceBP:          c.FinalConfidenceBP,
		Tier:                       c.Tier,
		TierCapped:                 c.TierCapped,

		RawTransactionHash: rawHash,
		TransferLinksHash:  linksHash,
		EntitiesHash:       entitiesHash,
		OverridesHash:      overridesHash,
	}, nil
}
