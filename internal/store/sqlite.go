package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/parity/internal/fault"
	"github.com/sells-group/parity/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS deals (
	id                    TEXT PRIMARY KEY,
	name                  TEXT NOT NULL,
	currency              TEXT NOT NULL,
	accrual_revenue_cents INTEGER,
	accrual_period_start  TEXT,
	accrual_period_end    TEXT,
	created_by            TEXT NOT NULL,
	created_at            DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS documents (
	id                 TEXT PRIMARY KEY,
	deal_id            TEXT NOT NULL REFERENCES deals(id),
	file_name          TEXT NOT NULL,
	file_type          TEXT NOT NULL,
	status             TEXT NOT NULL DEFAULT 'processing',
	currency_detection TEXT NOT NULL DEFAULT '',
	currency_mismatch  INTEGER NOT NULL DEFAULT 0,
	error_type         TEXT NOT NULL DEFAULT '',
	error_message      TEXT NOT NULL DEFAULT '',
	error_stage        TEXT NOT NULL DEFAULT '',
	next_action        TEXT NOT NULL DEFAULT '',
	created_by         TEXT NOT NULL,
	created_at         DATETIME NOT NULL,
	updated_at         DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS transactions (
	txn_id                TEXT PRIMARY KEY,
	deal_id               TEXT NOT NULL REFERENCES deals(id),
	document_id           TEXT NOT NULL REFERENCES documents(id),
	txn_date              TEXT NOT NULL,
	signed_amount_cents   INTEGER NOT NULL,
	raw_descriptor        TEXT NOT NULL,
	parsed_descriptor     TEXT NOT NULL,
	normalized_descriptor TEXT NOT NULL,
	account_id            TEXT NOT NULL,
	is_transfer           INTEGER NOT NULL DEFAULT 0,
	role                  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS transfer_links (
	id                 TEXT PRIMARY KEY,
	deal_id            TEXT NOT NULL REFERENCES deals(id),
	txn_out_id         TEXT NOT NULL,
	txn_in_id          TEXT NOT NULL,
	abs_amount_cents   INTEGER NOT NULL,
	match_rule_version TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS entities (
	entity_id       TEXT PRIMARY KEY,
	deal_id         TEXT NOT NULL REFERENCES deals(id),
	normalized_name TEXT NOT NULL,
	display_name    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS txn_entity_map (
	txn_id       TEXT PRIMARY KEY,
	deal_id      TEXT NOT NULL REFERENCES deals(id),
	entity_id    TEXT NOT NULL,
	role         TEXT NOT NULL,
	role_version TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS overrides (
	id         TEXT PRIMARY KEY,
	deal_id    TEXT NOT NULL REFERENCES deals(id),
	entity_id  TEXT NOT NULL,
	field      TEXT NOT NULL,
	old_value  TEXT NOT NULL,
	new_value  TEXT NOT NULL,
	weight_bp  INTEGER NOT NULL,
	created_by TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS analysis_runs (
	id                            TEXT PRIMARY KEY,
	deal_id                       TEXT NOT NULL REFERENCES deals(id),
	state                         TEXT NOT NULL,
	schema_version                TEXT NOT NULL,
	config_version                TEXT NOT NULL,
	run_trigger                   TEXT NOT NULL,
	non_transfer_abs_total_cents  INTEGER NOT NULL,
	classified_abs_total_cents    INTEGER NOT NULL,
	bank_operational_inflow_cents INTEGER NOT NULL,
	coverage_bp                   INTEGER NOT NULL,
	missing_month_count           INTEGER NOT NULL,
	missing_month_penalty_bp      INTEGER NOT NULL,
	override_penalty_bp           INTEGER NOT NULL,
	reconciliation_status         TEXT NOT NULL,
	reconciliation_bp             INTEGER,
	base_confidence_bp            INTEGER NOT NULL,
	final_confidence_bp           INTEGER NOT NULL,
	tier                          TEXT NOT NULL,
	tier_capped                   INTEGER NOT NULL DEFAULT 0,
	raw_transaction_hash          TEXT NOT NULL,
	transfer_links_hash           TEXT NOT NULL,
	entities_hash                 TEXT NOT NULL,
	overrides_hash                TEXT NOT NULL,
	created_at                    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshots (
	id                   TEXT PRIMARY KEY,
	deal_id              TEXT NOT NULL REFERENCES deals(id),
	analysis_run_id      TEXT NOT NULL REFERENCES analysis_runs(id),
	schema_version       TEXT NOT NULL,
	config_version       TEXT NOT NULL,
	financial_state_hash TEXT NOT NULL,
	sha256_hash          TEXT NOT NULL UNIQUE,
	canonical_json       TEXT NOT NULL,
	created_by           TEXT NOT NULL,
	created_at           DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_deal_id ON documents(deal_id);
CREATE INDEX IF NOT EXISTS idx_transactions_deal_id ON transactions(deal_id);
CREATE INDEX IF NOT EXISTS idx_transfer_links_deal_id ON transfer_links(deal_id);
CREATE INDEX IF NOT EXISTS idx_entities_deal_id ON entities(deal_id);
CREATE INDEX IF NOT EXISTS idx_txn_entity_map_deal_id ON txn_entity_map(deal_id);
CREATE INDEX IF NOT EXISTS idx_overrides_deal_id ON overrides(deal_id);
CREATE INDEX IF NOT EXISTS idx_analysis_runs_deal_id ON analysis_runs(deal_id);
CREATE INDEX IF NOT EXISTS idx_snapshots_deal_id ON snapshots(deal_id);
CREATE INDEX IF NOT EXISTS idx_snapshots_sha256 ON snapshots(sha256_hash);

CREATE TRIGGER IF NOT EXISTS snapshots_no_update
BEFORE UPDATE ON snapshots
BEGIN
	SELECT RAISE(ABORT, 'snapshots are immutable');
END;

CREATE TRIGGER IF NOT EXISTS snapshots_no_delete
BEFORE DELETE ON snapshots
BEGIN
	SELECT RAISE(ABORT, 'snapshots are immutable');
END;
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateDeal(ctx context.Context, deal *model.Deal) (*model.Deal, error) {
	out := *deal
	if out.ID == "" {
		out.ID = uuid.New().String()
	}
	out.CreatedAt = time.Now().UTC()

	var revCents, periodStart, periodEnd any
	if out.Accrual != nil {
		revCents = out.Accrual.RevenueCents
		periodStart = out.Accrual.PeriodStart
		periodEnd = out.Accrual.PeriodEnd
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO deals (id, name, currency, accrual_revenue_cents, accrual_period_start, accrual_period_end, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		out.ID, out.Name, out.Currency, revCents, periodStart, periodEnd, out.CreatedBy, out.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert deal")
	}
	return &out, nil
}

func (s *SQLiteStore) GetDeal(ctx context.Context, dealID string) (*model.Deal, error) {
	var d model.Deal
	var revCents sql.NullInt64
	var periodStart, periodEnd sql.NullString

	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, currency, accrual_revenue_cents, accrual_period_start, accrual_period_end, created_by, created_at
		 FROM deals WHERE id = ?`,
		dealID,
	).Scan(&d.ID, &d.Name, &d.Currency, &revCents, &periodStart, &periodEnd, &d.CreatedBy, &d.CreatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get deal %s", dealID)
	}
	if revCents.Valid {
		d.Accrual = &model.Accrual{
			RevenueCents: revCents.Int64,
			PeriodStart:  periodStart.String,
			PeriodEnd:    periodEnd.String,
		}
	}
	return &d, nil
}

func (s *SQLiteStore) CreateDocument(ctx context.Context, doc *model.Document) (*model.Document, error) {
	out := *doc
	if out.ID == "" {
		out.ID = uuid.New().String()
	}
	out.Status = model.DocStatusProcessing
	now := time.Now().UTC()
	out.CreatedAt = now
	out.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, deal_id, file_name, file_type, status, created_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		out.ID, out.DealID, out.FileName, string(out.FileType), string(out.Status), out.CreatedBy, out.CreatedAt, out.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert document")
	}
	return &out, nil
}

const documentColumns = `id, deal_id, file_name, file_type, status, currency_detection, currency_mismatch,
	error_type, error_message, error_stage, next_action, created_by, created_at, updated_at`

func scanDocument(row interface{ Scan(...any) error }) (*model.Document, error) {
	var d model.Document
	err := row.Scan(&d.ID, &d.DealID, &d.FileName, &d.FileType, &d.Status,
		&d.CurrencyDetection, &d.CurrencyMismatch,
		&d.ErrorType, &d.ErrorMessage, &d.ErrorStage, &d.NextAction,
		&d.CreatedBy, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *SQLiteStore) GetDocument(ctx context.Context, documentID string) (*model.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = ?`, documentID)
	d, err := scanDocument(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get document %s", documentID)
	}
	return d, nil
}

func (s *SQLiteStore) ListDocuments(ctx context.Context, dealID string) ([]model.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE deal_id = ? ORDER BY created_at, id`, dealID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list documents")
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan document")
		}
		docs = append(docs, *d)
	}
	return docs, eris.Wrap(rows.Err(), "sqlite: list documents iterate")
}

// CompleteDocument transitions processing -> completed. Terminal documents
// are never transitioned again.
func (s *SQLiteStore) CompleteDocument(ctx context.Context, documentID, currencyDetection string, currencyMismatch bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET status = ?, currency_detection = ?, currency_mismatch = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(model.DocStatusCompleted), currencyDetection, currencyMismatch, time.Now().UTC(),
		documentID, string(model.DocStatusProcessing),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete document %s", documentID)
	}
	return checkRowsAffected(res, "processing document", documentID)
}

// FailDocument transitions processing -> failed with the structured error
// fields from f.
func (s *SQLiteStore) FailDocument(ctx context.Context, documentID string, f *fault.Fault) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET status = ?, currency_mismatch = ?, error_type = ?, error_message = ?, error_stage = ?, next_action = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(model.DocStatusFailed), f.Kind == fault.KindCurrencyMismatch,
		string(f.Kind), f.Message, f.Stage, f.NextAction, time.Now().UTC(),
		documentID, string(model.DocStatusProcessing),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail document %s", documentID)
	}
	return checkRowsAffected(res, "processing document", documentID)
}

func (s *SQLiteStore) InsertTransactions(ctx context.Context, txns []model.Transaction) (int64, error) {
	if len(txns) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin insert transactions")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO transactions (txn_id, deal_id, document_id, txn_date, signed_amount_cents,
		   raw_descriptor, parsed_descriptor, normalized_descriptor, account_id, is_transfer, role)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (txn_id) DO NOTHING`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare insert transaction")
	}
	defer stmt.Close()

	var inserted int64
	for _, t := range txns {
		res, err := stmt.ExecContext(ctx,
			t.TxnID, t.DealID, t.DocumentID, t.Date, t.AmountCents,
			t.RawDescriptor, t.ParsedDescriptor, t.NormalizedDescriptor, t.AccountID,
			t.IsTransfer, string(t.Role),
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert transaction %s", t.TxnID)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: insert transaction rows affected")
		}
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit insert transactions")
	}
	return inserted, nil
}

func (s *SQLiteStore) ListTransactions(ctx context.Context, dealID string) ([]model.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT txn_id, deal_id, document_id, txn_date, signed_amount_cents,
		   raw_descriptor, parsed_descriptor, normalized_descriptor, account_id, is_transfer, role
		 FROM transactions WHERE deal_id = ?
		 ORDER BY txn_date, account_id, signed_amount_cents, normalized_descriptor, txn_id`,
		dealID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list transactions")
	}
	defer rows.Close()

	var txns []model.Transaction
	for rows.Next() {
		var t model.Transaction
		if err := rows.Scan(&t.TxnID, &t.DealID, &t.DocumentID, &t.Date, &t.AmountCents,
			&t.RawDescriptor, &t.ParsedDescriptor, &t.NormalizedDescriptor, &t.AccountID,
			&t.IsTransfer, &t.Role); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan transaction")
		}
		txns = append(txns, t)
	}
	return txns, eris.Wrap(rows.Err(), "sqlite: list transactions iterate")
}

// ReplaceTransferLinks swaps the deal's transfer links for the given set in
// one transaction. Links are derived state, rebuilt on every pipeline run.
func (s *SQLiteStore) ReplaceTransferLinks(ctx context.Context, dealID string, links []model.TransferLink) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin replace transfer links")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM transfer_links WHERE deal_id = ?`, dealID); err != nil {
		return eris.Wrap(err, "sqlite: delete transfer links")
	}
	for _, l := range links {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO transfer_links (id, deal_id, txn_out_id, txn_in_id, abs_amount_cents, match_rule_version)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			l.ID, l.DealID, l.TxnOutID, l.TxnInID, l.AbsAmountCents, l.MatchRuleVersion,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert transfer link %s", l.ID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit replace transfer links")
}

func (s *SQLiteStore) ListTransferLinks(ctx context.Context, dealID string) ([]model.TransferLink, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, deal_id, txn_out_id, txn_in_id, abs_amount_cents, match_rule_version
		 FROM transfer_links WHERE deal_id = ? ORDER BY txn_out_id, txn_in_id`,
		dealID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list transfer links")
	}
	defer rows.Close()

	var links []model.TransferLink
	for rows.Next() {
		var l model.TransferLink
		if err := rows.Scan(&l.ID, &l.DealID, &l.TxnOutID, &l.TxnInID, &l.AbsAmountCents, &l.MatchRuleVersion); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan transfer link")
		}
		links = append(links, l)
	}
	return links, eris.Wrap(rows.Err(), "sqlite: list transfer links iterate")
}

// UpsertEntities inserts entities, keeping the existing row on conflict so
// the display name stays fixed to the first occurrence.
func (s *SQLiteStore) UpsertEntities(ctx context.Context, entities []model.Entity) error {
	if len(entities) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin upsert entities")
	}
	defer tx.Rollback()

	for _, e := range entities {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO entities (entity_id, deal_id, normalized_name, display_name)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT (entity_id) DO NOTHING`,
			e.EntityID, e.DealID, e.NormalizedName, e.DisplayName,
		); err != nil {
			return eris.Wrapf(err, "sqlite: upsert entity %s", e.EntityID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit upsert entities")
}

func (s *SQLiteStore) ListEntities(ctx context.Context, dealID string) ([]model.Entity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT entity_id, deal_id, normalized_name, display_name
		 FROM entities WHERE deal_id = ? ORDER BY entity_id`,
		dealID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list entities")
	}
	defer rows.Close()

	var entities []model.Entity
	for rows.Next() {
		var e model.Entity
		if err := rows.Scan(&e.EntityID, &e.DealID, &e.NormalizedName, &e.DisplayName); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan entity")
		}
		entities = append(entities, e)
	}
	return entities, eris.Wrap(rows.Err(), "sqlite: list entities iterate")
}

// ReplaceMappings swaps the deal's txn-entity mappings for the given set in
// one transaction.
func (s *SQLiteStore) ReplaceMappings(ctx context.Context, dealID string, mappings []model.TxnEntityMapping) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin replace mappings")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM txn_entity_map WHERE deal_id = ?`, dealID); err != nil {
		return eris.Wrap(err, "sqlite: delete mappings")
	}
	for _, m := range mappings {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO txn_entity_map (txn_id, deal_id, entity_id, role, role_version)
			 VALUES (?, ?, ?, ?, ?)`,
			m.TxnID, m.DealID, m.EntityID, string(m.Role), m.RoleVersion,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert mapping %s", m.TxnID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit replace mappings")
}

func (s *SQLiteStore) ListMappings(ctx context.Context, dealID string) ([]model.TxnEntityMapping, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT txn_id, deal_id, entity_id, role, role_version
		 FROM txn_entity_map WHERE deal_id = ? ORDER BY txn_id`,
		dealID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list mappings")
	}
	defer rows.Close()

	var mappings []model.TxnEntityMapping
	for rows.Next() {
		var m model.TxnEntityMapping
		if err := rows.Scan(&m.TxnID, &m.DealID, &m.EntityID, &m.Role, &m.RoleVersion); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan mapping")
		}
		mappings = append(mappings, m)
	}
	return mappings, eris.Wrap(rows.Err(), "sqlite: list mappings iterate")
}

func (s *SQLiteStore) InsertOverride(ctx context.Context, o *model.Override) (*model.Override, error) {
	out := *o
	if out.ID == "" {
		out.ID = uuid.New().String()
	}
	out.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO overrides (id, deal_id, entity_id, field, old_value, new_value, weight_bp, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		out.ID, out.DealID, out.EntityID, out.Field, out.OldValue, out.NewValue, out.WeightBP, out.CreatedBy, out.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert override")
	}
	return &out, nil
}

func (s *SQLiteStore) ListOverrides(ctx context.Context, dealID string) ([]model.Override, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, deal_id, entity_id, field, old_value, new_value, weight_bp, created_by, created_at
		 FROM overrides WHERE deal_id = ? ORDER BY created_at, id`,
		dealID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list overrides")
	}
	defer rows.Close()

	var overrides []model.Override
	for rows.Next() {
		var o model.Override
		if err := rows.Scan(&o.ID, &o.DealID, &o.EntityID, &o.Field, &o.OldValue, &o.NewValue,
			&o.WeightBP, &o.CreatedBy, &o.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan override")
		}
		overrides = append(overrides, o)
	}
	return overrides, eris.Wrap(rows.Err(), "sqlite: list overrides iterate")
}

const runColumns = `id, deal_id, state, schema_version, config_version, run_trigger,
	non_transfer_abs_total_cents, classified_abs_total_cents, bank_operational_inflow_cents,
	coverage_bp, missing_month_count, missing_month_penalty_bp, override_penalty_bp,
	reconciliation_status, reconciliation_bp, base_confidence_bp, final_confidence_bp,
	tier, tier_capped, raw_transaction_hash, transfer_links_hash, entities_hash, overrides_hash, created_at`

func scanRun(row interface{ Scan(...any) error }) (*model.AnalysisRun, error) {
	var r model.AnalysisRun
	var reconBP sql.NullInt64
	err := row.Scan(&r.ID, &r.DealID, &r.State, &r.SchemaVersion, &r.ConfigVersion, &r.RunTrigger,
		&r.NonTransferAbsTotalCents, &r.ClassifiedAbsTotalCents, &r.BankOperationalInflowCents,
		&r.CoverageBP, &r.MissingMonthCount, &r.MissingMonthPenaltyBP, &r.OverridePenaltyBP,
		&r.ReconciliationStatus, &reconBP, &r.BaseConfidenceBP, &r.FinalConfidenceBP,
		&r.Tier, &r.TierCapped, &r.RawTransactionHash, &r.TransferLinksHash, &r.EntitiesHash, &r.OverridesHash,
		&r.CreatedAt)
	if err != nil {
		return nil, err
	}
	if reconBP.Valid {
		v := int(reconBP.Int64)
		r.ReconciliationBP = &v
	}
	return &r, nil
}

func (s *SQLiteStore) InsertRun(ctx context.Context, run *model.AnalysisRun) (*model.AnalysisRun, error) {
	out := *run
	if out.ID == "" {
		out.ID = uuid.New().String()
	}
	out.CreatedAt = time.Now().UTC()

	var reconBP any
	if out.ReconciliationBP != nil {
		reconBP = *out.ReconciliationBP
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO analysis_runs (`+runColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		out.ID, out.DealID, out.State, out.SchemaVersion, out.ConfigVersion, out.RunTrigger,
		out.NonTransferAbsTotalCents, out.ClassifiedAbsTotalCents, out.BankOperationalInflowCents,
		out.CoverageBP, out.MissingMonthCount, out.MissingMonthPenaltyBP, out.OverridePenaltyBP,
		string(out.ReconciliationStatus), reconBP, out.BaseConfidenceBP, out.FinalConfidenceBP,
		string(out.Tier), out.TierCapped, out.RawTransactionHash, out.TransferLinksHash,
		out.EntitiesHash, out.OverridesHash, out.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert analysis run")
	}
	return &out, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, dealID string, limit int) ([]model.AnalysisRun, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM analysis_runs WHERE deal_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		dealID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.AnalysisRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

const snapshotColumns = `id, deal_id, analysis_run_id, schema_version, config_version,
	financial_state_hash, sha256_hash, canonical_json, created_by, created_at`

func scanSnapshot(row interface{ Scan(...any) error }) (*model.Snapshot, error) {
	var sn model.Snapshot
	err := row.Scan(&sn.ID, &sn.DealID, &sn.AnalysisRunID, &sn.SchemaVersion, &sn.ConfigVersion,
		&sn.FinancialStateHash, &sn.SHA256Hash, &sn.CanonicalJSON, &sn.CreatedBy, &sn.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &sn, nil
}

// InsertSnapshot is idempotent on sha256_hash: when a snapshot with the same
// content hash already exists, the existing row is returned unchanged.
func (s *SQLiteStore) InsertSnapshot(ctx context.Context, snap *model.Snapshot) (*model.Snapshot, error) {
	out := *snap
	if out.ID == "" {
		out.ID = uuid.New().String()
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (`+snapshotColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (sha256_hash) DO NOTHING`,
		out.ID, out.DealID, out.AnalysisRunID, out.SchemaVersion, out.ConfigVersion,
		out.FinancialStateHash, out.SHA256Hash, out.CanonicalJSON, out.CreatedBy, out.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert snapshot")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert snapshot rows affected")
	}
	if n == 0 {
		existing, err := s.GetSnapshotByHash(ctx, out.SHA256Hash)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, eris.Errorf("snapshot conflict but no row for hash %s", out.SHA256Hash)
		}
		return existing, nil
	}
	return &out, nil
}

func (s *SQLiteStore) GetSnapshot(ctx context.Context, snapshotID string) (*model.Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+snapshotColumns+` FROM snapshots WHERE id = ?`, snapshotID)
	sn, err := scanSnapshot(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get snapshot %s", snapshotID)
	}
	return sn, nil
}

func (s *SQLiteStore) GetSnapshotByHash(ctx context.Context, sha256Hash string) (*model.Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+snapshotColumns+` FROM snapshots WHERE sha256_hash = ?`, sha256Hash)
	sn, err := scanSnapshot(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: get snapshot by hash")
	}
	return sn, nil
}

func (s *SQLiteStore) GetLatestSnapshot(ctx context.Context, dealID string) (*model.Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+snapshotColumns+` FROM snapshots WHERE deal_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT 1`, dealID)
	sn, err := scanSnapshot(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: get latest snapshot")
	}
	return sn, nil
}

func checkRowsAffected(res sql.Result, what, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", what, id)
	}
	return nil
}
