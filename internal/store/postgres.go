package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/parity/internal/db"
	"github.com/sells-group/parity/internal/fault"
	"github.com/sells-group/parity/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"get_deal":             `SELECT id, name, currency, accrual_revenue_cents, accrual_period_start, accrual_period_end, created_by, created_at FROM deals WHERE id = $1`,
	"get_document":         `SELECT id, deal_id, file_name, file_type, status, currency_detection, currency_mismatch, error_type, error_message, error_stage, next_action, created_by, created_at, updated_at FROM documents WHERE id = $1`,
	"list_documents":       `SELECT id, deal_id, file_name, file_type, status, currency_detection, currency_mismatch, error_type, error_message, error_stage, next_action, created_by, created_at, updated_at FROM documents WHERE deal_id = $1 ORDER BY created_at, id`,
	"get_snapshot_by_hash": `SELECT id, deal_id, analysis_run_id, schema_version, config_version, financial_state_hash, sha256_hash, canonical_json, created_by, created_at FROM snapshots WHERE sha256_hash = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need direct
// query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS deals (
	id                    TEXT PRIMARY KEY,
	name                  TEXT NOT NULL,
	currency              TEXT NOT NULL,
	accrual_revenue_cents BIGINT,
	accrual_period_start  TEXT,
	accrual_period_end    TEXT,
	created_by            TEXT NOT NULL,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS documents (
	id                 TEXT PRIMARY KEY,
	deal_id            TEXT NOT NULL REFERENCES deals(id),
	file_name          TEXT NOT NULL,
	file_type          TEXT NOT NULL,
	status             TEXT NOT NULL DEFAULT 'processing',
	currency_detection TEXT NOT NULL DEFAULT '',
	currency_mismatch  BOOLEAN NOT NULL DEFAULT false,
	error_type         TEXT NOT NULL DEFAULT '',
	error_message      TEXT NOT NULL DEFAULT '',
	error_stage        TEXT NOT NULL DEFAULT '',
	next_action        TEXT NOT NULL DEFAULT '',
	created_by         TEXT NOT NULL,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS transactions (
	txn_id                TEXT PRIMARY KEY,
	deal_id               TEXT NOT NULL REFERENCES deals(id),
	document_id           TEXT NOT NULL REFERENCES documents(id),
	txn_date              TEXT NOT NULL,
	signed_amount_cents   BIGINT NOT NULL,
	raw_descriptor        TEXT NOT NULL,
	parsed_descriptor     TEXT NOT NULL,
	normalized_descriptor TEXT NOT NULL,
	account_id            TEXT NOT NULL,
	is_transfer           BOOLEAN NOT NULL DEFAULT false,
	role                  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS transfer_links (
	id                 TEXT PRIMARY KEY,
	deal_id            TEXT NOT NULL REFERENCES deals(id),
	txn_out_id         TEXT NOT NULL,
	txn_in_id          TEXT NOT NULL,
	abs_amount_cents   BIGINT NOT NULL,
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
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS analysis_runs (
	id                            TEXT PRIMARY KEY,
	deal_id                       TEXT NOT NULL REFERENCES deals(id),
	state                         TEXT NOT NULL,
	schema_version                TEXT NOT NULL,
	config_version                TEXT NOT NULL,
	run_trigger                   TEXT NOT NULL,
	non_transfer_abs_total_cents  BIGINT NOT NULL,
	classified_abs_total_cents    BIGINT NOT NULL,
	bank_operational_inflow_cents BIGINT NOT NULL,
	coverage_bp                   INTEGER NOT NULL,
	missing_month_count           INTEGER NOT NULL,
	missing_month_penalty_bp      INTEGER NOT NULL,
	override_penalty_bp           INTEGER NOT NULL,
	reconciliation_status         TEXT NOT NULL,
	reconciliation_bp             INTEGER,
	base_confidence_bp            INTEGER NOT NULL,
	final_confidence_bp           INTEGER NOT NULL,
	tier                          TEXT NOT NULL,
	tier_capped                   BOOLEAN NOT NULL DEFAULT false,
	raw_transaction_hash          TEXT NOT NULL,
	transfer_links_hash           TEXT NOT NULL,
	entities_hash                 TEXT NOT NULL,
	overrides_hash                TEXT NOT NULL,
	created_at                    TIMESTAMPTZ NOT NULL DEFAULT now()
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
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_documents_deal_id ON documents(deal_id);
CREATE INDEX IF NOT EXISTS idx_transactions_deal_id ON transactions(deal_id);
CREATE INDEX IF NOT EXISTS idx_transfer_links_deal_id ON transfer_links(deal_id);
CREATE INDEX IF NOT EXISTS idx_entities_deal_id ON entities(deal_id);
CREATE INDEX IF NOT EXISTS idx_txn_entity_map_deal_id ON txn_entity_map(deal_id);
CREATE INDEX IF NOT EXISTS idx_overrides_deal_id ON overrides(deal_id);
CREATE INDEX IF NOT EXISTS idx_analysis_runs_deal_id ON analysis_runs(deal_id);
CREATE INDEX IF NOT EXISTS idx_snapshots_deal_id ON snapshots(deal_id);

CREATE OR REPLACE FUNCTION snapshots_immutable() RETURNS trigger AS $immutable$
BEGIN
	RAISE EXCEPTION 'snapshots are immutable';
END;
$immutable$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS snapshots_no_mutate ON snapshots;
CREATE TRIGGER snapshots_no_mutate
	BEFORE UPDATE OR DELETE ON snapshots
	FOR EACH ROW EXECUTE FUNCTION snapshots_immutable();
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateDeal(ctx context.Context, deal *model.Deal) (*model.Deal, error) {
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

	_, err := s.pool.Exec(ctx,
		`INSERT INTO deals (id, name, currency, accrual_revenue_cents, accrual_period_start, accrual_period_end, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		out.ID, out.Name, out.Currency, revCents, periodStart, periodEnd, out.CreatedBy, out.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert deal")
	}
	return &out, nil
}

func (s *PostgresStore) GetDeal(ctx context.Context, dealID string) (*model.Deal, error) {
	var d model.Deal
	var revCents sql.NullInt64
	var periodStart, periodEnd sql.NullString

	err := s.pool.QueryRow(ctx,
		`SELECT id, name, currency, accrual_revenue_cents, accrual_period_start, accrual_period_end, created_by, created_at
		 FROM deals WHERE id = $1`,
		dealID,
	).Scan(&d.ID, &d.Name, &d.Currency, &revCents, &periodStart, &periodEnd, &d.CreatedBy, &d.CreatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get deal %s", dealID)
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

func (s *PostgresStore) CreateDocument(ctx context.Context, doc *model.Document) (*model.Document, error) {
	out := *doc
	if out.ID == "" {
		out.ID = uuid.New().String()
	}
	out.Status = model.DocStatusProcessing
	now := time.Now().UTC()
	out.CreatedAt = now
	out.UpdatedAt = now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO documents (id, deal_id, file_name, file_type, status, created_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		out.ID, out.DealID, out.FileName, string(out.FileType), string(out.Status), out.CreatedBy, out.CreatedAt, out.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert document")
	}
	return &out, nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, documentID string) (*model.Document, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, deal_id, file_name, file_type, status, currency_detection, currency_mismatch,
		   error_type, error_message, error_stage, next_action, created_by, created_at, updated_at
		 FROM documents WHERE id = $1`,
		documentID,
	)
	d, err := scanDocument(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get document %s", documentID)
	}
	return d, nil
}

func (s *PostgresStore) ListDocuments(ctx context.Context, dealID string) ([]model.Document, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, deal_id, file_name, file_type, status, currency_detection, currency_mismatch,
		   error_type, error_message, error_stage, next_action, created_by, created_at, updated_at
		 FROM documents WHERE deal_id = $1 ORDER BY created_at, id`,
		dealID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list documents")
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan document")
		}
		docs = append(docs, *d)
	}
	return docs, eris.Wrap(rows.Err(), "postgres: list documents iterate")
}

func (s *PostgresStore) CompleteDocument(ctx context.Context, documentID, currencyDetection string, currencyMismatch bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET status = $1, currency_detection = $2, currency_mismatch = $3, updated_at = $4
		 WHERE id = $5 AND status = $6`,
		string(model.DocStatusCompleted), currencyDetection, currencyMismatch, time.Now().UTC(),
		documentID, string(model.DocStatusProcessing),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete document %s", documentID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("processing document not found: %s", documentID)
	}
	return nil
}

func (s *PostgresStore) FailDocument(ctx context.Context, documentID string, f *fault.Fault) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET status = $1, currency_mismatch = $2, error_type = $3, error_message = $4, error_stage = $5, next_action = $6, updated_at = $7
		 WHERE id = $8 AND status = $9`,
		string(model.DocStatusFailed), f.Kind == fault.KindCurrencyMismatch,
		string(f.Kind), f.Message, f.Stage, f.NextAction, time.Now().UTC(),
		documentID, string(model.DocStatusProcessing),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail document %s", documentID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("processing document not found: %s", documentID)
	}
	return nil
}

var transactionColumns = []string{
	"txn_id", "deal_id", "document_id", "txn_date", "signed_amount_cents",
	"raw_descriptor", "parsed_descriptor", "normalized_descriptor", "account_id",
	"is_transfer", "role",
}

// InsertTransactions bulk-loads via COPY into a temp table and inserts with
// ON CONFLICT DO NOTHING, so re-ingesting a document is idempotent.
func (s *PostgresStore) InsertTransactions(ctx context.Context, txns []model.Transaction) (int64, error) {
	if len(txns) == 0 {
		return 0, nil
	}

	rows := make([][]any, 0, len(txns))
	for _, t := range txns {
		rows = append(rows, []any{
			t.TxnID, t.DealID, t.DocumentID, t.Date, t.AmountCents,
			t.RawDescriptor, t.ParsedDescriptor, t.NormalizedDescriptor, t.AccountID,
			t.IsTransfer, string(t.Role),
		})
	}

	n, err := db.BulkInsertIgnore(ctx, s.pool, "transactions", transactionColumns, []string{"txn_id"}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: insert transactions")
	}
	return n, nil
}

func (s *PostgresStore) ListTransactions(ctx context.Context, dealID string) ([]model.Transaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT txn_id, deal_id, document_id, txn_date, signed_amount_cents,
		   raw_descriptor, parsed_descriptor, normalized_descriptor, account_id, is_transfer, role
		 FROM transactions WHERE deal_id = $1
		 ORDER BY txn_date, account_id, signed_amount_cents, normalized_descriptor, txn_id`,
		dealID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list transactions")
	}
	defer rows.Close()

	var txns []model.Transaction
	for rows.Next() {
		var t model.Transaction
		if err := rows.Scan(&t.TxnID, &t.DealID, &t.DocumentID, &t.Date, &t.AmountCents,
			&t.RawDescriptor, &t.ParsedDescriptor, &t.NormalizedDescriptor, &t.AccountID,
			&t.IsTransfer, &t.Role); err != nil {
			return nil, eris.Wrap(err, "postgres: scan transaction")
		}
		txns = append(txns, t)
	}
	return txns, eris.Wrap(rows.Err(), "postgres: list transactions iterate")
}

// ReplaceTransferLinks swaps the deal's transfer links for the given set in
// one transaction. Links are derived state, rebuilt on every pipeline run.
func (s *PostgresStore) ReplaceTransferLinks(ctx context.Context, dealID string, links []model.TransferLink) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin replace transfer links")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM transfer_links WHERE deal_id = $1`, dealID); err != nil {
		return eris.Wrap(err, "postgres: delete transfer links")
	}
	for _, l := range links {
		if _, err := tx.Exec(ctx,
			`INSERT INTO transfer_links (id, deal_id, txn_out_id, txn_in_id, abs_amount_cents, match_rule_version)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			l.ID, l.DealID, l.TxnOutID, l.TxnInID, l.AbsAmountCents, l.MatchRuleVersion,
		); err != nil {
			return eris.Wrapf(err, "postgres: insert transfer link %s", l.ID)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit replace transfer links")
}

func (s *PostgresStore) ListTransferLinks(ctx context.Context, dealID string) ([]model.TransferLink, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, deal_id, txn_out_id, txn_in_id, abs_amount_cents, match_rule_version
		 FROM transfer_links WHERE deal_id = $1 ORDER BY txn_out_id, txn_in_id`,
		dealID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list transfer links")
	}
	defer rows.Close()

	var links []model.TransferLink
	for rows.Next() {
		var l model.TransferLink
		if err := rows.Scan(&l.ID, &l.DealID, &l.TxnOutID, &l.TxnInID, &l.AbsAmountCents, &l.MatchRuleVersion); err != nil {
			return nil, eris.Wrap(err, "postgres: scan transfer link")
		}
		links = append(links, l)
	}
	return links, eris.Wrap(rows.Err(), "postgres: list transfer links iterate")
}

// UpsertEntities inserts entities, keeping the existing row on conflict so
// the display name stays fixed to the first occurrence.
func (s *PostgresStore) UpsertEntities(ctx context.Context, entities []model.Entity) error {
	if len(entities) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin upsert entities")
	}
	defer tx.Rollback(ctx)

	for _, e := range entities {
		if _, err := tx.Exec(ctx,
			`INSERT INTO entities (entity_id, deal_id, normalized_name, display_name)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (entity_id) DO NOTHING`,
			e.EntityID, e.DealID, e.NormalizedName, e.DisplayName,
		); err != nil {
			return eris.Wrapf(err, "postgres: upsert entity %s", e.EntityID)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit upsert entities")
}

func (s *PostgresStore) ListEntities(ctx context.Context, dealID string) ([]model.Entity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT entity_id, deal_id, normalized_name, display_name
		 FROM entities WHERE deal_id = $1 ORDER BY entity_id`,
		dealID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list entities")
	}
	defer rows.Close()

	var entities []model.Entity
	for rows.Next() {
		var e model.Entity
		if err := rows.Scan(&e.EntityID, &e.DealID, &e.NormalizedName, &e.DisplayName); err != nil {
			return nil, eris.Wrap(err, "postgres: scan entity")
		}
		entities = append(entities, e)
	}
	return entities, eris.Wrap(rows.Err(), "postgres: list entities iterate")
}

// ReplaceMappings swaps the deal's txn-entity mappings for the given set in
// one transaction.
func (s *PostgresStore) ReplaceMappings(ctx context.Context, dealID string, mappings []model.TxnEntityMapping) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin replace mappings")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM txn_entity_map WHERE deal_id = $1`, dealID); err != nil {
		return eris.Wrap(err, "postgres: delete mappings")
	}
	for _, m := range mappings {
		if _, err := tx.Exec(ctx,
			`INSERT INTO txn_entity_map (txn_id, deal_id, entity_id, role, role_version)
			 VALUES ($1, $2, $3, $4, $5)`,
			m.TxnID, m.DealID, m.EntityID, string(m.Role), m.RoleVersion,
		); err != nil {
			return eris.Wrapf(err, "postgres: insert mapping %s", m.TxnID)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit replace mappings")
}

func (s *PostgresStore) ListMappings(ctx context.Context, dealID string) ([]model.TxnEntityMapping, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT txn_id, deal_id, entity_id, role, role_version
		 FROM txn_entity_map WHERE deal_id = $1 ORDER BY txn_id`,
		dealID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list mappings")
	}
	defer rows.Close()

	var mappings []model.TxnEntityMapping
	for rows.Next() {
		var m model.TxnEntityMapping
		if err := rows.Scan(&m.TxnID, &m.DealID, &m.EntityID, &m.Role, &m.RoleVersion); err != nil {
			return nil, eris.Wrap(err, "postgres: scan mapping")
		}
		mappings = append(mappings, m)
	}
	return mappings, eris.Wrap(rows.Err(), "postgres: list mappings iterate")
}

func (s *PostgresStore) InsertOverride(ctx context.Context, o *model.Override) (*model.Override, error) {
	out := *o
	if out.ID == "" {
		out.ID = uuid.New().String()
	}
	out.CreatedAt = time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO overrides (id, deal_id, entity_id, field, old_value, new_value, weight_bp, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		out.ID, out.DealID, out.EntityID, out.Field, out.OldValue, out.NewValue, out.WeightBP, out.CreatedBy, out.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert override")
	}
	return &out, nil
}

func (s *PostgresStore) ListOverrides(ctx context.Context, dealID string) ([]model.Override, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, deal_id, entity_id, field, old_value, new_value, weight_bp, created_by, created_at
		 FROM overrides WHERE deal_id = $1 ORDER BY created_at, id`,
		dealID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list overrides")
	}
	defer rows.Close()

	var overrides []model.Override
	for rows.Next() {
		var o model.Override
		if err := rows.Scan(&o.ID, &o.DealID, &o.EntityID, &o.Field, &o.OldValue, &o.NewValue,
			&o.WeightBP, &o.CreatedBy, &o.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan override")
		}
		overrides = append(overrides, o)
	}
	return overrides, eris.Wrap(rows.Err(), "postgres: list overrides iterate")
}

func (s *PostgresStore) InsertRun(ctx context.Context, run *model.AnalysisRun) (*model.AnalysisRun, error) {
	out := *run
	if out.ID == "" {
		out.ID = uuid.New().String()
	}
	out.CreatedAt = time.Now().UTC()

	var reconBP any
	if out.ReconciliationBP != nil {
		reconBP = *out.ReconciliationBP
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO analysis_runs (id, deal_id, state, schema_version, config_version, run_trigger,
		   non_transfer_abs_total_cents, classified_abs_total_cents, bank_operational_inflow_cents,
		   coverage_bp, missing_month_count, missing_month_penalty_bp, override_penalty_bp,
		   reconciliation_status, reconciliation_bp, base_confidence_bp, final_confidence_bp,
		   tier, tier_capped, raw_transaction_hash, transfer_links_hash, entities_hash, overrides_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)`,
		out.ID, out.DealID, out.State, out.SchemaVersion, out.ConfigVersion, out.RunTrigger,
		out.NonTransferAbsTotalCents, out.ClassifiedAbsTotalCents, out.BankOperationalInflowCents,
		out.CoverageBP, out.MissingMonthCount, out.MissingMonthPenaltyBP, out.OverridePenaltyBP,
		string(out.ReconciliationStatus), reconBP, out.BaseConfidenceBP, out.FinalConfidenceBP,
		string(out.Tier), out.TierCapped, out.RawTransactionHash, out.TransferLinksHash,
		out.EntitiesHash, out.OverridesHash, out.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert analysis run")
	}
	return &out, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, dealID string, limit int) ([]model.AnalysisRun, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, deal_id, state, schema_version, config_version, run_trigger,
		   non_transfer_abs_total_cents, classified_abs_total_cents, bank_operational_inflow_cents,
		   coverage_bp, missing_month_count, missing_month_penalty_bp, override_penalty_bp,
		   reconciliation_status, reconciliation_bp, base_confidence_bp, final_confidence_bp,
		   tier, tier_capped, raw_transaction_hash, transfer_links_hash, entities_hash, overrides_hash, created_at
		 FROM analysis_runs WHERE deal_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`,
		dealID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.AnalysisRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

// InsertSnapshot is idempotent on sha256_hash: when a snapshot with the same
// content hash already exists, the existing row is returned unchanged.
func (s *PostgresStore) InsertSnapshot(ctx context.Context, snap *model.Snapshot) (*model.Snapshot, error) {
	out := *snap
	if out.ID == "" {
		out.ID = uuid.New().String()
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = time.Now().UTC()
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO snapshots (id, deal_id, analysis_run_id, schema_version, config_version,
		   financial_state_hash, sha256_hash, canonical_json, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (sha256_hash) DO NOTHING`,
		out.ID, out.DealID, out.AnalysisRunID, out.SchemaVersion, out.ConfigVersion,
		out.FinancialStateHash, out.SHA256Hash, out.CanonicalJSON, out.CreatedBy, out.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert snapshot")
	}
	if tag.RowsAffected() == 0 {
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

func (s *PostgresStore) GetSnapshot(ctx context.Context, snapshotID string) (*model.Snapshot, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, deal_id, analysis_run_id, schema_version, config_version,
		   financial_state_hash, sha256_hash, canonical_json, created_by, created_at
		 FROM snapshots WHERE id = $1`,
		snapshotID,
	)
	sn, err := scanSnapshot(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get snapshot %s", snapshotID)
	}
	return sn, nil
}

func (s *PostgresStore) GetSnapshotByHash(ctx context.Context, sha256Hash string) (*model.Snapshot, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, deal_id, analysis_run_id, schema_version, config_version,
		   financial_state_hash, sha256_hash, canonical_json, created_by, created_at
		 FROM snapshots WHERE sha256_hash = $1`,
		sha256Hash,
	)
	sn, err := scanSnapshot(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get snapshot by hash")
	}
	return sn, nil
}

func (s *PostgresStore) GetLatestSnapshot(ctx context.Context, dealID string) (*model.Snapshot, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, deal_id, analysis_run_id, schema_version, config_version,
		   financial_state_hash, sha256_hash, canonical_json, created_by, created_at
		 FROM snapshots WHERE deal_id = $1
		 ORDER BY created_at DESC, id DESC LIMIT 1`,
		dealID,
	)
	sn, err := scanSnapshot(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get latest snapshot")
	}
	return sn, nil
}
