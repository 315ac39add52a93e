package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/atmx/debt-bridge/internal/model"
)

// Schema creates the journal tables. Amounts are NUMERIC for exact
// decimal precision.
const Schema = `
CREATE TABLE IF NOT EXISTS receipts (
	id           BIGINT PRIMARY KEY,
	account      TEXT NOT NULL,
	provider     TEXT NOT NULL,
	module       TEXT NOT NULL,
	task_index   INTEGER NOT NULL,
	task_count   INTEGER NOT NULL,
	status       TEXT NOT NULL,
	expiry       TIMESTAMPTZ,
	submitted_at TIMESTAMPTZ NOT NULL,
	tasks        JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS receipts_account_idx ON receipts (account);

CREATE TABLE IF NOT EXISTS executions (
	id               UUID PRIMARY KEY,
	receipt_id       BIGINT NOT NULL,
	executor         TEXT NOT NULL,
	provider         TEXT NOT NULL,
	outcome          TEXT NOT NULL,
	reason           TEXT NOT NULL DEFAULT '',
	next_receipt_id  BIGINT NOT NULL DEFAULT 0,
	cost_used        BIGINT NOT NULL,
	cost_price       NUMERIC NOT NULL,
	payout           NUMERIC NOT NULL,
	executor_share   NUMERIC NOT NULL,
	platform_share   NUMERIC NOT NULL,
	collateral_moved NUMERIC NOT NULL,
	debt_moved       NUMERIC NOT NULL,
	fee              NUMERIC NOT NULL,
	timestamp        TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS executions_receipt_idx ON executions (receipt_id);
CREATE INDEX IF NOT EXISTS executions_executor_idx ON executions (executor);
`

// PostgresStore implements Store using PostgreSQL as the source of truth.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate applies Schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveReceipt(ctx context.Context, r *model.ReceiptRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO receipts (id, account, provider, module, task_index, task_count, status, expiry, submitted_at, tasks)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::JSONB)
		 ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status`,
		int64(r.ID), r.Account, r.Provider, r.Module,
		r.Index, r.TaskCount, r.Status,
		r.Expiry, r.SubmittedAt, string(r.Tasks),
	)
	return err
}

const receiptColumns = `id, account, provider, module, task_index, task_count, status, expiry, submitted_at, tasks::TEXT`

func (s *PostgresStore) GetReceipt(ctx context.Context, id uint64) (*model.ReceiptRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+receiptColumns+` FROM receipts WHERE id = $1`, int64(id))
	r, err := scanReceipt(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("receipt %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get receipt %d: %w", id, err)
	}
	return r, nil
}

func (s *PostgresStore) ListReceipts(ctx context.Context, account string) ([]model.ReceiptRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+receiptColumns+` FROM receipts
		 WHERE $1 = '' OR account = $1 ORDER BY id`, account)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ReceiptRecord
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) InsertExecution(ctx context.Context, e *model.Execution) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO executions (id, receipt_id, executor, provider, outcome, reason, next_receipt_id,
		                         cost_used, cost_price, payout, executor_share, platform_share,
		                         collateral_moved, debt_moved, fee, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8,
		         $9::NUMERIC, $10::NUMERIC, $11::NUMERIC, $12::NUMERIC,
		         $13::NUMERIC, $14::NUMERIC, $15::NUMERIC, $16)`,
		e.ID, int64(e.ReceiptID), e.Executor, e.Provider, e.Outcome, e.Reason, int64(e.NextID),
		int64(e.CostUsed), e.CostPrice.String(), e.Payout.String(),
		e.ExecutorShare.String(), e.PlatformShare.String(),
		e.CollateralMoved.String(), e.DebtMoved.String(), e.Fee.String(),
		e.Timestamp,
	)
	return err
}

const executionColumns = `id::TEXT, receipt_id, executor, provider, outcome, reason, next_receipt_id,
	cost_used, cost_price::TEXT, payout::TEXT, executor_share::TEXT, platform_share::TEXT,
	collateral_moved::TEXT, debt_moved::TEXT, fee::TEXT, timestamp`

func (s *PostgresStore) GetExecutionsByReceipt(ctx context.Context, receiptID uint64) ([]model.Execution, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+executionColumns+` FROM executions WHERE receipt_id = $1 ORDER BY timestamp`, int64(receiptID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanExecutions(rows)
}

func (s *PostgresStore) GetExecutionsByExecutor(ctx context.Context, executor string) ([]model.Execution, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+executionColumns+` FROM executions WHERE executor = $1 ORDER BY timestamp`, executor)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanExecutions(rows)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReceipt(row rowScanner) (*model.ReceiptRecord, error) {
	var r model.ReceiptRecord
	var id int64
	var tasks string
	if err := row.Scan(&id, &r.Account, &r.Provider, &r.Module,
		&r.Index, &r.TaskCount, &r.Status,
		&r.Expiry, &r.SubmittedAt, &tasks); err != nil {
		return nil, err
	}
	r.ID = uint64(id)
	r.Tasks = []byte(tasks)
	return &r, nil
}

// pgxRows is the subset of pgx.Rows the scanners need.
type pgxRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanExecutions(rows pgxRows) ([]model.Execution, error) {
	var out []model.Execution
	for rows.Next() {
		var e model.Execution
		var receiptID, nextID, costUsed int64
		var costPrice, payout, execShare, platShare, moved, debt, fee string

		if err := rows.Scan(&e.ID, &receiptID, &e.Executor, &e.Provider, &e.Outcome, &e.Reason, &nextID,
			&costUsed, &costPrice, &payout, &execShare, &platShare,
			&moved, &debt, &fee, &e.Timestamp); err != nil {
			return nil, err
		}

		e.ReceiptID = uint64(receiptID)
		e.NextID = uint64(nextID)
		e.CostUsed = uint64(costUsed)
		e.CostPrice, _ = decimal.NewFromString(costPrice)
		e.Payout, _ = decimal.NewFromString(payout)
		e.ExecutorShare, _ = decimal.NewFromString(execShare)
		e.PlatformShare, _ = decimal.NewFromString(platShare)
		e.CollateralMoved, _ = decimal.NewFromString(moved)
		e.DebtMoved, _ = decimal.NewFromString(debt)
		e.Fee, _ = decimal.NewFromString(fee)

		out = append(out, e)
	}
	return out, rows.Err()
}
