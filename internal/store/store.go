// Package store defines the journal for the automation service.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
//
// The engine keeps its live state in memory; the journal records receipts
// and every execution attempt for querying and audit.
package store

import (
	"context"
	"errors"

	"github.com/atmx/debt-bridge/internal/model"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Receipts ---

	// SaveReceipt inserts a receipt or updates its status.
	SaveReceipt(ctx context.Context, r *model.ReceiptRecord) error

	// GetReceipt retrieves a receipt by id.
	GetReceipt(ctx context.Context, id uint64) (*model.ReceiptRecord, error)

	// ListReceipts returns receipts for an account, or all when account is empty.
	ListReceipts(ctx context.Context, account string) ([]model.ReceiptRecord, error)

	// --- Immutable execution journal ---

	// InsertExecution appends an execution record.
	InsertExecution(ctx context.Context, e *model.Execution) error

	// GetExecutionsByReceipt returns all attempts on a receipt.
	GetExecutionsByReceipt(ctx context.Context, receiptID uint64) ([]model.Execution, error)

	// GetExecutionsByExecutor returns all attempts by an executor.
	GetExecutionsByExecutor(ctx context.Context, executor string) ([]model.Execution, error)
}
