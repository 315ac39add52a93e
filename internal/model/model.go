// Package model defines the journal records shared by the store and the
// automation service. Amounts are decimals in token units; never float64.
package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Execution outcomes.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
)

// ReceiptRecord is the journal form of a task receipt. Tasks holds the
// JSON-encoded task chain so a record can be replayed into an engine.
type ReceiptRecord struct {
	ID          uint64          `json:"id" db:"id"`
	Account     string          `json:"account" db:"account"`
	Provider    string          `json:"provider" db:"provider"`
	Module      string          `json:"module" db:"module"`
	Index       int             `json:"index" db:"task_index"`
	TaskCount   int             `json:"task_count" db:"task_count"`
	Status      string          `json:"status" db:"status"` // "submitted", "consumed"
	Expiry      *time.Time      `json:"expiry,omitempty" db:"expiry"`
	SubmittedAt time.Time       `json:"submitted_at" db:"submitted_at"`
	Tasks       json.RawMessage `json:"tasks" db:"tasks"`
}

// Execution is an immutable record of one exec attempt, successful or not.
// Settlement and plan fields are zero for failures.
type Execution struct {
	ID        string `json:"id" db:"id"`
	ReceiptID uint64 `json:"receipt_id" db:"receipt_id"`
	Executor  string `json:"executor" db:"executor"`
	Provider  string `json:"provider" db:"provider"`
	Outcome   string `json:"outcome" db:"outcome"`
	Reason    string `json:"reason,omitempty" db:"reason"`
	NextID    uint64 `json:"next_receipt_id,omitempty" db:"next_receipt_id"`

	CostUsed      uint64          `json:"cost_used" db:"cost_used"`
	CostPrice     decimal.Decimal `json:"cost_price" db:"cost_price"` // native units per cost unit
	Payout        decimal.Decimal `json:"payout" db:"payout"`
	ExecutorShare decimal.Decimal `json:"executor_share" db:"executor_share"`
	PlatformShare decimal.Decimal `json:"platform_share" db:"platform_share"`

	CollateralMoved decimal.Decimal `json:"collateral_moved" db:"collateral_moved"`
	DebtMoved       decimal.Decimal `json:"debt_moved" db:"debt_moved"`
	Fee             decimal.Decimal `json:"fee" db:"fee"`

	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}

// ExecutorSummary aggregates an executor's journal.
type ExecutorSummary struct {
	Executor    string          `json:"executor"`
	Executions  int             `json:"executions"`
	Failures    int             `json:"failures"`
	TotalEarned decimal.Decimal `json:"total_earned"`
	CostUsed    uint64          `json:"cost_used"`
}

// Summarize folds executions into a summary for one executor.
func Summarize(executor string, execs []Execution) ExecutorSummary {
	s := ExecutorSummary{Executor: executor, TotalEarned: decimal.Zero}
	for _, e := range execs {
		if e.Executor != executor {
			continue
		}
		if e.Outcome != OutcomeSucceeded {
			s.Failures++
			continue
		}
		s.Executions++
		s.TotalEarned = s.TotalEarned.Add(e.ExecutorShare)
		s.CostUsed += e.CostUsed
	}
	return s
}
