package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/debt-bridge/internal/model"
)

func TestMemoryStore_Receipts(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	r := &model.ReceiptRecord{ID: 1, Account: "0xaa", Status: "submitted", SubmittedAt: time.Now().UTC()}
	if err := s.SaveReceipt(ctx, r); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveReceipt(ctx, &model.ReceiptRecord{ID: 2, Account: "0xbb", Status: "submitted"}); err != nil {
		t.Fatal(err)
	}

	// Mutating the caller's copy must not leak into the store.
	r.Status = "consumed"
	got, err := s.GetReceipt(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != "submitted" {
		t.Errorf("status = %q, want submitted", got.Status)
	}

	r.Status = "consumed"
	if err := s.SaveReceipt(ctx, r); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetReceipt(ctx, 1)
	if got.Status != "consumed" {
		t.Errorf("status after update = %q", got.Status)
	}

	list, _ := s.ListReceipts(ctx, "0xaa")
	if len(list) != 1 || list[0].ID != 1 {
		t.Errorf("ListReceipts(0xaa) = %+v", list)
	}
	all, _ := s.ListReceipts(ctx, "")
	if len(all) != 2 || all[0].ID != 1 || all[1].ID != 2 {
		t.Errorf("ListReceipts() = %+v", all)
	}

	if _, err := s.GetReceipt(ctx, 99); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetReceipt(99) err = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_Executions(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	e := &model.Execution{ID: "a", ReceiptID: 1, Executor: "0xe1", Outcome: model.OutcomeSucceeded, ExecutorShare: decimal.RequireFromString("0.215175")}
	if err := s.InsertExecution(ctx, e); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertExecution(ctx, e); err == nil {
		t.Error("duplicate execution id accepted")
	}
	_ = s.InsertExecution(ctx, &model.Execution{ID: "b", ReceiptID: 2, Executor: "0xe1", Outcome: model.OutcomeFailed})

	byReceipt, _ := s.GetExecutionsByReceipt(ctx, 1)
	if len(byReceipt) != 1 {
		t.Errorf("by receipt = %d records, want 1", len(byReceipt))
	}
	byExec, _ := s.GetExecutionsByExecutor(ctx, "0xe1")
	if len(byExec) != 2 {
		t.Errorf("by executor = %d records, want 2", len(byExec))
	}

	sum := model.Summarize("0xe1", byExec)
	if sum.Executions != 1 || sum.Failures != 1 {
		t.Errorf("summary = %+v", sum)
	}
	if !sum.TotalEarned.Equal(decimal.RequireFromString("0.215175")) {
		t.Errorf("earned = %s", sum.TotalEarned)
	}
}
