package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/atmx/debt-bridge/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu         sync.RWMutex
	receipts   map[uint64]*model.ReceiptRecord
	executions []model.Execution
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		receipts: make(map[uint64]*model.ReceiptRecord),
	}
}

func (s *MemoryStore) SaveReceipt(_ context.Context, r *model.ReceiptRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to avoid external mutation.
	cp := *r
	s.receipts[r.ID] = &cp
	return nil
}

func (s *MemoryStore) GetReceipt(_ context.Context, id uint64) (*model.ReceiptRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.receipts[id]
	if !ok {
		return nil, fmt.Errorf("receipt %d: %w", id, ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryStore) ListReceipts(_ context.Context, account string) ([]model.ReceiptRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.ReceiptRecord, 0, len(s.receipts))
	for _, r := range s.receipts {
		if account == "" || r.Account == account {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) InsertExecution(_ context.Context, e *model.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.executions {
		if existing.ID == e.ID {
			return fmt.Errorf("execution %s already recorded", e.ID)
		}
	}
	s.executions = append(s.executions, *e)
	return nil
}

func (s *MemoryStore) GetExecutionsByReceipt(_ context.Context, receiptID uint64) ([]model.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Execution
	for _, e := range s.executions {
		if e.ReceiptID == receiptID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *MemoryStore) GetExecutionsByExecutor(_ context.Context, executor string) ([]model.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Execution
	for _, e := range s.executions {
		if e.Executor == executor {
			out = append(out, e)
		}
	}
	return out, nil
}
