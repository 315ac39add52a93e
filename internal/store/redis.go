package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atmx/debt-bridge/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     redis.Cmdable
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb redis.Cmdable, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, refresh cache) ---

func (s *CachedStore) SaveReceipt(ctx context.Context, r *model.ReceiptRecord) error {
	if err := s.primary.SaveReceipt(ctx, r); err != nil {
		return err
	}
	// Status changes must not be served stale.
	s.rdb.Del(ctx, receiptKey(r.ID))
	return nil
}

func (s *CachedStore) InsertExecution(ctx context.Context, e *model.Execution) error {
	if err := s.primary.InsertExecution(ctx, e); err != nil {
		return err
	}
	s.rdb.Del(ctx, executionsKey(e.ReceiptID))
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetReceipt(ctx context.Context, id uint64) (*model.ReceiptRecord, error) {
	data, err := s.rdb.Get(ctx, receiptKey(id)).Bytes()
	if err == nil {
		var r model.ReceiptRecord
		if json.Unmarshal(data, &r) == nil {
			return &r, nil
		}
	}

	r, err := s.primary.GetReceipt(ctx, id)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(r); err == nil {
		s.rdb.Set(ctx, receiptKey(id), data, s.ttl)
	}
	return r, nil
}

func (s *CachedStore) GetExecutionsByReceipt(ctx context.Context, receiptID uint64) ([]model.Execution, error) {
	data, err := s.rdb.Get(ctx, executionsKey(receiptID)).Bytes()
	if err == nil {
		var execs []model.Execution
		if json.Unmarshal(data, &execs) == nil {
			return execs, nil
		}
	}

	execs, err := s.primary.GetExecutionsByReceipt(ctx, receiptID)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(execs); err == nil {
		s.rdb.Set(ctx, executionsKey(receiptID), data, s.ttl)
	}
	return execs, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListReceipts(ctx context.Context, account string) ([]model.ReceiptRecord, error) {
	return s.primary.ListReceipts(ctx, account)
}

func (s *CachedStore) GetExecutionsByExecutor(ctx context.Context, executor string) ([]model.Execution, error) {
	return s.primary.GetExecutionsByExecutor(ctx, executor)
}

func receiptKey(id uint64) string    { return fmt.Sprintf("debtbridge:receipt:%d", id) }
func executionsKey(id uint64) string { return fmt.Sprintf("debtbridge:executions:%d", id) }
