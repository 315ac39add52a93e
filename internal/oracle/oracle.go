// Package oracle resolves price queries to WAD prices.
//
// A Resolver maps currency pairs to Feeds. Feeds are external collaborators;
// the package ships a settable StaticFeed used by configuration and tests.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
)

var (
	// ErrPriceUnavailable is returned when a feed has no usable price.
	ErrPriceUnavailable = errors.New("oracle: price unavailable")

	// ErrPairNotSupported is returned for a pair with no registered feed.
	ErrPairNotSupported = errors.New("oracle: currency pair not supported")

	// ErrOracleAlreadySet is returned when registering a pair twice.
	ErrOracleAlreadySet = errors.New("oracle: already set")
)

// Feed returns the current price as a WAD.
type Feed interface {
	Price(ctx context.Context) (*big.Int, error)
}

// StaticFeed holds a price set by its owner. Safe for concurrent use.
type StaticFeed struct {
	mu    sync.RWMutex
	price *big.Int
}

// NewStaticFeed creates a feed with an initial price; nil means unset.
func NewStaticFeed(price *big.Int) *StaticFeed {
	f := &StaticFeed{}
	f.SetPrice(price)
	return f
}

// SetPrice replaces the price.
func (f *StaticFeed) SetPrice(price *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if price == nil {
		f.price = nil
		return
	}
	f.price = new(big.Int).Set(price)
}

func (f *StaticFeed) Price(ctx context.Context) (*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.price == nil || f.price.Sign() <= 0 {
		return nil, ErrPriceUnavailable
	}
	return new(big.Int).Set(f.price), nil
}

// Resolver maps pairs to feeds.
type Resolver struct {
	mu    sync.RWMutex
	feeds map[string]Feed
}

// NewResolver creates an empty resolver.
func NewResolver() *Resolver {
	return &Resolver{feeds: make(map[string]Feed)}
}

// AddOracle registers the feed for a pair. A pair can be set only once.
func (r *Resolver) AddOracle(pair string, feed Feed) error {
	p, err := ParsePair(pair)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.feeds[p.String()]; ok {
		return fmt.Errorf("%w: %s", ErrOracleAlreadySet, p)
	}
	r.feeds[p.String()] = feed
	return nil
}

// Price resolves a query such as "ETH/USD".
func (r *Resolver) Price(ctx context.Context, query string) (*big.Int, error) {
	r.mu.RLock()
	feed, ok := r.feeds[query]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPairNotSupported, query)
	}
	price, err := feed.Price(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", query, err)
	}
	return price, nil
}

// Pairs lists the registered pairs in sorted order.
func (r *Resolver) Pairs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.feeds))
	for p := range r.feeds {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
