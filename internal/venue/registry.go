package venue

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
)

// handleRegex matches: {venue}:{market}
// Example: maker:ETH-A
var handleRegex = regexp.MustCompile(`^([a-z][a-z0-9-]*):([A-Z0-9][A-Z0-9-]*)$`)

var ErrInvalidHandle = errors.New("venue: invalid market handle")

// ParseMarketHandle splits a handle such as "maker:ETH-A".
func ParseMarketHandle(handle string) (venueName, market string, err error) {
	m := handleRegex.FindStringSubmatch(handle)
	if m == nil {
		return "", "", fmt.Errorf("%w: %q (expected venue:MARKET)", ErrInvalidHandle, handle)
	}
	return m[1], m[2], nil
}

// Registry groups the books of every configured venue.
type Registry struct {
	books map[string]*Book
}

// NewRegistry creates a registry over the given books.
func NewRegistry(books ...*Book) *Registry {
	r := &Registry{books: make(map[string]*Book, len(books))}
	for _, b := range books {
		r.books[b.Name()] = b
	}
	return r
}

// Book returns the named venue.
func (r *Registry) Book(name string) (*Book, error) {
	b, ok := r.books[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVenue, name)
	}
	return b, nil
}

// Market resolves a market handle.
func (r *Registry) Market(handle string) (Market, error) {
	v, m, err := ParseMarketHandle(handle)
	if err != nil {
		return Market{}, err
	}
	b, err := r.Book(v)
	if err != nil {
		return Market{}, err
	}
	return b.Market(m)
}

// Position returns a copy of the referenced position.
func (r *Registry) Position(ref Ref) (Position, error) {
	b, err := r.Book(ref.Venue)
	if err != nil {
		return Position{}, err
	}
	return b.Position(ref.ID)
}

// Names lists the venues in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.books))
	for name := range r.books {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Clone returns a deep copy of every book.
func (r *Registry) Clone() *Registry {
	c := &Registry{books: make(map[string]*Book, len(r.books))}
	for name, b := range r.books {
		c.books[name] = b.Clone()
	}
	return c
}
