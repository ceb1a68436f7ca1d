// Package position tracks open scalp positions and drives their
// lifecycle from fill to exit.
package position

import (
	"sync"

	"github.com/evdnx/godec/metrics"
	"github.com/evdnx/godec/types"
)

// Store is the in-memory table of open positions. It owns the
// one-OPEN-position-per-symbol invariant: Reserve gives a scan exclusive
// rights to open on a symbol, and the reservation stays held until
// Commit or Release. Reads are eventually consistent; the
// reserve/commit path is the serialized one.
type Store struct {
	mu       sync.Mutex
	open     map[string]*types.Position
	reserved map[string]bool
}

func NewStore() *Store {
	return &Store{
		open:     make(map[string]*types.Position),
		reserved: make(map[string]bool),
	}
}

// Reserve atomically claims the right to open a position on symbol.
// It fails when a position is already open or another scan holds the
// claim — the caller must skip the symbol in that case.
func (s *Store) Reserve(symbol string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reserved[symbol] {
		return false
	}
	if _, exists := s.open[symbol]; exists {
		return false
	}
	s.reserved[symbol] = true
	return true
}

// Release drops a reservation without opening a position (sizing abort,
// validation rejection, failed submit).
func (s *Store) Release(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reserved, symbol)
}

// Commit installs a filled position under a held reservation.
func (s *Store) Commit(p *types.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reserved, p.Symbol)
	s.open[p.Symbol] = p
	metrics.PositionsOpen.Set(float64(len(s.open)))
}

// HasOpen reports whether a scalp position is already open for symbol.
func (s *Store) HasOpen(symbol string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.open[symbol]
	return ok
}

// Remove drops a closed position from the open table.
func (s *Store) Remove(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.open, symbol)
	metrics.PositionsOpen.Set(float64(len(s.open)))
}

// Snapshot returns a copy of the open positions for iteration; the
// pointers themselves are only ever mutated by the lifecycle manager.
func (s *Store) Snapshot() []*types.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*types.Position, 0, len(s.open))
	for _, p := range s.open {
		out = append(out, p)
	}
	return out
}

// Len returns the number of open positions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.open)
}
