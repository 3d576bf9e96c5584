package gateway

import (
	"sync"
	"time"

	"github.com/drblury/quoteflow/internal/quote"
)

const DefaultBoardSize = 100

// Entry is a quote as the gateway received it.
type Entry struct {
	ID            string    `json:"id"`
	Price         int       `json:"price"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	ReceivedAt    time.Time `json:"received_at"`
}

func (e Entry) Quote() quote.Quote { return quote.New(e.ID, e.Price) }

// Board keeps the most recent quotes in memory. Once full, the oldest entry
// is evicted for every new one.
type Board struct {
	mu      sync.RWMutex
	entries []Entry
	next    int
	full    bool
	byID    map[string]int
}

// NewBoard returns a Board holding at most size quotes. size <= 0 selects
// DefaultBoardSize.
func NewBoard(size int) *Board {
	if size <= 0 {
		size = DefaultBoardSize
	}
	return &Board{
		entries: make([]Entry, size),
		byID:    make(map[string]int, size),
	}
}

// Add records e. A later quote for the same ID shadows the earlier one in Get.
func (b *Board) Add(e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.full {
		evicted := b.entries[b.next]
		if idx, ok := b.byID[evicted.ID]; ok && idx == b.next {
			delete(b.byID, evicted.ID)
		}
	}

	b.entries[b.next] = e
	b.byID[e.ID] = b.next
	b.next = (b.next + 1) % len(b.entries)
	if b.next == 0 {
		b.full = true
	}
}

// Get returns the latest quote recorded for id.
func (b *Board) Get(id string) (Entry, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	idx, ok := b.byID[id]
	if !ok {
		return Entry{}, false
	}
	return b.entries[idx], true
}

// Recent returns up to limit quotes, newest first. limit <= 0 returns all.
func (b *Board) Recent(limit int) []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := b.lenLocked()
	if limit > 0 && limit < n {
		n = limit
	}

	out := make([]Entry, 0, n)
	for i := 1; i <= n; i++ {
		idx := (b.next - i + len(b.entries)) % len(b.entries)
		out = append(out, b.entries[idx])
	}
	return out
}

// Len reports how many quotes the board holds.
func (b *Board) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lenLocked()
}

func (b *Board) lenLocked() int {
	if b.full {
		return len(b.entries)
	}
	return b.next
}
