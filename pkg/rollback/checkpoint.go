package rollback

import (
	"sync"
	"time"

	"github.com/bft-labs/mapkit/pkg/lifecycle"
)

// DefaultHistorySize is the number of checkpoints retained.
const DefaultHistorySize = 5

// MapFlags records what existed of the widget itself.
type MapFlags struct {
	IsInitialized bool `json:"is_initialized"`
	IsStyleLoaded bool `json:"is_style_loaded"`
}

// Checkpoint is an immutable snapshot of lifecycle, resource and widget
// state. It is passed and stored by value.
type Checkpoint struct {
	Label     string                  `json:"label"`
	State     lifecycle.State         `json:"state"`
	Resources lifecycle.ResourceFlags `json:"resources"`
	Map       MapFlags                `json:"map"`
	Timestamp time.Time               `json:"timestamp"`
}

// History is a bounded FIFO of checkpoints. The oldest entry is evicted on
// overflow.
type History struct {
	mu    sync.RWMutex
	items []Checkpoint
	size  int
}

// NewHistory creates a history holding at most size checkpoints.
func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{size: size, items: make([]Checkpoint, 0, size)}
}

// Push appends cp, evicting the oldest checkpoint when full.
func (h *History) Push(cp Checkpoint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.items) == h.size {
		copy(h.items, h.items[1:])
		h.items = h.items[:h.size-1]
	}
	h.items = append(h.items, cp)
}

// Latest returns the most recent checkpoint.
func (h *History) Latest() (Checkpoint, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.items) == 0 {
		return Checkpoint{}, false
	}
	return h.items[len(h.items)-1], true
}

// All returns the checkpoints oldest first.
func (h *History) All() []Checkpoint {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]Checkpoint(nil), h.items...)
}

// Len returns the number of retained checkpoints.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.items)
}

// Clear drops every checkpoint.
func (h *History) Clear() {
	h.mu.Lock()
	h.items = h.items[:0]
	h.mu.Unlock()
}
