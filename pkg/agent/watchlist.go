package agent

import (
	"sort"
	"sync"
)

// Watchlist is the set of owner identities the monitor polls. Seeded from
// the watchlist file at startup and extended at runtime through the HTTP
// surface. Safe for concurrent use.
type Watchlist struct {
	mu     sync.RWMutex
	owners map[string]struct{}
}

// NewWatchlist creates a watchlist seeded with the given owners.
func NewWatchlist(seed ...string) *Watchlist {
	w := &Watchlist{owners: make(map[string]struct{}, len(seed))}
	for _, o := range seed {
		if o != "" {
			w.owners[o] = struct{}{}
		}
	}
	return w
}

// Add registers an owner. Reports whether it was newly added.
func (w *Watchlist) Add(ownerID string) bool {
	if ownerID == "" {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.owners[ownerID]; ok {
		return false
	}
	w.owners[ownerID] = struct{}{}
	return true
}

// Remove drops an owner from the watchlist.
func (w *Watchlist) Remove(ownerID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.owners, ownerID)
}

// Contains reports whether the owner is watched.
func (w *Watchlist) Contains(ownerID string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.owners[ownerID]
	return ok
}

// Owners returns the watched identities in sorted order.
func (w *Watchlist) Owners() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]string, 0, len(w.owners))
	for o := range w.owners {
		out = append(out, o)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of watched identities.
func (w *Watchlist) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.owners)
}
