// Package ledger is an append-only, hash-chained log of accepted vault
// transitions. It is an audit trail, not the source of truth: vault state
// lives in the record store, and losing the ledger never changes a vault's
// behavior.
package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gowebpki/jcs"
)

// Entry is an immutable, hash-chained transition record. The content hash
// is computed over the JCS-canonicalized JSON of the hashed fields, so two
// processes hashing the same transition always agree byte for byte.
type Entry struct {
	Sequence    uint64         `json:"sequence"`
	Operation   string         `json:"operation"`
	OwnerID     string         `json:"owner_id"`
	Caller      string         `json:"caller"`
	Status      string         `json:"status,omitempty"`
	ContentHash string         `json:"content_hash"`
	PrevHash    string         `json:"prev_hash"`
	Timestamp   time.Time      `json:"timestamp"`
	Data        map[string]any `json:"data,omitempty"`
}

// TransitionLedger is safe for concurrent use.
type TransitionLedger struct {
	mu       sync.RWMutex
	entries  []Entry
	headHash string
	clock    func() time.Time
}

// NewTransitionLedger creates an empty ledger.
func NewTransitionLedger() *TransitionLedger {
	return &TransitionLedger{
		entries:  make([]Entry, 0),
		headHash: "genesis",
		clock:    time.Now,
	}
}

// WithClock overrides the clock for testing.
func (l *TransitionLedger) WithClock(clock func() time.Time) *TransitionLedger {
	l.clock = clock
	return l
}

func entryHash(seq uint64, op, owner, caller, status string, data map[string]any, prevHash string) (string, error) {
	hashInput := struct {
		Seq    uint64         `json:"seq"`
		Op     string         `json:"op"`
		Owner  string         `json:"owner"`
		Caller string         `json:"caller"`
		Status string         `json:"status"`
		Data   map[string]any `json:"data"`
		Prev   string         `json:"prev"`
	}{seq, op, owner, caller, status, data, prevHash}

	raw, err := json.Marshal(hashInput)
	if err != nil {
		return "", fmt.Errorf("marshal entry: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize entry: %w", err)
	}
	h := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(h[:]), nil
}

// Append records an accepted transition. Returns the sequence number.
func (l *TransitionLedger) Append(op, owner, caller, status string, data map[string]any) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	seq := uint64(len(l.entries)) + 1
	contentHash, err := entryHash(seq, op, owner, caller, status, data, l.headHash)
	if err != nil {
		return 0, err
	}

	l.entries = append(l.entries, Entry{
		Sequence:    seq,
		Operation:   op,
		OwnerID:     owner,
		Caller:      caller,
		Status:      status,
		ContentHash: contentHash,
		PrevHash:    l.headHash,
		Timestamp:   l.clock(),
		Data:        data,
	})
	l.headHash = contentHash

	return seq, nil
}

// Get retrieves an entry by sequence number.
func (l *TransitionLedger) Get(seq uint64) (*Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if seq == 0 || seq > uint64(len(l.entries)) {
		return nil, fmt.Errorf("entry %d not found", seq)
	}
	entry := l.entries[seq-1]
	return &entry, nil
}

// ForOwner returns all entries recorded for an owner, in order.
func (l *TransitionLedger) ForOwner(owner string) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Entry
	for _, e := range l.entries {
		if e.OwnerID == owner {
			out = append(out, e)
		}
	}
	return out
}

// Head returns the current head hash.
func (l *TransitionLedger) Head() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.headHash
}

// Length returns the number of entries.
func (l *TransitionLedger) Length() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Verify checks the integrity of the entire chain.
func (l *TransitionLedger) Verify() (bool, string) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	prevHash := "genesis"
	for i, entry := range l.entries {
		if entry.PrevHash != prevHash {
			return false, fmt.Sprintf("chain broken at entry %d: expected prev %s, got %s", i+1, prevHash, entry.PrevHash)
		}

		computed, err := entryHash(entry.Sequence, entry.Operation, entry.OwnerID, entry.Caller, entry.Status, entry.Data, entry.PrevHash)
		if err != nil {
			return false, fmt.Sprintf("failed to rehash entry %d", i+1)
		}
		if computed != entry.ContentHash {
			return false, fmt.Sprintf("hash mismatch at entry %d", i+1)
		}
		prevHash = entry.ContentHash
	}

	return true, "chain verified"
}
