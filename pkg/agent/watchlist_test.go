package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWatchlistAddRemove(t *testing.T) {
	w := NewWatchlist("b.test", "a.test", "")

	assert.Equal(t, []string{"a.test", "b.test"}, w.Owners())
	assert.True(t, w.Contains("a.test"))

	assert.True(t, w.Add("c.test"))
	assert.False(t, w.Add("c.test"), "duplicate add is a no-op")
	assert.False(t, w.Add(""))
	assert.Equal(t, 3, w.Len())

	w.Remove("b.test")
	assert.Equal(t, []string{"a.test", "c.test"}, w.Owners())
}

func TestObservationCacheEpochReset(t *testing.T) {
	c := NewObservationCache()

	assert.True(t, c.Sync("alice.test", "1000"), "first sight is a new epoch")
	c.MarkEarlyWarned("alice.test")
	c.MarkTerminalNotified("alice.test")
	assert.True(t, c.EarlyWarned("alice.test"))
	assert.True(t, c.TerminalNotified("alice.test"))

	assert.False(t, c.Sync("alice.test", "1000"), "same epoch keeps flags")
	assert.True(t, c.EarlyWarned("alice.test"))

	assert.True(t, c.Sync("alice.test", "2000"), "heartbeat starts a new epoch")
	assert.False(t, c.EarlyWarned("alice.test"))
	assert.False(t, c.TerminalNotified("alice.test"))
}

func TestObservationCacheSnapshotRestore(t *testing.T) {
	c := NewObservationCache()
	c.Sync("alice.test", "1000")
	c.MarkEarlyWarned("alice.test")

	snap := c.Snapshot()
	snap["alice.test"] = Observation{LastActiveMs: "1000", EarlyWarned: true}

	fresh := NewObservationCache()
	fresh.Restore(snap)
	assert.True(t, fresh.EarlyWarned("alice.test"))
	assert.False(t, fresh.Sync("alice.test", "1000"))

	fresh.Forget("alice.test")
	assert.False(t, fresh.EarlyWarned("alice.test"))
}
