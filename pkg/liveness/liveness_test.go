package liveness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	counts map[string]uint64
	err    error
}

func (s *fakeSource) ActivityCount(ctx context.Context, ownerID string) (uint64, error) {
	if s.err != nil {
		return 0, s.err
	}
	return s.counts[ownerID], nil
}

func TestManualCheckerAlwaysNegative(t *testing.T) {
	alive, err := ManualChecker{}.CheckAlive(context.Background(), "alice.test")
	require.NoError(t, err)
	assert.False(t, alive)
}

func TestActivityCheckerDetectsMovement(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{counts: map[string]uint64{"alice.test": 10}}
	c := NewActivityChecker(src)

	require.NoError(t, c.Baseline(ctx, "alice.test"))
	assert.True(t, c.HasBaseline("alice.test"))

	inc, err := c.HasIncreased(ctx, "alice.test")
	require.NoError(t, err)
	assert.False(t, inc, "no movement yet")

	src.counts["alice.test"] = 11
	inc, err = c.HasIncreased(ctx, "alice.test")
	require.NoError(t, err)
	assert.True(t, inc)
}

func TestActivityCheckerNoBaselineIsNegative(t *testing.T) {
	c := NewActivityChecker(&fakeSource{counts: map[string]uint64{"alice.test": 99}})

	inc, err := c.HasIncreased(context.Background(), "alice.test")
	require.NoError(t, err)
	assert.False(t, inc)
	assert.False(t, c.HasBaseline("alice.test"))
}

func TestActivityCheckerForget(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{counts: map[string]uint64{"alice.test": 5}}
	c := NewActivityChecker(src)

	require.NoError(t, c.Baseline(ctx, "alice.test"))
	c.Forget("alice.test")
	assert.False(t, c.HasBaseline("alice.test"))
}

func TestActivityCheckerSourceError(t *testing.T) {
	src := &fakeSource{err: assert.AnError}
	c := NewActivityChecker(src)

	err := c.Baseline(context.Background(), "alice.test")
	assert.Error(t, err)
}
