package contracts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func baseRecord(t0 time.Time) *VaultRecord {
	return &VaultRecord{
		OwnerID:           "alice.test",
		BeneficiaryID:     "bob.test",
		HeartbeatInterval: 60 * time.Second,
		GracePeriod:       60 * time.Second,
		LastActive:        t0,
	}
}

func TestExpiryIsStrict(t *testing.T) {
	t0 := time.Unix(1000, 0)
	r := baseRecord(t0)

	assert.False(t, r.Expired(t0.Add(60*time.Second)), "at the deadline is not expired")
	assert.True(t, r.Expired(t0.Add(60*time.Second+time.Nanosecond)))
}

func TestDeriveStatePrecedence(t *testing.T) {
	t0 := time.Unix(1000, 0)
	now := t0.Add(2 * time.Minute)

	r := baseRecord(t0)
	assert.Equal(t, StateExpired, DeriveState(r, now).Kind)

	r.WarningTriggeredAt = now
	assert.Equal(t, StateWarningActive, DeriveState(r, now).Kind)

	r.IsYielding = true
	assert.Equal(t, StateYieldPending, DeriveState(r, now).Kind)

	r.IsYielding = false
	r.IsEmergency = true
	r.IsCompleted = true
	assert.Equal(t, StateCompleted, DeriveState(r, now).Kind)
}

func TestDeriveStateAlive(t *testing.T) {
	t0 := time.Unix(1000, 0)
	r := baseRecord(t0)
	st := DeriveState(r, t0.Add(30*time.Second))
	assert.Equal(t, StateAlive, st.Kind)
	assert.Equal(t, "ALIVE", st.Kind.String())
}

func TestExecutionReady(t *testing.T) {
	t0 := time.Unix(1000, 0)
	r := baseRecord(t0)

	// Expired but never warned: not ready.
	assert.False(t, r.ExecutionReady(t0.Add(90*time.Second)))

	r.WarningTriggeredAt = t0.Add(70 * time.Second)
	assert.False(t, r.ExecutionReady(t0.Add(100*time.Second)), "mid-grace")
	assert.True(t, r.ExecutionReady(t0.Add(130*time.Second)), "grace elapsed")
}

func TestViewDerivedFields(t *testing.T) {
	t0 := time.Unix(1000, 0)
	r := baseRecord(t0)
	r.Balance = 1000

	v := NewVaultView(r, t0.Add(30*time.Second))
	assert.Equal(t, "1000", v.VaultBalance)
	assert.Equal(t, "30000", v.TimeRemainingMs)
	assert.Equal(t, "60000", v.HeartbeatIntervalMs)
	assert.False(t, v.IsExpired)
	assert.Equal(t, "ALIVE", v.State)

	r.WarningTriggeredAt = t0.Add(70 * time.Second)
	v = NewVaultView(r, t0.Add(100*time.Second))
	assert.True(t, v.IsExpired)
	assert.True(t, v.IsWarningActive)
	assert.False(t, v.IsExecutionReady)
	assert.Equal(t, "0", v.TimeRemainingMs)
	assert.Equal(t, "30000", v.WarningGraceRemainingMs)
}
