package agent

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinel-labs/sentinel/pkg/authz"
	"github.com/sentinel-labs/sentinel/pkg/contracts"
	"github.com/sentinel-labs/sentinel/pkg/liveness"
	"github.com/sentinel-labs/sentinel/pkg/notify"
	"github.com/sentinel-labs/sentinel/pkg/policy"
	"github.com/sentinel-labs/sentinel/pkg/store"
	"github.com/sentinel-labs/sentinel/pkg/vault"
)

const (
	testOwner = "alice.test"
	testHeir  = "bob.test"
	testAgent = "agent.test"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Unix(1_700_000_000, 0).UTC()}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) SetElapsed(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = time.Unix(1_700_000_000, 0).UTC().Add(d)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) Notify(ctx context.Context, event notify.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *recordingNotifier) kinds() []notify.EventKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notify.EventKind, len(n.events))
	for i, e := range n.events {
		out[i] = e.Kind
	}
	return out
}

type recordingSink struct {
	mu        sync.Mutex
	transfers map[string]uint64
}

func newRecordingSink() *recordingSink {
	return &recordingSink{transfers: make(map[string]uint64)}
}

func (s *recordingSink) Transfer(ctx context.Context, to string, amount uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transfers[to] += amount
	return nil
}

func (s *recordingSink) received(to string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transfers[to]
}

type fixture struct {
	registry *vault.Registry
	monitor  *Monitor
	clock    *testClock
	sink     *recordingSink
	events   *recordingNotifier
}

// newFixture builds a registry+monitor pair over one watched vault with a
// 60s interval and 60s grace.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := newTestClock()
	sink := newRecordingSink()
	events := &recordingNotifier{}

	registry := vault.NewRegistry(store.NewMemoryVaultStore(), authz.NewAgentSet(testAgent), clock)
	registry.SetTransferSink(sink)
	_, err := registry.Setup(context.Background(), testOwner, vault.SetupParams{
		Beneficiary: testHeir,
		Interval:    time.Minute,
		GracePeriod: time.Minute,
	})
	require.NoError(t, err)

	m := NewMonitor(registry, NewWatchlist(testOwner), MonitorConfig{
		AgentID:       testAgent,
		RatePerSecond: 1000,
		WarningDust:   1,
	}, clock)
	m.SetNotifier(events)
	m.SetTransferSink(sink)

	return &fixture{registry: registry, monitor: m, clock: clock, sink: sink, events: events}
}

func (f *fixture) view(t *testing.T) map[string]bool {
	t.Helper()
	v, err := f.registry.GetVault(context.Background(), testOwner)
	require.NoError(t, err)
	return map[string]bool{
		"expired":   v.IsExpired,
		"warning":   v.IsWarningActive,
		"yielding":  v.IsYielding,
		"completed": v.IsCompleted,
	}
}

func TestCycleIsQuietWhileAlive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.clock.SetElapsed(10 * time.Second)
	f.monitor.RunCycle(ctx)

	assert.Empty(t, f.events.kinds())
	assert.False(t, f.view(t)["warning"])
}

func TestFullEscalationSequence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.registry.Deposit(ctx, testOwner, testOwner, 900)
	require.NoError(t, err)

	// Expired with no warning: the cycle raises it and fires the dust shot.
	f.clock.SetElapsed(70 * time.Second)
	f.monitor.RunCycle(ctx)
	assert.True(t, f.view(t)["warning"])
	assert.Equal(t, uint64(1), f.sink.received(testOwner))
	assert.Equal(t, []notify.EventKind{notify.EventWarning}, f.events.kinds())

	// Mid-grace: nothing to do but wait.
	f.clock.SetElapsed(100 * time.Second)
	f.monitor.RunCycle(ctx)
	assert.False(t, f.view(t)["yielding"])

	// Grace elapsed: yield starts.
	f.clock.SetElapsed(140 * time.Second)
	f.monitor.RunCycle(ctx)
	assert.True(t, f.view(t)["yielding"])
	assert.Contains(t, f.events.kinds(), notify.EventYieldStarted)

	// Next cycle resolves: no liveness checker, no policy, so the verdict
	// stands and the transfer runs.
	f.monitor.RunCycle(ctx)
	state := f.view(t)
	assert.True(t, state["completed"])
	assert.Equal(t, uint64(900), f.sink.received(testHeir))
	assert.Contains(t, f.events.kinds(), notify.EventTransfer)

	// Completed vaults get exactly one terminal notification.
	before := len(f.events.kinds())
	f.monitor.RunCycle(ctx)
	f.monitor.RunCycle(ctx)
	after := f.events.kinds()
	assert.Len(t, after, before+1, "one completion notice, then silence")
	assert.Equal(t, notify.EventTransfer, after[len(after)-1])
}

func TestYieldCancelledWhenCheckerSeesLife(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	src := &stubSource{counts: map[string]uint64{testOwner: 1}}
	f.monitor.SetLivenessChecker(liveness.NewActivityChecker(src))

	// First cycle snapshots the activity baseline while alive.
	f.monitor.RunCycle(ctx)

	f.clock.SetElapsed(70 * time.Second)
	f.monitor.RunCycle(ctx)
	f.clock.SetElapsed(140 * time.Second)
	f.monitor.RunCycle(ctx)
	require.True(t, f.view(t)["yielding"])

	// Counter moves while yielding: the next cycle cancels instead of
	// transferring.
	src.bump(testOwner)
	f.monitor.RunCycle(ctx)
	state := f.view(t)
	assert.False(t, state["yielding"])
	assert.False(t, state["completed"])
	assert.Contains(t, f.events.kinds(), notify.EventResumed)
}

func TestPolicyBlocksResolution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := policy.NewResolutionPolicy(`owner_dead && int(vault.vault_balance) < 100`)
	require.NoError(t, err)
	f.monitor.SetResolutionPolicy(p)

	_, err = f.registry.Deposit(ctx, testOwner, testOwner, 5000)
	require.NoError(t, err)

	f.clock.SetElapsed(70 * time.Second)
	f.monitor.RunCycle(ctx)
	f.clock.SetElapsed(140 * time.Second)
	f.monitor.RunCycle(ctx)
	f.monitor.RunCycle(ctx)

	state := f.view(t)
	assert.True(t, state["yielding"], "policy holds the vault in yield")
	assert.False(t, state["completed"])
	assert.Zero(t, f.sink.received(testHeir))
}

func TestAutoExtendOnActivity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	src := &stubSource{counts: map[string]uint64{testOwner: 10}}
	f.monitor.SetLivenessChecker(liveness.NewActivityChecker(src))

	// Early cycle snapshots the baseline.
	f.clock.SetElapsed(10 * time.Second)
	f.monitor.RunCycle(ctx)

	// Danger zone with counter movement: heartbeat is extended for the
	// owner instead of warning.
	src.bump(testOwner)
	f.clock.SetElapsed(50 * time.Second)
	f.monitor.RunCycle(ctx)

	assert.Equal(t, []notify.EventKind{notify.EventAutoExtend}, f.events.kinds())
	assert.False(t, f.view(t)["expired"])

	v, err := f.registry.GetVault(ctx, testOwner)
	require.NoError(t, err)
	assert.Equal(t, "ALIVE", v.State)
}

func TestExpiredVaultAutoExtendsOnActivity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	src := &stubSource{counts: map[string]uint64{testOwner: 3}}
	f.monitor.SetLivenessChecker(liveness.NewActivityChecker(src))

	// Baseline while alive.
	f.clock.SetElapsed(10 * time.Second)
	f.monitor.RunCycle(ctx)

	// Counter moves but the next poll only lands after expiry: the owner
	// earns an implicit heartbeat, not a warning cycle.
	src.bump(testOwner)
	f.clock.SetElapsed(70 * time.Second)
	f.monitor.RunCycle(ctx)

	state := f.view(t)
	assert.False(t, state["warning"])
	assert.False(t, state["expired"])
	assert.Equal(t, []notify.EventKind{notify.EventAutoExtend}, f.events.kinds())
	assert.Zero(t, f.sink.received(testOwner), "no dust shot on auto-extend")
}

// cancellingRegistry cancels the poll context on entry and records whether
// the call context it received was cancelled along with it.
type cancellingRegistry struct {
	Registry
	cancel  context.CancelFunc
	sawDone bool
}

func (r *cancellingRegistry) GetVault(ctx context.Context, ownerID string) (*contracts.VaultView, error) {
	r.cancel()
	r.sawDone = ctx.Err() != nil
	return r.Registry.GetVault(ctx, ownerID)
}

func TestShutdownDoesNotCancelInFlightCall(t *testing.T) {
	f := newFixture(t)
	wrapped := &cancellingRegistry{Registry: f.registry}
	m := NewMonitor(wrapped, NewWatchlist(testOwner), MonitorConfig{
		AgentID:       testAgent,
		RatePerSecond: 1000,
	}, f.clock)
	m.SetNotifier(f.events)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wrapped.cancel = cancel

	f.clock.SetElapsed(70 * time.Second)
	m.RunCycle(ctx)

	assert.False(t, wrapped.sawDone, "registry call must outlive poll shutdown")
	assert.True(t, f.view(t)["warning"], "in-flight owner drains to completion")
}

func TestEarlyWarningDedupedPerEpoch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Danger zone, no activity source: early warning fires once.
	f.clock.SetElapsed(50 * time.Second)
	f.monitor.RunCycle(ctx)
	f.monitor.RunCycle(ctx)
	assert.Equal(t, []notify.EventKind{notify.EventEarlyWarning}, f.events.kinds())

	// A heartbeat opens a new epoch; the next danger zone warns again.
	f.clock.SetElapsed(55 * time.Second)
	require.NoError(t, f.registry.Heartbeat(ctx, testOwner))
	f.clock.SetElapsed(105 * time.Second)
	f.monitor.RunCycle(ctx)
	assert.Equal(t, []notify.EventKind{notify.EventEarlyWarning, notify.EventEarlyWarning}, f.events.kinds())
}

func TestKillSwitchSuppressesMutations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.monitor.SetKillSwitch(true)

	f.clock.SetElapsed(70 * time.Second)
	f.monitor.RunCycle(ctx)

	state := f.view(t)
	assert.False(t, state["warning"], "no warning while killed")
	assert.Zero(t, f.sink.received(testOwner))

	f.monitor.SetKillSwitch(false)
	f.monitor.RunCycle(ctx)
	assert.True(t, f.view(t)["warning"])
}

func TestCycleSkipsFailingOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// A watched identity with no vault must not poison the cycle.
	f.monitor.watch.Add("ghost.test")

	f.clock.SetElapsed(70 * time.Second)
	f.monitor.RunCycle(ctx)
	assert.True(t, f.view(t)["warning"], "real owner still processed")
}

type stubSource struct {
	mu     sync.Mutex
	counts map[string]uint64
}

func (s *stubSource) ActivityCount(ctx context.Context, ownerID string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[ownerID], nil
}

func (s *stubSource) bump(ownerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[ownerID]++
}
