// Package agent runs the monitoring loop: it polls watched vaults, walks
// each through the warning and yield protocol as deadlines pass, and
// auto-extends owners whose activity shows they are alive.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/sentinel-labs/sentinel/pkg/contracts"
	"github.com/sentinel-labs/sentinel/pkg/liveness"
	"github.com/sentinel-labs/sentinel/pkg/notify"
	"github.com/sentinel-labs/sentinel/pkg/policy"
	"github.com/sentinel-labs/sentinel/pkg/vault"
)

// dangerZoneFraction is how much of the heartbeat interval may elapse
// before the monitor starts treating an owner as at risk.
const dangerZoneFraction = 0.75

// Registry is the subset of vault operations the monitor drives.
type Registry interface {
	GetVault(ctx context.Context, ownerID string) (*contracts.VaultView, error)
	TriggerWarning(ctx context.Context, caller, ownerID string) (contracts.WarningResult, error)
	BeginYield(ctx context.Context, caller, ownerID string) (contracts.PulseResult, error)
	ResolveYield(ctx context.Context, caller, ownerID string, confirmDeath bool) (contracts.ResolveResult, error)
	AgentExtend(ctx context.Context, caller, ownerID string) error
}

// MonitorConfig carries the monitor's tunables.
type MonitorConfig struct {
	// AgentID is the identity used for agent-authorized calls.
	AgentID string

	// PollInterval is the cycle period. Zero means 60s.
	PollInterval time.Duration

	// CallTimeout bounds each registry call. Zero means 30s.
	CallTimeout time.Duration

	// RatePerSecond paces per-owner processing. Zero means 5/s.
	RatePerSecond float64

	// WarningDust, when nonzero, is the symbolic amount sent to the owner
	// alongside the warning so wallet notifications fire too.
	WarningDust uint64
}

// Monitor polls the watchlist and drives vault transitions.
type Monitor struct {
	registry Registry
	watch    *Watchlist
	cache    *ObservationCache
	cfg      MonitorConfig

	checker  liveness.Checker
	activity *liveness.ActivityChecker
	policy   *policy.ResolutionPolicy
	notifier notify.Notifier
	sink     vault.TransferSink
	persist  Persister

	clock   vault.Clock
	limiter *rate.Limiter
	logger  *slog.Logger
	metrics Metrics

	// killed suppresses every mutating call while set. Observation and
	// notifications continue so operators keep visibility.
	killed atomic.Bool
}

// NewMonitor wires a monitor over the registry. checker may be nil, in
// which case no positive liveness source exists and yielding vaults rest
// on the resolution policy alone.
func NewMonitor(registry Registry, watch *Watchlist, cfg MonitorConfig, clock vault.Clock) *Monitor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 5
	}
	if clock == nil {
		clock = wallClock{}
	}
	return &Monitor{
		registry: registry,
		watch:    watch,
		cache:    NewObservationCache(),
		cfg:      cfg,
		notifier: notify.NewLogNotifier(nil),
		clock:    clock,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1),
		logger:   slog.Default().With("component", "monitor"),
	}
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// SetLivenessChecker injects the liveness strategy consulted for yielding
// vaults. If the checker is an ActivityChecker it also powers the
// danger-zone auto-extend.
func (m *Monitor) SetLivenessChecker(c liveness.Checker) {
	m.checker = c
	if ac, ok := c.(*liveness.ActivityChecker); ok {
		m.activity = ac
	}
}

// SetResolutionPolicy injects the CEL gate applied before confirm_death.
func (m *Monitor) SetResolutionPolicy(p *policy.ResolutionPolicy) {
	m.policy = p
}

// SetNotifier replaces the default log notifier.
func (m *Monitor) SetNotifier(n notify.Notifier) {
	if n != nil {
		m.notifier = n
	}
}

// SetTransferSink injects the sink used for warning-shot dust transfers.
func (m *Monitor) SetTransferSink(s vault.TransferSink) {
	m.sink = s
}

// SetPersister injects observation-cache persistence.
func (m *Monitor) SetPersister(p Persister) {
	m.persist = p
}

// Metrics receives monitor telemetry.
type Metrics interface {
	RecordPollCycle(ctx context.Context, watched int)
	RecordError(ctx context.Context, component string, err error)
}

// SetMetrics injects the telemetry sink.
func (m *Monitor) SetMetrics(metrics Metrics) {
	m.metrics = metrics
}

// SetLogger overrides the default logger.
func (m *Monitor) SetLogger(logger *slog.Logger) {
	if logger != nil {
		m.logger = logger.With("component", "monitor")
	}
}

// SetKillSwitch toggles suppression of all mutating calls.
func (m *Monitor) SetKillSwitch(on bool) {
	m.killed.Store(on)
	if on {
		m.logger.Warn("kill switch engaged, mutations suppressed")
	}
}

// KillSwitchEngaged reports the current kill switch state.
func (m *Monitor) KillSwitchEngaged() bool {
	return m.killed.Load()
}

// Run polls until the context is cancelled. The in-flight cycle finishes
// before Run returns.
func (m *Monitor) Run(ctx context.Context) error {
	if m.persist != nil {
		obs, err := m.persist.Load(ctx)
		if err != nil {
			m.logger.Warn("observation restore failed, starting cold", "error", err)
		} else {
			m.cache.Restore(obs)
		}
	}

	m.logger.Info("monitor started",
		"poll_interval", m.cfg.PollInterval, "watched", m.watch.Len())

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	m.RunCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("monitor stopping")
			return ctx.Err()
		case <-ticker.C:
			m.RunCycle(ctx)
		}
	}
}

// CheckNow runs one out-of-band check for a single owner, outside the poll
// schedule. Used when an owner is registered so an already-expired vault
// does not wait a full poll interval.
func (m *Monitor) CheckNow(ctx context.Context, ownerID string) error {
	return m.processOwner(ctx, ownerID)
}

// RunCycle processes every watched owner once. Exported so the cycle can be
// driven deterministically without the ticker.
func (m *Monitor) RunCycle(ctx context.Context) {
	for _, ownerID := range m.watch.Owners() {
		if err := m.limiter.Wait(ctx); err != nil {
			return
		}
		if err := m.processOwner(ctx, ownerID); err != nil {
			m.logger.Error("owner cycle failed", "owner", ownerID, "error", err)
			if m.metrics != nil {
				m.metrics.RecordError(ctx, "monitor", err)
			}
		}
	}
	if m.metrics != nil {
		m.metrics.RecordPollCycle(ctx, m.watch.Len())
	}

	if m.persist != nil {
		if err := m.persist.Save(ctx, m.cache.Snapshot()); err != nil {
			m.logger.Warn("observation persist failed", "error", err)
		}
	}
}

func (m *Monitor) processOwner(ctx context.Context, ownerID string) error {
	// Detached from the poll context: shutdown waits for the in-flight
	// owner to finish instead of cancelling its registry call mid-operation.
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.CallTimeout)
	defer cancel()

	view, err := m.registry.GetVault(callCtx, ownerID)
	if err != nil {
		return fmt.Errorf("fetch vault: %w", err)
	}

	if m.cache.Sync(ownerID, view.LastActiveMs) && m.activity != nil {
		// Fresh heartbeat epoch: the old activity baseline is stale.
		m.activity.Forget(ownerID)
	}

	switch {
	case view.IsCompleted:
		return m.handleCompleted(callCtx, ownerID, view)
	case view.IsYielding:
		return m.handleYielding(callCtx, ownerID, view)
	case view.IsExecutionReady:
		return m.handleExecutionReady(callCtx, ownerID, view)
	case view.IsWarningActive:
		m.logger.Warn("grace period running",
			"owner", ownerID, "grace_remaining_ms", view.WarningGraceRemainingMs)
		return nil
	case view.IsExpired:
		return m.handleExpired(callCtx, ownerID, view)
	default:
		return m.handleAlive(callCtx, ownerID, view)
	}
}

func (m *Monitor) handleCompleted(ctx context.Context, ownerID string, view *contracts.VaultView) error {
	if m.cache.TerminalNotified(ownerID) {
		return nil
	}
	m.send(ctx, view, notify.EventTransfer,
		fmt.Sprintf("vault for %s completed, assets transferred to %s", ownerID, view.BeneficiaryID))
	m.cache.MarkTerminalNotified(ownerID)
	return nil
}

func (m *Monitor) handleYielding(ctx context.Context, ownerID string, view *contracts.VaultView) error {
	alive := false
	if m.checker != nil {
		var err error
		alive, err = m.checker.CheckAlive(ctx, ownerID)
		if err != nil {
			return fmt.Errorf("liveness check: %w", err)
		}
	}

	if alive {
		if m.killed.Load() {
			return nil
		}
		res, err := m.registry.ResolveYield(ctx, m.cfg.AgentID, ownerID, false)
		if err != nil {
			return fmt.Errorf("cancel yield: %w", err)
		}
		m.logger.Info("yield cancelled, owner active", "owner", ownerID, "status", res.Status)
		m.send(ctx, view, notify.EventResumed,
			fmt.Sprintf("activity detected for %s, yield cancelled", ownerID))
		return nil
	}

	permit := true
	if m.policy != nil {
		var err error
		permit, err = m.policy.PermitResolution(view, true, m.clock.Now())
		if err != nil {
			return fmt.Errorf("resolution policy: %w", err)
		}
	}
	if !permit {
		m.logger.Warn("resolution blocked by policy", "owner", ownerID)
		return nil
	}
	if m.killed.Load() {
		m.logger.Warn("resolution suppressed by kill switch", "owner", ownerID)
		return nil
	}

	res, err := m.registry.ResolveYield(ctx, m.cfg.AgentID, ownerID, true)
	if err != nil {
		return fmt.Errorf("resolve yield: %w", err)
	}
	m.logger.Warn("yield resolved", "owner", ownerID,
		"status", res.Status, "transferred", res.Transferred)
	m.send(ctx, view, notify.EventTransfer,
		fmt.Sprintf("vault for %s resolved: %s", ownerID, res.Status))
	return nil
}

func (m *Monitor) handleExecutionReady(ctx context.Context, ownerID string, view *contracts.VaultView) error {
	if m.killed.Load() {
		return nil
	}
	pulse, err := m.registry.BeginYield(ctx, m.cfg.AgentID, ownerID)
	if err != nil {
		return fmt.Errorf("begin yield: %w", err)
	}
	if pulse.Status == contracts.StatusYieldInitiated {
		m.logger.Warn("yield initiated", "owner", ownerID)
		m.send(ctx, view, notify.EventYieldStarted,
			fmt.Sprintf("grace period for %s elapsed, yield started", ownerID))
	}
	return nil
}

func (m *Monitor) handleExpired(ctx context.Context, ownerID string, view *contracts.VaultView) error {
	// An expired vault still gets the activity comparison: a transacting
	// owner earns an implicit heartbeat, not a warning cycle.
	extended, err := m.tryAutoExtend(ctx, ownerID, view)
	if err != nil {
		return err
	}
	if extended {
		return nil
	}

	if m.killed.Load() {
		return nil
	}
	res, err := m.registry.TriggerWarning(ctx, m.cfg.AgentID, ownerID)
	if err != nil {
		return fmt.Errorf("trigger warning: %w", err)
	}
	if !res.WarningSent {
		return nil
	}

	m.logger.Warn("warning raised", "owner", ownerID, "grace_ms", view.GracePeriodMs)
	if m.cfg.WarningDust > 0 && m.sink != nil {
		// The dust transfer is its own wake-up channel: a wallet ping even
		// when no notification address is linked.
		if err := m.sink.Transfer(ctx, ownerID, m.cfg.WarningDust); err != nil {
			m.logger.Warn("warning shot failed", "owner", ownerID, "error", err)
		}
	}
	m.send(ctx, view, notify.EventWarning,
		fmt.Sprintf("heartbeat for %s expired, grace period of %sms started", ownerID, view.GracePeriodMs))
	return nil
}

// tryAutoExtend compares the activity counter against the cached baseline
// and applies an implicit heartbeat when the owner has kept transacting.
// Returns true when the heartbeat was extended.
func (m *Monitor) tryAutoExtend(ctx context.Context, ownerID string, view *contracts.VaultView) (bool, error) {
	if m.activity == nil {
		return false, nil
	}
	increased, err := m.activity.HasIncreased(ctx, ownerID)
	if err != nil {
		return false, fmt.Errorf("activity check: %w", err)
	}
	if !increased || m.killed.Load() {
		return false, nil
	}
	if err := m.registry.AgentExtend(ctx, m.cfg.AgentID, ownerID); err != nil {
		return false, fmt.Errorf("auto extend: %w", err)
	}
	m.activity.Forget(ownerID)
	m.logger.Info("heartbeat auto-extended on activity", "owner", ownerID)
	m.send(ctx, view, notify.EventAutoExtend,
		fmt.Sprintf("activity detected for %s, heartbeat extended", ownerID))
	return true, nil
}

func (m *Monitor) handleAlive(ctx context.Context, ownerID string, view *contracts.VaultView) error {
	interval, err := strconv.ParseInt(view.HeartbeatIntervalMs, 10, 64)
	if err != nil || interval <= 0 {
		return fmt.Errorf("bad interval %q", view.HeartbeatIntervalMs)
	}
	remaining, err := strconv.ParseInt(view.TimeRemainingMs, 10, 64)
	if err != nil {
		return fmt.Errorf("bad remaining %q", view.TimeRemainingMs)
	}

	elapsed := float64(interval-remaining) / float64(interval)
	if elapsed < dangerZoneFraction {
		if m.activity != nil && !m.activity.HasBaseline(ownerID) {
			if err := m.activity.Baseline(ctx, ownerID); err != nil {
				m.logger.Warn("baseline snapshot failed", "owner", ownerID, "error", err)
			}
		}
		return nil
	}

	// Danger zone: most of the interval has elapsed without a heartbeat.
	extended, err := m.tryAutoExtend(ctx, ownerID, view)
	if err != nil {
		return err
	}
	if extended {
		return nil
	}

	if !m.cache.EarlyWarned(ownerID) {
		m.send(ctx, view, notify.EventEarlyWarning,
			fmt.Sprintf("%s has used over %d%% of the heartbeat window, %sms remain",
				ownerID, int(dangerZoneFraction*100), view.TimeRemainingMs))
		m.cache.MarkEarlyWarned(ownerID)
	}
	return nil
}

func (m *Monitor) send(ctx context.Context, view *contracts.VaultView, kind notify.EventKind, msg string) {
	event := notify.Event{
		OwnerID: view.OwnerID,
		Kind:    kind,
		Message: msg,
		Channel: view.NotificationChannel,
		At:      m.clock.Now(),
	}
	if err := m.notifier.Notify(ctx, event); err != nil {
		m.logger.Warn("notification failed", "owner", view.OwnerID, "kind", kind, "error", err)
	}
}
