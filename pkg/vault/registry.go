// Package vault implements the Sentinel registry: the state machine that
// owns every vault lifecycle transition. All mutation goes through a
// read-modify-write of the whole record, serialized per owner, so the
// ordering invariants (warning before yield, at-most-one transfer) hold
// under concurrent callers.
package vault

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/sentinel-labs/sentinel/pkg/archive"
	"github.com/sentinel-labs/sentinel/pkg/authz"
	"github.com/sentinel-labs/sentinel/pkg/contracts"
	"github.com/sentinel-labs/sentinel/pkg/ledger"
	"github.com/sentinel-labs/sentinel/pkg/store"
)

// Clock provides authority time for the registry. Inject a fixed clock in
// tests; all deadlines are wall-clock comparisons evaluated fresh per call.
type Clock interface {
	Now() time.Time
}

// wallClock is the default clock.
type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// TransferSink moves value out of the registry's accounting: the terminal
// transfer to the beneficiary, withdrawals, and reset refunds. A nil sink
// means balances are tracked internally only.
type TransferSink interface {
	Transfer(ctx context.Context, to string, amount uint64) error
}

// SetupParams are the creation parameters for a vault.
type SetupParams struct {
	Beneficiary string

	// Interval and GracePeriod fall back to the defaults when zero or
	// below their floors. The silent fallback (rather than a rejection)
	// matches the deployed contract behavior; see DESIGN.md.
	Interval    time.Duration
	GracePeriod time.Duration

	// Payload is the optional secure payload. It is sealed and archived
	// at setup; a failed archive write aborts creation.
	Payload string

	// NotificationChannel is the optional external delivery address.
	NotificationChannel string
}

// Registry validates and commits vault state transitions.
type Registry struct {
	store  store.VaultStore
	agents *authz.AgentSet
	clock  Clock

	blobs   archive.Store
	sealKey []byte
	audit   *ledger.TransitionLedger
	sink    TransferSink
	logger  *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewRegistry creates a registry over the given record store. If clock is
// nil, wall-clock time is used.
func NewRegistry(s store.VaultStore, agents *authz.AgentSet, clock Clock) *Registry {
	if clock == nil {
		clock = wallClock{}
	}
	if agents == nil {
		agents = authz.NewAgentSet()
	}
	return &Registry{
		store:  s,
		agents: agents,
		clock:  clock,
		logger: slog.Default().With("component", "registry"),
		locks:  make(map[string]*sync.Mutex),
	}
}

// SetArchive injects the payload archive and the 32-byte sealing key.
// Without an archive, payloads are embedded verbatim in the record.
func (r *Registry) SetArchive(blobs archive.Store, sealKey []byte) {
	r.blobs = blobs
	r.sealKey = sealKey
}

// SetAuditLedger injects the transition ledger.
func (r *Registry) SetAuditLedger(l *ledger.TransitionLedger) {
	r.audit = l
}

// SetTransferSink injects the value-transfer collaborator.
func (r *Registry) SetTransferSink(sink TransferSink) {
	r.sink = sink
}

// SetLogger overrides the default logger.
func (r *Registry) SetLogger(logger *slog.Logger) {
	if logger != nil {
		r.logger = logger.With("component", "registry")
	}
}

// lockOwner serializes read-modify-write cycles per owner identity.
func (r *Registry) lockOwner(ownerID string) func() {
	r.mu.Lock()
	l, ok := r.locks[ownerID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[ownerID] = l
	}
	r.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (r *Registry) appendAudit(op, owner, caller, status string, data map[string]any) {
	if r.audit == nil {
		return
	}
	if _, err := r.audit.Append(op, owner, caller, status, data); err != nil {
		r.logger.Warn("audit append failed", "op", op, "owner", owner, "error", err)
	}
}

// Setup creates a vault for the caller. Rejected if a record already exists
// for the caller or the beneficiary is empty.
func (r *Registry) Setup(ctx context.Context, caller string, p SetupParams) (*contracts.VaultView, error) {
	if caller == "" {
		return nil, contracts.ErrUnauthorized
	}
	if p.Beneficiary == "" {
		return nil, contracts.ErrBeneficiaryRequired
	}

	unlock := r.lockOwner(caller)
	defer unlock()

	if _, err := r.store.Get(ctx, caller); err == nil {
		return nil, contracts.ErrVaultExists
	}

	interval := p.Interval
	if interval < contracts.MinInterval {
		interval = contracts.DefaultInterval
	}
	grace := p.GracePeriod
	if grace < contracts.MinGracePeriod {
		grace = contracts.DefaultGracePeriod
	}

	handle, err := r.archivePayload(ctx, p.Payload)
	if err != nil {
		// The payload is load-bearing: a failed archive write aborts
		// vault creation entirely.
		return nil, fmt.Errorf("archive payload: %w", err)
	}

	now := r.clock.Now()
	record := &contracts.VaultRecord{
		OwnerID:             caller,
		BeneficiaryID:       p.Beneficiary,
		HeartbeatInterval:   interval,
		GracePeriod:         grace,
		LastActive:          now,
		PayloadHandle:       handle,
		NotificationChannel: p.NotificationChannel,
	}
	if err := r.store.Put(ctx, record); err != nil {
		return nil, fmt.Errorf("store vault %s: %w", caller, err)
	}

	r.appendAudit("setup", caller, caller, "", map[string]any{
		"beneficiary": p.Beneficiary,
		"interval_ms": interval.Milliseconds(),
		"grace_ms":    grace.Milliseconds(),
	})
	r.logger.Info("vault initialized", "owner", caller, "beneficiary", p.Beneficiary,
		"interval", interval, "grace", grace)

	return contracts.NewVaultView(record, now), nil
}

func (r *Registry) archivePayload(ctx context.Context, payload string) (string, error) {
	if payload == "" {
		return "", nil
	}
	if r.blobs == nil {
		// No archive configured: embed the payload verbatim. The record
		// store is then the confidentiality boundary.
		return payload, nil
	}

	blob := []byte(payload)
	if len(r.sealKey) > 0 {
		sealed, err := archive.Seal(r.sealKey, blob)
		if err != nil {
			return "", err
		}
		blob = sealed
	}
	return r.blobs.Store(ctx, blob)
}

// Heartbeat resets the expiry clock. Owner only; rejected once the vault is
// completed. This is the only way back to ALIVE from the failure path.
func (r *Registry) Heartbeat(ctx context.Context, caller string) error {
	unlock := r.lockOwner(caller)
	defer unlock()

	record, err := r.store.Get(ctx, caller)
	if err != nil {
		return err
	}
	if !authz.IsOwner(caller, record) {
		return contracts.ErrUnauthorized
	}
	if record.IsCompleted {
		return contracts.ErrVaultCompleted
	}

	record.LastActive = r.clock.Now()
	record.WarningTriggeredAt = time.Time{}
	if record.IsYielding {
		record.IsYielding = false
		r.logger.Info("yield cancelled, owner is alive", "owner", caller)
	}
	record.IsEmergency = false

	if err := r.store.Put(ctx, record); err != nil {
		return fmt.Errorf("store vault %s: %w", caller, err)
	}
	r.appendAudit("heartbeat", caller, caller, "", nil)
	return nil
}

// TriggerWarning raises the one-time warning once a heartbeat is overdue.
// Permissionless: anyone who notices expiry may call it.
func (r *Registry) TriggerWarning(ctx context.Context, caller, ownerID string) (contracts.WarningResult, error) {
	unlock := r.lockOwner(ownerID)
	defer unlock()

	record, err := r.store.Get(ctx, ownerID)
	if err != nil {
		return contracts.WarningResult{}, err
	}
	if record.IsCompleted {
		return contracts.WarningResult{}, contracts.ErrVaultCompleted
	}

	now := r.clock.Now()
	if !record.Expired(now) {
		return contracts.WarningResult{Status: contracts.StatusNotExpired}, nil
	}
	if record.WarningOutstanding() {
		return contracts.WarningResult{Status: contracts.StatusWarningAlreadySent}, nil
	}

	record.WarningTriggeredAt = now
	if err := r.store.Put(ctx, record); err != nil {
		return contracts.WarningResult{}, fmt.Errorf("store vault %s: %w", ownerID, err)
	}

	r.appendAudit("trigger_warning", ownerID, caller, string(contracts.StatusWarningTriggered), nil)
	r.logger.Warn("heartbeat expired, warning raised", "owner", ownerID, "grace", record.GracePeriod)
	return contracts.WarningResult{Status: contracts.StatusWarningTriggered, WarningSent: true}, nil
}

// BeginYield enters the yield state once the warning's grace period has
// elapsed. Yield cannot be entered without a prior warning: that ordering
// guarantees the owner always gets at least one grace period before
// irreversible escalation.
func (r *Registry) BeginYield(ctx context.Context, caller, ownerID string) (contracts.PulseResult, error) {
	unlock := r.lockOwner(ownerID)
	defer unlock()

	record, err := r.store.Get(ctx, ownerID)
	if err != nil {
		return contracts.PulseResult{}, err
	}
	if record.IsCompleted {
		return contracts.PulseResult{}, contracts.ErrVaultCompleted
	}

	now := r.clock.Now()
	if !record.Expired(now) {
		return contracts.PulseResult{Status: contracts.StatusAlive}, nil
	}
	if !record.WarningOutstanding() {
		return contracts.PulseResult{Status: contracts.StatusWarningRequired}, nil
	}
	if now.Before(record.GraceDeadline()) {
		return contracts.PulseResult{Status: contracts.StatusWarningGracePeriod}, nil
	}
	if record.IsYielding {
		return contracts.PulseResult{Status: contracts.StatusYieldPending, IsYielding: true}, nil
	}

	record.IsYielding = true
	if err := r.store.Put(ctx, record); err != nil {
		return contracts.PulseResult{}, fmt.Errorf("store vault %s: %w", ownerID, err)
	}

	r.appendAudit("begin_yield", ownerID, caller, string(contracts.StatusYieldInitiated), nil)
	r.logger.Warn("grace period expired, yield initiated", "owner", ownerID)
	return contracts.PulseResult{Status: contracts.StatusYieldInitiated, IsYielding: true}, nil
}

// ResolveYield commits the liveness verdict. Agent-gated: the verdict comes
// from the off-chain verification procedure, not from an arbitrary caller.
// confirmDeath=false is the explicit cancellation path back to ALIVE;
// confirmDeath=true performs the terminal transfer, exactly once.
func (r *Registry) ResolveYield(ctx context.Context, caller, ownerID string, confirmDeath bool) (contracts.ResolveResult, error) {
	if !r.agents.IsAuthorizedAgent(caller) {
		return contracts.ResolveResult{}, contracts.ErrUnauthorized
	}

	unlock := r.lockOwner(ownerID)
	defer unlock()

	record, err := r.store.Get(ctx, ownerID)
	if err != nil {
		return contracts.ResolveResult{}, err
	}
	if !record.IsYielding {
		// Also holds after completion: a second resolve call can never
		// double-transfer.
		return contracts.ResolveResult{}, contracts.ErrNotYielding
	}

	record.IsYielding = false

	if !confirmDeath {
		record.WarningTriggeredAt = time.Time{}
		if err := r.store.Put(ctx, record); err != nil {
			return contracts.ResolveResult{}, fmt.Errorf("store vault %s: %w", ownerID, err)
		}
		r.appendAudit("resolve_yield", ownerID, caller, string(contracts.StatusResumedAlive), nil)
		r.logger.Info("owner verified alive, yield cancelled", "owner", ownerID)
		return contracts.ResolveResult{Status: contracts.StatusResumedAlive}, nil
	}

	record.IsEmergency = true
	record.IsCompleted = true
	amount := record.Balance
	record.Balance = 0

	// Commit the terminal flags before paying out. Were the transfer to run
	// first, a failed Put would leave the record yielding and the next poll
	// would transfer a second time.
	if err := r.store.Put(ctx, record); err != nil {
		return contracts.ResolveResult{}, fmt.Errorf("store vault %s: %w", ownerID, err)
	}

	status := contracts.StatusTransferComplete
	if amount == 0 {
		status = contracts.StatusTransferEmpty
	}
	detail := map[string]any{
		"beneficiary": record.BeneficiaryID,
		"transferred": strconv.FormatUint(amount, 10),
	}
	result := contracts.ResolveResult{Status: status, Transferred: amount}

	if amount > 0 && r.sink != nil {
		if err := r.sink.Transfer(ctx, record.BeneficiaryID, amount); err != nil {
			// The record is already terminal; surface the stuck payout for
			// reconciliation instead of unwinding the transition.
			result.PayoutPending = true
			detail["payout_pending"] = "true"
			r.logger.Error("terminal payout failed, pending reconciliation",
				"owner", ownerID, "beneficiary", record.BeneficiaryID,
				"amount", amount, "error", err)
		}
	}

	r.appendAudit("resolve_yield", ownerID, caller, string(status), detail)
	r.logger.Warn("terminal transfer executed", "owner", ownerID,
		"beneficiary", record.BeneficiaryID, "amount", amount)
	return result, nil
}

// Deposit adds funds to a vault. Any caller may fund any live vault.
func (r *Registry) Deposit(ctx context.Context, caller, ownerID string, amount uint64) (uint64, error) {
	if caller == "" {
		return 0, contracts.ErrUnauthorized
	}
	if amount == 0 {
		return 0, contracts.ErrInvalidAmount
	}

	unlock := r.lockOwner(ownerID)
	defer unlock()

	record, err := r.store.Get(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	if record.IsCompleted {
		return 0, contracts.ErrVaultCompleted
	}

	record.Balance += amount
	if err := r.store.Put(ctx, record); err != nil {
		return 0, fmt.Errorf("store vault %s: %w", ownerID, err)
	}
	r.appendAudit("deposit", ownerID, caller, "", map[string]any{"amount": strconv.FormatUint(amount, 10)})
	return record.Balance, nil
}

// Withdraw removes funds from the caller's own vault. Rejected while the
// vault is yielding or in emergency: funds are frozen pending resolution.
// A nil amount means "withdraw everything".
func (r *Registry) Withdraw(ctx context.Context, caller string, amount *uint64) (uint64, error) {
	unlock := r.lockOwner(caller)
	defer unlock()

	record, err := r.store.Get(ctx, caller)
	if err != nil {
		return 0, err
	}
	if !authz.IsOwner(caller, record) {
		return 0, contracts.ErrUnauthorized
	}
	if record.IsEmergency || record.IsYielding {
		return 0, contracts.ErrVaultLocked
	}

	amt := record.Balance
	if amount != nil {
		amt = *amount
	}
	if amt == 0 {
		return 0, contracts.ErrInvalidAmount
	}
	if amt > record.Balance {
		return 0, contracts.ErrInsufficientBalance
	}

	record.Balance -= amt
	// Same ordering as the terminal transfer: debit first so a Put failure
	// after a successful payout can never let the owner withdraw twice.
	if err := r.store.Put(ctx, record); err != nil {
		return 0, fmt.Errorf("store vault %s: %w", caller, err)
	}
	detail := map[string]any{"amount": strconv.FormatUint(amt, 10)}
	if r.sink != nil {
		if err := r.sink.Transfer(ctx, caller, amt); err != nil {
			detail["payout_pending"] = "true"
			r.logger.Error("withdraw payout failed, pending reconciliation",
				"owner", caller, "amount", amt, "error", err)
		}
	}
	r.appendAudit("withdraw", caller, caller, "", detail)
	return amt, nil
}

// UpdateBeneficiary changes the beneficiary. Owner only, any live state.
func (r *Registry) UpdateBeneficiary(ctx context.Context, caller, newBeneficiary string) error {
	if newBeneficiary == "" {
		return contracts.ErrBeneficiaryRequired
	}
	return r.updateOwned(ctx, caller, "update_beneficiary", func(record *contracts.VaultRecord) error {
		record.BeneficiaryID = newBeneficiary
		return nil
	})
}

// UpdateInterval changes the heartbeat interval. Unlike setup, updates
// below the floor are rejected outright.
func (r *Registry) UpdateInterval(ctx context.Context, caller string, interval time.Duration) error {
	if interval < contracts.MinInterval {
		return contracts.ErrIntervalTooShort
	}
	return r.updateOwned(ctx, caller, "update_interval", func(record *contracts.VaultRecord) error {
		record.HeartbeatInterval = interval
		return nil
	})
}

// UpdateGracePeriod changes the grace period, floor-validated.
func (r *Registry) UpdateGracePeriod(ctx context.Context, caller string, grace time.Duration) error {
	if grace < contracts.MinGracePeriod {
		return contracts.ErrGraceTooShort
	}
	return r.updateOwned(ctx, caller, "update_grace_period", func(record *contracts.VaultRecord) error {
		record.GracePeriod = grace
		return nil
	})
}

// updateOwned runs an owner-only field mutation under the per-owner lock.
// Config updates are permitted in any state, including mid-warning.
func (r *Registry) updateOwned(ctx context.Context, caller, op string, mutate func(*contracts.VaultRecord) error) error {
	unlock := r.lockOwner(caller)
	defer unlock()

	record, err := r.store.Get(ctx, caller)
	if err != nil {
		return err
	}
	if !authz.IsOwner(caller, record) {
		return contracts.ErrUnauthorized
	}
	if err := mutate(record); err != nil {
		return err
	}
	if err := r.store.Put(ctx, record); err != nil {
		return fmt.Errorf("store vault %s: %w", caller, err)
	}
	r.appendAudit(op, caller, caller, "", nil)
	return nil
}

// AgentExtend resets the expiry clock on the owner's behalf when the agent
// has observed fresh activity: an implicit heartbeat, gated on the agent
// authorization rather than the owner's.
func (r *Registry) AgentExtend(ctx context.Context, caller, ownerID string) error {
	if !r.agents.IsAuthorizedAgent(caller) {
		return contracts.ErrUnauthorized
	}

	unlock := r.lockOwner(ownerID)
	defer unlock()

	record, err := r.store.Get(ctx, ownerID)
	if err != nil {
		return err
	}
	if record.IsCompleted {
		return contracts.ErrVaultCompleted
	}

	record.LastActive = r.clock.Now()
	record.WarningTriggeredAt = time.Time{}
	record.IsYielding = false
	record.IsEmergency = false

	if err := r.store.Put(ctx, record); err != nil {
		return fmt.Errorf("store vault %s: %w", ownerID, err)
	}
	r.appendAudit("agent_extend", ownerID, caller, "", nil)
	r.logger.Info("liveness auto-extend applied", "owner", ownerID, "agent", caller)
	return nil
}

// LinkNotificationChannel records the external notification address on a
// vault. Owner or agent may set it.
func (r *Registry) LinkNotificationChannel(ctx context.Context, caller, ownerID, channel string) error {
	if !r.agents.IsAuthorizedAgent(caller) && caller != ownerID {
		return contracts.ErrUnauthorized
	}

	unlock := r.lockOwner(ownerID)
	defer unlock()

	record, err := r.store.Get(ctx, ownerID)
	if err != nil {
		return err
	}
	record.NotificationChannel = channel
	if err := r.store.Put(ctx, record); err != nil {
		return fmt.Errorf("store vault %s: %w", ownerID, err)
	}
	r.appendAudit("link_channel", ownerID, caller, "", nil)
	return nil
}

// RevealPayload discloses the secure payload. The owner may always read it;
// the beneficiary only once the vault is completed. Everyone else is
// rejected.
func (r *Registry) RevealPayload(ctx context.Context, caller, ownerID string) (string, error) {
	record, err := r.store.Get(ctx, ownerID)
	if err != nil {
		return "", err
	}

	switch {
	case authz.IsOwner(caller, record):
	case authz.IsBeneficiary(caller, record) && record.IsCompleted:
	default:
		return "", contracts.ErrUnauthorized
	}

	if record.PayloadHandle == "" {
		return "", contracts.ErrNoPayload
	}
	if r.blobs == nil {
		return record.PayloadHandle, nil
	}

	blob, err := r.blobs.Retrieve(ctx, record.PayloadHandle)
	if err != nil {
		return "", fmt.Errorf("retrieve payload %s: %w", record.PayloadHandle, err)
	}
	if len(r.sealKey) > 0 {
		opened, err := archive.Open(r.sealKey, blob)
		if err != nil {
			return "", fmt.Errorf("open payload: %w", err)
		}
		blob = opened
	}
	return string(blob), nil
}

// Reset deletes the caller's vault from any state, returning any remaining
// balance. The explicit administrative escape hatch, and the only way to
// start over after completion.
func (r *Registry) Reset(ctx context.Context, caller string) (uint64, error) {
	unlock := r.lockOwner(caller)
	defer unlock()

	record, err := r.store.Get(ctx, caller)
	if err != nil {
		return 0, err
	}
	if !authz.IsOwner(caller, record) {
		return 0, contracts.ErrUnauthorized
	}

	amount := record.Balance
	if amount > 0 && r.sink != nil {
		if err := r.sink.Transfer(ctx, caller, amount); err != nil {
			return 0, fmt.Errorf("refund to owner %s: %w", caller, err)
		}
	}
	if err := r.store.Delete(ctx, caller); err != nil {
		return 0, fmt.Errorf("delete vault %s: %w", caller, err)
	}
	r.appendAudit("reset", caller, caller, "", map[string]any{"returned": strconv.FormatUint(amount, 10)})
	r.logger.Info("vault reset", "owner", caller, "returned", amount)
	return amount, nil
}

// GetVault returns the read-only view of a vault, or ErrVaultNotFound.
func (r *Registry) GetVault(ctx context.Context, ownerID string) (*contracts.VaultView, error) {
	record, err := r.store.Get(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return contracts.NewVaultView(record, r.clock.Now()), nil
}

// ListOwners returns every owner with a vault.
func (r *Registry) ListOwners(ctx context.Context) ([]string, error) {
	return r.store.ListOwners(ctx)
}
