// Package contracts holds the shared domain types for the Sentinel
// registry: the vault record, its derived lifecycle state, and the typed
// statuses returned by state-transition operations.
package contracts

import (
	"errors"
	"time"
)

// Timing floors and defaults. Sub-floor values supplied at setup fall back
// to the defaults; sub-floor values supplied via the update operations are
// rejected outright.
const (
	MinInterval        = 60 * time.Second
	DefaultInterval    = 30 * 24 * time.Hour
	MinGracePeriod     = 60 * time.Second
	DefaultGracePeriod = 24 * time.Hour
)

// VaultRecord is the unit of storage and serialization: one record per
// owner identity, replaced wholesale on every accepted mutation.
type VaultRecord struct {
	OwnerID       string `json:"owner_id"`
	BeneficiaryID string `json:"beneficiary_id"`

	// Balance is in the smallest value unit. It is only mutated by
	// deposit, withdraw, and the terminal transfer.
	Balance uint64 `json:"balance"`

	HeartbeatInterval time.Duration `json:"heartbeat_interval"`
	GracePeriod       time.Duration `json:"grace_period"`

	// LastActive anchors expiry computation. Set at creation and on every
	// accepted heartbeat (including agent auto-extends).
	LastActive time.Time `json:"last_active"`

	// WarningTriggeredAt is zero unless a warning is outstanding.
	WarningTriggeredAt time.Time `json:"warning_triggered_at"`

	IsYielding  bool `json:"is_yielding"`
	IsEmergency bool `json:"is_emergency"`
	IsCompleted bool `json:"is_completed"`

	// PayloadHandle is an opaque archive handle (or embedded ciphertext
	// when no archive is configured). Set once at creation, never exposed
	// through ordinary reads.
	PayloadHandle string `json:"payload_handle,omitempty"`

	// NotificationChannel is the external address used by the notification
	// collaborator. Optional.
	NotificationChannel string `json:"notification_channel,omitempty"`
}

// Deadline returns the instant after which the vault counts as expired.
func (r *VaultRecord) Deadline() time.Time {
	return r.LastActive.Add(r.HeartbeatInterval)
}

// Expired reports whether the heartbeat deadline has passed. Expiry is
// strict: now must be after the deadline, not equal to it.
func (r *VaultRecord) Expired(now time.Time) bool {
	return now.After(r.Deadline())
}

// WarningOutstanding reports whether a warning has been raised and not yet
// cleared or consumed.
func (r *VaultRecord) WarningOutstanding() bool {
	return !r.WarningTriggeredAt.IsZero()
}

// GraceDeadline returns the instant at which the grace period ends. Only
// meaningful while a warning is outstanding.
func (r *VaultRecord) GraceDeadline() time.Time {
	return r.WarningTriggeredAt.Add(r.GracePeriod)
}

// ExecutionReady reports whether the vault is past grace and eligible for
// yield: expired, warned, and the warning's grace period elapsed.
func (r *VaultRecord) ExecutionReady(now time.Time) bool {
	if !r.Expired(now) || !r.WarningOutstanding() {
		return false
	}
	return !now.Before(r.GraceDeadline())
}

// StateKind enumerates the derived lifecycle states.
type StateKind int

const (
	StateAlive StateKind = iota
	StateExpired
	StateWarningActive
	StateYieldPending
	StateCompleted
)

func (k StateKind) String() string {
	switch k {
	case StateAlive:
		return "ALIVE"
	case StateExpired:
		return "EXPIRED"
	case StateWarningActive:
		return "WARNING_ACTIVE"
	case StateYieldPending:
		return "YIELD_PENDING"
	case StateCompleted:
		return "COMPLETED"
	default:
		return "UNKNOWN"
	}
}

// VaultState is the tagged view of the flag/timestamp combination stored on
// the record. The record keeps the legacy flags for external compatibility;
// deriving the state here rules out impossible flag combinations at the
// point of use.
type VaultState struct {
	Kind StateKind

	// WarningSince is set for StateWarningActive and StateYieldPending.
	WarningSince time.Time
}

// DeriveState computes the lifecycle state of a record at the given time.
func DeriveState(r *VaultRecord, now time.Time) VaultState {
	switch {
	case r.IsCompleted || r.IsEmergency:
		return VaultState{Kind: StateCompleted, WarningSince: r.WarningTriggeredAt}
	case r.IsYielding:
		return VaultState{Kind: StateYieldPending, WarningSince: r.WarningTriggeredAt}
	case r.WarningOutstanding():
		return VaultState{Kind: StateWarningActive, WarningSince: r.WarningTriggeredAt}
	case r.Expired(now):
		return VaultState{Kind: StateExpired}
	default:
		return VaultState{Kind: StateAlive}
	}
}

// Hard-failure sentinels. Precondition outcomes that the caller is expected
// to branch on are statuses (see status.go), not errors.
var (
	ErrVaultExists         = errors.New("vault already exists for owner")
	ErrVaultNotFound       = errors.New("vault not found")
	ErrUnauthorized        = errors.New("unauthorized caller")
	ErrVaultCompleted      = errors.New("vault completed")
	ErrVaultLocked         = errors.New("vault locked")
	ErrNotYielding         = errors.New("vault not in yield state")
	ErrBeneficiaryRequired = errors.New("beneficiary required")
	ErrIntervalTooShort    = errors.New("heartbeat interval below minimum")
	ErrGraceTooShort       = errors.New("grace period below minimum")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNoPayload           = errors.New("no payload stored")
)
