package contracts

import (
	"strconv"
	"time"
)

// VaultView is the read-only projection of a record, including every
// derived field a dashboard or agent needs. Balance and durations are
// emitted as decimal strings so the view survives JSON consumers that
// cannot represent 64-bit integers exactly. The view never carries the
// payload handle: disclosure goes through RevealPayload only.
type VaultView struct {
	OwnerID                 string `json:"owner_id"`
	BeneficiaryID           string `json:"beneficiary_id"`
	VaultBalance            string `json:"vault_balance"`
	HeartbeatIntervalMs     string `json:"heartbeat_interval_ms"`
	GracePeriodMs           string `json:"grace_period_ms"`
	LastActiveMs            string `json:"last_active_ms"`
	TimeRemainingMs         string `json:"time_remaining_ms"`
	WarningTriggeredAt      string `json:"warning_triggered_at"`
	WarningGraceRemainingMs string `json:"warning_grace_remaining_ms"`
	NotificationChannel     string `json:"notification_channel,omitempty"`
	State                   string `json:"state"`
	IsExpired               bool   `json:"is_expired"`
	IsWarningActive         bool   `json:"is_warning_active"`
	IsExecutionReady        bool   `json:"is_execution_ready"`
	IsYielding              bool   `json:"is_yielding"`
	IsEmergency             bool   `json:"is_emergency"`
	IsCompleted             bool   `json:"is_completed"`
}

// NewVaultView projects a record at the given instant.
func NewVaultView(r *VaultRecord, now time.Time) *VaultView {
	var remaining time.Duration
	if d := r.Deadline(); d.After(now) {
		remaining = d.Sub(now)
	}

	var warningAt string
	var graceRemaining time.Duration
	if r.WarningOutstanding() {
		warningAt = strconv.FormatInt(r.WarningTriggeredAt.UnixMilli(), 10)
		if gd := r.GraceDeadline(); gd.After(now) {
			graceRemaining = gd.Sub(now)
		}
	} else {
		warningAt = "0"
	}

	return &VaultView{
		OwnerID:                 r.OwnerID,
		BeneficiaryID:           r.BeneficiaryID,
		VaultBalance:            strconv.FormatUint(r.Balance, 10),
		HeartbeatIntervalMs:     strconv.FormatInt(r.HeartbeatInterval.Milliseconds(), 10),
		GracePeriodMs:           strconv.FormatInt(r.GracePeriod.Milliseconds(), 10),
		LastActiveMs:            strconv.FormatInt(r.LastActive.UnixMilli(), 10),
		TimeRemainingMs:         strconv.FormatInt(remaining.Milliseconds(), 10),
		WarningTriggeredAt:      warningAt,
		WarningGraceRemainingMs: strconv.FormatInt(graceRemaining.Milliseconds(), 10),
		NotificationChannel:     r.NotificationChannel,
		State:                   DeriveState(r, now).Kind.String(),
		IsExpired:               r.Expired(now),
		IsWarningActive:         r.WarningOutstanding(),
		IsExecutionReady:        r.ExecutionReady(now),
		IsYielding:              r.IsYielding,
		IsEmergency:             r.IsEmergency,
		IsCompleted:             r.IsCompleted,
	}
}
