package contracts

// TransitionStatus is the typed outcome of a progression call. Statuses are
// values, not errors: a NOT_EXPIRED or WARNING_GRACE_PERIOD result is a
// normal answer the agent branches on, with no state change behind it.
type TransitionStatus string

const (
	// TriggerWarning outcomes.
	StatusNotExpired         TransitionStatus = "NOT_EXPIRED"
	StatusWarningAlreadySent TransitionStatus = "WARNING_ALREADY_SENT"
	StatusWarningTriggered   TransitionStatus = "WARNING_TRIGGERED"

	// BeginYield outcomes.
	StatusAlive              TransitionStatus = "ALIVE"
	StatusWarningRequired    TransitionStatus = "WARNING_REQUIRED"
	StatusWarningGracePeriod TransitionStatus = "WARNING_GRACE_PERIOD"
	StatusYieldPending       TransitionStatus = "YIELD_PENDING"
	StatusYieldInitiated     TransitionStatus = "YIELD_INITIATED"

	// ResolveYield outcomes.
	StatusResumedAlive     TransitionStatus = "RESUMED_ALIVE"
	StatusTransferComplete TransitionStatus = "TRANSFER_COMPLETE"
	StatusTransferEmpty    TransitionStatus = "TRANSFER_EMPTY"
)

// WarningResult is returned by TriggerWarning.
type WarningResult struct {
	Status      TransitionStatus `json:"status"`
	WarningSent bool             `json:"warning_sent"`
}

// PulseResult is returned by BeginYield.
type PulseResult struct {
	Status     TransitionStatus `json:"status"`
	IsYielding bool             `json:"is_yielding"`
}

// ResolveResult is returned by ResolveYield. Transferred is the amount
// drained to the beneficiary; zero on resume or empty vault. PayoutPending
// marks a committed resolution whose outbound transfer failed and awaits
// reconciliation.
type ResolveResult struct {
	Status        TransitionStatus `json:"status"`
	Transferred   uint64           `json:"transferred"`
	PayoutPending bool             `json:"payout_pending,omitempty"`
}
