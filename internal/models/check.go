package models

// CheckStatus is the state of an asynchronous availability check.
type CheckStatus string

const (
	CheckStatusIdle      CheckStatus = "idle"
	CheckStatusChecking  CheckStatus = "checking"
	CheckStatusAvailable CheckStatus = "available"
	CheckStatusTaken     CheckStatus = "taken"
	CheckStatusInvalid   CheckStatus = "invalid"
)

// CheckResult is the outcome of a uniqueness check for one exact input value.
type CheckResult struct {
	Status       CheckStatus `json:"status"`
	Message      string      `json:"message,omitempty"`
	CheckedValue string      `json:"checkedValue"`
	// WasFocused is the caller-supplied focus flag captured when the remote
	// call started. Only set on results produced by a remote call.
	WasFocused bool `json:"wasFocused,omitempty"`
}

// AppliesTo reports whether the result may be rendered for the live input.
func (r CheckResult) AppliesTo(live string) bool {
	return r.CheckedValue == live
}

// Terminal reports whether no further update is expected for CheckedValue.
func (r CheckResult) Terminal() bool {
	switch r.Status {
	case CheckStatusAvailable, CheckStatusTaken, CheckStatusInvalid:
		return true
	default:
		return false
	}
}

// Outcome is a cacheable answer from the remote authority.
type Outcome string

const (
	OutcomeAvailable Outcome = "available"
	OutcomeTaken     Outcome = "taken"
)

// Status maps a cached outcome to the check status it renders as.
func (o Outcome) Status() CheckStatus {
	if o == OutcomeTaken {
		return CheckStatusTaken
	}
	return CheckStatusAvailable
}
