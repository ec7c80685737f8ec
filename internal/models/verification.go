package models

// VerificationState is a node of the phone verification state machine.
// A session that has not been started has the empty state.
type VerificationState string

const (
	VerificationStateMethod   VerificationState = "method"
	VerificationStateChecking VerificationState = "checking"
	VerificationStateCode     VerificationState = "code"
	VerificationStateError    VerificationState = "error"
)
