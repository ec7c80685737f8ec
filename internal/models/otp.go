package models

// Channel is the delivery channel for a one-time code.
type Channel string

const (
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
)

// Valid reports whether c is a supported delivery channel.
func (c Channel) Valid() bool {
	return c == ChannelSMS || c == ChannelWhatsApp
}

// VerificationTypePhone is the only verification type the core issues.
const VerificationTypePhone = "Phone"

type SendOTPRequest struct {
	UserID           string  `json:"userId"`
	VerificationType string  `json:"verificationType"`
	Recipient        string  `json:"recipient"`
	Method           Channel `json:"method"`
}

type ValidateOTPRequest struct {
	UserID           string `json:"userId"`
	OTP              string `json:"otp"`
	VerificationType string `json:"verificationType"`
	Recipient        string `json:"recipient"`
}

// Ack is the normalized acknowledgement returned by every mutating remote call.
type Ack struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type PhoneExists struct {
	Success bool `json:"success"`
	Exists  bool `json:"exists"`
}

type UsernameMatches struct {
	Success bool     `json:"success"`
	Matches []string `json:"matches"`
}

// Taken reports whether the lookup found at least one holder of the username.
func (u UsernameMatches) Taken() bool {
	return len(u.Matches) > 0
}

// ReportPayload describes a piece of content being reported.
type ReportPayload struct {
	TargetID    string `json:"targetId" binding:"required"`
	ContentType string `json:"contentType" binding:"required"`
	Reason      string `json:"reason" binding:"required"`
	Details     string `json:"details,omitempty"`
}
