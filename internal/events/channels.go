// Package events publishes gatekeeper domain events over Redis pub/sub so
// other services can react to verified phones and moderation actions.
//
// Channel naming convention: {domain}:{entity}:{action}
// Examples: gatekeeper:verification:verified, gatekeeper:moderation:blocked
package events

import (
	"encoding/json"
	"strings"
	"time"
)

const Domain = "gatekeeper"

const (
	EntityVerification = "verification"
	EntityModeration   = "moderation"
)

type Type string

const (
	TypePhoneVerified   Type = "phone_verified"
	TypeUserBlocked     Type = "user_blocked"
	TypeUserUnblocked   Type = "user_unblocked"
	TypeContentReported Type = "content_reported"
	TypeLimitReached    Type = "limit_reached"
)

// ChannelAll matches every gatekeeper channel in PSubscribe.
const ChannelAll = Domain + ":*"

var channels = map[Type]string{
	TypePhoneVerified:   Domain + ":" + EntityVerification + ":verified",
	TypeUserBlocked:     Domain + ":" + EntityModeration + ":blocked",
	TypeUserUnblocked:   Domain + ":" + EntityModeration + ":unblocked",
	TypeContentReported: Domain + ":" + EntityModeration + ":reported",
	TypeLimitReached:    Domain + ":" + EntityModeration + ":limit_reached",
}

// ChannelFor returns the channel an event type is published on, or "" for an
// unknown type.
func ChannelFor(t Type) string {
	return channels[t]
}

// ParseChannel splits a channel into its parts. Channel format is
// {domain}:{entity}:{action}.
func ParseChannel(channel string) (domain, entity, action string) {
	parts := strings.SplitN(channel, ":", 3)
	if len(parts) < 3 {
		return "", "", ""
	}
	return parts[0], parts[1], parts[2]
}

type Envelope struct {
	Type      Type            `json:"type"`
	Channel   string          `json:"channel"`
	UserID    string          `json:"user_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// VerifiedPayload never carries the full phone number.
type VerifiedPayload struct {
	PhoneMasked      string `json:"phone_masked"`
	PhoneFingerprint string `json:"phone_fingerprint"`
}

type ModerationPayload struct {
	Kind        string `json:"kind"`
	TargetID    string `json:"target_id,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Remaining   int    `json:"remaining"`
	DailyLimit  int    `json:"daily_limit"`
}
