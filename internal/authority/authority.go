// Package authority describes the remote service that owns the truth about
// phone numbers, usernames, one-time codes and moderation, and provides an
// HTTP adapter for it.
//
// Every method returns an error only for transport-level failures. A well
// formed "no" from the service is reported through the returned struct.
package authority

import (
	"context"

	"github.com/irfndi/gatekeeper/internal/models"
)

type PhoneDirectory interface {
	CheckPhoneExists(ctx context.Context, fullPhone string) (models.PhoneExists, error)
}

type UsernameDirectory interface {
	CheckUsernameExists(ctx context.Context, username string) (models.UsernameMatches, error)
}

type OTPService interface {
	SendOTP(ctx context.Context, req models.SendOTPRequest) (models.Ack, error)
	ValidateOTP(ctx context.Context, req models.ValidateOTPRequest) (models.Ack, error)
}

type Moderation interface {
	BlockUser(ctx context.Context, targetID string) (models.Ack, error)
	UnblockUser(ctx context.Context, targetID string) (models.Ack, error)
	ReportContent(ctx context.Context, payload models.ReportPayload) (models.Ack, error)
}

// Authority is the full remote surface consumed by the core.
type Authority interface {
	PhoneDirectory
	UsernameDirectory
	OTPService
	Moderation
}
