// Package verification drives the phone OTP flow: an existence pre-check,
// code dispatch over SMS or WhatsApp, code validation and recovery.
package verification

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/irfndi/gatekeeper/internal/apperr"
	"github.com/irfndi/gatekeeper/internal/authority"
	"github.com/irfndi/gatekeeper/internal/models"
	"github.com/irfndi/gatekeeper/internal/utils"
	"go.uber.org/zap"
)

// MinPhoneDigits is the shortest phone number Start accepts.
const MinPhoneDigits = 7

const (
	MessageRegistered   = "this phone number is already registered"
	MessageCheckFailed  = "could not check this number, please try again"
	MessageSendFailed   = "could not send the code, please try again"
	MessageInvalidCode  = "the code is not valid"
	MessageNoConnection = "could not verify the code, please try again"
)

var (
	ErrBusy   = errors.New("another verification action is in progress")
	ErrClosed = errors.New("verification session is closed")
)

// Deps are the remote collaborators of a session.
type Deps struct {
	Phones authority.PhoneDirectory
	OTP    authority.OTPService
}

// Snapshot is the externally visible state of a session.
type Snapshot struct {
	State          models.VerificationState `json:"state"`
	Phone          string                   `json:"phone"`
	PhoneExists    *bool                    `json:"phoneExists"`
	Method         models.Channel           `json:"method,omitempty"`
	AttemptsOnCode int                      `json:"attemptsOnCode"`
	Message        string                   `json:"message,omitempty"`
	Terminal       bool                     `json:"terminal"`
	Busy           bool                     `json:"busy"`
	Verified       bool                     `json:"verified"`
	Closed         bool                     `json:"closed"`
}

type Option func(*Session)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithOnVerified registers fn to run once the phone has been verified.
func WithOnVerified(fn func(userID, phone string)) Option {
	return func(s *Session) { s.onVerified = fn }
}

// Session is one phone verification attempt. Actions are accepted one at a
// time; remote failures never surface as errors but as the session state.
type Session struct {
	userID     string
	phone      string
	deps       Deps
	logger     *zap.Logger
	onVerified func(userID, phone string)

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	state       models.VerificationState
	phoneExists *bool
	method      models.Channel
	code        string
	attempts    int
	message     string
	busy        bool
	verified    bool
	closed      bool
}

func New(userID, phone string, deps Deps, opts ...Option) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		userID: userID,
		phone:  strings.TrimSpace(phone),
		deps:   deps,
		logger: zap.NewNop(),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(
		zap.String("user_id", userID),
		zap.String("phone", utils.MaskPhone(s.phone)),
	)
	return s
}

func (s *Session) Phone() string { return s.phone }

func (s *Session) UserID() string { return s.userID }

// Start runs the existence pre-check. It is accepted on a fresh session and
// after a failed check, never after the number was found registered.
func (s *Session) Start(ctx context.Context) error {
	const op = "verification.start"

	if s.phone == "" {
		return apperr.Validation(op, "enter a phone number")
	}
	if countDigits(s.phone) < MinPhoneDigits {
		return apperr.Validation(op, "phone number is too short")
	}

	s.mu.Lock()
	if err := s.acquireLocked(op); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.state != "" && !s.recoverableLocked() {
		s.busy = false
		s.mu.Unlock()
		return apperr.Validation(op, "verification already started")
	}
	s.state = models.VerificationStateChecking
	s.message = ""
	s.mu.Unlock()

	ctx, done := s.bind(ctx)
	defer done()
	res, err := s.deps.Phones.CheckPhoneExists(ctx, s.phone)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
	if s.closed {
		return nil
	}

	switch {
	case err != nil || !res.Success:
		s.logger.Warn("Phone existence check failed", zap.Error(err), zap.Bool("confirmed", res.Success))
		s.phoneExists = nil
		s.state = models.VerificationStateError
		s.message = MessageCheckFailed
	case res.Exists:
		exists := true
		s.phoneExists = &exists
		s.state = models.VerificationStateError
		s.message = MessageRegistered
	default:
		exists := false
		s.phoneExists = &exists
		s.state = models.VerificationStateMethod
	}
	return nil
}

// Send dispatches a code over channel. On failure the session stays in the
// method state so the user may retry or pick another channel.
func (s *Session) Send(ctx context.Context, channel models.Channel) error {
	const op = "verification.send"

	if !channel.Valid() {
		return apperr.Validation(op, "choose sms or whatsapp")
	}

	s.mu.Lock()
	if err := s.acquireLocked(op); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.state != models.VerificationStateMethod {
		s.busy = false
		s.mu.Unlock()
		return apperr.Validation(op, "a code cannot be sent now")
	}
	s.message = ""
	s.mu.Unlock()

	ctx, done := s.bind(ctx)
	defer done()
	ack, err := s.deps.OTP.SendOTP(ctx, models.SendOTPRequest{
		UserID:           s.userID,
		VerificationType: models.VerificationTypePhone,
		Recipient:        s.phone,
		Method:           channel,
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
	if s.closed {
		return nil
	}

	switch {
	case err != nil:
		s.logger.Warn("Sending code failed", zap.String("method", string(channel)), zap.Error(err))
		s.message = MessageSendFailed
	case !ack.Success:
		s.message = authority.AckMessage(ack, MessageSendFailed)
	default:
		s.method = channel
		s.code = ""
		s.state = models.VerificationStateCode
		s.logger.Info("Verification code sent", zap.String("method", string(channel)))
	}
	return nil
}

// Validate submits code. An empty code is rejected without a remote call.
func (s *Session) Validate(ctx context.Context, code string) error {
	const op = "verification.validate"

	code = strings.TrimSpace(code)
	if code == "" {
		return apperr.Validation(op, "enter the code you received")
	}

	s.mu.Lock()
	if err := s.acquireLocked(op); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.state != models.VerificationStateCode {
		s.busy = false
		s.mu.Unlock()
		return apperr.Validation(op, "no code has been sent")
	}
	s.code = code
	s.message = ""
	s.mu.Unlock()

	ctx, done := s.bind(ctx)
	defer done()
	ack, err := s.deps.OTP.ValidateOTP(ctx, models.ValidateOTPRequest{
		UserID:           s.userID,
		OTP:              code,
		VerificationType: models.VerificationTypePhone,
		Recipient:        s.phone,
	})

	s.mu.Lock()
	s.busy = false
	if s.closed {
		s.mu.Unlock()
		return nil
	}

	if err != nil || !ack.Success {
		s.attempts++
		s.message = MessageNoConnection
		if err == nil {
			s.message = authority.AckMessage(ack, MessageInvalidCode)
		}
		s.logger.Info("Code rejected", zap.Int("attempts", s.attempts), zap.Error(err))
		s.mu.Unlock()
		return nil
	}

	s.verified = true
	s.closeLocked()
	onVerified := s.onVerified
	s.mu.Unlock()

	s.logger.Info("Phone verified")
	if onVerified != nil {
		onVerified(s.userID, s.phone)
	}
	return nil
}

// SwitchMethod returns from code entry to channel selection.
func (s *Session) SwitchMethod() error {
	const op = "verification.switch_method"

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.acquireLocked(op); err != nil {
		return err
	}
	s.busy = false
	if s.state != models.VerificationStateCode {
		return apperr.Validation(op, "nothing to switch from")
	}
	s.state = models.VerificationStateMethod
	s.code = ""
	s.message = ""
	return nil
}

// Close ends the session. Responses still in flight are discarded.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		State:          s.state,
		Phone:          utils.MaskPhone(s.phone),
		Method:         s.method,
		AttemptsOnCode: s.attempts,
		Message:        s.message,
		Terminal:       s.state == models.VerificationStateError && !s.recoverableLocked(),
		Busy:           s.busy,
		Verified:       s.verified,
		Closed:         s.closed,
	}
	if s.phoneExists != nil {
		exists := *s.phoneExists
		snap.PhoneExists = &exists
	}
	return snap
}

// acquireLocked marks the session busy or explains why it cannot be.
func (s *Session) acquireLocked(op string) error {
	if s.closed {
		return &apperr.Error{Kind: apperr.KindConflict, Op: op, Message: ErrClosed.Error(), Err: ErrClosed}
	}
	if s.busy {
		return &apperr.Error{Kind: apperr.KindConflict, Op: op, Message: ErrBusy.Error(), Err: ErrBusy}
	}
	s.busy = true
	return nil
}

// recoverableLocked reports whether the error state allows a new Start.
func (s *Session) recoverableLocked() bool {
	return s.state == models.VerificationStateError && s.phoneExists == nil
}

func (s *Session) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	s.code = ""
	s.cancel()
}

// bind derives a context that is also cancelled when the session closes.
func (s *Session) bind(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func countDigits(phone string) int {
	n := 0
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}
