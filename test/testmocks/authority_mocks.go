// Package testmocks provides in-memory stand-ins for the remote authority.
package testmocks

import (
	"context"
	"sync"

	"github.com/irfndi/gatekeeper/internal/authority"
	"github.com/irfndi/gatekeeper/internal/models"
)

// Operation names used to configure failures, rejections and holds.
const (
	OpCheckPhone    = "check_phone_exists"
	OpCheckUsername = "check_username_exists"
	OpSendOTP       = "send_otp"
	OpValidateOTP   = "validate_otp"
	OpBlock         = "block_user"
	OpUnblock       = "unblock_user"
	OpReport        = "report_content"
)

// Gate holds calls to one operation until released.
type Gate struct {
	// Started receives the call argument each time a held call begins.
	Started chan string
	release chan struct{}
	once    sync.Once
}

// Release lets every held and future call through.
func (g *Gate) Release() {
	g.once.Do(func() { close(g.release) })
}

// AuthorityMock is a configurable in-memory authority.Authority.
type AuthorityMock struct {
	mu         sync.Mutex
	usernames  map[string]bool
	phones     map[string]bool
	validCode  string
	failures   map[string]error
	rejections map[string]string
	gates      map[string]*Gate
	calls      map[string][]string

	SentOTPs []models.SendOTPRequest
	Blocked  []string
	Reports  []models.ReportPayload
}

var _ authority.Authority = (*AuthorityMock)(nil)

func NewAuthorityMock() *AuthorityMock {
	return &AuthorityMock{
		usernames:  make(map[string]bool),
		phones:     make(map[string]bool),
		validCode:  "123456",
		failures:   make(map[string]error),
		rejections: make(map[string]string),
		gates:      make(map[string]*Gate),
		calls:      make(map[string][]string),
	}
}

func (m *AuthorityMock) TakeUsernames(names ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range names {
		m.usernames[n] = true
	}
}

func (m *AuthorityMock) RegisterPhones(phones ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range phones {
		m.phones[p] = true
	}
}

// SetValidCode changes the only code ValidateOTP accepts.
func (m *AuthorityMock) SetValidCode(code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.validCode = code
}

// Fail makes op return err until cleared with Fail(op, nil).
func (m *AuthorityMock) Fail(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, op)
		return
	}
	m.failures[op] = err
}

// Reject makes op answer success=false with message.
func (m *AuthorityMock) Reject(op, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejections[op] = message
}

// Hold blocks calls to op until the returned gate is released.
func (m *AuthorityMock) Hold(op string) *Gate {
	m.mu.Lock()
	defer m.mu.Unlock()
	g := &Gate{Started: make(chan string, 16), release: make(chan struct{})}
	m.gates[op] = g
	return g
}

// Calls returns the arguments op was called with, in order.
func (m *AuthorityMock) Calls(op string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls[op]...)
}

func (m *AuthorityMock) CallCount(op string) int {
	return len(m.Calls(op))
}

// enter records the call, waits on any gate, and returns the configured
// rejection and failure for op.
func (m *AuthorityMock) enter(ctx context.Context, op, arg string) (string, error) {
	m.mu.Lock()
	m.calls[op] = append(m.calls[op], arg)
	gate := m.gates[op]
	m.mu.Unlock()

	if gate != nil {
		gate.Started <- arg
		select {
		case <-gate.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rejections[op], m.failures[op]
}

func (m *AuthorityMock) CheckPhoneExists(ctx context.Context, fullPhone string) (models.PhoneExists, error) {
	rejection, err := m.enter(ctx, OpCheckPhone, fullPhone)
	if err != nil {
		return models.PhoneExists{}, err
	}
	if rejection != "" {
		return models.PhoneExists{Success: false}, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return models.PhoneExists{Success: true, Exists: m.phones[fullPhone]}, nil
}

func (m *AuthorityMock) CheckUsernameExists(ctx context.Context, username string) (models.UsernameMatches, error) {
	rejection, err := m.enter(ctx, OpCheckUsername, username)
	if err != nil {
		return models.UsernameMatches{}, err
	}
	if rejection != "" {
		return models.UsernameMatches{Success: false}, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := models.UsernameMatches{Success: true, Matches: []string{}}
	if m.usernames[username] {
		out.Matches = append(out.Matches, username)
	}
	return out, nil
}

func (m *AuthorityMock) SendOTP(ctx context.Context, req models.SendOTPRequest) (models.Ack, error) {
	rejection, err := m.enter(ctx, OpSendOTP, string(req.Method))
	if err != nil {
		return models.Ack{}, err
	}
	if rejection != "" {
		return models.Ack{Success: false, Message: rejection}, nil
	}
	m.mu.Lock()
	m.SentOTPs = append(m.SentOTPs, req)
	m.mu.Unlock()
	return models.Ack{Success: true}, nil
}

func (m *AuthorityMock) ValidateOTP(ctx context.Context, req models.ValidateOTPRequest) (models.Ack, error) {
	rejection, err := m.enter(ctx, OpValidateOTP, req.OTP)
	if err != nil {
		return models.Ack{}, err
	}
	if rejection != "" {
		return models.Ack{Success: false, Message: rejection}, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if req.OTP != m.validCode {
		return models.Ack{Success: false, Message: "invalid code"}, nil
	}
	return models.Ack{Success: true}, nil
}

func (m *AuthorityMock) BlockUser(ctx context.Context, targetID string) (models.Ack, error) {
	rejection, err := m.enter(ctx, OpBlock, targetID)
	if err != nil {
		return models.Ack{}, err
	}
	if rejection != "" {
		return models.Ack{Success: false, Message: rejection}, nil
	}
	m.mu.Lock()
	m.Blocked = append(m.Blocked, targetID)
	m.mu.Unlock()
	return models.Ack{Success: true}, nil
}

func (m *AuthorityMock) UnblockUser(ctx context.Context, targetID string) (models.Ack, error) {
	rejection, err := m.enter(ctx, OpUnblock, targetID)
	if err != nil {
		return models.Ack{}, err
	}
	if rejection != "" {
		return models.Ack{Success: false, Message: rejection}, nil
	}
	return models.Ack{Success: true}, nil
}

func (m *AuthorityMock) ReportContent(ctx context.Context, payload models.ReportPayload) (models.Ack, error) {
	rejection, err := m.enter(ctx, OpReport, payload.TargetID)
	if err != nil {
		return models.Ack{}, err
	}
	if rejection != "" {
		return models.Ack{Success: false, Message: rejection}, nil
	}
	m.mu.Lock()
	m.Reports = append(m.Reports, payload)
	m.mu.Unlock()
	return models.Ack{Success: true}, nil
}
