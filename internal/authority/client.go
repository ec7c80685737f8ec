package authority

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/irfndi/gatekeeper/internal/apperr"
	"github.com/irfndi/gatekeeper/internal/models"
	"go.uber.org/zap"
)

const (
	DefaultTimeout = 15 * time.Second
	maxBodyBytes   = 1 << 20
)

type tokenKey struct{}

// WithToken attaches the caller's bearer token to ctx so the Client forwards
// it upstream.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

func tokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

// Client talks to the authority over HTTP and normalizes its responses.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *zap.Logger
}

var _ Authority = (*Client)(nil)

type ClientOption func(*Client)

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithAPIKey sets a service key sent as X-API-Key on every request.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) {
		c.apiKey = key
	}
}

func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) CheckPhoneExists(ctx context.Context, fullPhone string) (models.PhoneExists, error) {
	q := url.Values{"phone": {fullPhone}}
	body, err := c.do(ctx, "check_phone_exists", http.MethodGet, "/v1/users/phone-exists?"+q.Encode(), nil)
	if err != nil {
		return models.PhoneExists{}, err
	}
	res, err := normalizePhoneExists(body)
	if err != nil {
		return models.PhoneExists{}, apperr.Transport("check_phone_exists", err)
	}
	return res, nil
}

func (c *Client) CheckUsernameExists(ctx context.Context, username string) (models.UsernameMatches, error) {
	q := url.Values{"username": {username}}
	body, err := c.do(ctx, "check_username_exists", http.MethodGet, "/v1/users/username-exists?"+q.Encode(), nil)
	if err != nil {
		return models.UsernameMatches{}, err
	}
	res, err := normalizeUsernameMatches(body)
	if err != nil {
		return models.UsernameMatches{}, apperr.Transport("check_username_exists", err)
	}
	return res, nil
}

func (c *Client) SendOTP(ctx context.Context, req models.SendOTPRequest) (models.Ack, error) {
	return c.ack(ctx, "send_otp", http.MethodPost, "/v1/otp/send", req)
}

func (c *Client) ValidateOTP(ctx context.Context, req models.ValidateOTPRequest) (models.Ack, error) {
	return c.ack(ctx, "validate_otp", http.MethodPost, "/v1/otp/validate", req)
}

func (c *Client) BlockUser(ctx context.Context, targetID string) (models.Ack, error) {
	return c.ack(ctx, "block_user", http.MethodPost, "/v1/users/"+url.PathEscape(targetID)+"/block", nil)
}

func (c *Client) UnblockUser(ctx context.Context, targetID string) (models.Ack, error) {
	return c.ack(ctx, "unblock_user", http.MethodDelete, "/v1/users/"+url.PathEscape(targetID)+"/block", nil)
}

func (c *Client) ReportContent(ctx context.Context, payload models.ReportPayload) (models.Ack, error) {
	return c.ack(ctx, "report_content", http.MethodPost, "/v1/reports", payload)
}

func (c *Client) ack(ctx context.Context, op, method, path string, in any) (models.Ack, error) {
	body, err := c.do(ctx, op, method, path, in)
	if err != nil {
		return models.Ack{}, err
	}
	res, err := normalizeAck(body)
	if err != nil {
		return models.Ack{}, apperr.Transport(op, err)
	}
	return res, nil
}

// do performs the request and returns the body of any response the service
// produced deliberately, including 4xx rejections. Network failures and 5xx
// responses come back as transport errors.
func (c *Client) do(ctx context.Context, op, method, path string, in any) ([]byte, error) {
	var reader io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s request: %w", op, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := tokenFrom(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("Authority request failed",
			zap.String("operation", op),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return nil, apperr.Transport(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, apperr.Transport(op, fmt.Errorf("failed to read response: %w", err))
	}

	c.logger.Debug("Authority request completed",
		zap.String("operation", op),
		zap.Int("status_code", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, apperr.Transport(op, fmt.Errorf("upstream returned status %d", resp.StatusCode))
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, apperr.Transport(op, fmt.Errorf("empty response with status %d", resp.StatusCode))
	}
	return body, nil
}
