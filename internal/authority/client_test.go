package authority

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/irfndi/gatekeeper/internal/apperr"
	"github.com/irfndi/gatekeeper/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", WithAPIKey("svc-key"))
}

func TestNewClient(t *testing.T) {
	c := NewClient("https://authority.example.com/")
	assert.Equal(t, "https://authority.example.com", c.baseURL)
	assert.Equal(t, DefaultTimeout, c.httpClient.Timeout)

	c = NewClient("https://authority.example.com", WithTimeout(3*time.Second))
	assert.Equal(t, 3*time.Second, c.httpClient.Timeout)
}

func TestClient_CheckPhoneExists_NormalizesCasing(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		expect  models.PhoneExists
		wantErr bool
	}{
		{"lower case", `{"success":true,"exists":true}`, models.PhoneExists{Success: true, Exists: true}, false},
		{"pascal case", `{"Success":true,"Exists":false}`, models.PhoneExists{Success: true, Exists: false}, false},
		{"nested data", `{"Success":"true","data":{"exists":1}}`, models.PhoneExists{Success: true, Exists: true}, false},
		{"string exists", `{"success":true,"exists":"false"}`, models.PhoneExists{Success: true, Exists: false}, false},
		{"unconfirmed without answer", `{"success":false}`, models.PhoneExists{}, false},
		{"missing fields", `{}`, models.PhoneExists{}, false},
		{"confirmed without exists", `{"success":true}`, models.PhoneExists{}, true},
		{"exists is an object", `{"success":true,"exists":{"value":true}}`, models.PhoneExists{}, true},
		{"exists is a word", `{"success":true,"exists":"maybe"}`, models.PhoneExists{}, true},
		{"exists is null", `{"success":true,"exists":null}`, models.PhoneExists{}, true},
		{"nested data without exists", `{"success":true,"data":{}}`, models.PhoneExists{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v1/users/phone-exists", r.URL.Path)
				assert.Equal(t, "+15551234567", r.URL.Query().Get("phone"))
				assert.Equal(t, "svc-key", r.Header.Get("X-API-Key"))
				_, _ = w.Write([]byte(tt.body))
			})

			res, err := c.CheckPhoneExists(context.Background(), "+15551234567")
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, apperr.KindTransport, apperr.KindOf(err))
				assert.ErrorIs(t, err, ErrMissingAnswer)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expect, res)
		})
	}
}

func TestClient_CheckUsernameExists_MatchShapes(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		taken   bool
		wantErr bool
	}{
		{"string matches", `{"success":true,"matches":["alice"]}`, true, false},
		{"object matches under data", `{"Success":true,"Data":[{"Username":"alice"}]}`, true, false},
		{"empty matches", `{"success":true,"matches":[]}`, false, false},
		{"null matches", `{"success":true,"matches":null}`, false, false},
		{"matches is a string", `{"success":true,"matches":"alice"}`, false, true},
		{"matches is an object", `{"success":true,"matches":{"username":"alice"}}`, false, true},
		{"matches missing", `{"success":true}`, false, true},
		{"unreadable element", `{"success":true,"matches":[42]}`, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "alice", r.URL.Query().Get("username"))
				_, _ = w.Write([]byte(tt.body))
			})

			res, err := c.CheckUsernameExists(context.Background(), "alice")
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, apperr.KindTransport, apperr.KindOf(err))
				assert.ErrorIs(t, err, ErrMissingAnswer)
				return
			}
			require.NoError(t, err)
			assert.True(t, res.Success)
			assert.Equal(t, tt.taken, res.Taken())
		})
	}
}

func TestClient_CheckUsernameExists_UnconfirmedNeedsNoAnswer(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Success":false,"Message":"maintenance"}`))
	})

	res, err := c.CheckUsernameExists(context.Background(), "alice")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Empty(t, res.Matches)
}

func TestAckMessage(t *testing.T) {
	tests := []struct {
		name string
		ack  models.Ack
		want string
	}{
		{"message kept", models.Ack{Message: "too many codes"}, "too many codes"},
		{"empty uses fallback", models.Ack{}, "fallback"},
		{"placeholder uses fallback", models.Ack{Message: "error"}, "fallback"},
		{"placeholder any case", models.Ack{Message: " Error "}, "fallback"},
		{"longer error text kept", models.Ack{Message: "error: code expired"}, "error: code expired"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AckMessage(tt.ack, "fallback"))
		})
	}
}

func TestClient_SendOTP_ForwardsTokenAndBody(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/otp/send", r.URL.Path)
		assert.Equal(t, "Bearer user-token", r.Header.Get("Authorization"))

		var req models.SendOTPRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, models.ChannelWhatsApp, req.Method)
		assert.Equal(t, models.VerificationTypePhone, req.VerificationType)

		_, _ = w.Write([]byte(`{"Success":false,"Message":"too many codes"}`))
	})

	ctx := WithToken(context.Background(), "user-token")
	ack, err := c.SendOTP(ctx, models.SendOTPRequest{
		UserID:           "u1",
		VerificationType: models.VerificationTypePhone,
		Recipient:        "+15551234567",
		Method:           models.ChannelWhatsApp,
	})
	require.NoError(t, err)
	assert.False(t, ack.Success)
	assert.Equal(t, "too many codes", ack.Message)
}

func TestClient_ClientErrorBodyIsAnAnswer(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"success":false,"error":"wrong code"}`))
	})

	ack, err := c.ValidateOTP(context.Background(), models.ValidateOTPRequest{OTP: "000000"})
	require.NoError(t, err)
	assert.False(t, ack.Success)
	assert.Equal(t, "wrong code", ack.Message)
}

func TestClient_TransportFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}},
		{"empty body", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}},
		{"malformed json", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>`))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestServer(t, tt.handler)
			_, err := c.BlockUser(context.Background(), "target-1")
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperr.ErrTransport))
		})
	}
}

func TestClient_UnreachableHost(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", WithTimeout(time.Second))
	_, err := c.CheckUsernameExists(context.Background(), "alice")
	require.Error(t, err)
	assert.Equal(t, apperr.KindTransport, apperr.KindOf(err))
}

func TestClient_ModerationPaths(t *testing.T) {
	var seen []string
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Method+" "+r.URL.Path)
		_, _ = w.Write([]byte(`{"success":true}`))
	})

	ctx := context.Background()
	_, err := c.BlockUser(ctx, "u 2")
	require.NoError(t, err)
	_, err = c.UnblockUser(ctx, "u2")
	require.NoError(t, err)
	_, err = c.ReportContent(ctx, models.ReportPayload{TargetID: "p1", ContentType: "post", Reason: "spam"})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"POST /v1/users/u 2/block",
		"DELETE /v1/users/u2/block",
		"POST /v1/reports",
	}, seen)
}
