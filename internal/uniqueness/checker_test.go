package uniqueness

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/irfndi/gatekeeper/internal/authority"
	"github.com/irfndi/gatekeeper/internal/debounce"
	"github.com/irfndi/gatekeeper/internal/models"
	"github.com/irfndi/gatekeeper/test/testmocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type harness struct {
	checker *Checker
	mock    *testmocks.AuthorityMock
	sched   *debounce.ManualScheduler
	clock   *fakeClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		mock:  testmocks.NewAuthorityMock(),
		sched: debounce.NewManualScheduler(),
		clock: &fakeClock{t: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)},
	}
	h.checker = NewChecker(FieldUsername, UsernameLookup(h.mock),
		WithScheduler(h.sched),
		WithClock(h.clock.Now),
	)
	t.Cleanup(h.checker.Close)
	return h
}

func TestPolicy_Validate(t *testing.T) {
	username := UsernamePolicy()
	phone := PhonePolicy()

	tests := []struct {
		name    string
		policy  Policy
		value   string
		wantErr string
	}{
		{"username with space", username, "john doe", MessageCharset},
		{"long username with space", username, "a perfectly long username", MessageCharset},
		{"username with tab", username, "john\tdoe", MessageCharset},
		{"username underscore and digit", username, "john_doe1", ""},
		{"username symbols", username, "j.o-h!n", ""},
		{"username unicode letters", username, "zoë", ""},
		{"username too short", username, "jo", "must be at least 3 characters"},
		{"username disallowed symbol", username, "john/doe", MessageCharset},
		{"phone e164", phone, "+15551234567", ""},
		{"phone plus in middle", phone, "1555+1234567", MessageCharset},
		{"phone too short", phone, "+12345", "must be at least 7 characters"},
		{"phone with space", phone, "+1 5551234567", MessageCharset},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantErr, tt.policy.Validate(tt.value))
		})
	}
}

func TestChecker_OnChange_RejectsLocallyWithoutNetwork(t *testing.T) {
	h := newHarness(t)

	res := h.checker.OnChange("john doe", true)
	assert.Equal(t, models.CheckStatusInvalid, res.Status)
	assert.Equal(t, MessageCharset, res.Message)

	res = h.checker.OnChange("jo", true)
	assert.Equal(t, models.CheckStatusInvalid, res.Status)

	h.sched.Advance(time.Second)
	assert.Equal(t, 0, h.mock.CallCount(testmocks.OpCheckUsername))
}

func TestChecker_DebounceCoalescing(t *testing.T) {
	h := newHarness(t)

	for _, v := range []string{"joh", "john", "john_", "john_d", "john_doe"} {
		res := h.checker.OnChange(v, true)
		assert.Equal(t, models.CheckStatusIdle, res.Status)
		h.sched.Advance(200 * time.Millisecond)
	}
	assert.Equal(t, 0, h.mock.CallCount(testmocks.OpCheckUsername))

	h.sched.Advance(debounce.DefaultDelay)

	assert.Equal(t, []string{"john_doe"}, h.mock.Calls(testmocks.OpCheckUsername))
	res := h.checker.Result()
	assert.Equal(t, models.CheckStatusAvailable, res.Status)
	assert.Equal(t, "john_doe", res.CheckedValue)
	assert.True(t, res.WasFocused)
}

func TestChecker_CacheHitAvoidsNetwork(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first := h.checker.Check(ctx, "user123", false)
	require.Equal(t, models.CheckStatusAvailable, first.Status)
	require.Equal(t, 1, h.mock.CallCount(testmocks.OpCheckUsername))

	h.clock.Advance(4 * time.Minute)
	second := h.checker.Check(ctx, "user123", false)

	assert.Equal(t, models.CheckStatusAvailable, second.Status)
	assert.Equal(t, 1, h.mock.CallCount(testmocks.OpCheckUsername))
	assert.Equal(t, int64(1), h.checker.CacheStats().Hits)
}

func TestChecker_CacheExpiryCallsRemoteAgain(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.checker.Check(ctx, "user123", false)
	h.clock.Advance(5 * time.Minute)
	h.mock.TakeUsernames("user123")

	res := h.checker.Check(ctx, "user123", false)

	assert.Equal(t, 2, h.mock.CallCount(testmocks.OpCheckUsername))
	assert.Equal(t, models.CheckStatusTaken, res.Status)
	assert.Equal(t, "this username is already taken", res.Message)
}

func TestChecker_RaceDiscardsStaleResponse(t *testing.T) {
	h := newHarness(t)

	var mu sync.Mutex
	var seen []models.CheckResult
	h.checker.Subscribe(func(r models.CheckResult) {
		mu.Lock()
		seen = append(seen, r)
		mu.Unlock()
	})

	gate := h.mock.Hold(testmocks.OpCheckUsername)
	done := make(chan models.CheckResult, 1)
	go func() {
		done <- h.checker.Check(context.Background(), "abc", true)
	}()
	require.Equal(t, "abc", <-gate.Started)

	h.checker.OnChange("abcd", true)
	gate.Release()
	stale := <-done

	assert.Equal(t, "abc", stale.CheckedValue)
	live := h.checker.Result()
	assert.Equal(t, "abcd", live.CheckedValue)
	assert.Equal(t, models.CheckStatusIdle, live.Status)

	mu.Lock()
	last := seen[len(seen)-1]
	mu.Unlock()
	assert.Equal(t, "abcd", last.CheckedValue)

	h.sched.Advance(debounce.DefaultDelay)
	assert.Equal(t, models.CheckStatusAvailable, h.checker.Result().Status)
	assert.Equal(t, "abcd", h.checker.Result().CheckedValue)
}

func TestChecker_TransportFailureIsInvalidAndNotCached(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.mock.Fail(testmocks.OpCheckUsername, errors.New("i/o timeout"))
	res := h.checker.Check(ctx, "alice", true)

	assert.Equal(t, models.CheckStatusInvalid, res.Status)
	assert.Equal(t, MessageUnavailable, res.Message)
	assert.True(t, res.WasFocused)

	h.mock.Fail(testmocks.OpCheckUsername, nil)
	res = h.checker.Check(ctx, "alice", true)

	assert.Equal(t, models.CheckStatusAvailable, res.Status)
	assert.Equal(t, 2, h.mock.CallCount(testmocks.OpCheckUsername))
}

func TestChecker_UnconfirmedAnswerIsNeverTaken(t *testing.T) {
	h := newHarness(t)
	h.mock.TakeUsernames("alice")
	h.mock.Reject(testmocks.OpCheckUsername, "maintenance")

	res := h.checker.Check(context.Background(), "alice", false)

	assert.Equal(t, models.CheckStatusInvalid, res.Status)
	assert.Equal(t, MessageUnavailable, res.Message)
}

func TestChecker_MalformedAnswerIsInvalidAndNotCached(t *testing.T) {
	bodies := map[string]string{
		"matches as string": `{"success":true,"matches":"alice"}`,
		"matches as object": `{"success":true,"matches":{"username":"alice"}}`,
		"no matches field":  `{"success":true}`,
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			defer srv.Close()

			checker := NewChecker(FieldUsername, UsernameLookup(authority.NewClient(srv.URL)))
			defer checker.Close()

			res := checker.Check(context.Background(), "alice", false)

			assert.Equal(t, models.CheckStatusInvalid, res.Status)
			assert.Equal(t, MessageUnavailable, res.Message)
			assert.Zero(t, checker.CacheStats().Sets)
		})
	}
}

func TestChecker_PhoneWithoutExistsIsInvalid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Success":true,"Exists":"unknown"}`))
	}))
	defer srv.Close()

	checker := NewChecker(FieldPhone, PhoneLookup(authority.NewClient(srv.URL)))
	defer checker.Close()

	res := checker.Check(context.Background(), "+15551234567", false)

	assert.Equal(t, models.CheckStatusInvalid, res.Status)
	assert.Zero(t, checker.CacheStats().Sets)
}

func TestChecker_EmptyInputCancelsPendingCheck(t *testing.T) {
	h := newHarness(t)

	h.checker.OnChange("alice", true)
	res := h.checker.OnChange("", true)
	assert.Equal(t, models.CheckStatusIdle, res.Status)

	h.sched.Advance(time.Second)
	assert.Equal(t, 0, h.mock.CallCount(testmocks.OpCheckUsername))
}

func TestChecker_CheckCancelsPendingDebounce(t *testing.T) {
	h := newHarness(t)

	h.checker.OnChange("alice", true)
	h.checker.Check(context.Background(), "alice", true)
	h.sched.Advance(time.Second)

	assert.Equal(t, 1, h.mock.CallCount(testmocks.OpCheckUsername))
}

func TestChecker_CloseMakesLateResponsesInert(t *testing.T) {
	h := newHarness(t)

	gate := h.mock.Hold(testmocks.OpCheckUsername)
	done := make(chan models.CheckResult, 1)
	go func() {
		done <- h.checker.Check(context.Background(), "alice", false)
	}()
	<-gate.Started
	before := h.checker.Result()
	require.Equal(t, models.CheckStatusChecking, before.Status)

	h.checker.Close()
	res := <-done
	gate.Release()

	assert.Equal(t, models.CheckStatusInvalid, res.Status, "cancelled call reports a retryable failure to its caller")
	assert.Equal(t, before, h.checker.Result())

	h.checker.OnChange("bob_smith", true)
	h.sched.Advance(time.Second)
	assert.Equal(t, 1, h.mock.CallCount(testmocks.OpCheckUsername))
}

func TestChecker_CancelledCallerDoesNotFailSharedCheck(t *testing.T) {
	h := newHarness(t)

	gate := h.mock.Hold(testmocks.OpCheckUsername)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan models.CheckResult, 1)
	go func() {
		done <- h.checker.Check(ctx, "alice", false)
	}()
	require.Equal(t, "alice", <-gate.Started)

	h.checker.OnChange("alice", true)
	advanced := make(chan struct{})
	go func() {
		h.sched.Advance(debounce.DefaultDelay)
		close(advanced)
	}()
	require.Eventually(t, func() bool {
		return h.checker.Result().Status == models.CheckStatusChecking
	}, time.Second, 5*time.Millisecond)

	cancel()
	res := <-done
	assert.Equal(t, models.CheckStatusInvalid, res.Status)

	gate.Release()
	select {
	case <-advanced:
	case <-time.After(3 * time.Second):
		t.Fatal("debounced check never finished")
	}

	live := h.checker.Result()
	assert.Equal(t, models.CheckStatusAvailable, live.Status)
	assert.Equal(t, "alice", live.CheckedValue)
	assert.True(t, live.WasFocused)
	assert.EqualValues(t, 1, h.checker.CacheStats().Sets)
}

func TestChecker_NormalizesInput(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	composed := "zo\u00eb"
	decomposed := "zoe\u0308"

	h.checker.Check(ctx, composed, false)
	res := h.checker.Check(ctx, decomposed, false)

	assert.Equal(t, composed, res.CheckedValue)
	assert.Equal(t, 1, h.mock.CallCount(testmocks.OpCheckUsername))
}

func TestForm_PhoneField(t *testing.T) {
	mock := testmocks.NewAuthorityMock()
	mock.RegisterPhones("+15551234567")

	form := NewForm(mock, mock, WithScheduler(debounce.NewManualScheduler()))
	defer form.Close()

	phone, ok := form.Field(FieldPhone)
	require.True(t, ok)

	res := phone.Check(context.Background(), "+15551234567", false)
	assert.Equal(t, models.CheckStatusTaken, res.Status)
	assert.Equal(t, "this phone number is already registered", res.Message)

	res = phone.Check(context.Background(), "+15557654321", false)
	assert.Equal(t, models.CheckStatusAvailable, res.Status)

	_, ok = form.Field(Field("email"))
	assert.False(t, ok)
}

func TestForm_MinLengthPerField(t *testing.T) {
	mock := testmocks.NewAuthorityMock()
	form := NewForm(mock, mock,
		WithScheduler(debounce.NewManualScheduler()),
		WithMinLength(FieldUsername, 5),
		WithMinLength(FieldPhone, 10),
	)
	defer form.Close()

	res := form.Username.OnChange("abcd", true)
	assert.Equal(t, models.CheckStatusInvalid, res.Status)
	assert.Equal(t, "must be at least 5 characters", res.Message)

	res = form.Phone.OnChange("+12345678", true)
	assert.Equal(t, models.CheckStatusInvalid, res.Status)
	assert.Equal(t, "must be at least 10 characters", res.Message)

	res = form.Username.OnChange("abcde", true)
	assert.Equal(t, models.CheckStatusIdle, res.Status)
}
