// Package uniqueness checks whether a candidate username or phone number is
// still free, combining local validation, a debounce, a TTL cache and the
// remote directory into one stream of CheckResult values per field.
package uniqueness

import (
	"context"
	"sync"
	"time"

	"github.com/irfndi/gatekeeper/internal/cache"
	"github.com/irfndi/gatekeeper/internal/debounce"
	"github.com/irfndi/gatekeeper/internal/models"
	"github.com/irfndi/gatekeeper/internal/utils"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/unicode/norm"
)

// Field names a checked input.
type Field string

const (
	FieldUsername Field = "username"
	FieldPhone    Field = "phone"
)

// Valid reports whether f is a known field.
func (f Field) Valid() bool {
	return f == FieldUsername || f == FieldPhone
}

type input struct {
	value   string
	focused bool
}

type Option func(*settings)

type settings struct {
	policy    *Policy
	minLength map[Field]int
	delay     time.Duration
	ttl       time.Duration
	now       func() time.Time
	scheduler debounce.Scheduler
	logger    *zap.Logger
}

// WithPolicy overrides the field's default validation policy.
func WithPolicy(p Policy) Option {
	return func(s *settings) { s.policy = &p }
}

// WithMinLength changes the minimum length of field's default policy. It
// has no effect on the other field, so a Form may pass it for both.
func WithMinLength(field Field, n int) Option {
	return func(s *settings) {
		if n <= 0 {
			return
		}
		if s.minLength == nil {
			s.minLength = make(map[Field]int, 2)
		}
		s.minLength[field] = n
	}
}

// WithDelay sets the debounce settle time.
func WithDelay(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.delay = d
		}
	}
}

// WithTTL sets how long remote answers are cached.
func WithTTL(ttl time.Duration) Option {
	return func(s *settings) { s.ttl = ttl }
}

func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

func WithScheduler(sched debounce.Scheduler) Option {
	return func(s *settings) { s.scheduler = sched }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Checker tracks the availability of one input field.
//
// Results published for a value other than the current input are never
// applied: a remote answer that arrives after the input moved on is dropped.
// Subscribers are called one at a time, newest result last, and must not
// call OnChange or Check synchronously.
type Checker struct {
	field     Field
	policy    Policy
	dir       Directory
	cache     *cache.TTLCache[string]
	debouncer *debounce.Debouncer[input]
	delay     time.Duration
	logger    *zap.Logger
	flights   singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	live    string
	result  models.CheckResult
	subs    map[int]func(models.CheckResult)
	nextSub int
	seq     uint64
	closed  bool

	notifyMu sync.Mutex
	notified uint64
}

func NewChecker(field Field, dir Directory, opts ...Option) *Checker {
	s := settings{
		delay:     debounce.DefaultDelay,
		ttl:       cache.DefaultTTL,
		now:       time.Now,
		scheduler: debounce.SystemScheduler{},
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&s)
	}

	policy := UsernamePolicy()
	if field == FieldPhone {
		policy = PhonePolicy()
	}
	if n, ok := s.minLength[field]; ok {
		policy.MinLength = n
	}
	if s.policy != nil {
		policy = *s.policy
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Checker{
		field:     field,
		policy:    policy,
		dir:       dir,
		cache:     cache.New[string](s.ttl, cache.WithClock(s.now)),
		debouncer: debounce.New[input](debounce.WithScheduler(s.scheduler)),
		delay:     s.delay,
		logger:    s.logger.With(zap.String("field", string(field))),
		ctx:       ctx,
		cancel:    cancel,
		result:    models.CheckResult{Status: models.CheckStatusIdle},
		subs:      make(map[int]func(models.CheckResult)),
	}
}

func (c *Checker) Field() Field { return c.field }

// Result returns the latest published result.
func (c *Checker) Result() models.CheckResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

// Live returns the current (normalized) input value.
func (c *Checker) Live() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live
}

// CacheStats exposes the checker's cache counters.
func (c *Checker) CacheStats() cache.Stats {
	return c.cache.Stats()
}

// Subscribe registers fn for every published result. The returned function
// removes the subscription.
func (c *Checker) Subscribe(fn func(models.CheckResult)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

// OnChange records a new input value. Invalid values are rejected at once;
// valid ones are checked remotely after the debounce delay.
func (c *Checker) OnChange(value string, focused bool) models.CheckResult {
	value = normalize(value)

	c.mu.Lock()
	if c.closed {
		defer c.mu.Unlock()
		return c.result
	}
	c.live = value

	if value == "" {
		c.debouncer.Cancel(string(c.field))
		return c.publishLocked(models.CheckResult{Status: models.CheckStatusIdle})
	}
	if msg := c.policy.Validate(value); msg != "" {
		c.debouncer.Cancel(string(c.field))
		return c.publishLocked(models.CheckResult{Status: models.CheckStatusInvalid, Message: msg, CheckedValue: value})
	}

	c.debouncer.Schedule(string(c.field), input{value: value, focused: focused}, c.delay, func(in input) {
		c.run(c.ctx, in)
	})
	return c.publishLocked(models.CheckResult{Status: models.CheckStatusIdle, CheckedValue: value})
}

// Check validates value and checks it immediately, bypassing and cancelling
// any pending debounced check. A valid cached answer is returned without a
// remote call.
func (c *Checker) Check(ctx context.Context, value string, focused bool) models.CheckResult {
	value = normalize(value)

	c.mu.Lock()
	if c.closed {
		defer c.mu.Unlock()
		return c.result
	}
	c.live = value
	c.debouncer.Cancel(string(c.field))

	if value == "" {
		return c.publishLocked(models.CheckResult{Status: models.CheckStatusIdle})
	}
	if msg := c.policy.Validate(value); msg != "" {
		return c.publishLocked(models.CheckResult{Status: models.CheckStatusInvalid, Message: msg, CheckedValue: value})
	}
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.ctx, cancel)
	defer stop()

	return c.run(ctx, input{value: value, focused: focused})
}

// Close cancels pending and in-flight checks. Results arriving after Close
// are discarded.
func (c *Checker) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.cancel()
	c.debouncer.Stop()
	clear(c.subs)
}

func (c *Checker) run(ctx context.Context, in input) models.CheckResult {
	if e, ok := c.cache.Lookup(in.value); ok {
		res := models.CheckResult{
			Status:       e.Outcome.Status(),
			Message:      c.messageFor(e.Outcome),
			CheckedValue: in.value,
		}
		c.apply(res)
		return res
	}

	c.apply(models.CheckResult{Status: models.CheckStatusChecking, CheckedValue: in.value, WasFocused: in.focused})

	// Only the checker's lifetime cancels the shared call. It keeps the
	// leader's context values, such as the bearer token.
	ch := c.flights.DoChan(in.value, func() (any, error) {
		flightCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		defer cancel()
		stop := context.AfterFunc(c.ctx, cancel)
		defer stop()
		return c.dir.Exists(flightCtx, in.value)
	})

	var flight singleflight.Result
	select {
	case flight = <-ch:
	case <-ctx.Done():
		flight.Err = ctx.Err()
	}
	v, err, shared := flight.Val, flight.Err, flight.Shared

	res := models.CheckResult{CheckedValue: in.value, WasFocused: in.focused}
	if err != nil {
		c.logger.Warn("Availability check failed",
			zap.String("value_fp", utils.Fingerprint(in.value)),
			zap.Error(err),
		)
		res.Status = models.CheckStatusInvalid
		res.Message = MessageUnavailable
		c.apply(res)
		return res
	}

	outcome := models.OutcomeAvailable
	if v.(bool) {
		outcome = models.OutcomeTaken
	}
	c.cache.Set(in.value, outcome)
	res.Status = outcome.Status()
	res.Message = c.messageFor(outcome)

	c.logger.Debug("Availability checked",
		zap.String("value", c.masked(in.value)),
		zap.String("value_fp", utils.Fingerprint(in.value)),
		zap.String("outcome", string(outcome)),
		zap.Bool("shared", shared),
	)
	c.apply(res)
	return res
}

func (c *Checker) masked(value string) string {
	if c.field == FieldPhone {
		return utils.MaskPhone(value)
	}
	return utils.MaskUsername(value)
}

func (c *Checker) messageFor(o models.Outcome) string {
	if o == models.OutcomeTaken {
		return c.policy.TakenMessage
	}
	return ""
}

// apply publishes res only if it still describes the live input.
func (c *Checker) apply(res models.CheckResult) {
	c.mu.Lock()
	if c.closed || c.live != res.CheckedValue {
		c.mu.Unlock()
		return
	}
	c.publishLocked(res)
}

// publishLocked stores res and notifies subscribers. It must be called with
// c.mu held and releases it. A notification that lost the race to a newer
// one is skipped, so subscribers never see results go backwards.
func (c *Checker) publishLocked(res models.CheckResult) models.CheckResult {
	c.seq++
	seq := c.seq
	c.result = res
	subs := make([]func(models.CheckResult), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	if seq <= c.notified {
		return res
	}
	c.notified = seq
	for _, fn := range subs {
		fn(res)
	}
	return res
}

func normalize(value string) string {
	return norm.NFC.String(value)
}
