package registry

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type closable struct {
	closed atomic.Int32
}

func (c *closable) Close() { c.closed.Add(1) }

func TestRegistry_AddGetRemove(t *testing.T) {
	r := New[*closable]("forms", time.Minute)
	v := &closable{}

	id := r.Add("user-1", v)
	require.NotEmpty(t, id)

	got, err := r.Get("user-1", id)
	require.NoError(t, err)
	assert.Same(t, v, got)

	require.NoError(t, r.Remove("user-1", id))
	assert.Equal(t, int32(1), v.closed.Load())
	assert.Equal(t, 0, r.Len())

	_, err = r.Get("user-1", id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_OtherOwnerCannotSeeEntry(t *testing.T) {
	r := New[*closable]("forms", time.Minute)
	v := &closable{}
	id := r.Add("user-1", v)

	_, err := r.Get("user-2", id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, r.Remove("user-2", id), ErrNotFound)
	assert.Equal(t, int32(0), v.closed.Load())
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_IdleEntriesAreSweptOnAccess(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r := New[*closable]("sessions", 10*time.Minute, WithClock(func() time.Time { return now }))

	stale := &closable{}
	fresh := &closable{}
	staleID := r.Add("user-1", stale)

	now = now.Add(6 * time.Minute)
	freshID := r.Add("user-1", fresh)

	now = now.Add(6 * time.Minute)
	_, err := r.Get("user-1", freshID)
	require.NoError(t, err)

	_, err = r.Get("user-1", staleID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int32(1), stale.closed.Load())
	assert.Equal(t, int32(0), fresh.closed.Load())
}

func TestRegistry_EachSkipsIdleEntries(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r := New[*closable]("forms", 10*time.Minute, WithClock(func() time.Time { return now }))

	stale := &closable{}
	r.Add("user-1", stale)
	now = now.Add(6 * time.Minute)
	fresh := &closable{}
	r.Add("user-2", fresh)
	now = now.Add(6 * time.Minute)

	var seen []*closable
	r.Each(func(c *closable) { seen = append(seen, c) })

	assert.Equal(t, []*closable{fresh}, seen)
	assert.Equal(t, int32(1), stale.closed.Load())
}

func TestRegistry_Close(t *testing.T) {
	r := New[*closable]("forms", 0)
	a, b := &closable{}, &closable{}
	r.Add("u", a)
	r.Add("u", b)

	r.Close()

	assert.Equal(t, 0, r.Len())
	assert.Equal(t, int32(1), a.closed.Load())
	assert.Equal(t, int32(1), b.closed.Load())
}
