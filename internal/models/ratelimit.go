package models

import "time"

// ActionKind identifies a throttled user action.
type ActionKind string

const (
	ActionBlock  ActionKind = "block"
	ActionReport ActionKind = "report"
)

// DayLayout is the persisted calendar-day format of a counter.
const DayLayout = "2006-01-02"

// RateLimitCounter is the persisted per-user, per-kind daily count.
type RateLimitCounter struct {
	Kind  ActionKind `json:"kind" db:"kind"`
	Date  string     `json:"date" db:"day"`
	Count int        `json:"count" db:"count"`
}

// CountOn returns the counter's count as observed on day, applying the lazy
// rollover rule: a counter for any other day reads as zero.
func (c RateLimitCounter) CountOn(day string) int {
	if c.Date != day {
		return 0
	}
	return c.Count
}

// Day formats t as a counter date in t's location.
func Day(t time.Time) string {
	return t.Format(DayLayout)
}

// Quota is the caller-facing view of a limiter counter.
type Quota struct {
	Kind         ActionKind `json:"kind"`
	DailyLimit   int        `json:"dailyLimit"`
	Remaining    int        `json:"remaining"`
	LimitReached bool       `json:"isLimitReached"`
}
