package reactor

import (
	"math"
	"testing"
	"time"
)

func TestCeilMs(t *testing.T) {
	tests := []struct {
		name string
		d    time.Duration
		want int
	}{
		{"zero", 0, 1},
		{"negative", -time.Second, 1},
		{"one nanosecond", time.Nanosecond, 1},
		{"just under a millisecond", time.Millisecond - time.Nanosecond, 1},
		{"exactly one millisecond", time.Millisecond, 1},
		{"just over a millisecond", time.Millisecond + time.Nanosecond, 2},
		{"two milliseconds", 2 * time.Millisecond, 2},
		{"one and a half seconds", 1500 * time.Millisecond, 1500},
		{"max int32 clamp", time.Duration(math.MaxInt64), math.MaxInt32},
		{"clamp boundary", math.MaxInt32 * time.Millisecond, math.MaxInt32},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ceilMs(tt.d); got != tt.want {
				t.Errorf("ceilMs(%v) = %d, want %d", tt.d, got, tt.want)
			}
		})
	}
}

func TestPollBound_NoDeadlineNoTimers(t *testing.T) {
	loop := newOwnedLoop(t)

	ms, expired := loop.pollBound(time.Time{})
	if expired {
		t.Error("expired = true without a deadline")
	}
	if ms != -1 {
		t.Errorf("pollBound() = %d, want -1 (block indefinitely)", ms)
	}
}

func TestPollBound_DeadlinePassed(t *testing.T) {
	loop := newOwnedLoop(t)

	ms, expired := loop.pollBound(time.Now().Add(-time.Second))
	if !expired {
		t.Error("expired = false for a past deadline")
	}
	if ms != 0 {
		t.Errorf("pollBound() = %d, want 0", ms)
	}
}

func TestPollBound_DeadlineBounds(t *testing.T) {
	loop := newOwnedLoop(t)

	ms, expired := loop.pollBound(time.Now().Add(100 * time.Millisecond))
	if expired {
		t.Error("expired = true for a future deadline")
	}
	if ms < 1 || ms > 100 {
		t.Errorf("pollBound() = %d, want within (0, 100]", ms)
	}
}

func TestPollBound_TimerBound(t *testing.T) {
	loop := newOwnedLoop(t)

	loop.RegisterTimer(func(int) {}, 10*time.Millisecond, 0)

	// A far-off run deadline defers to the nearer timer.
	ms, expired := loop.pollBound(time.Now().Add(time.Hour))
	if expired {
		t.Error("expired = true for a future deadline")
	}
	if ms < 0 || ms > 10 {
		t.Errorf("pollBound() = %d, want within [0, 10]", ms)
	}
}

func TestPollBound_ExpiredTimerPollsOnce(t *testing.T) {
	loop := newOwnedLoop(t)

	loop.RegisterTimer(func(int) {}, 0, 0)

	ms, expired := loop.pollBound(time.Time{})
	if expired {
		t.Error("expired = true; timer deadlines never expire the run bound")
	}
	if ms != 0 {
		t.Errorf("pollBound() = %d, want 0 for an already-due timer", ms)
	}
}
