package server

import (
	"time"

	"live-quiz-service/internal/domain"
)

// timerState is the master countdown for the active question. All access is
// serialized by the coordinator's lock; the broadcast loop only reads
// through snapshot().
type timerState struct {
	timeLimit int
	startedAt time.Time
	paused    bool
	frozen    int
}

func newTimerState(limitSec int, now time.Time) *timerState {
	return &timerState{timeLimit: limitSec, startedAt: now}
}

// remaining computes seconds left, or the frozen value while paused.
func (t *timerState) remaining(now time.Time) int {
	if t.paused {
		return t.frozen
	}
	elapsed := int(now.Sub(t.startedAt) / time.Second)
	if r := t.timeLimit - elapsed; r > 0 {
		return r
	}
	return 0
}

// pause freezes the countdown at its current value.
func (t *timerState) pause(now time.Time) int {
	if t.paused {
		return t.frozen
	}
	t.frozen = t.remaining(now)
	t.paused = true
	return t.frozen
}

// resume recomputes a virtual start time so the countdown continues from
// the frozen value instead of restarting.
func (t *timerState) resume(now time.Time) int {
	if !t.paused {
		return t.remaining(now)
	}
	used := t.timeLimit - t.frozen
	t.startedAt = now.Add(-time.Duration(used) * time.Second)
	t.paused = false
	return t.frozen
}

// extend grows the time limit. While paused the frozen value grows too, so
// the extension survives the resume.
func (t *timerState) extend(deltaSec int) {
	t.timeLimit += deltaSec
	if t.paused {
		t.frozen += deltaSec
	}
}

func (t *timerState) snapshot(now time.Time) domain.TimerSnapshot {
	r := t.remaining(now)
	return domain.TimerSnapshot{Remaining: r, State: classifyRemaining(r), Paused: t.paused}
}

// classifyRemaining maps seconds left to the urgency label every client
// styles from, so clock skew cannot produce inconsistent colors.
func classifyRemaining(remaining int) string {
	switch {
	case remaining <= 10:
		return domain.TimerCritical
	case remaining <= 30:
		return domain.TimerWarning
	default:
		return domain.TimerNormal
	}
}
