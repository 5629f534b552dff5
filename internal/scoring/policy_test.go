package scoring

import (
	"testing"

	"live-quiz-service/internal/domain"
)

func TestStreakPolicyIncorrectScoresZero(t *testing.T) {
	p := NewStreakPolicy()
	if got := p.Points(false, 100, 10, domain.Question{}); got != 0 {
		t.Fatalf("incorrect answer scored %d", got)
	}
}

func TestStreakPolicyTimeBonusTiers(t *testing.T) {
	p := NewStreakPolicy()
	cases := []struct {
		ms   int64
		want int
	}{
		{1000, 15}, // full time bonus
		{1999, 15},
		{2000, 14},
		{5000, 13},
		{9000, 11},
		{9999, 11},
		{10000, 10}, // bonus floor
		{60000, 10},
		{0, 10}, // unknown latency gets no bonus
	}
	for _, c := range cases {
		if got := p.Points(true, c.ms, 0, domain.Question{}); got != c.want {
			t.Fatalf("latency %dms: got %d, want %d", c.ms, got, c.want)
		}
	}
}

func TestStreakPolicyFastBeatsSlow(t *testing.T) {
	p := NewStreakPolicy()
	q := domain.Question{TimeLimitSec: 30, Points: 10}
	fast := p.Points(true, 1000, 0, q)
	slow := p.Points(true, 9000, 0, q)
	if fast <= slow {
		t.Fatalf("expected 1s answer (%d) to beat 9s answer (%d)", fast, slow)
	}
}

func TestStreakPolicyStreakBonusCapped(t *testing.T) {
	p := NewStreakPolicy()
	if got := p.Points(true, 0, 3, domain.Question{}); got != 13 {
		t.Fatalf("streak 3: got %d, want 13", got)
	}
	if got := p.Points(true, 0, 50, domain.Question{}); got != 15 {
		t.Fatalf("streak 50 should cap at +5: got %d", got)
	}
	if got := p.Points(true, 0, -1, domain.Question{}); got != 10 {
		t.Fatalf("negative streak should add nothing: got %d", got)
	}
}

func TestQuestionValuePolicyPercentageTiers(t *testing.T) {
	p := QuestionValuePolicy{}
	q := domain.Question{TimeLimitSec: 30, Points: 10}
	cases := []struct {
		ms   int64
		want int
	}{
		{1000, 15},  // under 50% of the limit
		{14999, 15},
		{15000, 12}, // under 75%
		{22000, 12},
		{22500, 10}, // full time
		{30000, 10},
	}
	for _, c := range cases {
		if got := p.Points(true, c.ms, 0, q); got != c.want {
			t.Fatalf("latency %dms: got %d, want %d", c.ms, got, c.want)
		}
	}
	if got := p.Points(false, 1000, 0, q); got != 0 {
		t.Fatalf("incorrect answer scored %d", got)
	}
	if got := p.Points(true, 0, 0, q); got != 10 {
		t.Fatalf("unknown latency should earn base: got %d", got)
	}
}

func TestForName(t *testing.T) {
	if _, ok := ForName("legacy").(QuestionValuePolicy); !ok {
		t.Fatalf("legacy should select the question-value policy")
	}
	if _, ok := ForName("").(*StreakPolicy); !ok {
		t.Fatalf("default should be the streak policy")
	}
}
