package scoring

import "live-quiz-service/internal/domain"

// Policy converts one graded answer into points. Implementations are pure:
// no state, safe for concurrent use.
type Policy interface {
	// Points returns the delta to add for this answer. streak is the number
	// of consecutive correct answers before this one.
	Points(correct bool, responseMs int64, streak int, q domain.Question) int
}

// streakTier maps a response-time ceiling to a bonus. Tiers are tried in
// order; the first one whose ceiling exceeds the response time wins.
type streakTier struct {
	UnderMs int64
	Bonus   int
}

// StreakPolicy awards a flat base for a correct answer plus a stepwise
// time bonus and a streak bonus.
type StreakPolicy struct {
	Base      int
	TimeTiers []streakTier
	StreakCap int
}

// NewStreakPolicy returns the default tuning: base 10, time bonus stepping
// down from 5 to 0 every two seconds, streak bonus capped at 5.
func NewStreakPolicy() *StreakPolicy {
	return &StreakPolicy{
		Base: 10,
		TimeTiers: []streakTier{
			{UnderMs: 2000, Bonus: 5},
			{UnderMs: 4000, Bonus: 4},
			{UnderMs: 6000, Bonus: 3},
			{UnderMs: 8000, Bonus: 2},
			{UnderMs: 10000, Bonus: 1},
		},
		StreakCap: 5,
	}
}

func (p *StreakPolicy) Points(correct bool, responseMs int64, streak int, _ domain.Question) int {
	if !correct {
		return 0
	}
	timeBonus := 0
	if responseMs > 0 {
		for _, tier := range p.TimeTiers {
			if responseMs < tier.UnderMs {
				timeBonus = tier.Bonus
				break
			}
		}
	}
	streakBonus := streak
	if streakBonus < 0 {
		streakBonus = 0
	}
	if streakBonus > p.StreakCap {
		streakBonus = p.StreakCap
	}
	return p.Base + timeBonus + streakBonus
}

// QuestionValuePolicy is the legacy per-question formula: the question's own
// point value scaled by how much of the time limit was left. 150% of base
// under half the limit, 125% under three quarters, 100% otherwise.
type QuestionValuePolicy struct{}

func (QuestionValuePolicy) Points(correct bool, responseMs int64, _ int, q domain.Question) int {
	if !correct {
		return 0
	}
	base := q.Points
	if base <= 0 {
		base = 1
	}
	limitMs := int64(q.TimeLimitSec) * 1000
	if limitMs <= 0 || responseMs <= 0 {
		return base
	}
	switch {
	case responseMs < limitMs/2:
		return base * 3 / 2
	case float64(responseMs) < float64(limitMs)*0.75:
		return base * 5 / 4
	default:
		return base
	}
}

// ForName selects a policy by config name. Unknown names fall back to the
// streak policy.
func ForName(name string) Policy {
	switch name {
	case "questionValue", "legacy":
		return QuestionValuePolicy{}
	default:
		return NewStreakPolicy()
	}
}
