package domain

import "time"

// Participant represents a connected player and their running score state.
type Participant struct {
	ID          string
	DisplayName string
	Score       int
	Answered    int
	Correct     int
	Streak      int
	JoinedAt    time.Time
}

// Accuracy returns the percentage of answered questions that were correct.
func (p *Participant) Accuracy() float64 {
	if p.Answered == 0 {
		return 0
	}
	return float64(p.Correct) / float64(p.Answered) * 100
}

// Question is a multiple-choice question with exactly four options.
// CorrectIndex is never sent to participants.
type Question struct {
	ID           int       `json:"id"`
	Prompt       string    `json:"prompt"`
	Options      [4]string `json:"options"`
	CorrectIndex int       `json:"correctIndex"`
	TimeLimitSec int       `json:"timeLimitSec"`
	Points       int       `json:"points"`
}

// QuestionSet is a named, ordered collection of questions loadable as one quiz.
type QuestionSet struct {
	ID        string     `json:"id"`
	Questions []Question `json:"questions"`
}

// AnswerSubmission models an inbound answer from a participant.
type AnswerSubmission struct {
	QuestionID   int
	ChosenOption int
	LatencyMs    int64
}

// AnswerResult summarizes the outcome of one submission for one participant.
type AnswerResult struct {
	Correct      bool
	PointsEarned int
	Message      string
	TotalScore   int
}

// AnswerRecord is an append-only entry in a participant's answer history.
type AnswerRecord struct {
	QuestionID   int
	ChosenOption int
	Correct      bool
	PointsEarned int
	LatencyMs    int64
	SubmittedAt  time.Time
}

// LeaderboardEntry is one ranked row of the scoreboard.
type LeaderboardEntry struct {
	Rank        int    `json:"rank"`
	DisplayName string `json:"displayName"`
	Score       int    `json:"score"`
	Correct     int    `json:"correct"`
	Answered    int    `json:"answered"`
}

// QuestionStats aggregates answer history for a single question.
type QuestionStats struct {
	QuestionID int     `json:"questionId"`
	Attempts   int     `json:"attempts"`
	Correct    int     `json:"correct"`
	Accuracy   float64 `json:"accuracy"`
	AvgMs      int64   `json:"avgMs"`
	FastestMs  int64   `json:"fastestMs"`
	SlowestMs  int64   `json:"slowestMs"`
}

// TimerSnapshot is the broadcast view of the master countdown.
type TimerSnapshot struct {
	Remaining int    `json:"remaining"`
	State     string `json:"state"`
	Paused    bool   `json:"paused"`
}

// Timer urgency states, chosen server-side so every client styles identically.
const (
	TimerNormal   = "normal"
	TimerWarning  = "warning"
	TimerCritical = "critical"
)
