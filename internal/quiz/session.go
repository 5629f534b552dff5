package quiz

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/scoring"
)

// State is the lifecycle of a session: idle until started, then running,
// then ended. The cursor only moves forward while running.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateEnded:
		return "ended"
	default:
		return "idle"
	}
}

// Session holds the authoritative state of one quiz run: the ordered
// question list, the participant registry, the per-question answered set,
// and every participant's answer history.
//
// Session is not safe for concurrent use on its own. The coordinator owns
// it and serializes every mutation behind a single lock, so a torn state
// (an answer attributed to a question mid-transition) cannot be observed.
type Session struct {
	id           string
	state        State
	questions    []domain.Question
	current      int
	participants map[string]*domain.Participant
	answered     map[string]struct{}
	history      map[string][]domain.AnswerRecord
	now          func() time.Time

	startedAt         time.Time
	questionStartedAt time.Time
}

// New builds an idle session over an ordered question list.
func New(id string, questions []domain.Question, now func() time.Time) *Session {
	if now == nil {
		now = time.Now
	}
	return &Session{
		id:           id,
		questions:    questions,
		current:      -1,
		participants: make(map[string]*domain.Participant),
		answered:     make(map[string]struct{}),
		history:      make(map[string][]domain.AnswerRecord),
		now:          now,
	}
}

// ID returns the session identity.
func (s *Session) ID() string { return s.id }

// State returns the lifecycle state.
func (s *Session) State() State { return s.state }

// Active reports whether the quiz is running.
func (s *Session) Active() bool { return s.state == StateRunning }

// Start moves the session from idle to running. Restarting a running or
// ended session is rejected, not a crash.
func (s *Session) Start() error {
	if s.state == StateRunning {
		return domain.ErrQuizActive
	}
	if s.state == StateEnded {
		return domain.ErrQuizActive
	}
	s.state = StateRunning
	s.startedAt = s.now()
	s.current = -1
	return nil
}

// End finishes the session. Calling it twice is a no-op.
func (s *Session) End() {
	if s.state == StateRunning {
		s.state = StateEnded
	}
}

// AddParticipant registers a participant, refreshing the display name if the
// identity already joined.
func (s *Session) AddParticipant(id, displayName string) *domain.Participant {
	if p, ok := s.participants[id]; ok {
		p.DisplayName = displayName
		return p
	}
	p := &domain.Participant{
		ID:          id,
		DisplayName: displayName,
		JoinedAt:    s.now(),
	}
	s.participants[id] = p
	return p
}

// RemoveParticipant drops a participant from the registry and from the
// current answered set, so everyone-answered checks only count registered
// participants. Their answer history is kept for analytics.
func (s *Session) RemoveParticipant(id string) {
	delete(s.participants, id)
	delete(s.answered, id)
}

// Participant looks up a registered participant.
func (s *Session) Participant(id string) (*domain.Participant, bool) {
	p, ok := s.participants[id]
	return p, ok
}

// ParticipantCount returns the number of registered participants.
func (s *Session) ParticipantCount() int { return len(s.participants) }

// CurrentQuestion returns the active question, if any.
func (s *Session) CurrentQuestion() (domain.Question, bool) {
	if s.current >= 0 && s.current < len(s.questions) {
		return s.questions[s.current], true
	}
	return domain.Question{}, false
}

// CurrentIndex returns the cursor position, -1 before the first question.
func (s *Session) CurrentIndex() int { return s.current }

// TotalQuestions returns the length of the question list.
func (s *Session) TotalQuestions() int { return len(s.questions) }

// HasMoreQuestions reports whether the cursor can still advance.
func (s *Session) HasMoreQuestions() bool {
	return s.current < len(s.questions)-1
}

// NextQuestion advances the cursor and resets the answered set for the new
// question. Exhaustion is signalled with ErrNoMoreQuestions so the caller
// can end the quiz.
func (s *Session) NextQuestion() (domain.Question, error) {
	if s.state != StateRunning {
		return domain.Question{}, domain.ErrQuizNotActive
	}
	s.current++
	if s.current >= len(s.questions) {
		return domain.Question{}, domain.ErrNoMoreQuestions
	}
	s.answered = make(map[string]struct{})
	s.questionStartedAt = s.now()
	return s.questions[s.current], nil
}

// AnsweredCount returns how many participants answered the current question.
func (s *Session) AnsweredCount() int { return len(s.answered) }

// HasAnswered reports whether a participant already answered the current
// question.
func (s *Session) HasAnswered(participantID string) bool {
	_, ok := s.answered[participantID]
	return ok
}

// RecordAnswer grades and applies one submission. It is idempotent per
// (participant, question): duplicates are rejected before any mutation.
// Answers for a question that is not current are rejected the same way.
func (s *Session) RecordAnswer(participantID string, sub domain.AnswerSubmission, policy scoring.Policy) (domain.AnswerResult, error) {
	if s.state != StateRunning {
		return domain.AnswerResult{Message: "no quiz in progress"}, domain.ErrQuizNotActive
	}
	p, ok := s.participants[participantID]
	if !ok {
		return domain.AnswerResult{Message: "participant not found"}, domain.ErrParticipantNotFound
	}
	q, ok := s.CurrentQuestion()
	if !ok || q.ID != sub.QuestionID {
		return domain.AnswerResult{Message: "invalid question", TotalScore: p.Score}, domain.ErrStaleQuestion
	}
	if _, dup := s.answered[participantID]; dup {
		return domain.AnswerResult{Message: "answer already recorded", TotalScore: p.Score}, domain.ErrDuplicateAnswer
	}
	s.answered[participantID] = struct{}{}

	correct := sub.ChosenOption == q.CorrectIndex
	points := policy.Points(correct, sub.LatencyMs, p.Streak, q)

	p.Answered++
	if correct {
		p.Correct++
		p.Streak++
		p.Score += points
	} else {
		p.Streak = 0
	}

	s.history[participantID] = append(s.history[participantID], domain.AnswerRecord{
		QuestionID:   sub.QuestionID,
		ChosenOption: sub.ChosenOption,
		Correct:      correct,
		PointsEarned: points,
		LatencyMs:    sub.LatencyMs,
		SubmittedAt:  s.now(),
	})

	msg := "Incorrect"
	if correct {
		msg = fmt.Sprintf("Correct! +%d points", points)
	}
	return domain.AnswerResult{
		Correct:      correct,
		PointsEarned: points,
		Message:      msg,
		TotalScore:   p.Score,
	}, nil
}

// Leaderboard returns the ranked scoreboard: score descending, then correct
// answers descending, then display name, then id so the order is total.
func (s *Session) Leaderboard() []domain.LeaderboardEntry {
	ranked := make([]*domain.Participant, 0, len(s.participants))
	for _, p := range s.participants {
		ranked = append(ranked, p)
	}
	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Correct != b.Correct {
			return a.Correct > b.Correct
		}
		if a.DisplayName != b.DisplayName {
			return a.DisplayName < b.DisplayName
		}
		return a.ID < b.ID
	})

	entries := make([]domain.LeaderboardEntry, len(ranked))
	for i, p := range ranked {
		entries[i] = domain.LeaderboardEntry{
			Rank:        i + 1,
			DisplayName: p.DisplayName,
			Score:       p.Score,
			Correct:     p.Correct,
			Answered:    p.Answered,
		}
	}
	return entries
}

// ResultsSummary renders the final standings as a readable table:
// rank, name, score, correct answers, accuracy.
func (s *Session) ResultsSummary() string {
	var sb strings.Builder
	sb.WriteString("=== QUIZ RESULTS ===\n")
	entries := s.Leaderboard()
	fmt.Fprintf(&sb, "Total Participants: %d\n", len(entries))
	sb.WriteString("Rank | Name | Score | Correct | Accuracy\n")
	for _, e := range entries {
		accuracy := 0.0
		if e.Answered > 0 {
			accuracy = float64(e.Correct) * 100 / float64(e.Answered)
		}
		fmt.Fprintf(&sb, "%-4d | %-20s | %-5d | %-7d | %.1f%%\n",
			e.Rank, e.DisplayName, e.Score, e.Correct, accuracy)
	}
	return sb.String()
}

// History returns a participant's answer records in submission order.
func (s *Session) History(participantID string) []domain.AnswerRecord {
	return s.history[participantID]
}

// Analytics aggregates all answer history per question, ordered by question
// id: attempts, correct count, accuracy, and latency spread.
func (s *Session) Analytics() []domain.QuestionStats {
	byQuestion := make(map[int][]domain.AnswerRecord)
	for _, records := range s.history {
		for _, r := range records {
			byQuestion[r.QuestionID] = append(byQuestion[r.QuestionID], r)
		}
	}
	ids := make([]int, 0, len(byQuestion))
	for id := range byQuestion {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	stats := make([]domain.QuestionStats, 0, len(ids))
	for _, id := range ids {
		records := byQuestion[id]
		st := domain.QuestionStats{QuestionID: id, Attempts: len(records)}
		var total int64
		for i, r := range records {
			if r.Correct {
				st.Correct++
			}
			total += r.LatencyMs
			if i == 0 || r.LatencyMs < st.FastestMs {
				st.FastestMs = r.LatencyMs
			}
			if r.LatencyMs > st.SlowestMs {
				st.SlowestMs = r.LatencyMs
			}
		}
		if st.Attempts > 0 {
			st.Accuracy = float64(st.Correct) * 100 / float64(st.Attempts)
			st.AvgMs = total / int64(st.Attempts)
		}
		stats = append(stats, st)
	}
	return stats
}

// QuestionStartedAt returns when the current question was broadcast.
func (s *Session) QuestionStartedAt() time.Time { return s.questionStartedAt }

// StartedAt returns when the session started.
func (s *Session) StartedAt() time.Time { return s.startedAt }
