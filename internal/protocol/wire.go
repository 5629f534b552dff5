package protocol

import (
	"strconv"
	"strings"

	"live-quiz-service/internal/domain"
)

// EncodeQuestion renders the participant-facing form of a question:
// id~prompt~timeLimit~points~opt0~opt1~opt2~opt3. The correct index is
// deliberately withheld.
func EncodeQuestion(q domain.Question) string {
	return Encode(TypeQuestion,
		strconv.Itoa(q.ID),
		q.Prompt,
		strconv.Itoa(q.TimeLimitSec),
		strconv.Itoa(q.Points),
		q.Options[0],
		q.Options[1],
		q.Options[2],
		q.Options[3],
	)
}

// ParseQuestion rebuilds a question from its wire fields. CorrectIndex is
// always -1 because the wire form never carries it.
func ParseQuestion(fields []string) (domain.Question, bool) {
	if len(fields) != 8 {
		return domain.Question{}, false
	}
	id, err1 := strconv.Atoi(fields[0])
	limit, err2 := strconv.Atoi(fields[2])
	points, err3 := strconv.Atoi(fields[3])
	if err1 != nil || err2 != nil || err3 != nil {
		return domain.Question{}, false
	}
	return domain.Question{
		ID:           id,
		Prompt:       fields[1],
		Options:      [4]string{fields[4], fields[5], fields[6], fields[7]},
		CorrectIndex: -1,
		TimeLimitSec: limit,
		Points:       points,
	}, true
}

// ParseAnswer decodes an ANSWER payload: questionId~chosenOption~latencyMs.
func ParseAnswer(fields []string) (domain.AnswerSubmission, bool) {
	if len(fields) != 3 {
		return domain.AnswerSubmission{}, false
	}
	qid, err1 := strconv.Atoi(fields[0])
	opt, err2 := strconv.Atoi(fields[1])
	latency, err3 := strconv.ParseInt(fields[2], 10, 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return domain.AnswerSubmission{}, false
	}
	return domain.AnswerSubmission{QuestionID: qid, ChosenOption: opt, LatencyMs: latency}, true
}

// EncodeAnswer renders an ANSWER line for a client.
func EncodeAnswer(sub domain.AnswerSubmission) string {
	return Encode(TypeAnswer,
		strconv.Itoa(sub.QuestionID),
		strconv.Itoa(sub.ChosenOption),
		strconv.FormatInt(sub.LatencyMs, 10),
	)
}

// EncodeResult renders a RESULT line: correct(0/1)~points~message~totalScore.
func EncodeResult(res domain.AnswerResult) string {
	correct := "0"
	if res.Correct {
		correct = "1"
	}
	return Encode(TypeResult,
		correct,
		strconv.Itoa(res.PointsEarned),
		res.Message,
		strconv.Itoa(res.TotalScore),
	)
}

// ParseResult decodes a RESULT payload.
func ParseResult(fields []string) (domain.AnswerResult, bool) {
	if len(fields) != 4 {
		return domain.AnswerResult{}, false
	}
	points, err1 := strconv.Atoi(fields[1])
	total, err2 := strconv.Atoi(fields[3])
	if err1 != nil || err2 != nil {
		return domain.AnswerResult{}, false
	}
	return domain.AnswerResult{
		Correct:      fields[0] == "1",
		PointsEarned: points,
		Message:      fields[2],
		TotalScore:   total,
	}, true
}

// LeaderboardPayload joins ranked entries with the entry separator, each
// entry being rank~name~score~correct~answered.
func LeaderboardPayload(entries []domain.LeaderboardEntry) string {
	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = JoinFields(
			strconv.Itoa(e.Rank),
			e.DisplayName,
			strconv.Itoa(e.Score),
			strconv.Itoa(e.Correct),
			strconv.Itoa(e.Answered),
		)
	}
	return strings.Join(parts, EntrySeparator)
}

// ParseLeaderboard rebuilds entries from a LEADERBOARD or QUIZ_END payload.
// Malformed entries are skipped.
func ParseLeaderboard(payload string) []domain.LeaderboardEntry {
	var entries []domain.LeaderboardEntry
	for _, raw := range SplitEntries(payload) {
		fields := SplitFields(raw)
		if len(fields) != 5 {
			continue
		}
		rank, err1 := strconv.Atoi(fields[0])
		score, err2 := strconv.Atoi(fields[2])
		correct, err3 := strconv.Atoi(fields[3])
		answered, err4 := strconv.Atoi(fields[4])
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			continue
		}
		entries = append(entries, domain.LeaderboardEntry{
			Rank:        rank,
			DisplayName: fields[1],
			Score:       score,
			Correct:     correct,
			Answered:    answered,
		})
	}
	return entries
}

// EncodeTimerSync renders the periodic countdown broadcast.
func EncodeTimerSync(snap domain.TimerSnapshot) string {
	return Encode(TypeTimerSync, strconv.Itoa(snap.Remaining), snap.State)
}
