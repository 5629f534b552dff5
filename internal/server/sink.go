package server

import "live-quiz-service/internal/domain"

// Sink receives coordinator events. Dashboards (host or participant views)
// implement it instead of being structural dependencies of the engine.
// Implementations must not block; they are invoked with the coordinator
// lock held.
type Sink interface {
	OnSessionStateChange(state string)
	OnQuestionBroadcast(q domain.Question, index, total int)
	OnTimerTick(snap domain.TimerSnapshot, answered, connected int)
	OnTimerControl(action string, value int)
	OnLeaderboardUpdate(entries []domain.LeaderboardEntry)
	OnParticipantChange(connected int)
	OnQuizEnd(entries []domain.LeaderboardEntry, stats []domain.QuestionStats)
}

// NopSink discards every event.
type NopSink struct{}

func (NopSink) OnSessionStateChange(string)                                 {}
func (NopSink) OnQuestionBroadcast(domain.Question, int, int)               {}
func (NopSink) OnTimerTick(domain.TimerSnapshot, int, int)                  {}
func (NopSink) OnTimerControl(string, int)                                  {}
func (NopSink) OnLeaderboardUpdate([]domain.LeaderboardEntry)               {}
func (NopSink) OnParticipantChange(int)                                     {}
func (NopSink) OnQuizEnd([]domain.LeaderboardEntry, []domain.QuestionStats) {}
