package ws

import (
	"sync"

	"live-quiz-service/internal/domain"
)

// Event is one JSON frame pushed to dashboard subscribers.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Hub fans coordinator events out to websocket subscribers. It implements
// the coordinator's sink interface; publishes never block, slow subscribers
// lose stale frames instead of stalling the engine.
type Hub struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[chan Event]struct{})}
}

func (h *Hub) subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

func (h *Hub) publish(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- e:
		default:
			// Drop the oldest frame so the newest state always lands.
			select {
			case <-ch:
			default:
			}
			ch <- e
		}
	}
}

type questionEvent struct {
	Question domain.Question `json:"question"`
	Index    int             `json:"index"`
	Total    int             `json:"total"`
}

type timerTickEvent struct {
	Timer     domain.TimerSnapshot `json:"timer"`
	Answered  int                  `json:"answered"`
	Connected int                  `json:"connected"`
}

type timerControlEvent struct {
	Action string `json:"action"`
	Value  int    `json:"value"`
}

type quizEndEvent struct {
	Leaderboard []domain.LeaderboardEntry `json:"leaderboard"`
	Analytics   []domain.QuestionStats    `json:"analytics"`
}

func (h *Hub) OnSessionStateChange(state string) {
	h.publish(Event{Type: "sessionState", Payload: state})
}

func (h *Hub) OnQuestionBroadcast(q domain.Question, index, total int) {
	// Hosts see the correct index; this feed is the administrative surface,
	// not the participant wire.
	h.publish(Event{Type: "question", Payload: questionEvent{Question: q, Index: index, Total: total}})
}

func (h *Hub) OnTimerTick(snap domain.TimerSnapshot, answered, connected int) {
	h.publish(Event{Type: "timerTick", Payload: timerTickEvent{Timer: snap, Answered: answered, Connected: connected}})
}

func (h *Hub) OnTimerControl(action string, value int) {
	h.publish(Event{Type: "timerControl", Payload: timerControlEvent{Action: action, Value: value}})
}

func (h *Hub) OnLeaderboardUpdate(entries []domain.LeaderboardEntry) {
	h.publish(Event{Type: "leaderboard", Payload: entries})
}

func (h *Hub) OnParticipantChange(connected int) {
	h.publish(Event{Type: "participants", Payload: connected})
}

func (h *Hub) OnQuizEnd(entries []domain.LeaderboardEntry, stats []domain.QuestionStats) {
	h.publish(Event{Type: "quizEnd", Payload: quizEndEvent{Leaderboard: entries, Analytics: stats}})
}
