package ws

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/protocol"
	"live-quiz-service/internal/server"
)

// QuestionRepository loads question sets (from cache/backing store).
type QuestionRepository interface {
	GetQuestionSet(ctx context.Context, setID string) (domain.QuestionSet, error)
}

// Handler exposes the host dashboard: a websocket that streams coordinator
// events and accepts the administrative operations.
type Handler struct {
	coord     *server.Coordinator
	hub       *Hub
	questions QuestionRepository
	upgrader  websocket.Upgrader
}

func NewHandler(coord *server.Coordinator, hub *Hub, questions QuestionRepository) *Handler {
	return &Handler{
		coord:     coord,
		hub:       hub,
		questions: questions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type command struct {
	Action  string `json:"action"`
	SetID   string `json:"setId,omitempty"`
	Count   int    `json:"count,omitempty"`
	Seconds int    `json:"seconds,omitempty"`
	Text    string `json:"text,omitempty"`
}

type statusPayload struct {
	State     string `json:"state"`
	Question  int    `json:"question"`
	Total     int    `json:"total"`
	Connected int    `json:"connected"`
}

// ServeWS upgrades the request and services one dashboard session.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("dashboard upgrade failed")
		return
	}
	defer conn.Close()

	events, cancel := h.hub.subscribe()
	defer cancel()

	send := make(chan Event, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	pumpDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for e := range send {
			if err := conn.WriteJSON(e); err != nil {
				log.Debug().Err(err).Msg("dashboard write error")
				return
			}
		}
	}()

	go func() {
		defer close(pumpDone)
		for {
			select {
			case e, ok := <-events:
				if !ok {
					return
				}
				select {
				case send <- e:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	send <- Event{Type: "status", Payload: h.status()}

	for {
		var cmd command
		if err := conn.ReadJSON(&cmd); err != nil {
			break
		}
		if err := h.apply(r.Context(), cmd); err != nil {
			send <- Event{Type: "error", Payload: err.Error()}
			continue
		}
		send <- Event{Type: "status", Payload: h.status()}
	}

	close(closeSignals)
	<-pumpDone
	close(send)
	<-writerDone
}

func (h *Handler) status() statusPayload {
	state, index, total, connected := h.coord.Status()
	return statusPayload{State: state, Question: index + 1, Total: total, Connected: connected}
}

func (h *Handler) apply(ctx context.Context, cmd command) error {
	switch cmd.Action {
	case "start":
		set, err := h.questions.GetQuestionSet(ctx, cmd.SetID)
		if err != nil {
			return err
		}
		questions := set.Questions
		if cmd.Count > 0 && cmd.Count < len(questions) {
			questions = questions[:cmd.Count]
		}
		return h.coord.StartQuiz(questions)
	case "next":
		return h.coord.ForceNext()
	case "skip":
		return h.coord.Skip()
	case "pause":
		return h.coord.Pause()
	case "resume":
		return h.coord.Resume()
	case "extend":
		return h.coord.Extend(cmd.Seconds)
	case "end":
		return h.coord.EndQuiz()
	case "announce":
		h.coord.Broadcast(protocol.TypeMessage, cmd.Text)
		return nil
	default:
		return errUnknownAction(cmd.Action)
	}
}

type errUnknownAction string

func (e errUnknownAction) Error() string { return "unknown action: " + string(e) }
