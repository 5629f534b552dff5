package tcp

import (
	"bufio"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"live-quiz-service/internal/protocol"
	"live-quiz-service/internal/server"
)

// sendBuffer bounds the per-connection outbound queue. A participant that
// cannot drain it is dropped instead of stalling the coordinator.
const sendBuffer = 64

// Handler owns one participant connection: a read loop that decodes and
// dispatches inbound lines, and a writer goroutine draining the send queue.
type Handler struct {
	id    string
	conn  net.Conn
	coord *server.Coordinator

	send chan string
	done chan struct{}
	once sync.Once

	// Set by the read loop on join; only that goroutine touches them.
	participantID string
	displayName   string
}

func newHandler(conn net.Conn, coord *server.Coordinator) *Handler {
	return &Handler{
		id:    uuid.NewString(),
		conn:  conn,
		coord: coord,
		send:  make(chan string, sendBuffer),
		done:  make(chan struct{}),
	}
}

// ID identifies this connection to the coordinator.
func (h *Handler) ID() string { return h.id }

// Send enqueues one line for delivery. It never blocks: a full queue means
// the client stopped reading, and the connection is closed instead.
func (h *Handler) Send(line string) {
	select {
	case h.send <- line:
	case <-h.done:
	default:
		log.Warn().Str("conn", h.id).Msg("send queue full, dropping connection")
		h.Close()
	}
}

// Close releases the socket exactly once and detaches from the coordinator.
// Safe to call concurrently from the read loop and an external shutdown.
// The overflow path reaches Close from inside a coordinator broadcast, with
// the coordinator lock held; RemoveConnection re-takes that lock, so the
// detach must happen on a fresh goroutine.
func (h *Handler) Close() {
	h.once.Do(func() {
		close(h.done)
		_ = h.conn.Close()
		go h.coord.RemoveConnection(h.id)
	})
}

// run services the connection until it drops. The caller's goroutine is the
// read loop; the writer runs on its own.
func (h *Handler) run() {
	defer h.Close()

	go h.writeLoop()

	scanner := bufio.NewScanner(h.conn)
	scanner.Buffer(make([]byte, 0, 4096), 64*1024)
	for scanner.Scan() {
		h.handleLine(scanner.Text())
		select {
		case <-h.done:
			return
		default:
		}
	}
	if err := scanner.Err(); err != nil {
		select {
		case <-h.done:
		default:
			log.Debug().Err(err).Str("conn", h.id).Msg("connection read error")
		}
	}
}

func (h *Handler) writeLoop() {
	for {
		select {
		case <-h.done:
			return
		case line := <-h.send:
			if _, err := h.conn.Write([]byte(line + "\n")); err != nil {
				log.Debug().Err(err).Str("conn", h.id).Msg("connection write error")
				h.Close()
				return
			}
		}
	}
}

// handleLine dispatches one decoded message. Unknown or malformed lines are
// logged and ignored; they are never fatal to the connection.
func (h *Handler) handleLine(line string) {
	msg := protocol.Decode(line)
	switch msg.Type {
	case protocol.TypeStudentJoin:
		h.handleJoin(msg)
	case protocol.TypeAnswer:
		h.handleAnswer(msg)
	case protocol.TypeMessage:
		h.handleChat(msg)
	case protocol.TypeDisconnect:
		log.Info().Str("conn", h.id).Msg("client requested disconnect")
		h.Close()
	case protocol.TypeAck:
		// Client ack for an id-tagged frame; delivery is fire-and-forget here.
	case "":
		log.Debug().Str("conn", h.id).Msg("empty line ignored")
	default:
		log.Warn().Str("conn", h.id).Str("type", msg.Type).Msg("unknown message type ignored")
	}
}

func (h *Handler) handleJoin(msg protocol.Message) {
	fields := msg.Fields()
	if len(fields) < 2 || fields[0] == "" || fields[1] == "" {
		h.Send(protocol.Encode(protocol.TypeError, "join requires id~name"))
		return
	}
	h.participantID = fields[0]
	h.displayName = fields[1]
	if err := h.coord.Join(h.id, h.participantID, h.displayName); err != nil {
		h.Send(protocol.Encode(protocol.TypeError, err.Error()))
	}
}

func (h *Handler) handleAnswer(msg protocol.Message) {
	if h.participantID == "" {
		h.Send(protocol.Encode(protocol.TypeError, "join before answering"))
		return
	}
	sub, ok := protocol.ParseAnswer(msg.Fields())
	if !ok {
		h.Send(protocol.Encode(protocol.TypeError, "malformed answer"))
		return
	}
	// Rejections still produce an explicit RESULT so the participant sees
	// inline feedback rather than a silent drop.
	if _, err := h.coord.SubmitAnswer(h.id, sub); err != nil {
		log.Debug().Err(err).Str("participant", h.participantID).Msg("answer not scored")
	}
}

func (h *Handler) handleChat(msg protocol.Message) {
	if h.participantID == "" {
		return
	}
	fields := msg.Fields()
	if len(fields) == 0 {
		return
	}
	h.coord.BroadcastChat(h.displayName, fields[0])
}
