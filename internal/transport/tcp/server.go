package tcp

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"live-quiz-service/internal/server"
)

const acceptRetryDelay = 50 * time.Millisecond

// Server accepts participant connections on the quiz protocol port and
// hands each one to its own Handler goroutine.
type Server struct {
	coord *server.Coordinator

	mu     sync.Mutex
	ln     net.Listener
	closed bool
	wg     sync.WaitGroup
}

func NewServer(coord *server.Coordinator) *Server {
	return &Server{coord: coord}
}

// Listen binds the address and starts accepting. It returns once the
// listener is live; accepted connections are serviced in the background.
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = ln.Close()
		return errors.New("server already closed")
	}
	s.ln = ln
	s.mu.Unlock()

	log.Info().Str("addr", ln.Addr().String()).Msg("quiz server listening")
	s.wg.Add(1)
	go s.acceptLoop(ln)
	return nil
}

// Addr returns the bound address, nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return
			}
			// Per-connection failures (RST during accept, EMFILE bursts)
			// must not take the listener down.
			log.Error().Err(err).Msg("accept failed, retrying")
			time.Sleep(acceptRetryDelay)
			continue
		}
		h := newHandler(conn, s.coord)
		s.coord.AcceptConnection(h)
		go h.run()
	}
}

// Close shuts the listener down, which deterministically unblocks the
// accept loop. Live connections are closed through the coordinator.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	ln := s.ln
	s.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}
	s.wg.Wait()
	return err
}
