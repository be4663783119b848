package net

import (
	"fmt"
	"net"
	"sync/atomic"

	"go.uber.org/zap"
)

// Server accepts TCP connections and creates Sessions. New sessions are
// handed to the gateway through a channel.
type Server struct {
	listener net.Listener
	ids      *atomic.Uint64
	newConns chan *Session
	opts     SessionOptions
	log      *zap.Logger
	closeCh  chan struct{}
}

// NewServer listens on bindAddr. ids is shared with the other listeners so
// session ids stay unique across transports.
func NewServer(bindAddr string, ids *atomic.Uint64, opts SessionOptions, log *zap.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return nil, err
	}
	s := &Server{
		listener: ln,
		ids:      ids,
		newConns: make(chan *Session, 64),
		opts:     opts,
		log:      log,
		closeCh:  make(chan struct{}),
	}
	return s, nil
}

// AcceptLoop runs in its own goroutine. It accepts connections, starts
// their sessions and pushes them onto the newConns channel.
func (s *Server) AcceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closeCh:
				return // server shutting down
			default:
			}
			s.log.Error("連線接受失敗", zap.Error(err))
			continue
		}

		id := s.ids.Add(1)
		sess := NewSession(NewTCPConn(conn), id, s.opts, s.log)
		sess.Start()

		s.log.Info(fmt.Sprintf("觀察者連線  session=%d  ip=%s", id, sess.IP), zap.String("transport", "tcp"))

		select {
		case s.newConns <- sess:
		default:
			s.log.Warn("連線佇列已滿，拒絕新連線")
			sess.Close()
		}
	}
}

// NewSessions returns the channel of newly connected sessions.
func (s *Server) NewSessions() <-chan *Session {
	return s.newConns
}

// Shutdown stops accepting new connections.
func (s *Server) Shutdown() {
	close(s.closeCh)
	s.listener.Close()
}

// Addr returns the listener's address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}
