package net

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSServer accepts observers over WebSocket on /ws. Each binary message is
// one packet, with the same payload layout as the TCP frames.
type WSServer struct {
	listener net.Listener
	http     *http.Server
	upgrader websocket.Upgrader
	ids      *atomic.Uint64
	newConns chan *Session
	opts     SessionOptions
	log      *zap.Logger
}

func NewWSServer(bindAddr string, ids *atomic.Uint64, opts SessionOptions, log *zap.Logger) (*WSServer, error) {
	ln, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return nil, err
	}
	s := &WSServer{
		listener: ln,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		ids:      ids,
		newConns: make(chan *Session, 64),
		opts:     opts,
		log:      log,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handle)
	s.http = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	return s, nil
}

// Serve runs the HTTP server until Shutdown.
func (s *WSServer) Serve() {
	if err := s.http.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.Error("WebSocket 服務中止", zap.Error(err))
	}
}

func (s *WSServer) handle(w http.ResponseWriter, r *http.Request) {
	c, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("WebSocket 升級失敗", zap.Error(err))
		return
	}
	c.SetReadLimit(maxPayload)

	id := s.ids.Add(1)
	sess := NewSession(NewWSConn(c, r.RemoteAddr), id, s.opts, s.log)
	sess.Start()
	s.log.Info(fmt.Sprintf("觀察者連線  session=%d  ip=%s", id, sess.IP), zap.String("transport", "ws"))

	select {
	case s.newConns <- sess:
	default:
		s.log.Warn("連線佇列已滿，拒絕新連線")
		sess.Close()
	}
}

func (s *WSServer) NewSessions() <-chan *Session {
	return s.newConns
}

// Shutdown stops the HTTP server. Established sessions are closed by their
// owners.
func (s *WSServer) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *WSServer) Addr() net.Addr {
	return s.listener.Addr()
}
