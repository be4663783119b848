package net

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/l1jgo/worldcore/internal/net/packet"
)

var (
	// ErrOutQueueFull is returned by Send when the writer has fallen behind.
	// The caller keeps its state and retries on the next tick.
	ErrOutQueueFull = errors.New("session out queue full")
	ErrClosed       = errors.New("session closed")
)

// SessionOptions bound a session's queues and rates.
type SessionOptions struct {
	InQueue      int
	OutQueue     int
	PktPerSec    int           // 0 = unlimited
	WriteTimeout time.Duration // per frame
	// MaxSendFailures is how many consecutive refused sends are tolerated
	// before the session is dropped as too slow. 0 = never.
	MaxSendFailures int
}

func (o SessionOptions) withDefaults() SessionOptions {
	if o.InQueue <= 0 {
		o.InQueue = 128
	}
	if o.OutQueue <= 0 {
		o.OutQueue = 256
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	return o
}

// Session is one observer connection. Network I/O runs in dedicated
// goroutines; the partition that owns the observer calls Send and Receive
// from its own goroutine once per tick.
type Session struct {
	id   uint64
	conn FrameConn
	opts SessionOptions

	state atomic.Int32 // packet.SessionState stored as int32

	InQueue  chan []byte // partition reads packets from here
	OutQueue chan []byte // writer goroutine reads from here

	IP string

	sendFailures int // owning partition only

	closeCh   chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool

	// Per-second packet rate limiter (readLoop goroutine only, no lock needed)
	pktCount   int
	pktResetAt int64

	log *zap.Logger
}

func NewSession(conn FrameConn, id uint64, opts SessionOptions, log *zap.Logger) *Session {
	opts = opts.withDefaults()
	s := &Session{
		id:       id,
		conn:     conn,
		opts:     opts,
		InQueue:  make(chan []byte, opts.InQueue),
		OutQueue: make(chan []byte, opts.OutQueue),
		IP:       conn.RemoteAddr(),
		closeCh:  make(chan struct{}),
		log:      log.With(zap.Uint64("session", id)),
	}
	s.state.Store(int32(packet.StateHandshake))
	return s
}

func (s *Session) ID() uint64 { return s.id }

func (s *Session) State() packet.SessionState {
	return packet.SessionState(s.state.Load())
}

func (s *Session) SetState(st packet.SessionState) {
	s.state.Store(int32(st))
}

// Start launches the reader and writer goroutines.
func (s *Session) Start() {
	go s.readLoop()
	go s.writeLoop()
}

// Send hands one packet to the writer goroutine without blocking. A full
// queue is reported as ErrOutQueueFull; after MaxSendFailures refusals in a
// row the session is closed as a slow consumer.
func (s *Session) Send(data []byte) error {
	if s.closed.Load() {
		return ErrClosed
	}
	select {
	case s.OutQueue <- data:
		s.sendFailures = 0
		return nil
	default:
	}
	s.sendFailures++
	if s.opts.MaxSendFailures > 0 && s.sendFailures >= s.opts.MaxSendFailures {
		s.log.Warn("輸出佇列持續滿載，斷開慢速連線", zap.Int("failures", s.sendFailures))
		s.Close()
	}
	return ErrOutQueueFull
}

// Receive returns up to max packets that arrived since the last call.
func (s *Session) Receive(max int) [][]byte {
	var out [][]byte
	for len(out) < max {
		select {
		case data := <-s.InQueue:
			out = append(out, data)
		default:
			return out
		}
	}
	return out
}

// Close gracefully shuts down the session.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.SetState(packet.StateDisconnecting)
		close(s.closeCh)
		s.conn.Close()
	})
}

func (s *Session) Closed() bool {
	return s.closed.Load()
}

// Done is closed when the session shuts down.
func (s *Session) Done() <-chan struct{} { return s.closeCh }

// readLoop runs in its own goroutine. It reads frames from the connection
// and pushes them onto InQueue for the owning partition to consume.
func (s *Session) readLoop() {
	defer s.Close()

	for {
		payload, err := s.conn.ReadFrame()
		if err != nil {
			if !s.closed.Load() {
				s.log.Debug("讀取錯誤", zap.Error(err))
			}
			return
		}

		if s.opts.PktPerSec > 0 {
			now := time.Now().Unix()
			if now != s.pktResetAt {
				s.pktCount = 0
				s.pktResetAt = now
			}
			s.pktCount++
			if s.pktCount > s.opts.PktPerSec {
				s.log.Warn("封包速率超限，斷開連線", zap.Int("pps", s.pktCount))
				return
			}
		}

		// Block until InQueue has space or the session closes. Dropping
		// MOVE packets would desync the server-side position.
		select {
		case s.InQueue <- payload:
		case <-s.closeCh:
			return
		}
	}
}

// writeLoop runs in its own goroutine and writes queued packets in order.
func (s *Session) writeLoop() {
	defer s.Close()

	for {
		select {
		case data := <-s.OutQueue:
			if !s.writeOnePacket(data) {
				return
			}
		case <-s.closeCh:
			return
		}
	}
}

func (s *Session) writeOnePacket(data []byte) bool {
	if len(data) > 0 {
		s.log.Debug("TX",
			zap.String("op", fmt.Sprintf("0x%02X", data[0])),
			zap.Int("len", len(data)),
		)
	}
	if err := s.conn.WriteFrame(data, time.Now().Add(s.opts.WriteTimeout)); err != nil {
		if !s.closed.Load() {
			s.log.Debug("寫入錯誤", zap.Error(err))
		}
		return false
	}
	return true
}
