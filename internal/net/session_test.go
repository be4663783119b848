package net

import (
	"bytes"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap/zaptest"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, []byte{0x82, 1, 2, 3}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if buf.Len() != 6 || buf.Bytes()[0] != 6 {
		t.Fatalf("frame = %v", buf.Bytes())
	}
	got, err := ReadFrame(&buf)
	if err != nil || !bytes.Equal(got, []byte{0x82, 1, 2, 3}) {
		t.Fatalf("read = %v, %v", got, err)
	}
	if err := WriteFrame(&buf, nil); err == nil {
		t.Fatalf("empty frame accepted")
	}
	if _, err := ReadFrame(bytes.NewReader([]byte{2, 0})); err == nil {
		t.Fatalf("zero-length frame accepted")
	}
}

// eventually polls cond for up to a second.
func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSessionOverPipe(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	s := NewSession(NewTCPConn(server), 7, SessionOptions{}, zaptest.NewLogger(t))
	s.Start()
	defer s.Close()

	go func() {
		_ = WriteFrame(client, []byte{0x01, 9})
		_ = WriteFrame(client, []byte{0x02})
	}()
	var got [][]byte
	eventually(t, func() bool {
		got = append(got, s.Receive(8)...)
		return len(got) == 2
	})
	if got[0][0] != 0x01 || got[1][0] != 0x02 {
		t.Fatalf("received %v", got)
	}

	if err := s.Send([]byte{0x81}); err != nil {
		t.Fatalf("send: %v", err)
	}
	out, err := ReadFrame(client)
	if err != nil || !bytes.Equal(out, []byte{0x81}) {
		t.Fatalf("client read %v, %v", out, err)
	}
}

func TestSendReportsBackpressureThenDrops(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	s := NewSession(NewTCPConn(server), 1, SessionOptions{OutQueue: 1, MaxSendFailures: 2}, zaptest.NewLogger(t))
	// Writer not started: the queue never drains.
	if err := s.Send([]byte{1}); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if err := s.Send([]byte{2}); !errors.Is(err, ErrOutQueueFull) {
		t.Fatalf("second send: %v", err)
	}
	if s.Closed() {
		t.Fatalf("closed after one refusal")
	}
	if err := s.Send([]byte{3}); !errors.Is(err, ErrOutQueueFull) {
		t.Fatalf("third send: %v", err)
	}
	if !s.Closed() {
		t.Fatalf("slow session not closed")
	}
	if err := s.Send([]byte{4}); !errors.Is(err, ErrClosed) {
		t.Fatalf("send after close: %v", err)
	}
}

func TestPeerCloseClosesSession(t *testing.T) {
	server, client := net.Pipe()
	s := NewSession(NewTCPConn(server), 1, SessionOptions{}, zaptest.NewLogger(t))
	s.Start()
	client.Close()
	eventually(t, s.Closed)
}

func TestWebSocketSession(t *testing.T) {
	var ids atomic.Uint64
	srv, err := NewWSServer("127.0.0.1:0", &ids, SessionOptions{}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go srv.Serve()
	defer srv.Shutdown(testContext(t))

	c, _, err := websocket.DefaultDialer.Dial("ws://"+srv.Addr().String()+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	var s *Session
	select {
	case s = <-srv.NewSessions():
	case <-time.After(time.Second):
		t.Fatalf("no session")
	}
	defer s.Close()
	if s.ID() != 1 {
		t.Fatalf("id = %d", s.ID())
	}

	if err := c.WriteMessage(websocket.BinaryMessage, []byte{0x01, 5}); err != nil {
		t.Fatalf("client write: %v", err)
	}
	var got [][]byte
	eventually(t, func() bool {
		got = append(got, s.Receive(4)...)
		return len(got) == 1
	})
	if !bytes.Equal(got[0], []byte{0x01, 5}) {
		t.Fatalf("received %v", got[0])
	}

	if err := s.Send([]byte{0x81, 5}); err != nil {
		t.Fatalf("send: %v", err)
	}
	mt, data, err := c.ReadMessage()
	if err != nil || mt != websocket.BinaryMessage || !bytes.Equal(data, []byte{0x81, 5}) {
		t.Fatalf("client read %d %v %v", mt, data, err)
	}
}
