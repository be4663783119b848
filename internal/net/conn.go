package net

import (
	"bufio"
	"fmt"
	"net"
	"time"

	"github.com/gorilla/websocket"
)

// FrameConn moves whole packets over a transport. Reads happen on the
// session's reader goroutine and writes on its writer goroutine.
type FrameConn interface {
	ReadFrame() ([]byte, error)
	WriteFrame(data []byte, deadline time.Time) error
	RemoteAddr() string
	Close() error
}

// tcpConn frames packets with the 2-byte length header.
type tcpConn struct {
	c net.Conn
	r *bufio.Reader
}

func NewTCPConn(c net.Conn) FrameConn {
	return &tcpConn{c: c, r: bufio.NewReaderSize(c, 4096)}
}

func (t *tcpConn) ReadFrame() ([]byte, error) { return ReadFrame(t.r) }

func (t *tcpConn) WriteFrame(data []byte, deadline time.Time) error {
	if err := t.c.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	return WriteFrame(t.c, data)
}

func (t *tcpConn) RemoteAddr() string { return t.c.RemoteAddr().String() }
func (t *tcpConn) Close() error       { return t.c.Close() }

// wsConn carries one packet per binary WebSocket message.
type wsConn struct {
	c    *websocket.Conn
	addr string
}

func NewWSConn(c *websocket.Conn, addr string) FrameConn {
	return &wsConn{c: c, addr: addr}
}

func (w *wsConn) ReadFrame() ([]byte, error) {
	for {
		mt, data, err := w.c.ReadMessage()
		if err != nil {
			return nil, err
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		if len(data) == 0 || len(data) > maxPayload {
			return nil, fmt.Errorf("invalid frame length: %d", len(data))
		}
		return data, nil
	}
}

func (w *wsConn) WriteFrame(data []byte, deadline time.Time) error {
	if err := w.c.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	return w.c.WriteMessage(websocket.BinaryMessage, data)
}

func (w *wsConn) RemoteAddr() string { return w.addr }
func (w *wsConn) Close() error       { return w.c.Close() }
