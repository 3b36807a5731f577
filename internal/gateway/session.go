package gateway

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	// ErrSessionClosed is returned by Emit after the session has ended.
	ErrSessionClosed = errors.New("session closed")
	// ErrSendBufferFull is returned by Emit when the peer is not draining
	// its outbound queue. The event is dropped.
	ErrSendBufferFull = errors.New("send buffer full")
)

// Session is the per-connection record: the socket, its outbound queue and
// its lifecycle. The identity it serves lives in the presence registry.
type Session struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}

	closeOnce sync.Once
}

func newSession(id string, conn *websocket.Conn, buffer int) *Session {
	if buffer <= 0 {
		buffer = 1
	}
	return &Session{
		id:   id,
		conn: conn,
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Emit queues an event for the write pump. It never blocks.
func (s *Session) Emit(event string, payload any) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	b, err := encodeFrame(event, payload)
	if err != nil {
		return err
	}
	select {
	case s.send <- b:
		return nil
	case <-s.done:
		return ErrSessionClosed
	default:
		return ErrSendBufferFull
	}
}

// Close ends the session. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Done is closed when the session ends.
func (s *Session) Done() <-chan struct{} { return s.done }

// writePump owns all writes to the socket. It returns when the session is
// closed or a write fails, closing the socket on the way out.
func (s *Session) writePump(writeWait, pingPeriod time.Duration) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case msg := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.Close()
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}
		case <-s.done:
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}
