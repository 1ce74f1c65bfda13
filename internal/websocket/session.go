package websocket

import (
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

// Session is one live connection. Its send channel is owned by the hub: the
// hub is the only one that closes it, exactly once, when it drops the session.
type Session struct {
	ID     string
	Addr   string
	UserID int64 // 0 khi không có token; chỉ để log

	conn  *websocket.Conn
	send  chan []byte
	state atomic.Int32
}

// NewSession creates a session in the Connecting state. conn may be nil for
// sessions that are fed and drained directly (tests, in-process consumers).
func NewSession(conn *websocket.Conn, addr string, buffer int) *Session {
	if buffer <= 0 {
		buffer = 256
	}
	return &Session{
		ID:   uuid.NewString(),
		Addr: addr,
		conn: conn,
		send: make(chan []byte, buffer),
	}
}

// Send is the outbound queue. It is closed when the hub drops the session.
func (s *Session) Send() <-chan []byte {
	return s.send
}

func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}
