package websocket

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"
)

// joinRequest asks the run loop to add s. pumps is how many connection
// pumps the caller will start once ack is closed.
type joinRequest struct {
	s     *Session
	pumps int
	ack   chan struct{}
}

type envelope struct {
	origin  *Session
	payload []byte
	reply   chan int
}

// Hub keeps the set of open sessions and relays payloads between them. Only
// the Run goroutine mutates the set; everyone else goes through channels.
type Hub struct {
	log *slog.Logger

	mu       sync.RWMutex
	sessions map[*Session]struct{}

	register   chan joinRequest
	unregister chan *Session
	broadcast  chan envelope

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	pumps    sync.WaitGroup
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		log:        log,
		sessions:   make(map[*Session]struct{}),
		register:   make(chan joinRequest),
		unregister: make(chan *Session),
		broadcast:  make(chan envelope),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Run processes hub commands until ctx is cancelled or Shutdown is called,
// then closes every remaining session.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-h.stop:
			h.closeAll()
			return

		case req := <-h.register:
			s := req.s
			h.mu.Lock()
			h.sessions[s] = struct{}{}
			n := len(h.sessions)
			h.mu.Unlock()
			s.setState(StateOpen)
			// Pumps are counted here so Shutdown never races an Add against Wait.
			h.pumps.Add(req.pumps)
			close(req.ack)
			h.log.Info("live session opened", "session", s.ID, "addr", s.Addr, "user_id", s.UserID, "total", n)

		case s := <-h.unregister:
			if h.remove(s) {
				h.log.Info("live session closed", "session", s.ID, "addr", s.Addr, "total", h.Len())
			}

		case env := <-h.broadcast:
			env.reply <- h.relay(env.origin, env.payload)
		}
	}
}

// relay queues payload on every session except origin. Sessions whose queue
// is full are dropped; nothing is retried.
func (h *Hub) relay(origin *Session, payload []byte) int {
	h.mu.RLock()
	targets := lo.Filter(lo.Keys(h.sessions), func(s *Session, _ int) bool { return s != origin })
	h.mu.RUnlock()

	delivered := 0
	for _, s := range targets {
		select {
		case s.send <- payload:
			delivered++
		default:
			if h.remove(s) {
				h.log.Warn("live session send buffer full, dropped", "session", s.ID, "addr", s.Addr)
			}
		}
	}
	return delivered
}

// remove drops s from the set. It reports false when s was not registered,
// which makes repeated removal a no-op.
func (h *Hub) remove(s *Session) bool {
	h.mu.Lock()
	_, ok := h.sessions[s]
	if ok {
		delete(h.sessions, s)
	}
	h.mu.Unlock()
	if !ok {
		return false
	}
	s.setState(StateClosed)
	close(s.send)
	return true
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	all := lo.Keys(h.sessions)
	h.sessions = make(map[*Session]struct{})
	h.mu.Unlock()

	for _, s := range all {
		s.setState(StateClosed)
		close(s.send)
	}
	h.log.Info("hub closed live sessions", "count", len(all))
}

// Register adds s to the active set and marks it Open. When it returns true
// the session is already in the set. It returns false when the hub has
// already stopped.
func (h *Hub) Register(s *Session) bool {
	return h.join(s, 0)
}

func (h *Hub) join(s *Session, pumps int) bool {
	req := joinRequest{s: s, pumps: pumps, ack: make(chan struct{})}
	select {
	case h.register <- req:
	case <-h.done:
		return false
	}
	<-req.ack
	return true
}

// Unregister removes s. Calling it more than once, or after shutdown, is safe.
func (h *Hub) Unregister(s *Session) {
	select {
	case h.unregister <- s:
	case <-h.done:
	}
}

// Broadcast relays payload verbatim to every open session other than origin
// and returns how many sessions it was queued for. origin may be nil.
func (h *Hub) Broadcast(origin *Session, payload []byte) int {
	reply := make(chan int, 1)
	select {
	case h.broadcast <- envelope{origin: origin, payload: payload, reply: reply}:
	case <-h.done:
		return 0
	}
	return <-reply
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// goPump runs a connection pump that join already counted.
func (h *Hub) goPump(fn func()) {
	go func() {
		defer h.pumps.Done()
		fn()
	}()
}

// Shutdown stops Run, closes every session and waits for the connection
// pumps to exit, up to timeout.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.stopOnce.Do(func() { close(h.stop) })

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-h.done:
	case <-timer.C:
		return context.DeadlineExceeded
	}

	pumpsDone := make(chan struct{})
	go func() {
		h.pumps.Wait()
		close(pumpsDone)
	}()

	select {
	case <-pumpsDone:
		h.log.Info("hub shutdown completed")
		return nil
	case <-timer.C:
		h.log.Warn("hub shutdown timeout reached, some pumps may still be running")
		return context.DeadlineExceeded
	}
}
