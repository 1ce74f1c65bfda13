// Package tcpfeed streams persisted messages to TCP subscribers as
// newline-delimited JSON, one MessageEvent per line.
package tcpfeed

import (
	"bufio"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/samber/lo"

	"messenger/pkg/models"
)

// DefaultWriteTimeout bounds each write to a subscriber.
const DefaultWriteTimeout = 2 * time.Second

// Server nhận message events và broadcast cho mọi TCP client
type Server struct {
	addr string
	log  *slog.Logger

	// WriteTimeout drops a subscriber that cannot take a line in time.
	WriteTimeout time.Duration

	mu      sync.Mutex
	clients map[net.Conn]struct{}
	ln      net.Listener

	events    <-chan models.MessageEvent
	quit      chan struct{}
	loopDone  chan struct{}
	closeOnce sync.Once
}

func New(addr string, events <-chan models.MessageEvent, log *slog.Logger) *Server {
	return &Server{
		addr:         addr,
		log:          log,
		WriteTimeout: DefaultWriteTimeout,
		clients:      make(map[net.Conn]struct{}),
		events:       events,
		quit:         make(chan struct{}),
		loopDone:     make(chan struct{}),
	}
}

// Listen binds the address. Addr is valid after it returns.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	s.log.Info("TCP feed listening", "addr", ln.Addr().String())
	return nil
}

func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve accepts subscribers until Close. It must follow a successful Listen.
func (s *Server) Serve() error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return errors.New("tcpfeed: Serve called before Listen")
	}

	go s.broadcastLoop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Warn("tcp accept", "err", err)
			continue
		}
		s.addClient(conn)
		s.log.Info("TCP feed client connected", "addr", conn.RemoteAddr().String())

		// đọc để phát hiện disconnect
		go s.readLoop(conn)
	}
}

// Close stops accepting, stops the broadcast loop and drops every subscriber.
func (s *Server) Close() error {
	s.closeOnce.Do(func() { close(s.quit) })

	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	if s.ln != nil {
		err = s.ln.Close()
	}
	for conn := range s.clients {
		_ = conn.Close()
		delete(s.clients, conn)
	}
	return err
}

func (s *Server) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) addClient(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[conn] = struct{}{}
}

func (s *Server) removeClient(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, conn)
	_ = conn.Close()
}

func (s *Server) readLoop(conn net.Conn) {
	// Client không cần gửi gì; read để biết khi nào client disconnect
	sc := bufio.NewScanner(conn)
	for sc.Scan() {
	}
	s.removeClient(conn)
	s.log.Info("TCP feed client disconnected", "addr", conn.RemoteAddr().String())
}

func (s *Server) broadcastLoop() {
	defer close(s.loopDone)
	for {
		select {
		case <-s.quit:
			return
		case evt, ok := <-s.events:
			if !ok {
				return
			}
			s.broadcast(evt)
		}
	}
}

// broadcast writes one line to every subscriber without holding mu, so a
// slow reader costs at most WriteTimeout and never blocks Close.
func (s *Server) broadcast(evt models.MessageEvent) {
	b, err := json.Marshal(evt)
	if err != nil {
		s.log.Error("tcp feed marshal", "err", err)
		return
	}
	b = append(b, '\n')

	s.mu.Lock()
	conns := lo.Keys(s.clients)
	s.mu.Unlock()

	for _, conn := range conns {
		_ = conn.SetWriteDeadline(time.Now().Add(s.WriteTimeout))
		if _, err := conn.Write(b); err != nil {
			// lỗi write (kể cả timeout) => remove client
			s.log.Warn("tcp feed client dropped", "addr", conn.RemoteAddr().String(), "err", err)
			s.removeClient(conn)
		}
	}
}

// Publish queues evt without blocking. It reports false when the queue is
// full and the event was dropped.
func Publish(ch chan<- models.MessageEvent, evt models.MessageEvent) bool {
	select {
	case ch <- evt:
		return true
	default:
		return false
	}
}
