// Package udpnotify sends operator notices to UDP subscribers. Subscribers
// send SUBSCRIBE / UNSUBSCRIBE datagrams; everything else is ignored.
package udpnotify

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"
)

const (
	TypeNotification = "notification"
	TypeLifecycle    = "lifecycle"
)

type Notification struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

type Server struct {
	addr string
	log  *slog.Logger

	mu      sync.Mutex
	clients map[string]*net.UDPAddr // key = ip:port

	conn *net.UDPConn
}

func New(addr string, log *slog.Logger) *Server {
	return &Server{
		addr:    addr,
		log:     log,
		clients: make(map[string]*net.UDPAddr),
	}
}

func (s *Server) Listen() error {
	udpAddr, err := net.ResolveUDPAddr("udp", s.addr)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.log.Info("UDP notify listening", "addr", conn.LocalAddr().String())
	return nil
}

func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Serve handles subscription datagrams until Close.
func (s *Server) Serve() error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return errors.New("udpnotify: Serve called before Listen")
	}

	buf := make([]byte, 2048)
	for {
		n, clientAddr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Warn("udp read", "err", err)
			continue
		}

		switch strings.ToUpper(strings.TrimSpace(string(buf[:n]))) {
		case "SUBSCRIBE":
			s.mu.Lock()
			s.clients[clientAddr.String()] = clientAddr
			s.mu.Unlock()
			s.log.Info("UDP subscribed", "addr", clientAddr.String(), "total", s.Count())
		case "UNSUBSCRIBE":
			s.mu.Lock()
			delete(s.clients, clientAddr.String())
			s.mu.Unlock()
			s.log.Info("UDP unsubscribed", "addr", clientAddr.String(), "total", s.Count())
		}
	}
}

func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *Server) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Broadcast sends a notice to every subscriber and returns how many sends
// succeeded.
func (s *Server) Broadcast(kind, message string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		s.log.Warn("udp conn not started yet")
		return 0
	}

	b, err := json.Marshal(Notification{
		Type:      kind,
		Message:   message,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		s.log.Error("udp marshal", "err", err)
		return 0
	}

	sent := 0
	for key, addr := range s.clients {
		if _, err := s.conn.WriteToUDP(b, addr); err != nil {
			s.log.Warn("udp send failed", "addr", key, "err", err)
			continue
		}
		sent++
	}
	return sent
}
