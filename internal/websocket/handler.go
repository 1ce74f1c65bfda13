package websocket

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

type Options struct {
	SendBuffer     int
	MaxMessageSize int64
	// Identify resolves the caller for logging. The hub does not use it to
	// decide who receives what.
	Identify func(r *http.Request) (int64, bool)
}

// upgrade http cho websocket
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type client struct {
	hub     *Hub
	session *Session
	conn    *websocket.Conn
	log     *slog.Logger
	maxSize int64
}

func HandleWebSocket(hub *Hub, opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			hub.log.Warn("websocket upgrade failed", "err", err)
			return
		}

		s := NewSession(conn, c.Request.RemoteAddr, opts.SendBuffer)
		if opts.Identify != nil {
			if uid, ok := opts.Identify(c.Request); ok {
				s.UserID = uid
			}
		}

		if !hub.join(s, 2) {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			_ = conn.Close()
			return
		}

		cl := &client{hub: hub, session: s, conn: conn, log: hub.log, maxSize: opts.MaxMessageSize}
		hub.goPump(cl.writePump)
		hub.goPump(cl.readPump)
	}
}

// readPump relays every inbound frame, unchanged, to the other sessions.
func (c *client) readPump() {
	defer func() {
		c.hub.Unregister(c.session)
		_ = c.conn.Close()
	}()

	if c.maxSize > 0 {
		c.conn.SetReadLimit(c.maxSize)
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.log.Warn("websocket read error", "session", c.session.ID, "err", err)
			}
			return
		}
		c.hub.Broadcast(c.session, payload)
	}
}

// writePump drains the session queue and keeps the connection alive with
// pings. The hub closing the queue ends the pump with a close frame.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.session.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.Debug("websocket write failed", "session", c.session.ID, "err", err)
				c.hub.Unregister(c.session)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.Unregister(c.session)
				return
			}
		}
	}
}
