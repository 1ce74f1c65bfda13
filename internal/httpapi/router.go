// Package httpapi wires the HTTP surface: auth, profile, chats, messages and
// the live channel upgrade.
package httpapi

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"messenger/internal/apperr"
	"messenger/internal/auth"
	"messenger/internal/chat"
	"messenger/internal/websocket"
	"messenger/pkg/models"
)

// Notifier is implemented by *udpnotify.Server.
type Notifier interface {
	Broadcast(kind, message string) int
}

type Deps struct {
	DB           *sql.DB
	Chats        chat.IService
	Hub          *websocket.Hub
	Feed         chan<- models.MessageEvent // optional
	Notifier     Notifier                   // optional
	Secret       []byte
	TokenTTL     time.Duration
	SecureCookie bool
	StaticDir    string
	AdminIDs     []int64 // users allowed to call /admin/notify
	WS           websocket.Options
	Log          *slog.Logger
}

type api struct {
	Deps
}

func NewRouter(d Deps) *gin.Engine {
	a := &api{Deps: d}
	if a.WS.Identify == nil {
		a.WS.Identify = a.identify
	}

	r := gin.Default()

	if d.StaticDir != "" {
		if _, err := os.Stat(d.StaticDir); err == nil {
			r.Static("/ui", d.StaticDir)
		} else {
			d.Log.Warn("static dir not found; skip serving UI", "dir", d.StaticDir)
		}
	}

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })

	// AUTH
	r.POST("/register", a.handleRegister)
	r.POST("/login", a.handleLogin)
	r.POST("/logout", a.handleLogout)

	// LIVE
	r.GET("/ws", websocket.HandleWebSocket(d.Hub, a.WS))

	// PROTECTED
	authed := r.Group("/")
	authed.Use(auth.RequireJWT(d.Secret))
	authed.GET("/user", a.handleGetProfile)
	authed.PUT("/user/profile", a.handleUpdateProfile)
	authed.GET("/searchUsers", a.handleSearchUsers)
	authed.GET("/chats", a.handleListChats)
	authed.GET("/messages/:chatId", a.handleListMessages)
	authed.POST("/message", a.handlePostMessage)
	authed.POST("/createChat", a.handleCreateChat)
	authed.POST("/admin/notify", a.handleNotify)

	return r
}

// identify reads the session token, if any, for live-session logging.
func (a *api) identify(r *http.Request) (int64, bool) {
	tok := auth.TokenFromRequest(r)
	if tok == "" {
		return 0, false
	}
	claims, err := auth.ParseJWT(a.Secret, tok)
	if err != nil {
		return 0, false
	}
	return claims.UserID, true
}

// writeError maps the error taxonomy to a status and a JSON body. Storage
// failures are logged and reported generically; auth failures carry no body
// except for bad credentials on login.
func (a *api) writeError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	switch apperr.KindOf(err) {
	case apperr.KindStorage:
		a.Log.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "err", err)
	case apperr.KindAuth:
		if !errors.Is(err, apperr.ErrInvalidCredentials) {
			c.AbortWithStatus(status)
			return
		}
	}
	c.AbortWithStatusJSON(status, gin.H{"error": apperr.PublicMessage(err)})
}
