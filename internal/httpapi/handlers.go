package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"messenger/internal/apperr"
	"messenger/internal/auth"
	"messenger/internal/tcpfeed"
	"messenger/internal/udpnotify"
	"messenger/internal/user"
	"messenger/pkg/models"
)

func (a *api) handleRegister(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Name     string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	id, err := user.CreateUser(c.Request.Context(), a.DB, user.Registration{
		Username: req.Username, Password: req.Password, Name: req.Name,
	})
	if err != nil {
		a.writeError(c, err)
		return
	}

	a.Log.Info("user registered", "user_id", id)
	c.JSON(http.StatusCreated, gin.H{"message": "user registered", "id": id})
}

func (a *api) handleLogin(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password required"})
		return
	}

	u, err := user.VerifyLogin(c.Request.Context(), a.DB, req.Username, req.Password)
	if err != nil {
		a.writeError(c, err)
		return
	}

	token, err := auth.SignJWT(a.Secret, u.ID, u.Username, a.TokenTTL)
	if err != nil {
		a.writeError(c, apperr.Storage("sign token", err))
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(auth.CookieName, token, int(a.TokenTTL/time.Second), "/", "", a.SecureCookie, true)
	c.JSON(http.StatusOK, gin.H{"message": "login successful", "token": token})
}

func (a *api) handleLogout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(auth.CookieName, "", -1, "/", "", a.SecureCookie, true)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

func (a *api) handleGetProfile(c *gin.Context) {
	u, err := user.GetByID(c.Request.Context(), a.DB, auth.UserID(c))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.Profile{ID: u.ID, Name: u.Name, Username: u.Username, Avatar: u.Avatar})
}

func (a *api) handleUpdateProfile(c *gin.Context) {
	var req struct {
		Name   *string `json:"name"`
		Avatar *string `json:"avatar"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if err := user.UpdateProfile(c.Request.Context(), a.DB, auth.UserID(c), req.Name, req.Avatar); err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "profile updated"})
}

func (a *api) handleSearchUsers(c *gin.Context) {
	res, err := user.Search(c.Request.Context(), a.DB, c.Query("q"), auth.UserID(c))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (a *api) handleListChats(c *gin.Context) {
	chats, err := a.Chats.ListChatsFor(c.Request.Context(), auth.UserID(c))
	if err != nil {
		a.writeError(c, err)
		return
	}
	if chats == nil {
		chats = []models.ChatSummary{}
	}
	c.JSON(http.StatusOK, chats)
}

// handleListMessages returns the whole history unless before or limit is
// given, in which case it returns one page ending just before the given id.
func (a *api) handleListMessages(c *gin.Context) {
	chatID, err := strconv.ParseInt(c.Param("chatId"), 10, 64)
	if err != nil || chatID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chatId"})
		return
	}

	var msgs []models.Message
	before, hasBefore := c.GetQuery("before")
	limit, hasLimit := c.GetQuery("limit")
	if hasBefore || hasLimit {
		beforeID := parseInt64(before, 0)
		n := int(parseInt64(limit, 0))
		msgs, err = a.Chats.ListMessagesPage(c.Request.Context(), chatID, beforeID, n)
	} else {
		msgs, err = a.Chats.ListMessages(c.Request.Context(), chatID)
	}
	if err != nil {
		a.writeError(c, err)
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	c.JSON(http.StatusOK, msgs)
}

func (a *api) handlePostMessage(c *gin.Context) {
	var req struct {
		ChatID int64  `json:"chatId"`
		Text   string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	m, err := a.Chats.PostMessage(c.Request.Context(), auth.UserID(c), req.ChatID, req.Text)
	if err != nil {
		a.writeError(c, err)
		return
	}

	if a.Feed != nil {
		evt := models.MessageEvent{
			ID: m.ID, ChatID: m.ChatID, SenderID: m.SenderID, Text: m.Text, Timestamp: m.Timestamp.UnixMilli(),
		}
		if !tcpfeed.Publish(a.Feed, evt) {
			a.Log.Warn("message feed full, event dropped", "message_id", m.ID)
		}
	}

	c.JSON(http.StatusCreated, gin.H{"id": m.ID, "message": "message sent", "timestamp": m.Timestamp})
}

func (a *api) handleCreateChat(c *gin.Context) {
	var req struct {
		FriendID json.Number `json:"friendId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	friendID, err := req.FriendID.Int64()
	if err != nil || friendID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "friendId required"})
		return
	}

	chatID, created, err := a.Chats.FindOrCreatePrivateChat(c.Request.Context(), auth.UserID(c), friendID)
	if err != nil {
		a.writeError(c, err)
		return
	}
	if created {
		c.JSON(http.StatusCreated, gin.H{"message": "chat created", "chatId": chatID})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "chat exists", "chatId": chatID})
}

func (a *api) handleNotify(c *gin.Context) {
	if !lo.Contains(a.AdminIDs, auth.UserID(c)) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin only"})
		return
	}

	var req struct {
		Message string `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message required"})
		return
	}
	sent := 0
	if a.Notifier != nil {
		sent = a.Notifier.Broadcast(udpnotify.TypeNotification, req.Message)
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "sent": sent})
}

func parseInt64(s string, def int64) int64 {
	if s == "" {
		return def
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return def
	}
	return v
}
