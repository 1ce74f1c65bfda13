//go:generate go run go.uber.org/mock/mockgen -source=service.go -destination=../../mocks/mock_chat_service.go -package=mocks

package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"messenger/internal/apperr"
	"messenger/pkg/models"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// MessageLister is the read path for a chat's history. The unbounded
// ListMessages is the default; ListMessagesPage is the bounded variant.
type MessageLister interface {
	ListMessages(ctx context.Context, chatID int64) ([]models.Message, error)
	ListMessagesPage(ctx context.Context, chatID, beforeID int64, limit int) ([]models.Message, error)
}

// Store is everything the service needs from persistence. *Repo implements it.
type Store interface {
	MessageLister
	FindPrivateChat(ctx context.Context, a, b int64) (int64, bool, error)
	CreatePrivateChat(ctx context.Context, userID, friendID int64, name string) (int64, error)
	UserName(ctx context.Context, userID int64) (string, bool, error)
	ListChats(ctx context.Context, userID int64) ([]models.ChatSummary, error)
	InsertMessage(ctx context.Context, senderID, chatID int64, text string) (models.Message, error)
}

// IService is what the HTTP layer depends on.
type IService interface {
	FindOrCreatePrivateChat(ctx context.Context, userID, friendID int64) (int64, bool, error)
	ListChatsFor(ctx context.Context, userID int64) ([]models.ChatSummary, error)
	ListMessages(ctx context.Context, chatID int64) ([]models.Message, error)
	ListMessagesPage(ctx context.Context, chatID, beforeID int64, limit int) ([]models.Message, error)
	PostMessage(ctx context.Context, senderID, chatID int64, text string) (models.Message, error)
}

type Service struct {
	store    Store
	messages MessageLister
	log      *slog.Logger
}

func NewService(store Store, log *slog.Logger) *Service {
	return &Service{store: store, messages: store, log: log}
}

// WithMessageLister swaps the history read path without touching callers.
func (s *Service) WithMessageLister(l MessageLister) *Service {
	s.messages = l
	return s
}

// FindOrCreatePrivateChat returns the private chat between userID and
// friendID, creating it when missing. created reports whether this call made
// the chat. Both argument orders resolve to the same chat.
func (s *Service) FindOrCreatePrivateChat(ctx context.Context, userID, friendID int64) (int64, bool, error) {
	if userID == friendID {
		return 0, false, apperr.ErrSelfChat
	}

	id, ok, err := s.store.FindPrivateChat(ctx, userID, friendID)
	if err != nil {
		return 0, false, err
	}
	if ok {
		return id, false, nil
	}

	friendName, ok, err := s.store.UserName(ctx, friendID)
	if err != nil {
		return 0, false, err
	}
	if !ok {
		return 0, false, apperr.ErrFriendNotFound
	}

	id, err = s.store.CreatePrivateChat(ctx, userID, friendID, friendName)
	if err == nil {
		s.log.Info("private chat created", "chat_id", id, "user_id", userID, "friend_id", friendID)
		return id, true, nil
	}
	if apperr.KindOf(err) == apperr.KindNotFound {
		// friend bị xoá giữa lúc check và insert
		return 0, false, apperr.ErrFriendNotFound
	}
	if apperr.KindOf(err) != apperr.KindConflict {
		return 0, false, err
	}

	// Lost the race on pair_key: someone else created the chat in between.
	id, ok, ferr := s.store.FindPrivateChat(ctx, userID, friendID)
	if ferr != nil {
		return 0, false, ferr
	}
	if !ok {
		return 0, false, err
	}
	s.log.Debug("private chat creation raced, reusing winner", "chat_id", id)
	return id, false, nil
}

func (s *Service) ListChatsFor(ctx context.Context, userID int64) ([]models.ChatSummary, error) {
	return s.store.ListChats(ctx, userID)
}

func (s *Service) ListMessages(ctx context.Context, chatID int64) ([]models.Message, error) {
	if chatID <= 0 {
		return nil, apperr.Validation("chatId required")
	}
	return s.messages.ListMessages(ctx, chatID)
}

// ListMessagesPage clamps limit to [1, MaxPageSize]; zero means DefaultPageSize.
func (s *Service) ListMessagesPage(ctx context.Context, chatID, beforeID int64, limit int) ([]models.Message, error) {
	if chatID <= 0 {
		return nil, apperr.Validation("chatId required")
	}
	if beforeID < 0 {
		return nil, apperr.Validation("before must be positive")
	}
	switch {
	case limit <= 0:
		limit = DefaultPageSize
	case limit > MaxPageSize:
		limit = MaxPageSize
	}
	return s.messages.ListMessagesPage(ctx, chatID, beforeID, limit)
}

// PostMessage persists a message and returns it with the store-assigned id
// and timestamp. It does not notify live sessions; the caller does that after
// a successful return.
func (s *Service) PostMessage(ctx context.Context, senderID, chatID int64, text string) (models.Message, error) {
	if chatID <= 0 || strings.TrimSpace(text) == "" {
		return models.Message{}, apperr.Validation("chatId and text are required")
	}
	if senderID <= 0 {
		return models.Message{}, apperr.Auth("missing identity")
	}

	m, err := s.store.InsertMessage(ctx, senderID, chatID, text)
	if err != nil {
		var ae *apperr.Error
		if errors.As(err, &ae) && ae.Kind == apperr.KindStorage {
			s.log.Error("insert message failed", "chat_id", chatID, "sender_id", senderID, "err", err)
		}
		return models.Message{}, err
	}
	return m, nil
}
