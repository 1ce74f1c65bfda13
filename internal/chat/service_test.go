package chat

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"messenger/internal/apperr"
	"messenger/internal/logging"
	"messenger/mocks"
	"messenger/pkg/models"
)

func TestService_FindOrCreatePrivateChat(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	svc := NewService(NewRepo(db), logging.Discard())
	alice, bob := addUser(t, db, "alice", "Alice"), addUser(t, db, "bob", "Bob")

	t.Run("should create once and then return the same chat from either side", func(t *testing.T) {
		req := require.New(t)
		id, created, err := svc.FindOrCreatePrivateChat(ctx, alice, bob)
		req.NoError(err)
		req.True(created)

		again, created, err := svc.FindOrCreatePrivateChat(ctx, alice, bob)
		req.NoError(err)
		req.False(created)
		req.Equal(id, again)

		reverse, created, err := svc.FindOrCreatePrivateChat(ctx, bob, alice)
		req.NoError(err)
		req.False(created)
		req.Equal(id, reverse)

		req.Equal(1, countRows(t, db, "chats"))
		req.Equal(2, countRows(t, db, "chat_participants"))
	})

	t.Run("should refuse a chat with yourself", func(t *testing.T) {
		_, _, err := svc.FindOrCreatePrivateChat(ctx, alice, alice)
		require.ErrorIs(t, err, apperr.ErrSelfChat)
	})

	t.Run("should report an unknown friend", func(t *testing.T) {
		_, _, err := svc.FindOrCreatePrivateChat(ctx, alice, bob+1000)
		require.ErrorIs(t, err, apperr.ErrFriendNotFound)
	})

	t.Run("should name the chat after the friend", func(t *testing.T) {
		chats, err := svc.ListChatsFor(ctx, alice)
		require.NoError(t, err)
		require.Len(t, chats, 1)
		require.Equal(t, "Bob", chats[0].Name)
		require.Equal(t, models.ChatTypePrivate, chats[0].Type)
	})
}

func TestService_FindOrCreatePrivateChat_Concurrent(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	svc := NewService(NewRepo(db), logging.Discard())
	alice, bob := addUser(t, db, "alice", "Alice"), addUser(t, db, "bob", "Bob")

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ids     = map[int64]struct{}{}
		created int
		errs    []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := alice, bob
			if i%2 == 1 {
				a, b = bob, alice
			}
			id, c, err := svc.FindOrCreatePrivateChat(ctx, a, b)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			ids[id] = struct{}{}
			if c {
				created++
			}
		}(i)
	}
	wg.Wait()

	req := require.New(t)
	req.Empty(errs)
	req.Len(ids, 1)
	req.Equal(1, created)
	req.Equal(1, countRows(t, db, "chats"))
}

func TestService_FindOrCreatePrivateChat_LostRace(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := mocks.NewMockStore(ctrl)
	svc := NewService(store, logging.Discard())
	ctx := context.Background()

	gomock.InOrder(
		store.EXPECT().FindPrivateChat(ctx, int64(1), int64(2)).Return(int64(0), false, nil),
		store.EXPECT().UserName(ctx, int64(2)).Return("Bob", true, nil),
		store.EXPECT().CreatePrivateChat(ctx, int64(1), int64(2), "Bob").
			Return(int64(0), apperr.Conflict("already exists", errors.New("UNIQUE constraint failed"))),
		store.EXPECT().FindPrivateChat(ctx, int64(1), int64(2)).Return(int64(7), true, nil),
	)

	id, created, err := svc.FindOrCreatePrivateChat(ctx, 1, 2)
	req := require.New(t)
	req.NoError(err)
	req.False(created)
	req.Equal(int64(7), id)
}

func TestService_PostMessage(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	svc := NewService(NewRepo(db), logging.Discard())
	alice, bob := addUser(t, db, "alice", "Alice"), addUser(t, db, "bob", "Bob")
	chatID, _, err := svc.FindOrCreatePrivateChat(ctx, alice, bob)
	require.NoError(t, err)

	t.Run("posted messages come back in order", func(t *testing.T) {
		req := require.New(t)
		first, err := svc.PostMessage(ctx, alice, chatID, "ping")
		req.NoError(err)
		second, err := svc.PostMessage(ctx, bob, chatID, "pong")
		req.NoError(err)
		req.Greater(second.ID, first.ID)
		req.False(second.Timestamp.Before(first.Timestamp))

		msgs, err := svc.ListMessages(ctx, chatID)
		req.NoError(err)
		req.Len(msgs, 2)
		req.Equal("ping", msgs[0].Text)
		req.Equal("Bob", msgs[1].SenderName)
	})

	t.Run("empty or blank text inserts nothing", func(t *testing.T) {
		req := require.New(t)
		before := countRows(t, db, "messages")
		for _, text := range []string{"", "   ", "\n\t"} {
			_, err := svc.PostMessage(ctx, alice, chatID, text)
			req.Equal(apperr.KindValidation, apperr.KindOf(err))
		}
		req.Equal(before, countRows(t, db, "messages"))
	})

	t.Run("missing chat id or identity is rejected", func(t *testing.T) {
		_, err := svc.PostMessage(ctx, alice, 0, "hi")
		require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		_, err = svc.PostMessage(ctx, 0, chatID, "hi")
		require.Equal(t, apperr.KindAuth, apperr.KindOf(err))
	})
}

func TestService_ListMessagesPage_ClampsLimit(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	lister := mocks.NewMockMessageLister(ctrl)
	svc := NewService(mocks.NewMockStore(ctrl), logging.Discard()).WithMessageLister(lister)
	ctx := context.Background()

	lister.EXPECT().ListMessagesPage(ctx, int64(5), int64(0), DefaultPageSize).Return(nil, nil)
	lister.EXPECT().ListMessagesPage(ctx, int64(5), int64(9), MaxPageSize).Return([]models.Message{{ID: 8}}, nil)

	req := require.New(t)
	_, err := svc.ListMessagesPage(ctx, 5, 0, 0)
	req.NoError(err)

	msgs, err := svc.ListMessagesPage(ctx, 5, 9, 10_000)
	req.NoError(err)
	req.Len(msgs, 1)

	_, err = svc.ListMessagesPage(ctx, 0, 0, 10)
	req.Equal(apperr.KindValidation, apperr.KindOf(err))
}
