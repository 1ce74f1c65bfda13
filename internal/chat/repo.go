package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"messenger/internal/apperr"
	"messenger/pkg/database"
	"messenger/pkg/models"
)

// nowMillis is evaluated by SQLite so the timestamp is assigned inside the
// same statement that inserts the row.
const nowMillis = `CAST((julianday('now') - 2440587.5) * 86400000 AS INTEGER)`

// Repo is the persistence side for chats, participants and messages.
type Repo struct {
	db *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{db: db}
}

// PairKey is the order-independent key stored on private chats.
func PairKey(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}

// FindPrivateChat returns the private chat shared by a and b, if any.
func (r *Repo) FindPrivateChat(ctx context.Context, a, b int64) (int64, bool, error) {
	var id int64
	err := r.db.QueryRowContext(ctx,
		`SELECT id FROM chats WHERE type = ? AND pair_key = ?`, models.ChatTypePrivate, PairKey(a, b)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, database.Translate("find private chat", err)
	}
	return id, true, nil
}

// CreatePrivateChat inserts the chat row and both participant rows in one
// transaction. A concurrent creation for the same pair fails on pair_key and
// surfaces as a KindConflict error.
func (r *Repo) CreatePrivateChat(ctx context.Context, userID, friendID int64, name string) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, database.Translate("begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO chats(type, name, pair_key) VALUES(?, ?, ?)`, models.ChatTypePrivate, name, PairKey(userID, friendID))
	if err != nil {
		return 0, database.Translate("insert chat", err)
	}
	chatID, err := res.LastInsertId()
	if err != nil {
		return 0, database.Translate("chat id", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO chat_participants(chat_id, user_id) VALUES (?, ?), (?, ?)`,
		chatID, userID, chatID, friendID); err != nil {
		return 0, database.Translate("insert participants", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, database.Translate("commit chat", err)
	}
	return chatID, nil
}

func (r *Repo) UserName(ctx context.Context, userID int64) (string, bool, error) {
	var name string
	err := r.db.QueryRowContext(ctx, `SELECT name FROM users WHERE id = ?`, userID).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, database.Translate("select user name", err)
	}
	return name, true, nil
}

// ListChats returns every chat userID takes part in together with its latest
// message. Chats without messages come last.
func (r *Repo) ListChats(ctx context.Context, userID int64) ([]models.ChatSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.id, c.type, c.name, m.text, m.timestamp
		FROM chat_participants cp
		JOIN chats c ON c.id = cp.chat_id
		LEFT JOIN messages m ON m.id = (
			SELECT id FROM messages
			WHERE chat_id = c.id
			ORDER BY timestamp DESC, id DESC
			LIMIT 1
		)
		WHERE cp.user_id = ?
		ORDER BY m.timestamp DESC, m.id DESC, c.id DESC`, userID)
	if err != nil {
		return nil, database.Translate("list chats", err)
	}
	defer rows.Close()

	res := []models.ChatSummary{}
	for rows.Next() {
		var (
			s    models.ChatSummary
			text sql.NullString
			ts   sql.NullInt64
		)
		if err := rows.Scan(&s.ID, &s.Type, &s.Name, &text, &ts); err != nil {
			return nil, database.Translate("scan chat", err)
		}
		if text.Valid {
			s.LastMessage = &text.String
		}
		if ts.Valid {
			t := time.UnixMilli(ts.Int64).UTC()
			s.LastMessageAt = &t
		}
		res = append(res, s)
	}
	if err := rows.Err(); err != nil {
		return nil, database.Translate("list chats", err)
	}
	return res, nil
}

// ListMessages returns the whole history of a chat, oldest first.
func (r *Repo) ListMessages(ctx context.Context, chatID int64) ([]models.Message, error) {
	return r.queryMessages(ctx, `
		SELECT m.id, m.chat_id, m.sender_id, u.name, m.text, m.timestamp
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.chat_id = ?
		ORDER BY m.timestamp ASC, m.id ASC`, chatID)
}

// ListMessagesPage returns up to limit messages older than beforeID (all
// messages when beforeID is 0), oldest first.
func (r *Repo) ListMessagesPage(ctx context.Context, chatID, beforeID int64, limit int) ([]models.Message, error) {
	msgs, err := r.queryMessages(ctx, `
		SELECT m.id, m.chat_id, m.sender_id, u.name, m.text, m.timestamp
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.chat_id = ? AND (? = 0 OR m.id < ?)
		ORDER BY m.timestamp DESC, m.id DESC
		LIMIT ?`, chatID, beforeID, beforeID, limit)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (r *Repo) queryMessages(ctx context.Context, q string, args ...any) ([]models.Message, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, database.Translate("list messages", err)
	}
	defer rows.Close()

	res := []models.Message{}
	for rows.Next() {
		var m models.Message
		var ts int64
		if err := rows.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.SenderName, &m.Text, &ts); err != nil {
			return nil, database.Translate("scan message", err)
		}
		m.Timestamp = time.UnixMilli(ts).UTC()
		res = append(res, m)
	}
	if err := rows.Err(); err != nil {
		return nil, database.Translate("list messages", err)
	}
	return res, nil
}

// InsertMessage stores a message and returns the id and timestamp SQLite
// assigned. The timestamp never goes below the newest one already in the chat.
// Membership of the sender is checked inside the same transaction.
func (r *Repo) InsertMessage(ctx context.Context, senderID, chatID int64, text string) (models.Message, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Message{}, database.Translate("begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	var chatExists, member bool
	err = tx.QueryRowContext(ctx, `
		SELECT
			EXISTS(SELECT 1 FROM chats WHERE id = ?),
			EXISTS(SELECT 1 FROM chat_participants WHERE chat_id = ? AND user_id = ?)`,
		chatID, chatID, senderID).Scan(&chatExists, &member)
	if err != nil {
		return models.Message{}, database.Translate("check participant", err)
	}
	if !chatExists {
		return models.Message{}, apperr.ErrChatNotFound
	}
	if !member {
		return models.Message{}, apperr.ErrNotParticipant
	}

	m := models.Message{ChatID: chatID, SenderID: senderID, Text: text}
	var ts int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO messages(sender_id, chat_id, text, timestamp)
		VALUES (?, ?, ?, MAX(`+nowMillis+`, COALESCE((SELECT MAX(timestamp) FROM messages WHERE chat_id = ?), 0)))
		RETURNING id, timestamp`,
		senderID, chatID, text, chatID).Scan(&m.ID, &ts)
	if err != nil {
		return models.Message{}, database.Translate("insert message", err)
	}

	if err := tx.Commit(); err != nil {
		return models.Message{}, database.Translate("commit message", err)
	}
	m.Timestamp = time.UnixMilli(ts).UTC()
	return m, nil
}
