// Package postgres provides PostgreSQL storage for users, conversations and
// messages.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"github.com/Aman-Thakur002/Bantr/pkg/store"
)

// Member roles stored in conversation_members.role.
const (
	roleAdmin     = "admin"
	roleModerator = "moderator"
)

// psq is the PostgreSQL statement builder with dollar placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var messageColumns = []string{
	"id", "conversation_id", "sender_id", "text", "attachments", "reply_to",
	"reactions", "edited", "edited_at", "deleted_for", "status", "created_at", "updated_at",
}

// Store implements store.Store using PostgreSQL.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// GetUser retrieves a user by ID.
func (s *Store) GetUser(ctx context.Context, id string) (*store.User, error) {
	query, args, err := psq.Select("id", "name", "email", "avatar_url", "status", "last_seen_at").
		From("users").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building user query: %w", err)
	}

	var (
		u        store.User
		email    sql.NullString
		avatar   sql.NullString
		lastSeen sql.NullTime
	)
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&u.ID, &u.Name, &email, &avatar, &u.Status, &lastSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	u.Email = email.String
	u.AvatarURL = avatar.String
	if lastSeen.Valid {
		u.LastSeenAt = &lastSeen.Time
	}
	return &u, nil
}

// UpdateStatus sets the user's presence status and last-seen time.
func (s *Store) UpdateStatus(ctx context.Context, id string, status store.Status, lastSeen time.Time) error {
	query, args, err := psq.Update("users").
		Set("status", string(status)).
		Set("last_seen_at", lastSeen).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building status update: %w", err)
	}
	return s.execOne(ctx, "updating user status", query, args...)
}

// UpdateLastSeen refreshes the user's last-seen time.
func (s *Store) UpdateLastSeen(ctx context.Context, id string, lastSeen time.Time) error {
	query, args, err := psq.Update("users").
		Set("last_seen_at", lastSeen).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building last seen update: %w", err)
	}
	return s.execOne(ctx, "updating user last seen", query, args...)
}

// GetConversation retrieves a conversation and its member roles.
func (s *Store) GetConversation(ctx context.Context, id string) (*store.Conversation, error) {
	query, args, err := psq.Select("id", "title", "is_group", "last_message_at", "created_at").
		From("conversations").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building conversation query: %w", err)
	}

	var (
		c       store.Conversation
		title   sql.NullString
		lastMsg sql.NullTime
	)
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&c.ID, &title, &c.IsGroup, &lastMsg, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}
	c.Title = title.String
	if lastMsg.Valid {
		c.LastMessageAt = &lastMsg.Time
	}

	if err := s.loadMembers(ctx, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) loadMembers(ctx context.Context, c *store.Conversation) error {
	query, args, err := psq.Select("user_id", "role").
		From("conversation_members").
		Where(sq.Eq{"conversation_id": c.ID}).
		OrderBy("joined_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("building member query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("querying members: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var userID, role string
		if err := rows.Scan(&userID, &role); err != nil {
			return fmt.Errorf("scanning member: %w", err)
		}
		c.Members = append(c.Members, userID)
		switch role {
		case roleAdmin:
			c.Admins = append(c.Admins, userID)
		case roleModerator:
			c.Moderators = append(c.Moderators, userID)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating member rows: %w", err)
	}
	return nil
}

// TouchLastMessage records the time of the newest message.
func (s *Store) TouchLastMessage(ctx context.Context, id string, at time.Time) error {
	query, args, err := psq.Update("conversations").
		Set("last_message_at", at).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building conversation touch: %w", err)
	}
	return s.execOne(ctx, "touching conversation", query, args...)
}

// CreateMessage inserts a message.
func (s *Store) CreateMessage(ctx context.Context, m *store.Message) error {
	reactions, err := json.Marshal(reactionsOrEmpty(m.Reactions))
	if err != nil {
		return fmt.Errorf("marshaling reactions: %w", err)
	}

	query, args, err := psq.Insert("messages").
		Columns(messageColumns...).
		Values(
			m.ID, m.ConversationID, m.SenderID, m.Text, pq.Array(m.Attachments), nullString(m.ReplyTo),
			reactions, m.Edited, m.EditedAt, pq.Array(m.DeletedFor), string(m.Status), m.CreatedAt, m.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("building message insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	return nil
}

// GetMessage retrieves a message with its read receipts.
func (s *Store) GetMessage(ctx context.Context, id string) (*store.Message, error) {
	query, args, err := psq.Select(messageColumns...).
		From("messages").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building message query: %w", err)
	}

	m, err := scanMessage(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := s.loadReads(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func scanMessage(row *sql.Row) (*store.Message, error) {
	var (
		m         store.Message
		replyTo   sql.NullString
		reactions []byte
		editedAt  sql.NullTime
		status    string
	)
	err := row.Scan(
		&m.ID, &m.ConversationID, &m.SenderID, &m.Text, pq.Array(&m.Attachments), &replyTo,
		&reactions, &m.Edited, &editedAt, pq.Array(&m.DeletedFor), &status, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning message: %w", err)
	}
	m.ReplyTo = replyTo.String
	m.Status = store.MessageStatus(status)
	if editedAt.Valid {
		m.EditedAt = &editedAt.Time
	}
	if len(reactions) > 0 {
		if err := json.Unmarshal(reactions, &m.Reactions); err != nil {
			return nil, fmt.Errorf("unmarshaling reactions: %w", err)
		}
	}
	return &m, nil
}

func (s *Store) loadReads(ctx context.Context, m *store.Message) error {
	query, args, err := psq.Select("user_id", "read_at").
		From("message_reads").
		Where(sq.Eq{"message_id": m.ID}).
		OrderBy("read_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("building read query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("querying reads: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var r store.ReadReceipt
		if err := rows.Scan(&r.UserID, &r.ReadAt); err != nil {
			return fmt.Errorf("scanning read: %w", err)
		}
		m.ReadBy = append(m.ReadBy, r)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating read rows: %w", err)
	}
	return nil
}

// SetText replaces the message text and marks it edited.
func (s *Store) SetText(ctx context.Context, id, text string, editedAt time.Time) error {
	query, args, err := psq.Update("messages").
		Set("text", text).
		Set("edited", true).
		Set("edited_at", editedAt).
		Set("updated_at", editedAt).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building text update: %w", err)
	}
	return s.execOne(ctx, "updating message text", query, args...)
}

// HideFor merges userIDs into deleted_for in a single statement, so
// concurrent deletions for different users both land.
func (s *Store) HideFor(ctx context.Context, id string, userIDs []string, at time.Time) error {
	query, args, err := psq.Update("messages").
		Set("deleted_for", sq.Expr("ARRAY(SELECT DISTINCT unnest(deleted_for || ?::text[]))", pq.Array(userIDs))).
		Set("updated_at", at).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building hide update: %w", err)
	}
	return s.execOne(ctx, "hiding message", query, args...)
}

// UpdateReactions locks the message row, applies fn and writes the result
// in one transaction.
func (s *Store) UpdateReactions(ctx context.Context, id string, at time.Time, fn store.ReactionFunc) (_ []store.Reaction, _ bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("beginning reaction transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	query, args, err := psq.Select("reactions").
		From("messages").
		Where(sq.Eq{"id": id}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return nil, false, fmt.Errorf("building reaction lock: %w", err)
	}

	var raw []byte
	if err = tx.QueryRowContext(ctx, query, args...).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, store.ErrNotFound
		}
		return nil, false, fmt.Errorf("locking reactions: %w", err)
	}
	var current []store.Reaction
	if len(raw) > 0 {
		if err = json.Unmarshal(raw, &current); err != nil {
			return nil, false, fmt.Errorf("unmarshaling reactions: %w", err)
		}
	}

	next, changed := fn(current)
	if !changed {
		if err = tx.Commit(); err != nil {
			return nil, false, fmt.Errorf("committing reactions: %w", err)
		}
		return current, false, nil
	}

	encoded, err := json.Marshal(reactionsOrEmpty(next))
	if err != nil {
		return nil, false, fmt.Errorf("marshaling reactions: %w", err)
	}
	query, args, err = psq.Update("messages").
		Set("reactions", encoded).
		Set("updated_at", at).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, false, fmt.Errorf("building reaction update: %w", err)
	}
	if _, err = tx.ExecContext(ctx, query, args...); err != nil {
		return nil, false, fmt.Errorf("saving reactions: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("committing reactions: %w", err)
	}
	return next, true, nil
}

// MarkRead inserts read receipts, skipping the reader's own messages and
// messages they already read.
func (s *Store) MarkRead(ctx context.Context, conversationID, readerID string, ids []string, at time.Time) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `
		INSERT INTO message_reads (message_id, user_id, read_at)
		SELECT id, $1, $2 FROM messages
		WHERE id = ANY($3) AND conversation_id = $4 AND sender_id <> $1
		ON CONFLICT (message_id, user_id) DO NOTHING
		RETURNING message_id
	`
	rows, err := s.db.QueryContext(ctx, query, readerID, at, pq.Array(ids), conversationID)
	if err != nil {
		return nil, fmt.Errorf("marking messages read: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var marked []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning marked id: %w", err)
		}
		marked = append(marked, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating marked rows: %w", err)
	}
	return marked, nil
}

// execOne runs an update and maps zero affected rows to store.ErrNotFound.
func (s *Store) execOne(ctx context.Context, op, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func reactionsOrEmpty(r []store.Reaction) []store.Reaction {
	if r == nil {
		return []store.Reaction{}
	}
	return r
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Verify interface compliance.
var _ store.Store = (*Store)(nil)
