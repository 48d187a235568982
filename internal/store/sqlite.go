package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"chatsync/internal/models"
)

// SQLiteStore implements MessageStore and UserStore on a local SQLite
// file. Timestamps are stored as unix nanoseconds; rowid breaks ties.
type SQLiteStore struct {
	db  *sql.DB
	Now func() time.Time
}

// NewSQLiteStore opens (and creates if needed) the database at dbPath.
// If dbPath is empty, defaults to "./data/chatsync.db".
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/chatsync.db"
	}

	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	if dbPath == ":memory:" {
		// Every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLiteStore{db: db, Now: func() time.Time { return time.Now().UTC() }}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		full_name     TEXT NOT NULL,
		email         TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		profile_pic   TEXT NOT NULL DEFAULT '',
		created_at    INTEGER NOT NULL,
		updated_at    INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id          TEXT PRIMARY KEY,
		sender_id   TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		receiver_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		text        TEXT NOT NULL DEFAULT '',
		image       TEXT NOT NULL DEFAULT '',
		is_edited   INTEGER NOT NULL DEFAULT 0,
		reply_to    TEXT,
		created_at  INTEGER NOT NULL,
		updated_at  INTEGER NOT NULL,
		CHECK (sender_id <> receiver_id)
	);

	CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages(sender_id, receiver_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_messages_receiver ON messages(receiver_id, created_at);
	`)
	return err
}

// Close closes the database.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteMessage(row rowScanner) (*models.Message, error) {
	var m models.Message
	var replyTo sql.NullString
	var created, updated int64
	err := row.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Text, &m.Image,
		&m.IsEdited, &replyTo, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if replyTo.Valid {
		m.ReplyTo = &replyTo.String
	}
	m.CreatedAt = time.Unix(0, created).UTC()
	m.UpdatedAt = time.Unix(0, updated).UTC()
	return &m, nil
}

// Create inserts a new message.
func (s *SQLiteStore) Create(ctx context.Context, draft models.MessageDraft) (*models.Message, error) {
	now := s.Now().UnixNano()
	id := NewMessageID()

	var replyTo sql.NullString
	if draft.ReplyTo != nil {
		replyTo = sql.NullString{String: *draft.ReplyTo, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, sender_id, receiver_id, text, image, reply_to, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, id, draft.SenderID, draft.ReceiverID, draft.Text, draft.Image, replyTo, now, now)
	if err != nil {
		return nil, err
	}
	return s.FindByID(ctx, id)
}

// FindConversation returns the conversation between a and b.
func (s *SQLiteStore) FindConversation(ctx context.Context, a, b string) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE (sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)
		ORDER BY created_at ASC, rowid ASC
	`, a, b, b, a)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		m, err := scanSQLiteMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *m)
	}
	return messages, rows.Err()
}

// FindByID returns a message by id.
func (s *SQLiteStore) FindByID(ctx context.Context, id string) (*models.Message, error) {
	return scanSQLiteMessage(s.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = ?`, id))
}

// Update sets a message's text and marks it edited.
func (s *SQLiteStore) Update(ctx context.Context, id, text string) (*models.Message, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET text = ?, is_edited = 1, updated_at = ? WHERE id = ?`,
		text, s.Now().UnixNano(), id)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.FindByID(ctx, id)
}

// Delete removes a message.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// LastMessageTimes returns the newest message time per peer of userID.
func (s *SQLiteStore) LastMessageTimes(ctx context.Context, userID string) (map[string]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			CASE WHEN sender_id = ? THEN receiver_id ELSE sender_id END AS peer_id,
			MAX(created_at)
		FROM messages
		WHERE sender_id = ? OR receiver_id = ?
		GROUP BY peer_id
	`, userID, userID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]time.Time)
	for rows.Next() {
		var peer string
		var last int64
		if err := rows.Scan(&peer, &last); err != nil {
			return nil, err
		}
		out[peer] = time.Unix(0, last).UTC()
	}
	return out, rows.Err()
}

// Users returns the UserStore backed by the same database.
func (s *SQLiteStore) Users() UserStore {
	return sqliteUsers{s}
}

type sqliteUsers struct {
	s *SQLiteStore
}

func scanSQLiteUser(row rowScanner) (*models.User, error) {
	var u models.User
	var created, updated int64
	err := row.Scan(&u.ID, &u.FullName, &u.Email, &u.Password, &u.ProfilePic, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.CreatedAt = time.Unix(0, created).UTC()
	u.UpdatedAt = time.Unix(0, updated).UTC()
	return &u, nil
}

func (q sqliteUsers) Create(ctx context.Context, draft models.UserDraft) (*models.User, error) {
	id := uuid.New().String()
	now := q.s.Now().UnixNano()

	_, err := q.s.db.ExecContext(ctx, `
		INSERT INTO users (id, full_name, email, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, draft.FullName, strings.ToLower(strings.TrimSpace(draft.Email)), draft.PasswordHash, now, now)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return q.FindByID(ctx, id)
}

func (q sqliteUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	return scanSQLiteUser(q.s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

func (q sqliteUsers) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanSQLiteUser(q.s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, strings.ToLower(strings.TrimSpace(email))))
}

func (q sqliteUsers) ListExcept(ctx context.Context, id string) ([]models.User, error) {
	rows, err := q.s.db.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id <> ?
		ORDER BY full_name, id
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		u, err := scanSQLiteUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (q sqliteUsers) UpdateProfilePic(ctx context.Context, id, url string) (*models.User, error) {
	res, err := q.s.db.ExecContext(ctx,
		`UPDATE users SET profile_pic = ?, updated_at = ? WHERE id = ?`, url, q.s.Now().UnixNano(), id)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return q.FindByID(ctx, id)
}
