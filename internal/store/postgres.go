package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"chatsync/internal/metrics"
	"chatsync/internal/models"
)

const messageColumns = `id, sender_id, receiver_id, text, image, is_edited, reply_to, created_at, updated_at`

const userColumns = `id, full_name, email, password_hash, profile_pic, created_at, updated_at`

// PostgresStore implements MessageStore and UserStore on PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an open pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func observe(op string, start time.Time) {
	metrics.StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func scanMessage(row pgx.Row) (*models.Message, error) {
	var m models.Message
	err := row.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Text, &m.Image,
		&m.IsEdited, &m.ReplyTo, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// Create inserts a new message.
func (s *PostgresStore) Create(ctx context.Context, draft models.MessageDraft) (*models.Message, error) {
	defer observe("create", time.Now())

	row := s.pool.QueryRow(ctx, `
		INSERT INTO messages (id, sender_id, receiver_id, text, image, reply_to)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+messageColumns,
		NewMessageID(), draft.SenderID, draft.ReceiverID, draft.Text, draft.Image, draft.ReplyTo)
	return scanMessage(row)
}

// FindConversation returns the conversation between a and b.
func (s *PostgresStore) FindConversation(ctx context.Context, a, b string) ([]models.Message, error) {
	defer observe("find_conversation", time.Now())

	rows, err := s.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)
		ORDER BY created_at ASC, seq ASC
	`, a, b)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *m)
	}
	return messages, rows.Err()
}

// FindByID returns a message by id.
func (s *PostgresStore) FindByID(ctx context.Context, id string) (*models.Message, error) {
	defer observe("find_by_id", time.Now())

	return scanMessage(s.pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id))
}

// Update sets a message's text and marks it edited.
func (s *PostgresStore) Update(ctx context.Context, id, text string) (*models.Message, error) {
	defer observe("update", time.Now())

	return scanMessage(s.pool.QueryRow(ctx, `
		UPDATE messages
		SET text = $2, is_edited = TRUE, updated_at = now()
		WHERE id = $1
		RETURNING `+messageColumns, id, text))
}

// Delete removes a message.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	defer observe("delete", time.Now())

	tag, err := s.pool.Exec(ctx, `DELETE FROM messages WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// LastMessageTimes returns the newest message time per peer of userID.
func (s *PostgresStore) LastMessageTimes(ctx context.Context, userID string) (map[string]time.Time, error) {
	defer observe("last_message_times", time.Now())

	rows, err := s.pool.Query(ctx, `
		SELECT
			CASE WHEN sender_id = $1 THEN receiver_id ELSE sender_id END AS peer_id,
			MAX(created_at)
		FROM messages
		WHERE sender_id = $1 OR receiver_id = $1
		GROUP BY peer_id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]time.Time)
	for rows.Next() {
		var peer string
		var last time.Time
		if err := rows.Scan(&peer, &last); err != nil {
			return nil, err
		}
		out[peer] = last
	}
	return out, rows.Err()
}

// Users returns the UserStore backed by the same pool.
func (s *PostgresStore) Users() UserStore {
	return postgresUsers{s.pool}
}

type postgresUsers struct {
	pool *pgxpool.Pool
}

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.FullName, &u.Email, &u.Password, &u.ProfilePic, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (p postgresUsers) Create(ctx context.Context, draft models.UserDraft) (*models.User, error) {
	u, err := scanUser(p.pool.QueryRow(ctx, `
		INSERT INTO users (id, full_name, email, password_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING `+userColumns,
		uuid.New().String(), draft.FullName, strings.ToLower(strings.TrimSpace(draft.Email)), draft.PasswordHash))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return u, nil
}

func (p postgresUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	return scanUser(p.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (p postgresUsers) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(p.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`,
		strings.ToLower(strings.TrimSpace(email))))
}

func (p postgresUsers) ListExcept(ctx context.Context, id string) ([]models.User, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id <> $1
		ORDER BY full_name, id
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (p postgresUsers) UpdateProfilePic(ctx context.Context, id, url string) (*models.User, error) {
	return scanUser(p.pool.QueryRow(ctx, `
		UPDATE users SET profile_pic = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+userColumns, id, url))
}
