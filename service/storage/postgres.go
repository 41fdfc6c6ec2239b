package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// PgStore is the pgx-backed relational adapter.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(ctx context.Context, databaseURL string) (*PgStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "connect postgres")
	}
	return &PgStore{pool: pool}, nil
}

func (s *PgStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PgStore) Close() { s.pool.Close() }

func (s *PgStore) InsertMessage(ctx context.Context, m *Message) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO messages (id, sender_id, receiver_id, content, type, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ID, m.SenderID, m.ReceiverID, m.Content, m.Type, m.CreatedAt)
	return errors.Wrap(err, "insert message")
}

func (s *PgStore) MarkConversationRead(ctx context.Context, readerID, senderID string, at time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE messages SET read_at = $1
		 WHERE receiver_id = $2 AND sender_id = $3 AND read_at IS NULL`,
		at, readerID, senderID)
	if err != nil {
		return 0, errors.Wrap(err, "mark conversation read")
	}
	return tag.RowsAffected(), nil
}

func (s *PgStore) InsertNotification(ctx context.Context, n *Notification) error {
	var from any
	if n.FromUserID != "" {
		from = n.FromUserID
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO notifications (id, recipient_id, title, message, type, payload, read, created_at, from_user_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		n.ID, n.RecipientID, n.Title, n.Message, n.Type, n.Payload, n.Read, n.CreatedAt, from)
	return errors.Wrap(err, "insert notification")
}

func (s *PgStore) MarkNotificationRead(ctx context.Context, recipientID, notificationID string) error {
	// Already-read or unknown ids are a no-op, not an error.
	_, err := s.pool.Exec(ctx,
		`UPDATE notifications SET read = TRUE
		 WHERE id = $1 AND recipient_id = $2 AND read = FALSE`,
		notificationID, recipientID)
	return errors.Wrap(err, "mark notification read")
}

func (s *PgStore) ListNotifications(ctx context.Context, recipientID string, q NotificationQuery) (*NotificationPage, error) {
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 20
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	where := `recipient_id = $1`
	if q.UnreadOnly {
		where += ` AND read = FALSE`
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, recipient_id, title, message, type, payload, read, created_at, from_user_id
		 FROM notifications WHERE `+where+`
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		recipientID, q.Limit, q.Offset)
	if err != nil {
		return nil, errors.Wrap(err, "list notifications")
	}
	defer rows.Close()

	page := &NotificationPage{Items: make([]Notification, 0, q.Limit)}
	for rows.Next() {
		var n Notification
		var from *string
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.Title, &n.Message, &n.Type,
			&n.Payload, &n.Read, &n.CreatedAt, &from); err != nil {
			return nil, errors.Wrap(err, "scan notification")
		}
		if from != nil {
			n.FromUserID = *from
		}
		page.Items = append(page.Items, n)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate notifications")
	}

	err = s.pool.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE read = FALSE)
		 FROM notifications WHERE recipient_id = $1`,
		recipientID).Scan(&page.Total, &page.UnreadCount)
	if err != nil {
		return nil, errors.Wrap(err, "count notifications")
	}
	return page, nil
}

func (s *PgStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return s.scanUser(s.pool.QueryRow(ctx,
		`SELECT id, email, name, type, password_hash FROM users WHERE email = $1`, email))
}

func (s *PgStore) GetUserByID(ctx context.Context, id string) (*User, error) {
	return s.scanUser(s.pool.QueryRow(ctx,
		`SELECT id, email, name, type, password_hash FROM users WHERE id = $1`, id))
}

func (s *PgStore) CreateUser(ctx context.Context, u *User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, email, name, type, password_hash) VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.Email, u.Name, u.Type, u.PasswordHash)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		// unique violation: two registrations raced past the pre-check
		return ErrDuplicate
	}
	return errors.Wrap(err, "create user")
}

// ErrNotFound reports a missing row to callers that care (auth does).
var ErrNotFound = errors.New("not found")

// ErrDuplicate reports a unique-key conflict on insert.
var ErrDuplicate = errors.New("duplicate row")

func (s *PgStore) scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Type, &u.PasswordHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "scan user")
	}
	return &u, nil
}
