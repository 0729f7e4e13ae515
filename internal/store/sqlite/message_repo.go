package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"supportbridge/internal/domain"
)

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

var _ domain.MessageRepository = (*MessageRepo)(nil)

const messageColumns = `id, thread_id, author_id, content, created_at, edited_at`

func (r *MessageRepo) Create(ctx context.Context, m *domain.Message) (*domain.Message, error) {
	query := `
		INSERT INTO messages (` + messageColumns + `)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		m.ID.String(),
		m.ThreadID.String(),
		userIDArg(m.AuthorID),
		m.Content,
		m.CreatedAt,
		m.EditedAt,
	)
	if err != nil {
		if isConstraintErr(err) {
			return nil, fmt.Errorf("insert message %s: %w", m.ID, domain.ErrConflict)
		}
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return m, nil
}

func (r *MessageRepo) Get(ctx context.Context, id domain.MessageID) (*domain.Message, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+` FROM messages WHERE id = ?
	`, id.String())
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("message %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return m, nil
}

func (r *MessageRepo) Update(ctx context.Context, id domain.MessageID, transform func(domain.Message) domain.Message) (*domain.Message, error) {
	current, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	next := transform(*current)
	next.ID = current.ID
	next.ThreadID = current.ThreadID

	_, err = r.db.ExecContext(ctx, `
		UPDATE messages
		SET author_id = ?, content = ?, created_at = ?, edited_at = ?
		WHERE id = ?
	`,
		userIDArg(next.AuthorID),
		next.Content,
		next.CreatedAt,
		next.EditedAt,
		id.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("update message: %w", err)
	}
	return &next, nil
}

// ListForThread fetches the most recent rows descending so LIMIT picks the
// newest page, then flips them into ascending id order for reading.
func (r *MessageRepo) ListForThread(ctx context.Context, threadID domain.ThreadID, limit int, before *domain.MessageID) ([]*domain.Message, error) {
	query := `
		SELECT ` + messageColumns + ` FROM messages
		WHERE thread_id = ?
	`
	args := []any{threadID.String()}
	if before != nil {
		query += ` AND CAST(id AS INTEGER) < CAST(? AS INTEGER)`
		args = append(args, before.String())
	}
	query += `
		ORDER BY CAST(id AS INTEGER) DESC
		LIMIT ?
	`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var res []*domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		res = append(res, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	for i, j := 0, len(res)-1; i < j; i, j = i+1, j-1 {
		res[i], res[j] = res[j], res[i]
	}
	return res, nil
}

func scanMessage(row rowScanner) (*domain.Message, error) {
	var (
		m            domain.Message
		id, threadID string
		authorID     sql.NullString
	)
	if err := row.Scan(&id, &threadID, &authorID, &m.Content, &m.CreatedAt, &m.EditedAt); err != nil {
		return nil, err
	}
	m.ID = domain.NewMessageID(id)
	m.ThreadID = domain.NewThreadID(threadID)
	if authorID.Valid {
		a := domain.NewUserID(authorID.String)
		m.AuthorID = &a
	}
	return &m, nil
}

func userIDArg(id *domain.UserID) any {
	if id == nil {
		return nil
	}
	return id.String()
}
