package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"supportbridge/internal/domain"
)

type ThreadRepo struct {
	db *sql.DB
}

func NewThreadRepo(db *sql.DB) *ThreadRepo {
	return &ThreadRepo{db: db}
}

var _ domain.ThreadRepository = (*ThreadRepo)(nil)

const threadColumns = `id, user_id, title, last_message_sent_id, last_message_read_id`

func (r *ThreadRepo) Create(ctx context.Context, t *domain.Thread) (*domain.Thread, error) {
	query := `
		INSERT INTO threads (` + threadColumns + `)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		t.ID.String(),
		t.UserID.String(),
		t.Title,
		t.LastMessageSentID.String(),
		t.LastMessageReadID.String(),
	)
	if err != nil {
		if isConstraintErr(err) {
			return nil, fmt.Errorf("insert thread %s: %w", t.ID, domain.ErrConflict)
		}
		return nil, fmt.Errorf("insert thread: %w", err)
	}
	return t, nil
}

func (r *ThreadRepo) Get(ctx context.Context, id domain.ThreadID) (*domain.Thread, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+threadColumns+` FROM threads WHERE id = ?
	`, id.String())
	t, err := scanThread(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("thread %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get thread: %w", err)
	}
	return t, nil
}

func (r *ThreadRepo) Update(ctx context.Context, id domain.ThreadID, transform func(domain.Thread) domain.Thread) (*domain.Thread, error) {
	current, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	next := transform(*current)
	// Owning user is immutable after creation.
	next.ID = current.ID
	next.UserID = current.UserID

	_, err = r.db.ExecContext(ctx, `
		UPDATE threads
		SET title = ?, last_message_sent_id = ?, last_message_read_id = ?
		WHERE id = ?
	`,
		next.Title,
		next.LastMessageSentID.String(),
		next.LastMessageReadID.String(),
		id.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("update thread: %w", err)
	}
	return &next, nil
}

func (r *ThreadRepo) Has(ctx context.Context, id domain.ThreadID) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM threads WHERE id = ?
	`, id.String()).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("has thread: %w", err)
	}
	return n > 0, nil
}

func (r *ThreadRepo) ListForUser(ctx context.Context, userID domain.UserID) ([]*domain.Thread, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+threadColumns+` FROM threads WHERE user_id = ?
	`, userID.String())
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	defer rows.Close()

	var res []*domain.Thread
	for rows.Next() {
		t, err := scanThread(rows)
		if err != nil {
			return nil, fmt.Errorf("scan thread: %w", err)
		}
		res = append(res, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	return res, nil
}

func scanThread(row rowScanner) (*domain.Thread, error) {
	var (
		t                      domain.Thread
		id, userID, sent, read string
	)
	if err := row.Scan(&id, &userID, &t.Title, &sent, &read); err != nil {
		return nil, err
	}
	t.ID = domain.NewThreadID(id)
	t.UserID = domain.NewUserID(userID)
	t.LastMessageSentID = domain.NewMessageID(sent)
	t.LastMessageReadID = domain.NewMessageID(read)
	return &t, nil
}
