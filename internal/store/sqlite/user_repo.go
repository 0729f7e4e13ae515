package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"supportbridge/internal/domain"
)

type UserRepo struct {
	db *sql.DB
}

func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{db: db}
}

var _ domain.UserRepository = (*UserRepo)(nil)

const userColumns = `id, external_account_id, email, name, avatar_url, current_thread_id`

func (r *UserRepo) Create(ctx context.Context, u *domain.User) (*domain.User, error) {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		u.ID.String(),
		u.ExternalAccountID,
		u.Email,
		u.Name,
		u.AvatarURL,
		threadIDArg(u.CurrentThreadID),
	)
	if err != nil {
		if isConstraintErr(err) {
			return nil, fmt.Errorf("insert user %s: %w", u.ID, domain.ErrConflict)
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

func (r *UserRepo) Get(ctx context.Context, id domain.UserID) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE id = ?
	`, id.String())
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (r *UserRepo) GetByExternalID(ctx context.Context, externalAccountID string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE external_account_id = ?
	`, externalAccountID)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by external id: %w", err)
	}
	return u, nil
}

func (r *UserRepo) Update(ctx context.Context, id domain.UserID, transform func(domain.User) domain.User) (*domain.User, error) {
	current, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	next := transform(*current)
	next.ID = current.ID

	_, err = r.db.ExecContext(ctx, `
		UPDATE users
		SET external_account_id = ?, email = ?, name = ?, avatar_url = ?, current_thread_id = ?
		WHERE id = ?
	`,
		next.ExternalAccountID,
		next.Email,
		next.Name,
		next.AvatarURL,
		threadIDArg(next.CurrentThreadID),
		id.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	return &next, nil
}

func (r *UserRepo) Has(ctx context.Context, id domain.UserID) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM users WHERE id = ?
	`, id.String()).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("has user: %w", err)
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		u        domain.User
		id       string
		threadID sql.NullString
	)
	if err := row.Scan(
		&id,
		&u.ExternalAccountID,
		&u.Email,
		&u.Name,
		&u.AvatarURL,
		&threadID,
	); err != nil {
		return nil, err
	}
	u.ID = domain.NewUserID(id)
	if threadID.Valid {
		t := domain.NewThreadID(threadID.String)
		u.CurrentThreadID = &t
	}
	return &u, nil
}

// threadIDArg converts an optional ThreadID into a driver-friendly value.
func threadIDArg(id *domain.ThreadID) any {
	if id == nil {
		return nil
	}
	return id.String()
}
