package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"supportbridge/internal/domain"
)

type ReactionRepo struct {
	db *sql.DB
}

func NewReactionRepo(db *sql.DB) *ReactionRepo {
	return &ReactionRepo{db: db}
}

var _ domain.ReactionRepository = (*ReactionRepo)(nil)

func (r *ReactionRepo) Create(ctx context.Context, rc *domain.Reaction) (*domain.Reaction, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO reactions (message_id, symbol) VALUES (?, ?)
	`, rc.MessageID.String(), rc.Symbol)
	if err != nil {
		if isConstraintErr(err) {
			return nil, fmt.Errorf("insert reaction %s %s: %w", rc.MessageID, rc.Symbol, domain.ErrConflict)
		}
		return nil, fmt.Errorf("insert reaction: %w", err)
	}
	return rc, nil
}

func (r *ReactionRepo) Delete(ctx context.Context, rc *domain.Reaction) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM reactions WHERE message_id = ? AND symbol = ?
	`, rc.MessageID.String(), rc.Symbol)
	if err != nil {
		return fmt.Errorf("delete reaction: %w", err)
	}
	return nil
}

// ListInRange joins reactions against the thread's messages with ids in the
// inclusive [startID, endID] range, used to decorate a history page.
func (r *ReactionRepo) ListInRange(ctx context.Context, threadID domain.ThreadID, startID, endID domain.MessageID) ([]*domain.Reaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT r.message_id, r.symbol
		FROM reactions r
		JOIN messages m ON m.id = r.message_id
		WHERE m.thread_id = ?
		  AND CAST(m.id AS INTEGER) >= CAST(? AS INTEGER)
		  AND CAST(m.id AS INTEGER) <= CAST(? AS INTEGER)
		ORDER BY CAST(m.id AS INTEGER)
	`, threadID.String(), startID.String(), endID.String())
	if err != nil {
		return nil, fmt.Errorf("list reactions: %w", err)
	}
	defer rows.Close()

	var res []*domain.Reaction
	for rows.Next() {
		var (
			rc        domain.Reaction
			messageID string
		)
		if err := rows.Scan(&messageID, &rc.Symbol); err != nil {
			return nil, fmt.Errorf("scan reaction: %w", err)
		}
		rc.MessageID = domain.NewMessageID(messageID)
		res = append(res, &rc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list reactions: %w", err)
	}
	return res, nil
}
