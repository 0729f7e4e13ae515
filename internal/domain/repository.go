package domain

import (
	"context"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	// Create inserts a new user and returns it. Fails with ErrConflict if the
	// id already exists.
	Create(ctx context.Context, u *User) (*User, error)
	// Get fails with ErrNotFound when the user is absent. Callers establish
	// existence first (Has or a prior lookup) when absence is expected.
	Get(ctx context.Context, id UserID) (*User, error)
	// GetByExternalID returns (nil, nil) when no user is linked to the given
	// Discord account id; absence is a valid, non-error result here.
	GetByExternalID(ctx context.Context, externalAccountID string) (*User, error)
	// Update is read-modify-write: transform receives the current row and
	// returns the full new row. Not isolated against concurrent updates of
	// the same row; last write wins.
	Update(ctx context.Context, id UserID, transform func(User) User) (*User, error)
	Has(ctx context.Context, id UserID) (bool, error)
}

// ThreadRepository defines persistence operations for threads.
type ThreadRepository interface {
	Create(ctx context.Context, t *Thread) (*Thread, error)
	Get(ctx context.Context, id ThreadID) (*Thread, error)
	Update(ctx context.Context, id ThreadID, transform func(Thread) Thread) (*Thread, error)
	Has(ctx context.Context, id ThreadID) (bool, error)
	// ListForUser returns the user's threads in the store's natural order;
	// callers must not rely on it being chronological.
	ListForUser(ctx context.Context, userID UserID) ([]*Thread, error)
}

// MessageRepository defines persistence operations for messages.
type MessageRepository interface {
	Create(ctx context.Context, m *Message) (*Message, error)
	Get(ctx context.Context, id MessageID) (*Message, error)
	Update(ctx context.Context, id MessageID, transform func(Message) Message) (*Message, error)
	// ListForThread returns up to limit most recent messages whose id is less
	// than before (all most recent when before is nil), re-sorted into
	// ascending id order for chronological reading.
	ListForThread(ctx context.Context, threadID ThreadID, limit int, before *MessageID) ([]*Message, error)
}

// ReactionRepository defines persistence operations for reactions.
type ReactionRepository interface {
	// Create fails with ErrConflict when the (message, symbol) pair already
	// exists; callers check first.
	Create(ctx context.Context, r *Reaction) (*Reaction, error)
	// Delete of an absent row is a no-op.
	Delete(ctx context.Context, r *Reaction) error
	// ListInRange returns the reactions of a thread's messages with ids in
	// [startID, endID], in message id order.
	ListInRange(ctx context.Context, threadID ThreadID, startID, endID MessageID) ([]*Reaction, error)
}
