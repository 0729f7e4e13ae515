package domain

import "time"

// User represents a widget customer or a registered staff member. Rows are
// created on first contact and never deleted. ExternalAccountID is the Discord
// account id, set only for registered staff; customer rows leave it empty.
type User struct {
	ID                UserID    `db:"id"`
	ExternalAccountID *string   `db:"external_account_id"`
	Email             *string   `db:"email"`
	Name              string    `db:"name"`
	AvatarURL         *string   `db:"avatar_url"`
	CurrentThreadID   *ThreadID `db:"current_thread_id"`
}

// Anonymous reports whether the user came in through the anonymous handshake.
// The email column is populated only for anonymous sessions; token-derived
// users fold the email into their id instead.
func (u *User) Anonymous() bool {
	return u.Email != nil
}

// Thread is a Discord thread mapped one-to-one with a customer conversation.
// UserID never changes after creation.
type Thread struct {
	ID                ThreadID  `db:"id"`
	UserID            UserID    `db:"user_id"`
	Title             string    `db:"title"`
	LastMessageSentID MessageID `db:"last_message_sent_id"`
	LastMessageReadID MessageID `db:"last_message_read_id"`
}

// HasUnread is true until the owner has read up to the latest message.
func (t *Thread) HasUnread() bool {
	return t.LastMessageSentID != t.LastMessageReadID
}

// Message is a single persisted message. A nil AuthorID means the message was
// authored by the customer through the socket channel; a non-nil AuthorID
// references a registered staff user.
type Message struct {
	ID        MessageID `db:"id"`
	ThreadID  ThreadID  `db:"thread_id"`
	AuthorID  *UserID   `db:"author_id"`
	Content   string    `db:"content"`
	CreatedAt time.Time `db:"created_at"`
	EditedAt  time.Time `db:"edited_at"` // equals CreatedAt until first edit
}

// Edited reports whether the message has been edited since creation.
func (m *Message) Edited() bool {
	return !m.EditedAt.Equal(m.CreatedAt)
}

// Reaction is one symbol in a message's reaction set. No owning user is
// recorded; add/remove are set operations keyed by (MessageID, Symbol).
type Reaction struct {
	MessageID MessageID `db:"message_id"`
	Symbol    string    `db:"symbol"`
}
