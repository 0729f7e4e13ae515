package domain

import "strconv"

// Distinct defined types per identifier domain so a ThreadID can never be
// passed where a MessageID is expected. Same representation as string at
// runtime; conversion only through the constructors below.

// UserID identifies a widget user. For token-authenticated users it is
// derived from the external account id and email; for anonymous users it is
// the raw network address of the connection; for staff it is the Discord
// account id.
type UserID string

// ThreadID is a Discord-assigned thread (channel) id.
type ThreadID string

// MessageID is a Discord-assigned message id. Snowflakes are comparable as
// instants: a higher id was created later.
type MessageID string

// DiscordUserID is a Discord account id, distinct from our own UserID space.
type DiscordUserID string

func NewUserID(s string) UserID               { return UserID(s) }
func NewThreadID(s string) ThreadID           { return ThreadID(s) }
func NewMessageID(s string) MessageID         { return MessageID(s) }
func NewDiscordUserID(s string) DiscordUserID { return DiscordUserID(s) }

// Before reports whether id was created before other under snowflake
// ordering. Non-numeric ids fall back to string comparison.
func (id MessageID) Before(other MessageID) bool {
	a, errA := strconv.ParseUint(string(id), 10, 64)
	b, errB := strconv.ParseUint(string(other), 10, 64)
	if errA != nil || errB != nil {
		return string(id) < string(other)
	}
	return a < b
}

func (id UserID) String() string        { return string(id) }
func (id ThreadID) String() string      { return string(id) }
func (id MessageID) String() string     { return string(id) }
func (id DiscordUserID) String() string { return string(id) }
