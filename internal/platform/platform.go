// Package platform defines the boundary to the staff-facing messaging
// platform. The relay engine consumes the Adapter interface and receives
// normalized inbound events; the discord subpackage implements both ends.
package platform

import (
	"context"
	"time"

	"supportbridge/internal/domain"
)

// Adapter is the outbound surface of the staff platform: thread lifecycle,
// webhook-impersonated posting, reaction mutation, moderation, DMs, roles.
type Adapter interface {
	// CreateThread starts a new support thread and returns its id.
	CreateThread(ctx context.Context, title string) (domain.ThreadID, error)
	// PostMessage posts into a thread impersonating the given display
	// name/avatar and returns the platform-assigned message id.
	PostMessage(ctx context.Context, threadID domain.ThreadID, displayName string, avatarURL *string, content string) (domain.MessageID, error)
	RenameThread(ctx context.Context, threadID domain.ThreadID, title string) error
	// ResolveMessage verifies the message exists in the given thread.
	ResolveMessage(ctx context.Context, threadID domain.ThreadID, messageID domain.MessageID) error
	AddReaction(ctx context.Context, threadID domain.ThreadID, messageID domain.MessageID, symbol string) error
	RemoveReaction(ctx context.Context, threadID domain.ThreadID, messageID domain.MessageID, symbol string) error
	DeleteMessage(ctx context.Context, channelID domain.ThreadID, messageID domain.MessageID) error
	SendDirectMessage(ctx context.Context, userID domain.DiscordUserID, content string) error
	MemberHasRole(ctx context.Context, userID domain.DiscordUserID, roleID string) (bool, error)
}

// Attachment is a file attached to an inbound platform message.
type Attachment struct {
	URL         string
	ContentType string
}

// InboundMessage is a normalized message-create event from the platform
// gateway.
type InboundMessage struct {
	ID            domain.MessageID
	ChannelID     domain.ThreadID
	AuthorID      domain.DiscordUserID
	FromBot       bool
	FromWebhook   bool
	DirectMessage bool
	Content       string
	Attachments   []Attachment
	CreatedAt     time.Time
}

// InboundEdit is a normalized message-update event. Content may be empty and
// EditedAt nil on partial gateway payloads; the engine treats either as a
// logged no-op.
type InboundEdit struct {
	ID        domain.MessageID
	ChannelID domain.ThreadID
	Content   string
	EditedAt  *time.Time
}
