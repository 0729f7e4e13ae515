// Package discord implements the platform adapter on top of discordgo.
package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"supportbridge/internal/domain"
	"supportbridge/internal/platform"
)

// Threads auto-archive after a week of inactivity; history stays in the store
// either way.
const threadArchiveMinutes = 10080

// Client is the outbound half of the Discord integration: thread lifecycle,
// webhook posting, reactions, moderation, DMs, role checks.
type Client struct {
	s *discordgo.Session

	guildID          string
	supportChannelID string
	webhookID        string
	webhookToken     string

	log zerolog.Logger
}

var _ platform.Adapter = (*Client)(nil)

func NewClient(s *discordgo.Session, guildID, supportChannelID, webhookID, webhookToken string, log zerolog.Logger) *Client {
	return &Client{
		s:                s,
		guildID:          guildID,
		supportChannelID: supportChannelID,
		webhookID:        webhookID,
		webhookToken:     webhookToken,
		log:              log,
	}
}

// VerifySetup checks the configured guild, support channel, and staff role
// exist. Called once at boot; failure is fatal.
func (c *Client) VerifySetup(ctx context.Context, staffRoleID string) error {
	guild, err := c.s.Guild(c.guildID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("fetch guild %s: %w", c.guildID, err)
	}

	if _, err := c.s.Channel(c.supportChannelID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("fetch support channel %s: %w", c.supportChannelID, err)
	}

	roles := guild.Roles
	if len(roles) == 0 {
		roles, err = c.s.GuildRoles(c.guildID, discordgo.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("fetch guild roles: %w", err)
		}
	}
	for _, role := range roles {
		if role.ID == staffRoleID {
			return nil
		}
	}
	return fmt.Errorf("staff role %s not found in guild %s", staffRoleID, c.guildID)
}

func (c *Client) CreateThread(ctx context.Context, title string) (domain.ThreadID, error) {
	thread, err := c.s.ThreadStartComplex(c.supportChannelID, &discordgo.ThreadStart{
		Name:                title,
		Type:                discordgo.ChannelTypeGuildPublicThread,
		AutoArchiveDuration: threadArchiveMinutes,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("start thread: %w", err)
	}
	return domain.NewThreadID(thread.ID), nil
}

// PostMessage posts into a thread through the support webhook, impersonating
// the given display name and avatar. Executed with wait so Discord assigns
// and returns the message id.
func (c *Client) PostMessage(ctx context.Context, threadID domain.ThreadID, displayName string, avatarURL *string, content string) (domain.MessageID, error) {
	params := &discordgo.WebhookParams{
		Content:  content,
		Username: displayName,
	}
	if avatarURL != nil {
		params.AvatarURL = *avatarURL
	}
	msg, err := c.s.WebhookThreadExecute(c.webhookID, c.webhookToken, true, threadID.String(), params, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("webhook post: %w", err)
	}
	return domain.NewMessageID(msg.ID), nil
}

func (c *Client) RenameThread(ctx context.Context, threadID domain.ThreadID, title string) error {
	if _, err := c.s.ChannelEdit(threadID.String(), &discordgo.ChannelEdit{
		Name: title,
	}, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("rename thread: %w", err)
	}
	return nil
}

func (c *Client) ResolveMessage(ctx context.Context, threadID domain.ThreadID, messageID domain.MessageID) error {
	if _, err := c.s.ChannelMessage(threadID.String(), messageID.String(), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("resolve message: %w", err)
	}
	return nil
}

func (c *Client) AddReaction(ctx context.Context, threadID domain.ThreadID, messageID domain.MessageID, symbol string) error {
	if err := c.s.MessageReactionAdd(threadID.String(), messageID.String(), symbol, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("add reaction: %w", err)
	}
	return nil
}

func (c *Client) RemoveReaction(ctx context.Context, threadID domain.ThreadID, messageID domain.MessageID, symbol string) error {
	if err := c.s.MessageReactionRemove(threadID.String(), messageID.String(), symbol, "@me", discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("remove reaction: %w", err)
	}
	return nil
}

func (c *Client) DeleteMessage(ctx context.Context, channelID domain.ThreadID, messageID domain.MessageID) error {
	if err := c.s.ChannelMessageDelete(channelID.String(), messageID.String(), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

func (c *Client) SendDirectMessage(ctx context.Context, userID domain.DiscordUserID, content string) error {
	ch, err := c.s.UserChannelCreate(userID.String(), discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("open dm channel: %w", err)
	}
	if _, err := c.s.ChannelMessageSend(ch.ID, content, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send dm: %w", err)
	}
	return nil
}

func (c *Client) MemberHasRole(ctx context.Context, userID domain.DiscordUserID, roleID string) (bool, error) {
	member, err := c.s.GuildMember(c.guildID, userID.String(), discordgo.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("fetch guild member: %w", err)
	}
	for _, r := range member.Roles {
		if r == roleID {
			return true, nil
		}
	}
	return false, nil
}
