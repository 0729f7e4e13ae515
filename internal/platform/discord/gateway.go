package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"supportbridge/internal/domain"
	"supportbridge/internal/platform"
	"supportbridge/internal/relay"
)

// Gateway translates discordgo gateway events into normalized platform events
// and feeds them to the relay engine.
type Gateway struct {
	engine *relay.Engine
	log    zerolog.Logger
}

func NewGateway(engine *relay.Engine, log zerolog.Logger) *Gateway {
	return &Gateway{engine: engine, log: log}
}

// Intents returns the gateway intents the relay needs: guild and DM messages
// with message content.
func Intents() discordgo.Intent {
	return discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent
}

// Attach registers the gateway handlers on the session. Must be called before
// the session is opened.
func (g *Gateway) Attach(s *discordgo.Session) {
	s.AddHandler(g.onMessageCreate)
	s.AddHandler(g.onMessageUpdate)
}

func (g *Gateway) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil {
		return
	}
	ev := platform.InboundMessage{
		ID:            domain.NewMessageID(m.ID),
		ChannelID:     domain.NewThreadID(m.ChannelID),
		AuthorID:      domain.NewDiscordUserID(m.Author.ID),
		FromBot:       m.Author.Bot,
		FromWebhook:   m.WebhookID != "",
		DirectMessage: m.GuildID == "",
		Content:       m.Content,
		CreatedAt:     m.Timestamp,
	}
	for _, a := range m.Attachments {
		ev.Attachments = append(ev.Attachments, platform.Attachment{
			URL:         a.URL,
			ContentType: a.ContentType,
		})
	}
	g.engine.HandleInboundMessage(context.Background(), ev)
}

func (g *Gateway) onMessageUpdate(_ *discordgo.Session, m *discordgo.MessageUpdate) {
	ev := platform.InboundEdit{
		ID:        domain.NewMessageID(m.ID),
		ChannelID: domain.NewThreadID(m.ChannelID),
		Content:   m.Content,
		EditedAt:  m.EditedTimestamp,
	}
	g.engine.HandleInboundEdit(context.Background(), ev)
}
