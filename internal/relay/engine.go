// Package relay implements the bidirectional message-relay engine: it
// authenticates socket connections, dispatches client frames, consumes
// platform events, and keeps the persisted history consistent with the live
// relay.
package relay

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"supportbridge/internal/crm"
	"supportbridge/internal/domain"
	"supportbridge/internal/identity"
	"supportbridge/internal/platform"
	"supportbridge/internal/session"
)

const registerPrompt = "Your reply was removed because you are not registered yet. " +
	"Send me a direct message with your full name and one profile picture attached to register."

// Engine is the protocol state machine shared by all connections. Constructed
// once at boot and passed down; tests build their own instances.
type Engine struct {
	users     domain.UserRepository
	threads   domain.ThreadRepository
	messages  domain.MessageRepository
	reactions domain.ReactionRepository

	registry *session.Registry
	adapter  platform.Adapter
	verifier identity.Verifier
	notifier *crm.Notifier

	staffRoleID string
	pageSize    int

	validate *validator.Validate
	log      zerolog.Logger
}

type Options struct {
	Users     domain.UserRepository
	Threads   domain.ThreadRepository
	Messages  domain.MessageRepository
	Reactions domain.ReactionRepository
	Registry  *session.Registry
	Adapter   platform.Adapter
	Verifier  identity.Verifier
	Notifier  *crm.Notifier

	StaffRoleID string
	PageSize    int
	Logger      zerolog.Logger
}

func NewEngine(opts Options) *Engine {
	if opts.PageSize <= 0 {
		opts.PageSize = 25
	}
	return &Engine{
		users:       opts.Users,
		threads:     opts.Threads,
		messages:    opts.Messages,
		reactions:   opts.Reactions,
		registry:    opts.Registry,
		adapter:     opts.Adapter,
		verifier:    opts.Verifier,
		notifier:    opts.Notifier,
		staffRoleID: opts.StaffRoleID,
		pageSize:    opts.PageSize,
		validate:    validator.New(),
		log:         opts.Logger,
	}
}

// recovered logs a handler panic. One bad frame or event must not take down
// the relay; deferred at the top of every top-level handler.
func (e *Engine) recovered(where string) {
	if r := recover(); r != nil {
		e.log.Error().Interface("panic", r).Str("handler", where).Msg("relay: handler panicked")
	}
}

// sendThreadList pushes the user's thread summaries.
func (e *Engine) sendThreadList(ctx context.Context, user *domain.User) {
	threads, err := e.threads.ListForUser(ctx, user.ID)
	if err != nil {
		e.log.Error().Err(err).Str("user", user.ID.String()).Msg("relay: list threads")
		return
	}
	summaries := make([]ThreadSummary, 0, len(threads))
	for _, t := range threads {
		summaries = append(summaries, ThreadSummary{
			ThreadID:          t.ID.String(),
			Title:             t.Title,
			HasUnreadMessages: t.HasUnread(),
		})
	}
	e.registry.Deliver(user.ID, ServerThreadsFrame{
		Type:    frameServerThreads,
		Threads: summaries,
	})
}

// sendThreadPage pushes one page of a thread's history as a server-thread
// frame. The page is anchored before the given message id when set. One extra
// row beyond the page size is probed to decide isAtBeginning.
func (e *Engine) sendThreadPage(ctx context.Context, user *domain.User, threadID domain.ThreadID, requestType string, before *domain.MessageID) {
	thread, err := e.threads.Get(ctx, threadID)
	if err != nil {
		e.log.Error().Err(err).Str("thread", threadID.String()).Msg("relay: load thread")
		return
	}

	msgs, err := e.messages.ListForThread(ctx, threadID, e.pageSize+1, before)
	if err != nil {
		e.log.Error().Err(err).Str("thread", threadID.String()).Msg("relay: load history page")
		return
	}
	isAtBeginning := len(msgs) < e.pageSize+1
	if !isAtBeginning {
		msgs = msgs[1:]
	}

	reactionsByMsg := map[domain.MessageID][]string{}
	if len(msgs) > 0 {
		rs, err := e.reactions.ListInRange(ctx, threadID, msgs[0].ID, msgs[len(msgs)-1].ID)
		if err != nil {
			e.log.Error().Err(err).Str("thread", threadID.String()).Msg("relay: load reactions")
			return
		}
		for _, r := range rs {
			reactionsByMsg[r.MessageID] = append(reactionsByMsg[r.MessageID], r.Symbol)
		}
	}

	frames := make([]ServerMessageFrame, 0, len(msgs))
	authors := map[domain.UserID]*domain.User{}
	for _, m := range msgs {
		name, avatar := user.Name, user.AvatarURL
		if m.AuthorID != nil {
			author, ok := authors[*m.AuthorID]
			if !ok {
				author, err = e.users.Get(ctx, *m.AuthorID)
				if err != nil {
					e.log.Error().Err(err).Str("author", m.AuthorID.String()).Msg("relay: load message author")
					return
				}
				authors[*m.AuthorID] = author
			}
			name, avatar = author.Name, author.AvatarURL
		}

		var edited *int64
		if m.Edited() {
			ts := m.EditedAt.UnixMilli()
			edited = &ts
		}
		reactions := reactionsByMsg[m.ID]
		if reactions == nil {
			reactions = []string{}
		}
		frames = append(frames, ServerMessageFrame{
			Type:             frameServerReplayedMessage,
			ID:               m.ID.String(),
			ThreadID:         m.ThreadID.String(),
			Content:          m.Content,
			AuthorName:       name,
			AvatarURL:        avatar,
			CreatedTimestamp: m.CreatedAt.UnixMilli(),
			EditedTimestamp:  edited,
			Reactions:        reactions,
		})
	}

	e.registry.Deliver(user.ID, ServerThreadFrame{
		Type:          frameServerThread,
		RequestType:   requestType,
		ThreadID:      thread.ID.String(),
		Title:         thread.Title,
		IsAtBeginning: isAtBeginning,
		Messages:      frames,
	})
}

// HandleInboundMessage processes a message-create event from the platform
// gateway. Automated senders are ignored; registered staff replies are
// persisted and relayed; unregistered staff replies are deleted upstream with
// a registration prompt.
func (e *Engine) HandleInboundMessage(ctx context.Context, ev platform.InboundMessage) {
	defer e.recovered("inbound message")

	if ev.FromBot || ev.FromWebhook {
		return
	}
	if ev.DirectMessage {
		e.handleRegistration(ctx, ev)
		return
	}

	tracked, err := e.threads.Has(ctx, ev.ChannelID)
	if err != nil {
		e.log.Error().Err(err).Str("channel", ev.ChannelID.String()).Msg("relay: probe thread")
		return
	}
	if !tracked {
		return
	}

	staff, err := e.users.GetByExternalID(ctx, ev.AuthorID.String())
	if err != nil {
		e.log.Error().Err(err).Str("author", ev.AuthorID.String()).Msg("relay: resolve staff author")
		return
	}
	if staff == nil {
		if err := e.adapter.DeleteMessage(ctx, ev.ChannelID, ev.ID); err != nil {
			e.log.Error().Err(err).Str("message", ev.ID.String()).Msg("relay: delete unregistered reply")
		}
		if err := e.adapter.SendDirectMessage(ctx, ev.AuthorID, registerPrompt); err != nil {
			e.log.Error().Err(err).Str("author", ev.AuthorID.String()).Msg("relay: send register prompt")
		}
		return
	}

	createdAt := ev.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	if _, err := e.messages.Create(ctx, &domain.Message{
		ID:        ev.ID,
		ThreadID:  ev.ChannelID,
		AuthorID:  &staff.ID,
		Content:   ev.Content,
		CreatedAt: createdAt,
		EditedAt:  createdAt,
	}); err != nil {
		e.log.Error().Err(err).Str("message", ev.ID.String()).Msg("relay: persist staff message")
		return
	}

	thread, err := e.threads.Update(ctx, ev.ChannelID, func(t domain.Thread) domain.Thread {
		// Staff replies can arrive out of order; never move the marker back.
		if t.LastMessageSentID.Before(ev.ID) {
			t.LastMessageSentID = ev.ID
		}
		return t
	})
	if err != nil {
		e.log.Error().Err(err).Str("thread", ev.ChannelID.String()).Msg("relay: advance last sent")
		return
	}

	owner, err := e.users.Get(ctx, thread.UserID)
	if err != nil {
		e.log.Error().Err(err).Str("user", thread.UserID.String()).Msg("relay: load thread owner")
		return
	}
	if owner.CurrentThreadID == nil || *owner.CurrentThreadID != thread.ID {
		return
	}
	e.registry.Deliver(owner.ID, ServerMessageFrame{
		Type:             frameServerMessage,
		ID:               ev.ID.String(),
		ThreadID:         thread.ID.String(),
		Content:          ev.Content,
		AuthorName:       staff.Name,
		AvatarURL:        staff.AvatarURL,
		CreatedTimestamp: createdAt.UnixMilli(),
		EditedTimestamp:  nil,
		Reactions:        []string{},
	})
}

// handleRegistration processes a direct message as a staff self-registration:
// full name in the body plus exactly one image attachment. Each violation
// gets its own corrective reply and no state change.
func (e *Engine) handleRegistration(ctx context.Context, ev platform.InboundMessage) {
	isStaff, err := e.adapter.MemberHasRole(ctx, ev.AuthorID, e.staffRoleID)
	if err != nil {
		e.log.Error().Err(err).Str("author", ev.AuthorID.String()).Msg("relay: check staff role")
		return
	}
	if !isStaff {
		return
	}

	reply := func(msg string) {
		if err := e.adapter.SendDirectMessage(ctx, ev.AuthorID, msg); err != nil {
			e.log.Error().Err(err).Str("author", ev.AuthorID.String()).Msg("relay: registration reply")
		}
	}

	if len(ev.Attachments) != 1 || !strings.HasPrefix(ev.Attachments[0].ContentType, "image/") {
		reply("Please attach exactly one image to use as your profile picture.")
		return
	}
	name := strings.TrimSpace(ev.Content)
	if name == "" {
		reply("Please include your full name in the message body.")
		return
	}
	if strings.ContainsAny(name, "\r\n") {
		reply("Please keep your name on a single line.")
		return
	}
	avatar := ev.Attachments[0].URL

	existing, err := e.users.GetByExternalID(ctx, ev.AuthorID.String())
	if err != nil {
		e.log.Error().Err(err).Str("author", ev.AuthorID.String()).Msg("relay: look up staff user")
		return
	}
	if existing != nil {
		if _, err := e.users.Update(ctx, existing.ID, func(u domain.User) domain.User {
			u.Name = name
			u.AvatarURL = &avatar
			return u
		}); err != nil {
			e.log.Error().Err(err).Str("user", existing.ID.String()).Msg("relay: update staff user")
			return
		}
	} else {
		accountID := ev.AuthorID.String()
		if _, err := e.users.Create(ctx, &domain.User{
			ID:                domain.NewUserID(accountID),
			ExternalAccountID: &accountID,
			Name:              name,
			AvatarURL:         &avatar,
		}); err != nil {
			e.log.Error().Err(err).Str("author", accountID).Msg("relay: create staff user")
			return
		}
	}
	reply("You are registered as " + name + ". Your replies in support threads will now reach customers.")
}

// HandleInboundEdit processes a message-update event. Partial payloads
// (missing content or edit timestamp) are logged and dropped.
func (e *Engine) HandleInboundEdit(ctx context.Context, ev platform.InboundEdit) {
	defer e.recovered("inbound edit")

	tracked, err := e.threads.Has(ctx, ev.ChannelID)
	if err != nil {
		e.log.Error().Err(err).Str("channel", ev.ChannelID.String()).Msg("relay: probe thread")
		return
	}
	if !tracked {
		return
	}
	if ev.Content == "" || ev.EditedAt == nil {
		e.log.Warn().Str("message", ev.ID.String()).Msg("relay: edit event missing content or timestamp")
		return
	}

	msg, err := e.messages.Update(ctx, ev.ID, func(m domain.Message) domain.Message {
		m.Content = ev.Content
		m.EditedAt = *ev.EditedAt
		return m
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return
		}
		e.log.Error().Err(err).Str("message", ev.ID.String()).Msg("relay: apply edit")
		return
	}

	thread, err := e.threads.Get(ctx, msg.ThreadID)
	if err != nil {
		e.log.Error().Err(err).Str("thread", msg.ThreadID.String()).Msg("relay: load thread")
		return
	}
	owner, err := e.users.Get(ctx, thread.UserID)
	if err != nil {
		e.log.Error().Err(err).Str("user", thread.UserID.String()).Msg("relay: load thread owner")
		return
	}
	if owner.CurrentThreadID == nil || *owner.CurrentThreadID != thread.ID {
		return
	}
	e.registry.Deliver(owner.ID, ServerEditedMessageFrame{
		Type:            frameServerEditedMessage,
		ID:              msg.ID.String(),
		ThreadID:        msg.ThreadID.String(),
		Content:         msg.Content,
		EditedTimestamp: msg.EditedAt.UnixMilli(),
	})
}
