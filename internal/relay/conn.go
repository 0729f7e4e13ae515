package relay

import (
	"context"
	"errors"
	"time"

	"supportbridge/internal/domain"
	"supportbridge/internal/session"
)

// ErrCloseConnection tells the transport to drop the connection with no
// frame sent back. Invalid tokens and invalid anonymous emails fail closed
// and fail silent.
var ErrCloseConnection = errors.New("relay: close connection")

// Connection is the engine's view of one socket connection. It transitions
// unauthenticated to authenticated exactly once, on the first recognized
// authenticate frame, and stays authenticated until the transport closes.
type Connection struct {
	engine *Engine
	addr   string
	conn   session.Conn

	userID        domain.UserID
	authenticated bool
}

// NewConnection registers a fresh, unauthenticated connection for the given
// network address.
func (e *Engine) NewConnection(addr string, conn session.Conn) *Connection {
	return &Connection{engine: e, addr: addr, conn: conn}
}

// Closed cleans up the session registry after the transport has gone away.
func (c *Connection) Closed() {
	c.engine.registry.Unregister(c.addr)
}

// HandleFrame dispatches one inbound text frame. A returned
// ErrCloseConnection means the transport must be closed silently; any other
// failure is logged here and the connection keeps going.
func (c *Connection) HandleFrame(ctx context.Context, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.engine.log.Error().Interface("panic", r).Str("addr", c.addr).Msg("relay: frame handler panicked")
			err = nil
		}
	}()

	frame, derr := decodeFrame(data)
	if derr != nil {
		c.engine.log.Debug().Err(derr).Str("addr", c.addr).Msg("relay: dropping undecodable frame")
		return nil
	}

	if !c.authenticated {
		switch f := frame.(type) {
		case *AuthenticateFrame:
			return c.authenticate(ctx, f)
		case *AuthenticateAnonymouslyFrame:
			return c.authenticateAnonymously(ctx, f)
		default:
			// Everything else is meaningless before the handshake.
			return nil
		}
	}

	switch f := frame.(type) {
	case *AuthenticateFrame, *AuthenticateAnonymouslyFrame:
		// Authentication happens exactly once per connection lifetime.
	case *HistoryBeforeFrame:
		c.handleHistoryBefore(ctx, f)
	case *NewThreadFrame:
		c.handleNewThread(ctx, f)
	case *RenameThreadFrame:
		c.handleRenameThread(ctx, f)
	case *SwitchThreadFrame:
		c.handleSwitchThread(ctx, f)
	case *MessageFrame:
		c.handleMessage(ctx, f)
	case *ReactionFrame:
		c.handleReaction(ctx, f)
	case *RemoveReactionFrame:
		c.handleRemoveReaction(ctx, f)
	case *MarkAsReadFrame:
		c.handleMarkAsRead(ctx, f)
	}
	return nil
}

// authenticate performs the platform-token handshake. A failed identity
// lookup drops the connection with no reply.
func (c *Connection) authenticate(ctx context.Context, f *AuthenticateFrame) error {
	ident, err := c.engine.verifier.Verify(ctx, f.AccessToken)
	if err != nil {
		return ErrCloseConnection
	}

	// Combining account id and email keeps the derived id stable across
	// re-authentication of the same account.
	userID := domain.NewUserID(ident.ID + "-" + ident.Email)
	e := c.engine

	exists, err := e.users.Has(ctx, userID)
	if err != nil {
		e.log.Error().Err(err).Str("user", userID.String()).Msg("relay: probe user")
		return ErrCloseConnection
	}
	var user *domain.User
	if exists {
		user, err = e.users.Get(ctx, userID)
	} else {
		// ExternalAccountID stays empty: that column holds Discord account
		// ids for staff resolution, a different namespace than the identity
		// service's account ids.
		user, err = e.users.Create(ctx, &domain.User{
			ID:   userID,
			Name: ident.Name,
		})
	}
	if err != nil {
		e.log.Error().Err(err).Str("user", userID.String()).Msg("relay: upsert user")
		return ErrCloseConnection
	}

	e.registry.Register(c.addr, userID, c.conn)
	c.userID = userID
	c.authenticated = true

	e.sendThreadList(ctx, user)
	if user.CurrentThreadID != nil {
		e.sendThreadPage(ctx, user, *user.CurrentThreadID, frameAuthenticate, nil)
	}
	return nil
}

// authenticateAnonymously derives the user from the raw network address.
// Anonymous sessions start with a blank slate: no history is replayed.
func (c *Connection) authenticateAnonymously(ctx context.Context, f *AuthenticateAnonymouslyFrame) error {
	e := c.engine
	if err := e.validate.Var(f.Email, "required,email"); err != nil {
		return ErrCloseConnection
	}

	userID := domain.NewUserID(c.addr)
	exists, err := e.users.Has(ctx, userID)
	if err != nil {
		e.log.Error().Err(err).Str("user", userID.String()).Msg("relay: probe user")
		return ErrCloseConnection
	}
	if !exists {
		email := f.Email
		if _, err := e.users.Create(ctx, &domain.User{
			ID:    userID,
			Email: &email,
			Name:  f.Email,
		}); err != nil {
			e.log.Error().Err(err).Str("user", userID.String()).Msg("relay: create anonymous user")
			return ErrCloseConnection
		}
	}

	e.registry.Register(c.addr, userID, c.conn)
	c.userID = userID
	c.authenticated = true
	return nil
}

// ownsThread reports whether the given thread exists and belongs to the
// session user. Foreign thread ids in client frames are treated the same as
// unknown ones.
func (c *Connection) ownsThread(ctx context.Context, threadID domain.ThreadID) bool {
	thread, err := c.engine.threads.Get(ctx, threadID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			c.engine.log.Error().Err(err).Str("thread", threadID.String()).Msg("relay: load thread")
		}
		return false
	}
	return thread.UserID == c.userID
}

func (c *Connection) user(ctx context.Context) *domain.User {
	user, err := c.engine.users.Get(ctx, c.userID)
	if err != nil {
		c.engine.log.Error().Err(err).Str("user", c.userID.String()).Msg("relay: load session user")
		return nil
	}
	return user
}

// handleHistoryBefore replays the page ending just before the given message.
// Anonymous sessions do not support scrollback; their requests are ignored.
func (c *Connection) handleHistoryBefore(ctx context.Context, f *HistoryBeforeFrame) {
	user := c.user(ctx)
	if user == nil || user.Anonymous() || user.CurrentThreadID == nil {
		return
	}
	before := domain.NewMessageID(f.MessageID)
	c.engine.sendThreadPage(ctx, user, *user.CurrentThreadID, frameHistoryBefore, &before)
}

// handleNewThread opens a platform thread, posts the initial message, and
// snapshots the new thread back to the originating connection only.
func (c *Connection) handleNewThread(ctx context.Context, f *NewThreadFrame) {
	e := c.engine
	user := c.user(ctx)
	if user == nil {
		return
	}

	threadID, err := e.adapter.CreateThread(ctx, f.Title)
	if err != nil {
		e.log.Error().Err(err).Str("user", user.ID.String()).Msg("relay: create thread")
		return
	}
	user, err = e.users.Update(ctx, user.ID, func(u domain.User) domain.User {
		u.CurrentThreadID = &threadID
		return u
	})
	if err != nil {
		e.log.Error().Err(err).Str("user", c.userID.String()).Msg("relay: set current thread")
		return
	}

	messageID, err := e.adapter.PostMessage(ctx, threadID, user.Name, user.AvatarURL, f.Content)
	if err != nil {
		e.log.Error().Err(err).Str("thread", threadID.String()).Msg("relay: post initial message")
		return
	}

	now := time.Now().UTC()
	if _, err := e.threads.Create(ctx, &domain.Thread{
		ID:                threadID,
		UserID:            user.ID,
		Title:             f.Title,
		LastMessageSentID: messageID,
		LastMessageReadID: messageID,
	}); err != nil {
		e.log.Error().Err(err).Str("thread", threadID.String()).Msg("relay: persist thread")
		return
	}
	if _, err := e.messages.Create(ctx, &domain.Message{
		ID:        messageID,
		ThreadID:  threadID,
		Content:   f.Content,
		CreatedAt: now,
		EditedAt:  now,
	}); err != nil {
		e.log.Error().Err(err).Str("message", messageID.String()).Msg("relay: persist initial message")
		return
	}

	e.notifier.ConversationStarted(user, threadID, f.Title)
	e.sendThreadPage(ctx, user, threadID, frameNewThread, nil)
}

// handleRenameThread is fire-and-forget: no acknowledgement frame is sent.
// Frames naming a thread the session user does not own are dropped silently.
func (c *Connection) handleRenameThread(ctx context.Context, f *RenameThreadFrame) {
	e := c.engine
	threadID := domain.NewThreadID(f.ThreadID)
	if !c.ownsThread(ctx, threadID) {
		return
	}
	if err := e.adapter.RenameThread(ctx, threadID, f.Title); err != nil {
		e.log.Error().Err(err).Str("thread", f.ThreadID).Msg("relay: rename thread")
		return
	}
	if _, err := e.threads.Update(ctx, threadID, func(t domain.Thread) domain.Thread {
		t.Title = f.Title
		return t
	}); err != nil {
		e.log.Error().Err(err).Str("thread", f.ThreadID).Msg("relay: persist thread title")
	}
}

func (c *Connection) handleSwitchThread(ctx context.Context, f *SwitchThreadFrame) {
	e := c.engine
	threadID := domain.NewThreadID(f.ThreadID)
	user, err := e.users.Update(ctx, c.userID, func(u domain.User) domain.User {
		u.CurrentThreadID = &threadID
		return u
	})
	if err != nil {
		e.log.Error().Err(err).Str("user", c.userID.String()).Msg("relay: switch thread")
		return
	}
	e.sendThreadPage(ctx, user, threadID, frameSwitchThread, nil)
}

// handleMessage posts through the webhook as the user's display identity and
// persists the row with a nil author. No echo frame: the webhook post does
// not re-enter through the gateway listener.
func (c *Connection) handleMessage(ctx context.Context, f *MessageFrame) {
	e := c.engine
	user := c.user(ctx)
	if user == nil {
		return
	}
	threadID := domain.NewThreadID(f.ThreadID)

	messageID, err := e.adapter.PostMessage(ctx, threadID, user.Name, user.AvatarURL, f.Content)
	if err != nil {
		e.log.Error().Err(err).Str("thread", f.ThreadID).Msg("relay: post message")
		return
	}
	now := time.Now().UTC()
	if _, err := e.messages.Create(ctx, &domain.Message{
		ID:        messageID,
		ThreadID:  threadID,
		Content:   f.Content,
		CreatedAt: now,
		EditedAt:  now,
	}); err != nil {
		e.log.Error().Err(err).Str("message", messageID.String()).Msg("relay: persist message")
		return
	}
	if _, err := e.threads.Update(ctx, threadID, func(t domain.Thread) domain.Thread {
		if t.LastMessageSentID.Before(messageID) {
			t.LastMessageSentID = messageID
		}
		return t
	}); err != nil {
		e.log.Error().Err(err).Str("thread", f.ThreadID).Msg("relay: advance last sent")
		return
	}
	e.notifier.CustomerMessage(user, threadID, f.Content)
}

// Reactions resolve against the user's current thread, not the thread
// containing the target message. A reaction sent right after switching
// threads can therefore land on the previous channel upstream.
func (c *Connection) handleReaction(ctx context.Context, f *ReactionFrame) {
	e := c.engine
	user := c.user(ctx)
	if user == nil || user.CurrentThreadID == nil {
		return
	}
	threadID := *user.CurrentThreadID
	messageID := domain.NewMessageID(f.MessageID)

	if err := e.adapter.ResolveMessage(ctx, threadID, messageID); err != nil {
		e.log.Warn().Err(err).Str("message", f.MessageID).Msg("relay: resolve reaction target")
		return
	}
	if err := e.adapter.AddReaction(ctx, threadID, messageID, f.Reaction); err != nil {
		e.log.Error().Err(err).Str("message", f.MessageID).Msg("relay: add reaction")
		return
	}

	// Duplicate create violates the store's unique constraint, so probe first.
	existing, err := e.reactions.ListInRange(ctx, threadID, messageID, messageID)
	if err != nil {
		e.log.Error().Err(err).Str("message", f.MessageID).Msg("relay: probe reaction")
		return
	}
	for _, r := range existing {
		if r.Symbol == f.Reaction {
			return
		}
	}
	if _, err := e.reactions.Create(ctx, &domain.Reaction{MessageID: messageID, Symbol: f.Reaction}); err != nil {
		e.log.Error().Err(err).Str("message", f.MessageID).Msg("relay: persist reaction")
	}
}

func (c *Connection) handleRemoveReaction(ctx context.Context, f *RemoveReactionFrame) {
	e := c.engine
	user := c.user(ctx)
	if user == nil || user.CurrentThreadID == nil {
		return
	}
	threadID := *user.CurrentThreadID
	messageID := domain.NewMessageID(f.MessageID)

	if err := e.adapter.ResolveMessage(ctx, threadID, messageID); err != nil {
		e.log.Warn().Err(err).Str("message", f.MessageID).Msg("relay: resolve reaction target")
		return
	}
	if err := e.adapter.RemoveReaction(ctx, threadID, messageID, f.Reaction); err != nil {
		e.log.Error().Err(err).Str("message", f.MessageID).Msg("relay: remove reaction")
		return
	}
	if err := e.reactions.Delete(ctx, &domain.Reaction{MessageID: messageID, Symbol: f.Reaction}); err != nil {
		e.log.Error().Err(err).Str("message", f.MessageID).Msg("relay: delete reaction")
	}
}

func (c *Connection) handleMarkAsRead(ctx context.Context, f *MarkAsReadFrame) {
	e := c.engine
	threadID := domain.NewThreadID(f.ThreadID)
	if !c.ownsThread(ctx, threadID) {
		return
	}
	messageID := domain.NewMessageID(f.MessageID)
	if _, err := e.threads.Update(ctx, threadID, func(t domain.Thread) domain.Thread {
		t.LastMessageReadID = messageID
		return t
	}); err != nil {
		e.log.Error().Err(err).Str("thread", f.ThreadID).Msg("relay: mark as read")
	}
}
