package relay

import (
	"encoding/json"
	"fmt"
)

// Client frame type tags.
const (
	frameAuthenticate          = "authenticate"
	frameAuthenticateAnonymous = "authenticate-anonymously"
	frameHistoryBefore         = "history-before"
	frameNewThread             = "new-thread"
	frameRenameThread          = "rename-thread"
	frameSwitchThread          = "switch-thread"
	frameMessage               = "message"
	frameReaction              = "reaction"
	frameRemoveReaction        = "remove-reaction"
	frameMarkAsRead            = "mark-as-read"
)

// Server frame type tags.
const (
	frameServerThreads         = "server-threads"
	frameServerThread          = "server-thread"
	frameServerMessage         = "server-message"
	frameServerEditedMessage   = "server-edited-message"
	frameServerReplayedMessage = "server-replayed-message"
)

type AuthenticateFrame struct {
	AccessToken string `json:"accessToken"`
}

type AuthenticateAnonymouslyFrame struct {
	Email string `json:"email"`
}

type HistoryBeforeFrame struct {
	MessageID string `json:"messageId"`
}

type NewThreadFrame struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type RenameThreadFrame struct {
	ThreadID string `json:"threadId"`
	Title    string `json:"title"`
}

type SwitchThreadFrame struct {
	ThreadID string `json:"threadId"`
}

type MessageFrame struct {
	ThreadID string `json:"threadId"`
	Content  string `json:"content"`
}

type ReactionFrame struct {
	MessageID string `json:"messageId"`
	Reaction  string `json:"reaction"`
}

type RemoveReactionFrame struct {
	MessageID string `json:"messageId"`
	Reaction  string `json:"reaction"`
}

type MarkAsReadFrame struct {
	ThreadID  string `json:"threadId"`
	MessageID string `json:"messageId"`
}

// decodeFrame parses a client frame into its typed form based on the type
// tag. Unknown tags and malformed payloads are errors; the connection loop
// logs and drops them rather than trusting a partial decode.
func decodeFrame(data []byte) (any, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode frame envelope: %w", err)
	}

	decode := func(v any) (any, error) {
		if err := json.Unmarshal(data, v); err != nil {
			return nil, fmt.Errorf("decode %s frame: %w", env.Type, err)
		}
		return v, nil
	}

	switch env.Type {
	case frameAuthenticate:
		return decode(&AuthenticateFrame{})
	case frameAuthenticateAnonymous:
		return decode(&AuthenticateAnonymouslyFrame{})
	case frameHistoryBefore:
		return decode(&HistoryBeforeFrame{})
	case frameNewThread:
		return decode(&NewThreadFrame{})
	case frameRenameThread:
		return decode(&RenameThreadFrame{})
	case frameSwitchThread:
		return decode(&SwitchThreadFrame{})
	case frameMessage:
		return decode(&MessageFrame{})
	case frameReaction:
		return decode(&ReactionFrame{})
	case frameRemoveReaction:
		return decode(&RemoveReactionFrame{})
	case frameMarkAsRead:
		return decode(&MarkAsReadFrame{})
	default:
		return nil, fmt.Errorf("unknown frame type %q", env.Type)
	}
}

// ThreadSummary is one entry of a server-threads frame.
type ThreadSummary struct {
	ThreadID          string `json:"threadId"`
	Title             string `json:"title"`
	HasUnreadMessages bool   `json:"hasUnreadMessages"`
}

type ServerThreadsFrame struct {
	Type    string          `json:"type"`
	Threads []ThreadSummary `json:"threads"`
}

// ServerMessageFrame carries a single message to the client. Type is
// server-message for live relays and server-replayed-message inside a
// server-thread history page.
type ServerMessageFrame struct {
	Type             string   `json:"type"`
	ID               string   `json:"id"`
	ThreadID         string   `json:"threadId"`
	Content          string   `json:"content"`
	AuthorName       string   `json:"authorName"`
	AvatarURL        *string  `json:"avatarUrl"`
	CreatedTimestamp int64    `json:"createdTimestamp"`
	EditedTimestamp  *int64   `json:"editedTimestamp"`
	Reactions        []string `json:"reactions"`
}

// ServerThreadFrame is a thread snapshot with one page of history.
// RequestType echoes the client action that triggered it.
type ServerThreadFrame struct {
	Type          string               `json:"type"`
	RequestType   string               `json:"requestType"`
	ThreadID      string               `json:"threadId"`
	Title         string               `json:"title"`
	IsAtBeginning bool                 `json:"isAtBeginning"`
	Messages      []ServerMessageFrame `json:"messages"`
}

type ServerEditedMessageFrame struct {
	Type            string `json:"type"`
	ID              string `json:"id"`
	ThreadID        string `json:"threadId"`
	Content         string `json:"content"`
	EditedTimestamp int64  `json:"editedTimestamp"`
}
