// Package crm pushes conversation events to the CRM endpoint. Calls are
// fire-and-forget: failures are logged and never affect the relay.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"supportbridge/internal/domain"
)

type Notifier struct {
	url    string
	client *http.Client
	log    zerolog.Logger
}

// NewNotifier returns a notifier posting to url. An empty url disables
// notifications entirely.
func NewNotifier(url string, log zerolog.Logger) *Notifier {
	return &Notifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}
}

type event struct {
	Event    string `json:"event"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	ThreadID string `json:"threadId,omitempty"`
	Content  string `json:"content,omitempty"`
}

// ConversationStarted reports a newly opened support thread.
func (n *Notifier) ConversationStarted(user *domain.User, threadID domain.ThreadID, title string) {
	n.post(event{
		Event:    "conversation-started",
		UserID:   user.ID.String(),
		UserName: user.Name,
		ThreadID: threadID.String(),
		Content:  title,
	})
}

// CustomerMessage reports a customer message in an existing thread.
func (n *Notifier) CustomerMessage(user *domain.User, threadID domain.ThreadID, content string) {
	n.post(event{
		Event:    "customer-message",
		UserID:   user.ID.String(),
		UserName: user.Name,
		ThreadID: threadID.String(),
		Content:  content,
	})
}

func (n *Notifier) post(ev event) {
	if n == nil || n.url == "" {
		return
	}
	go func() {
		body, err := json.Marshal(ev)
		if err != nil {
			n.log.Error().Err(err).Msg("crm: marshal event")
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
		if err != nil {
			n.log.Error().Err(err).Msg("crm: build request")
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Request-ID", uuid.NewString())

		resp, err := n.client.Do(req)
		if err != nil {
			n.log.Warn().Err(err).Str("event", ev.Event).Msg("crm: notify failed")
			return
		}
		resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			n.log.Warn().Int("status", resp.StatusCode).Str("event", ev.Event).Msg("crm: notify rejected")
		}
	}()
}
