// Package identity resolves widget access tokens against the external
// identity endpoint.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Identity is the account the external endpoint vouches for.
type Identity struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Verifier exchanges an access token for the account it belongs to.
type Verifier interface {
	Verify(ctx context.Context, accessToken string) (*Identity, error)
}

// Client calls the identity endpoint with a bearer token. No retries: a
// failed lookup fails the handshake.
type Client struct {
	url    string
	client *http.Client
	log    zerolog.Logger
}

var _ Verifier = (*Client)(nil)

func NewClient(url string, log zerolog.Logger) *Client {
	return &Client{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}
}

func (c *Client) Verify(ctx context.Context, accessToken string) (*Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("identity request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	requestID := uuid.NewString()
	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Warn().Str("request_id", requestID).Err(err).Msg("identity lookup failed")
		return nil, fmt.Errorf("identity lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Warn().Str("request_id", requestID).Int("status", resp.StatusCode).Msg("identity lookup rejected")
		return nil, fmt.Errorf("identity lookup: status %d", resp.StatusCode)
	}

	var id Identity
	if err := json.NewDecoder(resp.Body).Decode(&id); err != nil {
		return nil, fmt.Errorf("decode identity: %w", err)
	}
	return &id, nil
}
