// Package ws hosts the widget-facing WebSocket endpoint and bridges it into
// the relay engine.
package ws

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"supportbridge/internal/relay"
	"supportbridge/internal/session"
)

func normalizeAllowedOrigins(origins []string) map[string]struct{} {
	res := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		o := strings.TrimSpace(strings.ToLower(origin))
		if o != "" {
			res[o] = struct{}{}
		}
	}
	return res
}

func makeCheckOrigin(allowedOrigins []string) func(r *http.Request) bool {
	allowed := normalizeAllowedOrigins(allowedOrigins)
	if len(allowed) == 0 {
		return func(r *http.Request) bool {
			return false
		}
	}

	return func(r *http.Request) bool {
		origin := strings.TrimSpace(strings.ToLower(r.Header.Get("Origin")))
		if origin == "" {
			return false
		}
		if _, ok := allowed[origin]; ok {
			return true
		}

		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return false
		}
		normalized := strings.ToLower(fmt.Sprintf("%s://%s", u.Scheme, u.Host))
		_, ok := allowed[normalized]
		return ok
	}
}

// conn wraps a gorilla connection behind the session.Conn handle interface.
// Writes are serialized; a failed write marks the transport as no longer
// open so the registry can clean up on the next delivery.
type conn struct {
	mu     sync.Mutex
	ws     *websocket.Conn
	closed atomic.Bool
}

var _ session.Conn = (*conn)(nil)

func (c *conn) Open() bool {
	return !c.closed.Load()
}

func (c *conn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.Load() {
		return errors.New("ws: connection closed")
	}
	if err := c.ws.WriteJSON(v); err != nil {
		c.closed.Store(true)
		return err
	}
	return nil
}

func (c *conn) Close() error {
	c.closed.Store(true)
	return c.ws.Close()
}

// MakeHandler returns an HTTP handler for the /ws endpoint. The connection
// starts unauthenticated; all protocol state lives in the relay engine. The
// read loop delivers text frames in arrival order and silently drops binary
// frames.
func MakeHandler(engine *relay.Engine, allowedOrigins []string, log zerolog.Logger) http.HandlerFunc {
	checkOrigin := makeCheckOrigin(allowedOrigins)
	upgrader := websocket.Upgrader{
		CheckOrigin: checkOrigin,
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if !checkOrigin(r) {
			http.Error(w, "origin not allowed", http.StatusForbidden)
			return
		}

		wsc, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		handle := &conn{ws: wsc}
		rc := engine.NewConnection(r.RemoteAddr, handle)
		defer func() {
			rc.Closed()
			handle.Close()
		}()

		ctx := r.Context()
		for {
			mt, data, err := wsc.ReadMessage()
			if err != nil {
				break
			}
			if mt != websocket.TextMessage {
				// Binary frames are rejected with no reply.
				continue
			}
			if err := rc.HandleFrame(ctx, data); err != nil {
				if !errors.Is(err, relay.ErrCloseConnection) {
					log.Error().Err(err).Str("addr", r.RemoteAddr).Msg("ws: frame handling failed")
				}
				break
			}
		}
	}
}
