package ws_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supportbridge/internal/domain"
	"supportbridge/internal/identity"
	"supportbridge/internal/relay"
	"supportbridge/internal/session"
	"supportbridge/internal/store/sqlite"
	"supportbridge/internal/ws"
)

const allowedOrigin = "http://widget.local"

// countingVerifier accepts every token and records how many verifications
// actually ran, so tests can tell a processed frame from a dropped one.
type countingVerifier struct {
	calls atomic.Int32
}

func (v *countingVerifier) Verify(ctx context.Context, accessToken string) (*identity.Identity, error) {
	v.calls.Add(1)
	return &identity.Identity{ID: "acct1", Name: "Ann", Email: "ann@x.com"}, nil
}

const verifiedUserID = domain.UserID("acct1-ann@x.com")

func newTestServer(t *testing.T) (*httptest.Server, *session.Registry, *countingVerifier) {
	t.Helper()
	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	require.NoError(t, sqlite.Migrate(db))
	t.Cleanup(func() { db.Close() })

	registry := session.NewRegistry()
	verifier := &countingVerifier{}
	engine := relay.NewEngine(relay.Options{
		Users:     sqlite.NewUserRepo(db),
		Threads:   sqlite.NewThreadRepo(db),
		Messages:  sqlite.NewMessageRepo(db),
		Reactions: sqlite.NewReactionRepo(db),
		Registry:  registry,
		Verifier:  verifier,
		Logger:    zerolog.Nop(),
	})

	srv := httptest.NewServer(ws.MakeHandler(engine, []string{allowedOrigin}, zerolog.Nop()))
	t.Cleanup(srv.Close)
	return srv, registry, verifier
}

func dial(srv *httptest.Server, origin string) (*websocket.Conn, *http.Response, error) {
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	return websocket.DefaultDialer.Dial(wsURL, header)
}

func TestUpgradeRejectsBadOrigin(t *testing.T) {
	srv, _, _ := newTestServer(t)

	cases := []struct {
		name   string
		origin string
	}{
		{"mismatched origin", "http://evil.local"},
		{"missing origin", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			conn, resp, err := dial(srv, tc.origin)
			require.Error(t, err)
			require.Nil(t, conn)
			require.NotNil(t, resp)
			assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		})
	}
}

func TestUpgradeNormalizesOriginCase(t *testing.T) {
	srv, _, _ := newTestServer(t)

	conn, _, err := dial(srv, "HTTP://Widget.Local")
	require.NoError(t, err)
	conn.Close()
}

func TestBinaryFramesDroppedSilently(t *testing.T) {
	srv, _, verifier := newTestServer(t)

	conn, _, err := dial(srv, allowedOrigin)
	require.NoError(t, err)
	defer conn.Close()

	auth := []byte(`{"type":"authenticate","accessToken":"tok"}`)

	// The binary frame must be dropped without a reply; the text frame behind
	// it must still be processed. Frames are handled in arrival order, so
	// receiving the thread list proves the binary frame was already skipped.
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, auth))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, auth))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var reply map[string]any
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "server-threads", reply["type"])
	assert.Equal(t, int32(1), verifier.calls.Load())
}

func TestCloseUnregistersSession(t *testing.T) {
	srv, registry, _ := newTestServer(t)

	conn, _, err := dial(srv, allowedOrigin)
	require.NoError(t, err)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"authenticate","accessToken":"tok"}`)))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var reply map[string]any
	require.NoError(t, conn.ReadJSON(&reply))

	got := registry.Deliver(verifiedUserID, relay.ServerThreadsFrame{Type: "server-threads"})
	assert.Equal(t, session.Delivered, got)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool {
		return registry.Deliver(verifiedUserID, relay.ServerThreadsFrame{}) == session.NotConnected
	}, 2*time.Second, 20*time.Millisecond)
}
