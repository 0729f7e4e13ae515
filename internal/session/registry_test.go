package session_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"supportbridge/internal/session"
)

// fakeConn records delivered payloads and can simulate a stale or failing
// transport.
type fakeConn struct {
	open     bool
	failSend bool
	payloads []any
}

func (c *fakeConn) Open() bool { return c.open }

func (c *fakeConn) WriteJSON(v any) error {
	if c.failSend {
		return errors.New("broken pipe")
	}
	c.payloads = append(c.payloads, v)
	return nil
}

func (c *fakeConn) Close() error {
	c.open = false
	return nil
}

func TestDeliverOfflineIsNoOp(t *testing.T) {
	r := session.NewRegistry()

	res := r.Deliver("nobody", map[string]any{"type": "server-message"})
	assert.Equal(t, session.NotConnected, res)
}

func TestDeliverSuccess(t *testing.T) {
	r := session.NewRegistry()
	conn := &fakeConn{open: true}
	r.Register("10.0.0.1:1234", "u1", conn)

	res := r.Deliver("u1", "payload")
	assert.Equal(t, session.Delivered, res)
	assert.Equal(t, []any{"payload"}, conn.payloads)
}

func TestDeliverStaleConnectionCleansUp(t *testing.T) {
	r := session.NewRegistry()
	conn := &fakeConn{open: false}
	r.Register("10.0.0.1:1234", "u1", conn)

	res := r.Deliver("u1", "payload")
	assert.Equal(t, session.NotConnected, res)

	// All three mappings are gone.
	_, ok := r.LookupByAddress("10.0.0.1:1234")
	assert.False(t, ok)
	assert.Equal(t, session.NotConnected, r.Deliver("u1", "again"))
}

func TestDeliverSendFailed(t *testing.T) {
	r := session.NewRegistry()
	conn := &fakeConn{open: true, failSend: true}
	r.Register("10.0.0.1:1234", "u1", conn)

	assert.Equal(t, session.SendFailed, r.Deliver("u1", "payload"))
}

func TestRegisterSupersedesPriorConnection(t *testing.T) {
	r := session.NewRegistry()
	old := &fakeConn{open: true}
	r.Register("10.0.0.1:1111", "u1", old)

	// Same user reconnects from a new address.
	fresh := &fakeConn{open: true}
	r.Register("10.0.0.1:2222", "u1", fresh)

	_, ok := r.LookupByAddress("10.0.0.1:1111")
	assert.False(t, ok)

	userID, ok := r.LookupByAddress("10.0.0.1:2222")
	assert.True(t, ok)
	assert.Equal(t, "u1", userID.String())

	assert.Equal(t, session.Delivered, r.Deliver("u1", "hello"))
	assert.Empty(t, old.payloads)
	assert.Equal(t, []any{"hello"}, fresh.payloads)
}

func TestRegisterSupersedesPriorUserOnAddress(t *testing.T) {
	r := session.NewRegistry()
	r.Register("10.0.0.1:1111", "u1", &fakeConn{open: true})
	r.Register("10.0.0.1:1111", "u2", &fakeConn{open: true})

	userID, ok := r.LookupByAddress("10.0.0.1:1111")
	assert.True(t, ok)
	assert.Equal(t, "u2", userID.String())
	assert.Equal(t, session.NotConnected, r.Deliver("u1", "gone"))
}

func TestUnregister(t *testing.T) {
	r := session.NewRegistry()
	r.Register("10.0.0.1:1234", "u1", &fakeConn{open: true})

	r.Unregister("10.0.0.1:1234")

	_, ok := r.LookupByAddress("10.0.0.1:1234")
	assert.False(t, ok)
	assert.Equal(t, session.NotConnected, r.Deliver("u1", "payload"))

	// Unknown address is fine.
	r.Unregister("10.9.9.9:1")
}
