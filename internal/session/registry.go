package session

import (
	"sync"

	"supportbridge/internal/domain"
)

// Conn is the live connection handle through which frames are pushed to one
// user. Implemented by the websocket transport; tests inject fakes.
type Conn interface {
	// Open reports whether the underlying transport can still accept writes.
	Open() bool
	WriteJSON(v any) error
	Close() error
}

// DeliverResult is the outcome of a Deliver attempt.
type DeliverResult int

const (
	Delivered DeliverResult = iota
	// NotConnected: the user has no usable live connection. Offline delivery
	// is silently dropped; the store remains the source of truth.
	NotConnected
	// SendFailed: a connection existed but the transport write errored.
	SendFailed
)

// Registry tracks live connections: network address to user, user to address,
// and user to connection handle. In-memory, process lifetime, no persistence.
// At most one live connection is tracked per logical user.
type Registry struct {
	mu         sync.Mutex
	userByAddr map[string]domain.UserID
	addrByUser map[domain.UserID]string
	connByUser map[domain.UserID]Conn
}

func NewRegistry() *Registry {
	return &Registry{
		userByAddr: make(map[string]domain.UserID),
		addrByUser: make(map[domain.UserID]string),
		connByUser: make(map[domain.UserID]Conn),
	}
}

// Register inserts all three mappings, superseding any prior connection for
// the same address or the same user.
func (r *Registry) Register(addr string, userID domain.UserID, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.userByAddr[addr]; ok && prev != userID {
		r.removeUserLocked(prev)
	}
	if prevAddr, ok := r.addrByUser[userID]; ok && prevAddr != addr {
		delete(r.userByAddr, prevAddr)
	}
	r.userByAddr[addr] = userID
	r.addrByUser[userID] = addr
	r.connByUser[userID] = conn
}

// LookupByAddress returns the user registered for the given network address.
func (r *Registry) LookupByAddress(addr string) (domain.UserID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.userByAddr[addr]
	return userID, ok
}

// Deliver pushes payload to the user's live connection. No connection is not
// an error: the message stays durable in the store and the client catches up
// through a history fetch. A handle whose transport is no longer open is
// cleaned out of all three mappings as a side effect.
func (r *Registry) Deliver(userID domain.UserID, payload any) DeliverResult {
	r.mu.Lock()
	conn, ok := r.connByUser[userID]
	if !ok {
		r.mu.Unlock()
		return NotConnected
	}
	if !conn.Open() {
		r.removeUserLocked(userID)
		r.mu.Unlock()
		return NotConnected
	}
	r.mu.Unlock()

	if err := conn.WriteJSON(payload); err != nil {
		return SendFailed
	}
	return Delivered
}

// Unregister removes the address's user and that user's reverse mappings.
// Called on transport close or error.
func (r *Registry) Unregister(addr string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.userByAddr[addr]
	if !ok {
		return
	}
	delete(r.userByAddr, addr)
	delete(r.addrByUser, userID)
	delete(r.connByUser, userID)
}

// removeUserLocked drops every mapping for the user. Caller holds r.mu.
func (r *Registry) removeUserLocked(userID domain.UserID) {
	if addr, ok := r.addrByUser[userID]; ok {
		delete(r.userByAddr, addr)
	}
	delete(r.addrByUser, userID)
	delete(r.connByUser, userID)
}
