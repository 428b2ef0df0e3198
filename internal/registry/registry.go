// Package registry tracks live connections for one coordinator
// instance. It is process-private: the shared store, not the registry,
// is the cross-instance source of truth.
package registry

import (
	"sync"
	"time"

	"github.com/wearlink/coordinator/internal/auth"
	"github.com/wearlink/coordinator/internal/models"
)

// Conn is the transport handle the registry keys on. Implementations
// must be safe for concurrent sends.
type Conn interface {
	SendMessage(msg models.ServerMessage) error
	SendEvent(ev models.Event) error
}

// Entry is one live connection and its admitted identity.
type Entry struct {
	Conn        Conn
	UserID      string
	DeviceID    string
	DeviceName  string
	ConnectedAt time.Time

	IsStreaming bool
	SessionID   string
}

// Registry maps connections to identities. OnUnregister, when set, runs
// after an entry is removed; it is the hook that tears down store state
// and open sessions on transport close.
type Registry struct {
	mu       sync.RWMutex
	byConn   map[Conn]*Entry
	byDevice map[string]*Entry

	OnUnregister func(Entry)
}

func New() *Registry {
	return &Registry{
		byConn:   make(map[Conn]*Entry),
		byDevice: make(map[string]*Entry),
	}
}

// Register records a connection post-auth. Re-registering the same
// connection updates the identity in place.
func (r *Registry) Register(c Conn, ident auth.Identity) *Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.byConn[c]; ok {
		delete(r.byDevice, e.DeviceID)
		e.UserID = ident.UserID
		e.DeviceID = ident.DeviceID
		e.DeviceName = ident.DeviceName
		r.byDevice[e.DeviceID] = e
		return e
	}

	e := &Entry{
		Conn:        c,
		UserID:      ident.UserID,
		DeviceID:    ident.DeviceID,
		DeviceName:  ident.DeviceName,
		ConnectedAt: time.Now().UTC(),
	}
	r.byConn[c] = e
	r.byDevice[e.DeviceID] = e
	return e
}

// Unregister removes a connection and fires OnUnregister with a copy of
// the removed entry. Unknown connections are a no-op.
func (r *Registry) Unregister(c Conn) (Entry, bool) {
	r.mu.Lock()
	e, ok := r.byConn[c]
	if !ok {
		r.mu.Unlock()
		return Entry{}, false
	}
	delete(r.byConn, c)
	if r.byDevice[e.DeviceID] == e {
		delete(r.byDevice, e.DeviceID)
	}
	removed := *e
	hook := r.OnUnregister
	r.mu.Unlock()

	if hook != nil {
		hook(removed)
	}
	return removed, true
}

// Lookup returns the entry for a connection.
func (r *Registry) Lookup(c Conn) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.byConn[c]; ok {
		return *e, true
	}
	return Entry{}, false
}

// ListByUser snapshots all live connections for one user.
func (r *Registry) ListByUser(userID string) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Entry
	for _, e := range r.byConn {
		if e.UserID == userID {
			out = append(out, *e)
		}
	}
	return out
}

// SetStreaming marks a device's connection as holding an open session.
func (r *Registry) SetStreaming(deviceID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.byDevice[deviceID]; ok {
		e.IsStreaming = true
		e.SessionID = sessionID
	}
}

// ClearStreaming drops a device's streaming flags.
func (r *Registry) ClearStreaming(deviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.byDevice[deviceID]; ok {
		e.IsStreaming = false
		e.SessionID = ""
	}
}

// Len reports the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}
