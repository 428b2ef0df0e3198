package registry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wearlink/coordinator/internal/auth"
	"github.com/wearlink/coordinator/internal/models"
	"github.com/wearlink/coordinator/internal/registry"
)

type fakeConn struct {
	id string
}

func (f *fakeConn) SendMessage(models.ServerMessage) error { return nil }
func (f *fakeConn) SendEvent(models.Event) error           { return nil }

func ident(userID, deviceID string) auth.Identity {
	return auth.Identity{UserID: userID, DeviceID: deviceID, DeviceName: "Pendant " + deviceID}
}

func TestRegisterAndLookup(t *testing.T) {
	r := registry.New()
	c := &fakeConn{id: "c1"}

	r.Register(c, ident("u1", "d1"))

	e, ok := r.Lookup(c)
	require.True(t, ok)
	assert.Equal(t, "u1", e.UserID)
	assert.Equal(t, "d1", e.DeviceID)
	assert.Equal(t, 1, r.Len())
}

func TestRegisterIsIdempotent(t *testing.T) {
	r := registry.New()
	c := &fakeConn{id: "c1"}

	r.Register(c, ident("u1", "d1"))
	r.Register(c, ident("u1", "d1"))

	assert.Equal(t, 1, r.Len())
}

func TestListByUser(t *testing.T) {
	r := registry.New()
	r.Register(&fakeConn{id: "c1"}, ident("u1", "d1"))
	r.Register(&fakeConn{id: "c2"}, ident("u1", "d2"))
	r.Register(&fakeConn{id: "c3"}, ident("u2", "d3"))

	entries := r.ListByUser("u1")
	require.Len(t, entries, 2)

	assert.Empty(t, r.ListByUser("nobody"))
}

func TestUnregisterFiresHook(t *testing.T) {
	r := registry.New()
	c := &fakeConn{id: "c1"}

	var hooked []registry.Entry
	r.OnUnregister = func(e registry.Entry) { hooked = append(hooked, e) }

	r.Register(c, ident("u1", "d1"))
	removed, ok := r.Unregister(c)
	require.True(t, ok)
	assert.Equal(t, "d1", removed.DeviceID)

	require.Len(t, hooked, 1)
	assert.Equal(t, "d1", hooked[0].DeviceID)
	assert.Equal(t, 0, r.Len())

	// second unregister is a no-op and must not re-fire the hook
	_, ok = r.Unregister(c)
	assert.False(t, ok)
	assert.Len(t, hooked, 1)
}

func TestStreamingFlags(t *testing.T) {
	r := registry.New()
	c := &fakeConn{id: "c1"}
	r.Register(c, ident("u1", "d1"))

	r.SetStreaming("d1", "s1")
	e, _ := r.Lookup(c)
	assert.True(t, e.IsStreaming)
	assert.Equal(t, "s1", e.SessionID)

	r.ClearStreaming("d1")
	e, _ = r.Lookup(c)
	assert.False(t, e.IsStreaming)
	assert.Empty(t, e.SessionID)

	// unknown device is a no-op
	r.SetStreaming("ghost", "s2")
}
