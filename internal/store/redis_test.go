package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wearlink/coordinator/internal/models"
	"github.com/wearlink/coordinator/internal/store"
	"github.com/wearlink/coordinator/internal/utils"
)

func newTestStore(t *testing.T) (*store.RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err, "failed to start miniredis")
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return store.NewRedisStore(client,
		store.WithDeviceTTL(24*time.Hour),
		store.WithSessionTTL(time.Hour),
	), mr
}

func deviceFixture(deviceID, userID string) *models.DeviceSession {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &models.DeviceSession{
		DeviceID:    deviceID,
		UserID:      userID,
		DeviceName:  "Pendant",
		ConnectedAt: now,
		LastSeen:    now,
		IsActive:    true,
	}
}

func streamFixture(sessionID, deviceID, userID string) *models.StreamingSession {
	return &models.StreamingSession{
		SessionID: sessionID,
		DeviceID:  deviceID,
		UserID:    userID,
		StartTime: time.Now().UTC().Truncate(time.Millisecond),
		IsActive:  true,
		Status:    models.StatusActive,
		ToolsUsed: []string{},
	}
}

func TestDeviceSessionRoundtrip(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	ds := deviceFixture("d1", "u1")
	require.NoError(t, st.SetDeviceSession(ctx, ds))

	got, err := st.GetDeviceSession(ctx, "d1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "d1", got.DeviceID)
	assert.Equal(t, "u1", got.UserID)
	assert.True(t, got.IsActive)
	assert.False(t, got.IsStreaming)
	assert.Nil(t, got.CurrentSessionID)
}

func TestDeviceSessionMissReturnsNil(t *testing.T) {
	st, _ := newTestStore(t)

	got, err := st.GetDeviceSession(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDeviceSessionTTLExpiry(t *testing.T) {
	st, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.SetDeviceSession(ctx, deviceFixture("d1", "u1")))

	got, err := st.GetDeviceSession(ctx, "d1")
	require.NoError(t, err)
	require.NotNil(t, got, "retrievable immediately after write")

	mr.FastForward(24*time.Hour + time.Minute)

	got, err = st.GetDeviceSession(ctx, "d1")
	require.NoError(t, err)
	assert.Nil(t, got, "absent after TTL elapses")
}

func TestDeviceSessionTTLRefreshedOnWrite(t *testing.T) {
	st, mr := newTestStore(t)
	ctx := context.Background()

	ds := deviceFixture("d1", "u1")
	require.NoError(t, st.SetDeviceSession(ctx, ds))

	mr.FastForward(23 * time.Hour)
	require.NoError(t, st.SetDeviceSession(ctx, ds)) // heartbeat path

	mr.FastForward(2 * time.Hour)
	got, err := st.GetDeviceSession(ctx, "d1")
	require.NoError(t, err)
	assert.NotNil(t, got, "write should have reset the sliding TTL")
}

func TestRemoveDeviceSession(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.SetDeviceSession(ctx, deviceFixture("d1", "u1")))
	require.NoError(t, st.RemoveDeviceSession(ctx, "d1", "u1"))

	got, err := st.GetDeviceSession(ctx, "d1")
	require.NoError(t, err)
	assert.Nil(t, got)

	devices, err := st.GetUserDevices(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, devices, "index entry should be gone too")
}

func TestGetUserDevices(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.SetDeviceSession(ctx, deviceFixture("d1", "u1")))
	require.NoError(t, st.SetDeviceSession(ctx, deviceFixture("d2", "u1")))
	require.NoError(t, st.SetDeviceSession(ctx, deviceFixture("d3", "u2")))

	devices, err := st.GetUserDevices(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, devices, 2)

	ids := []string{devices[0].DeviceID, devices[1].DeviceID}
	assert.ElementsMatch(t, []string{"d1", "d2"}, ids)
}

func TestGetUserDevicesPrunesStaleIndexEntries(t *testing.T) {
	st, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.SetDeviceSession(ctx, deviceFixture("d1", "u1")))

	// expire the device record but not the set
	mr.Del("wearlink:device:d1")

	devices, err := st.GetUserDevices(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, devices)

	if mr.Exists("wearlink:userdev:u1") {
		member, err := mr.SIsMember("wearlink:userdev:u1", "d1")
		require.NoError(t, err)
		assert.False(t, member, "stale index entry should be pruned")
	}
}

func TestStreamingSessionRoundtrip(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	ss := streamFixture("s1", "d1", "u1")
	require.NoError(t, st.SetStreamingSession(ctx, ss))

	got, err := st.GetStreamingSession(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.StatusActive, got.Status)
	assert.True(t, got.IsActive)
	assert.Nil(t, got.EndTime)
}

func TestUpdateStreamingSessionMergesFields(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	ss := streamFixture("s1", "d1", "u1")
	transcript := "hello there"
	ss.Transcription = &transcript
	require.NoError(t, st.SetStreamingSession(ctx, ss))

	status := models.StatusProcessing
	active := false
	got, err := st.UpdateStreamingSession(ctx, "s1", store.SessionUpdate{
		Status:   &status,
		IsActive: &active,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, got.Status)
	assert.False(t, got.IsActive)

	// unrelated fields survive
	require.NotNil(t, got.Transcription)
	assert.Equal(t, "hello there", *got.Transcription)
	assert.Equal(t, "d1", got.DeviceID)
}

func TestUpdateStreamingSessionUnknownID(t *testing.T) {
	st, _ := newTestStore(t)

	status := models.StatusFailed
	_, err := st.UpdateStreamingSession(context.Background(), "ghost", store.SessionUpdate{Status: &status})
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.CodeNotFound))
}

func TestStreamingSessionTTLIsAbsolute(t *testing.T) {
	st, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.SetStreamingSession(ctx, streamFixture("s1", "d1", "u1")))

	// updates must not extend the creation-time expiry
	mr.FastForward(55 * time.Minute)
	count := 7
	_, err := st.UpdateStreamingSession(ctx, "s1", store.SessionUpdate{AudioChunkCount: &count})
	require.NoError(t, err)

	mr.FastForward(10 * time.Minute)
	got, err := st.GetStreamingSession(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, got, "session should expire 1h after creation regardless of activity")
}

func TestHealthCheck(t *testing.T) {
	st, mr := newTestStore(t)

	require.NoError(t, st.HealthCheck(context.Background()))

	mr.Close()
	err := st.HealthCheck(context.Background())
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.CodeUnavailable))
}
