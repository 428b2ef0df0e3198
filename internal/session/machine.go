package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/wearlink/coordinator/internal/auth"
	"github.com/wearlink/coordinator/internal/hub"
	"github.com/wearlink/coordinator/internal/metrics"
	"github.com/wearlink/coordinator/internal/models"
	"github.com/wearlink/coordinator/internal/providers/conversation"
	"github.com/wearlink/coordinator/internal/registry"
	"github.com/wearlink/coordinator/internal/store"
	"github.com/wearlink/coordinator/internal/utils"
)

// ConversationResult is the optional payload a conversation_ended event
// can attach (provider callbacks include it, device relays do not).
type ConversationResult struct {
	Transcription    *string
	AIResponse       *string
	ToolsUsed        []string
	ProcessingTimeMS *int64
}

// Machine owns the per-device session lifecycle. All events for one
// device serialize on that device's slot, so a rapid double press can
// never allocate two concurrent sessions. Store failures are logged
// and never crash a connection handler; the slot is the in-process
// authority when the store is degraded.
type Machine struct {
	store    store.Store
	provider conversation.Provider
	hub      *hub.Hub
	reg      *registry.Registry
	log      *logrus.Entry
	met      *metrics.Metrics

	providerTimeout time.Duration
	now             func() time.Time

	mu      sync.Mutex
	devices map[string]*deviceSlot
}

// deviceSlot holds the single non-terminal session for one device.
type deviceSlot struct {
	mu      sync.Mutex
	current *models.StreamingSession
}

type Option func(*Machine)

func WithProviderTimeout(d time.Duration) Option {
	return func(m *Machine) { m.providerTimeout = d }
}

// WithClock replaces the time source in tests.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

func NewMachine(st store.Store, p conversation.Provider, h *hub.Hub, reg *registry.Registry, log *logrus.Entry, met *metrics.Metrics, opts ...Option) *Machine {
	m := &Machine{
		store:           st,
		provider:        p,
		hub:             h,
		reg:             reg,
		log:             log,
		met:             met,
		providerTimeout: 8 * time.Second,
		now:             func() time.Time { return time.Now().UTC() },
		devices:         make(map[string]*deviceSlot),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Machine) slot(deviceID string) *deviceSlot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.devices[deviceID]
	if !ok {
		s = &deviceSlot{}
		m.devices[deviceID] = s
	}
	return s
}

// Connect persists the DeviceSession for an admitted device and
// announces it to the user's other clients.
func (m *Machine) Connect(ctx context.Context, ident auth.Identity) *models.DeviceSession {
	now := m.now()
	ds := &models.DeviceSession{
		DeviceID:    ident.DeviceID,
		UserID:      ident.UserID,
		DeviceName:  ident.DeviceName,
		ConnectedAt: now,
		LastSeen:    now,
		IsActive:    true,
	}
	if err := m.store.SetDeviceSession(ctx, ds); err != nil {
		m.log.WithError(err).WithField("device_id", ident.DeviceID).Warn("device session write failed")
	}

	m.hub.Broadcast(ident.UserID, ident.DeviceID, models.Event{
		Type:       models.EventDeviceConnected,
		DeviceID:   ident.DeviceID,
		DeviceName: ident.DeviceName,
		Timestamp:  now,
	})
	return ds
}

// Press allocates a fresh session and asks the provider for its start
// configuration. A press while a non-terminal session exists is
// rejected with PROTOCOL_VIOLATION; the open session is untouched.
func (m *Machine) Press(ctx context.Context, ident auth.Identity) (*models.StreamingSession, *conversation.StartResult, error) {
	const op = "Machine.Press"

	slot := m.slot(ident.DeviceID)
	slot.mu.Lock()
	defer slot.mu.Unlock()

	if slot.current != nil && !slot.current.Status.Terminal() {
		return nil, nil, utils.E(utils.CodeProtocolViolation, op, "a streaming session is already open for this device", nil)
	}

	sessionID := uuid.NewString()
	now := m.now()

	pctx, cancel := context.WithTimeout(ctx, m.providerTimeout)
	defer cancel()
	res, err := m.provider.StartConversation(pctx, conversation.StartRequest{
		UserID:    ident.UserID,
		DeviceID:  ident.DeviceID,
		SessionID: sessionID,
		Metadata:  map[string]string{"device_name": ident.DeviceName},
	})
	if err != nil {
		m.met.ProviderErrors.Inc()
		m.log.WithError(err).WithField("device_id", ident.DeviceID).Warn("provider start failed")
		m.hub.Broadcast(ident.UserID, ident.DeviceID, models.Event{
			Type:       models.EventProcessingError,
			DeviceID:   ident.DeviceID,
			DeviceName: ident.DeviceName,
			Timestamp:  now,
			Error:      "failed to start conversation",
		})
		// nothing persisted: the device stays Idle
		return nil, nil, utils.E(utils.CodeProviderError, op, "failed to start conversation", err)
	}

	ss := &models.StreamingSession{
		SessionID: sessionID,
		DeviceID:  ident.DeviceID,
		UserID:    ident.UserID,
		StartTime: now,
		IsActive:  true,
		Status:    models.StatusActive,
		ToolsUsed: []string{},
	}
	slot.current = ss

	if err := m.store.SetStreamingSession(ctx, ss); err != nil {
		m.log.WithError(err).WithField("session_id", sessionID).Warn("streaming session write failed")
	}
	m.writeDeviceStreaming(ctx, ident, &sessionID)
	m.reg.SetStreaming(ident.DeviceID, sessionID)

	m.met.SessionsStarted.Inc()
	m.hub.Broadcast(ident.UserID, ident.DeviceID, models.Event{
		Type:       models.EventStreamStarted,
		DeviceID:   ident.DeviceID,
		DeviceName: ident.DeviceName,
		SessionID:  sessionID,
		Timestamp:  now,
	})
	return ss, res, nil
}

// Release closes the device side of the stream. The session moves to
// processing until the provider confirms the conversation ended.
func (m *Machine) Release(ctx context.Context, ident auth.Identity) (*models.StreamingSession, error) {
	const op = "Machine.Release"

	slot := m.slot(ident.DeviceID)
	slot.mu.Lock()
	defer slot.mu.Unlock()

	cur := slot.current
	if cur == nil || cur.Status != models.StatusActive {
		return nil, utils.E(utils.CodeProtocolViolation, op, "no active streaming session to release", nil)
	}

	cur.IsActive = false
	cur.Status = models.StatusProcessing

	pctx, cancel := context.WithTimeout(ctx, m.providerTimeout)
	if err := m.provider.EndConversation(pctx, cur.SessionID); err != nil {
		m.met.ProviderErrors.Inc()
		m.log.WithError(err).WithField("session_id", cur.SessionID).Warn("provider end failed")
	}
	cancel()

	m.updateSession(ctx, cur.SessionID, store.SessionUpdate{
		IsActive: ptr(false),
		Status:   ptr(models.StatusProcessing),
	})
	m.writeDeviceStreaming(ctx, ident, nil)
	m.reg.ClearStreaming(ident.DeviceID)

	m.hub.Broadcast(ident.UserID, ident.DeviceID, models.Event{
		Type:       models.EventStreamStopped,
		DeviceID:   ident.DeviceID,
		DeviceName: ident.DeviceName,
		SessionID:  cur.SessionID,
		Timestamp:  m.now(),
	})
	return cur, nil
}

// ConversationStarted attaches the provider's conversation id once the
// provider-side stream is live.
func (m *Machine) ConversationStarted(ctx context.Context, sessionID, conversationID string) error {
	const op = "Machine.ConversationStarted"

	slot, ok := m.findSession(sessionID)
	if !ok {
		return utils.E(utils.CodeNotFound, op, "unknown session", nil)
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()

	cur := slot.current
	if cur == nil || cur.SessionID != sessionID || cur.Status.Terminal() {
		return utils.E(utils.CodeNotFound, op, "session no longer open", nil)
	}

	cur.ExternalConversationID = &conversationID
	m.updateSession(ctx, sessionID, store.SessionUpdate{
		ExternalConversationID: &conversationID,
	})

	m.hub.Broadcast(cur.UserID, cur.DeviceID, models.Event{
		Type:      models.EventConversationActive,
		DeviceID:  cur.DeviceID,
		SessionID: sessionID,
		Timestamp: m.now(),
	})
	return nil
}

// ConversationEnded finalizes the session as completed. Duplicate or
// late end-events for an already-terminal session are no-ops.
func (m *Machine) ConversationEnded(ctx context.Context, sessionID, conversationID string, result *ConversationResult) error {
	slot, ok := m.findSession(sessionID)
	if !ok {
		return nil
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()

	cur := slot.current
	if cur == nil || cur.SessionID != sessionID || cur.Status.Terminal() {
		return nil
	}

	now := m.now()
	cur.Status = models.StatusCompleted
	cur.IsActive = false
	cur.EndTime = &now
	if conversationID != "" && cur.ExternalConversationID == nil {
		cur.ExternalConversationID = &conversationID
	}

	upd := store.SessionUpdate{
		Status:                 ptr(models.StatusCompleted),
		IsActive:               ptr(false),
		EndTime:                &now,
		ExternalConversationID: cur.ExternalConversationID,
	}
	if result != nil {
		cur.Transcription = result.Transcription
		cur.AIResponse = result.AIResponse
		cur.ProcessingTimeMS = result.ProcessingTimeMS
		if result.ToolsUsed != nil {
			cur.ToolsUsed = result.ToolsUsed
		}
		upd.Transcription = result.Transcription
		upd.AIResponse = result.AIResponse
		upd.ProcessingTimeMS = result.ProcessingTimeMS
		upd.ToolsUsed = result.ToolsUsed
	}
	m.updateSession(ctx, sessionID, upd)
	m.clearDeviceStreaming(ctx, cur.DeviceID, sessionID)
	m.reg.ClearStreaming(cur.DeviceID)
	slot.current = nil

	m.met.SessionsCompleted.Inc()
	m.met.SessionDuration.Observe(now.Sub(cur.StartTime).Seconds())
	m.hub.Broadcast(cur.UserID, cur.DeviceID, models.Event{
		Type:      models.EventConversationEnded,
		DeviceID:  cur.DeviceID,
		SessionID: sessionID,
		Timestamp: now,
	})
	return nil
}

// Fail forces a non-terminal session to failed. Calling it twice for
// the same session id is a no-op the second time.
func (m *Machine) Fail(ctx context.Context, sessionID, reason string) {
	slot, ok := m.findSession(sessionID)
	if !ok {
		return
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()

	cur := slot.current
	if cur == nil || cur.SessionID != sessionID || cur.Status.Terminal() {
		return
	}

	now := m.now()
	cur.Status = models.StatusFailed
	cur.IsActive = false
	cur.EndTime = &now
	cur.Error = &reason

	m.updateSession(ctx, sessionID, store.SessionUpdate{
		Status:   ptr(models.StatusFailed),
		IsActive: ptr(false),
		EndTime:  &now,
		Error:    &reason,
	})
	m.clearDeviceStreaming(ctx, cur.DeviceID, sessionID)
	m.reg.ClearStreaming(cur.DeviceID)
	slot.current = nil

	m.met.SessionsFailed.Inc()
	m.met.SessionDuration.Observe(now.Sub(cur.StartTime).Seconds())
	m.hub.Broadcast(cur.UserID, cur.DeviceID, models.Event{
		Type:      models.EventDeviceError,
		DeviceID:  cur.DeviceID,
		SessionID: sessionID,
		Timestamp: now,
		Error:     reason,
	})
}

// Disconnect handles transport close: any open session fails with
// reason "disconnected" and the DeviceSession leaves the store.
func (m *Machine) Disconnect(ctx context.Context, entry registry.Entry) {
	if id, ok := m.openSessionID(entry.DeviceID); ok {
		m.Fail(ctx, id, "disconnected")
	}

	if err := m.store.RemoveDeviceSession(ctx, entry.DeviceID, entry.UserID); err != nil {
		m.log.WithError(err).WithField("device_id", entry.DeviceID).Warn("device session removal failed")
	}

	m.hub.Broadcast(entry.UserID, entry.DeviceID, models.Event{
		Type:       models.EventDeviceDisconnected,
		DeviceID:   entry.DeviceID,
		DeviceName: entry.DeviceName,
		Timestamp:  m.now(),
	})
}

// Heartbeat refreshes the DeviceSession TTL and merges any device
// vitals the heartbeat carried.
func (m *Machine) Heartbeat(ctx context.Context, ident auth.Identity, battery *int, firmware string) {
	slot := m.slot(ident.DeviceID)
	slot.mu.Lock()
	defer slot.mu.Unlock()

	now := m.now()
	ds, err := m.store.GetDeviceSession(ctx, ident.DeviceID)
	if err != nil {
		m.log.WithError(err).WithField("device_id", ident.DeviceID).Warn("heartbeat read failed")
		return
	}
	if ds == nil {
		ds = &models.DeviceSession{
			DeviceID:    ident.DeviceID,
			UserID:      ident.UserID,
			DeviceName:  ident.DeviceName,
			ConnectedAt: now,
			IsActive:    true,
		}
		if cur := slot.current; cur != nil && !cur.Status.Terminal() {
			ds.StartStreaming(cur.SessionID)
		}
	}
	ds.LastSeen = now
	if battery != nil {
		ds.BatteryLevel = battery
	}
	if firmware != "" {
		ds.FirmwareVersion = &firmware
	}
	if err := m.store.SetDeviceSession(ctx, ds); err != nil {
		m.log.WithError(err).WithField("device_id", ident.DeviceID).Warn("heartbeat write failed")
	}
}

// Sweep force-terminates sessions older than ceiling. The provider end
// call is best-effort; errors are logged, never raised.
func (m *Machine) Sweep(ctx context.Context, ceiling time.Duration) int {
	now := m.now()
	reaped := 0
	for _, id := range m.expiredSessions(now, ceiling) {
		pctx, cancel := context.WithTimeout(ctx, m.providerTimeout)
		if err := m.provider.EndConversation(pctx, id); err != nil {
			m.log.WithError(err).WithField("session_id", id).Warn("sweeper provider end failed")
		}
		cancel()

		m.Fail(ctx, id, "timeout")
		m.met.SweeperReaped.Inc()
		reaped++
	}
	return reaped
}

// Shutdown fails out every open session before the process exits.
func (m *Machine) Shutdown(ctx context.Context) {
	for _, id := range m.expiredSessions(m.now(), 0) {
		pctx, cancel := context.WithTimeout(ctx, m.providerTimeout)
		_ = m.provider.EndConversation(pctx, id)
		cancel()
		m.Fail(ctx, id, "shutdown")
	}
}

// OnUnregister adapts Disconnect to the registry hook.
func (m *Machine) OnUnregister(entry registry.Entry) {
	m.Disconnect(context.Background(), entry)
}

func (m *Machine) findSession(sessionID string) (*deviceSlot, bool) {
	for _, slot := range m.snapshotSlots() {
		slot.mu.Lock()
		match := slot.current != nil && slot.current.SessionID == sessionID
		slot.mu.Unlock()
		if match {
			return slot, true
		}
	}
	return nil, false
}

func (m *Machine) openSessionID(deviceID string) (string, bool) {
	slot := m.slot(deviceID)
	slot.mu.Lock()
	defer slot.mu.Unlock()
	if slot.current != nil && !slot.current.Status.Terminal() {
		return slot.current.SessionID, true
	}
	return "", false
}

// expiredSessions lists non-terminal sessions whose age exceeds
// ceiling. It scans only local tracking, never the store.
func (m *Machine) expiredSessions(now time.Time, ceiling time.Duration) []string {
	var out []string
	for _, slot := range m.snapshotSlots() {
		slot.mu.Lock()
		if cur := slot.current; cur != nil && !cur.Status.Terminal() && now.Sub(cur.StartTime) >= ceiling {
			out = append(out, cur.SessionID)
		}
		slot.mu.Unlock()
	}
	return out
}

func (m *Machine) snapshotSlots() []*deviceSlot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*deviceSlot, 0, len(m.devices))
	for _, s := range m.devices {
		out = append(out, s)
	}
	return out
}

func (m *Machine) updateSession(ctx context.Context, sessionID string, upd store.SessionUpdate) {
	if _, err := m.store.UpdateStreamingSession(ctx, sessionID, upd); err != nil {
		if utils.IsCode(err, utils.CodeNotFound) {
			// the store's absolute TTL evicted it; local state stands
			m.log.WithField("session_id", sessionID).Debug("streaming session expired in store")
			return
		}
		m.log.WithError(err).WithField("session_id", sessionID).Warn("streaming session update failed")
	}
}

// writeDeviceStreaming sets or clears the DeviceSession streaming pair.
func (m *Machine) writeDeviceStreaming(ctx context.Context, ident auth.Identity, sessionID *string) {
	ds, err := m.store.GetDeviceSession(ctx, ident.DeviceID)
	if err != nil {
		m.log.WithError(err).WithField("device_id", ident.DeviceID).Warn("device session read failed")
		return
	}
	if ds == nil {
		ds = &models.DeviceSession{
			DeviceID:    ident.DeviceID,
			UserID:      ident.UserID,
			DeviceName:  ident.DeviceName,
			ConnectedAt: m.now(),
			IsActive:    true,
		}
	}
	ds.LastSeen = m.now()
	if sessionID != nil {
		ds.StartStreaming(*sessionID)
	} else {
		ds.StopStreaming()
	}
	if err := m.store.SetDeviceSession(ctx, ds); err != nil {
		m.log.WithError(err).WithField("device_id", ident.DeviceID).Warn("device session write failed")
	}
}

// clearDeviceStreaming drops the streaming flags only if they still
// point at sessionID; a newer session's flags are left alone.
func (m *Machine) clearDeviceStreaming(ctx context.Context, deviceID, sessionID string) {
	ds, err := m.store.GetDeviceSession(ctx, deviceID)
	if err != nil || ds == nil {
		return
	}
	if ds.CurrentSessionID == nil || *ds.CurrentSessionID != sessionID {
		return
	}
	ds.StopStreaming()
	ds.LastSeen = m.now()
	if err := m.store.SetDeviceSession(ctx, ds); err != nil {
		m.log.WithError(err).WithField("device_id", deviceID).Warn("device session write failed")
	}
}

func ptr[T any](v T) *T { return &v }
