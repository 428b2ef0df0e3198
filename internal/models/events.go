package models

import (
	"time"

	"github.com/wearlink/coordinator/internal/utils"
)

// Inbound message types (device -> coordinator).
const (
	MsgConnect             = "connect"
	MsgButtonPress         = "button_press"
	MsgConversationStarted = "conversation_started"
	MsgConversationEnded   = "conversation_ended"
	MsgHeartbeat           = "heartbeat"
	MsgDisconnect          = "disconnect"
)

// Button actions carried by button_press.
const (
	ActionPress   = "press"
	ActionRelease = "release"
)

// ClientMessage is the tagged envelope for everything a device sends.
// Only the fields matching Type are read; the rest stay zero.
type ClientMessage struct {
	Type string `json:"type"`

	// connect
	UserID     string `json:"user_id,omitempty"`
	DeviceID   string `json:"device_id,omitempty"`
	DeviceName string `json:"device_name,omitempty"`
	Credential string `json:"credential,omitempty"`

	// button_press
	Action    string `json:"action,omitempty"` // press|release
	Timestamp int64  `json:"timestamp,omitempty"`

	// conversation_started / conversation_ended
	ConversationID string `json:"conversation_id,omitempty"`
	SessionID      string `json:"session_id,omitempty"`

	// heartbeat
	BatteryLevel    *int   `json:"battery_level,omitempty"`
	FirmwareVersion string `json:"firmware_version,omitempty"`

	// disconnect
	Reason string `json:"reason,omitempty"`
}

// Outbound message types (coordinator -> device).
const (
	MsgConnectionConfirmed = "connection_confirmed"
	MsgProviderConfig      = "provider_config"
	MsgStreamStarted       = "stream_started"
	MsgStreamStopped       = "stream_stopped"
	MsgStreamError         = "stream_error"
)

// ProviderConfig carries everything the device needs to open its audio
// stream directly against the conversation provider.
type ProviderConfig struct {
	AgentID            string            `json:"agent_id,omitempty"`
	ConnectionParams   map[string]string `json:"connection_params,omitempty"`
	IdentityVariables  map[string]string `json:"identity_variables,omitempty"`
	ConversationConfig map[string]any    `json:"conversation_config,omitempty"`
}

type ServerMessage struct {
	Type      string `json:"type"`
	DeviceID  string `json:"device_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`

	StreamType string          `json:"stream_type,omitempty"` // stream_started
	Provider   *ProviderConfig `json:"provider,omitempty"`    // provider_config

	Code  utils.Code `json:"code,omitempty"` // stream_error
	Error string     `json:"error,omitempty"`
}

type EventType string

// Per-user fan-out events.
const (
	EventDeviceConnected    EventType = "device_connected"
	EventDeviceDisconnected EventType = "device_disconnected"
	EventStreamStarted      EventType = "stream_started"
	EventStreamStopped      EventType = "stream_stopped"
	EventConversationActive EventType = "conversation_active"
	EventConversationEnded  EventType = "conversation_ended"
	EventProcessingError    EventType = "processing_error"
	EventDeviceError        EventType = "device_error"
)

// Event is broadcast to a user's other connected clients. Delivery is
// best-effort, at-most-once.
type Event struct {
	Type       EventType `json:"type"`
	DeviceID   string    `json:"device_id"`
	DeviceName string    `json:"device_name"`
	SessionID  string    `json:"session_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Error      string    `json:"error,omitempty"`
}
