package models

import "time"

// DeviceSession is the durable record of one connected wearable.
// IsStreaming is true iff CurrentSessionID is set.
type DeviceSession struct {
	DeviceID    string    `json:"device_id"`
	UserID      string    `json:"user_id"`
	DeviceName  string    `json:"device_name"`
	ConnectedAt time.Time `json:"connected_at"`
	LastSeen    time.Time `json:"last_seen"`
	IsActive    bool      `json:"is_active"`
	IsStreaming bool      `json:"is_streaming"`

	CurrentSessionID *string `json:"current_session_id,omitempty"`
	BatteryLevel     *int    `json:"battery_level,omitempty"`
	FirmwareVersion  *string `json:"firmware_version,omitempty"`
}

// StartStreaming sets the streaming flags as a pair so the invariant
// cannot be half-applied.
func (d *DeviceSession) StartStreaming(sessionID string) {
	d.IsStreaming = true
	d.CurrentSessionID = &sessionID
}

func (d *DeviceSession) StopStreaming() {
	d.IsStreaming = false
	d.CurrentSessionID = nil
}
