package models

import "time"

type SessionStatus string

const (
	StatusActive     SessionStatus = "active"
	StatusProcessing SessionStatus = "processing"
	StatusCompleted  SessionStatus = "completed"
	StatusFailed     SessionStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// StreamingSession is one voice interaction, press to finalization.
// SessionID is minted fresh per press and never reused.
type StreamingSession struct {
	SessionID string    `json:"session_id"` // uuid v4
	DeviceID  string    `json:"device_id"`
	UserID    string    `json:"user_id"`
	StartTime time.Time `json:"start_time"`
	IsActive  bool      `json:"is_active"`

	Status          SessionStatus `json:"status"`
	AudioChunkCount int           `json:"audio_chunk_count"`
	ToolsUsed       []string      `json:"tools_used"`

	EndTime                *time.Time `json:"end_time,omitempty"`
	Transcription          *string    `json:"transcription,omitempty"`
	AIResponse             *string    `json:"ai_response,omitempty"`
	ProcessingTimeMS       *int64     `json:"processing_time_ms,omitempty"`
	Error                  *string    `json:"error,omitempty"`
	ExternalConversationID *string    `json:"external_conversation_id,omitempty"`
}
