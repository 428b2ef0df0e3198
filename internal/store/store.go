package store

import (
	"context"
	"time"

	"github.com/wearlink/coordinator/internal/models"
)

// SessionUpdate is a field-level patch for a StreamingSession. Nil
// fields are left untouched so concurrent writers never clobber each
// other's unrelated fields.
type SessionUpdate struct {
	IsActive               *bool
	Status                 *models.SessionStatus
	EndTime                *time.Time
	AudioChunkCount        *int
	Transcription          *string
	AIResponse             *string
	ToolsUsed              []string // replaces when non-nil
	ProcessingTimeMS       *int64
	Error                  *string
	ExternalConversationID *string
}

// Store is the shared, TTL-bounded session store. It is the only
// resource mutated by multiple coordinator instances; every mutation is
// last-write-wins at the field level.
//
// Getters return (nil, nil) on a miss; callers must handle the absent
// case. In degraded mode every operation is a logged no-op.
type Store interface {
	SetDeviceSession(ctx context.Context, ds *models.DeviceSession) error
	GetDeviceSession(ctx context.Context, deviceID string) (*models.DeviceSession, error)
	RemoveDeviceSession(ctx context.Context, deviceID, userID string) error
	GetUserDevices(ctx context.Context, userID string) ([]*models.DeviceSession, error)

	SetStreamingSession(ctx context.Context, ss *models.StreamingSession) error
	GetStreamingSession(ctx context.Context, sessionID string) (*models.StreamingSession, error)
	UpdateStreamingSession(ctx context.Context, sessionID string, upd SessionUpdate) (*models.StreamingSession, error)

	HealthCheck(ctx context.Context) error
}

func (u SessionUpdate) apply(ss *models.StreamingSession) {
	if u.IsActive != nil {
		ss.IsActive = *u.IsActive
	}
	if u.Status != nil {
		ss.Status = *u.Status
	}
	if u.EndTime != nil {
		ss.EndTime = u.EndTime
	}
	if u.AudioChunkCount != nil {
		ss.AudioChunkCount = *u.AudioChunkCount
	}
	if u.Transcription != nil {
		ss.Transcription = u.Transcription
	}
	if u.AIResponse != nil {
		ss.AIResponse = u.AIResponse
	}
	if u.ToolsUsed != nil {
		ss.ToolsUsed = u.ToolsUsed
	}
	if u.ProcessingTimeMS != nil {
		ss.ProcessingTimeMS = u.ProcessingTimeMS
	}
	if u.Error != nil {
		ss.Error = u.Error
	}
	if u.ExternalConversationID != nil {
		ss.ExternalConversationID = u.ExternalConversationID
	}
}
