package conversation

import "context"

// StartRequest identifies who is opening a conversation.
type StartRequest struct {
	UserID    string            `json:"user_id"`
	DeviceID  string            `json:"device_id"`
	SessionID string            `json:"session_id"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// StartResult is the start-configuration the device needs to stream
// audio directly to the provider.
type StartResult struct {
	AgentID          string            `json:"agent_id"`
	ConnectionParams map[string]string `json:"connection_params"`
	Config           map[string]any    `json:"config,omitempty"`
}

// Provider is the external conversation service. Both calls can fail;
// failures are recoverable and never fatal to the process.
type Provider interface {
	StartConversation(ctx context.Context, req StartRequest) (*StartResult, error)
	EndConversation(ctx context.Context, sessionID string) error
}
