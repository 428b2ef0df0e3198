package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wearlink/coordinator/internal/session"
	"github.com/wearlink/coordinator/internal/utils"
)

// CallbackHandler receives out-of-band provider webhooks. The same
// machine entry points serve events relayed over the device socket.
type CallbackHandler struct {
	machine *session.Machine
}

func NewCallbackHandler(m *session.Machine) *CallbackHandler {
	return &CallbackHandler{machine: m}
}

type conversationCallback struct {
	Event          string `json:"event" binding:"required"` // conversation_started|conversation_ended
	SessionID      string `json:"session_id" binding:"required"`
	ConversationID string `json:"conversation_id"`

	// conversation_ended payload
	Transcription    *string  `json:"transcription,omitempty"`
	AIResponse       *string  `json:"ai_response,omitempty"`
	ToolsUsed        []string `json:"tools_used,omitempty"`
	ProcessingTimeMS *int64   `json:"processing_time_ms,omitempty"`
}

func (h *CallbackHandler) Conversation(c *gin.Context) {
	var cb conversationCallback
	if err := c.ShouldBindJSON(&cb); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "CallbackHandler.Conversation", "invalid callback payload", err))
		return
	}

	ctx := c.Request.Context()
	switch cb.Event {
	case "conversation_started":
		if err := h.machine.ConversationStarted(ctx, cb.SessionID, cb.ConversationID); err != nil {
			writeError(c, err)
			return
		}
	case "conversation_ended":
		// idempotent: a duplicate end for a finished session is accepted
		_ = h.machine.ConversationEnded(ctx, cb.SessionID, cb.ConversationID, &session.ConversationResult{
			Transcription:    cb.Transcription,
			AIResponse:       cb.AIResponse,
			ToolsUsed:        cb.ToolsUsed,
			ProcessingTimeMS: cb.ProcessingTimeMS,
		})
	default:
		writeError(c, utils.E(utils.CodeInvalidArgument, "CallbackHandler.Conversation", "unknown callback event", nil))
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
