package conversation_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wearlink/coordinator/internal/providers/conversation"
	"github.com/wearlink/coordinator/internal/utils"
)

func newClient(t *testing.T, handler http.Handler) *conversation.HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := conversation.NewHTTPClient(conversation.HTTPConfig{
		BaseURL: srv.URL,
		APIKey:  "test-key",
		AgentID: "agent-default",
		Timeout: time.Second,
	})
	require.NoError(t, err)
	return c
}

func TestStartConversation(t *testing.T) {
	var gotAuth string
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/conversations", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "u1", body["user_id"])
		assert.Equal(t, "agent-default", body["agent_id"])

		_ = json.NewEncoder(w).Encode(conversation.StartResult{
			AgentID:          "agent-1",
			ConnectionParams: map[string]string{"ws_url": "wss://provider.example/stream"},
		})
	}))

	res, err := c.StartConversation(context.Background(), conversation.StartRequest{
		UserID:    "u1",
		DeviceID:  "d1",
		SessionID: "s1",
	})
	require.NoError(t, err)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "agent-1", res.AgentID)
	assert.Equal(t, "wss://provider.example/stream", res.ConnectionParams["ws_url"])
}

func TestStartConversationProviderError(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "agent overloaded", http.StatusServiceUnavailable)
	}))

	_, err := c.StartConversation(context.Background(), conversation.StartRequest{SessionID: "s1"})
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.CodeProviderError))
}

func TestEndConversation(t *testing.T) {
	var gotPath string
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))

	require.NoError(t, c.EndConversation(context.Background(), "s1"))
	assert.Equal(t, "/conversations/s1", gotPath)
}

func TestEndConversationNotFoundIsIdempotent(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))

	assert.NoError(t, c.EndConversation(context.Background(), "gone"))
}

func TestEndConversationUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	c, err := conversation.NewHTTPClient(conversation.HTTPConfig{BaseURL: srv.URL, Timeout: time.Second})
	require.NoError(t, err)
	srv.Close()

	err = c.EndConversation(context.Background(), "s1")
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.CodeProviderError))
}

func TestNewHTTPClientRequiresBaseURL(t *testing.T) {
	_, err := conversation.NewHTTPClient(conversation.HTTPConfig{})
	require.Error(t, err)
}
