package conversation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/wearlink/coordinator/internal/utils"
)

// HTTPClient talks to a REST conversation provider. Every call carries
// the configured timeout so a hung provider cannot stall a device.
type HTTPClient struct {
	baseURL string
	apiKey  string
	agentID string
	client  *http.Client
}

type HTTPConfig struct {
	BaseURL string
	APIKey  string
	AgentID string
	Timeout time.Duration
}

func NewHTTPClient(cfg HTTPConfig) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("conversation provider base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid provider base URL %q: %w", cfg.BaseURL, err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	return &HTTPClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		agentID: cfg.AgentID,
		client:  &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (c *HTTPClient) StartConversation(ctx context.Context, req StartRequest) (*StartResult, error) {
	const op = "HTTPClient.StartConversation"

	body := struct {
		StartRequest
		AgentID string `json:"agent_id,omitempty"`
	}{StartRequest: req, AgentID: c.agentID}

	b, err := json.Marshal(body)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to marshal start request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/conversations", bytes.NewReader(b))
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to build request", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, utils.E(utils.CodeProviderError, op, "provider unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, utils.E(utils.CodeProviderError, op,
			fmt.Sprintf("provider returned status %d", resp.StatusCode), readErrBody(resp.Body))
	}

	var out StartResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, utils.E(utils.CodeProviderError, op, "invalid provider response", err)
	}
	if out.AgentID == "" {
		out.AgentID = c.agentID
	}
	return &out, nil
}

func (c *HTTPClient) EndConversation(ctx context.Context, sessionID string) error {
	const op = "HTTPClient.EndConversation"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		c.baseURL+"/conversations/"+url.PathEscape(sessionID), nil)
	if err != nil {
		return utils.E(utils.CodeInternal, op, "failed to build request", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return utils.E(utils.CodeProviderError, op, "provider unreachable", err)
	}
	defer resp.Body.Close()

	// 404 means the conversation is already gone; ending is idempotent.
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
		return utils.E(utils.CodeProviderError, op,
			fmt.Sprintf("provider returned status %d", resp.StatusCode), readErrBody(resp.Body))
	}
	return nil
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func readErrBody(r io.Reader) error {
	b, _ := io.ReadAll(io.LimitReader(r, 4<<10))
	if len(b) == 0 {
		return nil
	}
	return fmt.Errorf("%s", bytes.TrimSpace(b))
}
