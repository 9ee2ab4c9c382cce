package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// AgentClient triggers the auto-reply agent for a freshly received message.
type AgentClient struct {
	url    string
	token  string
	client *http.Client
}

func NewAgentClient(url, token string, timeout time.Duration) *AgentClient {
	return &AgentClient{
		url:   url,
		token: token,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type AgentTrigger struct {
	ConversationID string `json:"conversationId"`
	Message        string `json:"message"`
	InstanceName   string `json:"instanceName"`
}

func (c *AgentClient) Trigger(ctx context.Context, t AgentTrigger) error {
	reqBody, err := json.Marshal(t)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("unexpected status code: %d body=%q", resp.StatusCode, string(body))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
