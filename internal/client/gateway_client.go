package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/LeventeLantos/messaging-ingest/internal/gateway"
)

// GatewayClient talks to the messaging gateway's REST API.
type GatewayClient struct {
	baseURL string
	apiKey  string
	maxBody int64
	client  *http.Client
}

// NewGatewayClient bounds every call by timeout. maxMediaBytes limits the
// decoded media size; the encoded response may be a third larger.
func NewGatewayClient(baseURL, apiKey string, timeout time.Duration, maxMediaBytes int64) *GatewayClient {
	return &GatewayClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		maxBody: maxMediaBytes/3*4 + 4096,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type mediaRequest struct {
	Message      mediaMessage `json:"message"`
	ConvertToMp4 bool         `json:"convertToMp4"`
}

type mediaMessage struct {
	Key gateway.MessageKey `json:"key"`
}

// MediaPayload is the gateway's answer to a media download request.
type MediaPayload struct {
	Base64   string `json:"base64"`
	MimeType string `json:"mimetype"`
	FileName string `json:"fileName"`
}

func (c *GatewayClient) FetchMediaBase64(ctx context.Context, instance string, key gateway.MessageKey) (MediaPayload, error) {
	reqBody, err := json.Marshal(mediaRequest{Message: mediaMessage{Key: key}})
	if err != nil {
		return MediaPayload{}, err
	}

	endpoint := c.baseURL + "/chat/getBase64FromMediaMessage/" + url.PathEscape(instance)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return MediaPayload{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return MediaPayload{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return MediaPayload{}, err
	}
	if int64(len(body)) > c.maxBody {
		return MediaPayload{}, fmt.Errorf("media response exceeds %d bytes", c.maxBody)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return MediaPayload{}, fmt.Errorf("unexpected status code: %d body=%q", resp.StatusCode, truncate(body))
	}

	var mp MediaPayload
	if err := json.Unmarshal(body, &mp); err != nil {
		return MediaPayload{}, fmt.Errorf("failed to decode json: %w body=%q", err, truncate(body))
	}
	if mp.Base64 == "" {
		return MediaPayload{}, fmt.Errorf("missing base64 in response body=%q", truncate(body))
	}
	return mp, nil
}

func truncate(b []byte) string {
	const max = 512
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
