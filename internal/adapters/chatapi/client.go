package chatapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PabloGalante/deal-assistant/internal/domain"
)

// Client exchanges delegated chat messages with a remote deal-chat endpoint.
type Client struct {
	URL        string
	Token      string
	HTTPClient *http.Client
}

func NewClient(url string, opts ...func(*Client)) *Client {
	c := &Client{
		URL:        url,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func WithToken(token string) func(*Client) {
	return func(c *Client) {
		c.Token = strings.TrimSpace(token)
	}
}

func WithTimeout(d time.Duration) func(*Client) {
	return func(c *Client) {
		if d > 0 {
			c.HTTPClient.Timeout = d
		}
	}
}

// Request is the body of one exchange. A nil State is sent as JSON null.
type Request struct {
	Message string          `json:"message"`
	State   json.RawMessage `json:"state"`
}

// Response is what the endpoint answers.
type Response struct {
	AssistantMessage string          `json:"assistantMessage"`
	State            json.RawMessage `json:"state"`
}

func (c *Client) Exchange(ctx context.Context, message string, state json.RawMessage) (*domain.ChatReply, error) {
	if len(state) == 0 {
		state = json.RawMessage("null")
	}
	body, err := json.Marshal(Request{Message: message, State: state})
	if err != nil {
		return nil, fmt.Errorf("chatapi: encode: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chatapi: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("chatapi: non-2xx: %d: %s", resp.StatusCode, string(excerpt))
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("chatapi: decode: %w", err)
	}
	return &domain.ChatReply{AssistantMessage: out.AssistantMessage, State: out.State}, nil
}
