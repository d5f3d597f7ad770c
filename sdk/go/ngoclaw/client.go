package ngoclaw

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is the Go SDK client for an EverMemoryArchive gateway. It submits
// text to one actor over HTTP and streams that actor's published events
// back over SSE.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new gateway SDK client.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 300 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Option configures the client.
type Option func(*Client)

// WithAPIKey sets the API key for authentication.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// SubmitRequest is one user input handed to an actor's Work queue.
type SubmitRequest struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

// Event is one event streamed from an actor's bus.
type Event struct {
	Event string                 `json:"event"`
	Data  map[string]interface{} `json:"data"`
}

// IsReply reports whether this event carries the actor's user-facing reply.
func (e *Event) IsReply() bool {
	return e.Event == "emaReplyReceived"
}

// ReplyText extracts the reply's response text, if this is a reply event.
func (e *Event) ReplyText() string {
	reply, ok := e.Data["Reply"].(map[string]interface{})
	if !ok {
		return ""
	}
	text, _ := reply["response"].(string)
	return text
}

// Submit enqueues one input into actorID's Work queue.
func (c *Client) Submit(ctx context.Context, actorID string, req SubmitRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/v1/actors/"+actorID+"/messages", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// Stream opens the actor's event stream; the returned channel is closed
// when ctx is cancelled or the connection drops.
func (c *Client) Stream(ctx context.Context, actorID string) (<-chan *Event, error) {
	httpReq, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/v1/actors/"+actorID+"/events", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(respBody))
	}

	ch := make(chan *Event, 32)
	go func() {
		defer close(ch)
		defer resp.Body.Close()
		c.readSSEStream(resp.Body, ch)
	}()

	return ch, nil
}

// WaitForReply submits text to actorID and blocks for its next reply.
func (c *Client) WaitForReply(ctx context.Context, actorID, userID, text string) (string, error) {
	events, err := c.Stream(ctx, actorID)
	if err != nil {
		return "", err
	}

	if err := c.Submit(ctx, actorID, SubmitRequest{UserID: userID, Text: text}); err != nil {
		return "", err
	}

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case event, ok := <-events:
			if !ok {
				return "", fmt.Errorf("event stream closed before a reply arrived")
			}
			if event.IsReply() {
				return event.ReplyText(), nil
			}
		}
	}
}

// Health checks if the gateway is healthy.
func (c *Client) Health(ctx context.Context) bool {
	httpReq, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func (c *Client) readSSEStream(r io.Reader, ch chan<- *Event) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		dataStr := strings.TrimSpace(line[5:])

		var data map[string]interface{}
		if err := json.Unmarshal([]byte(dataStr), &data); err != nil {
			continue
		}

		event := &Event{Data: data}
		if e, ok := data["event"].(string); ok {
			event.Event = e
		}
		ch <- event
	}
}
