// Package api talks to the support backend's REST endpoints.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/johndosdos/deskchat/internal/auth"
	"github.com/johndosdos/deskchat/internal/model"
	"github.com/tidwall/gjson"
)

var ErrUnauthorized = errors.New("internal/api: unauthorized")

// maxBody caps how much of a response is read.
const maxBody = 8 << 20

// StatusError is a non-2xx response.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("internal/api: unexpected status %d", e.Code)
	}
	return fmt.Sprintf("internal/api: unexpected status %d: %s", e.Code, e.Message)
}

// SendRequest is the body of a message send.
type SendRequest struct {
	ClientID       string       `json:"clientId"`
	AgentID        string       `json:"agentId,omitempty"`
	Sender         model.Sender `json:"sender"`
	Text           string       `json:"text"`
	Timestamp      time.Time    `json:"timestamp"`
	IsVoiceMessage bool         `json:"isVoiceMessage,omitempty"`
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *slog.Logger
}

func NewClient(baseURL, token string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// BaseURL is where relative upload paths resolve against.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// FetchMessages returns the full history of a conversation. The backend
// answers with either a bare array or {"messages": [...]}.
func (c *Client) FetchMessages(ctx context.Context, key model.ConversationKey) ([]model.Message, error) {
	q := url.Values{}
	q.Set("clientId", key.ClientID)
	if key.AgentID != "" {
		q.Set("agentId", key.AgentID)
	}

	body, err := c.do(ctx, http.MethodGet, "/api/chats/messages?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	list := gjson.ParseBytes(body)
	if !list.IsArray() {
		list = list.Get("messages")
	}
	if !list.IsArray() {
		return nil, fmt.Errorf("internal/api: messages response has no message list")
	}

	var msgs []model.Message
	if err := json.Unmarshal([]byte(list.Raw), &msgs); err != nil {
		return nil, fmt.Errorf("internal/api: failed to decode messages: %w", err)
	}
	return msgs, nil
}

// SendMessage posts a message and returns the stored copy. The backend
// answers with either {"message": {...}} or the message itself.
func (c *Client) SendMessage(ctx context.Context, req SendRequest) (model.Message, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return model.Message{}, fmt.Errorf("internal/api: failed to encode message: %w", err)
	}

	body, err := c.do(ctx, http.MethodPost, "/api/chats/message", payload)
	if err != nil {
		return model.Message{}, err
	}

	doc := gjson.ParseBytes(body)
	if wrapped := doc.Get("message"); wrapped.IsObject() {
		doc = wrapped
	}

	var m model.Message
	if err := m.UnmarshalJSON([]byte(doc.Raw)); err != nil {
		return model.Message{}, fmt.Errorf("internal/api: failed to decode sent message: %w", err)
	}
	return m, nil
}

// FetchRoster lists the clients visible to id: every client for admins,
// the assigned ones for agents.
func (c *Client) FetchRoster(ctx context.Context, id auth.Identity) ([]model.Client, error) {
	path := "/api/clients/assigned/" + url.PathEscape(id.UserID)
	if id.Overview() {
		path = "/api/clients/getAllClients"
	}

	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	list := gjson.ParseBytes(body)
	if !list.IsArray() {
		list = list.Get("clients")
	}
	if !list.IsArray() {
		return nil, fmt.Errorf("internal/api: roster response has no client list")
	}

	var clients []model.Client
	if err := json.Unmarshal([]byte(list.Raw), &clients); err != nil {
		return nil, fmt.Errorf("internal/api: failed to decode roster: %w", err)
	}
	return clients, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var rd io.Reader
	if payload != nil {
		rd = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, fmt.Errorf("internal/api: failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("internal/api: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("internal/api: failed to read response: %w", err)
	}

	c.logger.DebugContext(ctx, "api request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("took", time.Since(start)))

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &StatusError{Code: resp.StatusCode, Message: gjson.GetBytes(body, "message").String()}
	}

	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("internal/api: %s %s: response is not JSON", method, path)
	}
	return body, nil
}
