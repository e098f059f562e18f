// Package client is the Go counterpart of the chat frontend: a typed HTTP
// client for the REST API, token persistence and the polling session that
// the terminal views render.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gbsr/chappy/internal/models"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
	Detail  string
	Field   string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%d %s", e.Status, e.Message)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Status == status
}

type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenStore
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func New(baseURL string, tokens TokenStore, opts ...Option) *Client {
	if tokens == nil {
		tokens = &MemoryTokenStore{}
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		tokens:  tokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	token, err := c.tokens.Token()
	if err != nil {
		return fmt.Errorf("failed to read token: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var payload struct {
			Message string `json:"message"`
			Error   string `json:"error"`
			Field   string `json:"field"`
		}
		if json.Unmarshal(raw, &payload) == nil && payload.Message != "" {
			apiErr.Message, apiErr.Detail, apiErr.Field = payload.Message, payload.Error, payload.Field
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if s, ok := out.(*string); ok {
		*s = string(raw)
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}

type messageEnvelope struct {
	Message string `json:"message"`
}

// Status returns the server's plain-text status line.
func (c *Client) Status(ctx context.Context) (string, error) {
	var s string
	err := c.do(ctx, http.MethodGet, "/api", nil, &s)
	return s, err
}

// Users

type RegisterRequest struct {
	UserName string `json:"userName"`
	Email    string `json:"email"`
	Password string `json:"password"`
	IsAdmin  bool   `json:"isAdmin"`
}

func (c *Client) Register(ctx context.Context, req RegisterRequest) (*models.User, error) {
	var resp struct {
		User models.User `json:"user"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/users/add", req, &resp); err != nil {
		return nil, err
	}
	return &resp.User, nil
}

type LoginResult struct {
	Message string            `json:"message"`
	Token   string            `json:"token"`
	User    models.PublicUser `json:"user"`
}

// Login authenticates and persists the issued token.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	var res LoginResult
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/users/login", body, &res); err != nil {
		return nil, err
	}
	if err := c.tokens.Store(res.Token); err != nil {
		return nil, fmt.Errorf("failed to store token: %w", err)
	}
	return &res, nil
}

func (c *Client) Logout() error {
	return c.tokens.Clear()
}

// LoggedIn reports whether a token is stored. It does not check expiry.
func (c *Client) LoggedIn() bool {
	token, err := c.tokens.Token()
	return err == nil && token != ""
}

func (c *Client) Profile(ctx context.Context) (*models.User, error) {
	var resp struct {
		Profile models.User `json:"profile"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/users/profile", nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Profile, nil
}

func (c *Client) Users(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := c.do(ctx, http.MethodGet, "/api/users", nil, &users)
	return users, err
}

func (c *Client) User(ctx context.Context, id string) (*models.User, error) {
	var resp struct {
		Data models.User `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/users/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

type UserUpdate struct {
	UserName *string `json:"userName,omitempty"`
	Email    *string `json:"email,omitempty"`
	Password *string `json:"password,omitempty"`
	IsAdmin  *bool   `json:"isAdmin,omitempty"`
}

// UpdateUser returns the server's status message.
func (c *Client) UpdateUser(ctx context.Context, id string, upd UserUpdate) (string, error) {
	var resp messageEnvelope
	err := c.do(ctx, http.MethodPut, "/api/users/"+url.PathEscape(id), upd, &resp)
	return resp.Message, err
}

func (c *Client) DeleteUser(ctx context.Context, id string) (string, error) {
	var resp messageEnvelope
	err := c.do(ctx, http.MethodDelete, "/api/users/"+url.PathEscape(id), nil, &resp)
	return resp.Message, err
}

// Channels

type ChannelRequest struct {
	ChannelName string   `json:"channelName"`
	Desc        string   `json:"desc,omitempty"`
	CreatedBy   string   `json:"createdBy"`
	IsLocked    bool     `json:"isLocked"`
	Members     []string `json:"members"`
}

func (c *Client) Channels(ctx context.Context) ([]models.Channel, error) {
	var channels []models.Channel
	err := c.do(ctx, http.MethodGet, "/api/channels", nil, &channels)
	return channels, err
}

func (c *Client) Channel(ctx context.Context, id string) (*models.Channel, error) {
	var resp struct {
		Data models.Channel `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/channels/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

func (c *Client) CreateChannel(ctx context.Context, req ChannelRequest) (*models.Channel, error) {
	if req.Members == nil {
		req.Members = []string{}
	}
	var resp struct {
		Channel models.Channel `json:"channel"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/channels/add", req, &resp); err != nil {
		return nil, err
	}
	return &resp.Channel, nil
}

type ChannelUpdate struct {
	ChannelName *string   `json:"channelName,omitempty"`
	Desc        *string   `json:"desc,omitempty"`
	IsLocked    *bool     `json:"isLocked,omitempty"`
	Members     *[]string `json:"members,omitempty"`
}

func (c *Client) UpdateChannel(ctx context.Context, id string, upd ChannelUpdate) (string, error) {
	var resp messageEnvelope
	err := c.do(ctx, http.MethodPut, "/api/channels/"+url.PathEscape(id), upd, &resp)
	return resp.Message, err
}

func (c *Client) DeleteChannel(ctx context.Context, id string) (string, error) {
	var resp messageEnvelope
	err := c.do(ctx, http.MethodDelete, "/api/channels/"+url.PathEscape(id), nil, &resp)
	return resp.Message, err
}

// Messages

type SendRequest struct {
	ChannelID   *string  `json:"channelId"`
	UserID      string   `json:"userId,omitempty"`
	RecipientID *string  `json:"recipientId"`
	Content     string   `json:"content"`
	TaggedUsers []string `json:"taggedUsers"`
}

func (c *Client) ChannelMessages(ctx context.Context, channelID string) ([]models.Message, error) {
	var msgs []models.Message
	path := "/api/messages/channels/" + url.PathEscape(channelID) + "/messages"
	err := c.do(ctx, http.MethodGet, path, nil, &msgs)
	return msgs, err
}

func (c *Client) SendMessage(ctx context.Context, req SendRequest) (*models.Message, error) {
	if req.TaggedUsers == nil {
		req.TaggedUsers = []string{}
	}
	var resp struct {
		Data models.Message `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/messages", req, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// DirectMessages returns every direct message the caller sent or received.
func (c *Client) DirectMessages(ctx context.Context) ([]models.Message, error) {
	var msgs []models.Message
	err := c.do(ctx, http.MethodGet, "/api/messages/direct/all", nil, &msgs)
	return msgs, err
}

// Conversation returns the direct messages exchanged with peerID.
func (c *Client) Conversation(ctx context.Context, peerID string) ([]models.Message, error) {
	var msgs []models.Message
	err := c.do(ctx, http.MethodGet, "/api/messages/direct/"+url.PathEscape(peerID), nil, &msgs)
	return msgs, err
}
