// Package rest is the HTTP collaborator client for the chatSphere API:
// authentication, history retrieval, room listing and read acknowledgments.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"chatsphere-client/internal/auth"
	"chatsphere-client/internal/clienterr"
	"chatsphere-client/internal/models"
)

// Client calls the chatSphere REST API. All failures come back as
// clienterr.KindCollaborator errors; callers surface them as non-fatal.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  auth.TokenSource
	log     *slog.Logger
}

// New builds a REST client rooted at baseURL, e.g. http://localhost:8000.
func New(baseURL string, tokens auth.TokenSource, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
		tokens:  tokens,
		log:     log,
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginData struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	User        models.User `json:"user"`
}

// envelope is the ApiResponse wrapper the auth routes use.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Login authenticates with username/password and returns the bearer token
// and user profile.
func (c *Client) Login(ctx context.Context, username, password string) (string, models.User, error) {
	var env envelope
	err := c.do(ctx, http.MethodPost, "/api/v1/auth/login", nil, loginRequest{Username: username, Password: password}, &env)
	if err != nil {
		return "", models.User{}, err
	}
	var data loginData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return "", models.User{}, clienterr.New(clienterr.KindCollaborator, "login", err)
	}
	return data.AccessToken, data.User, nil
}

// Me returns the authenticated user's profile.
func (c *Client) Me(ctx context.Context) (models.User, error) {
	var out struct {
		User models.User `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/me", nil, nil, &out); err != nil {
		return models.User{}, err
	}
	return out.User, nil
}

// GetConversations fetches the user's conversation list.
func (c *Client) GetConversations(ctx context.Context) ([]models.Conversation, error) {
	var out struct {
		Conversations []models.Conversation `json:"conversations"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/conversations", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Conversations, nil
}

// GetMessages fetches a page of history for a chat, oldest first.
func (c *Client) GetMessages(ctx context.Context, chatType models.ChatType, chatID string, limit, offset int) ([]models.Message, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	var out struct {
		Messages []models.Message `json:"messages"`
		Total    int              `json:"total"`
		HasMore  bool             `json:"has_more"`
	}
	path := fmt.Sprintf("/api/v1/messages/%s/%s", chatType, url.PathEscape(chatID))
	if err := c.do(ctx, http.MethodGet, path, q, nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// GetRooms fetches the public room directory.
func (c *Client) GetRooms(ctx context.Context) ([]models.Room, error) {
	var out struct {
		Rooms []models.Room `json:"rooms"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/rooms", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Rooms, nil
}

// GetOnlineUsers fetches the current online user snapshot.
func (c *Client) GetOnlineUsers(ctx context.Context) ([]models.User, error) {
	var out struct {
		Users []models.User `json:"users"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/users/online", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Users, nil
}

// GetRoomOnlineCount returns how many users are currently in a room.
func (c *Client) GetRoomOnlineCount(ctx context.Context, roomID string) (int, error) {
	var out struct {
		OnlineCount int `json:"online_count"`
	}
	path := "/api/v1/rooms/" + url.PathEscape(roomID) + "/online-count"
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return 0, err
	}
	return out.OnlineCount, nil
}

// MarkConversationAsRead acknowledges a conversation server-side, zeroing its
// unread counter.
func (c *Client) MarkConversationAsRead(ctx context.Context, chatType models.ChatType, chatID string) error {
	path := fmt.Sprintf("/api/v1/conversations/%s/%s/read", chatType, url.PathEscape(chatID))
	return c.do(ctx, http.MethodPost, path, nil, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	op := method + " " + path

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return clienterr.New(clienterr.KindCollaborator, op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return clienterr.New(clienterr.KindCollaborator, op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token, err := c.tokens.Token(); err == nil && token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return clienterr.New(clienterr.KindCollaborator, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Read a little of the body for the log; API errors are not parsed
		// beyond the status.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.log.Debug("api call failed", "op", op, "status", resp.StatusCode, "body", string(snippet))
		return clienterr.New(clienterr.KindCollaborator, op,
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return clienterr.New(clienterr.KindCollaborator, op, err)
	}
	return nil
}
