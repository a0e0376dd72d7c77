// Package client talks to a groupchat server over HTTP and websockets. A
// Client bound to a user satisfies reconciler.Store.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"groupchat/pkg/models"
	"groupchat/pkg/moderation"
)

const defaultTimeout = 10 * time.Second

// Options configures a Client. Signature is required when APIKey is a
// frontend key; a backend key may omit it.
type Options struct {
	BaseURL   string
	APIKey    string
	UserID    string
	Signature string
	Timeout   time.Duration
	// Dial replaces the TCP dialer; tests use it with an in-memory listener.
	Dial func(addr string) (net.Conn, error)
}

type Client struct {
	opts Options
	hc   *fasthttp.Client
}

// HTTPError is a non-2xx response that does not map onto a domain error.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Message)
}

func New(opts Options) *Client {
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	hc := &fasthttp.Client{
		Name:                "groupchat-client",
		ReadTimeout:         opts.Timeout,
		WriteTimeout:        opts.Timeout,
		MaxIdleConnDuration: time.Minute,
	}
	if opts.Dial != nil {
		hc.Dial = opts.Dial
	}
	return &Client{opts: opts, hc: hc}
}

// As returns a client acting as another user over the same connection pool.
func (c *Client) As(userID, signature string) *Client {
	o := c.opts
	o.UserID, o.Signature = userID, signature
	return &Client{opts: o, hc: c.hc}
}

// UserID is the acting user, empty for a backend acting as itself.
func (c *Client) UserID() string { return c.opts.UserID }

func (c *Client) setAuth(h interface{ Set(string, string) }) {
	if c.opts.APIKey != "" {
		h.Set("X-API-Key", c.opts.APIKey)
	}
	if c.opts.UserID != "" {
		h.Set("X-User-ID", c.opts.UserID)
	}
	if c.opts.Signature != "" {
		h.Set("X-User-Signature", c.opts.Signature)
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.opts.BaseURL + path)
	req.Header.SetMethod(method)
	c.setAuth(&req.Header)
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		req.Header.SetContentType("application/json")
		req.SetBodyRaw(b)
	}

	deadline := time.Now().Add(c.opts.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.hc.DoDeadline(req, resp, deadline); err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	status := resp.StatusCode()
	if status >= 300 {
		return decodeError(status, resp.Body())
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// decodeError maps an error response onto the shared error taxonomy so
// callers can use errors.Is and moderation.AsRejection on it.
func decodeError(status int, body []byte) error {
	var eb struct {
		Error  string `json:"error"`
		Reason string `json:"reason"`
		Action string `json:"action"`
	}
	if err := json.Unmarshal(body, &eb); err != nil || eb.Error == "" {
		eb.Error = strings.TrimSpace(string(body))
	}
	switch {
	case status == fasthttp.StatusForbidden && eb.Reason != "":
		return &moderation.Rejection{
			Action:  moderation.Action(eb.Action),
			Reason:  moderation.Reason(eb.Reason),
			Message: eb.Error,
		}
	case status == fasthttp.StatusNotFound:
		return fmt.Errorf("%w: %s", models.ErrNotFound, eb.Error)
	case status == fasthttp.StatusBadRequest:
		return fmt.Errorf("%w: %s", models.ErrInvalid, eb.Error)
	}
	return &HTTPError{Status: status, Message: eb.Error}
}

func esc(s string) string { return url.PathEscape(s) }

// Sign asks the server for userID's frontend signature. Needs a backend key.
func (c *Client) Sign(ctx context.Context, userID string) (string, error) {
	var out struct {
		Signature string `json:"signature"`
	}
	if err := c.do(ctx, fasthttp.MethodPost, "/v1/_sign", map[string]string{"user_id": userID}, &out); err != nil {
		return "", err
	}
	return out.Signature, nil
}

func (c *Client) CreateChannel(ctx context.Context, ch models.Channel) (models.Channel, error) {
	var out models.Channel
	err := c.do(ctx, fasthttp.MethodPost, "/v1/channels", ch, &out)
	return out, err
}

func (c *Client) PutMember(ctx context.Context, m models.Member) (models.Member, error) {
	var out models.Member
	err := c.do(ctx, fasthttp.MethodPut, "/v1/groups/"+esc(m.GroupID)+"/members/"+esc(m.ID), m, &out)
	return out, err
}

// PostSystem appends a lifecycle announcement. Needs a backend key.
func (c *Client) PostSystem(ctx context.Context, channelID, content string) (models.Message, error) {
	var out models.Message
	err := c.do(ctx, fasthttp.MethodPost, "/v1/channels/"+esc(channelID)+"/system", map[string]string{"content": content}, &out)
	return out, err
}

func (c *Client) GetChannel(ctx context.Context, channelID string) (models.Channel, error) {
	var out models.Channel
	err := c.do(ctx, fasthttp.MethodGet, "/v1/channels/"+esc(channelID), nil, &out)
	return out, err
}

func (c *Client) RenameChannel(ctx context.Context, channelID, name string) (models.Channel, error) {
	var out models.Channel
	err := c.do(ctx, fasthttp.MethodPatch, "/v1/channels/"+esc(channelID), map[string]string{"name": name}, &out)
	return out, err
}

func (c *Client) ListMembers(ctx context.Context, channelID string) ([]models.Member, error) {
	var out []models.Member
	err := c.do(ctx, fasthttp.MethodGet, "/v1/channels/"+esc(channelID)+"/members", nil, &out)
	return out, err
}

// ListMessages fetches one page ending before the given created_ts; zero
// means the newest page.
func (c *Client) ListMessages(ctx context.Context, channelID string, before int64, limit int) ([]models.Message, bool, error) {
	q := url.Values{}
	if before > 0 {
		q.Set("before", strconv.FormatInt(before, 10))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/v1/channels/" + esc(channelID) + "/messages"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out struct {
		Messages []models.Message `json:"messages"`
		More     bool             `json:"more"`
	}
	if err := c.do(ctx, fasthttp.MethodGet, path, nil, &out); err != nil {
		return nil, false, err
	}
	return out.Messages, out.More, nil
}

func (c *Client) ListReactions(ctx context.Context, channelID string, msgIDs []string) ([]models.Reaction, error) {
	if len(msgIDs) == 0 {
		return nil, nil
	}
	q := url.Values{}
	q.Set("message_ids", strings.Join(msgIDs, ","))
	var out []models.Reaction
	err := c.do(ctx, fasthttp.MethodGet, "/v1/channels/"+esc(channelID)+"/reactions?"+q.Encode(), nil, &out)
	return out, err
}

func (c *Client) Send(ctx context.Context, channelID string, req models.SendRequest) (models.Message, error) {
	var out models.Message
	err := c.do(ctx, fasthttp.MethodPost, "/v1/channels/"+esc(channelID)+"/messages", req, &out)
	return out, err
}

func (c *Client) Edit(ctx context.Context, msgID, content string) (models.Message, error) {
	var out models.Message
	err := c.do(ctx, fasthttp.MethodPatch, "/v1/messages/"+esc(msgID), models.EditRequest{Content: content}, &out)
	return out, err
}

func (c *Client) Delete(ctx context.Context, msgID string) (models.Message, error) {
	var out models.Message
	err := c.do(ctx, fasthttp.MethodDelete, "/v1/messages/"+esc(msgID), nil, &out)
	return out, err
}

func (c *Client) SetPinned(ctx context.Context, msgID string, pin bool) (models.Message, error) {
	method := fasthttp.MethodPost
	if !pin {
		method = fasthttp.MethodDelete
	}
	var out models.Message
	err := c.do(ctx, method, "/v1/messages/"+esc(msgID)+"/pin", nil, &out)
	return out, err
}

func (c *Client) AddReaction(ctx context.Context, msgID, emoji string) (models.Reaction, error) {
	var out models.Reaction
	err := c.do(ctx, fasthttp.MethodPost, "/v1/messages/"+esc(msgID)+"/reactions/"+esc(emoji), nil, &out)
	return out, err
}

func (c *Client) RemoveReaction(ctx context.Context, msgID, emoji string) error {
	return c.do(ctx, fasthttp.MethodDelete, "/v1/messages/"+esc(msgID)+"/reactions/"+esc(emoji), nil, nil)
}

func (c *Client) Mute(ctx context.Context, groupID, userID string, d models.MuteDuration) (models.Mute, error) {
	var out models.Mute
	err := c.do(ctx, fasthttp.MethodPost, "/v1/groups/"+esc(groupID)+"/mutes/"+esc(userID), map[string]string{"duration": string(d)}, &out)
	return out, err
}

// Unmute reports whether an active mute was lifted.
func (c *Client) Unmute(ctx context.Context, groupID, userID string) (bool, error) {
	var out struct {
		Removed bool `json:"removed"`
	}
	err := c.do(ctx, fasthttp.MethodDelete, "/v1/groups/"+esc(groupID)+"/mutes/"+esc(userID), nil, &out)
	return out.Removed, err
}

// MarkRead moves the acting user's read mark to now.
func (c *Client) MarkRead(ctx context.Context, channelID string) error {
	return c.do(ctx, fasthttp.MethodPost, "/v1/channels/"+esc(channelID)+"/read", nil, nil)
}

// SweepMutes triggers the admin mute purge. Needs an admin key.
func (c *Client) SweepMutes(ctx context.Context) (int, error) {
	var out struct {
		Purged int `json:"purged"`
	}
	err := c.do(ctx, fasthttp.MethodPost, "/admin/jobs/sweep-mutes", nil, &out)
	return out.Purged, err
}
