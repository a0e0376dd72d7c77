package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fasthttp/websocket"

	"groupchat/pkg/models"
	"groupchat/pkg/state/logger"
)

const streamBuffer = 64

// Stream is one websocket subscription. Events are delivered in arrival
// order; malformed frames are logged and skipped.
type Stream struct {
	conn   *websocket.Conn
	events chan models.Event
	done   chan struct{}

	wmu       sync.Mutex
	closeOnce sync.Once

	mu  sync.Mutex
	err error
}

// Subscribe opens the committed-event stream of a channel.
func (c *Client) Subscribe(ctx context.Context, channelID string) (*Stream, error) {
	return c.dial(ctx, "/v1/channels/"+esc(channelID)+"/events")
}

// Presence opens the presence stream of a channel. The stream first
// replays the current roster presence, then live changes.
func (c *Client) Presence(ctx context.Context, channelID string) (*Stream, error) {
	return c.dial(ctx, "/v1/channels/"+esc(channelID)+"/presence")
}

func (c *Client) wsURL(path string) string {
	base := c.opts.BaseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + path
}

func (c *Client) dial(ctx context.Context, path string) (*Stream, error) {
	d := websocket.Dialer{HandshakeTimeout: c.opts.Timeout}
	if c.opts.Dial != nil {
		dial := c.opts.Dial
		d.NetDialContext = func(_ context.Context, _, addr string) (net.Conn, error) {
			return dial(addr)
		}
	}
	h := http.Header{}
	c.setAuth(h)
	conn, resp, err := d.DialContext(ctx, c.wsURL(path), h)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("subscribe %s: http %d: %w", path, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("subscribe %s: %w", path, err)
	}
	s := &Stream{conn: conn, events: make(chan models.Event, streamBuffer), done: make(chan struct{})}
	go s.readLoop()
	return s, nil
}

func (s *Stream) readLoop() {
	defer close(s.events)
	for {
		_, b, err := s.conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
			return
		}
		ev, err := models.DecodeEvent(b)
		if err != nil {
			logger.Warn("stream_frame_dropped", "error", err)
			continue
		}
		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
	}
}

// Events is closed when the connection ends; Err then says why.
func (s *Stream) Events() <-chan models.Event { return s.events }

// Err is the error that ended the stream, if any.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// CloseCode is the close code the server sent, or zero.
func (s *Stream) CloseCode() int {
	var ce *websocket.CloseError
	if errors.As(s.Err(), &ce) {
		return ce.Code
	}
	return 0
}

func (s *Stream) send(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(defaultTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, b)
}

// Typing reports the member's typing state on a presence stream.
func (s *Stream) Typing(typing bool) error {
	return s.send(map[string]any{"action": "typing", "typing": typing})
}

// Heartbeat keeps a presence entry alive.
func (s *Stream) Heartbeat() error {
	return s.send(map[string]string{"action": "heartbeat"})
}

// Close sends a normal close frame and drops the connection.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.wmu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		s.wmu.Unlock()
		err = s.conn.Close()
	})
	return err
}
