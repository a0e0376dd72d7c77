// Package realtime serves the websocket subscriptions: committed message
// and reaction events per channel, and ephemeral presence per channel.
package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"groupchat/pkg/api/router"
	"groupchat/pkg/api/routes/common"
	"groupchat/pkg/api/utils"
	"groupchat/pkg/broadcast"
	"groupchat/pkg/models"
	"groupchat/pkg/moderation"
	"groupchat/pkg/state/logger"
)

const maxClientFrame = 4096

// ClientAction is a frame sent by a presence subscriber.
type ClientAction struct {
	Action string `json:"action"`
	Typing bool   `json:"typing,omitempty"`
}

const (
	ActionTyping    = "typing"
	ActionHeartbeat = "heartbeat"
)

type Handlers struct {
	env      *common.Env
	upgrader websocket.FastHTTPUpgrader
}

func New(env *common.Env) *Handlers {
	return &Handlers{
		env: env,
		upgrader: websocket.FastHTTPUpgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// origin is enforced by the gateway's api key and signature checks
			CheckOrigin: func(*fasthttp.RequestCtx) bool { return true },
		},
	}
}

func (h *Handlers) pingInterval() time.Duration {
	if d := h.env.Chat.PingInterval.Duration(); d > 0 {
		return d
	}
	return 25 * time.Second
}

func (h *Handlers) writeTimeout() time.Duration {
	if d := h.env.Chat.WriteTimeout.Duration(); d > 0 {
		return d
	}
	return 10 * time.Second
}

// Events streams the messages topic of a channel.
func (h *Handlers) Events(ctx *fasthttp.RequestCtx) {
	channelID, ok := common.PathParam(ctx, "channelID")
	if !ok {
		return
	}
	ch, ok := h.env.Channel(ctx, channelID, moderation.ActionRead)
	if !ok {
		return
	}
	actor := utils.Actor(ctx)
	sub := h.env.Hub.Subscribe(broadcast.MessagesTopic(ch.ID))
	err := h.upgrader.Upgrade(ctx, func(conn *websocket.Conn) {
		defer h.env.Hub.Unsubscribe(sub)
		logger.Info("ws_subscribed", "topic", sub.Topic(), "user", actor)
		h.serve(conn, sub, nil)
		logger.Info("ws_unsubscribed", "topic", sub.Topic(), "user", actor)
	})
	if err != nil {
		h.env.Hub.Unsubscribe(sub)
		logger.Warn("ws_upgrade_failed", "path", utils.GetPath(ctx), "error", err)
	}
}

// Presence streams the presence topic of a channel and accepts typing and
// heartbeat actions from the member.
func (h *Handlers) Presence(ctx *fasthttp.RequestCtx) {
	channelID, ok := common.PathParam(ctx, "channelID")
	if !ok {
		return
	}
	ch, ok := h.env.Channel(ctx, channelID, moderation.ActionRead)
	if !ok {
		return
	}
	userID := utils.Actor(ctx)
	member, err := h.env.Store.GetMember(ctx, ch.GroupID, userID)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	connID := uuid.NewString()
	sub := h.env.Hub.Subscribe(broadcast.PresenceTopic(ch.ID))
	err = h.upgrader.Upgrade(ctx, func(conn *websocket.Conn) {
		defer h.env.Hub.Unsubscribe(sub)

		for _, e := range h.env.Presence.Snapshot(ch.ID) {
			if err := h.env.Hub.SendTo(sub, models.PresenceChanged{ChannelID: ch.ID, Entry: e}); err != nil {
				logger.Warn("presence_snapshot_failed", "channel_id", ch.ID, "error", err)
			}
		}
		entry := h.env.Presence.Join(ch.ID, connID, userID, member.DisplayName)
		h.env.Publish(models.PresenceChanged{ChannelID: ch.ID, Entry: entry})

		h.serve(conn, sub, func(b []byte) {
			h.apply(ch.ID, connID, member, b)
		})

		if e, ok := h.env.Presence.Leave(ch.ID, connID); ok {
			h.departed(ch.ID, e)
		}
	})
	if err != nil {
		h.env.Hub.Unsubscribe(sub)
		logger.Warn("ws_upgrade_failed", "path", utils.GetPath(ctx), "error", err)
	}
}

// apply handles one client frame on a presence connection. A connection
// whose entry expired is re-registered.
func (h *Handlers) apply(channelID, connID string, member models.Member, b []byte) {
	var a ClientAction
	if err := json.Unmarshal(b, &a); err != nil {
		logger.Debug("presence_bad_frame", "channel_id", channelID, "error", err)
		return
	}
	rejoin := func() {
		e := h.env.Presence.Join(channelID, connID, member.ID, member.DisplayName)
		h.env.Publish(models.PresenceChanged{ChannelID: channelID, Entry: e})
	}
	switch a.Action {
	case ActionTyping:
		e, changed, ok := h.env.Presence.SetTyping(channelID, connID, a.Typing)
		if !ok {
			rejoin()
			e, changed, _ = h.env.Presence.SetTyping(channelID, connID, a.Typing)
		}
		if changed {
			h.env.Publish(models.PresenceChanged{ChannelID: channelID, Entry: e})
		}
	case ActionHeartbeat:
		if !h.env.Presence.Heartbeat(channelID, connID) {
			rejoin()
		}
	default:
		logger.Debug("presence_unknown_action", "channel_id", channelID, "action", a.Action)
	}
}

// departed announces that a connection went away. When the user still has
// another live connection its current entry is re-announced instead.
func (h *Handlers) departed(channelID string, e models.PresenceEntry) {
	for _, live := range h.env.Presence.Snapshot(channelID) {
		if live.UserID == e.UserID {
			h.env.Publish(models.PresenceChanged{ChannelID: channelID, Entry: live})
			return
		}
	}
	h.env.Publish(models.PresenceChanged{ChannelID: channelID, Entry: e, Left: true})
}

// RunPresenceSweep expires silent presence connections every interval until
// ctx is done.
func (h *Handlers) RunPresenceSweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			h.SweepPresence()
		case <-ctx.Done():
			return
		}
	}
}

// SweepPresence runs one expiry pass and returns how many entries expired.
func (h *Handlers) SweepPresence() int {
	expired := h.env.Presence.Sweep()
	for _, x := range expired {
		logger.Debug("presence_expired", "channel_id", x.ChannelID, "user", x.Entry.UserID)
		h.departed(x.ChannelID, x.Entry)
	}
	return len(expired)
}

// serve runs the read and write pumps until either side stops. onFrame is
// called for each client text frame; nil discards them.
func (h *Handlers) serve(conn *websocket.Conn, sub *broadcast.Subscriber, onFrame func([]byte)) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.readPump(conn, onFrame)
	}()
	h.writePump(conn, sub, done)
	_ = conn.Close()
	<-done
}

func (h *Handlers) readPump(conn *websocket.Conn, onFrame func([]byte)) {
	wait := 2 * h.pingInterval()
	conn.SetReadLimit(maxClientFrame)
	_ = conn.SetReadDeadline(time.Now().Add(wait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wait))
	})
	for {
		kind, b, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("ws_read_closed", "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wait))
		if kind == websocket.TextMessage && onFrame != nil {
			onFrame(b)
		}
	}
}

func (h *Handlers) writePump(conn *websocket.Conn, sub *broadcast.Subscriber, done <-chan struct{}) {
	ping := time.NewTicker(h.pingInterval())
	defer ping.Stop()
	for {
		select {
		case data, ok := <-sub.C():
			if !ok {
				code, reason := websocket.CloseGoingAway, "server closing"
				if h.env.Hub.Dropped(sub) {
					code, reason = websocket.ClosePolicyViolation, "subscriber too slow"
				}
				_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(h.writeTimeout()))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(h.writeTimeout()))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Debug("ws_write_failed", "topic", sub.Topic(), "error", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.writeTimeout())); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
