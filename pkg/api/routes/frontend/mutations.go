package frontend

import (
	"github.com/valyala/fasthttp"

	"groupchat/pkg/api/router"
	"groupchat/pkg/api/routes/common"
	"groupchat/pkg/api/utils"
	"groupchat/pkg/metrics"
	"groupchat/pkg/models"
	"groupchat/pkg/state/logger"
)

// RenameRequest is the PATCH body for a channel.
type RenameRequest struct {
	Name string `json:"name"`
}

// MuteRequest is the POST body for a mute; Duration is 1h, 24h, 7d or
// permanent.
type MuteRequest struct {
	Duration string `json:"duration"`
}

// ReadRequest moves the read mark; zero means now.
type ReadRequest struct {
	TS int64 `json:"ts,omitempty"`
}

type ReadResponse struct {
	LastReadTS int64 `json:"last_read_ts"`
}

type RemovedResponse struct {
	Removed bool `json:"removed"`
}

func (h *Handlers) RenameChannel(ctx *fasthttp.RequestCtx) {
	tr := common.Begin(ctx, "rename_channel")
	defer tr.Finish()

	channelID, ok := common.PathParam(ctx, "channelID")
	if !ok {
		return
	}
	var req RenameRequest
	if !common.DecodeBody(ctx, &req) {
		return
	}
	ch, err := h.env.Store.RenameChannel(ctx, channelID, req.Name, utils.Actor(ctx))
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	logger.Info("channel_renamed", "channel_id", ch.ID, "name", ch.Name, "actor", utils.Actor(ctx))
	router.WriteJSONStatus(ctx, fasthttp.StatusOK, ch)
}

// SendMessage commits a message as the acting user and broadcasts it.
func (h *Handlers) SendMessage(ctx *fasthttp.RequestCtx) {
	tr := common.Begin(ctx, "send_message")
	defer tr.Finish()

	channelID, ok := common.PathParam(ctx, "channelID")
	if !ok {
		return
	}
	var req models.SendRequest
	if !common.DecodeBody(ctx, &req) {
		return
	}
	m, err := h.env.Store.SendMessage(ctx, channelID, utils.Actor(ctx), req)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	tr.Mark("committed")
	metrics.MessagesSent.Inc()
	logger.Debug("message_sent", "channel_id", channelID, "message_id", m.ID, "sender", m.SenderID)
	h.env.Publish(models.MessageInserted{Message: m})
	router.WriteJSONStatus(ctx, fasthttp.StatusCreated, m)
}

func (h *Handlers) EditMessage(ctx *fasthttp.RequestCtx) {
	tr := common.Begin(ctx, "edit_message")
	defer tr.Finish()

	id, ok := common.PathParam(ctx, "messageID")
	if !ok {
		return
	}
	var req models.EditRequest
	if !common.DecodeBody(ctx, &req) {
		return
	}
	m, err := h.env.Store.EditMessage(ctx, id, utils.Actor(ctx), req.Content)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	h.env.Publish(models.MessageUpdated{Message: m})
	router.WriteJSONStatus(ctx, fasthttp.StatusOK, m)
}

func (h *Handlers) DeleteMessage(ctx *fasthttp.RequestCtx) {
	tr := common.Begin(ctx, "delete_message")
	defer tr.Finish()

	id, ok := common.PathParam(ctx, "messageID")
	if !ok {
		return
	}
	m, err := h.env.Store.DeleteMessage(ctx, id, utils.Actor(ctx))
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	logger.Info("message_deleted", "message_id", m.ID, "channel_id", m.ChannelID, "deleted_by", m.DeletedBy)
	h.env.Publish(models.MessageUpdated{Message: m})
	router.WriteJSONStatus(ctx, fasthttp.StatusOK, m)
}

func (h *Handlers) setPinned(ctx *fasthttp.RequestCtx, pin bool) {
	id, ok := common.PathParam(ctx, "messageID")
	if !ok {
		return
	}
	m, changed, err := h.env.Store.SetPinned(ctx, id, utils.Actor(ctx), pin)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	if changed {
		h.env.Publish(models.MessageUpdated{Message: m})
	}
	router.WriteJSONStatus(ctx, fasthttp.StatusOK, m)
}

func (h *Handlers) PinMessage(ctx *fasthttp.RequestCtx) {
	tr := common.Begin(ctx, "pin_message")
	defer tr.Finish()
	h.setPinned(ctx, true)
}

func (h *Handlers) UnpinMessage(ctx *fasthttp.RequestCtx) {
	tr := common.Begin(ctx, "unpin_message")
	defer tr.Finish()
	h.setPinned(ctx, false)
}

func (h *Handlers) AddReaction(ctx *fasthttp.RequestCtx) {
	tr := common.Begin(ctx, "add_reaction")
	defer tr.Finish()

	id, ok := common.PathParam(ctx, "messageID")
	if !ok {
		return
	}
	emoji, ok := common.PathParam(ctx, "emoji")
	if !ok {
		return
	}
	r, channelID, added, err := h.env.Store.AddReaction(ctx, id, emoji, utils.Actor(ctx))
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	if added {
		h.env.Publish(models.ReactionInserted{ChannelID: channelID, Reaction: r})
	}
	router.WriteJSONStatus(ctx, fasthttp.StatusOK, r)
}

func (h *Handlers) RemoveReaction(ctx *fasthttp.RequestCtx) {
	tr := common.Begin(ctx, "remove_reaction")
	defer tr.Finish()

	id, ok := common.PathParam(ctx, "messageID")
	if !ok {
		return
	}
	emoji, ok := common.PathParam(ctx, "emoji")
	if !ok {
		return
	}
	actor := utils.Actor(ctx)
	r, channelID, removed, err := h.env.Store.RemoveReaction(ctx, id, emoji, actor)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	if removed {
		if r.UserID == "" {
			r = models.Reaction{MessageID: id, Emoji: emoji, UserID: actor}
		}
		h.env.Publish(models.ReactionRemoved{ChannelID: channelID, Reaction: r})
	}
	router.WriteJSONStatus(ctx, fasthttp.StatusOK, RemovedResponse{Removed: removed})
}

func (h *Handlers) Mute(ctx *fasthttp.RequestCtx) {
	tr := common.Begin(ctx, "mute")
	defer tr.Finish()

	groupID, ok := common.PathParam(ctx, "groupID")
	if !ok {
		return
	}
	userID, ok := common.PathParam(ctx, "userID")
	if !ok {
		return
	}
	var req MuteRequest
	if !common.DecodeBody(ctx, &req) {
		return
	}
	d, err := models.ParseMuteDuration(req.Duration)
	if err != nil {
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, err.Error())
		return
	}
	m, err := h.env.Store.Mute(ctx, groupID, userID, utils.Actor(ctx), d)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	h.publishMute(ctx, groupID, userID, &m)
	router.WriteJSONStatus(ctx, fasthttp.StatusOK, m)
}

func (h *Handlers) Unmute(ctx *fasthttp.RequestCtx) {
	tr := common.Begin(ctx, "unmute")
	defer tr.Finish()

	groupID, ok := common.PathParam(ctx, "groupID")
	if !ok {
		return
	}
	userID, ok := common.PathParam(ctx, "userID")
	if !ok {
		return
	}
	removed, err := h.env.Store.Unmute(ctx, groupID, userID, utils.Actor(ctx))
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	if removed {
		h.publishMute(ctx, groupID, userID, nil)
	}
	router.WriteJSONStatus(ctx, fasthttp.StatusOK, RemovedResponse{Removed: removed})
}

// publishMute tells every channel of the group about a mute change so open
// sessions gate sends without a round trip.
func (h *Handlers) publishMute(ctx *fasthttp.RequestCtx, groupID, userID string, m *models.Mute) {
	channels, err := h.env.Store.ListGroupChannels(ctx, groupID)
	if err != nil {
		logger.Error("mute_publish_failed", "group_id", groupID, "user_id", userID, "error", err)
		return
	}
	for _, chID := range channels {
		h.env.Publish(models.MuteChanged{ChannelID: chID, GroupID: groupID, UserID: userID, Mute: m})
	}
}

func (h *Handlers) MarkRead(ctx *fasthttp.RequestCtx) {
	tr := common.Begin(ctx, "mark_read")
	defer tr.Finish()

	channelID, ok := common.PathParam(ctx, "channelID")
	if !ok {
		return
	}
	var req ReadRequest
	if !common.DecodeOptionalBody(ctx, &req) {
		return
	}
	ts, err := h.env.Store.MarkRead(ctx, channelID, utils.Actor(ctx), req.TS)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	router.WriteJSONStatus(ctx, fasthttp.StatusOK, ReadResponse{LastReadTS: ts})
}
