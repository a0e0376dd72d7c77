// Package frontend holds the member-facing routes. Every handler acts as the
// authenticated user; the store applies the moderation gate again on every
// write and the handler broadcasts only what the store committed.
package frontend

import (
	"github.com/valyala/fasthttp"

	"groupchat/pkg/api/router"
	"groupchat/pkg/api/routes/common"
	"groupchat/pkg/api/utils"
	"groupchat/pkg/models"
	"groupchat/pkg/moderation"
)

type Handlers struct {
	env *common.Env
}

func New(env *common.Env) *Handlers {
	return &Handlers{env: env}
}

// MessagePage is a history page in ascending created order.
type MessagePage struct {
	Messages []models.Message `json:"messages"`
	More     bool             `json:"more"`
}

func (h *Handlers) GetChannel(ctx *fasthttp.RequestCtx) {
	tr := common.Begin(ctx, "get_channel")
	defer tr.Finish()

	channelID, ok := common.PathParam(ctx, "channelID")
	if !ok {
		return
	}
	ch, ok := h.env.Channel(ctx, channelID, moderation.ActionRead)
	if !ok {
		return
	}
	router.WriteJSONStatus(ctx, fasthttp.StatusOK, ch)
}

func (h *Handlers) ListMembers(ctx *fasthttp.RequestCtx) {
	tr := common.Begin(ctx, "list_members")
	defer tr.Finish()

	channelID, ok := common.PathParam(ctx, "channelID")
	if !ok {
		return
	}
	if _, ok := h.env.Channel(ctx, channelID, moderation.ActionRead); !ok {
		return
	}
	members, err := h.env.Store.ListMembers(ctx, channelID)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	if members == nil {
		members = []models.Member{}
	}
	router.WriteJSONStatus(ctx, fasthttp.StatusOK, members)
}

// ListMessages serves ?limit&before pages, newest page first.
func (h *Handlers) ListMessages(ctx *fasthttp.RequestCtx) {
	tr := common.Begin(ctx, "list_messages")
	defer tr.Finish()

	channelID, ok := common.PathParam(ctx, "channelID")
	if !ok {
		return
	}
	if _, ok := h.env.Channel(ctx, channelID, moderation.ActionRead); !ok {
		return
	}
	limit := utils.GetQueryInt(ctx, "limit", 0)
	before := utils.GetQueryInt64(ctx, "before", 0)
	msgs, more, err := h.env.Store.ListMessages(ctx, channelID, before, limit)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	router.WriteJSONStatus(ctx, fasthttp.StatusOK, MessagePage{Messages: msgs, More: more})
}

// ListReactions returns raw reaction rows for ?message_ids=a,b,c.
func (h *Handlers) ListReactions(ctx *fasthttp.RequestCtx) {
	tr := common.Begin(ctx, "list_reactions")
	defer tr.Finish()

	channelID, ok := common.PathParam(ctx, "channelID")
	if !ok {
		return
	}
	if _, ok := h.env.Channel(ctx, channelID, moderation.ActionRead); !ok {
		return
	}
	rows, err := h.env.Store.ListReactions(ctx, channelID, utils.GetQueryList(ctx, "message_ids"))
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	if rows == nil {
		rows = []models.Reaction{}
	}
	router.WriteJSONStatus(ctx, fasthttp.StatusOK, rows)
}
