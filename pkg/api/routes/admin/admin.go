package admin

import (
	"context"

	"github.com/valyala/fasthttp"

	"groupchat/pkg/api/router"
	"groupchat/pkg/api/routes/common"
	"groupchat/pkg/state/logger"
)

// SweepFunc runs one expired-mute purge and reports how many rows went.
type SweepFunc func(ctx context.Context) (int, error)

type Handlers struct {
	env   *common.Env
	sweep SweepFunc
}

// New returns the ops handlers. sweep may be nil when the sweeper is off.
func New(env *common.Env, sweep SweepFunc) *Handlers {
	return &Handlers{env: env, sweep: sweep}
}

func (h *Handlers) Health(ctx *fasthttp.RequestCtx) {
	ctx.Response.Header.Set("Content-Type", "application/json")
	_, _ = ctx.WriteString(`{"status":"ok","service":"groupchat"}`)
}

// Ready answers 503 until the store is open.
func (h *Handlers) Ready(ctx *fasthttp.RequestCtx) {
	if h.env.Store == nil || !h.env.Store.Ready() {
		router.WriteJSONError(ctx, fasthttp.StatusServiceUnavailable, "store not ready")
		return
	}
	ctx.Response.Header.Set("Content-Type", "application/json")
	_, _ = ctx.WriteString(`{"status":"ready"}`)
}

type Stats struct {
	Subscribers int `json:"subscribers"`
	Presence    int `json:"presence_connections"`
}

func (h *Handlers) Stats(ctx *fasthttp.RequestCtx) {
	router.WriteJSONStatus(ctx, fasthttp.StatusOK, Stats{
		Subscribers: h.env.Hub.Subscribers(""),
		Presence:    h.env.Presence.Connections(),
	})
}

// DeletedOriginal returns a deleted message as it was before deletion.
func (h *Handlers) DeletedOriginal(ctx *fasthttp.RequestCtx) {
	id, ok := common.PathParam(ctx, "messageID")
	if !ok {
		return
	}
	m, err := h.env.Store.DeletedOriginal(ctx, id)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	router.WriteJSONStatus(ctx, fasthttp.StatusOK, m)
}

// SweepMutes triggers an immediate expired-mute purge.
func (h *Handlers) SweepMutes(ctx *fasthttp.RequestCtx) {
	if h.sweep == nil {
		router.WriteJSONError(ctx, fasthttp.StatusServiceUnavailable, "sweeper disabled")
		return
	}
	n, err := h.sweep(ctx)
	if err != nil {
		logger.Error("mute_sweep_failed", "error", err)
		router.WriteJSONError(ctx, fasthttp.StatusInternalServerError, err.Error())
		return
	}
	router.WriteJSONStatus(ctx, fasthttp.StatusOK, map[string]int{"purged": n})
}
