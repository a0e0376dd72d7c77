// Package common holds what every route handler shares: the store, the
// broadcast hub, request decoding and the post-commit publish step.
package common

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/valyala/fasthttp"

	"groupchat/pkg/api/router"
	"groupchat/pkg/api/utils"
	"groupchat/pkg/broadcast"
	"groupchat/pkg/config"
	"groupchat/pkg/models"
	"groupchat/pkg/moderation"
	"groupchat/pkg/presence"
	"groupchat/pkg/state/logger"
	"groupchat/pkg/store"
	"groupchat/pkg/telemetry"
)

// Env is the dependency set handed to every route package.
type Env struct {
	Store    *store.Store
	Hub      *broadcast.Hub
	Presence *presence.Registry
	Chat     config.ChatConfig
}

// Publish fans a committed change out. Call it only after the store returned
// successfully; a publish failure never fails the request.
func (e *Env) Publish(ev models.Event) {
	n, err := e.Hub.Publish(ev)
	if err != nil {
		logger.Error("broadcast_failed", "kind", ev.Kind(), "channel_id", ev.Channel(), "error", err)
		return
	}
	logger.Debug("broadcast", "kind", ev.Kind(), "channel_id", ev.Channel(), "delivered", n)
}

// Begin starts a handler trace and sets the JSON content type.
func Begin(ctx *fasthttp.RequestCtx, op string) *telemetry.Trace {
	ctx.Response.Header.Set("Content-Type", "application/json")
	return telemetry.Track("api." + op)
}

// DecodeBody unmarshals the request body into v, writing 400 on failure.
func DecodeBody(ctx *fasthttp.RequestCtx, v any) bool {
	body := ctx.PostBody()
	if len(body) == 0 {
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, "request body is required")
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return false
	}
	return true
}

// DecodeOptionalBody is DecodeBody that accepts an empty body.
func DecodeOptionalBody(ctx *fasthttp.RequestCtx, v any) bool {
	if len(ctx.PostBody()) == 0 {
		return true
	}
	return DecodeBody(ctx, v)
}

// PathParam returns a required path parameter, writing 400 when missing.
func PathParam(ctx *fasthttp.RequestCtx, name string) (string, bool) {
	v := utils.GetPathParam(ctx, name)
	if v == "" {
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, name+" missing")
		return "", false
	}
	return v, true
}

// Channel loads a channel and, when the request acts as a user, checks the
// user is on the owning group's roster. Backends acting as themselves see
// every channel.
func (e *Env) Channel(ctx *fasthttp.RequestCtx, channelID string, action moderation.Action) (models.Channel, bool) {
	ch, err := e.Store.GetChannel(ctx, channelID)
	if err != nil {
		router.WriteError(ctx, err)
		return models.Channel{}, false
	}
	actor := utils.Actor(ctx)
	if actor == "" {
		return ch, true
	}
	if _, err := e.Store.GetMember(ctx, ch.GroupID, actor); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			router.WriteRejection(ctx, moderation.NotMember(action))
		} else {
			router.WriteError(ctx, err)
		}
		return models.Channel{}, false
	}
	return ch, true
}
