// Package backend holds the routes only backend API keys may call: user
// signing, channel creation, roster seeding and system announcements.
package backend

import (
	"fmt"

	"github.com/valyala/fasthttp"

	"groupchat/pkg/api/auth"
	"groupchat/pkg/api/router"
	"groupchat/pkg/api/routes/common"
	"groupchat/pkg/config"
	"groupchat/pkg/metrics"
	"groupchat/pkg/models"
	"groupchat/pkg/state/logger"
)

type Handlers struct {
	env *common.Env
}

func New(env *common.Env) *Handlers {
	return &Handlers{env: env}
}

// SignRequest asks the server to sign a user id for frontend use.
type SignRequest struct {
	UserID string `json:"user_id"`
}

type SignResponse struct {
	UserID    string `json:"user_id"`
	Signature string `json:"signature"`
}

func validateUserID(id string) error {
	if id == "" {
		return fmt.Errorf("user id cannot be empty")
	}
	if len(id) > auth.MaxUserIDLen {
		return fmt.Errorf("user id too long")
	}
	return nil
}

func signingKey() (string, error) {
	for k := range config.GetSigningKeys() {
		return k, nil
	}
	return "", fmt.Errorf("signing keys not configured")
}

// Sign returns the HMAC a frontend presents as X-User-Signature.
func (h *Handlers) Sign(ctx *fasthttp.RequestCtx) {
	tr := common.Begin(ctx, "sign")
	defer tr.Finish()

	var req SignRequest
	if !common.DecodeBody(ctx, &req) {
		return
	}
	if err := validateUserID(req.UserID); err != nil {
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, "invalid user id: "+err.Error())
		return
	}
	key, err := signingKey()
	if err != nil {
		logger.Error("sign_failed", "error", err)
		router.WriteJSONError(ctx, fasthttp.StatusInternalServerError, err.Error())
		return
	}
	router.WriteJSONStatus(ctx, fasthttp.StatusOK, SignResponse{UserID: req.UserID, Signature: auth.CreateHMACSignature(req.UserID, key)})
}

// CreateChannel opens a group or event channel.
func (h *Handlers) CreateChannel(ctx *fasthttp.RequestCtx) {
	tr := common.Begin(ctx, "create_channel")
	defer tr.Finish()

	var req models.Channel
	if !common.DecodeBody(ctx, &req) {
		return
	}
	ch, err := h.env.Store.CreateChannel(ctx, req)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	logger.Info("channel_created", "channel_id", ch.ID, "group_id", ch.GroupID, "event_id", ch.EventID)
	router.WriteJSONStatus(ctx, fasthttp.StatusCreated, ch)
}

// PutMember upserts a roster entry for a group.
func (h *Handlers) PutMember(ctx *fasthttp.RequestCtx) {
	tr := common.Begin(ctx, "put_member")
	defer tr.Finish()

	groupID, ok := common.PathParam(ctx, "groupID")
	if !ok {
		return
	}
	userID, ok := common.PathParam(ctx, "userID")
	if !ok {
		return
	}
	var req models.Member
	if !common.DecodeBody(ctx, &req) {
		return
	}
	req.ID = userID
	req.GroupID = groupID
	m, err := h.env.Store.PutMember(ctx, req)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	router.WriteJSONStatus(ctx, fasthttp.StatusOK, m)
}

// SystemRequest is the body of a lifecycle announcement.
type SystemRequest struct {
	Content string `json:"content"`
}

// PostSystem appends a system message and broadcasts it.
func (h *Handlers) PostSystem(ctx *fasthttp.RequestCtx) {
	tr := common.Begin(ctx, "post_system")
	defer tr.Finish()

	channelID, ok := common.PathParam(ctx, "channelID")
	if !ok {
		return
	}
	var req SystemRequest
	if !common.DecodeBody(ctx, &req) {
		return
	}
	m, err := h.env.Store.PostSystemMessage(ctx, channelID, req.Content)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	tr.Mark("committed")
	metrics.MessagesSent.Inc()
	h.env.Publish(models.MessageInserted{Message: m})
	router.WriteJSONStatus(ctx, fasthttp.StatusCreated, m)
}
