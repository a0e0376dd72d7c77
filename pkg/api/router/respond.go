package router

import (
	"encoding/json"
	"errors"

	"github.com/valyala/fasthttp"

	"groupchat/pkg/metrics"
	"groupchat/pkg/models"
	"groupchat/pkg/moderation"
	"groupchat/pkg/state/logger"
	"groupchat/pkg/store"
)

// ErrorBody is the JSON shape of every non-2xx response. Reason and Action
// are set on moderation rejections only.
type ErrorBody struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
	Action string `json:"action,omitempty"`
}

// WriteJSON writes a 200 JSON response.
func WriteJSON(ctx *fasthttp.RequestCtx, data interface{}) error {
	ctx.Response.Header.Set("Content-Type", "application/json")
	return json.NewEncoder(ctx).Encode(data)
}

// WriteJSONStatus writes a JSON response with status.
func WriteJSONStatus(ctx *fasthttp.RequestCtx, status int, data interface{}) {
	ctx.SetStatusCode(status)
	if err := WriteJSON(ctx, data); err != nil {
		logger.Error("response_encode_failed", "path", string(ctx.Path()), "error", err)
	}
}

// WriteJSONError writes a JSON error response.
func WriteJSONError(ctx *fasthttp.RequestCtx, status int, message string) {
	ctx.SetStatusCode(status)
	ctx.Response.Header.Set("Content-Type", "application/json")
	_ = json.NewEncoder(ctx).Encode(ErrorBody{Error: message})
}

// WriteRejection writes a 403 carrying the rejection reason and counts it.
func WriteRejection(ctx *fasthttp.RequestCtx, r *moderation.Rejection) {
	metrics.Rejections.WithLabelValues(string(r.Action), string(r.Reason)).Inc()
	logger.Info("action_rejected", "action", r.Action, "reason", r.Reason, "path", string(ctx.Path()))
	ctx.SetStatusCode(fasthttp.StatusForbidden)
	ctx.Response.Header.Set("Content-Type", "application/json")
	_ = json.NewEncoder(ctx).Encode(ErrorBody{Error: r.Message, Reason: string(r.Reason), Action: string(r.Action)})
}

// StatusFor maps a store or gate error to its HTTP status.
func StatusFor(err error) int {
	if _, ok := moderation.AsRejection(err); ok {
		return fasthttp.StatusForbidden
	}
	switch {
	case errors.Is(err, models.ErrNotFound):
		return fasthttp.StatusNotFound
	case errors.Is(err, store.ErrExists):
		return fasthttp.StatusConflict
	case errors.Is(err, models.ErrInvalid):
		return fasthttp.StatusBadRequest
	case errors.Is(err, store.ErrClosed):
		return fasthttp.StatusServiceUnavailable
	default:
		return fasthttp.StatusInternalServerError
	}
}

// WriteError writes err with the status StatusFor picks. Internal errors are
// logged and their text is not exposed.
func WriteError(ctx *fasthttp.RequestCtx, err error) {
	if r, ok := moderation.AsRejection(err); ok {
		WriteRejection(ctx, r)
		return
	}
	status := StatusFor(err)
	msg := err.Error()
	if status == fasthttp.StatusInternalServerError {
		logger.Error("request_failed", "path", string(ctx.Path()), "error", err)
		msg = "internal error"
	}
	WriteJSONError(ctx, status, msg)
}
