package utils

import (
	"strings"

	"github.com/valyala/fasthttp"
)

const (
	HeaderRole      = "X-Role-Name"
	HeaderUserID    = "X-User-ID"
	HeaderSignature = "X-User-Signature"
	HeaderAPIKey    = "X-API-Key"

	// UserValueActor holds the authenticated acting user id.
	UserValueActor = "actor"
)

// ExtractAPIKey reads "Authorization: Bearer <key>" or X-API-Key.
func ExtractAPIKey(ctx *fasthttp.RequestCtx) string {
	if auth := GetHeader(ctx, "Authorization"); auth != "" {
		parts := strings.Fields(auth)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}
	return GetHeader(ctx, HeaderAPIKey)
}

// GetApiRole returns the role the gateway assigned, lowercased.
func GetApiRole(ctx *fasthttp.RequestCtx) string {
	return GetHeaderLower(ctx, HeaderRole)
}

func IsBackendRole(ctx *fasthttp.RequestCtx) bool {
	return GetApiRole(ctx) == "backend"
}

func IsFrontendRole(ctx *fasthttp.RequestCtx) bool {
	return GetApiRole(ctx) == "frontend"
}

func HasUserSignature(ctx *fasthttp.RequestCtx) bool {
	return GetHeader(ctx, HeaderSignature) != ""
}

// Actor returns the user the request acts as: the signature-verified user
// for frontends, the X-User-ID header for backends. Empty means a backend
// acting as itself.
func Actor(ctx *fasthttp.RequestCtx) string {
	if v, ok := ctx.UserValue(UserValueActor).(string); ok {
		return v
	}
	return ""
}
