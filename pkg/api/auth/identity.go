package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/valyala/fasthttp"

	"groupchat/pkg/api/router"
	"groupchat/pkg/api/utils"
	"groupchat/pkg/config"
	"groupchat/pkg/state/logger"
	"groupchat/pkg/telemetry"
)

// Role is the caller class selected by the API key.
type Role int

const (
	RoleUnauth Role = iota
	RoleFrontend
	RoleBackend
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleFrontend:
		return "frontend"
	case RoleBackend:
		return "backend"
	case RoleAdmin:
		return "admin"
	default:
		return "unauth"
	}
}

// MaxUserIDLen bounds user ids accepted in headers and signing requests.
const MaxUserIDLen = 128

// SecConfig is the gateway's view of the server security settings.
type SecConfig struct {
	AllowedOrigins []string
	RPS            float64
	Burst          int
	IPWhitelist    []string
	BackendKeys    map[string]struct{}
	FrontendKeys   map[string]struct{}
	AdminKeys      map[string]struct{}
}

func keySet(keys []string) map[string]struct{} {
	out := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k != "" {
			out[k] = struct{}{}
		}
	}
	return out
}

// SecConfigFrom builds the gateway settings from the server config.
func SecConfigFrom(c config.ServerConfig) SecConfig {
	return SecConfig{
		AllowedOrigins: c.CORS.AllowedOrigins,
		RPS:            c.RateLimit.RPS,
		Burst:          c.RateLimit.Burst,
		IPWhitelist:    c.IPWhitelist,
		BackendKeys:    keySet(c.APIKeys.Backend),
		FrontendKeys:   keySet(c.APIKeys.Frontend),
		AdminKeys:      keySet(c.APIKeys.Admin),
	}
}

// CreateHMACSignature signs a user id with key.
func CreateHMACSignature(userID, key string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(userID))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHMACSignature checks signature against every configured signing key.
func VerifyHMACSignature(userID, signature string) bool {
	for k := range config.GetSigningKeys() {
		if hmac.Equal([]byte(CreateHMACSignature(userID, k)), []byte(signature)) {
			return true
		}
	}
	return false
}

// resolveActor sets the acting user for the request. Frontends must present
// a valid signature; backends may name a user in X-User-ID or act as
// themselves.
func resolveActor(ctx *fasthttp.RequestCtx, role Role) bool {
	tr := telemetry.Track("auth.resolve_actor")
	defer tr.Finish()

	userID := utils.GetHeader(ctx, utils.HeaderUserID)
	if len(userID) > MaxUserIDLen {
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, "user id too long")
		return false
	}
	sig := utils.GetHeader(ctx, utils.HeaderSignature)

	switch role {
	case RoleBackend:
		if sig != "" && !VerifyHMACSignature(userID, sig) {
			logger.Warn("invalid_signature", "user", userID, "remote", ctx.RemoteAddr().String(), "path", utils.GetPath(ctx))
			router.WriteJSONError(ctx, fasthttp.StatusUnauthorized, "invalid signature")
			return false
		}
		ctx.SetUserValue(utils.UserValueActor, userID)
		return true
	case RoleFrontend:
		if sig == "" || userID == "" {
			logger.Warn("missing_signature_headers", "path", utils.GetPath(ctx), "remote", ctx.RemoteAddr().String())
			router.WriteJSONError(ctx, fasthttp.StatusUnauthorized, "missing signature headers")
			return false
		}
		tr.Mark("verify_signature")
		if !VerifyHMACSignature(userID, sig) {
			logger.Warn("invalid_signature", "user", userID, "remote", ctx.RemoteAddr().String(), "path", utils.GetPath(ctx))
			router.WriteJSONError(ctx, fasthttp.StatusUnauthorized, "invalid signature")
			return false
		}
		logger.Debug("signature_verified", "user", userID, "path", utils.GetPath(ctx))
		ctx.SetUserValue(utils.UserValueActor, userID)
		return true
	default:
		return true
	}
}

// RequireBackend wraps a handler that only backend keys may call.
func RequireBackend(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		if !utils.IsBackendRole(ctx) {
			logger.Warn("request_forbidden", "reason", "backend_only", "path", utils.GetPath(ctx))
			router.WriteJSONError(ctx, fasthttp.StatusForbidden, "backend api key required")
			return
		}
		next(ctx)
	}
}

// RequireUser wraps a handler that must act as a specific member.
func RequireUser(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		if utils.Actor(ctx) == "" {
			router.WriteJSONError(ctx, fasthttp.StatusBadRequest, "X-User-ID required")
			return
		}
		next(ctx)
	}
}
