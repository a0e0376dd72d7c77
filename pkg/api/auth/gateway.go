package auth

import (
	"net"
	"strings"

	"github.com/valyala/fasthttp"

	"groupchat/pkg/api/router"
	"groupchat/pkg/api/utils"
	"groupchat/pkg/state/logger"
)

// Gateway authenticates every request before it reaches the router: CORS,
// IP whitelist, API key role, per-key rate limit and actor resolution.
type Gateway struct {
	cfg      SecConfig
	limiters *limiterPool
}

func NewGateway(cfg SecConfig) *Gateway {
	return &Gateway{cfg: cfg, limiters: newLimiterPool(cfg.RPS, cfg.Burst)}
}

// Shutdown stops background limiter cleanup.
func (g *Gateway) Shutdown() { g.limiters.Shutdown() }

// Wrap returns next guarded by the gateway.
func (g *Gateway) Wrap(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		logger.LogRequestFast(ctx)

		origin := utils.GetHeader(ctx, "Origin")
		if origin != "" && originAllowed(origin, g.cfg.AllowedOrigins) {
			h := &ctx.Response.Header
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Vary", "Origin")
			h.Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
			h.Set("Access-Control-Max-Age", "600")
			h.Set("Access-Control-Allow-Headers", "Authorization,Content-Type,X-API-Key,X-User-ID,X-User-Signature")
		}
		if string(ctx.Method()) == fasthttp.MethodOptions {
			ctx.SetStatusCode(fasthttp.StatusNoContent)
			return
		}

		if len(g.cfg.IPWhitelist) > 0 {
			ip := clientIP(ctx)
			if !ipWhitelisted(ip, g.cfg.IPWhitelist) {
				logger.Warn("request_blocked", "reason", "ip_not_whitelisted", "ip", ip, "path", utils.GetPath(ctx))
				router.WriteJSONError(ctx, fasthttp.StatusForbidden, "forbidden")
				return
			}
		}

		// role header is ours to set; never trust the caller's
		ctx.Request.Header.Del(utils.HeaderRole)

		if publicPath(ctx) {
			next(ctx)
			return
		}

		role, key := g.role(ctx)
		if role == RoleUnauth {
			logger.Warn("request_unauthorized", "path", utils.GetPath(ctx), "remote", ctx.RemoteAddr().String())
			router.WriteJSONError(ctx, fasthttp.StatusUnauthorized, "unauthorized")
			return
		}
		ctx.Request.Header.Set(utils.HeaderRole, role.String())

		admin := utils.HasPathPrefix(ctx, "/admin")
		if role == RoleAdmin && !admin {
			logger.Warn("admin_route_violation", "path", utils.GetPath(ctx))
			router.WriteJSONError(ctx, fasthttp.StatusForbidden, "admin api keys may only access /admin routes")
			return
		}
		if role != RoleAdmin && admin {
			logger.Warn("admin_access_attempt", "role", role.String(), "path", utils.GetPath(ctx))
			router.WriteJSONError(ctx, fasthttp.StatusForbidden, "admin api key required")
			return
		}

		if !g.limiters.Allow(key) {
			logger.Warn("rate_limited", "role", role.String(), "path", utils.GetPath(ctx))
			router.WriteJSONError(ctx, fasthttp.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		if !resolveActor(ctx, role) {
			return
		}
		next(ctx)
	}
}

func (g *Gateway) role(ctx *fasthttp.RequestCtx) (Role, string) {
	key := utils.ExtractAPIKey(ctx)
	if key == "" {
		return RoleUnauth, ""
	}
	if _, ok := g.cfg.AdminKeys[key]; ok {
		return RoleAdmin, key
	}
	if _, ok := g.cfg.BackendKeys[key]; ok {
		return RoleBackend, key
	}
	if _, ok := g.cfg.FrontendKeys[key]; ok {
		return RoleFrontend, key
	}
	return RoleUnauth, key
}

func clientIP(ctx *fasthttp.RequestCtx) string {
	host := ctx.RemoteAddr().String()
	h, _, err := net.SplitHostPort(host)
	if err != nil {
		return host
	}
	return h
}

func originAllowed(origin string, allowed []string) bool {
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}

func ipWhitelisted(ip string, list []string) bool {
	for _, w := range list {
		if ip == w {
			return true
		}
	}
	return false
}

func publicPath(ctx *fasthttp.RequestCtx) bool {
	if string(ctx.Method()) != fasthttp.MethodGet {
		return false
	}
	p := utils.GetPath(ctx)
	return p == "/healthz" || p == "/readyz"
}
