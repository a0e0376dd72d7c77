package api

import (
	"net/http"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"groupchat/pkg/api/auth"
	"groupchat/pkg/api/router"
	"groupchat/pkg/api/routes/admin"
	"groupchat/pkg/api/routes/backend"
	"groupchat/pkg/api/routes/common"
	"groupchat/pkg/api/routes/frontend"
	"groupchat/pkg/api/routes/realtime"
	"groupchat/pkg/metrics"
)

// Deps is what the HTTP surface needs from the app.
type Deps struct {
	Env      *common.Env
	Security auth.SecConfig
	// SweepMutes backs POST /admin/jobs/sweep-mutes; nil disables it.
	SweepMutes admin.SweepFunc
}

type API struct {
	gateway  *auth.Gateway
	router   *router.Router
	Realtime *realtime.Handlers
}

func New(d Deps) *API {
	a := &API{
		gateway:  auth.NewGateway(d.Security),
		router:   router.New(),
		Realtime: realtime.New(d.Env),
	}
	RegisterRoutes(a.router, d, a.Realtime)
	return a
}

// Handler is the gateway-wrapped router.
func (a *API) Handler() fasthttp.RequestHandler {
	return a.gateway.Wrap(a.router.Handler)
}

// Shutdown stops background work owned by the HTTP layer.
func (a *API) Shutdown() {
	a.gateway.Shutdown()
}

func wrapHTTPHandler(h http.Handler) fasthttp.RequestHandler {
	return fasthttpadaptor.NewFastHTTPHandler(h)
}

// RegisterRoutes wires every route onto r.
func RegisterRoutes(r *router.Router, d Deps, rt *realtime.Handlers) {
	be := backend.New(d.Env)
	fe := frontend.New(d.Env)
	ad := admin.New(d.Env, d.SweepMutes)
	user := auth.RequireUser
	backendOnly := auth.RequireBackend

	// ops
	r.GET("/healthz", ad.Health)
	r.GET("/readyz", ad.Ready)

	// backend operations
	r.POST("/v1/_sign", backendOnly(be.Sign))
	r.POST("/v1/channels", backendOnly(be.CreateChannel))
	r.PUT("/v1/groups/{groupID}/members/{userID}", backendOnly(be.PutMember))
	r.POST("/v1/channels/{channelID}/system", backendOnly(be.PostSystem))

	// channel reads and rename
	r.GET("/v1/channels/{channelID}", fe.GetChannel)
	r.PATCH("/v1/channels/{channelID}", fe.RenameChannel)
	r.GET("/v1/channels/{channelID}/members", fe.ListMembers)
	r.GET("/v1/channels/{channelID}/reactions", fe.ListReactions)

	// messages
	r.GET("/v1/channels/{channelID}/messages", fe.ListMessages)
	r.POST("/v1/channels/{channelID}/messages", user(fe.SendMessage))
	r.PATCH("/v1/messages/{messageID}", user(fe.EditMessage))
	r.DELETE("/v1/messages/{messageID}", user(fe.DeleteMessage))
	r.POST("/v1/messages/{messageID}/pin", user(fe.PinMessage))
	r.DELETE("/v1/messages/{messageID}/pin", user(fe.UnpinMessage))
	r.POST("/v1/messages/{messageID}/reactions/{emoji}", user(fe.AddReaction))
	r.DELETE("/v1/messages/{messageID}/reactions/{emoji}", user(fe.RemoveReaction))

	// moderation and read marks
	r.POST("/v1/groups/{groupID}/mutes/{userID}", user(fe.Mute))
	r.DELETE("/v1/groups/{groupID}/mutes/{userID}", user(fe.Unmute))
	r.POST("/v1/channels/{channelID}/read", user(fe.MarkRead))

	// realtime
	r.GET("/v1/channels/{channelID}/events", rt.Events)
	r.GET("/v1/channels/{channelID}/presence", user(rt.Presence))

	// admin
	r.GET("/admin/health", ad.Health)
	r.GET("/admin/stats", ad.Stats)
	r.POST("/admin/jobs/sweep-mutes", ad.SweepMutes)
	r.GET("/admin/messages/{messageID}/original", ad.DeletedOriginal)
	r.GET("/admin/debug/prometheus", wrapHTTPHandler(metrics.Handler()))
}
