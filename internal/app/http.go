package app

import (
	"context"
	"time"

	"github.com/valyala/fasthttp"

	"groupchat/pkg/api"
	"groupchat/pkg/api/auth"
	"groupchat/pkg/api/routes/admin"
	"groupchat/pkg/api/routes/common"
	"groupchat/pkg/state/logger"
)

func (a *App) deps() api.Deps {
	cfg := a.eff.Config
	var sweep admin.SweepFunc
	if a.sweeper != nil {
		sweep = func(ctx context.Context) (int, error) { return a.sweeper.RunOnce(ctx) }
	}
	return api.Deps{
		Env: &common.Env{
			Store:    a.store,
			Hub:      a.hub,
			Presence: a.presence,
			Chat:     cfg.Chat,
		},
		Security:   auth.SecConfigFrom(cfg.Server),
		SweepMutes: sweep,
	}
}

// startHTTP builds and starts the fasthttp server, returning a channel that
// delivers the listener error.
func (a *App) startHTTP() <-chan error {
	const (
		readBufferSize       = 16 * 1024
		readTimeout          = 10 * time.Second
		writeTimeout         = 10 * time.Second
		idleTimeout          = 60 * time.Second
		maxKeepaliveDuration = 5 * time.Minute
	)
	a.srvFast = &fasthttp.Server{
		Name:                 "groupchat",
		Handler:              a.api.Handler(),
		ReadBufferSize:       readBufferSize,
		MaxRequestBodySize:   int(a.eff.Config.Server.MaxBodySize.Int64()),
		ReadTimeout:          readTimeout,
		WriteTimeout:         writeTimeout,
		IdleTimeout:          idleTimeout,
		MaxKeepaliveDuration: maxKeepaliveDuration,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http_listening", "addr", a.eff.Addr)
		errCh <- a.srvFast.ListenAndServe(a.eff.Addr)
	}()
	return errCh
}
