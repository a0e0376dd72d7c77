package app

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/valyala/fasthttp"

	"groupchat/internal/sweeper"
	"groupchat/pkg/api"
	"groupchat/pkg/broadcast"
	"groupchat/pkg/config"
	"groupchat/pkg/config/banner"
	"groupchat/pkg/presence"
	"groupchat/pkg/state/logger"
	"groupchat/pkg/store"
	"groupchat/pkg/telemetry"
)

// App groups server state and components.
type App struct {
	eff       config.EffectiveConfigResult
	version   string
	commit    string
	buildDate string

	store    *store.Store
	hub      *broadcast.Hub
	presence *presence.Registry
	api      *api.API
	sweeper  *sweeper.Sweeper

	sweeperCancel  context.CancelFunc
	presenceCancel context.CancelFunc

	srvFast *fasthttp.Server
	state   string
}

// New sets up what does not need a running context: runtime keys,
// telemetry and the store. Call Run to start serving.
func New(eff config.EffectiveConfigResult, version, commit, buildDate string) (*App, error) {
	if err := config.ValidateConfig(eff); err != nil {
		return nil, err
	}
	cfg := eff.Config
	config.SetConfig(cfg)
	config.SetRuntime(config.RuntimeFromConfig(cfg))
	telemetry.Init(cfg.Telemetry.SampleRate, cfg.Telemetry.SlowThreshold.Duration())

	logger.LogConfigSummary("config_chat_summary", []string{
		fmt.Sprintf("max_body: %s", humanize.IBytes(uint64(cfg.Server.MaxBodySize.Int64()))),
		fmt.Sprintf("max_content_runes: %s", humanize.Comma(int64(cfg.Chat.MaxContentRunes))),
		fmt.Sprintf("history_page: %d/%d", cfg.Chat.HistoryPageSize, cfg.Chat.HistoryMaxPage),
		fmt.Sprintf("subscriber_buffer: %s", humanize.Comma(int64(cfg.Chat.SubscriberBuffer))),
		fmt.Sprintf("presence_ttl: %s", cfg.Chat.PresenceTTL.Duration()),
	})

	st, err := store.Open(eff.DBPath, store.Options{
		MaxContentRunes: cfg.Chat.MaxContentRunes,
		HistoryPageSize: cfg.Chat.HistoryPageSize,
		HistoryMaxPage:  cfg.Chat.HistoryMaxPage,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", eff.DBPath, err)
	}

	return &App{
		eff:       eff,
		version:   version,
		commit:    commit,
		buildDate: buildDate,
		store:     st,
		hub:       broadcast.NewHub(cfg.Chat.SubscriberBuffer),
		presence:  presence.NewRegistry(cfg.Chat.PresenceTTL.Duration(), nil),
		state:     "initialized",
	}, nil
}

// Run starts background jobs and the HTTP server, and blocks until ctx is
// cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	a.printBanner()
	cfg := a.eff.Config

	s, cancel, err := sweeper.Start(ctx, cfg.Sweeper, a.store)
	if err != nil {
		return err
	}
	a.sweeper, a.sweeperCancel = s, cancel

	a.api = api.New(a.deps())

	pctx, pcancel := context.WithCancel(ctx)
	a.presenceCancel = pcancel
	go a.api.Realtime.RunPresenceSweep(pctx, cfg.Chat.PresenceSweep.Duration())

	errCh := a.startHTTP()
	a.state = "running"

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

func (a *App) printBanner() {
	ver := a.version
	if a.commit != "none" && a.commit != "" {
		ver += " (" + a.commit + ")"
	}
	if a.buildDate != "unknown" && a.buildDate != "" {
		ver += " @ " + a.buildDate
	}
	banner.Print(a.eff, ver)
}
