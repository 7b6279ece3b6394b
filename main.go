// lemonbot turns a shared ICS calendar into a weekly schedule image and
// keeps the broadcaster's Twitch channel schedule in sync with it.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"github.com/lemonops/lemonbot/bluesky"
	"github.com/lemonops/lemonbot/bus"
	"github.com/lemonops/lemonbot/calendar"
	"github.com/lemonops/lemonbot/chat"
	"github.com/lemonops/lemonbot/config"
	"github.com/lemonops/lemonbot/crypto"
	"github.com/lemonops/lemonbot/db"
	"github.com/lemonops/lemonbot/eventsub"
	"github.com/lemonops/lemonbot/render"
	"github.com/lemonops/lemonbot/schedule"
	"github.com/lemonops/lemonbot/server"
	"github.com/lemonops/lemonbot/store"
	"github.com/lemonops/lemonbot/telemetry"
	"github.com/lemonops/lemonbot/twitchapi"
)

const version = "dev"

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", slog.Any("err", err))
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()
	setupLogging()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	shutdownTracing, err := telemetry.InitTracing("lemonbot", version)
	if err != nil {
		return err
	}
	defer shutdownTracing()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := db.Connect(ctx, cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer func() {
		if err := d.Close(); err != nil {
			slog.Warn("failed to close database", slog.Any("err", err))
		}
	}()
	if err := db.Migrate(ctx, d); err != nil {
		return err
	}

	enc, err := crypto.NewAESEncryptor(cfg.EncryptionKey)
	if err != nil {
		return err
	}

	b := bus.New()
	cfgStore := &store.ConfigStore{DB: d, Bus: b}
	if err := cfgStore.Load(ctx); err != nil {
		return err
	}
	tokStore := &store.TokenStore{DB: d, Enc: enc}

	appTokens := &twitchapi.TokenSource{ClientID: cfg.TwitchClientID, ClientSecret: cfg.TwitchClientSecret}
	userTokens := &twitchapi.UserTokenSource{ClientID: cfg.TwitchClientID, ClientSecret: cfg.TwitchClientSecret, Store: tokStore}
	if state, ok, err := tokStore.LoadToken(ctx); err != nil {
		return err
	} else if ok {
		userTokens.Set(state)
	} else {
		slog.Warn("no stored broadcaster token; visit /auth/twitch/start to authorize")
	}

	helix := &twitchapi.HelixClient{
		ClientID:   cfg.TwitchClientID,
		AppTokens:  appTokens,
		UserTokens: userTokens,
		Limiter:    rate.NewLimiter(rate.Limit(5), 5),
	}

	broadcasterID := cfg.BroadcasterID
	if broadcasterID == "" {
		broadcasterID, err = helix.GetBroadcasterID(ctx, cfg.BroadcasterLogin)
		if err != nil {
			return err
		}
		slog.Info("resolved broadcaster id", slog.String("login", cfg.BroadcasterLogin), slog.String("id", broadcasterID))
	}

	layout, err := render.LoadLayout(cfg.LayoutPath)
	if err != nil {
		return err
	}
	renderer, err := render.New(layout, cfg.AssetsDir)
	if err != nil {
		return err
	}

	tz := cfg.CalendarTimezone
	if tz == "" {
		tz = cfgStore.String("calendar.timezone")
	}
	fetcher := &calendar.Fetcher{
		URL:        cfg.CalendarURL,
		Timezone:   tz,
		Span:       cfg.Span(),
		HTTPClient: calendar.NewHTTPClient(30 * time.Second),
		Config:     cfgStore,
	}

	reconciler := &schedule.Reconciler{Helix: helix, BroadcasterID: broadcasterID, Policies: cfgStore}
	poster := &schedule.Poster{
		Calendar:   fetcher,
		Renderer:   renderer,
		Reconciler: reconciler,
		Policies:   cfgStore,
	}
	if cfg.BlueskyIdentifier != "" && cfg.BlueskyPassword != "" {
		poster.Bluesky = &bluesky.Client{Identifier: cfg.BlueskyIdentifier, Password: cfg.BlueskyPassword}
	}

	var webhook http.Handler
	if cfg.WebhookEnabled() {
		webhook = &eventsub.Handler{Secret: cfg.WebhookSecret, Bus: b}
		mgr := &eventsub.Manager{
			API:           helix,
			BroadcasterID: broadcasterID,
			CallbackURL:   cfg.WebhookCallbackURL,
			Secret:        cfg.WebhookSecret,
		}
		go func() {
			if err := mgr.Subscribe(ctx); err != nil {
				slog.Error("eventsub subscription setup failed", slog.Any("err", err))
			}
		}()
	}

	if cfg.ChatEnabled() {
		announcer := chat.NewAnnouncer(cfg.ChatUsername, cfg.ChatToken, cfg.ChatChannel, b)
		go func() {
			if err := announcer.Run(ctx); err != nil {
				slog.Error("chat announcer stopped", slog.Any("err", err))
			}
		}()
	}

	if cfg.AutoPostCron != "" {
		c := cron.New()
		if _, err := c.AddFunc(cfg.AutoPostCron, func() {
			jobCtx := telemetry.WithCorrelation(ctx, telemetry.NewCorrelationID())
			if _, err := poster.Post(jobCtx, time.Now(), schedule.Options{}); err != nil {
				slog.Error("scheduled post failed", slog.Any("err", err))
			}
		}); err != nil {
			return err
		}
		c.Start()
		defer c.Stop()
		slog.Info("auto-post scheduled", slog.String("cron", cfg.AutoPostCron))
	}

	var oauthFlow *server.OAuthFlow
	if cfg.RedirectURI != "" {
		oauthFlow = server.NewOAuthFlow(cfg.TwitchClientID, cfg.TwitchClientSecret, cfg.RedirectURI, cfg.Scopes, userTokens, tokStore)
	}

	srv := &server.Server{Config: cfgStore, Poster: poster, OAuth: oauthFlow, Webhook: webhook}
	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", slog.String("addr", cfg.ListenAddr))
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

func setupLogging() {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
