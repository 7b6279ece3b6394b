// Package config loads process-level configuration from the environment.
// Anything an operator edits at runtime lives in store.ConfigStore instead.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/lemonops/lemonbot/calendar"
)

// Config is the immutable startup configuration.
type Config struct {
	ListenAddr string

	DatabaseDSN   string
	EncryptionKey string

	CalendarURL      string
	CalendarTimezone string
	CalendarSpan     string

	AssetsDir  string
	LayoutPath string

	TwitchClientID     string
	TwitchClientSecret string
	BroadcasterLogin   string
	BroadcasterID      string // optional; resolved from the login when empty
	RedirectURI        string
	Scopes             []string
	WebhookSecret      string
	WebhookCallbackURL string

	ChatUsername string
	ChatToken    string
	ChatChannel  string

	BlueskyIdentifier string
	BlueskyPassword   string

	AutoPostCron string // cron spec for the weekly post; empty disables
}

// Load reads the environment. Missing required variables are reported
// together so a broken deployment fails with one complete message.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:         getenv("LISTEN_ADDR", ":8080"),
		DatabaseDSN:        os.Getenv("DATABASE_URL"),
		EncryptionKey:      os.Getenv("ENCRYPTION_KEY"),
		CalendarURL:        os.Getenv("CALENDAR_ICS_URL"),
		CalendarTimezone:   os.Getenv("CALENDAR_TIMEZONE"),
		CalendarSpan:       getenv("CALENDAR_SPAN", "workweek"),
		AssetsDir:          getenv("ASSETS_DIR", "assets"),
		LayoutPath:         getenv("LAYOUT_PATH", "layout.yaml"),
		TwitchClientID:     os.Getenv("TWITCH_CLIENT_ID"),
		TwitchClientSecret: os.Getenv("TWITCH_CLIENT_SECRET"),
		BroadcasterLogin:   os.Getenv("TWITCH_BROADCASTER_LOGIN"),
		BroadcasterID:      os.Getenv("TWITCH_BROADCASTER_ID"),
		RedirectURI:        os.Getenv("TWITCH_REDIRECT_URI"),
		Scopes:             splitList(getenv("TWITCH_SCOPES", "channel:manage:schedule")),
		WebhookSecret:      os.Getenv("TWITCH_WEBHOOK_SECRET"),
		WebhookCallbackURL: os.Getenv("WEBHOOK_CALLBACK_URL"),
		ChatUsername:       os.Getenv("CHAT_USERNAME"),
		ChatToken:          os.Getenv("CHAT_TOKEN"),
		ChatChannel:        os.Getenv("CHAT_CHANNEL"),
		BlueskyIdentifier:  os.Getenv("BLUESKY_IDENTIFIER"),
		BlueskyPassword:    os.Getenv("BLUESKY_APP_PASSWORD"),
		AutoPostCron:       os.Getenv("AUTO_POST_CRON"),
	}

	var errs []error
	for name, val := range map[string]string{
		"DATABASE_URL":             cfg.DatabaseDSN,
		"ENCRYPTION_KEY":           cfg.EncryptionKey,
		"CALENDAR_ICS_URL":         cfg.CalendarURL,
		"TWITCH_CLIENT_ID":         cfg.TwitchClientID,
		"TWITCH_CLIENT_SECRET":     cfg.TwitchClientSecret,
		"TWITCH_BROADCASTER_LOGIN": cfg.BroadcasterLogin,
	} {
		if val == "" {
			errs = append(errs, fmt.Errorf("%s is required", name))
		}
	}
	if cfg.CalendarSpan != "workweek" && cfg.CalendarSpan != "fullweek" {
		errs = append(errs, fmt.Errorf("CALENDAR_SPAN must be workweek or fullweek, got %q", cfg.CalendarSpan))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

// Span maps the configured span name to the calendar type.
func (c *Config) Span() calendar.Span {
	if c.CalendarSpan == "fullweek" {
		return calendar.SpanFullWeek
	}
	return calendar.SpanWorkweek
}

// ChatEnabled reports whether the chat announcer has everything it needs.
func (c *Config) ChatEnabled() bool {
	return c.ChatUsername != "" && c.ChatToken != "" && c.ChatChannel != ""
}

// WebhookEnabled reports whether eventsub webhooks can be registered.
func (c *Config) WebhookEnabled() bool {
	return c.WebhookSecret != "" && c.WebhookCallbackURL != ""
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
