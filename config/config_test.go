package config

import (
	"strings"
	"testing"

	"github.com/lemonops/lemonbot/calendar"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/lemonbot")
	t.Setenv("ENCRYPTION_KEY", "a2V5")
	t.Setenv("CALENDAR_ICS_URL", "https://calendar.example/feed.ics")
	t.Setenv("TWITCH_CLIENT_ID", "cid")
	t.Setenv("TWITCH_CLIENT_SECRET", "csecret")
	t.Setenv("TWITCH_BROADCASTER_LOGIN", "lemon")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.Span() != calendar.SpanWorkweek {
		t.Errorf("default span = %v", cfg.Span())
	}
	if len(cfg.Scopes) != 1 || cfg.Scopes[0] != "channel:manage:schedule" {
		t.Errorf("scopes = %v", cfg.Scopes)
	}
	if cfg.ChatEnabled() {
		t.Error("chat enabled without credentials")
	}
}

func TestLoadReportsAllMissingVariables(t *testing.T) {
	for _, key := range []string{
		"DATABASE_URL", "ENCRYPTION_KEY", "CALENDAR_ICS_URL",
		"TWITCH_CLIENT_ID", "TWITCH_CLIENT_SECRET", "TWITCH_BROADCASTER_LOGIN",
	} {
		t.Setenv(key, "")
	}
	_, err := Load()
	if err == nil {
		t.Fatal("Load with empty env should fail")
	}
	for _, want := range []string{"DATABASE_URL", "CALENDAR_ICS_URL", "TWITCH_CLIENT_SECRET"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %s: %v", want, err)
		}
	}
}

func TestLoadRejectsBadSpan(t *testing.T) {
	setRequired(t)
	t.Setenv("CALENDAR_SPAN", "fortnight")
	if _, err := Load(); err == nil {
		t.Fatal("invalid span accepted")
	}

	t.Setenv("CALENDAR_SPAN", "fullweek")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Span() != calendar.SpanFullWeek {
		t.Errorf("span = %v", cfg.Span())
	}
}

func TestScopesSplitting(t *testing.T) {
	setRequired(t)
	t.Setenv("TWITCH_SCOPES", "channel:manage:schedule, chat:read ,")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Scopes) != 2 || cfg.Scopes[1] != "chat:read" {
		t.Errorf("scopes = %v", cfg.Scopes)
	}
}
