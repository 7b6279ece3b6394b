// Package chat posts go-live and offline announcements into the
// broadcaster's Twitch chat, driven by stream status messages on the bus.
package chat

import (
	"context"
	"log/slog"
	"strings"

	twitchirc "github.com/gempir/go-twitch-irc/v4"

	"github.com/lemonops/lemonbot/bus"
)

const (
	defaultLiveMessage    = "We're live! Come hang out."
	defaultOfflineMessage = "Stream's over, thanks for watching!"
)

// Announcer maintains the IRC connection and relays bus messages to chat.
type Announcer struct {
	Channel        string
	LiveMessage    string
	OfflineMessage string

	client *twitchirc.Client
	bus    *bus.Bus
}

// NewAnnouncer builds an announcer for one channel. token is the chat
// account's OAuth token, with or without the "oauth:" prefix.
func NewAnnouncer(username, token, channel string, b *bus.Bus) *Announcer {
	if !strings.HasPrefix(token, "oauth:") {
		token = "oauth:" + token
	}
	return &Announcer{
		Channel: channel,
		client:  twitchirc.NewClient(username, token),
		bus:     b,
	}
}

// Run connects to chat and blocks until the connection drops or ctx is
// canceled. Cancellation is a clean shutdown, not an error.
func (a *Announcer) Run(ctx context.Context) error {
	events := a.bus.Stream.Subscribe(8)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-events:
				a.announce(ev)
			}
		}
	}()

	a.client.OnConnect(func() {
		slog.Info("chat connected", slog.String("channel", a.Channel))
	})
	a.client.Join(a.Channel)

	errCh := make(chan error, 1)
	go func() { errCh <- a.client.Connect() }()

	select {
	case <-ctx.Done():
		if err := a.client.Disconnect(); err != nil {
			slog.Warn("chat disconnect", slog.Any("err", err))
		}
		return nil
	case err := <-errCh:
		return err
	}
}

func (a *Announcer) announce(ev bus.StreamStatus) {
	msg := a.message(ev)
	slog.Info("announcing stream status", slog.Bool("live", ev.Live))
	a.client.Say(a.Channel, msg)
}

func (a *Announcer) message(ev bus.StreamStatus) string {
	if ev.Live {
		if a.LiveMessage != "" {
			return a.LiveMessage
		}
		return defaultLiveMessage
	}
	if a.OfflineMessage != "" {
		return a.OfflineMessage
	}
	return defaultOfflineMessage
}
