package eventsub

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lemonops/lemonbot/twitchapi"
)

// API is the slice of the Twitch client the manager needs.
type API interface {
	CreateEventSubSubscription(ctx context.Context, subType, broadcasterID, callbackURL, secret string) error
	ListEventSubSubscriptions(ctx context.Context) ([]twitchapi.EventSubSubscription, error)
	DeleteEventSubSubscription(ctx context.Context, id string) error
}

// Manager registers and tears down the webhook subscriptions for one
// broadcaster.
type Manager struct {
	API           API
	BroadcasterID string
	CallbackURL   string
	Secret        string
}

// Subscribe registers the stream.online and stream.offline webhooks.
// Starting clean avoids duplicate deliveries from subscriptions left over
// by an earlier run, so existing ones are removed first.
func (m *Manager) Subscribe(ctx context.Context) error {
	if err := m.UnsubscribeAll(ctx); err != nil {
		return err
	}
	for _, subType := range []string{TypeStreamOnline, TypeStreamOffline} {
		if err := m.API.CreateEventSubSubscription(ctx, subType, m.BroadcasterID, m.CallbackURL, m.Secret); err != nil {
			return fmt.Errorf("subscribe %s: %w", subType, err)
		}
		slog.Info("eventsub subscription created", slog.String("type", subType))
	}
	return nil
}

// UnsubscribeAll removes every subscription registered by this app.
func (m *Manager) UnsubscribeAll(ctx context.Context) error {
	subs, err := m.API.ListEventSubSubscriptions(ctx)
	if err != nil {
		return fmt.Errorf("list subscriptions: %w", err)
	}
	for _, sub := range subs {
		if err := m.API.DeleteEventSubSubscription(ctx, sub.ID); err != nil {
			return fmt.Errorf("delete subscription %s: %w", sub.ID, err)
		}
	}
	return nil
}
