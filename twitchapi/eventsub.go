package twitchapi

import (
	"context"
	"net/http"
	"net/url"
)

// EventSubSubscription is one registered webhook subscription.
type EventSubSubscription struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Status string `json:"status"`
}

type eventSubTransport struct {
	Method   string `json:"method"`
	Callback string `json:"callback"`
	Secret   string `json:"secret"`
}

type eventSubCreateRequest struct {
	Type      string            `json:"type"`
	Version   string            `json:"version"`
	Condition map[string]string `json:"condition"`
	Transport eventSubTransport `json:"transport"`
}

// CreateEventSubSubscription registers a webhook subscription for the
// broadcaster. Webhook transports authenticate with the app token.
func (hc *HelixClient) CreateEventSubSubscription(ctx context.Context, subType, broadcasterID, callbackURL, secret string) error {
	tok, err := hc.AppTokens.Get(ctx)
	if err != nil {
		return err
	}
	req := eventSubCreateRequest{
		Type:      subType,
		Version:   "1",
		Condition: map[string]string{"broadcaster_user_id": broadcasterID},
		Transport: eventSubTransport{Method: "webhook", Callback: callbackURL, Secret: secret},
	}
	return hc.do(ctx, http.MethodPost, "/eventsub/subscriptions", nil, tok, req, nil)
}

// ListEventSubSubscriptions returns the app's current subscriptions.
func (hc *HelixClient) ListEventSubSubscriptions(ctx context.Context) ([]EventSubSubscription, error) {
	tok, err := hc.AppTokens.Get(ctx)
	if err != nil {
		return nil, err
	}
	var body struct {
		Data []EventSubSubscription `json:"data"`
	}
	if err := hc.do(ctx, http.MethodGet, "/eventsub/subscriptions", nil, tok, nil, &body); err != nil {
		return nil, err
	}
	return body.Data, nil
}

// DeleteEventSubSubscription removes one subscription by id.
func (hc *HelixClient) DeleteEventSubSubscription(ctx context.Context, id string) error {
	tok, err := hc.AppTokens.Get(ctx)
	if err != nil {
		return err
	}
	q := url.Values{}
	q.Set("id", id)
	return hc.do(ctx, http.MethodDelete, "/eventsub/subscriptions", q, tok, nil, nil)
}
