package twitchapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

const helixURL = "https://api.twitch.tv/helix"

// Segment is one scheduled slot on the channel's Twitch schedule.
type Segment struct {
	ID          string    `json:"id"`
	Start       time.Time `json:"start_time"`
	End         time.Time `json:"end_time"`
	Title       string    `json:"title"`
	IsRecurring bool      `json:"is_recurring"`
	Category    *Category `json:"category"`
}

// StartTime implements the calendar package's Timestamped interface so
// remote segments flow through the same window filter as local events.
func (s Segment) StartTime() time.Time { return s.Start }

// Category is a Twitch category/game reference.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SegmentRequest is the creation payload for a schedule segment. Duration
// is in minutes, serialized as a string per the Helix contract. A missing
// category is permitted and simply omitted.
type SegmentRequest struct {
	StartTime   string `json:"start_time"`
	Timezone    string `json:"timezone"`
	Duration    string `json:"duration"`
	IsRecurring bool   `json:"is_recurring"`
	CategoryID  string `json:"category_id,omitempty"`
	Title       string `json:"title,omitempty"`
}

// HelixClient wraps the schedule-related Helix endpoints. Reads use app
// tokens minted per call; mutations use the broadcaster's user token and
// go through the auth-retry wrapper.
type HelixClient struct {
	ClientID   string
	AppTokens  *TokenSource
	UserTokens *UserTokenSource
	HTTPClient *http.Client
	Limiter    *rate.Limiter // optional; Helix enforces a request budget
}

func (hc *HelixClient) http() *http.Client {
	if hc.HTTPClient != nil {
		return hc.HTTPClient
	}
	return http.DefaultClient
}

func (hc *HelixClient) wait(ctx context.Context) error {
	if hc.Limiter == nil {
		return nil
	}
	return hc.Limiter.Wait(ctx)
}

// do issues one Helix request and decodes the response into out when the
// status is 2xx. Non-2xx statuses come back as *APIError.
func (hc *HelixClient) do(ctx context.Context, method, path string, q url.Values, token string, body, out any) error {
	if err := hc.wait(ctx); err != nil {
		return err
	}
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, helixURL+path, rdr)
	if err != nil {
		return err
	}
	if q != nil {
		req.URL.RawQuery = q.Encode()
	}
	req.Header.Set("Client-Id", hc.ClientID)
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := hc.http().Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{Status: resp.StatusCode, Body: string(b)}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// GetBroadcasterID resolves a login name to its user ID.
func (hc *HelixClient) GetBroadcasterID(ctx context.Context, login string) (string, error) {
	if login == "" {
		return "", fmt.Errorf("login empty")
	}
	tok, err := hc.AppTokens.Get(ctx)
	if err != nil {
		return "", err
	}
	q := url.Values{}
	q.Set("login", login)
	var body struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := hc.do(ctx, http.MethodGet, "/users", q, tok, nil, &body); err != nil {
		return "", err
	}
	if len(body.Data) == 0 {
		return "", fmt.Errorf("user not found: %s", login)
	}
	return body.Data[0].ID, nil
}

// GetSchedule returns the channel's current schedule segments. A channel
// with no schedule yet reports 404; that is an empty result, not an error.
func (hc *HelixClient) GetSchedule(ctx context.Context, broadcasterID string) ([]Segment, error) {
	tok, err := hc.AppTokens.Get(ctx)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("broadcaster_id", broadcasterID)
	var body struct {
		Data struct {
			Segments []Segment `json:"segments"`
		} `json:"data"`
	}
	err = hc.do(ctx, http.MethodGet, "/schedule", q, tok, nil, &body)
	if err != nil {
		var ae *APIError
		if errors.As(err, &ae) && ae.Status == http.StatusNotFound {
			slog.Debug("no preexisting twitch schedule", slog.String("broadcaster_id", broadcasterID))
			return nil, nil
		}
		return nil, err
	}
	return body.Data.Segments, nil
}

// SearchCategories resolves free text to the closest-matching category.
// No match yields (nil, nil); ranking is the platform's contract, the first
// result is taken as-is.
func (hc *HelixClient) SearchCategories(ctx context.Context, query string) (*Category, error) {
	tok, err := hc.AppTokens.Get(ctx)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("query", query)
	var body struct {
		Data []Category `json:"data"`
	}
	if err := hc.do(ctx, http.MethodGet, "/search/categories", q, tok, nil, &body); err != nil {
		return nil, err
	}
	if len(body.Data) == 0 {
		slog.Warn("twitch category not found", slog.String("query", query))
		return nil, nil
	}
	return &body.Data[0], nil
}

// CreateSegment creates one schedule segment, refreshing the user token
// once on auth expiry.
func (hc *HelixClient) CreateSegment(ctx context.Context, broadcasterID string, seg SegmentRequest) error {
	q := url.Values{}
	q.Set("broadcaster_id", broadcasterID)
	return WithAuthRetry(ctx, hc.UserTokens, func(token string) error {
		return hc.do(ctx, http.MethodPost, "/schedule/segment", q, token, seg, nil)
	})
}

// DeleteSegment deletes one schedule segment by id, refreshing the user
// token once on auth expiry.
func (hc *HelixClient) DeleteSegment(ctx context.Context, broadcasterID, segmentID string) error {
	q := url.Values{}
	q.Set("broadcaster_id", broadcasterID)
	q.Set("id", segmentID)
	return WithAuthRetry(ctx, hc.UserTokens, func(token string) error {
		return hc.do(ctx, http.MethodDelete, "/schedule/segment", q, token, nil, nil)
	})
}
