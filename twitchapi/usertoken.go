package twitchapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/lemonops/lemonbot/telemetry"
)

// AuthState is the current user-token material for the broadcaster account.
// It is held explicitly here instead of in process environment so that every
// component that needs it receives it by reference.
type AuthState struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Scope        string
}

// TokenPersister stores refreshed token material so a restart does not force
// the operator back through the authorization flow.
type TokenPersister interface {
	SaveToken(ctx context.Context, state AuthState) error
}

// UserTokenSource owns the broadcaster's OAuth tokens (authorization-code
// flow) and can refresh them with the refresh_token grant.
type UserTokenSource struct {
	ClientID     string
	ClientSecret string
	HTTPClient   *http.Client
	Store        TokenPersister // optional

	mu    sync.RWMutex
	state AuthState
}

// Set replaces the current token material, e.g. after the authorization
// callback completes or a background refresher rotated the tokens.
func (u *UserTokenSource) Set(state AuthState) {
	u.mu.Lock()
	u.state = state
	u.mu.Unlock()
}

// State returns a copy of the current token material.
func (u *UserTokenSource) State() AuthState {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.state
}

// AccessToken returns the current access token, which may be expired; the
// auth-retry wrapper handles the resulting 401.
func (u *UserTokenSource) AccessToken() string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.state.AccessToken
}

// Refresh exchanges the refresh token for new token material, updates the
// in-memory state, and persists it when a store is configured.
func (u *UserTokenSource) Refresh(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.state.RefreshToken == "" {
		return errors.New("no refresh token available; authorize the broadcaster account first")
	}

	res, err := refreshGrant(ctx, u.http(), u.ClientID, u.ClientSecret, u.state.RefreshToken)
	if err != nil {
		return err
	}

	u.state.AccessToken = res.AccessToken
	if res.RefreshToken != "" {
		u.state.RefreshToken = res.RefreshToken
	}
	u.state.ExpiresAt = ComputeExpiry(res.ExpiresIn)
	if len(res.Scope) > 0 {
		u.state.Scope = strings.Join(res.Scope, " ")
	}

	if u.Store != nil {
		if err := u.Store.SaveToken(ctx, u.state); err != nil {
			slog.Warn("failed to persist refreshed token", slog.Any("err", err))
		}
	}
	telemetry.TokenRefreshes.Inc()
	slog.Info("twitch user token refreshed", slog.Time("expires_at", u.state.ExpiresAt))
	return nil
}

func (u *UserTokenSource) http() *http.Client {
	if u.HTTPClient != nil {
		return u.HTTPClient
	}
	return http.DefaultClient
}

// ComputeExpiry returns an absolute expiry from seconds, defaulting to +60m
// when the response omits it.
func ComputeExpiry(seconds int) time.Time {
	if seconds <= 0 {
		return time.Now().Add(60 * time.Minute)
	}
	return time.Now().Add(time.Duration(seconds) * time.Second)
}

type refreshResult struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	TokenType    string   `json:"token_type"`
	Scope        []string `json:"scope"`
	ExpiresIn    int      `json:"expires_in"`
}

func refreshGrant(ctx context.Context, hc *http.Client, clientID, clientSecret, refreshToken string) (*refreshResult, error) {
	if clientID == "" || clientSecret == "" {
		return nil, errors.New("missing clientID/clientSecret for token refresh")
	}
	form := url.Values{}
	form.Set("client_id", clientID)
	form.Set("client_secret", clientSecret)
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	var res refreshResult
	if err := postTokenForm(ctx, hc, form, &res); err != nil {
		return nil, err
	}
	if res.AccessToken == "" {
		return nil, errors.New("empty access_token in refresh response")
	}
	return &res, nil
}
