package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func refreshCountingServer(t *testing.T, refreshes *int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/oauth2/token" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.Form.Get("grant_type"); got != "refresh_token" {
			t.Errorf("grant_type = %q", got)
		}
		*refreshes++
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "fresh-token",
			"refresh_token": "fresh-refresh",
			"expires_in":    3600,
			"scope":         []string{"channel:manage:schedule"},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestWithAuthRetryRefreshesOnceAndRetriesOnce(t *testing.T) {
	refreshes := 0
	srv := refreshCountingServer(t, &refreshes)
	uts := seededUserTokens(srv.URL, "stale-token", "old-refresh")

	calls := 0
	err := WithAuthRetry(context.Background(), uts, func(token string) error {
		calls++
		if calls == 1 {
			if token != "stale-token" {
				t.Errorf("first call token = %q", token)
			}
			return &APIError{Status: http.StatusUnauthorized, Body: "token expired"}
		}
		if token != "fresh-token" {
			t.Errorf("retried call token = %q, want refreshed token", token)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithAuthRetry: %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if refreshes != 1 {
		t.Errorf("refreshes = %d, want exactly 1", refreshes)
	}
	if got := uts.State().RefreshToken; got != "fresh-refresh" {
		t.Errorf("refresh token not rotated, got %q", got)
	}
}

func TestWithAuthRetrySecondFailurePropagatesWithoutSecondRefresh(t *testing.T) {
	refreshes := 0
	srv := refreshCountingServer(t, &refreshes)
	uts := seededUserTokens(srv.URL, "stale-token", "old-refresh")

	calls := 0
	err := WithAuthRetry(context.Background(), uts, func(string) error {
		calls++
		return &APIError{Status: http.StatusUnauthorized, Body: "still expired"}
	})
	if !IsAuthExpired(err) {
		t.Fatalf("err = %v, want the second 401 surfaced", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if refreshes != 1 {
		t.Errorf("refreshes = %d, want exactly 1", refreshes)
	}
}

func TestWithAuthRetryNonAuthFailureSkipsRefresh(t *testing.T) {
	refreshes := 0
	srv := refreshCountingServer(t, &refreshes)
	uts := seededUserTokens(srv.URL, "token", "refresh")

	boom := &APIError{Status: http.StatusInternalServerError, Body: "boom"}
	err := WithAuthRetry(context.Background(), uts, func(string) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want original failure", err)
	}
	if refreshes != 0 {
		t.Errorf("refreshes = %d, want 0", refreshes)
	}
}

type savedTokens struct {
	states []AuthState
}

func (s *savedTokens) SaveToken(_ context.Context, st AuthState) error {
	s.states = append(s.states, st)
	return nil
}

func TestRefreshPersistsThroughStore(t *testing.T) {
	refreshes := 0
	srv := refreshCountingServer(t, &refreshes)
	store := &savedTokens{}
	uts := seededUserTokens(srv.URL, "stale", "old-refresh")
	uts.Store = store

	if err := uts.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(store.states) != 1 {
		t.Fatalf("persisted states = %d, want 1", len(store.states))
	}
	st := store.states[0]
	if st.AccessToken != "fresh-token" || st.RefreshToken != "fresh-refresh" {
		t.Errorf("persisted state = %+v", st)
	}
	if st.ExpiresAt.Before(time.Now().Add(50 * time.Minute)) {
		t.Errorf("expiry not applied: %v", st.ExpiresAt)
	}
}

func TestRefreshWithoutRefreshToken(t *testing.T) {
	uts := &UserTokenSource{ClientID: "id", ClientSecret: "secret"}
	if err := uts.Refresh(context.Background()); err == nil {
		t.Fatal("Refresh without refresh token should fail")
	}
}
