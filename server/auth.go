package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/lemonops/lemonbot/telemetry"
	"github.com/lemonops/lemonbot/twitchapi"
)

const stateTTL = 10 * time.Minute

// OAuthFlow runs the authorization-code exchange for the broadcaster
// account. One pending state at a time is plenty for a single-operator
// service.
type OAuthFlow struct {
	Conf   *oauth2.Config
	Tokens *twitchapi.UserTokenSource
	Store  twitchapi.TokenPersister // optional
	Scopes []string

	mu       sync.Mutex
	state    string
	stateExp time.Time
}

// NewOAuthFlow builds the flow against the Twitch authorization endpoints.
func NewOAuthFlow(clientID, clientSecret, redirectURI string, scopes []string, tokens *twitchapi.UserTokenSource, store twitchapi.TokenPersister) *OAuthFlow {
	return &OAuthFlow{
		Conf: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       scopes,
			Endpoint:     endpoints.Twitch,
		},
		Tokens: tokens,
		Store:  store,
		Scopes: scopes,
	}
}

func (f *OAuthFlow) handleStart(w http.ResponseWriter, r *http.Request) {
	state := telemetry.NewCorrelationID()
	f.mu.Lock()
	f.state = state
	f.stateExp = time.Now().Add(stateTTL)
	f.mu.Unlock()
	http.Redirect(w, r, f.Conf.AuthCodeURL(state), http.StatusFound)
}

func (f *OAuthFlow) handleCallback(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	f.mu.Lock()
	valid := state != "" && state == f.state && time.Now().Before(f.stateExp)
	f.state = ""
	f.mu.Unlock()
	if !valid {
		http.Error(w, "invalid or expired state", http.StatusBadRequest)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing code", http.StatusBadRequest)
		return
	}
	tok, err := f.Conf.Exchange(r.Context(), code)
	if err != nil {
		slog.Error("oauth code exchange failed", slog.Any("err", err))
		http.Error(w, "code exchange failed", http.StatusBadGateway)
		return
	}

	authState := twitchapi.AuthState{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
		Scope:        strings.Join(f.Scopes, " "),
	}
	f.Tokens.Set(authState)
	if f.Store != nil {
		if err := f.Store.SaveToken(r.Context(), authState); err != nil {
			slog.Warn("failed to persist authorized token", slog.Any("err", err))
		}
	}
	slog.Info("broadcaster account authorized", slog.Time("expires_at", tok.Expiry))
	fmt.Fprintln(w, "Authorized. You can close this tab.")
}
