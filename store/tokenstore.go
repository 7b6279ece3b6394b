package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lemonops/lemonbot/crypto"
	"github.com/lemonops/lemonbot/twitchapi"
)

// TokenStore persists the broadcaster's OAuth tokens, encrypted at rest.
// It implements twitchapi.TokenPersister.
type TokenStore struct {
	DB       *sql.DB
	Enc      crypto.Encryptor
	Provider string // defaults to "twitch"
}

func (t *TokenStore) provider() string {
	if t.Provider != "" {
		return t.Provider
	}
	return "twitch"
}

// SaveToken upserts the token row.
func (t *TokenStore) SaveToken(ctx context.Context, state twitchapi.AuthState) error {
	access, err := crypto.EncryptString(t.Enc, state.AccessToken)
	if err != nil {
		return fmt.Errorf("encrypt access token: %w", err)
	}
	refresh, err := crypto.EncryptString(t.Enc, state.RefreshToken)
	if err != nil {
		return fmt.Errorf("encrypt refresh token: %w", err)
	}
	_, err = t.DB.ExecContext(ctx,
		`INSERT INTO oauth_tokens (provider, access_token, refresh_token, expires_at, scope)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (provider) DO UPDATE SET
			access_token  = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expires_at    = EXCLUDED.expires_at,
			scope         = EXCLUDED.scope,
			updated_at    = now()`,
		t.provider(), access, refresh, state.ExpiresAt, state.Scope)
	if err != nil {
		return fmt.Errorf("persist token: %w", err)
	}
	return nil
}

// LoadToken reads the stored token material. ok is false when the
// broadcaster has never authorized.
func (t *TokenStore) LoadToken(ctx context.Context) (state twitchapi.AuthState, ok bool, err error) {
	var access, refresh string
	var expires sql.NullTime
	row := t.DB.QueryRowContext(ctx,
		`SELECT access_token, refresh_token, expires_at, scope FROM oauth_tokens WHERE provider = $1`,
		t.provider())
	if err := row.Scan(&access, &refresh, &expires, &state.Scope); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return state, false, nil
		}
		return state, false, fmt.Errorf("load token: %w", err)
	}
	if state.AccessToken, err = crypto.DecryptString(t.Enc, access); err != nil {
		return state, false, fmt.Errorf("decrypt access token: %w", err)
	}
	if state.RefreshToken, err = crypto.DecryptString(t.Enc, refresh); err != nil {
		return state, false, fmt.Errorf("decrypt refresh token: %w", err)
	}
	if expires.Valid {
		state.ExpiresAt = expires.Time
	}
	return state, true, nil
}
