package twitchapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// APIError is a non-2xx Helix response.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("twitch api: status %d: %s", e.Status, e.Body)
}

// IsAuthExpired reports whether err is the 401-class signal that the user
// access token has expired.
func IsAuthExpired(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Status == http.StatusUnauthorized
}

// WithAuthRetry invokes call with the current user access token. On an
// auth-expired failure it refreshes the token once and retries exactly once
// more; every other failure, and a failure of the retried call, propagates
// unchanged. Apply it to every authenticated schedule mutation. Read-only
// calls mint app tokens per call and don't need it.
func WithAuthRetry(ctx context.Context, tokens *UserTokenSource, call func(token string) error) error {
	err := call(tokens.AccessToken())
	if err == nil || !IsAuthExpired(err) {
		return err
	}
	if rerr := tokens.Refresh(ctx); rerr != nil {
		return fmt.Errorf("token refresh after 401: %w", rerr)
	}
	return call(tokens.AccessToken())
}
