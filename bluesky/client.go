// Package bluesky posts the rendered schedule image to a Bluesky account
// using the atproto XRPC endpoints: create a session, upload the image
// blob, then create the feed post record embedding it.
package bluesky

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"
)

const xrpcURL = "https://bsky.social/xrpc"

// Image alt text longer than this is rejected by the PDS.
const maxAltLength = 1000

// Client holds the account credentials. Sessions are short-lived and
// created per post; this service posts once a week.
type Client struct {
	Identifier string // handle or DID
	Password   string // app password
	HTTPClient *http.Client
}

type session struct {
	DID       string `json:"did"`
	AccessJwt string `json:"accessJwt"`
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// PostImage publishes a post with the PNG attached as an image embed.
func (c *Client) PostImage(ctx context.Context, text string, png []byte, alt string) error {
	sess, err := c.createSession(ctx)
	if err != nil {
		return fmt.Errorf("bluesky session: %w", err)
	}
	blob, err := c.uploadBlob(ctx, sess, png)
	if err != nil {
		return fmt.Errorf("bluesky blob upload: %w", err)
	}
	if err := c.createPost(ctx, sess, text, blob, truncateAlt(alt)); err != nil {
		return fmt.Errorf("bluesky post: %w", err)
	}
	slog.Info("schedule image posted to bluesky", slog.String("identifier", c.Identifier))
	return nil
}

func (c *Client) createSession(ctx context.Context) (*session, error) {
	body := map[string]string{
		"identifier": c.Identifier,
		"password":   c.Password,
	}
	var sess session
	if err := c.call(ctx, "com.atproto.server.createSession", "", "application/json", jsonBody(body), &sess); err != nil {
		return nil, err
	}
	if sess.AccessJwt == "" {
		return nil, fmt.Errorf("empty access token in session response")
	}
	return &sess, nil
}

// uploadBlob returns the blob reference as the PDS produced it; the shape
// is opaque and echoed verbatim into the post record.
func (c *Client) uploadBlob(ctx context.Context, sess *session, png []byte) (json.RawMessage, error) {
	var out struct {
		Blob json.RawMessage `json:"blob"`
	}
	if err := c.call(ctx, "com.atproto.repo.uploadBlob", sess.AccessJwt, "image/png", bytes.NewReader(png), &out); err != nil {
		return nil, err
	}
	if len(out.Blob) == 0 {
		return nil, fmt.Errorf("upload response missing blob")
	}
	return out.Blob, nil
}

func (c *Client) createPost(ctx context.Context, sess *session, text string, blob json.RawMessage, alt string) error {
	record := map[string]any{
		"$type":     "app.bsky.feed.post",
		"text":      text,
		"createdAt": time.Now().UTC().Format(time.RFC3339),
		"embed": map[string]any{
			"$type": "app.bsky.embed.images",
			"images": []map[string]any{
				{"alt": alt, "image": blob},
			},
		},
	}
	body := map[string]any{
		"repo":       sess.DID,
		"collection": "app.bsky.feed.post",
		"record":     record,
	}
	return c.call(ctx, "com.atproto.repo.createRecord", sess.AccessJwt, "application/json", jsonBody(body), nil)
}

// call issues one XRPC procedure call and decodes the response into out.
func (c *Client) call(ctx context.Context, method, token, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, xrpcURL+"/"+method, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.http().Do(req)
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
		return fmt.Errorf("%s: %s: %s", method, resp.Status, string(b))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func jsonBody(v any) io.Reader {
	b, _ := json.Marshal(v)
	return bytes.NewReader(b)
}

// truncateAlt caps the alt text, backing up so the cut never splits a
// multi-byte rune.
func truncateAlt(alt string) string {
	if len(alt) <= maxAltLength {
		return alt
	}
	cut := maxAltLength
	for cut > 0 && !utf8.RuneStart(alt[cut]) {
		cut--
	}
	return alt[:cut]
}
