package bluesky

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"
)

// rewriteTransport redirects requests for the hardcoded PDS host to the
// test server.
type rewriteTransport struct {
	host string
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = "http"
	host := strings.TrimPrefix(t.host, "http://")
	req.URL.Host = host
	return http.DefaultTransport.RoundTrip(req)
}

func testClient(serverURL string) *http.Client {
	return &http.Client{Transport: &rewriteTransport{host: serverURL}}
}

func TestPostImageFullFlow(t *testing.T) {
	var (
		sessionReqs int
		uploadAuth  string
		uploadBody  int
		record      map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "createSession"):
			sessionReqs++
			var creds map[string]string
			_ = json.NewDecoder(r.Body).Decode(&creds)
			if creds["identifier"] != "lemon.example" || creds["password"] != "app-pass" {
				t.Errorf("credentials = %v", creds)
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"did": "did:plc:abc", "accessJwt": "jwt-1"})
		case strings.HasSuffix(r.URL.Path, "uploadBlob"):
			uploadAuth = r.Header.Get("Authorization")
			if ct := r.Header.Get("Content-Type"); ct != "image/png" {
				t.Errorf("upload content type = %q", ct)
			}
			b, _ := io.ReadAll(r.Body)
			uploadBody = len(b)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"blob": map[string]any{"$type": "blob", "ref": map[string]string{"$link": "cid-1"}},
			})
		case strings.HasSuffix(r.URL.Path, "createRecord"):
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			record = body
			w.WriteHeader(http.StatusOK)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := &Client{Identifier: "lemon.example", Password: "app-pass", HTTPClient: testClient(srv.URL)}
	png := []byte("fake-png-bytes")
	if err := c.PostImage(context.Background(), "This week's streams", png, "alt text"); err != nil {
		t.Fatalf("PostImage: %v", err)
	}

	if sessionReqs != 1 {
		t.Errorf("sessions created = %d, want 1", sessionReqs)
	}
	if uploadAuth != "Bearer jwt-1" {
		t.Errorf("upload auth = %q", uploadAuth)
	}
	if uploadBody != len(png) {
		t.Errorf("uploaded %d bytes, want %d", uploadBody, len(png))
	}

	if record["repo"] != "did:plc:abc" || record["collection"] != "app.bsky.feed.post" {
		t.Fatalf("record envelope = %v", record)
	}
	rec := record["record"].(map[string]any)
	if rec["text"] != "This week's streams" {
		t.Errorf("post text = %v", rec["text"])
	}
	embed := rec["embed"].(map[string]any)
	images := embed["images"].([]any)
	img := images[0].(map[string]any)
	if img["alt"] != "alt text" {
		t.Errorf("alt = %v", img["alt"])
	}
	ref := img["image"].(map[string]any)
	if ref["$type"] != "blob" {
		t.Errorf("blob not echoed verbatim: %v", img["image"])
	}
}

func TestPostImageSessionFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"AuthenticationRequired"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := &Client{Identifier: "lemon.example", Password: "wrong", HTTPClient: testClient(srv.URL)}
	if err := c.PostImage(context.Background(), "text", []byte("png"), "alt"); err == nil {
		t.Fatal("PostImage should fail on auth error")
	}
}

func TestTruncateAlt(t *testing.T) {
	long := strings.Repeat("a", maxAltLength+100)
	if got := truncateAlt(long); len(got) != maxAltLength {
		t.Errorf("len = %d, want %d", len(got), maxAltLength)
	}
	if got := truncateAlt("short"); got != "short" {
		t.Errorf("short alt changed: %q", got)
	}
}

func TestTruncateAltKeepsRunesWhole(t *testing.T) {
	// Three-byte runes guarantee the cap lands mid-rune.
	long := strings.Repeat("日", maxAltLength)
	got := truncateAlt(long)
	if len(got) > maxAltLength {
		t.Errorf("len = %d, want <= %d", len(got), maxAltLength)
	}
	if !utf8.ValidString(got) {
		t.Error("truncation produced invalid UTF-8")
	}
	if len(got) == 0 {
		t.Error("truncation dropped everything")
	}
}
