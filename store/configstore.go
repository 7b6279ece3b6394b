// Package store persists the service's mutable state: the runtime config
// document and the broadcaster's OAuth tokens.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/lemonops/lemonbot/bus"
	"github.com/lemonops/lemonbot/schedule"
)

const configKey = "config"

// DefaultConfig is the config document a fresh deployment starts from.
// Keys are edited at runtime through the config endpoint.
func DefaultConfig() map[string]any {
	return map[string]any{
		"calendar": map[string]any{
			"timezone": "",
			"span":     "workweek",
		},
		"post": map[string]any{
			"toBluesky": false,
			"toTwitch":  false,
		},
		"twitch": map[string]any{
			"timezone":             "",
			"isRecurring":          false,
			"streamTitleFromEvent": true,
		},
		"bluesky": map[string]any{
			"text":      "",
			"locations": []any{},
		},
	}
}

// ConfigStore is the runtime-editable configuration document, cached in
// memory and persisted as one JSON value in the kv table. Edits are
// deep-merged so a partial update never clobbers sibling keys.
type ConfigStore struct {
	DB  *sql.DB
	Bus *bus.Bus // optional; change notifications

	mu    sync.RWMutex
	cache map[string]any
}

// Load reads the document, seeding the row from defaults when absent.
func (s *ConfigStore) Load(ctx context.Context) error {
	var raw []byte
	err := s.DB.QueryRowContext(ctx, `SELECT v FROM kv WHERE k = $1`, configKey).Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		s.mu.Lock()
		s.cache = DefaultConfig()
		s.mu.Unlock()
		return s.persist(ctx)
	case err != nil:
		return fmt.Errorf("load config: %w", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("decode config document: %w", err)
	}
	// Merge over defaults so keys added in newer versions exist.
	merged := DefaultConfig()
	deepMerge(merged, doc)
	s.mu.Lock()
	s.cache = merged
	s.mu.Unlock()
	return nil
}

// GetAll returns a deep copy of the document.
func (s *ConfigStore) GetAll() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return deepCopy(s.cache)
}

// Get looks up a dotted key, e.g. "twitch.isRecurring".
func (s *ConfigStore) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return dottedLookup(s.cache, key)
}

// String returns the value at key when it is a string, else "".
func (s *ConfigStore) String(key string) string {
	v, _ := s.Get(key)
	str, _ := v.(string)
	return str
}

// Bool returns the value at key when it is a bool, else false.
func (s *ConfigStore) Bool(key string) bool {
	v, _ := s.Get(key)
	b, _ := v.(bool)
	return b
}

// Strings returns the value at key when it is a list of strings, else nil.
func (s *ConfigStore) Strings(key string) []string {
	v, _ := s.Get(key)
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if str, ok := it.(string); ok {
			out = append(out, str)
		}
	}
	return out
}

// Update deep-merges partial into the document, persists it, and notifies
// subscribers with the changed dotted keys.
func (s *ConfigStore) Update(ctx context.Context, partial map[string]any) error {
	s.mu.Lock()
	deepMerge(s.cache, partial)
	s.mu.Unlock()
	if err := s.persist(ctx); err != nil {
		return err
	}
	keys := dottedKeys(partial)
	slog.Info("config updated", slog.Any("keys", keys))
	if s.Bus != nil {
		s.Bus.Config.Publish(bus.ConfigChange{Keys: keys})
	}
	return nil
}

// Reset restores the defaults.
func (s *ConfigStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	s.cache = DefaultConfig()
	s.mu.Unlock()
	if err := s.persist(ctx); err != nil {
		return err
	}
	slog.Info("config reset to defaults")
	if s.Bus != nil {
		s.Bus.Config.Publish(bus.ConfigChange{})
	}
	return nil
}

// SaveTimezone persists a timezone learned from the calendar feed.
func (s *ConfigStore) SaveTimezone(ctx context.Context, tz string) error {
	return s.Update(ctx, map[string]any{"calendar": map[string]any{"timezone": tz}})
}

// Policy maps the document to the posting policy.
func (s *ConfigStore) Policy(context.Context) (schedule.Policy, error) {
	return schedule.Policy{
		Timezone:         s.String("twitch.timezone"),
		Recurring:        s.Bool("twitch.isRecurring"),
		TitleFromEvent:   s.Bool("twitch.streamTitleFromEvent"),
		TwitchEnabled:    s.Bool("post.toTwitch"),
		BlueskyEnabled:   s.Bool("post.toBluesky"),
		BlueskyText:      s.String("bluesky.text"),
		BlueskyLocations: s.Strings("bluesky.locations"),
	}, nil
}

func (s *ConfigStore) persist(ctx context.Context) error {
	s.mu.RLock()
	raw, err := json.Marshal(s.cache)
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode config document: %w", err)
	}
	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO kv (k, v) VALUES ($1, $2)
		 ON CONFLICT (k) DO UPDATE SET v = EXCLUDED.v, updated_at = now()`,
		configKey, raw)
	if err != nil {
		return fmt.Errorf("persist config: %w", err)
	}
	return nil
}

// deepMerge merges src into dst. Nested maps merge recursively; any other
// value overwrites.
func deepMerge(dst, src map[string]any) {
	for k, v := range src {
		if sub, ok := v.(map[string]any); ok {
			if cur, ok := dst[k].(map[string]any); ok {
				deepMerge(cur, sub)
				continue
			}
			merged := map[string]any{}
			deepMerge(merged, sub)
			dst[k] = merged
			continue
		}
		dst[k] = v
	}
}

func deepCopy(src map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	for k, v := range src {
		if sub, ok := v.(map[string]any); ok {
			out[k] = deepCopy(sub)
			continue
		}
		out[k] = v
	}
	return out
}

func dottedLookup(doc map[string]any, key string) (any, bool) {
	parts := strings.Split(key, ".")
	cur := any(doc)
	for _, part := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// dottedKeys lists the leaf paths of a partial document, sorted.
func dottedKeys(doc map[string]any) []string {
	var out []string
	var walk func(prefix string, m map[string]any)
	walk = func(prefix string, m map[string]any) {
		for k, v := range m {
			path := k
			if prefix != "" {
				path = prefix + "." + k
			}
			if sub, ok := v.(map[string]any); ok {
				walk(path, sub)
				continue
			}
			out = append(out, path)
		}
	}
	walk("", doc)
	sort.Strings(out)
	return out
}
