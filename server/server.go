// Package server exposes the service's HTTP surface: health and metrics,
// the runtime config document, the manual post trigger, the broadcaster
// authorization flow, and the eventsub webhook.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lemonops/lemonbot/schedule"
)

// ConfigAPI is the slice of the config store the HTTP surface needs.
type ConfigAPI interface {
	GetAll() map[string]any
	Update(ctx context.Context, partial map[string]any) error
	Reset(ctx context.Context) error
}

// Poster triggers one post run.
type Poster interface {
	Post(ctx context.Context, ref time.Time, opts schedule.Options) (*schedule.Result, error)
}

// Server wires the routes. Optional fields disable their routes when nil.
type Server struct {
	Config  ConfigAPI
	Poster  Poster
	OAuth   *OAuthFlow
	Webhook http.Handler
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(Correlation)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/config", func(r chi.Router) {
		r.Get("/", s.handleConfigGet)
		r.Put("/", s.handleConfigPut)
		r.Delete("/", s.handleConfigReset)
	})

	r.Post("/schedule/post", s.handlePost)

	if s.OAuth != nil {
		r.Get("/auth/twitch/start", s.OAuth.handleStart)
		r.Get("/auth/twitch/callback", s.OAuth.handleCallback)
	}
	if s.Webhook != nil {
		r.Post("/webhook/twitch", s.Webhook.ServeHTTP)
	}
	return r
}

func (s *Server) handleConfigGet(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Config.GetAll())
}

func (s *Server) handleConfigPut(w http.ResponseWriter, r *http.Request) {
	var partial map[string]any
	if err := json.NewDecoder(r.Body).Decode(&partial); err != nil {
		http.Error(w, "malformed config document", http.StatusBadRequest)
		return
	}
	if err := s.Config.Update(r.Context(), partial); err != nil {
		slog.Error("config update failed", slog.Any("err", err))
		http.Error(w, "config update failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, s.Config.GetAll())
}

func (s *Server) handleConfigReset(w http.ResponseWriter, r *http.Request) {
	if err := s.Config.Reset(r.Context()); err != nil {
		slog.Error("config reset failed", slog.Any("err", err))
		http.Error(w, "config reset failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, s.Config.GetAll())
}

// handlePost triggers a post run. week selects the target week
// ("this", "next", or a YYYY-MM-DD date); bluesky/twitch override the
// configured target flags for this run only.
func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	ref, err := parseWeekRef(r.URL.Query().Get("week"), time.Now())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	opts, err := parsePostOptions(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := s.Poster.Post(r.Context(), ref, opts)
	if err != nil {
		slog.Error("post run failed", slog.Any("err", err))
		http.Error(w, "post run failed", http.StatusBadGateway)
		return
	}

	if r.URL.Query().Get("format") == "png" {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(res.Image)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"week_start": res.Week.Range.Start,
		"week_end":   res.Week.Range.End,
		"events":     len(res.Week.Events),
	})
}

func parseWeekRef(sel string, now time.Time) (time.Time, error) {
	switch sel {
	case "", "this":
		return now, nil
	case "next":
		return now.AddDate(0, 0, 7), nil
	default:
		t, err := time.ParseInLocation("2006-01-02", sel, now.Location())
		if err != nil {
			return time.Time{}, fmt.Errorf("week must be this, next, or YYYY-MM-DD")
		}
		return t, nil
	}
}

func parsePostOptions(r *http.Request) (schedule.Options, error) {
	var opts schedule.Options
	for name, dst := range map[string]**bool{
		"bluesky": &opts.Bluesky,
		"twitch":  &opts.Twitch,
	} {
		raw := r.URL.Query().Get(name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return opts, fmt.Errorf("%s must be a boolean", name)
		}
		*dst = &v
	}
	return opts, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", slog.Any("err", err))
	}
}
