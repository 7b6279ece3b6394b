package eventsub

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/lemonops/lemonbot/bus"
)

// EventSub delivery headers and message types.
const (
	headerMessageID   = "Twitch-Eventsub-Message-Id"
	headerTimestamp   = "Twitch-Eventsub-Message-Timestamp"
	headerSignature   = "Twitch-Eventsub-Message-Signature"
	headerMessageType = "Twitch-Eventsub-Message-Type"

	typeVerification = "webhook_callback_verification"
	typeNotification = "notification"
	typeRevocation   = "revocation"
)

// Subscription types this service reacts to.
const (
	TypeStreamOnline  = "stream.online"
	TypeStreamOffline = "stream.offline"
)

const maxBodySize = 1 << 20

// Handler terminates the webhook endpoint. Unverifiable deliveries are
// rejected before any parsing.
type Handler struct {
	Secret string
	Bus    *bus.Bus
}

type notification struct {
	Challenge    string `json:"challenge"`
	Subscription struct {
		Type string `json:"type"`
	} `json:"subscription"`
	Event struct {
		BroadcasterUserID string `json:"broadcaster_user_id"`
	} `json:"event"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		http.Error(w, "unreadable body", http.StatusBadRequest)
		return
	}
	if !VerifySignature(h.Secret, r.Header.Get(headerMessageID), r.Header.Get(headerTimestamp), body, r.Header.Get(headerSignature)) {
		slog.Warn("eventsub delivery with bad signature", slog.String("message_id", r.Header.Get(headerMessageID)))
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}

	var n notification
	if err := json.Unmarshal(body, &n); err != nil {
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}

	switch r.Header.Get(headerMessageType) {
	case typeVerification:
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(n.Challenge))
	case typeNotification:
		h.dispatch(n)
		w.WriteHeader(http.StatusNoContent)
	case typeRevocation:
		slog.Warn("eventsub subscription revoked", slog.String("type", n.Subscription.Type))
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) dispatch(n notification) {
	switch n.Subscription.Type {
	case TypeStreamOnline, TypeStreamOffline:
		h.Bus.Stream.Publish(bus.StreamStatus{
			BroadcasterID: n.Event.BroadcasterUserID,
			Live:          n.Subscription.Type == TypeStreamOnline,
			At:            time.Now(),
		})
	default:
		slog.Debug("ignoring eventsub notification", slog.String("type", n.Subscription.Type))
	}
}
