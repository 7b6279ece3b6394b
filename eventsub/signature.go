// Package eventsub receives Twitch EventSub webhook deliveries, verifies
// their signatures, and turns stream.online/stream.offline notifications
// into bus messages. It also manages the webhook subscriptions themselves.
package eventsub

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// VerifySignature checks a delivery's HMAC. The signed message is the
// message id, the timestamp, and the raw body concatenated; the header
// carries the hex digest behind a "sha256=" prefix. Comparison is
// constant-time.
func VerifySignature(secret, messageID, timestamp string, body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(messageID))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
