package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/lemonops/lemonbot/telemetry"
)

const correlationHeader = "X-Correlation-Id"

// Correlation tags every request with a correlation id, honoring one the
// caller already set, and logs the request once served.
func Correlation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(correlationHeader)
		if id == "" {
			id = telemetry.NewCorrelationID()
		}
		ctx := telemetry.WithCorrelation(r.Context(), id)
		w.Header().Set(correlationHeader, id)

		start := time.Now()
		next.ServeHTTP(w, r.WithContext(ctx))
		slog.Debug("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("correlation_id", id),
			slog.Duration("duration", time.Since(start)))
	})
}
