package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/arbiterlabs/arbiter/utils"
)

// HealthChecker reports backend health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandler handles GET /healthz (liveness)
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteOK(w, map[string]string{"status": "ok"})
	}
}

// ReadinessHandler handles GET /readyz (readiness, probes the database)
func ReadinessHandler(db HealthChecker, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.HealthCheck(r.Context()); err != nil {
			logger.Warn("readiness check failed", zap.Error(err))
			_ = utils.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
			})
			return
		}
		_ = utils.WriteOK(w, map[string]string{"status": "ready"})
	}
}
