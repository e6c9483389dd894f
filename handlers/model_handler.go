package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/arbiterlabs/arbiter/models"
	"github.com/arbiterlabs/arbiter/utils"
)

// LedgerReader is the read-only ledger surface the model endpoints consume.
type LedgerReader interface {
	ListModels(ctx context.Context) ([]*models.Model, error)
	GetUsage(ctx context.Context, model string) (*models.ModelUsage, error)
	GetFailureRate(ctx context.Context, model string, window time.Duration) (float64, error)
}

// ModelStatus is one catalog entry with live usage and reliability numbers
type ModelStatus struct {
	Name              string  `json:"name"`
	Provider          string  `json:"provider"`
	Rank              int     `json:"rank"`
	Description       string  `json:"description"`
	Enabled           bool    `json:"enabled"`
	RPMAllowed        int     `json:"rpm_allowed"`
	TPMTotal          int     `json:"tpm_total"`
	RPDTotal          int     `json:"rpd_total"`
	TPDTotal          int     `json:"tpd_total"`
	RequestsLastMin   int     `json:"requests_last_minute"`
	TokensLastMin     int     `json:"tokens_last_minute"`
	RequestsToday     int     `json:"requests_today"`
	TokensToday       int     `json:"tokens_today"`
	SuccessRate       float64 `json:"lifetime_success_rate"`
	RecentFailureRate float64 `json:"recent_failure_rate"`
}

// ListModelsHandler handles GET /api/v1/models
func ListModelsHandler(ledger LedgerReader, failureWindow time.Duration, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		catalog, err := ledger.ListModels(r.Context())
		if err != nil {
			logger.Error("failed to list models", zap.Error(err))
			_ = utils.WriteInternalError(w, "failed to list models")
			return
		}

		statuses := make([]ModelStatus, 0, len(catalog))
		for _, m := range catalog {
			usage, err := ledger.GetUsage(r.Context(), m.Name)
			if err != nil {
				logger.Error("failed to get usage", zap.String("model", m.Name), zap.Error(err))
				_ = utils.WriteInternalError(w, "failed to get model usage")
				return
			}
			rate, err := ledger.GetFailureRate(r.Context(), m.Name, failureWindow)
			if err != nil {
				logger.Error("failed to get failure rate", zap.String("model", m.Name), zap.Error(err))
				_ = utils.WriteInternalError(w, "failed to get model failure rate")
				return
			}

			statuses = append(statuses, ModelStatus{
				Name:              m.Name,
				Provider:          m.Provider,
				Rank:              m.Rank,
				Description:       m.Description,
				Enabled:           m.Enabled,
				RPMAllowed:        m.RPMAllowed,
				TPMTotal:          m.TPMTotal,
				RPDTotal:          m.RPDTotal,
				TPDTotal:          m.TPDTotal,
				RequestsLastMin:   usage.RequestsLastMinute,
				TokensLastMin:     usage.TokensLastMinute,
				RequestsToday:     usage.RequestsToday,
				TokensToday:       usage.TokensToday,
				SuccessRate:       m.SuccessRate(),
				RecentFailureRate: rate,
			})
		}

		_ = utils.WriteOK(w, statuses)
	}
}
