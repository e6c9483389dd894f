package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arbiterlabs/arbiter/services"
	"github.com/arbiterlabs/arbiter/services/router"
	"github.com/arbiterlabs/arbiter/utils"
)

var validate = validator.New()

// TaskExecutor executes routed tasks.
type TaskExecutor interface {
	ExecuteTask(ctx context.Context, task, taskType string) (*router.Result, error)
}

// ExecuteTaskRequest is the task submission payload
type ExecuteTaskRequest struct {
	Prompt   string `json:"prompt" validate:"required"`
	TaskType string `json:"task_type" validate:"omitempty,max=100"`
}

// ExecuteTaskResponse is the task result payload
type ExecuteTaskResponse struct {
	ID         string `json:"id"`
	Success    bool   `json:"success"`
	Response   string `json:"response,omitempty"`
	Error      string `json:"error,omitempty"`
	ModelUsed  string `json:"model_used"`
	TokensUsed int    `json:"tokens_used"`
	Attempts   int    `json:"attempts"`
}

// ExecuteTaskHandler handles POST /api/v1/tasks
func ExecuteTaskHandler(executor TaskExecutor, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ExecuteTaskRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			_ = utils.WriteBadRequest(w, "invalid JSON body", nil)
			return
		}
		if err := validate.Struct(&req); err != nil {
			_ = utils.WriteBadRequest(w, "validation failed", map[string]interface{}{
				"error": err.Error(),
			})
			return
		}

		taskType := req.TaskType
		if taskType == "" {
			taskType = "general"
		}

		taskID := uuid.New().String()
		result, err := executor.ExecuteTask(r.Context(), req.Prompt, taskType)
		if err != nil {
			if errors.Is(err, services.ErrCapacityExhausted) || errors.Is(err, services.ErrNoProvidersAvailable) {
				logger.Warn("task rejected, no capacity",
					zap.String("task_id", taskID),
					zap.Error(err))
				_ = utils.WriteTooManyRequests(w, err.Error())
				return
			}
			logger.Error("task execution failed",
				zap.String("task_id", taskID),
				zap.Error(err))
			_ = utils.WriteInternalError(w, "task execution failed")
			return
		}

		_ = utils.WriteOK(w, ExecuteTaskResponse{
			ID:         taskID,
			Success:    result.Success,
			Response:   result.Response,
			Error:      result.Error,
			ModelUsed:  result.ModelUsed,
			TokensUsed: result.TokensUsed,
			Attempts:   result.Attempts,
		})
	}
}
