package handler

import (
	"net/http"
	"strconv"

	"github.com/Deji-Tech/lawsa-iuo/internal/middleware"
	"github.com/Deji-Tech/lawsa-iuo/internal/response"
	"github.com/Deji-Tech/lawsa-iuo/internal/service"
	"github.com/Deji-Tech/lawsa-iuo/internal/validator"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// AttemptHandler serves the learner's finished attempts.
type AttemptHandler struct {
	svc *service.AttemptService
	log zerolog.Logger
}

func NewAttemptHandler(svc *service.AttemptService, log zerolog.Logger) *AttemptHandler {
	return &AttemptHandler{
		svc: svc,
		log: log.With().Str("component", "attempt_handler").Logger(),
	}
}

// List godoc
// GET /api/v1/cbt/attempts?limit=20
func (h *AttemptHandler) List(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation,
				map[string]string{"limit": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	records, err := h.svc.History(c.Request.Context(), middleware.UserID(c), limit)
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"attempts": records, "count": len(records)})
}

// Average godoc
// GET /api/v1/cbt/attempts/average?level=100
func (h *AttemptHandler) Average(c *gin.Context) {
	level := c.Query("level")
	if err := validator.Var(level, "omitempty,max=16,alphanum"); err != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation,
			map[string]string{"level": "level must be alphanumeric"})
		return
	}

	avg, err := h.svc.Average(c.Request.Context(), middleware.UserID(c), level)
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, avg)
}
