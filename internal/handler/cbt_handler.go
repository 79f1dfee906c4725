package handler

import (
	"net/http"

	"github.com/Deji-Tech/lawsa-iuo/internal/middleware"
	"github.com/Deji-Tech/lawsa-iuo/internal/model"
	"github.com/Deji-Tech/lawsa-iuo/internal/response"
	"github.com/Deji-Tech/lawsa-iuo/internal/service"
	"github.com/Deji-Tech/lawsa-iuo/internal/validator"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// CBTHandler serves the learner's assessment session over REST.
type CBTHandler struct {
	svc *service.AssessmentService
	log zerolog.Logger
}

// NewCBTHandler creates a new CBTHandler.
func NewCBTHandler(svc *service.AssessmentService, log zerolog.Logger) *CBTHandler {
	return &CBTHandler{
		svc: svc,
		log: log.With().Str("component", "cbt_handler").Logger(),
	}
}

// GetProgress godoc
// GET /api/v1/cbt/courses/:course_id/progress
// Describes a resumable checkpoint so the client can offer resume or restart.
func (h *CBTHandler) GetProgress(c *gin.Context) {
	courseID, ok := courseParam(c)
	if !ok {
		return
	}

	summary, err := h.svc.PendingProgress(c.Request.Context(), middleware.UserID(c), courseID)
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, summary)
}

// ActiveProgress godoc
// GET /api/v1/cbt/progress/active
// Describes the learner's most recent unfinished attempt on any course.
func (h *CBTHandler) ActiveProgress(c *gin.Context) {
	summary, err := h.svc.ActiveProgress(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, summary)
}

// DiscardProgress godoc
// DELETE /api/v1/cbt/courses/:course_id/progress
func (h *CBTHandler) DiscardProgress(c *gin.Context) {
	courseID, ok := courseParam(c)
	if !ok {
		return
	}

	if err := h.svc.DiscardProgress(c.Request.Context(), middleware.UserID(c), courseID); err != nil {
		failWith(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"discarded": true})
}

// Begin godoc
// POST /api/v1/cbt/courses/:course_id/session
// Returns the live session, resumes the saved checkpoint or starts a new attempt.
func (h *CBTHandler) Begin(c *gin.Context) {
	courseID, ok := courseParam(c)
	if !ok {
		return
	}

	var req model.BeginSessionRequest
	if c.Request.ContentLength != 0 {
		if fields := validator.Bind(c, &req); fields != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
			return
		}
	}

	view, err := h.svc.Begin(c.Request.Context(), middleware.UserID(c), courseID, req)
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, view)
}

// State godoc
// GET /api/v1/cbt/courses/:course_id/session
func (h *CBTHandler) State(c *gin.Context) {
	courseID, ok := courseParam(c)
	if !ok {
		return
	}

	view, err := h.svc.State(middleware.UserID(c), courseID)
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, view)
}

// Answer godoc
// POST /api/v1/cbt/courses/:course_id/session/answer
func (h *CBTHandler) Answer(c *gin.Context) {
	courseID, ok := courseParam(c)
	if !ok {
		return
	}

	var req model.AnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	view, err := h.svc.Answer(middleware.UserID(c), courseID, *req.QuestionIndex, *req.OptionIndex)
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, view)
}

// Next godoc
// POST /api/v1/cbt/courses/:course_id/session/next
func (h *CBTHandler) Next(c *gin.Context) {
	h.simple(c, h.svc.Next)
}

// Prev godoc
// POST /api/v1/cbt/courses/:course_id/session/prev
func (h *CBTHandler) Prev(c *gin.Context) {
	h.simple(c, h.svc.Prev)
}

// Pause godoc
// POST /api/v1/cbt/courses/:course_id/session/pause
// Pausing writes a checkpoint synchronously; 503 means the pause happened but was not saved.
func (h *CBTHandler) Pause(c *gin.Context) {
	courseID, ok := courseParam(c)
	if !ok {
		return
	}

	view, err := h.svc.Pause(c.Request.Context(), middleware.UserID(c), courseID)
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, view)
}

// Resume godoc
// POST /api/v1/cbt/courses/:course_id/session/resume
func (h *CBTHandler) Resume(c *gin.Context) {
	h.simple(c, h.svc.Continue)
}

// Hidden godoc
// POST /api/v1/cbt/courses/:course_id/session/hidden
// Reports that the assessment view lost visibility; a running session is paused.
func (h *CBTHandler) Hidden(c *gin.Context) {
	h.simple(c, func(userID, courseID string) (*model.SessionView, error) {
		return h.svc.SetVisibility(userID, courseID, true)
	})
}

// Submit godoc
// POST /api/v1/cbt/courses/:course_id/session/submit
func (h *CBTHandler) Submit(c *gin.Context) {
	courseID, ok := courseParam(c)
	if !ok {
		return
	}

	var req model.SubmitRequest
	if c.Request.ContentLength != 0 {
		if fields := validator.Bind(c, &req); fields != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
			return
		}
	}

	res, err := h.svc.Submit(c.Request.Context(), middleware.UserID(c), courseID, req.Confirm)
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}

func (h *CBTHandler) simple(c *gin.Context, op func(userID, courseID string) (*model.SessionView, error)) {
	courseID, ok := courseParam(c)
	if !ok {
		return
	}

	view, err := op(middleware.UserID(c), courseID)
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, view)
}
