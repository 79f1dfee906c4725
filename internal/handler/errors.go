package handler

import (
	"errors"
	"net/http"

	"github.com/Deji-Tech/lawsa-iuo/internal/assessment"
	"github.com/Deji-Tech/lawsa-iuo/internal/repository"
	"github.com/Deji-Tech/lawsa-iuo/internal/response"
	"github.com/Deji-Tech/lawsa-iuo/internal/service"
	"github.com/Deji-Tech/lawsa-iuo/internal/validator"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// courseIDRule keeps course IDs usable as Redis key segments.
const courseIDRule = "required,max=64,excludesall=:/*?"

// courseParam reads and validates :course_id, writing a 400 when it is unusable.
func courseParam(c *gin.Context) (string, bool) {
	id := c.Param("course_id")
	if err := validator.Var(id, courseIDRule); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return "", false
	}
	return id, true
}

// errorCode maps a service error to its HTTP status and API code.
func errorCode(err error) (int, response.ErrCode) {
	switch {
	case errors.Is(err, service.ErrNoSession):
		return http.StatusNotFound, response.ErrNoSession
	case errors.Is(err, service.ErrNoProgress):
		return http.StatusNotFound, response.ErrNoProgress
	case errors.Is(err, repository.ErrCourseNotFound):
		return http.StatusNotFound, response.ErrCourseNotFound
	case errors.Is(err, assessment.ErrInvalidQuestionSet):
		return http.StatusUnprocessableEntity, response.ErrNoQuestions
	case errors.Is(err, assessment.ErrInvalidAnswer):
		return http.StatusBadRequest, response.ErrInvalidAnswer
	case errors.Is(err, assessment.ErrNotRunning):
		return http.StatusConflict, response.ErrSessionPaused
	case errors.Is(err, assessment.ErrSessionFinished):
		return http.StatusConflict, response.ErrSessionFinished
	case errors.Is(err, service.ErrSubmissionIncomplete):
		return http.StatusConflict, response.ErrSubmissionIncomplete
	case errors.Is(err, assessment.ErrPersistenceUnavailable):
		return http.StatusServiceUnavailable, response.ErrProgressNotSaved
	default:
		return http.StatusInternalServerError, response.ErrInternal
	}
}

// failWith writes the error response for err. Unexpected errors are logged.
func failWith(c *gin.Context, log zerolog.Logger, err error) {
	status, code := errorCode(err)

	var incomplete *service.SubmissionIncompleteError
	if errors.As(err, &incomplete) {
		response.FailWithDetails(c, status, code, gin.H{"unanswered": incomplete.Unanswered})
		return
	}
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
	}
	response.Fail(c, status, code)
}
