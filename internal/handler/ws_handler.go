package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Deji-Tech/lawsa-iuo/internal/logger"
	"github.com/Deji-Tech/lawsa-iuo/internal/middleware"
	"github.com/Deji-Tech/lawsa-iuo/internal/model"
	"github.com/Deji-Tech/lawsa-iuo/internal/response"
	"github.com/Deji-Tech/lawsa-iuo/internal/service"
	ws "github.com/Deji-Tech/lawsa-iuo/internal/websocket"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const tickInterval = time.Second

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams a live assessment session over a WebSocket.
type WSHandler struct {
	svc      *service.AssessmentService
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(svc *service.AssessmentService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		svc:      svc,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// stream is one connected client.
type stream struct {
	conn     *ws.Conn
	userID   string
	courseID string
	log      zerolog.Logger
	finished atomic.Bool
}

// Stream godoc
// WS /ws/v1/cbt/courses/:course_id/stream?token=
// The session must have been opened with POST .../session. Closing the socket pauses it.
func (h *WSHandler) Stream(c *gin.Context) {
	userID := middleware.UserID(c)
	if userID == "" {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	courseID, ok := courseParam(c)
	if !ok {
		return
	}

	view, err := h.svc.State(userID, courseID)
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	st := &stream{
		conn:     ws.Wrap(conn),
		userID:   userID,
		courseID: courseID,
		log:      logger.ForSession(h.log, "ws", userID, courseID),
	}
	st.log.Info().Msg("Learner connected")

	if view.Status == model.SessionStatusFinished {
		st.sendFinished(view.Result)
		return
	}
	_ = st.conn.WriteTyped(ws.StateResponse{Event: ws.EventState, Session: view})

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	go h.pushTicks(ctx, st)

	for {
		var req ws.Request
		if err := st.conn.ReadRequest(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				st.log.Warn().Err(err).Msg("Unexpected close")
			} else {
				st.log.Debug().Msg("Connection closed")
			}
			break
		}
		h.dispatch(ctx, st, &req)
	}

	// A dropped connection counts as the view being hidden.
	if _, err := h.svc.SetVisibility(userID, courseID, true); err != nil && !errors.Is(err, service.ErrNoSession) {
		st.log.Debug().Err(err).Msg("Pause on disconnect skipped")
	}
}

func (h *WSHandler) dispatch(ctx context.Context, st *stream, req *ws.Request) {
	var (
		view *model.SessionView
		err  error
	)

	switch req.Action {
	case ws.ActionAnswer:
		if req.QuestionIndex == nil || req.OptionIndex == nil {
			_ = st.conn.WriteError(string(response.ErrInvalidPayload), "question_index and option_index are required")
			return
		}
		view, err = h.svc.Answer(st.userID, st.courseID, *req.QuestionIndex, *req.OptionIndex)
	case ws.ActionNext:
		view, err = h.svc.Next(st.userID, st.courseID)
	case ws.ActionPrev:
		view, err = h.svc.Prev(st.userID, st.courseID)
	case ws.ActionPause:
		view, err = h.svc.Pause(ctx, st.userID, st.courseID)
	case ws.ActionResume:
		view, err = h.svc.Continue(st.userID, st.courseID)
	case ws.ActionVisibility:
		if req.Hidden == nil {
			_ = st.conn.WriteError(string(response.ErrInvalidPayload), "hidden is required")
			return
		}
		view, err = h.svc.SetVisibility(st.userID, st.courseID, *req.Hidden)
	case ws.ActionState:
		view, err = h.svc.State(st.userID, st.courseID)
	case ws.ActionSubmit:
		h.submit(ctx, st, req.Confirm)
		return
	case ws.ActionPing:
		_ = st.conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})
		return
	default:
		st.log.Warn().Str("action", string(req.Action)).Msg("Unknown action")
		_ = st.conn.WriteError(string(response.ErrInvalidPayload), "unknown action: "+string(req.Action))
		return
	}

	if err != nil {
		h.writeErr(st, err)
		if view == nil {
			return
		}
	}
	_ = st.conn.WriteTyped(ws.StateResponse{Event: ws.EventState, Session: view})
}

func (h *WSHandler) submit(ctx context.Context, st *stream, confirm bool) {
	res, err := h.svc.Submit(ctx, st.userID, st.courseID, confirm)

	var incomplete *service.SubmissionIncompleteError
	switch {
	case errors.As(err, &incomplete):
		_ = st.conn.WriteTyped(ws.IncompleteResponse{Event: ws.EventIncomplete, Unanswered: incomplete.Unanswered})
	case err != nil:
		h.writeErr(st, err)
	default:
		st.sendFinished(res)
	}
}

// pushTicks reports the countdown once per second until the session finishes.
func (h *WSHandler) pushTicks(ctx context.Context, st *stream) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		view, err := h.svc.State(st.userID, st.courseID)
		if err != nil {
			if errors.Is(err, service.ErrNoSession) {
				_ = st.conn.WriteError(string(response.ErrNoSession), response.GetMessage(response.ErrNoSession))
			}
			return
		}
		if view.Status == model.SessionStatusFinished {
			if view.Result == nil {
				continue
			}
			st.sendFinished(view.Result)
			return
		}
		if err := st.conn.WriteTyped(ws.TickResponse{
			Event:            ws.EventTick,
			Status:           view.Status,
			RemainingSeconds: view.RemainingSeconds,
			Saved:            view.Saved,
		}); err != nil {
			return
		}
	}
}

func (h *WSHandler) writeErr(st *stream, err error) {
	status, code := errorCode(err)
	if status >= http.StatusInternalServerError && code != response.ErrProgressNotSaved {
		st.log.Error().Err(err).Msg("Session action failed")
	}
	_ = st.conn.WriteError(string(code), response.GetMessage(code))
}

// sendFinished writes the result once per connection.
func (st *stream) sendFinished(res *model.AttemptResult) {
	if res == nil || !st.finished.CompareAndSwap(false, true) {
		return
	}
	_ = st.conn.WriteTyped(ws.FinishedResponse{Event: ws.EventFinished, Result: res})
}
