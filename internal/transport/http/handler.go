package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"hr-testing-service/internal/app"
	"hr-testing-service/internal/domain"
)

// EventSource replays persisted notifications.
type EventSource interface {
	Since(ctx context.Context, afterID int64, limit int) ([]domain.LoggedEvent, error)
}

// Handler exposes the testing engine over JSON HTTP.
type Handler struct {
	grader    *app.AttemptGrader
	reviews   *app.ReviewCoordinator
	analytics *app.AnalyticsAggregator
	events    EventSource
	logger    *slog.Logger
}

func NewHandler(grader *app.AttemptGrader, reviews *app.ReviewCoordinator, analytics *app.AnalyticsAggregator, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		grader:    grader,
		reviews:   reviews,
		analytics: analytics,
		logger:    logger,
	}
}

// WithEvents mounts the event replay endpoint backed by src.
func (h *Handler) WithEvents(src EventSource) *Handler {
	h.events = src
	return h
}

// NewRouter wires API routes and, when ws is non-nil, the review stream.
func NewRouter(h *Handler, ws *WSHandler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, h.accessLog, middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/tests/{testID}", func(r chi.Router) {
			r.Post("/attempts", h.SubmitAttempt)
			r.Get("/pending-answers", h.PendingAnswers)
		})
		r.Post("/reviews", h.SubmitReviews)
		r.Route("/analytics", func(r chi.Router) {
			r.Get("/summary", h.Summary)
			r.Get("/tests", h.Overview)
			r.Get("/tests/{testID}", h.TestAnalytics)
		})
		if h.events != nil {
			r.Get("/events", h.Events)
		}
	})

	if ws != nil {
		r.Get("/ws/reviews", ws.ServeWS)
	}
	return r
}

type submitAttemptRequest struct {
	FIO       string                   `json:"fio"`
	StartTime time.Time                `json:"startTime"`
	Answers   []domain.SubmittedAnswer `json:"answers"`
}

// SubmitAttempt grades an answer sheet for the test in the path.
func (h *Handler) SubmitAttempt(w http.ResponseWriter, r *http.Request) {
	testID, err := pathID(r, "testID")
	if err != nil {
		h.respondError(w, err)
		return
	}
	var req submitAttemptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, badRequest(err))
		return
	}

	attempt, err := h.grader.Submit(r.Context(), domain.Submission{
		TestID:    testID,
		FIO:       req.FIO,
		StartTime: req.StartTime,
		Answers:   req.Answers,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respond(w, http.StatusCreated, attempt)
}

type reviewRequest struct {
	Decisions []domain.ReviewDecision `json:"decisions"`
}

type reviewResponse struct {
	domain.ReviewReport
	Errors []string `json:"errors,omitempty"`
}

// SubmitReviews applies a batch of reviewer decisions. Partial failures are
// reported in the body; only a batch where every decision failed gets an error status.
func (h *Handler) SubmitReviews(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, badRequest(err))
		return
	}
	if len(req.Decisions) == 0 {
		h.respondError(w, badRequest(errors.New("decisions must not be empty")))
		return
	}

	report, err := h.reviews.SubmitBatch(r.Context(), req.Decisions)
	resp := reviewResponse{ReviewReport: report}
	if err != nil {
		if report.Failed == len(req.Decisions) {
			h.respondError(w, err)
			return
		}
		resp.Errors = splitErrors(err)
	}
	h.respond(w, http.StatusOK, resp)
}

func (h *Handler) PendingAnswers(w http.ResponseWriter, r *http.Request) {
	testID, err := pathID(r, "testID")
	if err != nil {
		h.respondError(w, err)
		return
	}
	answers, err := h.reviews.PendingAnswers(r.Context(), testID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respond(w, http.StatusOK, answers)
}

func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.analytics.TestingSummary(r.Context(), activeOnly(r))
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respond(w, http.StatusOK, summary)
}

func (h *Handler) Overview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.analytics.AllTestsOverview(r.Context(), activeOnly(r))
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respond(w, http.StatusOK, overview)
}

func (h *Handler) TestAnalytics(w http.ResponseWriter, r *http.Request) {
	testID, err := pathID(r, "testID")
	if err != nil {
		h.respondError(w, err)
		return
	}
	stats, err := h.analytics.TestAnalytics(r.Context(), testID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respond(w, http.StatusOK, stats)
}

// Events replays the event log after the given id.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var after int64
	if raw := q.Get("after"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			h.respondError(w, badRequest(errors.New("after must be a non-negative integer")))
			return
		}
		after = v
	}
	limit := 100
	if raw := q.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 || v > 1000 {
			h.respondError(w, badRequest(errors.New("limit must be between 1 and 1000")))
			return
		}
		limit = v
	}

	events, err := h.events.Since(r.Context(), after, limit)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respond(w, http.StatusOK, events)
}

type errorBody struct {
	Error string `json:"error"`
}

func (h *Handler) respond(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Warn("write response", "error", err)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		h.logger.Error("request failed", "error", err)
	}
	h.respond(w, code, errorBody{Error: err.Error()})
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidSubmission):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAlreadyResolved):
		return http.StatusConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func badRequest(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrInvalidSubmission, err)
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest(errors.New(name + " must be a positive integer"))
	}
	return id, nil
}

func activeOnly(r *http.Request) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get("active"))
	return err == nil && v
}

func splitErrors(err error) []string {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		out := make([]string, 0, len(joined.Unwrap()))
		for _, e := range joined.Unwrap() {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{err.Error()}
}
