package exam

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"certprep/internal/app/apiresp"
	"certprep/internal/auth"
	"certprep/internal/question"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	svc examService
}

type examService interface {
	Blueprint() Blueprint
	Start(ctx context.Context, userID, mode string) (*StartedAttempt, error)
	Submit(ctx context.Context, userID string, in SubmitInput) (*SubmissionResult, error)
	CheckAnswer(ctx context.Context, userID string, in CheckInput) (*CheckResult, error)
	GetAttempt(ctx context.Context, userID, attemptID string) (*Attempt, error)
	Review(ctx context.Context, userID, attemptID string) (*AttemptReview, error)
	History(ctx context.Context, userID, mode string, limit int) ([]Attempt, error)
}

type response struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

type startAttemptRequest struct {
	Mode string `json:"mode"`
}

const maxHistoryLimit = 200

func NewHandler(svc examService) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) GetBlueprint(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: h.svc.Blueprint()})
}

func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}

	var req startAttemptRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
			return
		}
	}

	started, err := h.svc.Start(r.Context(), user.ID, req.Mode)
	if err != nil {
		writeServiceError(w, r, "start attempt", err)
		return
	}
	writeJSON(w, r, http.StatusCreated, response{OK: true, Data: started})
}

// Submit handles POST /attempts/{id}/submit. A body attempt_id, when sent,
// must match the path.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}

	attemptID := strings.TrimSpace(chi.URLParam(r, "id"))
	if attemptID == "" {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid attempt id"})
		return
	}

	var req SubmitInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}
	if body := strings.TrimSpace(req.AttemptID); body != "" && body != attemptID {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "attempt_id does not match path"})
		return
	}
	req.AttemptID = attemptID

	h.submit(w, r, user, req)
}

// SubmitTest handles POST /submit-test where the attempt id is in the body.
func (h *Handler) SubmitTest(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}

	var req SubmitInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}

	h.submit(w, r, user, req)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request, user *auth.User, req SubmitInput) {
	result, err := h.svc.Submit(r.Context(), user.ID, req)
	if err != nil {
		writeServiceError(w, r, "submit attempt", err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: result})
}

func (h *Handler) CheckAnswer(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}

	var req CheckInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}

	result, err := h.svc.CheckAnswer(r.Context(), user.ID, req)
	if err != nil {
		writeServiceError(w, r, "check answer", err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: result})
}

func (h *Handler) GetAttempt(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}

	attempt, err := h.svc.GetAttempt(r.Context(), user.ID, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, "get attempt", err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: attempt})
}

func (h *Handler) Review(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}

	review, err := h.svc.Review(r.Context(), user.ID, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, "review attempt", err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: review})
}

func (h *Handler) ListAttempts(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}

	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "limit must be a positive integer"})
			return
		}
		limit = v
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	items, err := h.svc.History(r.Context(), user.ID, r.URL.Query().Get("mode"), limit)
	if err != nil {
		writeServiceError(w, r, "list attempts", err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: items})
}

func writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrAttemptNotFinal):
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: err.Error()})
	case errors.Is(err, ErrAttemptNotFound), errors.Is(err, question.ErrQuestionNotFound):
		writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
	case errors.Is(err, ErrNoQuestions):
		writeJSON(w, r, http.StatusUnprocessableEntity, response{OK: false, Error: err.Error()})
	default:
		log.Printf("%s: %v", op, err)
		writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, payload response) {
	if payload.OK {
		apiresp.WriteOK(w, r, code, payload.Data)
		return
	}
	apiresp.WriteError(w, r, code, payload.Error)
}
