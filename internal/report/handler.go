package report

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"certprep/internal/app/apiresp"
	"certprep/internal/auth"
)

type Handler struct {
	svc reportService
}

type reportService interface {
	ProgressFor(ctx context.Context, userID, mode string) (*Progress, error)
	ExportHistoryExcel(ctx context.Context, userID, mode string) ([]byte, error)
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Progress(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}

	progress, err := h.svc.ProgressFor(r.Context(), user.ID, strings.TrimSpace(r.URL.Query().Get("mode")))
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}
		log.Printf("progress report: %v", err)
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, progress)
}

func (h *Handler) ExportExcel(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}

	data, err := h.svc.ExportHistoryExcel(r.Context(), user.ID, strings.TrimSpace(r.URL.Query().Get("mode")))
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}
		log.Printf("export history: %v", err)
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="certprep-history.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
