package report

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"certprep/internal/auth"
)

type mockReportService struct {
	progressFn func(ctx context.Context, userID, mode string) (*Progress, error)
	exportFn   func(ctx context.Context, userID, mode string) ([]byte, error)
}

func (m *mockReportService) ProgressFor(ctx context.Context, userID, mode string) (*Progress, error) {
	if m.progressFn == nil {
		return &Progress{}, nil
	}
	return m.progressFn(ctx, userID, mode)
}

func (m *mockReportService) ExportHistoryExcel(ctx context.Context, userID, mode string) ([]byte, error) {
	if m.exportFn == nil {
		return []byte("xlsx"), nil
	}
	return m.exportFn(ctx, userID, mode)
}

func withUser(r *http.Request, id string) *http.Request {
	return r.WithContext(auth.ContextWithUser(r.Context(), &auth.User{ID: id}))
}

func TestProgressRequiresUser(t *testing.T) {
	h := &Handler{svc: &mockReportService{}}
	rr := httptest.NewRecorder()
	h.Progress(rr, httptest.NewRequest(http.MethodGet, "/api/v1/progress", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestProgressPassesUserAndMode(t *testing.T) {
	var gotUser, gotMode string
	h := &Handler{svc: &mockReportService{
		progressFn: func(ctx context.Context, userID, mode string) (*Progress, error) {
			gotUser, gotMode = userID, mode
			return &Progress{CompletedTests: 2, AverageScore: 700}, nil
		},
	}}
	req := withUser(httptest.NewRequest(http.MethodGet, "/api/v1/progress?mode=exam", nil), "u7")
	rr := httptest.NewRecorder()
	h.Progress(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotUser != "u7" || gotMode != "exam" {
		t.Fatalf("unexpected args: %q %q", gotUser, gotMode)
	}
	var body struct {
		OK   bool     `json:"ok"`
		Data Progress `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.OK || body.Data.AverageScore != 700 {
		t.Fatalf("unexpected body: %s", rr.Body.String())
	}
}

func TestProgressHidesInternalError(t *testing.T) {
	h := &Handler{svc: &mockReportService{
		progressFn: func(ctx context.Context, userID, mode string) (*Progress, error) {
			return nil, errors.New("pq: relation missing")
		},
	}}
	rr := httptest.NewRecorder()
	h.Progress(rr, withUser(httptest.NewRequest(http.MethodGet, "/api/v1/progress", nil), "u1"))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "relation") {
		t.Fatalf("internal error leaked: %s", rr.Body.String())
	}
}

func TestExportExcelHeaders(t *testing.T) {
	h := &Handler{svc: &mockReportService{}}
	rr := httptest.NewRecorder()
	h.ExportExcel(rr, withUser(httptest.NewRequest(http.MethodGet, "/api/v1/progress/export.xlsx", nil), "u1"))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.Contains(ct, "spreadsheetml") {
		t.Fatalf("unexpected content type %q", ct)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "certprep-history.xlsx") {
		t.Fatalf("unexpected content disposition %q", cd)
	}
	if rr.Body.String() != "xlsx" {
		t.Fatalf("unexpected body %q", rr.Body.String())
	}
}
