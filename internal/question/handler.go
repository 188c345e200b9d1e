package question

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"mime"
	"net/http"
	"strings"

	"certprep/internal/app/apiresp"
)

const maxImportBytes = 16 << 20

type Handler struct {
	reader   PublicReader
	importer importer
}

type importer interface {
	ImportCSV(ctx context.Context, r io.Reader) (*ImportReport, error)
}

type cacheInvalidator interface {
	Invalidate(ctx context.Context, domain string) error
}

type apiResponse struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

// NewHandler serves reads from reader. A nil importer disables the import
// endpoint.
func NewHandler(reader PublicReader, imp importer) *Handler {
	return &Handler{reader: reader, importer: imp}
}

// ListPublic serves the question pool without answer keys or explanations.
func (h *Handler) ListPublic(w http.ResponseWriter, r *http.Request) {
	domain := strings.TrimSpace(r.URL.Query().Get("domain"))

	items, err := h.reader.ListPublic(r.Context(), domain)
	if err != nil {
		log.Printf("list public questions: %v", err)
		writeJSON(w, r, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
		return
	}

	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: items})
}

// Import accepts a question bank CSV either as a multipart "file" field or
// as JSON {"csv_content": "..."}.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	if h.importer == nil {
		writeJSON(w, r, http.StatusNotFound, apiResponse{OK: false, Error: "not found"})
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)

	var src io.Reader
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxImportBytes); err != nil {
			writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid multipart form"})
			return
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "file field is required"})
			return
		}
		defer file.Close()
		src = file
	} else {
		var req struct {
			CSVContent string `json:"csv_content"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid json body"})
			return
		}
		if strings.TrimSpace(req.CSVContent) == "" {
			writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "csv_content required"})
			return
		}
		src = strings.NewReader(req.CSVContent)
	}

	report, err := h.importer.ImportCSV(r.Context(), src)
	if report != nil && report.SuccessRows > 0 {
		h.invalidate(r.Context(), report.Domains)
	}
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: err.Error()})
			return
		}
		log.Printf("import questions: %v", err)
		writeJSON(w, r, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
		return
	}

	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: report})
}

func (h *Handler) invalidate(ctx context.Context, domains []string) {
	inv, ok := h.reader.(cacheInvalidator)
	if !ok {
		return
	}
	if len(domains) == 0 {
		domains = []string{""}
	}
	for _, d := range domains {
		if err := inv.Invalidate(ctx, d); err != nil {
			log.Printf("question cache: invalidate %q: %v", d, err)
		}
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, payload apiResponse) {
	if payload.OK {
		apiresp.WriteOK(w, r, code, payload.Data)
		return
	}
	apiresp.WriteError(w, r, code, payload.Error)
}
