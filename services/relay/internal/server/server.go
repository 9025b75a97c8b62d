package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path"
	"strconv"
	"time"

	"signdesk/internal/util"
	"signdesk/services/relay/internal/app"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App *app.App
	// FilesDir, when set, is served read-only under /files/. It should be
	// the local object store directory; leave empty for remote backends.
	FilesDir string
}

// Server exposes the relay's submission API and the stored document tree.
type Server struct {
	app *app.App
	mux *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app is required")
	}
	s := &Server{
		app: cfg.App,
		mux: http.NewServeMux(),
	}
	s.routes(cfg.FilesDir)
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("relay", util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes(filesDir string) {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/api/contracts", s.handleContracts)
	if filesDir != "" {
		s.mux.Handle("/files/", http.StripPrefix("/files/", http.FileServer(http.Dir(filesDir))))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleContracts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListReceipts(w, r)
	case http.MethodPost:
		s.handleSubmitContract(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleSubmitContract(w http.ResponseWriter, r *http.Request) {
	var req submitContractRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 32<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid JSON body")
		return
	}
	receipt, err := s.app.AcceptContract(r.Context(), app.Submission{
		TemplateName: req.TemplateName,
		SignerName:   req.SignerName,
		SignerPhone:  req.SignerPhone,
		SignerEmail:  req.SignerEmail,
		SignedAt:     req.SignedAt,
		Document:     req.Document,
	})
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, submitContractResponse{
		Success:  true,
		FileName: path.Base(receipt.FileKey),
		FileURL:  receipt.FileURL,
	})
}

func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}
	receipts, err := s.app.ListReceipts(limit)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": receipts,
		"count": len(receipts),
	})
}

// writeAppError translates application errors into the response taxonomy.
// Unknown errors are logged with the request-scoped logger and masked.
func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, app.ErrValidation):
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	default:
		util.LoggerFromContext(r.Context()).Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "SYSTEM_INTERNAL_ERROR", "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "SYSTEM_METHOD_NOT_ALLOWED", "method not allowed")
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      code,
		RequestID: w.Header().Get("X-Request-Id"),
	})
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

type submitContractRequest struct {
	TemplateName string    `json:"templateName"`
	SignerName   string    `json:"signerName"`
	SignerPhone  string    `json:"signerPhone"`
	SignerEmail  string    `json:"signerEmail"`
	SignedAt     time.Time `json:"signedAt"`
	Document     string    `json:"document"`
}

type submitContractResponse struct {
	Success  bool   `json:"success"`
	FileName string `json:"fileName"`
	FileURL  string `json:"fileUrl"`
}
