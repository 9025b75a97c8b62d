package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"signdesk/internal/ratelimit"
	"signdesk/internal/util"
	"signdesk/pkg/domain"
	"signdesk/pkg/export"
	"signdesk/pkg/synth"
	"signdesk/services/desk/internal/app"
	"signdesk/services/desk/internal/kvstore"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	MaxUploadBytes int64
	TrustedProxies *util.TrustedProxies
	WriteLimiter   *ratelimit.FixedWindowLimiter // nil disables limiting
}

// Server exposes the operator-facing HTTP endpoints of the desk.
type Server struct {
	app            *app.App
	mux            *http.ServeMux
	maxUploadBytes int64
	trustedProxies *util.TrustedProxies
	writeLimiter   *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app is required")
	}
	maxUploadBytes := cfg.MaxUploadBytes
	if maxUploadBytes <= 0 {
		maxUploadBytes = 10 * 1024 * 1024
	}
	s := &Server{
		app:            cfg.App,
		mux:            http.NewServeMux(),
		maxUploadBytes: maxUploadBytes,
		trustedProxies: cfg.TrustedProxies,
		writeLimiter:   cfg.WriteLimiter,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("desk", util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// templates
	s.mux.HandleFunc("/api/templates", s.handleTemplates)
	s.mux.HandleFunc("/api/templates/", s.handleTemplateByID)

	// contracts
	s.mux.HandleFunc("/api/contracts", s.handleContracts)
	s.mux.HandleFunc("/api/contracts/groups", s.handleContractGroups)
	s.mux.HandleFunc("/api/contracts/", s.handleContractByID)

	// exports
	s.mux.HandleFunc("/api/exports/csv", s.handleExportTabular)
	s.mux.HandleFunc("/api/exports/archive", s.handleExportArchive)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListTemplates(w, r)
	case http.MethodPost:
		s.handleUploadTemplate(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.app.ListTemplates()
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": templates,
		"count": len(templates),
	})
}

func (s *Server) handleUploadTemplate(w http.ResponseWriter, r *http.Request) {
	if !s.allowWrite(w, r, "too many template uploads, slow down") {
		s.audit(r, "template_upload", "rate_limited")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "uploaded file is too large")
			return
		}
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid form data")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "file is required (field: file)")
		return
	}
	defer file.Close()
	if !strings.EqualFold(filepath.Ext(header.Filename), ".pdf") {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "only .pdf uploads are accepted")
		return
	}

	record, err := s.app.UploadTemplate(r.FormValue("name"), r.FormValue("category"), header.Filename, file)
	if err != nil {
		s.audit(r, "template_upload", "failure", "filename", header.Filename)
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "template_upload", "success", "template_id", record.ID, "template", record.Name)
	writeJSON(w, http.StatusCreated, record)
}

// /api/templates/{id}
func (s *Server) handleTemplateByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/templates/")
	if id == "" || strings.Contains(id, "/") {
		notFound(w, "SYSTEM_NOT_FOUND", "not found")
		return
	}
	template, ok, err := s.app.GetTemplate(id)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if !ok {
		notFound(w, "TEMPLATE_NOT_FOUND", "template not found")
		return
	}
	writeJSON(w, http.StatusOK, template)
}

func (s *Server) handleContracts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleSearchContracts(w, r)
	case http.MethodPost:
		s.handleCompleteContract(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleSearchContracts(w http.ResponseWriter, r *http.Request) {
	contracts, err := s.app.SearchContracts(r.URL.Query().Get("q"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": contracts,
		"count": len(contracts),
	})
}

func (s *Server) handleCompleteContract(w http.ResponseWriter, r *http.Request) {
	if !s.allowWrite(w, r, "too many signing attempts, slow down") {
		s.audit(r, "contract_completion", "rate_limited")
		return
	}
	var req completeContractRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid JSON body")
		return
	}
	record, err := s.app.CompleteContract(req.TemplateID, req.Signer.toDomain(), req.Signature)
	if err != nil {
		s.audit(r, "contract_completion", "failure", "template_id", req.TemplateID)
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "contract_completion", "success",
		"contract_id", record.ID, "template", record.TemplateName)
	writeJSON(w, http.StatusCreated, record)
}

func (s *Server) handleContractGroups(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	groups, err := s.app.ContractGroups()
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	items := make([]groupSummary, 0, len(groups))
	for _, g := range groups {
		items = append(items, groupSummary{Key: g.Key, Count: len(g.Contracts)})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"count": len(items),
	})
}

// /api/contracts/{id} or /api/contracts/{id}/download
func (s *Server) handleContractByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/api/contracts/")
	parts := strings.SplitN(path, "/", 2)
	id := parts[0]
	if id == "" {
		notFound(w, "SYSTEM_NOT_FOUND", "not found")
		return
	}
	if len(parts) == 2 {
		if parts[1] != "download" {
			notFound(w, "SYSTEM_NOT_FOUND", "not found")
			return
		}
		s.handleDownloadContract(w, r, id)
		return
	}

	contract, ok, err := s.app.GetContract(id)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if !ok {
		notFound(w, "CONTRACT_NOT_FOUND", "contract not found")
		return
	}
	writeJSON(w, http.StatusOK, contract)
}

func (s *Server) handleDownloadContract(w http.ResponseWriter, r *http.Request, id string) {
	filename, data, err := s.app.DownloadContract(id)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeAttachment(w, filename, "application/pdf", data)
}

func (s *Server) handleExportTabular(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	filename, data, err := s.app.ExportTabular()
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeAttachment(w, filename, "text/csv; charset=utf-8", data)
}

func (s *Server) handleExportArchive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	month := r.URL.Query().Get("month")
	if strings.TrimSpace(month) == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "month query parameter is required (YYYY-MM)")
		return
	}
	archive, err := s.app.ExportArchive(month)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeAttachment(w, archive.Name, "application/zip", archive.Data)
}

// writeAppError translates application errors into the response taxonomy.
// Unknown errors are logged with the request-scoped logger and masked.
func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	var synthErr *synth.SynthesisError
	switch {
	case errors.Is(err, app.ErrValidation):
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, app.ErrTemplateNotFound):
		writeError(w, http.StatusNotFound, "TEMPLATE_NOT_FOUND", "template not found")
	case errors.Is(err, app.ErrContractNotFound):
		writeError(w, http.StatusNotFound, "CONTRACT_NOT_FOUND", "contract not found")
	case errors.As(err, &synthErr):
		writeError(w, http.StatusUnprocessableEntity, "SYNTHESIS_FAILED", "could not generate the signed document")
	case errors.Is(err, kvstore.ErrQuotaExceeded):
		writeError(w, http.StatusInsufficientStorage, "STORAGE_QUOTA_EXCEEDED", "local storage quota exceeded")
	case errors.Is(err, export.ErrNothingToExport):
		writeError(w, http.StatusNotFound, "EXPORT_EMPTY", "no contracts to export")
	default:
		util.LoggerFromContext(r.Context()).Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "SYSTEM_INTERNAL_ERROR", "internal error")
	}
}

// allowWrite gates the write endpoints per client IP. A nil limiter allows
// everything.
func (s *Server) allowWrite(w http.ResponseWriter, r *http.Request, msg string) bool {
	if s.writeLimiter.Allow(util.ClientIP(r, s.trustedProxies)) {
		return true
	}
	writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", msg)
	return false
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r, s.trustedProxies),
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)
}

func writeAttachment(w http.ResponseWriter, filename, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "SYSTEM_METHOD_NOT_ALLOWED", "method not allowed")
}

func notFound(w http.ResponseWriter, code, msg string) {
	writeError(w, http.StatusNotFound, code, msg)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      code,
		RequestID: strings.TrimSpace(w.Header().Get("X-Request-Id")),
	})
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

type completeContractRequest struct {
	TemplateID string        `json:"templateId"`
	Signer     signerPayload `json:"signer"`
	Signature  string        `json:"signature"`
}

type signerPayload struct {
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
	Address   string `json:"address"`
	BirthDate string `json:"birthDate"`
}

func (p signerPayload) toDomain() domain.SignerInfo {
	return domain.SignerInfo{
		Name:      p.Name,
		Phone:     p.Phone,
		Email:     p.Email,
		Address:   p.Address,
		BirthDate: p.BirthDate,
	}
}

type groupSummary struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}
