package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	alerts "thermo-cloud/internal/alerts/domain"
	"thermo-cloud/internal/auth"
	"thermo-cloud/internal/observability/metrics"
	readingsapp "thermo-cloud/internal/readings/application"
	readings "thermo-cloud/internal/readings/domain"
	"thermo-cloud/internal/readings/interfaces/export"
)

const (
	defaultHours       = 24
	defaultLimit       = 1000
	defaultAlertsLimit = 50
	maxSubmitBytes     = 1 << 20
)

// AlertHistory lists recently fired alerts.
type AlertHistory interface {
	Recent(limit int) []alerts.Event
}

// Handler serves the ingestion and query endpoints.
type Handler struct {
	ingest *readingsapp.IngestService
	query  *readingsapp.QueryService
	alerts AlertHistory
	logger *slog.Logger
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithAlertHistory enables GET /api/alerts.
func WithAlertHistory(history AlertHistory) HandlerOption {
	return func(h *Handler) {
		h.alerts = history
	}
}

// WithLogger sets the handler logger.
func WithLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHandler constructs a handler.
func NewHandler(ingest *readingsapp.IngestService, query *readingsapp.QueryService, opts ...HandlerOption) (*Handler, error) {
	if ingest == nil {
		return nil, errors.New("readings handler: nil ingest service")
	}
	if query == nil {
		return nil, errors.New("readings handler: nil query service")
	}
	h := &Handler{ingest: ingest, query: query, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// ServeHTTP routes /submit and /api/* requests.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/submit":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleSubmit(w, r)
	case "/api/data":
		if !allowGet(w, r) {
			return
		}
		h.handleData(w, r)
	case "/api/stats":
		if !allowGet(w, r) {
			return
		}
		h.handleStats(w, r)
	case "/api/health":
		if !allowGet(w, r) {
			return
		}
		h.handleHealth(w, r)
	case "/api/export":
		if !allowGet(w, r) {
			return
		}
		h.handleExport(w, r)
	case "/api/report.pdf":
		if !allowGet(w, r) {
			return
		}
		h.handleReport(w, r)
	case "/api/alerts":
		if !allowGet(w, r) {
			return
		}
		h.handleAlerts(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type submitResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	ID      int64  `json:"id,omitempty"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var sub readingsapp.Submission
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSubmitBytes))
	decoder.UseNumber()
	if err := decoder.Decode(&sub); err != nil {
		metrics.IncIngestError("invalid_json")
		writeJSON(w, http.StatusBadRequest, submitResponse{Status: "error", Message: "Invalid JSON"})
		return
	}

	reading, err := h.ingest.Submit(r.Context(), sub, metrics.TransportHTTP)
	if err != nil {
		var verr *readings.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusBadRequest, submitResponse{Status: "error", Message: verr.Message})
			return
		}
		h.logger.Error("submit failed", "subject", auth.SubjectFromContext(r.Context()), "error", err)
		writeJSON(w, http.StatusInternalServerError, submitResponse{Status: "error", Message: "Failed to store reading"})
		return
	}
	writeJSON(w, http.StatusOK, submitResponse{Status: "ok", Message: "Data recorded successfully", ID: reading.ID})
}

func (h *Handler) handleData(w http.ResponseWriter, r *http.Request) {
	hours := intQuery(r, "hours", defaultHours)
	limit := intQuery(r, "limit", defaultLimit)
	rows, err := h.query.ListRecent(r.Context(), hours, limit)
	if err != nil {
		h.respondError(w, "list readings", err)
		return
	}
	if strings.EqualFold(r.URL.Query().Get("order"), "asc") {
		reversed := make([]readingsapp.DisplayRow, len(rows))
		for i, row := range rows {
			reversed[len(rows)-1-i] = row
		}
		rows = reversed
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	hours := intQuery(r, "hours", defaultHours)
	withQuantiles, _ := strconv.ParseBool(r.URL.Query().Get("quantiles"))
	snap, err := h.query.Statistics(r.Context(), hours, withQuantiles)
	if err != nil {
		h.respondError(w, "statistics", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := h.query.Health(r.Context())
	status := http.StatusOK
	if !report.Healthy() {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, report)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		http.Error(w, "format must be csv, xlsx or parquet", http.StatusBadRequest)
		return
	}
	hours := intQuery(r, "hours", defaultHours)
	rows, err := h.query.Window(r.Context(), hours)
	if err != nil {
		metrics.IncExport(string(format), metrics.ResultError)
		h.respondError(w, "export", err)
		return
	}
	data, err := export.Build(format, rows, h.query.Location())
	if err != nil {
		metrics.IncExport(string(format), metrics.ResultError)
		h.respondError(w, "export", err)
		return
	}
	metrics.IncExport(string(format), metrics.ResultSuccess)
	h.logger.Info("export served", "format", string(format), "hours", hours, "rows", len(rows), "subject", auth.SubjectFromContext(r.Context()))
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=readings-%dh.%s", hours, format))
	_, _ = w.Write(data)
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	hours := intQuery(r, "hours", defaultHours)
	snap, err := h.query.Statistics(r.Context(), hours, false)
	if err != nil {
		metrics.IncExport("pdf", metrics.ResultError)
		h.respondError(w, "report", err)
		return
	}
	data, err := export.BuildReportPDF(export.Report{Hours: hours, GeneratedAt: time.Now(), Snapshot: snap}, h.query.Location())
	if err != nil {
		metrics.IncExport("pdf", metrics.ResultError)
		h.respondError(w, "report", err)
		return
	}
	metrics.IncExport("pdf", metrics.ResultSuccess)
	h.logger.Info("report served", "hours", hours, "subject", auth.SubjectFromContext(r.Context()))
	w.Header().Set("Content-Type", "application/pdf")
	_, _ = w.Write(data)
}

func (h *Handler) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if h.alerts == nil {
		writeJSON(w, http.StatusOK, []alerts.Event{})
		return
	}
	writeJSON(w, http.StatusOK, h.alerts.Recent(intQuery(r, "limit", defaultAlertsLimit)))
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, readings.ErrValidation) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.logger.Error(op+" failed", "error", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// intQuery falls back to def when the parameter is absent or not an integer.
func intQuery(r *http.Request, key string, def int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
