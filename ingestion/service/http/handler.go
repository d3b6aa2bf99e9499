package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	core "cdctrl/ingestion/service/core"
	"cdctrl/internal/models"
	"cdctrl/internal/session"
	"cdctrl/internal/store"
)

// maxBodyBytes limits submitted records and session requests
const maxBodyBytes = 10 * 1024 * 1024

// LogHandler serves the record submission endpoint and the front-end query surface
type LogHandler struct {
	store      *store.LogStore
	sink       core.Sink
	sessions   *session.Manager
	notifier   *core.Notifier
	listenAddr string
	logger     *log.Logger
}

// NewLogHandler creates a new LogHandler. listenAddr is reported by /health.
func NewLogHandler(s *store.LogStore, sink core.Sink, sessions *session.Manager, n *core.Notifier, listenAddr string, l *log.Logger) *LogHandler {
	return &LogHandler{
		store:      s,
		sink:       sink,
		sessions:   sessions,
		notifier:   n,
		listenAddr: listenAddr,
		logger:     l,
	}
}

// Routes registers every endpoint on a new ServeMux
func (h *LogHandler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/logs", h.Logs)
	mux.HandleFunc("/v1/selection", h.Selection)
	mux.HandleFunc("/v1/acknowledged", h.Acknowledged)
	mux.HandleFunc("/v1/session/save", h.SaveSession)
	mux.HandleFunc("/v1/session/load", h.LoadSession)
	mux.HandleFunc("/v1/changes", h.Changes)
	mux.HandleFunc("/health", h.HealthCheck)
	return mux
}

// Logs dispatches /v1/logs by method
func (h *LogHandler) Logs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.SubmitLog(w, r)
	case http.MethodGet:
		h.QueryLogs(w, r)
	case http.MethodDelete:
		h.ClearLogs(w, r)
	default:
		h.respondError(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

// SubmitLog handles POST /v1/logs requests
func (h *LogHandler) SubmitLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondError(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	var rec models.LogRecord
	if !h.decodeBody(w, r, &rec) {
		return
	}
	rec.AssignIdentity()

	if err := h.sink.Send(r.Context(), rec); err != nil {
		h.logger.Printf("HTTP Handler: Failed to queue record %s: %v", rec.UUID, err)
		h.respondError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	h.respondJSON(w, map[string]interface{}{
		"uuid":   rec.UUID,
		"status": "ACCEPTED",
	}, http.StatusAccepted)
}

// HealthCheck handles GET /health requests
func (h *LogHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.respondError(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := map[string]interface{}{
		"status":      "healthy",
		"timestamp":   time.Now().Format(time.RFC3339Nano),
		"service":     "cdctrl-inspector",
		"listen_addr": h.listenAddr,
	}
	if n, err := h.store.Len(); err == nil {
		resp["records"] = n
	} else {
		resp["status"] = "degraded"
		resp["store_error"] = err.Error()
	}

	h.respondJSON(w, resp, http.StatusOK)
}

// decodeBody parses a JSON request body into v, responding with an error on failure.
// An empty body leaves v untouched.
func (h *LogHandler) decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	defer r.Body.Close()

	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		h.respondError(w, "Content-Type must be application/json", http.StatusBadRequest)
		return false
	}
	if r.ContentLength > maxBodyBytes {
		h.respondError(w, "Request body too large", http.StatusRequestEntityTooLarge)
		return false
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		h.logger.Printf("HTTP Handler: Failed to parse JSON request: %v", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.respondError(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return false
		}
		h.respondError(w, fmt.Sprintf("Bad Request: Invalid JSON format: %v", err), http.StatusBadRequest)
		return false
	}
	return true
}

// respondJSON sends JSON response
func (h *LogHandler) respondJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Printf("HTTP Handler: Failed to encode JSON response: %v", err)
	}
}

// respondError sends error response
func (h *LogHandler) respondError(w http.ResponseWriter, message string, statusCode int) {
	errorResp := map[string]interface{}{
		"error":   message,
		"status":  statusCode,
		"message": http.StatusText(statusCode),
	}

	h.respondJSON(w, errorResp, statusCode)
}

// storeStatus maps store errors to an HTTP status
func storeStatus(err error) int {
	if errors.Is(err, store.ErrStoreUnavailable) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
