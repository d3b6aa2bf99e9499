package http

import (
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"cdctrl/internal/models"
	"cdctrl/internal/query"
	"cdctrl/internal/session"
)

// Long-poll bounds for GET /v1/changes
const (
	defaultChangeWait = 25 * time.Second
	maxChangeWait     = 30 * time.Second
)

type logsResponse struct {
	query.View
	Selected *selectedDetail `json:"selected,omitempty"`
}

type selectedDetail struct {
	Entry                  models.Entry `json:"entry"`
	UnacknowledgedWarnings []string     `json:"unacknowledged_warnings"`
}

// QueryLogs handles GET /v1/logs?field=&q=&case_sensitive=&regex=&newest_first=
func (h *LogHandler) QueryLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	field, err := query.ParseField(q.Get("field"))
	if err != nil {
		h.respondError(w, err.Error(), http.StatusBadRequest)
		return
	}
	f := query.Filter{Field: field, Query: q.Get("q")}
	if f.CaseSensitive, err = boolParam(q.Get("case_sensitive"), false); err != nil {
		h.respondError(w, "case_sensitive: "+err.Error(), http.StatusBadRequest)
		return
	}
	if f.Regex, err = boolParam(q.Get("regex"), false); err != nil {
		h.respondError(w, "regex: "+err.Error(), http.StatusBadRequest)
		return
	}
	newestFirst, err := boolParam(q.Get("newest_first"), true)
	if err != nil {
		h.respondError(w, "newest_first: "+err.Error(), http.StatusBadRequest)
		return
	}

	snapshot, err := h.store.Snapshot()
	if err != nil {
		h.logger.Printf("HTTP Handler: Snapshot failed: %v", err)
		h.respondError(w, err.Error(), storeStatus(err))
		return
	}
	selected, hasSelection, err := h.store.Selected()
	if err != nil {
		h.respondError(w, err.Error(), storeStatus(err))
		return
	}

	var selectedID string
	if hasSelection {
		selectedID = selected.ID()
	}
	resp := logsResponse{View: query.Build(snapshot, f, newestFirst, selectedID)}
	if hasSelection {
		warnings, err := h.store.UnacknowledgedWarnings(selected)
		if err != nil {
			h.respondError(w, err.Error(), storeStatus(err))
			return
		}
		resp.Selected = &selectedDetail{Entry: selected, UnacknowledgedWarnings: warnings}
	}

	h.respondJSON(w, resp, http.StatusOK)
}

// ClearLogs handles DELETE /v1/logs
func (h *LogHandler) ClearLogs(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Clear(); err != nil {
		h.respondError(w, err.Error(), storeStatus(err))
		return
	}
	h.logger.Println("HTTP Handler: Cleared all records")
	h.notifier.Notify()
	h.respondJSON(w, map[string]interface{}{"status": "CLEARED"}, http.StatusOK)
}

// Selection handles PUT /v1/selection {"id": ...} and DELETE /v1/selection
func (h *LogHandler) Selection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPut:
		var req struct {
			ID string `json:"id"`
		}
		if !h.decodeBody(w, r, &req) {
			return
		}
		if req.ID == "" {
			h.respondError(w, "id is required", http.StatusBadRequest)
			return
		}
		found, err := h.store.Select(req.ID)
		if err != nil {
			h.respondError(w, err.Error(), storeStatus(err))
			return
		}
		if !found {
			h.respondError(w, "no record with id "+req.ID, http.StatusNotFound)
			return
		}
		h.notifier.Notify()
		h.respondJSON(w, map[string]interface{}{"selected_id": req.ID}, http.StatusOK)

	case http.MethodDelete:
		if err := h.store.ClearSelection(); err != nil {
			h.respondError(w, err.Error(), storeStatus(err))
			return
		}
		h.notifier.Notify()
		h.respondJSON(w, map[string]interface{}{"selected_id": ""}, http.StatusOK)

	default:
		h.respondError(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

// Acknowledged handles POST /v1/acknowledged {"message": ...} and GET /v1/acknowledged
func (h *LogHandler) Acknowledged(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req struct {
			Message string `json:"message"`
		}
		if !h.decodeBody(w, r, &req) {
			return
		}
		if req.Message == "" {
			h.respondError(w, "message is required", http.StatusBadRequest)
			return
		}
		if err := h.store.Acknowledge(req.Message); err != nil {
			h.respondError(w, err.Error(), storeStatus(err))
			return
		}
		h.notifier.Notify()
		h.respondJSON(w, map[string]interface{}{"acknowledged": req.Message}, http.StatusOK)

	case http.MethodGet:
		messages, err := h.store.Acknowledged()
		if err != nil {
			h.respondError(w, err.Error(), storeStatus(err))
			return
		}
		h.respondJSON(w, map[string]interface{}{"acknowledged": messages}, http.StatusOK)

	default:
		h.respondError(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

// SaveSession handles POST /v1/session/save {"path"?}. Without a path the session is
// written to the configured directory, named after its timestamp.
func (h *LogHandler) SaveSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondError(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Path string `json:"path"`
	}
	if !h.decodeBody(w, r, &req) {
		return
	}

	path := req.Path
	var err error
	if path == "" {
		path, err = h.sessions.SaveToDir()
	} else {
		err = h.sessions.SaveFile(path)
	}
	if err != nil {
		h.logger.Printf("HTTP Handler: Session save failed: %v", err)
		h.respondError(w, err.Error(), sessionStatus(err))
		return
	}

	ts, _ := h.store.SessionTimestamp()
	h.respondJSON(w, map[string]interface{}{
		"path":              path,
		"session_timestamp": ts,
	}, http.StatusOK)
}

// LoadSession handles POST /v1/session/load {"path": ...}
func (h *LogHandler) LoadSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondError(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Path string `json:"path"`
	}
	if !h.decodeBody(w, r, &req) {
		return
	}
	if req.Path == "" {
		h.respondError(w, "path is required", http.StatusBadRequest)
		return
	}

	sess, err := h.sessions.LoadFile(req.Path)
	if err != nil {
		h.logger.Printf("HTTP Handler: Session load failed: %v", err)
		h.respondError(w, err.Error(), sessionStatus(err))
		return
	}
	h.notifier.Notify()

	h.respondJSON(w, map[string]interface{}{
		"path":              req.Path,
		"session_timestamp": sess.Timestamp,
		"records":           len(sess.Entries),
		"acknowledged":      len(sess.Acknowledged),
	}, http.StatusOK)
}

// Changes handles GET /v1/changes?timeout=. It returns as soon as new data was
// committed, or with "changed": false once the timeout elapses.
func (h *LogHandler) Changes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.respondError(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	wait := defaultChangeWait
	if s := r.URL.Query().Get("timeout"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d < 0 {
			h.respondError(w, "timeout must be a non-negative duration such as 10s", http.StatusBadRequest)
			return
		}
		wait = d
	}
	if wait > maxChangeWait {
		wait = maxChangeWait
	}

	changed := h.notifier.Changed()
	timer := time.NewTimer(wait)
	defer timer.Stop()

	var fired bool
	select {
	case <-changed:
		fired = true
	case <-timer.C:
	case <-r.Context().Done():
		return
	}

	resp := map[string]interface{}{"changed": fired}
	if n, err := h.store.Len(); err == nil {
		resp["records"] = n
	}
	h.respondJSON(w, resp, http.StatusOK)
}

func boolParam(s string, def bool) (bool, error) {
	if s == "" {
		return def, nil
	}
	return strconv.ParseBool(s)
}

// sessionStatus maps session errors to an HTTP status
func sessionStatus(err error) int {
	switch {
	case errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, session.ErrDecode):
		return http.StatusUnprocessableEntity
	default:
		return storeStatus(err)
	}
}
