package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/michaelbrown/dotbox/internal/sandbox"
)

const (
	defaultLogTail = 50
	maxLogTail     = 1000
)

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeSandboxError maps a sandbox error kind onto an HTTP status.
func writeSandboxError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch sandbox.KindOf(err) {
	case sandbox.KindNotFound:
		status = http.StatusNotFound
	case sandbox.KindValidation:
		status = http.StatusBadRequest
	case sandbox.KindUnavailable:
		status = http.StatusServiceUnavailable
	case sandbox.KindTimeout:
		status = http.StatusGatewayTimeout
	}

	body := map[string]any{"error": err.Error()}
	var se *sandbox.Error
	if errors.As(err, &se) {
		body["type"] = se.Kind
		if len(se.Suggestions) > 0 {
			body["suggestions"] = se.Suggestions
		}
	}
	writeJSON(w, status, body)
}

// tailParam reads ?tail=, defaulting to defaultLogTail.
func tailParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("tail")
	if raw == "" {
		return defaultLogTail, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxLogTail {
		return 0, sandbox.Invalid("tail must be an integer between 1 and %d", maxLogTail)
	}
	return n, nil
}

// findSandbox resolves the running sandbox of the {project} URL parameter.
func (s *Server) findSandbox(r *http.Request) (string, error) {
	project := chi.URLParam(r, "project")
	id, ok, err := s.mgr.FindByProjectID(r.Context(), project)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", sandbox.NotFound(project)
	}
	return id, nil
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.mgr.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListSandboxes(w http.ResponseWriter, r *http.Request) {
	infos, err := s.mgr.List(r.Context())
	if err != nil {
		writeSandboxError(w, err)
		return
	}
	if infos == nil {
		infos = []sandbox.Info{}
	}
	writeJSON(w, http.StatusOK, infos)
}

type sandboxView struct {
	sandbox.Info
	IdleSeconds *float64 `json:"idle_seconds,omitempty"`
}

func (s *Server) handleGetSandbox(w http.ResponseWriter, r *http.Request) {
	id, err := s.findSandbox(r)
	if err != nil {
		writeSandboxError(w, err)
		return
	}

	infos, err := s.mgr.List(r.Context())
	if err != nil {
		writeSandboxError(w, err)
		return
	}
	for _, info := range infos {
		if info.ID != id {
			continue
		}
		view := sandboxView{Info: info}
		if last, ok := s.mgr.LastActivity(id); ok {
			idle := time.Since(last).Seconds()
			view.IdleSeconds = &idle
		}
		writeJSON(w, http.StatusOK, view)
		return
	}
	writeSandboxError(w, sandbox.NotFound(chi.URLParam(r, "project")))
}

func (s *Server) handleStopSandbox(w http.ResponseWriter, r *http.Request) {
	project := chi.URLParam(r, "project")
	_, outcome, err := s.mgr.StopProject(r.Context(), project)
	if err != nil {
		writeSandboxError(w, err)
		return
	}
	switch outcome {
	case sandbox.StopRemoved:
		w.WriteHeader(http.StatusNoContent)
	case sandbox.StopNotFound:
		writeError(w, http.StatusNotFound, "no running sandbox for project "+project)
	default:
		writeError(w, http.StatusInternalServerError, "failed to stop sandbox for project "+project)
	}
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	tail, err := tailParam(r)
	if err != nil {
		writeSandboxError(w, err)
		return
	}
	id, err := s.findSandbox(r)
	if err != nil {
		writeSandboxError(w, err)
		return
	}

	logs, err := s.mgr.Logs(r.Context(), id, tail, 0)
	if err != nil {
		writeSandboxError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, logs)
}
