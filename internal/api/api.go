// Package api exposes roster sync, course context and redaction over HTTP for
// the LMS broker and its operators.
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/gzhole/rostershield/internal/document"
	"github.com/gzhole/rostershield/internal/metrics"
	"github.com/gzhole/rostershield/internal/redact"
	"github.com/gzhole/rostershield/internal/roster"
	"github.com/gzhole/rostershield/internal/rostercache"
	"github.com/gzhole/rostershield/internal/service"
	"github.com/gzhole/rostershield/internal/store"
)

// MaxBodySize bounds request bodies; Office files travel through /files.
const MaxBodySize = 32 << 20

const requestIDHeader = "X-Request-Id"

type Handler struct {
	svc     *service.Service
	metrics bool
}

func NewHandler(svc *service.Service, withMetrics bool) *Handler {
	return &Handler{svc: svc, metrics: withMetrics}
}

// Router returns the chi router for the API.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.RequestSize(MaxBodySize))
	r.Use(middleware.Recoverer)
	r.Use(observeDuration)

	r.Get("/healthz", h.health)
	if h.metrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api/v1/owners/{owner}", func(r chi.Router) {
		r.Put("/courses/{course}/roster", h.syncRoster)
		r.Delete("/courses/{course}/roster", h.clearRoster)
		r.Get("/courses/{course}/roster/collisions", h.collisions)

		r.Put("/context", h.setContext)
		r.Get("/context", h.getContext)
		r.Delete("/context", h.clearContext)

		r.Post("/mask", h.transform(document.Egress))
		r.Post("/unmask", h.transform(document.Ingress))
		r.Post("/files/{direction}", h.redactFile)
	})
	return r
}

// requestID tags every request and response with a uuid unless the caller
// already sent one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(requestIDHeader, id)
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func observeDuration(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.APIRequestDuration.WithLabelValues(
			path,
			r.Method,
			strconv.Itoa(status),
		).Observe(time.Since(start).Seconds())
	})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *Handler) syncRoster(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	courseID, ok := courseParam(w, r)
	if !ok {
		return
	}

	var entries []roster.Entry
	if err := json.NewDecoder(r.Body).Decode(&entries); err != nil {
		http.Error(w, "Invalid roster body", http.StatusBadRequest)
		return
	}

	res, err := h.svc.SyncRoster(r.Context(), owner, courseID, entries)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) clearRoster(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	courseID, ok := courseParam(w, r)
	if !ok {
		return
	}

	n, err := h.svc.ClearRoster(r.Context(), owner, courseID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"course_id": courseID, "deleted": n})
}

func (h *Handler) collisions(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	courseID, ok := courseParam(w, r)
	if !ok {
		return
	}

	idx, err := h.svc.CourseRoster(r.Context(), owner, courseID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	collisions := idx.Collisions()
	if collisions == nil {
		collisions = []roster.Collision{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"course_id": courseID, "collisions": collisions})
}

type contextBody struct {
	CourseID int64 `json:"course_id"`
}

func (h *Handler) setContext(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	var body contextBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.CourseID <= 0 {
		http.Error(w, "course_id must be a positive integer", http.StatusBadRequest)
		return
	}
	if err := h.svc.Contexts.SetCourseContext(r.Context(), owner, body.CourseID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *Handler) getContext(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	courseID, ok, err := h.svc.Contexts.GetCourseContext(r.Context(), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !ok {
		http.Error(w, "No course context", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, contextBody{CourseID: courseID})
}

func (h *Handler) clearContext(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	if err := h.svc.Contexts.ClearCourseContext(r.Context(), owner); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type transformRequest struct {
	CourseID *int64 `json:"course_id,omitempty"`
	Data     any    `json:"data"`
}

type transformResponse struct {
	Data  any          `json:"data"`
	Stats redact.Stats `json:"stats"`
}

func (h *Handler) transform(dir document.Direction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner := chi.URLParam(r, "owner")

		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		var req transformRequest
		if err := dec.Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		out, st, err := h.svc.TransformValue(r.Context(), owner, req.CourseID, req.Data, dir)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, transformResponse{Data: out, Stats: st})
	}
}

func (h *Handler) redactFile(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	dir, err := document.ParseDirection(chi.URLParam(r, "direction"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	filename := r.URL.Query().Get("filename")
	if filename == "" {
		http.Error(w, "filename query parameter is required", http.StatusBadRequest)
		return
	}
	var course *int64
	if cs := r.URL.Query().Get("course_id"); cs != "" {
		id, err := strconv.ParseInt(cs, 10, 64)
		if err != nil || id <= 0 {
			http.Error(w, "Invalid course_id", http.StatusBadRequest)
			return
		}
		course = &id
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	out, st, err := h.svc.RedactFile(r.Context(), owner, course, data, filename, dir)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("X-RosterShield-Tokens", strconv.Itoa(st.Tokens()))
	w.Header().Set("X-RosterShield-One-Way", strconv.Itoa(st.OneWay))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

func courseParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "course"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "Invalid course", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// writeError maps service errors to status codes. Messages may echo roster
// values, so they are scrubbed before logging.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, rostercache.ErrNoCourse):
		status = http.StatusConflict
	case errors.Is(err, service.ErrInvalidRoster), errors.Is(err, store.ErrEmptyOwner):
		status = http.StatusBadRequest
	case errors.Is(err, document.ErrCorruptDocument):
		status = http.StatusUnprocessableEntity
	}

	msg := redact.ForLog(err.Error())
	if status == http.StatusInternalServerError {
		logger.Error.Printf("%s %s [%s]: %s", r.Method, r.URL.Path, r.Header.Get(requestIDHeader), msg)
		msg = "Internal error"
	}
	writeJSON(w, status, map[string]any{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		http.Error(w, fmt.Sprintf("encode response: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
