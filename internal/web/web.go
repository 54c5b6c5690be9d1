package web

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"calrecur/internal/calendar"
	"calrecur/internal/config"
	"calrecur/internal/ics"
	appLog "calrecur/internal/log"
	"calrecur/internal/model"
)

// Server exposes the calendar service as a JSON API.
type Server struct {
	cfg *config.Config
	svc *calendar.Service
	mux *http.ServeMux
	now func() time.Time
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, svc *calendar.Service) *Server {
	s := &Server{
		cfg: cfg,
		svc: svc,
		mux: http.NewServeMux(),
		now: time.Now,
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		h = s.basicAuthMiddleware(h)
	}
	return s.recoverMiddleware(h)
}

// Run serves on cfg.Listen until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	appLog.Info("HTTP server stopped")
	return nil
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="calrecur", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				appLog.Error("panic in handler", fmt.Errorf("%v", rec), "method", r.Method, "path", r.URL.Path)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("GET /api/events", s.handleMonth)
	s.mux.HandleFunc("GET /api/events.ics", s.handleMonthICS)
	s.mux.HandleFunc("POST /api/events", s.handleCreate)
	s.mux.HandleFunc("GET /api/events/{id}", s.handleGetEvent)
	s.mux.HandleFunc("PATCH /api/events/{id}", s.handleEdit)
	s.mux.HandleFunc("DELETE /api/events/{id}", s.handleDelete)
	s.mux.HandleFunc("GET /api/templates/{id}", s.handleGetTemplate)

	s.mux.HandleFunc("POST /api/generate", s.handleGenerate)

	s.mux.HandleFunc("GET /api/owners/{id}/events", s.handleOwnerEvents)
	s.mux.HandleFunc("GET /api/places/{id}/events", s.handlePlaceEvents)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// GET /api/events?month=2024-01
func (s *Server) handleMonth(w http.ResponseWriter, r *http.Request) {
	month, ok := s.loadMonth(w, r)
	if !ok {
		return
	}

	events := make([]eventView, 0, len(month.Events))
	for _, e := range month.Events {
		events = append(events, newEventView(e, month.Templates[e.TemplateID]))
	}
	writeJSON(w, http.StatusOK, monthResponse{
		Month:    month.Window.Start.Format(monthLayout),
		Start:    month.Window.Start,
		End:      month.Window.End,
		Timezone: s.svc.Location().String(),
		Events:   events,
	})
}

// GET /api/events.ics?month=2024-01
func (s *Server) handleMonthICS(w http.ResponseWriter, r *http.Request) {
	month, ok := s.loadMonth(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := ics.WriteMonth(&buf, month, s.now()); err != nil {
		handleError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="calrecur-%s.ics"`, month.Window.Start.Format(monthLayout)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) loadMonth(w http.ResponseWriter, r *http.Request) (*calendar.Month, bool) {
	date := s.now().In(s.svc.Location())
	if v := r.URL.Query().Get("month"); v != "" {
		d, err := time.ParseInLocation(monthLayout, v, s.svc.Location())
		if err != nil {
			writeError(w, http.StatusBadRequest, "month must be formatted as YYYY-MM")
			return nil, false
		}
		date = d
	}

	month, err := s.svc.PotentialEventsOfMonth(r.Context(), date)
	if err != nil {
		handleError(w, err)
		return nil, false
	}
	return month, true
}

// POST /api/events
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.validateCreate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ev, err := s.svc.CreateEvent(r.Context(), req.Attributes, req.OwnerID, req.PlaceID)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

// GET /api/events/{id}
func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	ev, err := s.svc.GetEvent(r.Context(), id)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// GET /api/templates/{id}
func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	t, err := s.svc.GetTemplate(r.Context(), id)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, templateResponse{Template: t, Events: t.Events})
}

// PATCH /api/events/{id}
func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	var req eventRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.validateEdit(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ev, err := s.svc.EditEvent(r.Context(), id, req.Attributes, req.OwnerID, req.PlaceID)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, editResponse{Changed: ev != nil, Event: ev})
}

// DELETE /api/events/{id}?recurring=true|false
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	var recurring *bool
	if v := r.URL.Query().Get("recurring"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "recurring must be true or false")
			return
		}
		recurring = &b
	}

	deleted, err := s.svc.DeleteEvent(r.Context(), id, recurring)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deleteResponse{Deleted: deleted})
}

// POST /api/generate?date=2024-01-08T00:00:00Z
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	ref := s.now()
	if v := r.URL.Query().Get("date"); v != "" {
		d, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be RFC3339")
			return
		}
		ref = d
	}

	res, err := s.svc.Generate(r.Context(), ref)
	if err != nil && res.Materialized == 0 && res.Skipped == 0 && res.Failed == 0 {
		handleError(w, err)
		return
	}
	resp := generateResponse{
		Reference:    res.Reference,
		Materialized: res.Materialized,
		Skipped:      res.Skipped,
		Failed:       res.Failed,
		Events:       res.Events,
	}
	if resp.Events == nil {
		resp.Events = []model.Event{}
	}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// GET /api/owners/{id}/events
func (s *Server) handleOwnerEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r)
	if !ok {
		return
	}
	events, err := s.svc.EventsByOwner(r.Context(), model.OwnerID(id))
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// GET /api/places/{id}/events
func (s *Server) handlePlaceEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r)
	if !ok {
		return
	}
	events, err := s.svc.EventsByPlace(r.Context(), model.PlaceID(id))
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func pathUUID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func pathInt(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// handleError converts domain errors to HTTP responses.
func handleError(w http.ResponseWriter, err error) {
	var verrs validation.Errors
	switch {
	case errors.Is(err, model.ErrValidation), errors.As(err, &verrs):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, model.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, "request canceled")
	default:
		appLog.Error("request failed", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
