// Package web exposes the agenda over a small JSON API. It is a thin
// surface over the store and collaborators; all state rules live below.
package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"agendad/internal/agenda"
	"agendad/internal/config"
	"agendad/internal/feed"
	appLog "agendad/internal/log"
	"agendad/internal/model"
	"agendad/internal/poll"
	"agendad/internal/snapshot"
)

// Server wires HTTP handlers to the agenda components.
type Server struct {
	cfg        *config.Config
	store      *agenda.Store
	discoverer *feed.Discoverer
	poller     *poll.Scheduler
	mux        *http.ServeMux
}

// NewServer constructs a Server. poller may be nil when polling is not
// wired (the reconfigure endpoint then returns 503).
func NewServer(cfg *config.Config, store *agenda.Store, d *feed.Discoverer, p *poll.Scheduler) *Server {
	s := &Server{
		cfg:        cfg,
		store:      store,
		discoverer: d,
		poller:     p,
		mux:        http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the http.Handler, wrapped with basic auth when
// configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) basicAuthEnabled() bool {
	ba := s.cfg.BasicAuth
	return ba != nil && ba.Username != "" && ba.Password != ""
}

// basicAuthMiddleware guards all handlers except /health.
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
			w.Header().Set("WWW-Authenticate", `Basic realm="agendad", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/agenda", s.handleAgenda)
	s.mux.HandleFunc("GET /api/categories", s.handleCategories)
	s.mux.HandleFunc("POST /api/categories", s.handleRegisterCategory)
	s.mux.HandleFunc("GET /api/discover", s.handleDiscover)
	s.mux.HandleFunc("GET /api/candidates", s.handleCandidates)
	s.mux.HandleFunc("POST /api/events", s.handleSave)
	s.mux.HandleFunc("PATCH /api/events", s.handleUpdate)
	s.mux.HandleFunc("DELETE /api/events", s.handleRemove)
	s.mux.HandleFunc("POST /api/events/attend", s.handleAttend)
	s.mux.HandleFunc("GET /api/export", s.handleExport)
	s.mux.HandleFunc("GET /api/export.ics", s.handleExportICS)
	s.mux.HandleFunc("POST /api/import", s.handleImport)
	s.mux.HandleFunc("POST /api/poll", s.handlePoll)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// eventDTO is the JSON view of a saved or history event.
type eventDTO struct {
	Title       string   `json:"title"`
	DateText    string   `json:"date_text"`
	Location    string   `json:"location"`
	Category    string   `json:"category"`
	Description string   `json:"description"`
	SourceText  string   `json:"source_text"`
	Notes       string   `json:"notes"`
	Status      string   `json:"status"`
	Contacts    []string `json:"contacts"`
	ReminderMs  *int64   `json:"reminder"`
}

type candidateDTO struct {
	Title       string `json:"title"`
	DateText    string `json:"date_text"`
	Location    string `json:"location"`
	Category    string `json:"category"`
	Description string `json:"description"`
	SourceText  string `json:"source_text"`
}

type groupDTO struct {
	Key    string     `json:"key"`
	Events []eventDTO `json:"events"`
}

type agendaResponse struct {
	Saved   []eventDTO `json:"saved"`
	History []eventDTO `json:"history"`
	Groups  []groupDTO `json:"groups"`
}

func toEventDTO(ev model.SavedEvent) eventDTO {
	dto := eventDTO{
		Title:       ev.Title,
		DateText:    ev.DateText,
		Location:    ev.Location,
		Category:    ev.Category,
		Description: ev.Description,
		SourceText:  ev.SourceText,
		Notes:       ev.Notes,
		Status:      string(ev.Status),
		Contacts:    ev.Contacts,
	}
	if dto.Contacts == nil {
		dto.Contacts = []string{}
	}
	if ev.ReminderLead != nil {
		ms := ev.ReminderLead.Milliseconds()
		dto.ReminderMs = &ms
	}
	return dto
}

func (s *Server) handleAgenda(w http.ResponseWriter, _ *http.Request) {
	saved := s.store.Saved()
	history := s.store.History()
	groups := agenda.GroupByDate(saved, s.store.Location())

	resp := agendaResponse{
		Saved:   make([]eventDTO, 0, len(saved)),
		History: make([]eventDTO, 0, len(history)),
		Groups:  make([]groupDTO, 0, len(groups)),
	}
	for _, ev := range saved {
		resp.Saved = append(resp.Saved, toEventDTO(ev))
	}
	for _, ev := range history {
		resp.History = append(resp.History, toEventDTO(ev.SavedEvent))
	}
	for _, g := range groups {
		gd := groupDTO{Key: g.Key, Events: make([]eventDTO, 0, len(g.Events))}
		for _, ev := range g.Events {
			gd.Events = append(gd.Events, toEventDTO(ev))
		}
		resp.Groups = append(resp.Groups, gd)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCategories(w http.ResponseWriter, _ *http.Request) {
	type categoryDTO struct {
		ID    string `json:"id"`
		Label string `json:"label"`
	}
	cats := s.store.Categories()
	out := make([]categoryDTO, 0, len(cats))
	for _, c := range cats {
		out = append(out, categoryDTO{ID: c.ID, Label: c.Label})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRegisterCategory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Label string `json:"label"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s.store.RegisterCategory(req.Label)
	writeJSON(w, http.StatusOK, s.store.Categories())
}

// handleDiscover runs one discovery round. A round already in flight
// yields 409 rather than stacking a second network call.
func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	if s.discoverer == nil {
		writeError(w, http.StatusServiceUnavailable, "discovery not configured")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()

	candidates, failures, ok := s.discoverer.TryDiscover(ctx, r.URL.Query().Get("category"))
	if !ok {
		writeError(w, http.StatusConflict, "a discovery round is already running")
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Candidates    []candidateDTO `json:"candidates"`
		FailedSources int            `json:"failed_sources"`
	}{toCandidateDTOs(candidates), failures})
}

// handleCandidates serves whatever the most recent discovery round
// found, whether it was user-triggered or a poll tick.
func (s *Server) handleCandidates(w http.ResponseWriter, _ *http.Request) {
	if s.discoverer == nil {
		writeError(w, http.StatusServiceUnavailable, "discovery not configured")
		return
	}
	candidates, failures, at := s.discoverer.Last()
	resp := struct {
		Candidates    []candidateDTO `json:"candidates"`
		FailedSources int            `json:"failed_sources"`
		UpdatedAt     *time.Time     `json:"updated_at"`
	}{Candidates: toCandidateDTOs(candidates), FailedSources: failures}
	if !at.IsZero() {
		resp.UpdatedAt = &at
	}
	writeJSON(w, http.StatusOK, resp)
}

func toCandidateDTOs(candidates []model.CandidateEvent) []candidateDTO {
	out := make([]candidateDTO, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, candidateDTO{
			Title:       c.Title,
			DateText:    c.DateText,
			Location:    c.Location,
			Category:    c.Category,
			Description: c.Description,
			SourceText:  c.SourceText,
		})
	}
	return out
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	var req candidateDTO
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	s.store.Save(model.CandidateEvent{
		Title:       req.Title,
		DateText:    req.DateText,
		Location:    req.Location,
		Category:    req.Category,
		Description: req.Description,
		SourceText:  req.SourceText,
	})
	w.WriteHeader(http.StatusNoContent)
}

// updateRequest mutates one annotation field at a time, mirroring the
// store's setter surface. Absent fields are left untouched.
type updateRequest struct {
	Title         string  `json:"title"`
	Notes         *string `json:"notes,omitempty"`
	Status        *string `json:"status,omitempty"`
	Category      *string `json:"category,omitempty"`
	ReminderMs    *int64  `json:"reminder,omitempty"`
	ClearReminder bool    `json:"clear_reminder,omitempty"`
	AddContact    *string `json:"add_contact,omitempty"`
	RemoveContact *string `json:"remove_contact,omitempty"`
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	if req.Notes != nil {
		s.store.SetNotes(req.Title, *req.Notes)
	}
	if req.Status != nil {
		s.store.SetStatus(req.Title, model.ParseStatus(*req.Status))
	}
	if req.Category != nil {
		s.store.SetCategory(req.Title, *req.Category)
	}
	if req.ClearReminder {
		s.store.SetReminderLead(req.Title, nil)
	} else if req.ReminderMs != nil {
		lead := time.Duration(*req.ReminderMs) * time.Millisecond
		s.store.SetReminderLead(req.Title, &lead)
	}
	if req.AddContact != nil {
		s.store.AddContact(req.Title, *req.AddContact)
	}
	if req.RemoveContact != nil {
		s.store.RemoveContact(req.Title, *req.RemoveContact)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	title := r.URL.Query().Get("title")
	if title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	s.store.Remove(title)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAttend(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	s.store.PromoteToHistory(req.Title)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExport(w http.ResponseWriter, _ *http.Request) {
	data, err := snapshot.Export(s.store)
	if err != nil {
		appLog.Error("export failed", err)
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+snapshot.SuggestedName(time.Now())+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleExportICS(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="agenda.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(snapshot.ExportICS(s.store))
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 4<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if err := snapshot.Import(s.store, data); err != nil {
		writeError(w, http.StatusBadRequest, "the file could not be imported; the agenda was not modified")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handlePoll reconfigures the periodic discovery schedule; the previous
// schedule is always replaced, never stacked.
func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	if s.poller == nil {
		writeError(w, http.StatusServiceUnavailable, "polling not configured")
		return
	}
	var req struct {
		Enabled bool `json:"enabled"`
		Minutes int  `json:"minutes"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s.poller.Configure(req.Enabled, req.Minutes)
	writeJSON(w, http.StatusOK, map[string]bool{"active": s.poller.Active()})
}

// decodeBody reads a JSON request body into v, writing a 400 response
// and returning false on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
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

// Run serves the API until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, cfg *config.Config, s *Server) error {
	srv := &http.Server{
		Addr:    cfg.Listen,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
