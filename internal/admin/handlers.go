package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dshills/hostkit/internal/event"
	"github.com/dshills/hostkit/internal/host"
	"github.com/dshills/hostkit/internal/plugin"
	"github.com/dshills/hostkit/internal/service"
)

// PluginView is the JSON form of a loaded plugin.
type PluginView struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	Version      string              `json:"version"`
	Description  string              `json:"description,omitempty"`
	Loader       string              `json:"loader"`
	Path         string              `json:"path,omitempty"`
	State        plugin.State        `json:"state"`
	LoadedAt     time.Time           `json:"loaded_at"`
	DataDir      string              `json:"data_dir"`
	Dependencies []plugin.Dependency `json:"dependencies,omitempty"`
}

// ServiceView is the JSON form of one service type and its providers.
type ServiceView struct {
	Service   string         `json:"service"`
	Providers []ProviderView `json:"providers"`
}

// ProviderView is one registered provider.
type ProviderView struct {
	Provider string `json:"provider"`
	Owner    string `json:"owner"`
	Priority string `json:"priority"`
}

// EventsView is the dispatch table plus the names scripts may use.
type EventsView struct {
	Catalog []string           `json:"catalog"`
	Table   []event.TableEntry `json:"table"`
}

// ReportView is the JSON form of a load report.
type ReportView struct {
	Cycle    string     `json:"cycle"`
	Dir      string     `json:"dir"`
	Loaded   []string   `json:"loaded"`
	Skipped  []SkipView `json:"skipped"`
	Duration string     `json:"duration"`
}

// SkipView is one skipped candidate.
type SkipView struct {
	ID     string `json:"id,omitempty"`
	Path   string `json:"path"`
	Reason string `json:"reason"`
	Error  string `json:"error,omitempty"`
}

func viewPlugin(c *plugin.Container) PluginView {
	d := c.Descriptor()
	return PluginView{
		ID:           d.ID,
		Name:         d.Name,
		Version:      d.Version,
		Description:  d.Description,
		Loader:       d.LoaderName(),
		Path:         d.Path,
		State:        c.State(),
		LoadedAt:     c.LoadedAt(),
		DataDir:      c.DataDir(),
		Dependencies: d.Dependencies,
	}
}

func viewReport(r *plugin.Report) ReportView {
	v := ReportView{
		Cycle:    r.Cycle,
		Dir:      r.Dir,
		Loaded:   r.Loaded,
		Skipped:  make([]SkipView, 0, len(r.Skipped)),
		Duration: r.Duration.String(),
	}
	if v.Loaded == nil {
		v.Loaded = []string{}
	}
	for _, s := range r.Skipped {
		v.Skipped = append(v.Skipped, SkipView{ID: s.ID, Path: s.Path, Reason: s.Reason, Error: s.Message()})
	}
	return v
}

func (s *Server) listPlugins(w http.ResponseWriter, _ *http.Request) {
	all := s.host.Manager().AllPlugins()
	out := make([]PluginView, 0, len(all))
	for _, c := range all {
		out = append(out, viewPlugin(c))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"plugins": out})
}

func (s *Server) getPlugin(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, ok := s.host.Manager().Plugin(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("plugin %q is not loaded", id))
		return
	}
	s.writeJSON(w, http.StatusOK, viewPlugin(c))
}

func (s *Server) reload(w http.ResponseWriter, r *http.Request) {
	// A client disconnect must not leave a reload half applied.
	report, err := s.host.Reload(context.WithoutCancel(r.Context()))
	switch {
	case errors.Is(err, host.ErrNotStarted), errors.Is(err, host.ErrStopped):
		s.writeError(w, http.StatusConflict, err.Error())
		return
	case report == nil && err != nil:
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	body := map[string]any{"report": viewReport(report)}
	status := http.StatusOK
	if err != nil {
		body["error"] = err.Error()
		status = http.StatusUnprocessableEntity
	}
	s.writeJSON(w, status, body)
}

func (s *Server) listServices(w http.ResponseWriter, _ *http.Request) {
	reg := s.host.Services()
	types := reg.Services()
	out := make([]ServiceView, 0, len(types))
	for _, t := range types {
		v := ServiceView{Service: t.String()}
		for _, p := range reg.Registrations(t) {
			v.Providers = append(v.Providers, ProviderView{
				Provider: describe(p.Provider),
				Owner:    describe(p.Owner),
				Priority: p.Priority.String(),
			})
		}
		out = append(out, v)
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"services": out})
}

func (s *Server) listEvents(w http.ResponseWriter, _ *http.Request) {
	table := s.host.Bus().Snapshot()
	if table == nil {
		table = []event.TableEntry{}
	}
	s.writeJSON(w, http.StatusOK, EventsView{
		Catalog: s.host.Catalog().Names(),
		Table:   table,
	})
}

func (s *Server) recentEvents(w http.ResponseWriter, r *http.Request) {
	n := 0
	if q := r.URL.Query().Get("n"); q != "" {
		v, err := strconv.Atoi(q)
		if err != nil || v < 0 {
			s.writeError(w, http.StatusBadRequest, "n must be a non-negative integer")
			return
		}
		n = v
	}
	log, ok := service.Lookup[host.EventLog](s.host.Services())
	if !ok {
		s.writeError(w, http.StatusNotFound, "event log plugin is not loaded")
		return
	}
	entries := log.Recent(n)
	if entries == nil {
		entries = []host.LogEntry{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"events": entries})
}

// describe renders a provider or owner for display.
func describe(v any) string {
	if s, ok := v.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", v)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("encode response")
	}
}

// writeError writes a consistent JSON error payload.
func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]any{"error": msg, "code": status})
}
