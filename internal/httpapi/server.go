package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"goodwill_sniper/internal/logbus"
	"goodwill_sniper/internal/model"
	"goodwill_sniper/internal/ws"
)

// StateSource reports the scheduler state.
type StateSource interface {
	State() model.SchedulerState
}

// SnapshotSource exposes the last favorites snapshot without fetching.
type SnapshotSource interface {
	Fallback() model.Snapshot
}

type History interface {
	ListBidAttempts(ctx context.Context, limit int) ([]model.BidAttempt, error)
	ListAlertEvents(ctx context.Context, limit int) ([]model.AlertEvent, error)
}

type Options struct {
	Bus          *logbus.Bus
	State        StateSource
	Snapshots    SnapshotSource
	History      History
	AllowOrigins []string
}

// Server is the read-only status surface of a running sniper.
type Server struct {
	bus       *logbus.Bus
	state     StateSource
	snapshots SnapshotSource
	history   History
	origins   []string
	ws        *ws.Handler
}

func New(opts Options) *Server {
	return &Server{
		bus:       opts.Bus,
		state:     opts.State,
		snapshots: opts.Snapshots,
		history:   opts.History,
		origins:   opts.AllowOrigins,
		ws:        ws.NewHandler(opts.Bus, opts.AllowOrigins),
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", s.handleHealth)
	r.Handle("/ws", s.ws)

	r.Route("/api/v1", func(r chi.Router) {
		if len(s.origins) > 0 {
			r.Use(corsMiddleware(s.origins))
		}
		r.Get("/state", s.handleState)
		r.Get("/favorites", s.handleFavorites)
		r.Get("/history/bids", s.handleBidHistory)
		r.Get("/history/alerts", s.handleAlertHistory)
	})
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log("info", "status server listening", map[string]any{"addr": addr})

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	if s.state != nil {
		writeJSON(w, http.StatusOK, map[string]any{"data": s.state.State()})
		return
	}
	if s.bus != nil {
		if msg, ok := s.bus.Latest("state"); ok {
			writeJSON(w, http.StatusOK, map[string]any{"data": msg.Data})
			return
		}
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "scheduler not running"})
}

func (s *Server) handleFavorites(w http.ResponseWriter, _ *http.Request) {
	if s.snapshots == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "favorites unavailable"})
		return
	}
	snap := s.snapshots.Fallback()
	listings := snap.Listings
	if listings == nil {
		listings = []model.Listing{}
	}
	out := map[string]any{"data": listings}
	if !snap.Empty() {
		out["fetchedAt"] = snap.FetchedAt
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleBidHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "history unavailable"})
		return
	}
	limit, err := parseInt(r.URL.Query().Get("limit"), 50)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid limit"})
		return
	}
	items, err := s.history.ListBidAttempts(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": items})
}

func (s *Server) handleAlertHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "history unavailable"})
		return
	}
	limit, err := parseInt(r.URL.Query().Get("limit"), 50)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid limit"})
		return
	}
	items, err := s.history.ListAlertEvents(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": items})
}

func (s *Server) log(level, msg string, fields map[string]any) {
	if s.bus != nil {
		s.bus.Log(level, msg, fields)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func parseInt(v string, def int) (int, error) {
	if strings.TrimSpace(v) == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, err
	}
	if n <= 0 || n > 1000 {
		return 0, errors.New("out of range")
	}
	return n, nil
}
