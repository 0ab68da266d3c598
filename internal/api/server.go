package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/IshaanNene/PanelGoat/internal/config"
	"github.com/IshaanNene/PanelGoat/internal/observability"
	"github.com/IshaanNene/PanelGoat/internal/refresh"
	"github.com/IshaanNene/PanelGoat/internal/types"
)

// Store is the read side of the persistence sink.
type Store interface {
	LatestTotalAccounts(ctx context.Context) (*types.TotalAccountsRecord, error)
	LatestSubscription(ctx context.Context) (*types.SubscriptionRecord, error)
	Subscriptions(ctx context.Context, start, end time.Time) ([]types.SubscriptionRecord, error)
}

// Refresher runs one scrape-and-persist cycle.
type Refresher interface {
	Run(ctx context.Context, trigger string) (*refresh.Report, error)
}

// Server serves the latest persisted metrics and the refresh trigger.
type Server struct {
	router    *chi.Mux
	httpSrv   *http.Server
	addr      string
	store     Store
	refresher Refresher
	timeout   time.Duration
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// NewServer creates a new API server.
func NewServer(cfg *config.Config, store Store, refresher Refresher, metrics *observability.Metrics, logger *slog.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		addr:      net.JoinHostPort(cfg.API.Host, strconv.Itoa(cfg.API.Port)),
		store:     store,
		refresher: refresher,
		timeout:   cfg.API.RefreshTimeout,
		metrics:   metrics,
		logger:    logger.With("component", "api_server"),
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.requestLogger)
	s.router.Use(cors)
	s.registerRoutes(cfg.Metrics)
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the API server in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.httpSrv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("API server starting", "addr", ln.Addr().String())

	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	s.logger.Info("API server shutting down")
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) registerRoutes(mc config.MetricsConfig) {
	s.router.Get("/health", s.handleHealth)

	s.router.Get("/total_accounts", s.handleTotalAccounts)
	s.router.Get("/premium_subscribers", s.handlePremiumSubscribers)
	s.router.Post("/refresh", s.handleRefresh)

	if mc.Enabled && s.metrics != nil {
		s.router.Handle(mc.Path, s.metrics.Handler())
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": config.Version,
	})
}

type totalAccountsResponse struct {
	ScrapedAt     *time.Time `json:"scraped_at"`
	TotalAccounts *int64     `json:"total_accounts"`
}

func (s *Server) handleTotalAccounts(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.LatestTotalAccounts(r.Context())
	if errors.Is(err, types.ErrNoSnapshot) {
		s.jsonResponse(w, http.StatusOK, totalAccountsResponse{})
		return
	}
	if err != nil {
		s.storeFailure(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, totalAccountsResponse{ScrapedAt: &rec.ScrapedAt, TotalAccounts: &rec.TotalAccounts})
}

func (s *Server) handlePremiumSubscribers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rawStart, rawEnd := q.Get("start"), q.Get("end")

	if rawStart == "" && rawEnd == "" {
		rec, err := s.store.LatestSubscription(r.Context())
		if errors.Is(err, types.ErrNoSnapshot) {
			s.jsonResponse(w, http.StatusOK, []types.SubscriptionRecord{})
			return
		}
		if err != nil {
			s.storeFailure(w, err)
			return
		}
		s.jsonResponse(w, http.StatusOK, []types.SubscriptionRecord{*rec})
		return
	}

	start, err := parseBound(rawStart, false)
	if err != nil {
		s.jsonResponse(w, http.StatusBadRequest, map[string]string{"error": "invalid start: " + err.Error()})
		return
	}
	end, err := parseBound(rawEnd, true)
	if err != nil {
		s.jsonResponse(w, http.StatusBadRequest, map[string]string{"error": "invalid end: " + err.Error()})
		return
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		s.jsonResponse(w, http.StatusBadRequest, map[string]string{"error": "end is before start"})
		return
	}

	recs, err := s.store.Subscriptions(r.Context(), start, end)
	if err != nil {
		s.storeFailure(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, recs)
}

type refreshResponse struct {
	Status string `json:"status"`
	Output string `json:"output"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	report, err := s.refresher.Run(ctx, refresh.TriggerManual)
	if err != nil {
		s.logger.Warn("refresh not run", "error", err)
		s.jsonResponse(w, http.StatusOK, refreshResponse{Status: refresh.StatusError, Output: err.Error()})
		return
	}
	s.jsonResponse(w, http.StatusOK, refreshResponse{Status: report.Status, Output: report.Output()})
}

func (s *Server) storeFailure(w http.ResponseWriter, err error) {
	s.logger.Error("storage read failed", "error", err)
	s.jsonResponse(w, http.StatusInternalServerError, map[string]string{"error": "storage unavailable"})
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// parseBound accepts RFC 3339 timestamps or plain YYYY-MM-DD dates in UTC.
// A plain end date covers the whole day.
func parseBound(raw string, end bool) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.UTC(), nil
	}
	day, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is neither RFC 3339 nor YYYY-MM-DD", raw)
	}
	if end {
		return day.Add(24*time.Hour - time.Nanosecond), nil
	}
	return day, nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
