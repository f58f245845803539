package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/amenity-cli/internal/amenity"
	"github.com/sells-group/amenity-cli/internal/config"
	"github.com/sells-group/amenity-cli/internal/model"
	"github.com/sells-group/amenity-cli/internal/monitoring"
	"github.com/sells-group/amenity-cli/internal/pipeline"
	"github.com/sells-group/amenity-cli/internal/store"
)

var servePort int

const defaultStatsHours = 24

// ranker runs one ranking query.
type ranker interface {
	Rank(ctx context.Context, q model.Query, progress amenity.ProgressFunc) (*pipeline.Result, error)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP ranking API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, cfg, config.ModeServe)
		if err != nil {
			return err
		}
		defer env.Close()

		if cfg.Monitoring.Enabled && env.Store != nil {
			checker := monitoring.NewChecker(
				monitoring.NewCollector(env.Store),
				monitoring.NewAlerter(cfg.Monitoring),
				cfg.Monitoring,
			)
			go checker.Run(ctx)
		}

		router := buildRouter(env, env.Store, func(q model.Query) model.Query {
			return queryFromConfig(cfg, q)
		}, cfg.Server.RequestTimeout())

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// buildRouter wires the API routes. st may be nil, in which case the run
// history endpoints answer 503.
func buildRouter(rk ranker, st store.Store, defaults func(model.Query) model.Query, timeout time.Duration) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/rank", handleRank(rk, defaults, timeout))
		r.Get("/runs", handleListRuns(st))
		r.Get("/runs/{id}", handleGetRun(st))
		r.Get("/stats", handleStats(st))
	})

	return r
}

func handleRank(rk ranker, defaults func(model.Query) model.Query, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var q model.Query
		if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body", "")
			return
		}
		if q.Text == "" {
			writeError(w, http.StatusBadRequest, "query is required", "")
			return
		}
		if defaults != nil {
			q = defaults(q)
		}
		if q.Radius < config.MinSearchRadius || q.Radius > config.MaxSearchRadius {
			writeError(w, http.StatusBadRequest,
				fmt.Sprintf("radius must be between %d and %d", config.MinSearchRadius, config.MaxSearchRadius), "")
			return
		}

		ctx := r.Context()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		res, err := rk.Rank(ctx, q, nil)
		if err != nil {
			zap.L().Warn("rank request failed",
				zap.String("query", q.Text),
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.Error(err),
			)
			var stage string
			var se *model.StageError
			if errors.As(err, &se) {
				stage = se.Stage
			}
			writeError(w, statusFor(err), err.Error(), stage)
			return
		}

		writeJSON(w, http.StatusOK, res)
	}
}

func handleListRuns(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if st == nil {
			writeError(w, http.StatusServiceUnavailable, "run history is disabled", "")
			return
		}

		filter := store.RunFilter{
			Status: model.RunStatus(r.URL.Query().Get("status")),
			Query:  r.URL.Query().Get("q"),
		}
		var err error
		if filter.Limit, err = intParam(r, "limit"); err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), "")
			return
		}
		if filter.Offset, err = intParam(r, "offset"); err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), "")
			return
		}

		runs, err := st.ListRuns(r.Context(), filter)
		if err != nil {
			zap.L().Error("list runs failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "list runs failed", "")
			return
		}
		if runs == nil {
			runs = []model.Run{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
	}
}

func handleGetRun(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if st == nil {
			writeError(w, http.StatusServiceUnavailable, "run history is disabled", "")
			return
		}

		run, err := st.GetRun(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, model.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found", "")
			return
		}
		if err != nil {
			zap.L().Error("get run failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "get run failed", "")
			return
		}
		writeJSON(w, http.StatusOK, run)
	}
}

func handleStats(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if st == nil {
			writeError(w, http.StatusServiceUnavailable, "run history is disabled", "")
			return
		}

		hours, err := intParam(r, "hours")
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), "")
			return
		}
		if hours == 0 {
			hours = defaultStatsHours
		}

		snap, err := monitoring.NewCollector(st).Collect(r.Context(), hours)
		if err != nil {
			zap.L().Error("collect stats failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "collect stats failed", "")
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

// statusFor maps pipeline failures to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidParameter):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrInsufficientData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrRateLimitExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func intParam(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, eris.Errorf("%s must be a non-negative integer", name)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("failed to write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg, stage string) {
	body := map[string]string{"error": msg}
	if stage != "" {
		body["stage"] = stage
	}
	writeJSON(w, status, body)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
