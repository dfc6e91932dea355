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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/rayven/internal/focalplane"
	"github.com/sells-group/rayven/internal/geometry"
	"github.com/sells-group/rayven/internal/model"
	"github.com/sells-group/rayven/internal/monitoring"
	"github.com/sells-group/rayven/internal/observability"
	"github.com/sells-group/rayven/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for stored runs and ghost images",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		cam, err := geometry.FromConfig(cfg.Geometry)
		if err != nil {
			return err
		}
		metrics, err := observability.NewSimulationCollector(prometheus.DefaultRegisterer)
		if err != nil {
			return err
		}
		collector := monitoring.NewCollector(st, time.Duration(cfg.Monitoring.StaleRunHours)*time.Hour)

		if cfg.Monitoring.Enabled {
			checker := monitoring.NewChecker(collector, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
			go checker.Run(ctx)
		}

		srv := &http.Server{
			Addr: fmt.Sprintf(":%d", cfg.Server.Port),
			Handler: newAPI(apiDeps{
				Store:         st,
				Binner:        focalplane.NewBinner(cam),
				Bins:          focalplane.Pair(cfg.Binning.BinsX, cfg.Binning.BinsY),
				MaxBins:       cfg.Binning.MaxBins,
				Metrics:       metrics.Handler(),
				Monitor:       collector,
				LookbackHours: cfg.Monitoring.LookbackWindowHours,
			}).routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// apiStore is the store subset the API reads.
type apiStore interface {
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
	ghostReader
}

type apiDeps struct {
	Store         apiStore
	Binner        *focalplane.Binner
	Bins          focalplane.Bins
	MaxBins       int
	Metrics       http.Handler
	Monitor       *monitoring.Collector
	LookbackHours int
}

type api struct {
	apiDeps
}

func newAPI(d apiDeps) *api {
	if d.LookbackHours <= 0 {
		d.LookbackHours = 24
	}
	if d.MaxBins <= 0 {
		d.MaxBins = focalplane.DefaultMaxBins
	}
	return &api{apiDeps: d}
}

func (a *api) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if a.Metrics != nil {
		r.Handle("/metrics", a.Metrics)
	}
	r.Get("/status", a.handleStatus)

	r.Route("/runs", func(r chi.Router) {
		r.Get("/", a.handleListRuns)
		r.Get("/{id}", a.handleGetRun)
		r.Get("/{id}/ghosts", a.handleListGhosts)
		r.Get("/{id}/image", a.handleRunImage)
	})
	r.Route("/ghosts", func(r chi.Router) {
		r.Get("/{id}", a.handleGetGhost)
		r.Get("/{id}/image", a.handleGhostImage)
	})
	return r
}

func (a *api) handleStatus(w http.ResponseWriter, r *http.Request) {
	if a.Monitor == nil {
		writeError(w, http.StatusServiceUnavailable, "monitoring unavailable")
		return
	}
	hours := a.LookbackHours
	if v := r.URL.Query().Get("hours"); v != "" {
		h, err := strconv.Atoi(v)
		if err != nil || h <= 0 {
			writeError(w, http.StatusBadRequest, "hours must be a positive integer")
			return
		}
		hours = h
	}
	snap, err := a.Monitor.Collect(r.Context(), hours)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *api) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.RunFilter{
		Status: model.RunStatus(q.Get("status")),
		Band:   model.Band(q.Get("band")),
	}
	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}

	runs, err := a.Store.ListRuns(r.Context(), filter)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (a *api) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := a.Store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (a *api) handleListGhosts(w http.ResponseWriter, r *http.Request) {
	ghosts, err := a.Store.ListGhosts(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if ghosts == nil {
		ghosts = []model.GhostRecord{}
	}
	writeJSON(w, http.StatusOK, ghosts)
}

func (a *api) handleGetGhost(w http.ResponseWriter, r *http.Request) {
	rec, g, err := a.Store.GetGhost(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		*model.GhostRecord
		Data *model.Ghost `json:"data"`
	}{rec, g})
}

func (a *api) handleGhostImage(w http.ResponseWriter, r *http.Request) {
	opts, ok := a.imageOptions(w, r)
	if !ok {
		return
	}
	rec, img, err := binGhost(r.Context(), a.Store, a.Binner, chi.URLParam(r, "id"), opts.bins)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.writeImage(w, r, img, opts, fmt.Sprintf("star %d %s", rec.StarIndex, rec.Name))
}

func (a *api) handleRunImage(w http.ResponseWriter, r *http.Request) {
	opts, ok := a.imageOptions(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := a.Store.GetRun(r.Context(), id); err != nil {
		a.fail(w, r, err)
		return
	}
	img, err := binRun(r.Context(), a.Store, a.Binner, id, opts.bins)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.writeImage(w, r, img, opts, "run "+truncateID(id))
}

type imageOpts struct {
	bins    focalplane.Bins
	format  imageFormat
	stretch focalplane.Stretch
}

// imageOptions reads bins, bins_x, bins_y, format and stretch query
// parameters, writing a 400 on bad input or bins above MaxBins.
func (a *api) imageOptions(w http.ResponseWriter, r *http.Request) (imageOpts, bool) {
	q := r.URL.Query()
	opts := imageOpts{bins: a.Bins}

	n, err := intParam(q.Get("bins"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bins must be a non-negative integer")
		return opts, false
	}
	if n > 0 {
		opts.bins = focalplane.Square(n)
	}
	nx, err := intParam(q.Get("bins_x"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bins_x must be a non-negative integer")
		return opts, false
	}
	ny, err := intParam(q.Get("bins_y"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bins_y must be a non-negative integer")
		return opts, false
	}
	if nx > 0 {
		opts.bins.NX = nx
	}
	if ny > 0 {
		opts.bins.NY = ny
	}
	if err := opts.bins.Within(a.MaxBins); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return opts, false
	}

	format := q.Get("format")
	if format == "" {
		format = string(formatPNG)
	}
	if opts.format, err = parseImageFormat(format, ""); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return opts, false
	}
	if opts.stretch, err = focalplane.ParseStretch(q.Get("stretch")); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return opts, false
	}
	return opts, true
}

func (a *api) writeImage(w http.ResponseWriter, r *http.Request, img *model.BinnedImage, opts imageOpts, caption string) {
	w.Header().Set("Content-Type", opts.format.contentType())
	if err := encodeImage(w, opts.format, img, opts.stretch, caption); err != nil {
		zap.L().Error("serve: encode image", zap.String("path", r.URL.Path), zap.Error(err))
	}
}

// fail maps store and validation errors onto HTTP statuses.
func (a *api) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, model.ErrInvalidValue):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		zap.L().Error("serve: request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, eris.Wrapf(model.ErrInvalidValue, "invalid integer %q", v)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
