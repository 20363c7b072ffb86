package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sort"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/spotgrid/internal/engine"
	"github.com/sells-group/spotgrid/internal/model"
	"github.com/sells-group/spotgrid/internal/partition"
	"github.com/sells-group/spotgrid/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve runs, collisions and reconciliation over a read-only HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return eris.Wrap(err, "invalid config")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		eng, err := newEngine(cfg, st)
		if err != nil {
			return err
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(st, eng, cfg.Server.CORSOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
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

// newRouter builds the read-only report API.
func newRouter(st store.Store, eng *engine.Engine, origins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP, middleware.RequestID, middleware.Recoverer, middleware.Timeout(60*time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	h := &apiHandler{store: st, engine: eng}
	r.Get("/health", h.health)
	r.Get("/runs", h.listRuns)
	r.Get("/runs/{id}", h.getRun)
	r.Get("/collisions", h.listCollisions)
	r.Get("/reconciliation", h.reconciliation)
	r.Get("/reconciliation/spots", h.spotCategories)
	return r
}

type apiHandler struct {
	store  store.Store
	engine *engine.Engine
}

func (h *apiHandler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *apiHandler) listRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := queryInt(q.Get("limit"), 20)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	offset, err := queryInt(q.Get("offset"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid offset")
		return
	}

	runs, err := h.store.ListRuns(r.Context(), store.RunFilter{
		Status: model.RunStatus(q.Get("status")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		h.fail(w, r, "list runs", err)
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *apiHandler) getRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := h.store.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		h.fail(w, r, "get run", err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *apiHandler) listCollisions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := queryInt(q.Get("limit"), 50)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}

	cs, err := h.store.ListCollisions(r.Context(), store.CollisionFilter{
		Type:   model.CollisionType(q.Get("type")),
		Market: q.Get("market"),
		Limit:  limit,
	})
	if err != nil {
		h.fail(w, r, "list collisions", err)
		return
	}
	if cs == nil {
		cs = []model.Collision{}
	}
	writeJSON(w, http.StatusOK, cs)
}

// dateRange reads the from/to query parameters, writing a 400 when either is
// malformed.
func dateRange(w http.ResponseWriter, r *http.Request) (engine.Params, bool) {
	q := r.URL.Query()
	var p engine.Params
	var err error
	if p.From, err = parseDateFlag("from", q.Get("from")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid from date")
		return p, false
	}
	if p.To, err = parseDateFlag("to", q.Get("to")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid to date")
		return p, false
	}
	return p, true
}

// reconciliation reports over stored assignments. A failed reconciliation is
// still a successful response; the report carries reconciled=false.
func (h *apiHandler) reconciliation(w http.ResponseWriter, r *http.Request) {
	p, ok := dateRange(w, r)
	if !ok {
		return
	}

	rep, err := h.engine.Reconcile(r.Context(), p)
	if err != nil && !partition.IsMismatch(err) {
		h.fail(w, r, "reconcile", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

type spotCategory struct {
	SpotID   int64  `json:"spot_id"`
	Category string `json:"category"`
}

// spotCategories lists the category each spot is counted in, ordered by spot id.
func (h *apiHandler) spotCategories(w http.ResponseWriter, r *http.Request) {
	p, ok := dateRange(w, r)
	if !ok {
		return
	}

	idx, err := h.engine.SpotCategories(r.Context(), p)
	if err != nil {
		h.fail(w, r, "spot categories", err)
		return
	}
	out := make([]spotCategory, 0, len(idx))
	for id, name := range idx {
		out = append(out, spotCategory{SpotID: id, Category: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SpotID < out[j].SpotID })
	writeJSON(w, http.StatusOK, out)
}

func (h *apiHandler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	zap.L().Error("api: "+op,
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func queryInt(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, eris.Errorf("invalid integer %q", s)
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
