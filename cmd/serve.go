package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tmc-media/leadgen-cli/internal/cost"
	"github.com/tmc-media/leadgen-cli/internal/enrich"
	"github.com/tmc-media/leadgen-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard JSON API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		origins := cfg.Server.AllowedOrigins
		if len(origins) == 0 {
			origins = []string{"http://localhost:*"}
		}

		r := chi.NewRouter()
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{"GET", "POST", "DELETE"},
			AllowedHeaders: []string{"Content-Type"},
		}))

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Route("/api", func(r chi.Router) {
			r.Get("/leads", handleListLeads(st))
			r.Get("/leads/{id}", handleGetLead(st))
			r.Delete("/leads/{id}", handleDeleteLead(st))
			r.Post("/leads/{id}/analyze", handleAnalyzeLead(ctx, st))
			r.Get("/lists", handleListNames(st))
			r.Get("/lists/{name}", handleListMembers(st))
			r.Get("/costs", handleCosts())
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func handleListLeads(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		f := store.Filter{
			Name:         q.Get("name"),
			Source:       q.Get("source"),
			Domain:       q.Get("domain"),
			BusinessType: q.Get("type"),
		}
		f.Limit, _ = strconv.Atoi(q.Get("limit"))
		f.Offset, _ = strconv.Atoi(q.Get("offset"))
		if f.Limit <= 0 || f.Limit > 500 {
			f.Limit = 100
		}

		leads, err := st.ListLeads(r.Context(), f)
		if err != nil {
			writeError(w, err)
			return
		}
		total, err := st.CountLeads(r.Context(), f)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"leads": leads,
			"total": total,
		})
	}
}

func handleGetLead(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			http.Error(w, `{"error":"invalid lead id"}`, http.StatusBadRequest)
			return
		}

		lead, err := st.GetLead(r.Context(), id)
		if eris.Is(err, store.ErrNotFound) {
			http.Error(w, `{"error":"lead not found"}`, http.StatusNotFound)
			return
		}
		if err != nil {
			writeError(w, err)
			return
		}

		resp := map[string]any{"lead": lead}
		if report, err := st.GetAdvancedReport(r.Context(), id); err == nil {
			resp["report"] = report
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleDeleteLead(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			http.Error(w, `{"error":"invalid lead id"}`, http.StatusBadRequest)
			return
		}

		removed, err := st.DeleteLeads(r.Context(), []int64{id})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
	}
}

// handleAnalyzeLead kicks off a deep analysis in the background and
// answers immediately; the report lands in the store when done.
func handleAnalyzeLead(ctx context.Context, st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			http.Error(w, `{"error":"invalid lead id"}`, http.StatusBadRequest)
			return
		}

		g, err := initGate()
		if err != nil {
			http.Error(w, `{"error":"llm is not configured"}`, http.StatusServiceUnavailable)
			return
		}

		go func() {
			session, err := initSession()
			if err != nil {
				zap.L().Error("analyze session init failed", zap.Error(err))
				return
			}
			defer session.Close()

			analyzer := enrich.NewDeepAnalyzer(st, g, session,
				companyProfile(), cfg.Enrich.ReportsDir, cfg.Browser.ScreenshotDir)
			if _, err := analyzer.Analyze(ctx, id); err != nil {
				zap.L().Error("analysis failed",
					zap.Int64("lead", id), zap.Error(err))
				return
			}
			zap.L().Info("analysis complete", zap.Int64("lead", id))
		}()

		writeJSON(w, http.StatusAccepted, map[string]any{
			"status": "accepted",
			"lead":   id,
		})
	}
}

func handleListNames(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		names, err := st.SmartListNames(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"lists": names})
	}
}

func handleListMembers(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		members, err := st.SmartListMembers(r.Context(), chi.URLParam(r, "name"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"members": members})
	}
}

func handleCosts() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := cost.ReadUsage(cfg.Cost.LogFile)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"totals": cost.TotalsByService(entries),
			"calls":  len(entries),
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, err error) {
	zap.L().Error("api request failed", zap.Error(err))
	http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
