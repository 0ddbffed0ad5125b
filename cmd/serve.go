package main

import (
	"context"
	"encoding/json"
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

	"github.com/filmgrid/enrich-cli/internal/input"
	"github.com/filmgrid/enrich-cli/internal/model"
	"github.com/filmgrid/enrich-cli/internal/resolver"
	"github.com/filmgrid/enrich-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the review API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))

		r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Get("/records/{key}", func(w http.ResponseWriter, req *http.Request) {
			key, ok := parseKeyParam(w, req)
			if !ok {
				return
			}
			record, err := env.Repo.GetResolvedRecord(req.Context(), key.String())
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			if record == nil {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "record not found"})
				return
			}
			writeJSON(w, http.StatusOK, record)
		})

		r.Get("/records/{key}/provenance", func(w http.ResponseWriter, req *http.Request) {
			key, ok := parseKeyParam(w, req)
			if !ok {
				return
			}
			entries, err := env.Repo.GetProvenance(req.Context(), key.String())
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, entries)
		})

		r.Get("/records/{key}/history", func(w http.ResponseWriter, req *http.Request) {
			key, ok := parseKeyParam(w, req)
			if !ok {
				return
			}
			history, err := env.Repo.ListVerificationHistory(req.Context(), key.String(), 50)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, history)
		})

		r.Get("/conflicts", func(w http.ResponseWriter, req *http.Request) {
			q := req.URL.Query()
			limit, _ := strconv.Atoi(q.Get("limit"))
			if limit <= 0 {
				limit = 50
			}
			filter := store.ConflictFilter{
				EntityKey:  q.Get("entity"),
				Severity:   model.ConflictSeverity(q.Get("severity")),
				Unresolved: q.Get("unresolved") == "true",
				Limit:      limit,
			}
			conflicts, err := env.Repo.ListConflicts(req.Context(), filter)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, conflicts)
		})

		r.Post("/conflicts/{id}/resolve", func(w http.ResponseWriter, req *http.Request) {
			id := chi.URLParam(req, "id")
			entityKey, err := env.Repo.ResolveConflict(req.Context(), id)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			record, err := resolver.RefreshReviewFlag(req.Context(), env.Repo, entityKey, cfg.Resolver.ConfidenceFloor)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			resp := map[string]any{"status": "resolved", "id": id, "entity": entityKey}
			if record != nil {
				resp["needs_review"] = record.NeedsManualReview
			}
			writeJSON(w, http.StatusOK, resp)
		})

		r.Post("/resolve", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				Type         string   `json:"type"`
				ID           string   `json:"id"`
				Title        string   `json:"title"`
				Year         int      `json:"year"`
				Fields       []string `json:"fields"`
				ForceRefresh bool     `json:"force_refresh"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
				return
			}
			key := model.EntityKey{
				Type:  model.EntityType(body.Type),
				ID:    body.ID,
				Title: body.Title,
				Year:  body.Year,
			}
			if key.IsZero() {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "id or title is required"})
				return
			}
			fields := make([]model.FieldName, 0, len(body.Fields))
			for _, f := range body.Fields {
				fields = append(fields, model.FieldName(f))
			}
			if len(fields) == 0 {
				fields = input.ParseFields(key.Type, "")
			}

			result, err := env.Engine.Resolve(req.Context(), key, fields, resolver.Options{
				MinAcceptConfidence: cfg.Resolver.MinAcceptConfidence,
				ForceRefresh:        body.ForceRefresh,
			})
			if err != nil {
				writeError(w, http.StatusBadGateway, err)
				return
			}
			if err := resolver.Persist(req.Context(), env.Repo, result); err != nil {
				zap.L().Error("persist failed, entity can be retried", zap.Error(err))
			}
			writeJSON(w, http.StatusOK, result)
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			if err := drainServer(srv, 15*time.Second); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// drainServer shuts the server down under a fresh deadline so in-flight
// requests finish; the signal context is already cancelled by the time
// shutdown starts.
func drainServer(srv *http.Server, timeout time.Duration) error {
	sctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return srv.Shutdown(sctx)
}

func parseKeyParam(w http.ResponseWriter, req *http.Request) (model.EntityKey, bool) {
	key := model.ParseEntityKey(chi.URLParam(req, "key"))
	if key.IsZero() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid entity key"})
		return model.EntityKey{}, false
	}
	return key, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	zap.L().Error("request failed", zap.Error(err))
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
