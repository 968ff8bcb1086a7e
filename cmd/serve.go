package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/scholarpath/scout-cli/internal/model"
	"github.com/scholarpath/scout-cli/internal/review"
	"github.com/scholarpath/scout-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the admin and reviewer HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		r := buildRouter(e, cfg.Server.AdminToken)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			_ = srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func buildRouter(e *env, adminToken string) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(adminAuth(adminToken))
		r.Post("/discovery/run", handleDiscoveryRun(e))
		r.Get("/runs", handleListRuns(e))
	})

	r.Route("/review", func(r chi.Router) {
		r.Get("/pending", handleListPending(e))
		r.Get("/pending/{id}", handleGetPending(e))
		r.Post("/pending/{id}/approve", handleApprove(e))
		r.Post("/pending/{id}/reject", handleReject(e))
	})

	return r
}

// adminAuth gates admin routes behind a bearer token.
func adminAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" || r.Header.Get("Authorization") != "Bearer "+token {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func handleDiscoveryRun(e *env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var profile model.Profile
		if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid profile body"})
			return
		}

		stats, err := e.Pipeline.Run(r.Context(), profile)
		if err != nil {
			zap.L().Error("discovery run failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

func handleListRuns(e *env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runs, err := e.Store.ListRuns(r.Context(), store.RunFilter{
			Status: model.RunStatus(r.URL.Query().Get("status")),
		})
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, runs)
	}
}

func handleListPending(e *env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := e.Review.Queue(r.Context(), store.PendingFilter{
			Status: model.ReviewStatus(r.URL.Query().Get("status")),
		})
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, records)
	}
}

func handleGetPending(e *env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := e.Review.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// reviewRequest is the body for approve/reject; the reviewer identity
// is required for the audit stamp.
type reviewRequest struct {
	ReviewedBy string  `json:"reviewed_by"`
	Notes      *string `json:"notes,omitempty"`
}

func decodeReviewRequest(w http.ResponseWriter, r *http.Request) (reviewRequest, bool) {
	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return req, false
	}
	if req.ReviewedBy == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "reviewed_by is required"})
		return req, false
	}
	return req, true
}

func handleApprove(e *env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeReviewRequest(w, r)
		if !ok {
			return
		}

		id, err := e.Review.Approve(r.Context(), chi.URLParam(r, "id"), req.ReviewedBy, req.Notes)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"scholarship_id": id})
	}
}

func handleReject(e *env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeReviewRequest(w, r)
		if !ok {
			return
		}

		if err := e.Review.Reject(r.Context(), chi.URLParam(r, "id"), req.ReviewedBy, req.Notes); err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "rejected"})
	}
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, store.ErrConflict):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "already reviewed"})
	case errors.Is(err, review.ErrValidation):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	default:
		zap.L().Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
