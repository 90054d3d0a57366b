package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/giftwise/giftwise-cli/internal/model"
	"github.com/giftwise/giftwise-cli/internal/pipeline"
	"github.com/giftwise/giftwise-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for gift sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		p, st, err := initPipeline(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(p, st),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			_ = srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func newRouter(p *pipeline.Pipeline, st store.Store) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/sessions", func(w http.ResponseWriter, req *http.Request) {
		var form model.FormData
		if err := json.NewDecoder(req.Body).Decode(&form); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if form.RecipientName == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "recipient_name is required"})
			return
		}

		session, err := st.CreateSession(req.Context(), form)
		if err != nil {
			zap.L().Error("create session failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not create session"})
			return
		}
		writeJSON(w, http.StatusCreated, session)
	})

	r.Get("/sessions/{id}", func(w http.ResponseWriter, req *http.Request) {
		session, err := st.GetSession(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
			return
		}
		writeJSON(w, http.StatusOK, session)
	})

	r.Get("/sessions/{id}/runs", func(w http.ResponseWriter, req *http.Request) {
		runs, err := st.ListStageRuns(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not load stage runs"})
			return
		}
		writeJSON(w, http.StatusOK, runs)
	})

	// Runs the pipeline while streaming its events to the caller as SSE.
	// One subscriber per run; the response stays open until the run ends.
	// Callers that do not accept an event stream get a 202 and the run
	// proceeds in the background.
	r.Post("/sessions/{id}/run", func(w http.ResponseWriter, req *http.Request) {
		sessionID := chi.URLParam(req, "id")

		flusher, ok := w.(http.Flusher)
		if !ok || !strings.Contains(req.Header.Get("Accept"), "text/event-stream") {
			go func() {
				if _, err := p.Run(context.Background(), sessionID, nil); err != nil {
					zap.L().Error("background session run failed",
						zap.String("session_id", sessionID),
						zap.Error(err),
					)
				}
			}()
			writeJSON(w, http.StatusAccepted, map[string]string{
				"status":  "accepted",
				"session": sessionID,
			})
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		// The run must finish server-side even if the subscriber drops;
		// writes to a closed ResponseWriter are harmless no-ops.
		summary, err := p.Run(context.WithoutCancel(req.Context()), sessionID, func(ev model.Event) {
			writeSSE(w, flusher, string(ev.Type), ev)
		})
		if err != nil {
			zap.L().Error("session run failed",
				zap.String("session_id", sessionID),
				zap.Error(err),
			)
			if summary == nil {
				// Session could not be acquired; the pipeline emitted
				// nothing, so tell the subscriber ourselves.
				writeSSE(w, flusher, "error", map[string]string{"error": err.Error()})
			}
			return
		}

		writeSSE(w, flusher, "summary", summary)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	flusher.Flush()
}
