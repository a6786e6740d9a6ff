package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/nabta-labs/leafscope/internal/config"
	"github.com/nabta-labs/leafscope/internal/handlers"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the analysis dashboard web server",
		Long: `Starts the LeafScope dashboard on the specified port.

The dashboard accepts leaf photo uploads, tracks the analysis pipeline,
renders per-leaf diagnoses, and offers a plant-care chat assistant.`,
		Example: `  # Start server on default port 8888
  leafscope serve

  # Start server on custom port
  leafscope serve --port 3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if port != "" {
				cfg.Port = port
			}

			handler, err := handlers.New(cfg)
			if err != nil {
				return err
			}

			// Set up routes
			mux := http.NewServeMux()
			mux.HandleFunc("/api/analyses", handler.HandleAnalyses)
			mux.HandleFunc("/api/analyses/", handler.HandleAnalysisDetail)
			mux.HandleFunc("/api/chat", handler.HandleChat)
			mux.HandleFunc("/api/history", handler.HandleHistory)
			mux.HandleFunc("/api/history/export", handler.HandleHistoryExport)
			mux.HandleFunc("/api/export/pdf", handler.HandleExportPDF)
			mux.HandleFunc("/", handler.HandleStatic)
			mux.HandleFunc("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
				if _, err := w.Write([]byte("OK")); err != nil {
					slog.Error("Unable to write healthcheck", "err", err)
				}
			})

			addr := ":" + cfg.Port
			server := &http.Server{
				Addr:    addr,
				Handler: mux,
			}

			// Start server in goroutine
			serverErr := make(chan error, 1)
			go func() {
				slog.Info("LeafScope dashboard available", "addr", addr, "url", "http://localhost"+addr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			// Wait for context cancellation (Ctrl+C) or server error
			select {
			case <-cmd.Context().Done():
				slog.Info("Shutting down server...")
				// Give server 5 seconds to shut down gracefully
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					slog.Error("Server shutdown failed", "err", err)
					return err
				}
				slog.Info("Server stopped")
				return nil
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "Port to listen on (default from PORT env or 8888)")

	return cmd
}
