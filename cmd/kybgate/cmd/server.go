package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/mreed/kybgate/api"
	"github.com/mreed/kybgate/bridge"
	"github.com/mreed/kybgate/config"
	"github.com/mreed/kybgate/internal/metrics"
	bboltstorage "github.com/mreed/kybgate/storage/bbolt"
	"github.com/mreed/kybgate/webhook"
)

var (
	configPath string
	port       int
	dataDir    string
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the verification gateway server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("port") {
			cfg.ListenPort = port
		}
		if cmd.Flags().Changed("data-dir") {
			cfg.DataDir = dataDir
		}
		if cfg.Bridge.APIKey == "" {
			return errors.New("provider API key not configured (set BRIDGE_API_KEY)")
		}

		log := slog.New(slog.NewJSONHandler(os.Stderr, nil))

		verifier, err := webhook.NewVerifier(cfg.Bridge.WebhookPublicKeyPEM,
			webhook.WithLogger(log))
		if err != nil {
			return fmt.Errorf("configuring webhook verifier (set BRIDGE_WEBHOOK_PUBLIC_KEY_PEM): %w", err)
		}

		if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
		repo, err := bboltstorage.NewRepositoryFromFile(cfg.DataDir+"/kybgate.db", nil)
		if err != nil {
			return fmt.Errorf("failed to open event storage: %w", err)
		}
		defer repo.Close()

		metrics.Register()

		client := bridge.NewClient(cfg.Bridge.APIURL, cfg.Bridge.APIKey)
		a := api.New(repo, client, verifier, cfg, api.WithLogger(log))
		defer a.Close()

		if err := a.ResumeWatchers(); err != nil {
			return fmt.Errorf("failed to resume persisted sessions: %w", err)
		}

		r := chi.NewRouter()
		r.Use(middleware.Logger)
		r.Use(middleware.Recoverer)

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("OK"))
		})
		r.Handle("/metrics", promhttp.Handler())
		r.Get("/kyb-callback", a.Callback)
		r.Mount("/api/v1", a.Router())

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.ListenPort),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		// Graceful shutdown on SIGINT/SIGTERM.
		done := make(chan error, 1)
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		printBanner()
		fmt.Printf("Starting server on port %d (data: %s)...\n", cfg.ListenPort, cfg.DataDir)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			fmt.Printf("\nReceived %s, shutting down...\n", sig)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file")
	serverCmd.Flags().IntVarP(&port, "port", "p", 8080, "Port to listen on")
	serverCmd.Flags().StringVar(&dataDir, "data-dir", "./data", "Directory for persistent data")
}
