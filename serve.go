package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Tutortoise/mask-stream/camera/opencv"
	"github.com/Tutortoise/mask-stream/logging"
	"github.com/Tutortoise/mask-stream/overlay"
	"github.com/Tutortoise/mask-stream/stream"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the mask detection web server.
Open the printed address in a browser and press "Start Stream" to begin
capturing from the configured camera.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	clf, pool, cleanup, err := buildClassifier(cfg)
	if err != nil {
		return fmt.Errorf("failed to load model: %w", err)
	}
	defer cleanup()

	ann, err := overlay.New()
	if err != nil {
		return err
	}
	defer ann.Close()

	hub := stream.NewHub()
	ctrl := stream.New(stream.Config{
		Device:                   cfg.Camera.Device,
		ReadErrorDelay:           cfg.Stream.ReadErrorDelay,
		MaxConsecutiveReadErrors: cfg.Stream.MaxConsecutiveReadErrors,
		JPEGQuality:              cfg.Stream.JPEGQuality,
	}, opencv.Open, clf, ann, hub)
	defer ctrl.Close()

	state := &AppState{
		Config:     cfg,
		Classifier: clf,
		Pool:       pool,
		Controller: ctrl,
		Hub:        hub,
		StartedAt:  time.Now(),
	}
	srv := state.Server()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		<-sigChan
		logging.Info("shutting down")
		ctrl.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logging.Error("shutdown", "error", err)
		}
	}()

	logging.Info("starting server", "addr", "http://"+srv.Addr, "device", cfg.Camera.Device)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
