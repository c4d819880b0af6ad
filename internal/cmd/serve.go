package cmd

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/prewarm/internal/api"
	"github.com/Iron-Ham/prewarm/internal/device"
	"github.com/Iron-Ham/prewarm/internal/errors"
	"github.com/Iron-Ham/prewarm/internal/manifest"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the prefetch daemon and its session API",
	Long: `Serve starts an HTTP API through which a client reports its page load,
navigations and interactions. One session is active at a time; ending it
(DELETE /api/v1/session or shutting the daemon down) clears the session
store.

With manifest.watch enabled, edits to the manifest file are applied
without a restart.`,
	RunE: runServe,
}

var serveBaseURL string

func init() {
	serveCmd.Flags().StringVar(&serveBaseURL, "base-url", "", "origin to warm (overrides http.base_url)")
	serveCmd.Flags().String("host", "", "listen host (overrides server.host)")
	serveCmd.Flags().Int("port", 0, "listen port (overrides server.port)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveBaseURL != "" {
		viper.Set("http.base_url", serveBaseURL)
	}
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		viper.Set("server.host", host)
	}
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		viper.Set("server.port", port)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rt, err := newRuntime(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	if cfg.Manifest.Watch && cfg.Manifest.Path != "" {
		w, err := manifest.Watch(cfg.Manifest.Path, rt.applyManifest, rt.logger)
		if err != nil {
			return fmt.Errorf("failed to watch manifest: %w", err)
		}
		defer w.Stop()
	}

	router, sessions := api.NewRouter(api.Options{
		Mode: cfg.Server.Mode,
		NewSession: func(sig device.Signals) (api.Session, error) {
			return rt.newSession(sig), nil
		},
		EndSession: func(api.Session) { rt.endSession() },
		Logger:     rt.logger,
	})

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		rt.logger.Info("api listening", "addr", addr, "base_url", rt.loader.Base())
		errCh <- srv.ListenAndServe()
	}()

	out := newPrinter(cmd.OutOrStdout())
	out.line(out.render(titleStyle, "prewarm") + " listening on " + out.render(successStyle, "http://"+addr))
	out.line(out.render(mutedStyle, "warming "+rt.loader.Base()+"; press Ctrl+C to stop"))

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			sessions.Shutdown()
			return fmt.Errorf("api server failed: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		rt.logger.Warn("api shutdown incomplete", "error", err.Error())
	}
	if !sessions.Shutdown() {
		rt.endSession()
	}
	rt.logger.Info("api stopped")
	return nil
}
