package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/frudas24/frameit/internal/app"
	"github.com/frudas24/frameit/internal/config"
	"github.com/frudas24/frameit/internal/ffmpeg"
	"github.com/frudas24/frameit/internal/session"
	"github.com/frudas24/frameit/internal/signaling"
	"github.com/frudas24/frameit/internal/webrtc"
)

// newServeCmd returns the command that runs the editor server.
func newServeCmd(debug *bool) *cobra.Command {
	var staticDir string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the editor web server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), *debug, staticDir)
		},
	}
	cmd.Flags().StringVar(&staticDir, "static", "", "serve UI files from this directory instead of the embedded copy")
	return cmd
}

// serve wires the application and blocks until ctx is cancelled.
func serve(ctx context.Context, debug bool, staticDir string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := loggerFromContext(ctx)
	if !debug {
		if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
			logger.SetLevel(level)
		}
	}
	webrtc.SetDebugLogging(debug)
	logger.Debug("debug logging enabled")
	logStartup(logger, cfg)

	sess := session.New(cfg.UIPassword)
	runner := ffmpeg.NewRunner(logger)
	publisher, err := webrtc.NewPublisher(logger)
	if err != nil {
		return err
	}

	appInstance, err := app.New(cfg, sess, runner, publisher, signaling.ViewerReplace, logger)
	if err != nil {
		return err
	}
	if err := appInstance.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := appInstance.Stop(); err != nil {
			logger.Warn("shutdown", "err", err)
		}
	}()

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           appInstance.Handler(staticDir),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// logStartup prints startup checks and connection info.
func logStartup(logger *log.Logger, cfg config.Config) {
	logger.Info("frameit starting", "version", version)
	logEnvStatus(logger, cfg)
	logBinaryStatus(logger, "ffmpeg", cfg.FFmpegPath)
	logBinaryStatus(logger, "ffprobe", cfg.FFprobePath)
	logger.Info("preview", "mode", cfg.VideoMode, "width", cfg.PreviewWidth, "fps", cfg.FPS)
	logger.Info("upload limits",
		"video", humanize.IBytes(uint64(cfg.MaxVideoBytes)),
		"image", humanize.IBytes(uint64(cfg.MaxImageBytes)))
	if cfg.RemoteExportURL != "" {
		logger.Info("remote export", "url", cfg.RemoteExportURL)
	}
	logListenStatus(logger, cfg.ListenAddr)
}

// logEnvStatus reports whether a .env file was found and login is configured.
func logEnvStatus(logger *log.Logger, cfg config.Config) {
	envPath := filepath.Join(cfg.DataDir, ".env")
	if fileExists(envPath) {
		logger.Info("env check: ok", "path", envPath)
	} else {
		logger.Info("env check: missing", "path", envPath)
	}
	if !cfg.PasswordMode {
		logger.Warn("PASSWORD_MODE disabled (dev mode)")
	}
}

// logBinaryStatus reports whether an external binary is discoverable.
func logBinaryStatus(logger *log.Logger, name, path string) {
	resolved := path
	ok := false
	note := ""

	if filepath.IsAbs(path) {
		info, err := os.Stat(path)
		switch {
		case err == nil && !info.IsDir():
			ok = true
		case err != nil:
			note = err.Error()
		default:
			note = "path is a directory"
		}
	} else {
		found, err := exec.LookPath(path)
		switch {
		case err == nil:
			ok = true
			resolved = found
		case errors.Is(err, exec.ErrDot):
			note = "found relative to current dir; use absolute path"
		default:
			note = err.Error()
		}
	}

	if ok {
		logger.Info(name+" check: ok", "path", resolved)
		return
	}
	logger.Warn(name+" check: missing, video features disabled", "note", note)
}

// logListenStatus reports the listen address and a local URL helper.
func logListenStatus(logger *log.Logger, addr string) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		logger.Info("listening", "addr", addr)
		return
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	logger.Info("listening", "addr", addr, "url", "http://"+net.JoinHostPort(host, port))
}

// fileExists reports whether a path exists and is a file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
