// Package app wires HTTP, signaling, and pipeline state together.
package app

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/frudas24/frameit/internal/compositor"
	"github.com/frudas24/frameit/internal/config"
	"github.com/frudas24/frameit/internal/control"
	"github.com/frudas24/frameit/internal/errs"
	"github.com/frudas24/frameit/internal/export"
	"github.com/frudas24/frameit/internal/ffmpeg"
	"github.com/frudas24/frameit/internal/media"
	"github.com/frudas24/frameit/internal/mjpeg"
	"github.com/frudas24/frameit/internal/preset"
	"github.com/frudas24/frameit/internal/preview"
	"github.com/frudas24/frameit/internal/session"
	"github.com/frudas24/frameit/internal/signaling"
	"github.com/frudas24/frameit/internal/webrtc"
)

// previewDefaults are the startup preview settings restored by a config reset.
type previewDefaults struct {
	intervalMs int
	quality    int
}

// App coordinates the HTTP API, websocket servers, and media pipeline.
type App struct {
	mu             sync.Mutex
	cfg            config.Config
	defaultPreview previewDefaults
	logger         *log.Logger

	session   *session.Session
	runner    *ffmpeg.Runner
	publisher *webrtc.Publisher
	signaling *signaling.Server
	control   *control.Server

	comp          *compositor.Compositor
	previewStream *mjpeg.Stream
	preview       *preview.Loop
	exporter      *export.Service
	render        *export.RenderHandler
	loader        *media.Loader
	limits        media.Limits
	presets       *preset.Catalog

	loadCtx    context.Context
	loadCancel context.CancelFunc
	loads      sync.WaitGroup
}

// New creates a new application with its dependencies wired.
func New(cfg config.Config, sess *session.Session, runner *ffmpeg.Runner, publisher *webrtc.Publisher, policy signaling.ViewerPolicy, logger *log.Logger) (*App, error) {
	if sess == nil {
		return nil, errors.New("session is required")
	}
	if runner == nil {
		return nil, errors.New("ffmpeg runner is required")
	}
	if publisher == nil {
		return nil, errors.New("webrtc publisher is required")
	}
	if logger == nil {
		logger = log.Default()
	}
	app := newApp(cfg, sess, publisher, policy, logger)
	app.runner = runner
	return app, nil
}

// newApp builds the parts that need no external processes. A nil publisher
// leaves the WebRTC pipeline disabled.
func newApp(cfg config.Config, sess *session.Session, publisher *webrtc.Publisher, policy signaling.ViewerPolicy, logger *log.Logger) *App {
	if !cfg.PasswordMode {
		sess.DisableAuth()
	}
	a := &App{
		cfg:            cfg,
		defaultPreview: previewDefaults{intervalMs: cfg.PreviewIntervalMs, quality: cfg.PreviewQuality},
		logger:         logger.WithPrefix("app"),
		session:        sess,
		publisher:      publisher,
		signaling:      signaling.NewServer(publisher, policy, sess.IsAuthenticated, logger),
		comp:           compositor.New(logger),
		previewStream:  mjpeg.NewStream(time.Duration(cfg.PreviewIntervalMs) * time.Millisecond),
		limits:         media.Limits{MaxVideoBytes: cfg.MaxVideoBytes, MaxImageBytes: cfg.MaxImageBytes},
		loader: &media.Loader{
			FFmpegPath:       cfg.FFmpegPath,
			FFprobePath:      cfg.FFprobePath,
			PlaybackFPS:      cfg.FPS,
			PlaybackMaxWidth: cfg.PlaybackMaxWidth,
			Logger:           logger,
		},
	}
	if a.limits.MaxVideoBytes <= 0 && a.limits.MaxImageBytes <= 0 {
		a.limits = media.DefaultLimits()
	}
	a.loadCtx, a.loadCancel = context.WithCancel(context.Background())
	a.preview = preview.NewLoop(sess, a.comp, a.previewStream, preview.Options{
		FPS:     cfg.FPS,
		Width:   cfg.PreviewWidth,
		Quality: cfg.PreviewQuality,
	}, logger)
	a.control = control.NewServer(sess, func(reason string) {
		go a.restartPipeline(reason)
	}, logger)
	a.preview.AddTickHook(a.control.Tick)
	a.exporter = export.NewService(sess, a.comp, export.Options{
		FFmpegPath:  cfg.FFmpegPath,
		FPS:         cfg.FPS,
		JPEGQuality: cfg.ExportJPEGQuality,
		RemoteURL:   cfg.RemoteExportURL,
		FrameURL:    cfg.FrameURL,
	}, logger)
	a.render = export.NewRenderHandler(export.RenderOptions{
		FFmpegPath:  cfg.FFmpegPath,
		FFprobePath: cfg.FFprobePath,
		FPS:         cfg.FPS,
		MaxBytes:    cfg.MaxVideoBytes,
		FrameHosts:  frameHosts(cfg),
	}, logger)
	a.render.SetFrameSource(func() string { return a.session.Preset().FramePath })
	a.presets, _ = preset.NewCatalog()
	return a
}

// Start loads presets, restores the last selection and starts the preview.
func (a *App) Start(ctx context.Context) error {
	catalog, err := preset.LoadFile(a.cfg.PresetsPath)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.presets = catalog
	a.mu.Unlock()

	name := a.cfg.Preset
	if sel, err := preset.Load(a.cfg.SelectionPath); err != nil {
		a.logger.Warn("preset selection unreadable", "path", a.cfg.SelectionPath, "err", err)
	} else if sel.Name != "" {
		name = sel.Name
	}
	if name == "" {
		name = preset.DefaultName
	}
	if _, ok := catalog.Get(name); !ok {
		a.logger.Warn("unknown preset, using default", "preset", name)
		name = preset.DefaultName
	}
	if err := a.applyPreset(ctx, name, false); err != nil {
		return err
	}

	a.session.SetVideoMode(a.cfg.VideoMode)
	a.preview.Start(ctx)
	return a.RestartPipeline("startup")
}

// Stop halts the preview and the encoder and drops loaded media.
func (a *App) Stop() error {
	a.loadCancel()
	a.loads.Wait()
	a.preview.Stop()
	a.preview.SetSink(nil)
	var err error
	if a.publisher != nil {
		a.publisher.Close()
	}
	if a.runner != nil {
		err = a.runner.Stop()
	}
	if cerr := a.session.Clear(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// RestartPipeline restarts the RTP encoder for WebRTC mode, or tears it down
// for MJPEG mode.
func (a *App) RestartPipeline(reason string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runner == nil || a.publisher == nil {
		return nil
	}

	a.preview.SetSink(nil)
	a.publisher.StopForwarding()
	if err := a.runner.Stop(); err != nil {
		return err
	}
	if a.session.VideoMode() != session.VideoWebRTC {
		a.logger.Debug("pipeline idle", "reason", reason)
		return nil
	}

	w, h := a.preview.FrameSize()
	port, err := a.runner.StartRTP(w, h, ffmpeg.Options{
		FFmpegPath:  a.cfg.FFmpegPath,
		FPS:         a.cfg.FPS,
		BitrateKbps: a.cfg.BitrateKbps,
	})
	if err != nil {
		return err
	}
	if err := a.publisher.AttachRTP(port); err != nil {
		return err
	}
	if err := a.publisher.StartForwarding(); err != nil {
		return err
	}
	a.preview.SetSink(a.runner)
	a.signaling.Announce(reason, signaling.Stream{
		Track:  webrtc.TrackID,
		Stream: webrtc.StreamID,
		Width:  w,
		Height: h,
		FPS:    a.cfg.FPS,
	})
	a.logger.Info("pipeline restarted", "reason", reason, "w", w, "h", h, "port", port)
	return nil
}

// restartPipeline is RestartPipeline for callers that only log failures.
func (a *App) restartPipeline(reason string) {
	if err := a.RestartPipeline(reason); err != nil {
		a.logger.Warn("pipeline restart failed", "reason", reason, "err", err)
	}
}

// applyPreset switches the session to the named preset and loads its frame.
// A frame that fails to load leaves the preset active without one.
func (a *App) applyPreset(ctx context.Context, name string, persist bool) error {
	a.mu.Lock()
	p, ok := a.presets.Get(name)
	a.mu.Unlock()
	if !ok {
		return errs.New(errs.CodeInvalidParams, "Unknown frame preset %q.", name)
	}

	var frame *media.FrameAsset
	if p.FramePath != "" {
		f, err := media.LoadFrame(ctx, p.FramePath)
		if err != nil {
			a.logger.Warn("frame load failed", "preset", name, "path", p.FramePath, "err", err)
		} else {
			frame = f
		}
	}
	a.session.SetPreset(p, frame)
	if persist {
		if err := preset.Save(a.cfg.SelectionPath, preset.Selection{Name: name}); err != nil {
			a.logger.Warn("preset selection not saved", "err", err)
		}
	}
	a.logger.Info("preset active", "preset", name, "canvas_w", p.CanvasW, "canvas_h", p.CanvasH, "frame", frame != nil)
	return nil
}

// frameHosts returns the hosts the render endpoint may fetch frames from:
// FRAME_HOSTS plus the host of FRAME_URL.
func frameHosts(cfg config.Config) []string {
	hosts := append([]string(nil), cfg.FrameHosts...)
	if u, err := url.Parse(cfg.FrameURL); err == nil && u.Hostname() != "" {
		hosts = append(hosts, u.Hostname())
	}
	return hosts
}

// Signaling returns the signaling websocket handler.
func (a *App) Signaling() *signaling.Server {
	return a.signaling
}

// Control returns the control websocket handler.
func (a *App) Control() *control.Server {
	return a.control
}

// PreviewStream returns the MJPEG preview stream.
func (a *App) PreviewStream() *mjpeg.Stream {
	return a.previewStream
}
