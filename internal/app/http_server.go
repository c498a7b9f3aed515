package app

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/frudas24/frameit/internal/control"
	"github.com/frudas24/frameit/internal/errs"
	"github.com/frudas24/frameit/internal/preset"
	"github.com/frudas24/frameit/internal/web"
)

// Handler returns the router serving the API, websockets, and static UI.
func (a *App) Handler(staticDir string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(a.logRequests)
	a.RegisterRoutes(r, staticDir)
	return r
}

// RegisterRoutes wires API and static handlers onto r.
func (a *App) RegisterRoutes(r chi.Router, staticDir string) {
	if staticDir == "" {
		staticDir = filepath.Join("internal", "web", "static")
	}

	r.Post("/login", a.handleLogin)
	r.Post("/logout", a.handleLogout)
	r.Post("/api/render", a.render.ServeHTTP)
	r.Handle("/ws/signal", a.Signaling())
	r.Handle("/ws/control", a.Control())
	r.Get("/favicon.ico", handleFavicon)

	r.Group(func(r chi.Router) {
		r.Use(a.requireAuthMiddleware)
		r.Get("/api/state", a.handleState)
		r.Get("/api/presets", a.handlePresets)
		r.Post("/api/preset/{name}", a.handleSetPreset)
		r.Post("/api/config", a.handleConfig)
		r.Post("/api/media", a.handleUpload)
		r.Delete("/api/media", a.handleClear)
		r.Get("/api/export/image", a.handleExportImage)
		r.Post("/api/export/video", a.handleExportVideo)
		r.Get("/api/export/params", a.handleExportParams)
		if stream := a.PreviewStream(); stream != nil {
			r.Get("/mjpeg/preview", stream.Handler)
			r.Get("/api/preview.jpg", stream.SnapshotHandler)
		}
	})

	r.Handle("/*", staticFileServer(staticDir, a.logger))
}

type loginRequest struct {
	Password string `json:"password"`
}

type stateResponse struct {
	control.StateMessage
	Authenticated bool `json:"authenticated"`
}

type presetsResponse struct {
	Active  string          `json:"active"`
	Presets []preset.Preset `json:"presets"`
}

type configRequest struct {
	PreviewIntervalMs *int `json:"previewIntervalMs"`
	PreviewQuality    *int `json:"previewQuality"`
	Reset             bool `json:"reset"`
}

type configResponse struct {
	Applied           bool `json:"applied"`
	PreviewIntervalMs int  `json:"previewIntervalMs"`
	PreviewQuality    int  `json:"previewQuality"`
}

// handleLogin authenticates the session.
func (a *App) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errs.WriteHTTP(w, errs.Wrap(errs.CodeInvalidParams, err, "Bad request."))
		return
	}
	if !a.session.Authenticate(req.Password) {
		errs.WriteHTTP(w, errs.New(errs.CodeUnauthorized, "Wrong password."))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleLogout clears authentication state.
func (a *App) handleLogout(w http.ResponseWriter, _ *http.Request) {
	a.session.Logout()
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleState returns the same state the control socket pushes.
func (a *App) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, stateResponse{
		StateMessage:  a.control.StateMessage(),
		Authenticated: a.session.IsAuthenticated(),
	})
}

// handlePresets lists the frame presets and the active one.
func (a *App) handlePresets(w http.ResponseWriter, _ *http.Request) {
	a.mu.Lock()
	list := a.presets.List()
	a.mu.Unlock()
	writeJSON(w, http.StatusOK, presetsResponse{Active: a.session.Preset().Name, Presets: list})
}

// handleSetPreset switches the frame preset and remembers the choice.
func (a *App) handleSetPreset(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := a.applyPreset(r.Context(), name, true); err != nil {
		errs.WriteHTTP(w, err)
		return
	}
	go a.restartPipeline("preset")
	writeJSON(w, http.StatusOK, map[string]string{"preset": name})
}

// handleConfig updates preview throttling and JPEG quality at runtime.
func (a *App) handleConfig(w http.ResponseWriter, r *http.Request) {
	var req configRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errs.WriteHTTP(w, errs.Wrap(errs.CodeInvalidParams, err, "Bad request."))
		return
	}

	a.mu.Lock()
	interval, quality := a.cfg.PreviewIntervalMs, a.cfg.PreviewQuality
	if req.Reset {
		interval, quality = a.defaultPreview.intervalMs, a.defaultPreview.quality
	}
	if req.PreviewIntervalMs != nil {
		interval = *req.PreviewIntervalMs
	}
	if req.PreviewQuality != nil {
		quality = *req.PreviewQuality
	}
	if interval < 0 || interval > 10000 {
		a.mu.Unlock()
		errs.WriteHTTP(w, errs.New(errs.CodeInvalidParams, "previewIntervalMs must be 0-10000."))
		return
	}
	if quality < 1 || quality > 100 {
		a.mu.Unlock()
		errs.WriteHTTP(w, errs.New(errs.CodeInvalidParams, "previewQuality must be 1-100."))
		return
	}
	a.cfg.PreviewIntervalMs = interval
	a.cfg.PreviewQuality = quality
	a.mu.Unlock()

	if a.previewStream != nil {
		a.previewStream.SetMinInterval(time.Duration(interval) * time.Millisecond)
	}
	if a.preview != nil {
		opts := a.preview.Options()
		opts.Quality = quality
		a.preview.SetOptions(opts)
	}
	a.logger.Info("preview config", "interval_ms", interval, "quality", quality, "reset", req.Reset)
	writeJSON(w, http.StatusOK, configResponse{Applied: true, PreviewIntervalMs: interval, PreviewQuality: quality})
}

// requireAuthMiddleware rejects requests from a session that has not logged in.
func (a *App) requireAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.session.IsAuthenticated() {
			errs.WriteHTTP(w, errs.New(errs.CodeUnauthorized, "Please log in."))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// logRequests logs API calls at debug level with their status and duration.
func (a *App) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		a.logger.Debug("http", "method", r.Method, "path", r.URL.Path, "status", ww.Status(),
			"bytes", ww.BytesWritten(), "dur", time.Since(start), "req_id", middleware.GetReqID(r.Context()))
	})
}

// writeJSON writes v with status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// staticFileServer returns a handler for static assets, preferring disk then embed.
func staticFileServer(staticDir string, logger *log.Logger) http.Handler {
	if staticDir != "" {
		if info, err := os.Stat(staticDir); err == nil && info.IsDir() {
			return http.FileServer(http.Dir(staticDir))
		}
	}

	embedded, err := web.StaticFS()
	if err != nil {
		logger.Warn("static assets unavailable", "err", err)
		return http.NotFoundHandler()
	}
	return http.FileServer(http.FS(embedded))
}

// handleFavicon avoids noisy 404s for the default browser request.
func handleFavicon(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
