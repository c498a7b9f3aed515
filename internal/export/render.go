package export

import (
	"context"
	"errors"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"

	"github.com/frudas24/frameit/internal/errs"
	"github.com/frudas24/frameit/internal/ffmpeg"
	"github.com/frudas24/frameit/internal/media"
)

// RenderOptions configures the render collaborator endpoint.
type RenderOptions struct {
	FFmpegPath   string
	FFprobePath  string
	FPS          int
	MaxBytes     int64
	DefaultFrame string
	// FrameHosts lists the hosts a request's frameUrl may be fetched from.
	FrameHosts []string
}

// RenderHandler is the remote render collaborator: it receives a video and a
// parameter blob and answers with the composited mp4.
type RenderHandler struct {
	opts   RenderOptions
	logger *log.Logger
	probe  media.Prober
	run    func(ctx context.Context, args []string) error
	frame  func() string
}

// NewRenderHandler returns an ffmpeg-backed handler.
func NewRenderHandler(opts RenderOptions, logger *log.Logger) *RenderHandler {
	if logger == nil {
		logger = log.Default()
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = media.DefaultLimits().MaxVideoBytes
	}
	h := &RenderHandler{opts: opts, logger: logger.WithPrefix("render")}
	h.probe = func(ctx context.Context, path string) (ffmpeg.VideoInfo, error) {
		return ffmpeg.Probe(ctx, opts.FFprobePath, path)
	}
	h.run = func(ctx context.Context, args []string) error {
		return ffmpeg.Run(ctx, opts.FFmpegPath, args, io.Discard)
	}
	return h
}

// SetFrameSource reports the frame used when a request names none, usually
// the active preset's frame. An empty result falls back to DefaultFrame.
func (h *RenderHandler) SetFrameSource(fn func() string) { h.frame = fn }

// SetProber replaces the ffprobe call.
func (h *RenderHandler) SetProber(p media.Prober) { h.probe = p }

// SetRunner replaces the ffmpeg call.
func (h *RenderHandler) SetRunner(run func(ctx context.Context, args []string) error) { h.run = run }

// ServeHTTP renders a multipart `video` + `params` request.
func (h *RenderHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxBytes+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			errs.WriteHTTP(w, errs.Wrap(errs.CodeMediaTooLarge, err,
				"The video must be at most %s.", humanize.IBytes(uint64(h.opts.MaxBytes))))
			return
		}
		errs.WriteHTTP(w, errs.Wrap(errs.CodeInputRejected, err, "No video file."))
		return
	}
	defer r.MultipartForm.RemoveAll()

	p, err := ParseParams([]byte(r.FormValue("params")))
	if err != nil {
		errs.WriteHTTP(w, err)
		return
	}
	file, _, err := r.FormFile("video")
	if err != nil {
		errs.WriteHTTP(w, errs.New(errs.CodeInputRejected, "No video file."))
		return
	}
	defer file.Close()

	tmpDir, err := os.MkdirTemp("", "frameit-render-")
	if err != nil {
		errs.WriteHTTP(w, errs.Wrap(errs.CodeInternal, err, "Server error."))
		return
	}
	defer os.RemoveAll(tmpDir)

	out, err := h.render(r.Context(), tmpDir, file, p)
	if err != nil {
		h.logger.Warn("render failed", "err", err)
		errs.WriteHTTP(w, err)
		return
	}
	f, err := os.Open(out)
	if err != nil {
		errs.WriteHTTP(w, errs.Wrap(errs.CodeExportFailed, err, "ffmpeg failed."))
		return
	}
	defer f.Close()
	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Cache-Control", "no-store")
	if st, err := f.Stat(); err == nil {
		h.logger.Info("render done", "bytes", humanize.IBytes(uint64(st.Size())))
	}
	_, _ = io.Copy(w, f)
}

// render stages the inputs in dir, runs ffmpeg and returns the output path.
func (h *RenderHandler) render(ctx context.Context, dir string, video io.Reader, p Params) (string, error) {
	inPath := filepath.Join(dir, "in.mp4")
	if err := writeFile(inPath, video); err != nil {
		return "", errs.Wrap(errs.CodeInternal, err, "Server error.")
	}

	source, err := h.resolveFrame(p.FrameURL)
	if err != nil {
		return "", err
	}
	frame, err := media.LoadFrame(ctx, source)
	if err != nil {
		return "", errs.Wrap(errs.CodeInvalidParams, err, "Could not fetch frame image.")
	}
	framePath := filepath.Join(dir, "frame.png")
	if err := writePNG(framePath, frame); err != nil {
		return "", errs.Wrap(errs.CodeInternal, err, "Server error.")
	}

	var mw, mh int
	if info, err := h.probe(ctx, inPath); err != nil {
		h.logger.Debug("probe failed, placing by top-left", "err", err)
	} else {
		mw, mh = info.Width, info.Height
	}

	outPath := filepath.Join(dir, "out.mp4")
	args := ffmpeg.BuildOverlayArgs(p.Overlay(mw, mh, h.opts.FPS), inPath, framePath, outPath)
	if err := h.run(ctx, args); err != nil {
		return "", errs.Wrap(errs.CodeExportFailed, err, "ffmpeg failed.")
	}
	return outPath, nil
}

// defaultFrame returns the frame used for requests without a frameUrl.
func (h *RenderHandler) defaultFrame() string {
	if h.frame != nil {
		if src := h.frame(); src != "" {
			return src
		}
	}
	return h.opts.DefaultFrame
}

// resolveFrame picks the frame source for a request. Anything other than the
// default frame must be an http(s) URL on an allowed host.
func (h *RenderHandler) resolveFrame(requested string) (string, error) {
	def := h.defaultFrame()
	if requested == "" || requested == def {
		if def == "" {
			return "", errs.New(errs.CodeInvalidParams, "No frame image was given.")
		}
		return def, nil
	}
	u, err := url.Parse(requested)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || !h.allowedHost(u.Hostname()) {
		return "", errs.New(errs.CodeInvalidParams, "That frame image is not allowed.")
	}
	return requested, nil
}

// allowedHost reports whether host is in FrameHosts.
func (h *RenderHandler) allowedHost(host string) bool {
	for _, allowed := range h.opts.FrameHosts {
		if host != "" && strings.EqualFold(host, allowed) {
			return true
		}
	}
	return false
}

// writeFile copies r into a new file at path.
func writeFile(path string, r io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// writePNG re-encodes the frame so ffmpeg always sees a PNG.
func writePNG(path string, frame *media.FrameAsset) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, frame.Image); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
