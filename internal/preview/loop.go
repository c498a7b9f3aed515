// Package preview runs the render loop that feeds the live editor preview.
//
// Every tick runs the registered hooks (joystick, tilt), takes a session
// snapshot and renders it when the revision changed. Frames go to the MJPEG
// stream and, when attached, to a raw frame sink such as the RTP encoder.
package preview

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/frudas24/frameit/internal/compositor"
	"github.com/frudas24/frameit/internal/mjpeg"
	"github.com/frudas24/frameit/internal/session"
)

// Sink receives every rendered preview frame.
type Sink interface {
	WriteFrame(img *image.RGBA) error
}

// Options tunes the loop.
type Options struct {
	FPS     int
	Width   int
	Quality int
}

// DefaultOptions returns 30 fps at 540 px wide, JPEG quality 70.
func DefaultOptions() Options {
	return Options{FPS: 30, Width: 540, Quality: 70}
}

// normalize fills zero fields from DefaultOptions.
func (o Options) normalize() Options {
	d := DefaultOptions()
	if o.FPS <= 0 {
		o.FPS = d.FPS
	}
	if o.Width <= 0 {
		o.Width = d.Width
	}
	if o.Quality <= 0 || o.Quality > 100 {
		o.Quality = d.Quality
	}
	return o
}

// Loop is a repeating render task with an explicit stop handle.
type Loop struct {
	sess   *session.Session
	comp   *compositor.Compositor
	stream *mjpeg.Stream
	logger *log.Logger

	mu      sync.Mutex
	opts    Options
	hooks   []func()
	sink    Sink
	surface *image.RGBA
	lastRev uint64
	dirty   bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewLoop builds a stopped loop.
func NewLoop(sess *session.Session, comp *compositor.Compositor, stream *mjpeg.Stream, opts Options, logger *log.Logger) *Loop {
	if logger == nil {
		logger = log.Default()
	}
	return &Loop{
		sess:   sess,
		comp:   comp,
		stream: stream,
		opts:   opts.normalize(),
		logger: logger.WithPrefix("preview"),
		dirty:  true,
	}
}

// AddTickHook registers fn to run at the start of every tick.
func (l *Loop) AddTickHook(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hooks = append(l.hooks, fn)
}

// SetSink attaches a raw frame sink, or detaches it when nil.
func (l *Loop) SetSink(s Sink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sink = s
	l.dirty = true
}

// Options returns the active options.
func (l *Loop) Options() Options {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.opts
}

// SetOptions replaces the options; the next tick re-renders.
func (l *Loop) SetOptions(opts Options) {
	l.mu.Lock()
	defer l.mu.Unlock()
	opts = opts.normalize()
	if opts.Width != l.opts.Width {
		l.surface = nil
	}
	l.opts = opts
	l.dirty = true
}

// FrameSize returns the preview surface size for the active preset.
func (l *Loop) FrameSize() (int, int) {
	p := l.sess.Preset()
	s := compositor.NewSurface(p.CanvasW, p.CanvasH, l.Options().Width)
	return s.Bounds().Dx(), s.Bounds().Dy()
}

// Start runs the loop until Stop or ctx cancellation. Starting a running
// loop is a no-op.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	if l.cancel != nil {
		l.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})
	fps := l.opts.FPS
	done := l.done
	l.mu.Unlock()

	go l.run(ctx, time.Second/time.Duration(fps), done)
	l.logger.Debug("started", "fps", fps)
}

// Stop halts the loop and waits for the current tick to finish.
func (l *Loop) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// run ticks at interval until ctx ends.
func (l *Loop) run(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Tick()
		}
	}
}

// Tick runs the hooks and renders when the session changed. It reports
// whether a frame was rendered.
func (l *Loop) Tick() bool {
	l.mu.Lock()
	hooks := append([]func(){}, l.hooks...)
	l.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}

	snap := l.sess.Snapshot()

	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.dirty && snap.Revision == l.lastRev && l.sink == nil {
		return false
	}
	l.lastRev = snap.Revision
	l.dirty = false

	surface := l.surfaceFor(snap)
	l.comp.Render(surface, snap.Scene(compositor.BackgroundWhite))

	if l.stream != nil {
		jpg, err := mjpeg.EncodeImage(surface, l.opts.Quality)
		if err != nil {
			l.logger.Warn("encode preview failed", "err", err)
		} else {
			l.stream.Publish(jpg)
		}
	}
	if l.sink != nil {
		if err := l.sink.WriteFrame(surface); err != nil {
			l.logger.Warn("preview sink write failed, detaching", "err", err)
			l.sink = nil
		}
	}
	return true
}

// surfaceFor returns the reusable surface sized for snap's canvas.
func (l *Loop) surfaceFor(snap session.Snapshot) *image.RGBA {
	want := compositor.NewSurface(snap.Preset.CanvasW, snap.Preset.CanvasH, l.opts.Width).Bounds()
	if l.surface == nil || l.surface.Bounds() != want {
		l.surface = image.NewRGBA(want)
	}
	return l.surface
}
