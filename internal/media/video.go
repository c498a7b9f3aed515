package media

import (
	"context"
	"errors"
	"image"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/frudas24/frameit/internal/ffmpeg"
)

const playbackRestartBackoff = 2 * time.Second

// FrameSource yields decoded frames in presentation order.
type FrameSource interface {
	Next() (*image.RGBA, error)
	Close() error
}

// SourceOpener opens a new playback source for a video.
type SourceOpener func(ctx context.Context) (FrameSource, error)

// VideoAsset is a video file with a background playback handle whose latest
// decoded frame is the current visual.
type VideoAsset struct {
	id     string
	name   string
	path   string
	info   ffmpeg.VideoInfo
	open   SourceOpener
	logger *log.Logger
	owned  bool

	latest atomic.Pointer[image.RGBA]
	seq    atomic.Uint64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewVideoAsset wraps a probed video file. When owned is set, Release
// removes the file.
func NewVideoAsset(id, name, path string, info ffmpeg.VideoInfo, open SourceOpener, owned bool, logger *log.Logger) *VideoAsset {
	if logger == nil {
		logger = log.Default()
	}
	return &VideoAsset{
		id:     id,
		name:   name,
		path:   path,
		info:   info,
		open:   open,
		owned:  owned,
		logger: logger.WithPrefix("playback"),
	}
}

// ID returns the asset identity.
func (v *VideoAsset) ID() string { return v.id }

// Name returns the original upload name.
func (v *VideoAsset) Name() string { return v.name }

// Kind returns KindVideo.
func (v *VideoAsset) Kind() Kind { return KindVideo }

// NativeWidth returns the display width reported by the probe.
func (v *VideoAsset) NativeWidth() int { return v.info.Width }

// NativeHeight returns the display height reported by the probe.
func (v *VideoAsset) NativeHeight() int { return v.info.Height }

// Info returns the probe result.
func (v *VideoAsset) Info() ffmpeg.VideoInfo { return v.info }

// Path returns the backing file.
func (v *VideoAsset) Path() string { return v.path }

// CurrentVisual returns the most recent playback frame, or nil before the
// first frame decodes.
func (v *VideoAsset) CurrentVisual() image.Image {
	if f := v.latest.Load(); f != nil {
		return f
	}
	return nil
}

// FrameSeq counts decoded playback frames.
func (v *VideoAsset) FrameSeq() uint64 { return v.seq.Load() }

// Play starts background playback. Calling Play twice is a no-op.
func (v *VideoAsset) Play() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.cancel != nil || v.open == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	v.cancel = cancel
	v.done = make(chan struct{})
	go v.loop(ctx, v.done)
}

// Release stops playback and removes an owned backing file.
func (v *VideoAsset) Release() error {
	v.mu.Lock()
	cancel, done := v.cancel, v.done
	v.cancel, v.done = nil, nil
	v.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
	v.latest.Store(nil)
	if v.owned && v.path != "" {
		if err := os.Remove(v.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

// loop decodes frames into latest, reopening the source after failures.
func (v *VideoAsset) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for ctx.Err() == nil {
		src, err := v.open(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			v.logger.Warn("open failed", "asset", v.id, "err", err, "retry", playbackRestartBackoff)
			if !sleepCtx(ctx, playbackRestartBackoff) {
				return
			}
			continue
		}
		err = v.drain(ctx, src)
		_ = src.Close()
		if ctx.Err() != nil {
			return
		}
		if err != nil && !errors.Is(err, io.EOF) {
			v.logger.Warn("read failed", "asset", v.id, "err", err, "retry", playbackRestartBackoff)
			if !sleepCtx(ctx, playbackRestartBackoff) {
				return
			}
		}
	}
}

// drain publishes frames from src until it ends or ctx is cancelled.
func (v *VideoAsset) drain(ctx context.Context, src FrameSource) error {
	for ctx.Err() == nil {
		frame, err := src.Next()
		if err != nil {
			return err
		}
		v.latest.Store(frame)
		v.seq.Add(1)
	}
	return ctx.Err()
}

// sleepCtx waits for d or ctx cancellation; it reports whether d elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
