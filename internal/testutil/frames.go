package testutil

import (
	"errors"
	"image"
	"sync"
)

// FrameRecorder records raw frames written to it. It satisfies preview sinks
// and export encoders.
type FrameRecorder struct {
	mu      sync.Mutex
	Frames  []*image.RGBA
	FailAt  int
	Closed  bool
	Aborted bool
}

// ErrRecorderFull is returned once FailAt frames were written.
var ErrRecorderFull = errors.New("testutil: recorder failure injected")

// WriteFrame stores a copy of img.
func (r *FrameRecorder) WriteFrame(img *image.RGBA) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailAt > 0 && len(r.Frames) >= r.FailAt {
		return ErrRecorderFull
	}
	cp := image.NewRGBA(img.Bounds())
	copy(cp.Pix, img.Pix)
	r.Frames = append(r.Frames, cp)
	return nil
}

// Close marks the recorder closed.
func (r *FrameRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Closed = true
	return nil
}

// Abort marks the recorder aborted.
func (r *FrameRecorder) Abort() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Aborted = true
}

// Count returns the number of recorded frames.
func (r *FrameRecorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Frames)
}
