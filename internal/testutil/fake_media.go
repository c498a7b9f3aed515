// Package testutil provides fakes shared by package tests.
package testutil

import (
	"image"
	"image/color"
	"sync"
	"sync/atomic"

	"github.com/frudas24/frameit/internal/media"
)

// FakeAsset implements media.Asset and counts Release calls.
type FakeAsset struct {
	AssetID   string
	AssetKind media.Kind
	W, H      int
	Visual    image.Image
	Seq       atomic.Uint64

	mu       sync.Mutex
	releases int
}

// Ensure FakeAsset implements the interfaces.
var (
	_ media.Asset     = (*FakeAsset)(nil)
	_ media.Sequenced = (*FakeAsset)(nil)
)

// NewFakeImage returns an image asset of w x h filled with c.
func NewFakeImage(id string, w, h int, c color.RGBA) *FakeAsset {
	return &FakeAsset{AssetID: id, AssetKind: media.KindImage, W: w, H: h, Visual: Solid(w, h, c)}
}

// ID returns the asset id.
func (f *FakeAsset) ID() string { return f.AssetID }

// Kind returns the configured kind, defaulting to image.
func (f *FakeAsset) Kind() media.Kind {
	if f.AssetKind == 0 {
		return media.KindImage
	}
	return f.AssetKind
}

// NativeWidth returns W.
func (f *FakeAsset) NativeWidth() int { return f.W }

// NativeHeight returns H.
func (f *FakeAsset) NativeHeight() int { return f.H }

// CurrentVisual returns Visual.
func (f *FakeAsset) CurrentVisual() image.Image { return f.Visual }

// FrameSeq returns Seq.
func (f *FakeAsset) FrameSeq() uint64 { return f.Seq.Load() }

// Release records the call.
func (f *FakeAsset) Release() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releases++
	return nil
}

// Releases returns how many times Release ran.
func (f *FakeAsset) Releases() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.releases
}

// Solid returns a w x h RGBA image filled with c.
func Solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}
