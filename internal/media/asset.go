// Package media models uploaded media assets and the input boundary that admits them.
package media

import "image"

// Kind tags the variant of an Asset.
type Kind int

const (
	// KindImage is a still raster.
	KindImage Kind = iota + 1
	// KindVideo is a decoded video with a playback handle.
	KindVideo
)

// String returns the lowercase kind name.
func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindVideo:
		return "video"
	default:
		return "unknown"
	}
}

// Asset is user-supplied media. Native dimensions are fixed at load time;
// CurrentVisual returns nil while the pixels are not yet decodable.
type Asset interface {
	ID() string
	Kind() Kind
	NativeWidth() int
	NativeHeight() int
	CurrentVisual() image.Image
	Release() error
}

// Sequenced is implemented by assets whose visual changes over time.
type Sequenced interface {
	FrameSeq() uint64
}

// ImageAsset is a decoded still image.
type ImageAsset struct {
	id   string
	name string
	img  image.Image
}

// NewImageAsset wraps a decoded image.
func NewImageAsset(id, name string, img image.Image) *ImageAsset {
	return &ImageAsset{id: id, name: name, img: img}
}

// ID returns the asset identity.
func (a *ImageAsset) ID() string { return a.id }

// Name returns the original upload name.
func (a *ImageAsset) Name() string { return a.name }

// Kind returns KindImage.
func (a *ImageAsset) Kind() Kind { return KindImage }

// NativeWidth returns the pixel width.
func (a *ImageAsset) NativeWidth() int {
	if a.img == nil {
		return 0
	}
	return a.img.Bounds().Dx()
}

// NativeHeight returns the pixel height.
func (a *ImageAsset) NativeHeight() int {
	if a.img == nil {
		return 0
	}
	return a.img.Bounds().Dy()
}

// CurrentVisual returns the decoded raster.
func (a *ImageAsset) CurrentVisual() image.Image { return a.img }

// Release drops the raster.
func (a *ImageAsset) Release() error {
	a.img = nil
	return nil
}
