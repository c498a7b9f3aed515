package compositor

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"strings"

	"github.com/HugoSmits86/nativewebp"
)

// Format is an export image encoding.
type Format string

const (
	// FormatJPEG is the default flattened export.
	FormatJPEG Format = "jpeg"
	// FormatPNG keeps transparency outside the frame.
	FormatPNG Format = "png"
	// FormatWebP is lossless WebP.
	FormatWebP Format = "webp"
)

// DefaultJPEGQuality matches a 0.92 canvas export quality.
const DefaultJPEGQuality = 92

// ParseFormat accepts jpeg/jpg/png/webp, defaulting to JPEG for "".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "jpeg", "jpg":
		return FormatJPEG, nil
	case "png":
		return FormatPNG, nil
	case "webp":
		return FormatWebP, nil
	default:
		return "", fmt.Errorf("unknown image format %q", s)
	}
}

// ContentType returns the MIME type for f.
func (f Format) ContentType() string {
	switch f {
	case FormatPNG:
		return "image/png"
	case FormatWebP:
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

// Ext returns the file extension for f, without the dot.
func (f Format) Ext() string {
	if f == FormatJPEG || f == "" {
		return "jpg"
	}
	return string(f)
}

// Background returns the clear mode for f. JPEG has no alpha, so it is
// flattened onto white.
func (f Format) Background() Background {
	if f == FormatJPEG || f == "" {
		return BackgroundWhite
	}
	return BackgroundTransparent
}

// Encode writes img to w in format f.
func Encode(w io.Writer, img image.Image, f Format, jpegQuality int) error {
	switch f {
	case FormatPNG:
		return png.Encode(w, img)
	case FormatWebP:
		return nativewebp.Encode(w, img, nil)
	default:
		if jpegQuality <= 0 || jpegQuality > 100 {
			jpegQuality = DefaultJPEGQuality
		}
		return jpeg.Encode(w, img, &jpeg.Options{Quality: jpegQuality})
	}
}
