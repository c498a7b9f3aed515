package media

import (
	"bytes"
	"image"
	"net/http"
	"strings"

	// Registered decoders for uploads and frame assets.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "github.com/ftrvxmtrx/tga"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/frudas24/frameit/internal/errs"
)

// SniffLen is the number of leading bytes Sniff inspects.
const SniffLen = 512

// Sniff classifies content from its leading bytes. The filename is never
// consulted.
func Sniff(header []byte) (Kind, string, error) {
	if len(header) == 0 {
		return 0, "", errs.New(errs.CodeInputRejected, "The file is empty.")
	}
	if len(header) > SniffLen {
		header = header[:SniffLen]
	}

	mime := http.DetectContentType(header)
	switch {
	case strings.HasPrefix(mime, "image/"):
		return KindImage, mime, nil
	case strings.HasPrefix(mime, "video/"):
		return KindVideo, mime, nil
	}

	if isISOBMFF(header) {
		if bytes.Equal(header[8:10], []byte("qt")) {
			return KindVideo, "video/quicktime", nil
		}
		return KindVideo, "video/mp4", nil
	}
	if cfg, format, err := image.DecodeConfig(bytes.NewReader(header)); err == nil && cfg.Width > 0 && cfg.Height > 0 {
		return KindImage, "image/x-" + format, nil
	}
	return 0, mime, errs.New(errs.CodeUnsupportedMedia, "Please choose a photo or a video.")
}

// isISOBMFF reports whether header starts with an ftyp box.
func isISOBMFF(header []byte) bool {
	return len(header) >= 12 && bytes.Equal(header[4:8], []byte("ftyp"))
}
