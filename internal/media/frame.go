package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// FrameAsset is the decorative overlay drawn on top of the media.
type FrameAsset struct {
	Source string
	Image  image.Image
}

// Width returns the frame's native width.
func (f *FrameAsset) Width() int {
	if f == nil || f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dx()
}

// Height returns the frame's native height.
func (f *FrameAsset) Height() int {
	if f == nil || f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dy()
}

// LoadFrame decodes a frame from a file path or an http(s) URL.
func LoadFrame(ctx context.Context, source string) (*FrameAsset, error) {
	data, err := readSource(ctx, source)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode frame %s: %w", source, err)
	}
	return &FrameAsset{Source: source, Image: img}, nil
}

// DecodeImage decodes raw upload bytes into an ImageAsset.
func DecodeImage(id, name string, data []byte) (*ImageAsset, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return NewImageAsset(id, name, img), nil
}

// readSource reads source from disk or over HTTP.
func readSource(ctx context.Context, source string) ([]byte, error) {
	if !strings.HasPrefix(source, "http://") && !strings.HasPrefix(source, "https://") {
		return os.ReadFile(source)
	}
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch frame: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch frame: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
