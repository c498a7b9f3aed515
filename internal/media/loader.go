package media

import (
	"context"
	"errors"
	"math"

	"github.com/charmbracelet/log"

	"github.com/frudas24/frameit/internal/errs"
	"github.com/frudas24/frameit/internal/ffmpeg"
)

// Prober reports video metadata for a file.
type Prober func(ctx context.Context, path string) (ffmpeg.VideoInfo, error)

// Loader turns accepted uploads into assets.
type Loader struct {
	FFmpegPath       string
	FFprobePath      string
	PlaybackFPS      int
	PlaybackMaxWidth int
	Probe            Prober
	Logger           *log.Logger
	// KeepFiles leaves video files in place when their asset is released.
	KeepFiles bool
	// NoPlayback skips the looping preview decoder for offline exports.
	NoPlayback bool
}

// LoadImage decodes an accepted image upload.
func (l *Loader) LoadImage(id, name string, data []byte) (*ImageAsset, error) {
	a, err := DecodeImage(id, name, data)
	if err != nil {
		return nil, errs.Wrap(errs.CodeAssetLoad, err, "We couldn't read that photo.")
	}
	if a.NativeWidth() <= 0 || a.NativeHeight() <= 0 {
		return nil, errs.New(errs.CodeAssetLoad, "That photo has no pixels.")
	}
	return a, nil
}

// LoadVideo probes an accepted video file and returns a playing asset, or an
// idle one when NoPlayback is set. The file is owned by the asset and removed
// on Release unless KeepFiles is set.
func (l *Loader) LoadVideo(ctx context.Context, id, name, path string) (*VideoAsset, error) {
	probe := l.Probe
	if probe == nil {
		probe = func(ctx context.Context, path string) (ffmpeg.VideoInfo, error) {
			return ffmpeg.Probe(ctx, l.FFprobePath, path)
		}
	}
	info, err := probe(ctx, path)
	if err != nil {
		if errors.Is(err, ffmpeg.ErrNotFound) {
			return nil, errs.Wrap(errs.CodeEncoderUnavailable, err, "Video support needs ffprobe on the server.")
		}
		return nil, errs.Wrap(errs.CodeAssetLoad, err, "We couldn't read that video.")
	}

	w, h := PlaybackSize(info.Width, info.Height, l.PlaybackMaxWidth)
	opts := ffmpeg.DecodeOptions{Width: w, Height: h, FPS: l.PlaybackFPS, Loop: true, Realtime: true}
	open := func(ctx context.Context) (FrameSource, error) {
		return ffmpeg.StartFrameReader(ctx, l.FFmpegPath, ffmpeg.BuildDecodeArgs(path, opts), w, h)
	}
	v := NewVideoAsset(id, name, path, info, open, !l.KeepFiles, l.Logger)
	if !l.NoPlayback {
		v.Play()
	}
	return v, nil
}

// PlaybackSize bounds the decoded playback width, keeping aspect ratio.
func PlaybackSize(w, h, maxWidth int) (int, int) {
	if maxWidth <= 0 || w <= maxWidth {
		return w, h
	}
	nh := int(math.Round(float64(h) * float64(maxWidth) / float64(w)))
	return maxWidth, max(nh, 1)
}
