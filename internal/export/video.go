package export

import (
	"context"
	"errors"
	"image"
	"io"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/frudas24/frameit/internal/compositor"
	"github.com/frudas24/frameit/internal/errs"
	"github.com/frudas24/frameit/internal/ffmpeg"
	"github.com/frudas24/frameit/internal/media"
)

// videoSource is a loaded asset backed by a video file.
type videoSource interface {
	media.Asset
	Path() string
	Info() ffmpeg.VideoInfo
}

// Video is a finished mp4 export. The caller owns Path and removes it.
type Video struct {
	Path   string
	Frames int
	Width  int
	Height int
}

// frameBuffer bounds decoded frames waiting for the compositor.
const frameBuffer = 2

// Video re-renders every decoded frame of the loaded video through the
// compositor and encodes the result. The placement, frame and filters are
// fixed when the export starts. Replacing the asset or cancelling ctx aborts
// the export and discards the partial file.
func (s *Service) Video(ctx context.Context) (*Video, error) {
	snap := s.sess.Snapshot()
	if snap.AssetID == "" {
		return nil, errs.New(errs.CodeNotReady, "Please upload an image first.")
	}
	src, ok := s.sess.Asset().(videoSource)
	if !ok || snap.Kind != media.KindVideo {
		return nil, errs.New(errs.CodeInvalidParams, "Video export needs a video.")
	}
	if src.ID() != snap.AssetID {
		return nil, errs.New(errs.CodeStaleAsset, "That upload was replaced.")
	}
	info := src.Info()
	w, h := OutputSize(snap)

	tmp, err := os.CreateTemp(s.opts.TempDir, "frameit-export-*.mp4")
	if err != nil {
		return nil, errs.Wrap(errs.CodeExportFailed, err, "We couldn't export that video.")
	}
	out := tmp.Name()
	_ = tmp.Close()

	g, gctx := errgroup.WithContext(ctx)
	dec, err := s.decode(gctx, src.Path(), info.Width, info.Height, s.opts.FPS)
	if err != nil {
		_ = os.Remove(out)
		return nil, encoderErr(err)
	}
	defer dec.Close()

	enc, err := s.encode(ctx, w, h, s.opts.FPS, out)
	if err != nil {
		_ = os.Remove(out)
		return nil, encoderErr(err)
	}

	s.logger.Info("video export started", "asset", snap.AssetID, "w", w, "h", h, "fps", s.opts.FPS)
	frames := make(chan *image.RGBA, frameBuffer)
	count := 0
	g.Go(func() error {
		defer close(frames)
		for {
			img, err := dec.Next()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			select {
			case frames <- img:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})
	g.Go(func() error {
		surface := image.NewRGBA(image.Rect(0, 0, w, h))
		scene := snap.Scene(compositor.BackgroundWhite)
		for img := range frames {
			if !s.sess.IsCurrent(snap.AssetID) {
				return errs.New(errs.CodeStaleAsset, "That upload was replaced.")
			}
			scene.Media = img
			s.comp.Render(surface, scene)
			if err := enc.WriteFrame(surface); err != nil {
				return err
			}
			count++
		}
		return gctx.Err()
	})

	if err := g.Wait(); err != nil {
		enc.Abort()
		_ = os.Remove(out)
		s.logger.Warn("video export aborted", "asset", snap.AssetID, "frames", count, "err", err)
		return nil, exportErr(ctx, err)
	}
	if count == 0 {
		enc.Abort()
		_ = os.Remove(out)
		return nil, errs.New(errs.CodeExportFailed, "That video has no frames to export.")
	}
	if err := enc.Close(); err != nil {
		_ = os.Remove(out)
		return nil, errs.Wrap(errs.CodeExportFailed, err, "We couldn't export that video.")
	}
	s.logger.Info("video exported", "asset", snap.AssetID, "frames", count)
	return &Video{Path: out, Frames: count, Width: w, Height: h}, nil
}

// encoderErr maps a process start failure to a user-facing error.
func encoderErr(err error) error {
	if errors.Is(err, ffmpeg.ErrNotFound) {
		return errs.Wrap(errs.CodeEncoderUnavailable, err, "Video export needs ffmpeg on the server.")
	}
	return errs.Wrap(errs.CodeExportFailed, err, "We couldn't export that video.")
}

// exportErr keeps coded errors and labels cancellation.
func exportErr(ctx context.Context, err error) error {
	var e *errs.Error
	if errors.As(err, &e) {
		return err
	}
	if ctx.Err() != nil {
		return errs.Wrap(errs.CodeExportFailed, ctx.Err(), "Export cancelled.")
	}
	return errs.Wrap(errs.CodeExportFailed, err, "We couldn't export that video.")
}
