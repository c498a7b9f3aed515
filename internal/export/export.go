// Package export renders the composited result for download.
//
// Images render once at the frame's native resolution. Videos either run the
// local decode, composite and encode pipeline or are handed to a remote
// render collaborator together with a JSON parameter blob.
package export

import (
	"bytes"
	"context"
	"image"

	"github.com/charmbracelet/log"

	"github.com/frudas24/frameit/internal/compositor"
	"github.com/frudas24/frameit/internal/errs"
	"github.com/frudas24/frameit/internal/ffmpeg"
	"github.com/frudas24/frameit/internal/media"
	"github.com/frudas24/frameit/internal/session"
)

// Options configures a Service.
type Options struct {
	FFmpegPath  string
	FPS         int
	JPEGQuality int
	TempDir     string
	RemoteURL   string
	FrameURL    string
}

// Decoder opens a full-resolution frame source for a video file.
type Decoder func(ctx context.Context, path string, w, h, fps int) (media.FrameSource, error)

// Encoder receives composited frames. Close finishes the output; Abort
// discards it.
type Encoder interface {
	WriteFrame(img *image.RGBA) error
	Close() error
	Abort()
}

// EncoderFactory starts an encoder writing a w x h mp4 to out.
type EncoderFactory func(ctx context.Context, w, h, fps int, out string) (Encoder, error)

// Service exports the session's current composition.
type Service struct {
	sess   *session.Session
	comp   *compositor.Compositor
	opts   Options
	remote *RemoteClient
	logger *log.Logger

	decode Decoder
	encode EncoderFactory
}

// NewService returns a Service backed by ffmpeg.
func NewService(sess *session.Session, comp *compositor.Compositor, opts Options, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	if opts.FPS <= 0 {
		opts.FPS = 30
	}
	if opts.JPEGQuality <= 0 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = compositor.DefaultJPEGQuality
	}
	s := &Service{
		sess:   sess,
		comp:   comp,
		opts:   opts,
		logger: logger.WithPrefix("export"),
	}
	if opts.RemoteURL != "" {
		s.remote = NewRemoteClient(opts.RemoteURL, nil)
	}
	s.decode = func(ctx context.Context, path string, w, h, fps int) (media.FrameSource, error) {
		args := ffmpeg.BuildDecodeArgs(path, ffmpeg.DecodeOptions{Width: w, Height: h, FPS: fps})
		return ffmpeg.StartFrameReader(ctx, opts.FFmpegPath, args, w, h)
	}
	s.encode = func(ctx context.Context, w, h, fps int, out string) (Encoder, error) {
		return ffmpeg.StartFrameWriter(ctx, opts.FFmpegPath, ffmpeg.BuildEncodeArgs(w, h, fps, out), w, h)
	}
	return s
}

// SetDecoder replaces the video frame source.
func (s *Service) SetDecoder(d Decoder) { s.decode = d }

// SetEncoderFactory replaces the video encoder.
func (s *Service) SetEncoderFactory(f EncoderFactory) { s.encode = f }

// Image is an encoded still export.
type Image struct {
	Data   []byte
	Format compositor.Format
	Width  int
	Height int
}

// Image renders the composition at the frame's native resolution and encodes
// it in format f.
func (s *Service) Image(f compositor.Format) (*Image, error) {
	snap := s.sess.Snapshot()
	if snap.AssetID == "" || snap.Media == nil {
		return nil, errs.New(errs.CodeNotReady, "Please upload an image first.")
	}
	w, h := OutputSize(snap)
	surface := image.NewRGBA(image.Rect(0, 0, w, h))
	s.comp.Render(surface, snap.Scene(f.Background()))

	var buf bytes.Buffer
	if err := compositor.Encode(&buf, surface, f, s.opts.JPEGQuality); err != nil {
		return nil, errs.Wrap(errs.CodeExportFailed, err, "We couldn't save the picture.")
	}
	s.logger.Info("image exported", "format", f, "w", w, "h", h, "bytes", buf.Len())
	return &Image{Data: buf.Bytes(), Format: f, Width: w, Height: h}, nil
}

// OutputSize is the frame's native size, or the canvas when no frame is set.
func OutputSize(snap session.Snapshot) (int, int) {
	if snap.Frame != nil {
		b := snap.Frame.Bounds()
		if b.Dx() > 0 && b.Dy() > 0 {
			return b.Dx(), b.Dy()
		}
	}
	return snap.Preset.CanvasW, snap.Preset.CanvasH
}
