package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/frudas24/frameit/internal/compositor"
	"github.com/frudas24/frameit/internal/export"
	"github.com/frudas24/frameit/internal/media"
	"github.com/frudas24/frameit/internal/placement"
	"github.com/frudas24/frameit/internal/preset"
	"github.com/frudas24/frameit/internal/session"
)

type composeOptions struct {
	presetsPath string
	presetName  string
	out         string
	format      string
	quality     int
	scale       float64
	rotation    float64
	posX        float64
	posY        float64
	setPos      bool
	ffmpegPath  string
	ffprobePath string
	fps         int
}

// newComposeCmd returns the offline compose command.
func newComposeCmd() *cobra.Command {
	opts := composeOptions{}
	cmd := &cobra.Command{
		Use:   "compose <photo-or-video>",
		Short: "Place a file in a frame and write the export without the UI",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.setPos = cmd.Flags().Changed("x") || cmd.Flags().Changed("y")
			return compose(cmd, args[0], opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.presetsPath, "presets", os.Getenv("PRESETS_PATH"), "preset catalogue (yaml, toml or json)")
	f.StringVar(&opts.presetName, "preset", preset.DefaultName, "preset name")
	f.StringVarP(&opts.out, "out", "o", "", "output file (default: <input>-framed.<ext>)")
	f.StringVar(&opts.format, "format", "", "image format: jpeg, png or webp (default from --out)")
	f.IntVar(&opts.quality, "quality", compositor.DefaultJPEGQuality, "JPEG quality")
	f.Float64Var(&opts.scale, "scale", 0, "media scale (0 keeps the cover fit)")
	f.Float64Var(&opts.rotation, "rotate", 0, "rotation in degrees")
	f.Float64Var(&opts.posX, "x", 0, "media top-left x in canvas pixels")
	f.Float64Var(&opts.posY, "y", 0, "media top-left y in canvas pixels")
	f.StringVar(&opts.ffmpegPath, "ffmpeg", "ffmpeg", "ffmpeg binary")
	f.StringVar(&opts.ffprobePath, "ffprobe", "ffprobe", "ffprobe binary")
	f.IntVar(&opts.fps, "fps", 30, "video export frame rate")
	return cmd
}

// compose loads input into a session, applies the placement flags and
// writes the export.
func compose(cmd *cobra.Command, input string, opts composeOptions) error {
	ctx := cmd.Context()
	logger := loggerFromContext(ctx)

	catalog, err := preset.LoadFile(opts.presetsPath)
	if err != nil {
		return err
	}
	p, ok := catalog.Get(opts.presetName)
	if !ok {
		return fmt.Errorf("unknown preset %q (have %s)", opts.presetName, strings.Join(catalog.Names(), ", "))
	}
	var frame *media.FrameAsset
	if p.FramePath != "" {
		if frame, err = media.LoadFrame(ctx, p.FramePath); err != nil {
			return err
		}
	}

	sess := session.New("")
	sess.SetPreset(p, frame)

	kind, err := sniffFile(input)
	if err != nil {
		return err
	}
	loader := &media.Loader{
		FFmpegPath:  opts.ffmpegPath,
		FFprobePath: opts.ffprobePath,
		PlaybackFPS: opts.fps,
		Logger:      logger,
		KeepFiles:   true,
		NoPlayback:  true,
	}
	id, err := sess.BeginLoad()
	if err != nil {
		return err
	}
	var asset media.Asset
	if kind == media.KindVideo {
		asset, err = loader.LoadVideo(ctx, id, filepath.Base(input), input)
	} else {
		var data []byte
		if data, err = os.ReadFile(input); err == nil {
			asset, err = loader.LoadImage(id, filepath.Base(input), data)
		}
	}
	if err != nil {
		return err
	}
	if err := sess.CompleteLoad(id, asset); err != nil {
		return err
	}
	defer func() { _ = sess.Clear() }()

	if err := sess.Update(func(s *placement.State) { applyPlacement(s, opts) }); err != nil {
		return err
	}
	t := sess.Snapshot().Transform
	logger.Debug("placement", "x", t.PosX, "y", t.PosY, "scale", t.Scale, "rotation", t.RotationDeg)

	svc := export.NewService(sess, compositor.New(logger), export.Options{
		FFmpegPath:  opts.ffmpegPath,
		FPS:         opts.fps,
		JPEGQuality: opts.quality,
	}, logger)
	if kind == media.KindVideo {
		return composeVideo(cmd, svc, input, opts, logger)
	}
	return composeImage(svc, input, opts, logger)
}

// applyPlacement applies the placement flags after the cover fit.
func applyPlacement(s *placement.State, opts composeOptions) {
	if opts.rotation != 0 {
		s.SetRotation(opts.rotation)
	}
	if opts.scale > 0 {
		s.ZoomFromCenter(opts.scale)
	}
	if opts.setPos {
		s.SetPosition(opts.posX, opts.posY)
	}
}

// composeImage writes the still export.
func composeImage(svc *export.Service, input string, opts composeOptions, logger *log.Logger) error {
	name := opts.format
	if name == "" && opts.out != "" {
		name = strings.TrimPrefix(filepath.Ext(opts.out), ".")
	}
	format, err := compositor.ParseFormat(name)
	if err != nil {
		return err
	}
	img, err := svc.Image(format)
	if err != nil {
		return err
	}
	out := opts.out
	if out == "" {
		out = outputName(input, format.Ext())
	}
	if err := os.WriteFile(out, img.Data, 0o644); err != nil {
		return err
	}
	logger.Info("wrote", "path", out, "w", img.Width, "h", img.Height, "size", humanize.IBytes(uint64(len(img.Data))))
	return nil
}

// composeVideo runs the client-side video export and moves the result.
func composeVideo(cmd *cobra.Command, svc *export.Service, input string, opts composeOptions, logger *log.Logger) error {
	v, err := svc.Video(cmd.Context())
	if err != nil {
		return err
	}
	defer os.Remove(v.Path)
	out := opts.out
	if out == "" {
		out = outputName(input, "mp4")
	}
	if err := copyFile(v.Path, out); err != nil {
		return err
	}
	logger.Info("wrote", "path", out, "frames", v.Frames, "w", v.Width, "h", v.Height)
	return nil
}

// sniffFile classifies path by its leading bytes.
func sniffFile(path string) (media.Kind, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	header := make([]byte, media.SniffLen)
	n, err := io.ReadFull(f, header)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return 0, err
	}
	kind, _, err := media.Sniff(header[:n])
	return kind, err
}

// outputName derives "<input>-framed.<ext>".
func outputName(input, ext string) string {
	base := strings.TrimSuffix(input, filepath.Ext(input))
	return base + "-framed." + ext
}

// copyFile copies src to dst.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
