package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strings"
	"sync"
)

// FrameReader iterates rgba rawvideo frames produced by an ffmpeg process.
type FrameReader struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *tailBuffer
	w      int
	h      int
	once   sync.Once
	err    error
}

// StartFrameReader launches ffmpeg with args that must write w x h rgba
// rawvideo to stdout. Cancelling ctx kills the process.
func StartFrameReader(ctx context.Context, ffmpegPath string, args []string, w, h int) (*FrameReader, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", w, h)
	}
	cmd := exec.CommandContext(ctx, ffmpegPath, args...)
	configureCmd(cmd)
	stderr := &tailBuffer{}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, wrapExecErr(err)
	}
	return &FrameReader{cmd: cmd, stdout: stdout, stderr: stderr, w: w, h: h}, nil
}

// Size returns the frame dimensions.
func (r *FrameReader) Size() (int, int) { return r.w, r.h }

// Next reads the next frame into a fresh image. It returns io.EOF after the
// last complete frame.
func (r *FrameReader) Next() (*image.RGBA, error) {
	img := image.NewRGBA(image.Rect(0, 0, r.w, r.h))
	if _, err := io.ReadFull(r.stdout, img.Pix); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			if werr := r.wait(); werr != nil {
				return nil, werr
			}
			return nil, io.EOF
		}
		return nil, err
	}
	return img, nil
}

// Close stops the process and releases its pipes.
func (r *FrameReader) Close() error {
	_ = r.stdout.Close()
	if r.cmd.Process != nil {
		_ = r.cmd.Process.Kill()
	}
	_ = r.wait()
	return nil
}

// wait reaps the process once and reports a non-zero exit with stderr.
func (r *FrameReader) wait() error {
	r.once.Do(func() {
		if err := r.cmd.Wait(); err != nil {
			r.err = exitError(err, r.stderr)
		}
	})
	return r.err
}

// FrameWriter feeds rgba rawvideo frames to an ffmpeg encoder over stdin.
type FrameWriter struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *tailBuffer
	w      int
	h      int
}

// StartFrameWriter launches ffmpeg with args that read w x h rgba rawvideo
// from stdin. Cancelling ctx kills the process.
func StartFrameWriter(ctx context.Context, ffmpegPath string, args []string, w, h int) (*FrameWriter, error) {
	cmd := exec.CommandContext(ctx, ffmpegPath, args...)
	configureCmd(cmd)
	stderr := &tailBuffer{}
	cmd.Stderr = stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, wrapExecErr(err)
	}
	return &FrameWriter{cmd: cmd, stdin: stdin, stderr: stderr, w: w, h: h}, nil
}

// WriteFrame writes one frame; its size must match the writer's.
func (fw *FrameWriter) WriteFrame(img *image.RGBA) error {
	if b := img.Bounds(); b.Dx() != fw.w || b.Dy() != fw.h {
		return fmt.Errorf("ffmpeg: frame %dx%d does not match encoder %dx%d", b.Dx(), b.Dy(), fw.w, fw.h)
	}
	if err := writeRGBA(fw.stdin, img); err != nil {
		return fmt.Errorf("ffmpeg: write frame: %w (%s)", err, fw.stderr.String())
	}
	return nil
}

// Close flushes the encoder and waits for it to finish the output file.
func (fw *FrameWriter) Close() error {
	_ = fw.stdin.Close()
	if err := fw.cmd.Wait(); err != nil {
		return exitError(err, fw.stderr)
	}
	return nil
}

// Abort kills the encoder without waiting for a clean flush.
func (fw *FrameWriter) Abort() {
	_ = fw.stdin.Close()
	if fw.cmd.Process != nil {
		_ = fw.cmd.Process.Kill()
	}
	_ = fw.cmd.Wait()
}

// Run executes ffmpeg to completion with stdout wired to out.
func Run(ctx context.Context, ffmpegPath string, args []string, out io.Writer) error {
	cmd := exec.CommandContext(ctx, ffmpegPath, args...)
	configureCmd(cmd)
	stderr := &tailBuffer{}
	cmd.Stdout = out
	cmd.Stderr = stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return exitError(wrapExecErr(err), stderr)
	}
	return nil
}

// ErrNotFound reports a missing ffmpeg or ffprobe binary.
var ErrNotFound = errors.New("ffmpeg: binary not found")

// wrapExecErr tags lookup failures with ErrNotFound.
func wrapExecErr(err error) error {
	if errors.Is(err, exec.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}

// exitError attaches the stderr tail to a process failure.
func exitError(err error, stderr *tailBuffer) error {
	if msg := strings.TrimSpace(stderr.String()); msg != "" {
		return fmt.Errorf("ffmpeg: %w: %s", err, msg)
	}
	return fmt.Errorf("ffmpeg: %w", err)
}

// writeRGBA writes the visible pixels of img row by row when strided.
func writeRGBA(w io.Writer, img *image.RGBA) error {
	b := img.Bounds()
	rowLen := b.Dx() * 4
	if img.Stride == rowLen && b.Min == (image.Point{}) {
		_, err := w.Write(img.Pix[:rowLen*b.Dy()])
		return err
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		off := img.PixOffset(b.Min.X, y)
		if _, err := w.Write(img.Pix[off : off+rowLen]); err != nil {
			return err
		}
	}
	return nil
}

const tailLimit = 4096

// tailBuffer keeps the last few KB written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
}

// Write appends p, discarding the oldest bytes beyond tailLimit.
func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if len(t.buf) > tailLimit {
		t.buf = append([]byte(nil), t.buf[len(t.buf)-tailLimit:]...)
	}
	return len(p), nil
}

// String returns the retained tail.
func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
