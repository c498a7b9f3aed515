// Package ffmpeg builds ffmpeg command presets and drives ffmpeg processes.
package ffmpeg

import (
	"errors"
	"fmt"
	"image"
	"io"
	"net"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// ErrNotRunning is returned when frames are written with no encoder running.
var ErrNotRunning = errors.New("ffmpeg: encoder not running")

// Runner manages the long-lived RTP preview encoder fed with raw frames.
type Runner struct {
	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	waitCh chan error
	w      int
	h      int
	logger *log.Logger
}

// NewRunner returns a new Runner instance.
func NewRunner(logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{logger: logger.WithPrefix("ffmpeg")}
}

// StartRTP starts an encoder for w x h rgba frames and returns its RTP port.
// Any running encoder is stopped first.
func (r *Runner) StartRTP(w, h int, opts Options) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.stopLocked(); err != nil {
		return 0, err
	}
	if opts.FFmpegPath == "" {
		return 0, errors.New("FFmpegPath is required")
	}
	if w <= 0 || h <= 0 {
		return 0, fmt.Errorf("invalid frame size %dx%d", w, h)
	}
	if opts.FPS <= 0 {
		opts.FPS = 30
	}
	if opts.BitrateKbps <= 0 {
		opts.BitrateKbps = 2500
	}

	port, err := allocatePort()
	if err != nil {
		return 0, err
	}

	args := BuildRTPArgs(w, h, opts, port, true)
	r.logger.Debug("rtp encoder", "cmd", opts.FFmpegPath+" "+strings.Join(args, " "))
	cmd, stdin, waitCh, err := startWithFallback(opts.FFmpegPath, args, func() ([]string, error) {
		r.logger.Warn("libx264 encoder exited early, retrying with default h264 encoder")
		return BuildRTPArgs(w, h, opts, port, false), nil
	})
	if err != nil {
		return 0, err
	}

	r.cmd = cmd
	r.stdin = stdin
	r.waitCh = waitCh
	r.w = w
	r.h = h
	return port, nil
}

// Running reports whether an encoder process is active.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cmd != nil
}

// WriteFrame feeds one frame to the encoder. Frames must match the started size.
func (r *Runner) WriteFrame(img *image.RGBA) error {
	r.mu.Lock()
	stdin := r.stdin
	w, h := r.w, r.h
	r.mu.Unlock()
	if stdin == nil {
		return ErrNotRunning
	}
	if b := img.Bounds(); b.Dx() != w || b.Dy() != h {
		return fmt.Errorf("ffmpeg: frame %dx%d does not match encoder %dx%d", b.Dx(), b.Dy(), w, h)
	}
	return writeRGBA(stdin, img)
}

// Stop terminates any running ffmpeg process.
func (r *Runner) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopLocked()
}

// stopLocked stops the current ffmpeg process without acquiring the lock.
func (r *Runner) stopLocked() error {
	if r.stdin != nil {
		_ = r.stdin.Close()
		r.stdin = nil
	}
	if r.cmd == nil || r.cmd.Process == nil {
		r.cmd = nil
		return nil
	}
	if err := r.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	if r.waitCh != nil {
		<-r.waitCh
	}
	r.cmd = nil
	r.waitCh = nil
	return nil
}

// startCmd launches ffmpeg with a stdin pipe.
func startCmd(path string, args []string) (*exec.Cmd, io.WriteCloser, error) {
	cmd := exec.Command(path, args...)
	configureCmd(cmd)
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, err
	}
	return cmd, stdin, nil
}

// startWithFallback launches ffmpeg and falls back if it exits early.
func startWithFallback(path string, args []string, fallback func() ([]string, error)) (*exec.Cmd, io.WriteCloser, chan error, error) {
	cmd, stdin, err := startCmd(path, args)
	if err != nil {
		return nil, nil, nil, err
	}
	waitCh := make(chan error, 1)
	go func() {
		waitCh <- cmd.Wait()
	}()

	exited, exitErr := waitForExit(waitCh, 700*time.Millisecond)
	if exited {
		_ = stdin.Close()
		fallbackArgs, err := fallback()
		if err != nil {
			return nil, nil, nil, err
		}
		cmd, stdin, err = startCmd(path, fallbackArgs)
		if err != nil {
			if exitErr != nil {
				return nil, nil, nil, fmt.Errorf("ffmpeg exited early: %w", exitErr)
			}
			return nil, nil, nil, err
		}
		waitCh = make(chan error, 1)
		go func() {
			waitCh <- cmd.Wait()
		}()
	}

	return cmd, stdin, waitCh, nil
}

// waitForExit waits for a process to exit or times out.
func waitForExit(waitCh <-chan error, timeout time.Duration) (bool, error) {
	select {
	case err := <-waitCh:
		return true, err
	case <-time.After(timeout):
		return false, nil
	}
}

// allocatePort reserves a local UDP port and returns it.
func allocatePort() (int, error) {
	addr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return 0, err
	}
	port := conn.LocalAddr().(*net.UDPAddr).Port
	if err := conn.Close(); err != nil {
		return 0, err
	}
	return port, nil
}
