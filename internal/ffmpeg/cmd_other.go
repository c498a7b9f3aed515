//go:build !windows

// Package ffmpeg builds ffmpeg command presets and drives ffmpeg processes.
package ffmpeg

import "os/exec"

// configureCmd is a no-op outside Windows.
func configureCmd(cmd *exec.Cmd) {
	_ = cmd
}
