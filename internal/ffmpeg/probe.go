package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// VideoInfo is the subset of ffprobe output frameit needs. Width and Height
// are display dimensions, already swapped for rotated phone footage.
type VideoInfo struct {
	Width    int
	Height   int
	Rotation int
	FPS      float64
	Duration time.Duration
	Codec    string
	HasAudio bool
}

// Probe runs ffprobe on path and parses its JSON report.
func Probe(ctx context.Context, ffprobePath, path string) (VideoInfo, error) {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	cmd := exec.CommandContext(ctx, ffprobePath,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	configureCmd(cmd)
	var stdout bytes.Buffer
	stderr := &tailBuffer{}
	cmd.Stdout = &stdout
	cmd.Stderr = stderr
	if err := cmd.Run(); err != nil {
		return VideoInfo{}, exitError(wrapExecErr(err), stderr)
	}
	return ParseProbe(stdout.Bytes())
}

// ParseProbe extracts VideoInfo from `ffprobe -print_format json` output.
func ParseProbe(data []byte) (VideoInfo, error) {
	if !gjson.ValidBytes(data) {
		return VideoInfo{}, errors.New("ffprobe: invalid json")
	}
	video := gjson.GetBytes(data, `streams.#(codec_type=="video")`)
	if !video.Exists() {
		return VideoInfo{}, errors.New("ffprobe: no video stream")
	}

	info := VideoInfo{
		Width:    int(video.Get("width").Int()),
		Height:   int(video.Get("height").Int()),
		Codec:    video.Get("codec_name").String(),
		HasAudio: gjson.GetBytes(data, `streams.#(codec_type=="audio")`).Exists(),
	}
	if info.Width <= 0 || info.Height <= 0 {
		return VideoInfo{}, fmt.Errorf("ffprobe: invalid dimensions %dx%d", info.Width, info.Height)
	}

	rot := video.Get("tags.rotate")
	video.Get("side_data_list").ForEach(func(_, sd gjson.Result) bool {
		if r := sd.Get("rotation"); r.Exists() {
			rot = r
			return false
		}
		return true
	})
	info.Rotation = int(rot.Int())
	if r := ((info.Rotation % 360) + 360) % 360; r == 90 || r == 270 {
		info.Width, info.Height = info.Height, info.Width
	}

	info.FPS = parseRate(video.Get("avg_frame_rate").String())
	if info.FPS <= 0 {
		info.FPS = parseRate(video.Get("r_frame_rate").String())
	}

	dur := gjson.GetBytes(data, "format.duration").Float()
	if dur <= 0 {
		dur = video.Get("duration").Float()
	}
	if dur > 0 {
		info.Duration = time.Duration(dur * float64(time.Second))
	}
	return info, nil
}

// parseRate parses an ffprobe rational like "30000/1001".
func parseRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !ok {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	r := n / d
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	return r
}
