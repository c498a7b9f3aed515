// Package ffmpeg builds ffmpeg command presets and drives ffmpeg processes.
package ffmpeg

import (
	"fmt"
	"math"
	"strconv"
)

// Options describes ffmpeg runtime parameters.
type Options struct {
	FFmpegPath  string
	FFprobePath string
	FPS         int
	BitrateKbps int
}

// DecodeOptions controls how a video is decoded into raw RGBA frames.
type DecodeOptions struct {
	Width    int
	Height   int
	FPS      int
	Loop     bool
	Realtime bool
}

// OverlayParams places a scaled, rotated video under a frame image on a
// fixed canvas. PosX/PosY is the top-left of the unrotated scaled video;
// MediaW/MediaH are the probed video dimensions.
type OverlayParams struct {
	CanvasW     int
	CanvasH     int
	MediaW      int
	MediaH      int
	Scale       float64
	RotationDeg float64
	PosX        float64
	PosY        float64
	FPS         int
}

// BuildDecodeArgs returns args that decode in to rgba rawvideo on stdout.
func BuildDecodeArgs(in string, opts DecodeOptions) []string {
	args := []string{"-hide_banner", "-loglevel", "error"}
	if opts.Realtime {
		args = append(args, "-re")
	}
	if opts.Loop {
		args = append(args, "-stream_loop", "-1")
	}
	args = append(args, "-i", in, "-an", "-sn")

	filters := ""
	if opts.FPS > 0 {
		filters = fmt.Sprintf("fps=%d", opts.FPS)
	}
	if opts.Width > 0 && opts.Height > 0 {
		if filters != "" {
			filters += ","
		}
		filters += fmt.Sprintf("scale=%d:%d", opts.Width, opts.Height)
	}
	if filters != "" {
		args = append(args, "-vf", filters)
	}
	return append(args, "-pix_fmt", "rgba", "-f", "rawvideo", "pipe:1")
}

// BuildEncodeArgs returns args that encode rgba rawvideo from stdin into an mp4 file.
func BuildEncodeArgs(w, h, fps int, out string) []string {
	if fps <= 0 {
		fps = 30
	}
	return []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", w, h),
		"-r", strconv.Itoa(fps),
		"-i", "pipe:0",
		"-vf", "scale=trunc(iw/2)*2:trunc(ih/2)*2",
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		"-an",
		"-f", "mp4",
		out,
	}
}

// BuildRTPArgs returns args that encode rgba rawvideo from stdin as H264 RTP.
// useX264 selects libx264 tuning; the fallback relies on the default H264 encoder.
func BuildRTPArgs(w, h int, opts Options, port int, useX264 bool) []string {
	ew, eh := evenSize(w, h)
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", w, h),
		"-r", strconv.Itoa(opts.FPS),
		"-i", "pipe:0",
		"-an",
	}
	if ew != w || eh != h {
		args = append(args, "-vf", fmt.Sprintf("crop=%d:%d:0:0", ew, eh))
	}
	return append(args, buildOutputArgs(opts, port, useX264)...)
}

// buildOutputArgs builds the encode/output arguments.
func buildOutputArgs(opts Options, port int, useX264 bool) []string {
	// Frequent keyframes let the browser decoder recover after pipeline restarts.
	keyint := opts.FPS
	if keyint <= 0 {
		keyint = 30
	}
	if keyint < 15 {
		keyint = 15
	}
	var args []string
	if useX264 {
		args = append(args,
			"-vcodec", "libx264",
			"-preset", "ultrafast",
			"-tune", "zerolatency",
			"-profile:v", "baseline",
			"-bf", "0",
			"-x264-params", "scenecut=0:repeat-headers=1",
		)
	} else {
		args = append(args, "-vcodec", "h264")
	}
	return append(args,
		"-g", strconv.Itoa(keyint),
		"-keyint_min", strconv.Itoa(keyint),
		"-pix_fmt", "yuv420p",
		"-b:v", fmt.Sprintf("%dk", opts.BitrateKbps),
		"-payload_type", "96",
		"-f", "rtp",
		fmt.Sprintf("rtp://127.0.0.1:%d?pkt_size=1200", port),
	)
}

// BuildOverlayFilter returns the filter graph that composes the video under
// the frame. Input 0 is the video, input 1 the frame image.
func BuildOverlayFilter(p OverlayParams) string {
	rad := geometryRad(p.RotationDeg)
	x, y := overlayOrigin(p)
	return fmt.Sprintf(
		"color=c=white:s=%dx%d:r=%d[bg];"+
			"[0:v]format=rgba,scale=iw*%s:ih*%s,rotate=%s:ow=rotw(%s):oh=roth(%s):c=none[vv];"+
			"[bg][vv]overlay=%d:%d:shortest=1[base];"+
			"[1:v]scale=%d:%d[fr];"+
			"[base][fr]overlay=0:0:format=auto[out]",
		p.CanvasW, p.CanvasH, fpsOrDefault(p.FPS),
		formatFloat(p.Scale), formatFloat(p.Scale), formatFloat(rad), formatFloat(rad), formatFloat(rad),
		x, y,
		p.CanvasW, p.CanvasH,
	)
}

// BuildOverlayArgs returns the full remote-export command: video and frame in,
// H264 mp4 written to out.
func BuildOverlayArgs(p OverlayParams, videoPath, framePath, out string) []string {
	return []string{
		"-hide_banner", "-y",
		"-i", videoPath,
		"-i", framePath,
		"-filter_complex", BuildOverlayFilter(p),
		"-map", "[out]",
		"-r", strconv.Itoa(fpsOrDefault(p.FPS)),
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		"-preset", "veryfast",
		"-an",
		"-f", "mp4",
		out,
	}
}

// overlayOrigin converts the unrotated top-left into the top-left of the
// rotated bounding box produced by the rotate filter, which shares its center.
func overlayOrigin(p OverlayParams) (int, int) {
	if p.MediaW <= 0 || p.MediaH <= 0 {
		return int(math.Round(p.PosX)), int(math.Round(p.PosY))
	}
	dw := float64(p.MediaW) * p.Scale
	dh := float64(p.MediaH) * p.Scale
	rad := geometryRad(p.RotationDeg)
	c := math.Abs(math.Cos(rad))
	s := math.Abs(math.Sin(rad))
	bw := dw*c + dh*s
	bh := dw*s + dh*c
	x := p.PosX + dw/2 - bw/2
	y := p.PosY + dh/2 - bh/2
	return int(math.Round(x)), int(math.Round(y))
}

// geometryRad converts degrees in [0,360) to radians.
func geometryRad(deg float64) float64 {
	return math.Mod(deg, 360) * math.Pi / 180
}

// fpsOrDefault returns fps or 30.
func fpsOrDefault(fps int) int {
	if fps <= 0 {
		return 30
	}
	return fps
}

// formatFloat renders f compactly for filter expressions.
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// evenSize rounds dimensions down to even values, minimum 2.
func evenSize(w, h int) (int, int) {
	w -= w % 2
	h -= h % 2
	return max(w, 2), max(h, 2)
}
