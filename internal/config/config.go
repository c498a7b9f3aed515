// Package config loads environment configuration for frameit.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

const (
	defaultListenAddr        = "0.0.0.0:8787"
	defaultDataDir           = "./data"
	defaultFFmpegPath        = "ffmpeg"
	defaultFFprobePath       = "ffprobe"
	defaultFPS               = 30
	defaultBitrateKbps       = 2500
	defaultPreviewIntervalMs = 66
	defaultPreviewQuality    = 70
	defaultPreviewWidth      = 540
	defaultPlaybackMaxWidth  = 720
	defaultMaxVideoBytes     = 25 * 1024 * 1024
	defaultMaxImageBytes     = 40 * 1024 * 1024
	defaultExportJPEGQuality = 92
	defaultVideoMode         = "mjpeg"
	defaultLogLevel          = "info"
)

// Config holds runtime configuration values.
type Config struct {
	ListenAddr        string
	UIPassword        string
	PasswordMode      bool
	DataDir           string
	SelectionPath     string
	PresetsPath       string
	Preset            string
	FFmpegPath        string
	FFprobePath       string
	FPS               int
	BitrateKbps       int
	PreviewIntervalMs int
	PreviewQuality    int
	PreviewWidth      int
	PlaybackMaxWidth  int
	MaxVideoBytes     int64
	MaxImageBytes     int64
	ExportJPEGQuality int
	RemoteExportURL   string
	FrameURL          string
	FrameHosts        []string
	VideoMode         string
	LogLevel          string
}

// Load reads configuration from DATA_DIR/.env and environment variables.
// Values in the file never override variables already set.
func Load() (Config, error) {
	dataDir := envString("DATA_DIR", defaultDataDir)
	if err := loadEnvFile(filepath.Join(dataDir, ".env")); err != nil {
		return Config{}, err
	}

	cfg := Config{
		ListenAddr:      envString("LISTEN_ADDR", defaultListenAddr),
		DataDir:         envString("DATA_DIR", dataDir),
		FFmpegPath:      envString("FFMPEG_PATH", defaultFFmpegPath),
		FFprobePath:     envString("FFPROBE_PATH", defaultFFprobePath),
		PasswordMode:    envBool("PASSWORD_MODE", true),
		UIPassword:      strings.TrimSpace(os.Getenv("UI_PASSWORD")),
		Preset:          envString("PRESET", ""),
		RemoteExportURL: envString("REMOTE_EXPORT_URL", ""),
		FrameURL:        envString("FRAME_URL", ""),
		VideoMode:       normalizeVideoMode(envString("VIDEO_MODE", defaultVideoMode)),
		LogLevel:        strings.ToLower(envString("LOG_LEVEL", defaultLogLevel)),
	}
	cfg.SelectionPath = envString("SELECTION_PATH", filepath.Join(cfg.DataDir, "preset.json"))
	cfg.PresetsPath = envString("PRESETS_PATH", "")
	cfg.FrameHosts = envList("FRAME_HOSTS")

	var err error
	if cfg.FPS, err = envIntRange("FPS", defaultFPS, 1, 60); err != nil {
		return Config{}, err
	}
	if cfg.BitrateKbps, err = envIntRange("BITRATE_KBPS", defaultBitrateKbps, 100, 50000); err != nil {
		return Config{}, err
	}
	if cfg.PreviewIntervalMs, err = envIntRange("PREVIEW_INTERVAL_MS", defaultPreviewIntervalMs, 0, 10000); err != nil {
		return Config{}, err
	}
	if cfg.PreviewQuality, err = envIntRange("PREVIEW_QUALITY", defaultPreviewQuality, 1, 100); err != nil {
		return Config{}, err
	}
	if cfg.PreviewWidth, err = envIntRange("PREVIEW_WIDTH", defaultPreviewWidth, 64, 4096); err != nil {
		return Config{}, err
	}
	if cfg.PlaybackMaxWidth, err = envIntRange("PLAYBACK_MAX_WIDTH", defaultPlaybackMaxWidth, 0, 8192); err != nil {
		return Config{}, err
	}
	if cfg.ExportJPEGQuality, err = envIntRange("EXPORT_JPEG_QUALITY", defaultExportJPEGQuality, 1, 100); err != nil {
		return Config{}, err
	}
	if cfg.MaxVideoBytes, err = envBytes("MAX_VIDEO_BYTES", defaultMaxVideoBytes); err != nil {
		return Config{}, err
	}
	if cfg.MaxImageBytes, err = envBytes("MAX_IMAGE_BYTES", defaultMaxImageBytes); err != nil {
		return Config{}, err
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return Config{}, fmt.Errorf("LOG_LEVEL must be debug, info, warn or error")
	}
	if cfg.PasswordMode && cfg.UIPassword == "" {
		return Config{}, errors.New("UI_PASSWORD is required (set PASSWORD_MODE=false to disable login)")
	}
	return cfg, nil
}

// envList splits a comma separated variable, dropping empty items.
func envList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// normalizeVideoMode ensures a supported preview pipeline value.
func normalizeVideoMode(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "webrtc":
		return "webrtc"
	default:
		return "mjpeg"
	}
}

// envString returns an env override when present, otherwise a default.
func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// envInt returns an int env override when present, otherwise a default.
func envInt(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return value, nil
}

// envIntRange is envInt limited to [lo, hi].
func envIntRange(key string, def, lo, hi int) (int, error) {
	v, err := envInt(key, def)
	if err != nil {
		return 0, err
	}
	if v < lo || v > hi {
		return 0, fmt.Errorf("%s must be %d-%d", key, lo, hi)
	}
	return v, nil
}

// envBytes parses sizes such as "25MB", "25MiB" or a plain byte count.
func envBytes(key string, def int64) (int64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	n, err := humanize.ParseBytes(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a size: %w", key, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("%s must be > 0", key)
	}
	return int64(n), nil
}

// envBool returns a bool env override when present, otherwise a default.
func envBool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

// loadEnvFile loads KEY=VALUE pairs from a .env file.
func loadEnvFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	for _, line := range strings.Split(string(data), "\n") {
		key, value, ok := parseEnvLine(line)
		if !ok {
			continue
		}
		if _, exists := os.LookupEnv(key); !exists {
			if err := os.Setenv(key, value); err != nil {
				return err
			}
		}
	}
	return nil
}

// parseEnvLine parses a single .env line into key/value.
func parseEnvLine(line string) (string, string, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false
	}
	line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
	key, value, ok := strings.Cut(line, "=")
	if !ok {
		return "", "", false
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", "", false
	}
	return key, strings.Trim(strings.TrimSpace(value), `"'`), true
}
