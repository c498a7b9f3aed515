package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/frudas24/frameit/internal/errs"
	"github.com/frudas24/frameit/internal/ffmpeg"
	"github.com/frudas24/frameit/internal/media"
	"github.com/frudas24/frameit/internal/session"
)

// Params is the parameter blob sent to the remote render collaborator.
// PosX/PosY is the top-left of the unrotated scaled media in canvas pixels.
type Params struct {
	PosX        float64 `json:"posX"`
	PosY        float64 `json:"posY"`
	Scale       float64 `json:"scale"`
	RotationDeg float64 `json:"rotationDeg"`
	CanvasW     int     `json:"canvasW"`
	CanvasH     int     `json:"canvasH"`
	FrameURL    string  `json:"frameUrl"`
}

// Default canvas used when a parameter blob omits it.
const (
	defaultCanvasW = 1080
	defaultCanvasH = 1350
)

// ParamsFromSnapshot captures the current placement.
func ParamsFromSnapshot(snap session.Snapshot, frameURL string) Params {
	return Params{
		PosX:        math.Round(snap.Transform.PosX),
		PosY:        math.Round(snap.Transform.PosY),
		Scale:       snap.Transform.Scale,
		RotationDeg: snap.Transform.RotationDeg,
		CanvasW:     snap.Preset.CanvasW,
		CanvasH:     snap.Preset.CanvasH,
		FrameURL:    frameURL,
	}
}

// ParseParams decodes a blob, filling missing canvas and scale values. An
// empty blob yields the defaults.
func ParseParams(data []byte) (Params, error) {
	var p Params
	if len(strings.TrimSpace(string(data))) > 0 {
		if err := json.Unmarshal(data, &p); err != nil {
			return Params{}, errs.Wrap(errs.CodeInvalidParams, err, "The export parameters are not valid JSON.")
		}
	}
	if p.CanvasW == 0 {
		p.CanvasW = defaultCanvasW
	}
	if p.CanvasH == 0 {
		p.CanvasH = defaultCanvasH
	}
	if p.Scale == 0 {
		p.Scale = 1
	}
	p.PosX = math.Round(p.PosX)
	p.PosY = math.Round(p.PosY)
	return p, p.Validate()
}

// Validate rejects sizes and factors ffmpeg cannot use.
func (p Params) Validate() error {
	for _, v := range []float64{p.PosX, p.PosY, p.Scale, p.RotationDeg} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errs.New(errs.CodeInvalidParams, "The export parameters contain an invalid number.")
		}
	}
	if p.CanvasW <= 0 || p.CanvasH <= 0 {
		return errs.New(errs.CodeInvalidParams, "The canvas size must be positive.")
	}
	if p.Scale <= 0 {
		return errs.New(errs.CodeInvalidParams, "The scale must be positive.")
	}
	return nil
}

// Overlay converts p into ffmpeg overlay parameters for a mediaW x mediaH video.
func (p Params) Overlay(mediaW, mediaH, fps int) ffmpeg.OverlayParams {
	return ffmpeg.OverlayParams{
		CanvasW:     p.CanvasW,
		CanvasH:     p.CanvasH,
		MediaW:      mediaW,
		MediaH:      mediaH,
		Scale:       p.Scale,
		RotationDeg: p.RotationDeg,
		PosX:        p.PosX,
		PosY:        p.PosY,
		FPS:         fps,
	}
}

// RemoteClient posts a video and its parameters to a render collaborator.
type RemoteClient struct {
	URL  string
	HTTP *http.Client
}

// NewRemoteClient returns a client for url. A nil client gets a long timeout
// suited to video renders.
func NewRemoteClient(url string, client *http.Client) *RemoteClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Minute}
	}
	return &RemoteClient{URL: url, HTTP: client}
}

// Export streams videoPath and p as multipart fields `video` and `params` and
// copies the rendered mp4 to w.
func (c *RemoteClient) Export(ctx context.Context, videoPath string, p Params, w io.Writer) error {
	blob, err := json.Marshal(p)
	if err != nil {
		return err
	}
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeRenderForm(mw, videoPath, blob))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, pr)
	if err != nil {
		_ = pr.Close()
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return errs.Wrap(errs.CodeRemoteExport, err, "The export server is unreachable.")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errs.Wrap(errs.CodeRemoteExport,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
			"The export server could not render the video.")
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return errs.Wrap(errs.CodeRemoteExport, err, "The export download was interrupted.")
	}
	return nil
}

// writeRenderForm writes the params field then the video file.
func writeRenderForm(mw *multipart.Writer, videoPath string, blob []byte) error {
	if err := mw.WriteField("params", string(blob)); err != nil {
		return err
	}
	f, err := os.Open(videoPath)
	if err != nil {
		return err
	}
	defer f.Close()
	part, err := mw.CreateFormFile("video", filepath.Base(videoPath))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return err
	}
	return mw.Close()
}

// Params returns the remote parameter blob for the current placement.
func (s *Service) Params() (Params, error) {
	snap := s.sess.Snapshot()
	if snap.AssetID == "" {
		return Params{}, errs.New(errs.CodeNotReady, "Please upload an image first.")
	}
	return ParamsFromSnapshot(snap, s.opts.FrameURL), nil
}

// Remote sends the loaded video to the configured collaborator and streams
// the result to w.
func (s *Service) Remote(ctx context.Context, w io.Writer) error {
	if s.remote == nil {
		return errs.New(errs.CodeRemoteExport, "Remote export is not configured.")
	}
	p, err := s.Params()
	if err != nil {
		return err
	}
	src, ok := s.sess.Asset().(videoSource)
	if !ok || src.Kind() != media.KindVideo {
		return errs.New(errs.CodeInvalidParams, "Video export needs a video.")
	}
	s.logger.Info("remote export", "url", s.remote.URL, "asset", src.ID())
	return s.remote.Export(ctx, src.Path(), p, w)
}
