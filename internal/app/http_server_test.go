package app

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/frudas24/frameit/internal/config"
	"github.com/frudas24/frameit/internal/errs"
	"github.com/frudas24/frameit/internal/export"
	"github.com/frudas24/frameit/internal/ffmpeg"
	"github.com/frudas24/frameit/internal/placement"
	"github.com/frudas24/frameit/internal/preset"
	"github.com/frudas24/frameit/internal/session"
	"github.com/frudas24/frameit/internal/signaling"
)

// TestHandleConfig_Unauthorized verifies /api/config requires authentication.
func TestHandleConfig_Unauthorized(t *testing.T) {
	sess := session.New("pw")
	app := newTestApp(t, sess)

	rec := serve(app, httptest.NewRequest(http.MethodPost, "/api/config", bytes.NewBufferString(`{}`)))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

// TestHandleConfig_UpdatesRuntimeSettings verifies updating preview interval/quality updates runtime config.
func TestHandleConfig_UpdatesRuntimeSettings(t *testing.T) {
	sess := authedSession(t)
	app := newTestApp(t, sess)

	body := `{"previewIntervalMs":80,"previewQuality":90}`
	rec := serve(app, httptest.NewRequest(http.MethodPost, "/api/config", bytes.NewBufferString(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp configResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Applied || resp.PreviewIntervalMs != 80 || resp.PreviewQuality != 90 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if app.cfg.PreviewIntervalMs != 80 || app.cfg.PreviewQuality != 90 {
		t.Fatalf("unexpected app cfg: interval=%d quality=%d", app.cfg.PreviewIntervalMs, app.cfg.PreviewQuality)
	}
	if got := app.preview.Options().Quality; got != 90 {
		t.Fatalf("expected preview quality 90, got %d", got)
	}
}

// TestHandleConfig_ResetRestoresDefaults verifies reset restores the values captured at startup.
func TestHandleConfig_ResetRestoresDefaults(t *testing.T) {
	sess := authedSession(t)
	app := newTestApp(t, sess)

	recUpdate := serve(app, httptest.NewRequest(http.MethodPost, "/api/config", bytes.NewBufferString(`{"previewIntervalMs":80,"previewQuality":90}`)))
	if recUpdate.Code != http.StatusOK {
		t.Fatalf("expected update 200, got %d: %s", recUpdate.Code, recUpdate.Body.String())
	}

	recReset := serve(app, httptest.NewRequest(http.MethodPost, "/api/config", bytes.NewBufferString(`{"reset":true}`)))
	if recReset.Code != http.StatusOK {
		t.Fatalf("expected reset 200, got %d: %s", recReset.Code, recReset.Body.String())
	}
	var resp configResponse
	if err := json.Unmarshal(recReset.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Applied || resp.PreviewIntervalMs != 120 || resp.PreviewQuality != 60 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

// TestHandleConfig_ValidatesInput verifies the endpoint rejects invalid values.
func TestHandleConfig_ValidatesInput(t *testing.T) {
	sess := authedSession(t)
	app := newTestApp(t, sess)

	rec := serve(app, httptest.NewRequest(http.MethodPost, "/api/config", bytes.NewBufferString(`{"previewIntervalMs":-1,"previewQuality":500}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if app.cfg.PreviewIntervalMs != 120 || app.cfg.PreviewQuality != 60 {
		t.Fatalf("config changed on invalid input: %+v", app.cfg)
	}
}

// TestLoginThenState verifies login unlocks /api/state and reports the session.
func TestLoginThenState(t *testing.T) {
	sess := session.New("pw")
	app := newTestApp(t, sess)

	bad := serve(app, httptest.NewRequest(http.MethodPost, "/login", bytes.NewBufferString(`{"password":"nope"}`)))
	if bad.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", bad.Code)
	}
	ok := serve(app, httptest.NewRequest(http.MethodPost, "/login", bytes.NewBufferString(`{"password":"pw"}`)))
	if ok.Code != http.StatusOK {
		t.Fatalf("expected login 200, got %d", ok.Code)
	}

	rec := serve(app, httptest.NewRequest(http.MethodGet, "/api/state", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp stateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Authenticated || resp.State != "empty" || resp.Preset != preset.DefaultName {
		t.Fatalf("unexpected state: %+v", resp)
	}
	if resp.CanvasW != 1080 || resp.CanvasH != 1350 {
		t.Fatalf("unexpected canvas %dx%d", resp.CanvasW, resp.CanvasH)
	}
}

// TestPasswordModeDisabled verifies PASSWORD_MODE=false opens the API.
func TestPasswordModeDisabled(t *testing.T) {
	sess := session.New("")
	cfg := testConfig(t)
	cfg.PasswordMode = false
	if _, err := New(cfg, sess, nil, nil, signaling.ViewerReplace, nil); err == nil {
		t.Fatalf("expected New to require a runner")
	}

	app := newApp(cfg, sess, nil, signaling.ViewerReplace, log.New(io.Discard))
	rec := serve(app, httptest.NewRequest(http.MethodGet, "/api/state", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 without login, got %d", rec.Code)
	}
}

// TestUpload_ImageBecomesReady verifies an accepted photo ends up loaded.
func TestUpload_ImageBecomesReady(t *testing.T) {
	sess := authedSession(t)
	app := newTestApp(t, sess)

	rec := serve(app, uploadRequest(t, "photo.png", pngBytes(t, 20, 20)))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp uploadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Kind != "image" || resp.AssetID == "" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	app.loads.Wait()
	if sess.State() != session.StateReady {
		t.Fatalf("expected ready, got %s", sess.State())
	}
	if got := sess.Asset(); got == nil || got.ID() != resp.AssetID {
		t.Fatalf("expected asset %s to be loaded", resp.AssetID)
	}
}

// TestUpload_RejectsUnsupportedContent verifies the boundary rejects non-media
// without touching the loaded photo.
func TestUpload_RejectsUnsupportedContent(t *testing.T) {
	sess := authedSession(t)
	app := newTestApp(t, sess)
	loaded := uploadAndWait(t, app)

	rec := serve(app, uploadRequest(t, "photo.png", []byte("just some text, not a picture")))
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d: %s", rec.Code, rec.Body.String())
	}
	assertErrorCode(t, rec, errs.CodeUnsupportedMedia)
	if sess.State() != session.StateReady || sess.Asset().ID() != loaded {
		t.Fatalf("rejected upload changed the session: state=%s", sess.State())
	}
	if msg := sess.Snapshot().Message; msg == "" {
		t.Fatalf("expected a rejection message on the session")
	}
}

// TestUpload_RejectsOversizedImage verifies size caps are enforced per kind.
func TestUpload_RejectsOversizedImage(t *testing.T) {
	sess := authedSession(t)
	cfg := testConfig(t)
	cfg.MaxImageBytes = 64
	cfg.MaxVideoBytes = 64
	app := newApp(cfg, sess, nil, signaling.ViewerReplace, log.New(io.Discard))

	rec := serve(app, uploadRequest(t, "big.png", pngBytes(t, 64, 64)))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d: %s", rec.Code, rec.Body.String())
	}
	assertErrorCode(t, rec, errs.CodeMediaTooLarge)
	if sess.State() != session.StateEmpty {
		t.Fatalf("expected empty session, got %s", sess.State())
	}
}

// TestUpload_OversizedVideoKeepsLoadedMedia verifies a video over the cap is
// refused without touching the loaded photo or its placement.
func TestUpload_OversizedVideoKeepsLoadedMedia(t *testing.T) {
	sess := authedSession(t)
	cfg := testConfig(t)
	cfg.MaxVideoBytes = 4 << 10
	cfg.MaxImageBytes = 1 << 20
	app := newApp(cfg, sess, nil, signaling.ViewerReplace, log.New(io.Discard))
	t.Cleanup(func() {
		app.loadCancel()
		app.loads.Wait()
	})
	loaded := uploadAndWait(t, app)
	if err := sess.Update(func(s *placement.State) { s.ZoomFromCenter(2) }); err != nil {
		t.Fatalf("update: %v", err)
	}
	before := sess.Snapshot()

	video := make([]byte, 8<<10)
	copy(video, []byte("\x00\x00\x00\x18ftypmp42\x00\x00\x00\x00mp42isom"))
	rec := serve(app, uploadRequest(t, "clip.mp4", video))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d: %s", rec.Code, rec.Body.String())
	}
	assertErrorCode(t, rec, errs.CodeMediaTooLarge)

	after := sess.Snapshot()
	if after.State != session.StateReady || after.AssetID != loaded || after.AssetID != before.AssetID {
		t.Fatalf("rejected video changed the media: state=%s asset=%s", after.State, after.AssetID)
	}
	if after.Transform != before.Transform {
		t.Fatalf("rejected video moved the media: %+v -> %+v", before.Transform, after.Transform)
	}
	if after.Message == "" {
		t.Fatalf("expected a rejection message on the session")
	}
}

// TestUpload_MissingFile verifies a form without a file is rejected.
func TestUpload_MissingFile(t *testing.T) {
	sess := authedSession(t)
	app := newTestApp(t, sess)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField("other", "x")
	_ = mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/media", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rec := serve(app, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	assertErrorCode(t, rec, errs.CodeInputRejected)
}

// TestClearMedia verifies DELETE /api/media empties the session.
func TestClearMedia(t *testing.T) {
	sess := authedSession(t)
	app := newTestApp(t, sess)
	uploadAndWait(t, app)

	rec := serve(app, httptest.NewRequest(http.MethodDelete, "/api/media", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if sess.State() != session.StateEmpty || sess.Asset() != nil {
		t.Fatalf("expected empty session after clear")
	}
}

// TestExportImage verifies image export requires media and then returns the
// requested format.
func TestExportImage(t *testing.T) {
	sess := authedSession(t)
	app := newTestApp(t, sess)

	early := serve(app, httptest.NewRequest(http.MethodGet, "/api/export/image?format=png", nil))
	if early.Code != http.StatusConflict {
		t.Fatalf("expected 409 before upload, got %d", early.Code)
	}
	assertErrorCode(t, early, errs.CodeNotReady)

	uploadAndWait(t, app)
	rec := serve(app, httptest.NewRequest(http.MethodGet, "/api/export/image?format=png", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "frameit.png") {
		t.Fatalf("unexpected disposition %q", cd)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("decode export: %v", err)
	}
	if cfg.Width != 1080 || cfg.Height != 1350 {
		t.Fatalf("expected canvas-sized export, got %dx%d", cfg.Width, cfg.Height)
	}

	bad := serve(app, httptest.NewRequest(http.MethodGet, "/api/export/image?format=gif", nil))
	if bad.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown format, got %d", bad.Code)
	}
}

// TestExportVideo_RequiresVideo verifies a photo cannot be exported as video.
func TestExportVideo_RequiresVideo(t *testing.T) {
	sess := authedSession(t)
	app := newTestApp(t, sess)
	uploadAndWait(t, app)

	rec := serve(app, httptest.NewRequest(http.MethodPost, "/api/export/video", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	assertErrorCode(t, rec, errs.CodeInvalidParams)
}

// TestExportParams verifies the remote parameter blob mirrors the placement.
func TestExportParams(t *testing.T) {
	sess := authedSession(t)
	app := newTestApp(t, sess)
	uploadAndWait(t, app)

	rec := serve(app, httptest.NewRequest(http.MethodGet, "/api/export/params", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var p export.Params
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := export.ParamsFromSnapshot(sess.Snapshot(), "")
	if p != want {
		t.Fatalf("params = %+v, want %+v", p, want)
	}
	if p.CanvasW != 1080 || p.CanvasH != 1350 || p.Scale <= 0 {
		t.Fatalf("unexpected params %+v", p)
	}
}

// TestPresets verifies listing presets and switching to an unknown one.
func TestPresets(t *testing.T) {
	sess := authedSession(t)
	app := newTestApp(t, sess)

	rec := serve(app, httptest.NewRequest(http.MethodGet, "/api/presets", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp presetsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Active != preset.DefaultName || len(resp.Presets) != 1 {
		t.Fatalf("unexpected presets: %+v", resp)
	}

	bad := serve(app, httptest.NewRequest(http.MethodPost, "/api/preset/nope", nil))
	if bad.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown preset, got %d", bad.Code)
	}

	okRec := serve(app, httptest.NewRequest(http.MethodPost, "/api/preset/"+preset.DefaultName, nil))
	if okRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", okRec.Code, okRec.Body.String())
	}
	sel, err := preset.Load(app.cfg.SelectionPath)
	if err != nil || sel.Name != preset.DefaultName {
		t.Fatalf("selection not saved: %+v err=%v", sel, err)
	}
}

// TestRender_UsesActivePresetFrame verifies /api/render falls back to the
// frame of the active preset and follows preset switches.
func TestRender_UsesActivePresetFrame(t *testing.T) {
	sess := authedSession(t)
	app := newTestApp(t, sess)
	framePath := filepath.Join(t.TempDir(), "gold.png")
	if err := os.WriteFile(framePath, pngBytes(t, 108, 135), 0o600); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	gold := preset.Default()
	gold.Name = "gold"
	gold.FramePath = framePath
	catalog, err := preset.NewCatalog(gold)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	app.presets = catalog

	var frameArg string
	app.render.SetProber(func(ctx context.Context, path string) (ffmpeg.VideoInfo, error) {
		return ffmpeg.VideoInfo{Width: 320, Height: 240}, nil
	})
	app.render.SetRunner(func(ctx context.Context, args []string) error {
		for i, a := range args {
			if a == "-i" && strings.HasSuffix(args[i+1], "frame.png") {
				frameArg = args[i+1]
			}
		}
		return os.WriteFile(args[len(args)-1], []byte("RENDERED"), 0o600)
	})
	render := func() *httptest.ResponseRecorder {
		params, _ := json.Marshal(export.ParamsFromSnapshot(sess.Snapshot(), app.cfg.FrameURL))
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		_ = mw.WriteField("params", string(params))
		part, _ := mw.CreateFormFile("video", "in.mp4")
		_, _ = part.Write([]byte("VIDEO"))
		_ = mw.Close()
		req := httptest.NewRequest(http.MethodPost, "/api/render", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		return serve(app, req)
	}

	if rec := render(); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 while the active preset has no frame, got %d", rec.Code)
	}
	if rec := serve(app, httptest.NewRequest(http.MethodPost, "/api/preset/gold", nil)); rec.Code != http.StatusOK {
		t.Fatalf("preset switch failed: %d %s", rec.Code, rec.Body.String())
	}
	rec := render()
	if rec.Code != http.StatusOK || rec.Body.String() != "RENDERED" {
		t.Fatalf("expected render with the preset frame, got %d: %s", rec.Code, rec.Body.String())
	}
	if frameArg == "" {
		t.Fatalf("expected ffmpeg to receive the staged frame")
	}
}

// TestFrameHosts verifies FRAME_URL's host joins the allowlist.
func TestFrameHosts(t *testing.T) {
	cfg := config.Config{FrameHosts: []string{"cdn.example.com"}, FrameURL: "https://frames.example.org/a.png"}
	got := frameHosts(cfg)
	if len(got) != 2 || got[0] != "cdn.example.com" || got[1] != "frames.example.org" {
		t.Fatalf("unexpected hosts %q", got)
	}
	if got := frameHosts(config.Config{FrameURL: "/local/frame.png"}); len(got) != 0 {
		t.Fatalf("expected no hosts for a local frame, got %q", got)
	}
}

// authedSession returns a logged-in session.
func authedSession(t *testing.T) *session.Session {
	t.Helper()
	sess := session.New("pw")
	if !sess.Authenticate("pw") {
		t.Fatalf("expected authenticate success")
	}
	return sess
}

// testConfig returns a config suited to handler tests.
func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		PasswordMode:      true,
		DataDir:           t.TempDir(),
		SelectionPath:     filepath.Join(t.TempDir(), "preset.json"),
		FPS:               10,
		PreviewIntervalMs: 120,
		PreviewQuality:    60,
		PreviewWidth:      108,
		VideoMode:         session.VideoMJPEG,
	}
}

// newTestApp returns an App without ffmpeg or WebRTC.
func newTestApp(t *testing.T, sess *session.Session) *App {
	t.Helper()
	app := newApp(testConfig(t), sess, nil, signaling.ViewerReplace, log.New(io.Discard))
	t.Cleanup(func() {
		app.loadCancel()
		app.loads.Wait()
	})
	return app
}

// serve runs req through the full router.
func serve(app *App, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	app.Handler("").ServeHTTP(rec, req)
	return rec
}

// uploadRequest builds a multipart upload of data.
func uploadRequest(t *testing.T, name string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close form: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/media", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// uploadAndWait loads a small photo and returns its asset id.
func uploadAndWait(t *testing.T, app *App) string {
	t.Helper()
	rec := serve(app, uploadRequest(t, "photo.png", pngBytes(t, 20, 20)))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("upload failed: %d %s", rec.Code, rec.Body.String())
	}
	app.loads.Wait()
	if app.session.State() != session.StateReady {
		t.Fatalf("expected ready after upload, got %s", app.session.State())
	}
	return app.session.Asset().ID()
}

// pngBytes encodes a w x h gradient.
func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 4), B: uint8(x ^ y), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// assertErrorCode checks the JSON error body.
func assertErrorCode(t *testing.T, rec *httptest.ResponseRecorder, want errs.Code) {
	t.Helper()
	var body errs.Body
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, rec.Body.String())
	}
	if body.Error != want || body.Message == "" {
		t.Fatalf("unexpected error body: %+v", body)
	}
}
