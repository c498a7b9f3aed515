package session

import (
	"errors"
	"image/color"
	"testing"

	"github.com/frudas24/frameit/internal/compositor"
	"github.com/frudas24/frameit/internal/errs"
	"github.com/frudas24/frameit/internal/media"
	"github.com/frudas24/frameit/internal/placement"
	"github.com/frudas24/frameit/internal/preset"
	"github.com/frudas24/frameit/internal/testutil"
)

var white = color.RGBA{255, 255, 255, 255}

// loaded returns a session in Ready with a 2000x1000 image.
func loaded(t *testing.T) (*Session, *testutil.FakeAsset) {
	t.Helper()
	s := New("secret")
	id, err := s.BeginLoad()
	if err != nil {
		t.Fatalf("BeginLoad: %v", err)
	}
	a := testutil.NewFakeImage(id, 2000, 1000, white)
	if err := s.CompleteLoad(id, a); err != nil {
		t.Fatalf("CompleteLoad: %v", err)
	}
	return s, a
}

// TestAuthenticate_Success verifies successful authentication.
func TestAuthenticate_Success(t *testing.T) {
	s := New("secret")
	if !s.Authenticate("secret") {
		t.Fatalf("expected authentication to succeed")
	}
	if !s.IsAuthenticated() {
		t.Fatalf("expected authenticated state")
	}
}

// TestAuthenticate_Fail verifies failed authentication.
func TestAuthenticate_Fail(t *testing.T) {
	s := New("secret")
	if s.Authenticate("nope") {
		t.Fatalf("expected authentication to fail")
	}
	if s.IsAuthenticated() {
		t.Fatalf("expected unauthenticated state")
	}
}

// TestLogout verifies logout clears auth state.
func TestLogout(t *testing.T) {
	s := New("secret")
	s.Authenticate("secret")
	s.Logout()
	if s.IsAuthenticated() {
		t.Fatalf("expected unauthenticated state")
	}
}

// TestVideoMode_DefaultsToMJPEG verifies unknown modes fall back to MJPEG.
func TestVideoMode_DefaultsToMJPEG(t *testing.T) {
	s := New("secret")
	s.SetVideoMode(VideoWebRTC)
	if s.VideoMode() != VideoWebRTC {
		t.Fatalf("expected webrtc")
	}
	s.SetVideoMode("bogus")
	if s.VideoMode() != VideoMJPEG {
		t.Fatalf("expected mjpeg fallback")
	}
}

// TestLoad_ReadyAppliesCoverFit verifies completing a load fits the media into the cutout.
func TestLoad_ReadyAppliesCoverFit(t *testing.T) {
	s, _ := loaded(t)
	snap := s.Snapshot()
	if snap.State != StateReady || snap.MediaW != 2000 || snap.Kind != media.KindImage {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	tr := snap.Transform
	if tr.Scale != 0.822 || tr.PosX != -282 || tr.PosY != 177 {
		t.Fatalf("unexpected transform %+v", tr)
	}
	if snap.Slider != tr.Scale {
		t.Fatalf("expected slider mirror %v, got %v", tr.Scale, snap.Slider)
	}
	if snap.Message != "" {
		t.Fatalf("expected cleared message, got %q", snap.Message)
	}
}

// TestLoading_RejectsMutations verifies edits are refused until the asset is ready.
func TestLoading_RejectsMutations(t *testing.T) {
	s := New("secret")
	if err := s.Update(func(*placement.State) {}); !errs.Is(err, errs.CodeNotReady) {
		t.Fatalf("expected NOT_READY when empty, got %v", err)
	}
	if _, err := s.BeginLoad(); err != nil {
		t.Fatalf("BeginLoad: %v", err)
	}
	if s.State() != StateLoading {
		t.Fatalf("expected loading")
	}
	if err := s.Update(func(*placement.State) {}); !errs.Is(err, errs.CodeNotReady) {
		t.Fatalf("expected NOT_READY while loading, got %v", err)
	}
	if err := s.BeginDrag(); !errs.Is(err, errs.CodeNotReady) {
		t.Fatalf("expected NOT_READY drag, got %v", err)
	}
}

// TestCompleteLoad_StaleAssetReleased verifies a superseded load cannot install its asset.
func TestCompleteLoad_StaleAssetReleased(t *testing.T) {
	s := New("secret")
	first, _ := s.BeginLoad()
	second, _ := s.BeginLoad()
	stale := testutil.NewFakeImage(first, 10, 10, white)
	if err := s.CompleteLoad(first, stale); !errs.Is(err, errs.CodeStaleAsset) {
		t.Fatalf("expected STALE_ASSET, got %v", err)
	}
	if stale.Releases() != 1 {
		t.Fatalf("expected stale asset released")
	}
	if s.IsCurrent(first) || !s.IsCurrent(second) {
		t.Fatalf("unexpected liveness first=%v second=%v", s.IsCurrent(first), s.IsCurrent(second))
	}
	if err := s.CompleteLoad(second, testutil.NewFakeImage(second, 10, 10, white)); err != nil {
		t.Fatalf("CompleteLoad: %v", err)
	}
	if err := s.CompleteLoad(second, testutil.NewFakeImage(second, 10, 10, white)); !errs.Is(err, errs.CodeStaleAsset) {
		t.Fatalf("expected second completion to be stale, got %v", err)
	}
}

// TestBeginLoad_ReleasesPrevious verifies replacing media releases the old asset first.
func TestBeginLoad_ReleasesPrevious(t *testing.T) {
	s, a := loaded(t)
	if _, err := s.BeginLoad(); err != nil {
		t.Fatalf("BeginLoad: %v", err)
	}
	if a.Releases() != 1 {
		t.Fatalf("expected previous asset released, got %d", a.Releases())
	}
	if s.Asset() != nil || s.IsCurrent(a.ID()) {
		t.Fatalf("expected previous asset detached")
	}
	if s.Snapshot().Transform.Scale != 1 {
		t.Fatalf("expected identity transform while loading")
	}
}

// TestFailLoad_SetsMessage verifies a failed decode returns to Empty with a message.
func TestFailLoad_SetsMessage(t *testing.T) {
	s := New("secret")
	id, _ := s.BeginLoad()
	if s.FailLoad("other", errors.New("x")) {
		t.Fatalf("expected foreign id ignored")
	}
	if !s.FailLoad(id, errs.New(errs.CodeAssetLoad, "We couldn't read that video.")) {
		t.Fatalf("expected failure applied")
	}
	snap := s.Snapshot()
	if snap.State != StateEmpty || snap.Message != "We couldn't read that video." {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

// TestClear_ResetsAndReleases verifies Clear returns to Empty with the identity transform.
func TestClear_ResetsAndReleases(t *testing.T) {
	s, a := loaded(t)
	if err := s.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	snap := s.Snapshot()
	if snap.State != StateEmpty || snap.Media != nil || snap.AssetID != "" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if snap.Transform != (placement.Transform{Scale: 1}) {
		t.Fatalf("expected identity transform, got %+v", snap.Transform)
	}
	if a.Releases() != 1 {
		t.Fatalf("expected asset released")
	}
}

// TestUpdate_BumpsRevisionOnChange verifies only effective edits advance the revision.
func TestUpdate_BumpsRevisionOnChange(t *testing.T) {
	s, _ := loaded(t)
	rev := s.Revision()
	changed := s.Changed()
	if err := s.Update(func(*placement.State) {}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if s.Revision() != rev {
		t.Fatalf("expected no revision bump for a no-op")
	}
	if err := s.Update(func(p *placement.State) { p.Nudge(8, 0) }); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if s.Revision() != rev+1 {
		t.Fatalf("expected revision bump")
	}
	select {
	case <-changed:
	default:
		t.Fatalf("expected Changed to fire")
	}
}

// TestRevision_IncludesVideoFrames verifies new playback frames change the revision.
func TestRevision_IncludesVideoFrames(t *testing.T) {
	s, a := loaded(t)
	rev := s.Revision()
	a.Seq.Add(3)
	if s.Revision() != rev+3 {
		t.Fatalf("expected frame sequence folded into revision")
	}
}

// TestDrag_StateTransitions verifies Dragging is entered and left.
func TestDrag_StateTransitions(t *testing.T) {
	s, _ := loaded(t)
	if err := s.BeginDrag(); err != nil {
		t.Fatalf("BeginDrag: %v", err)
	}
	if s.State() != StateDragging {
		t.Fatalf("expected dragging")
	}
	if err := s.Update(func(p *placement.State) { p.Nudge(1, 1) }); err != nil {
		t.Fatalf("expected edits while dragging, got %v", err)
	}
	s.EndDrag()
	if s.State() != StateReady {
		t.Fatalf("expected ready")
	}
}

// TestSetPreset_RefitsMedia verifies switching presets refits loaded media.
func TestSetPreset_RefitsMedia(t *testing.T) {
	s, _ := loaded(t)
	p := preset.Preset{Name: "square", CanvasW: 1000, CanvasH: 1000, Cutout: preset.Rect{X: 0, Y: 0, W: 1000, H: 1000}}
	s.SetPreset(p, &media.FrameAsset{Image: testutil.Solid(100, 100, white)})
	snap := s.Snapshot()
	if snap.Preset.Name != "square" || snap.Frame == nil {
		t.Fatalf("unexpected preset %+v", snap.Preset)
	}
	if snap.Transform.Scale != 1 || snap.Transform.PosX != -500 || snap.Transform.PosY != 0 {
		t.Fatalf("unexpected refit %+v", snap.Transform)
	}
}

// TestSnapshot_Scene verifies the compositor input mirrors the snapshot.
func TestSnapshot_Scene(t *testing.T) {
	s, _ := loaded(t)
	s.SetFilters(compositor.Filters{Brightness: 400})
	scene := s.Snapshot().Scene(compositor.BackgroundWhite)
	if scene.CanvasW != 1080 || scene.CanvasH != 1350 || scene.MediaW != 2000 || scene.Media == nil {
		t.Fatalf("unexpected scene %+v", scene)
	}
	if scene.Filters.Brightness != 100 || scene.Background != compositor.BackgroundWhite {
		t.Fatalf("unexpected filters/background %+v", scene)
	}
}

// TestDisableAuth verifies password-less mode survives logout.
func TestDisableAuth(t *testing.T) {
	s := New("")
	s.DisableAuth()
	s.Logout()
	if !s.IsAuthenticated() || !s.Snapshot().Authenticated {
		t.Fatalf("expected auth disabled to report authenticated")
	}
}
