// Package session holds runtime state for the active editor.
//
// One Session owns the loaded media asset, the frame preset and the placement
// state. Every mutation runs under a single mutex and bumps a revision counter;
// renderers read immutable snapshots.
package session

import (
	"image"
	"sync"

	"github.com/google/uuid"

	"github.com/frudas24/frameit/internal/compositor"
	"github.com/frudas24/frameit/internal/errs"
	"github.com/frudas24/frameit/internal/media"
	"github.com/frudas24/frameit/internal/placement"
	"github.com/frudas24/frameit/internal/preset"
)

// VideoWebRTC runs the RTP pipeline for WebRTC preview video.
const VideoWebRTC = "webrtc"

// VideoMJPEG runs the MJPEG preview pipeline only.
const VideoMJPEG = "mjpeg"

// State is the editor lifecycle state.
type State int

const (
	// StateEmpty has no media.
	StateEmpty State = iota
	// StateLoading is decoding or probing a new asset; mutations are rejected.
	StateLoading
	// StateReady has media and accepts edits.
	StateReady
	// StateDragging is Ready with a pointer drag in progress.
	StateDragging
)

// String returns the wire name of st.
func (st State) String() string {
	switch st {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateDragging:
		return "dragging"
	default:
		return "empty"
	}
}

// Snapshot represents a read-only view of the current session state.
type Snapshot struct {
	Authenticated bool
	VideoMode     string
	State         State
	AssetID       string
	Kind          media.Kind
	Media         image.Image
	MediaW        int
	MediaH        int
	Transform     placement.Transform
	MinScale      float64
	MaxScale      float64
	Slider        float64
	Preset        preset.Preset
	Frame         image.Image
	Filters       compositor.Filters
	Message       string
	Revision      uint64
}

// Scene returns the compositor input for this snapshot.
func (s Snapshot) Scene(bg compositor.Background) compositor.Scene {
	return compositor.Scene{
		CanvasW:    s.Preset.CanvasW,
		CanvasH:    s.Preset.CanvasH,
		Media:      s.Media,
		MediaW:     s.MediaW,
		MediaH:     s.MediaH,
		Transform:  s.Transform,
		Frame:      s.Frame,
		Filters:    s.Filters,
		Background: bg,
	}
}

// Session holds runtime state for the active editor.
type Session struct {
	mu            sync.RWMutex
	password      string
	authenticated bool
	authDisabled  bool
	videoMode     string

	state     State
	asset     media.Asset
	pendingID string
	place     *placement.State
	slider    float64
	preset    preset.Preset
	frame     *media.FrameAsset
	filters   compositor.Filters
	message   string
	revision  uint64
	changed   chan struct{}
}

// New returns a session with the given password and the default preset.
func New(password string) *Session {
	s := &Session{
		password:  password,
		videoMode: VideoMJPEG,
		changed:   make(chan struct{}),
	}
	s.installPreset(preset.Default(), nil)
	return s
}

// Authenticate validates the password and marks the session as authenticated.
func (s *Session) Authenticate(pass string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pass != "" && pass == s.password {
		s.authenticated = true
		return true
	}
	s.authenticated = false
	return false
}

// Logout clears authentication state.
func (s *Session) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authenticated = false
}

// DisableAuth makes every caller authenticated, for password-less dev mode.
func (s *Session) DisableAuth() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authDisabled = true
}

// IsAuthenticated reports whether the session is authenticated.
func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticated || s.authDisabled
}

// SetVideoMode sets which preview pipeline the server should run.
func (s *Session) SetVideoMode(mode string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch mode {
	case VideoWebRTC:
		s.videoMode = VideoWebRTC
	default:
		s.videoMode = VideoMJPEG
	}
	s.bumpLocked()
}

// VideoMode returns the active preview pipeline mode.
func (s *Session) VideoMode() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.videoMode
}

// SetPreset switches the frame, canvas and cutout. Loaded media is refit.
func (s *Session) SetPreset(p preset.Preset, frame *media.FrameAsset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.installPreset(p, frame)
	if s.asset != nil {
		s.place.Reset(s.asset.NativeWidth(), s.asset.NativeHeight())
	}
	s.bumpLocked()
}

// installPreset replaces the placement state for p. Callers hold mu or own s.
func (s *Session) installPreset(p preset.Preset, frame *media.FrameAsset) {
	policy := placement.DefaultPolicy()
	policy.Mode = p.PlacementMode()
	s.preset = p
	s.frame = frame
	s.place = placement.NewState(policy, float64(p.CanvasW), float64(p.CanvasH), p.CutoutRect())
	s.place.SetOnScale(func(v float64) { s.slider = v })
	s.slider = s.place.Transform().Scale
}

// Preset returns the active preset.
func (s *Session) Preset() preset.Preset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.preset
}

// FrameAsset returns the active frame, or nil when none is loaded.
func (s *Session) FrameAsset() *media.FrameAsset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frame
}

// BeginLoad releases the current asset and enters Loading under a fresh
// asset id. The returned id must be passed to CompleteLoad or FailLoad.
func (s *Session) BeginLoad() (string, error) {
	id := uuid.NewString()
	s.mu.Lock()
	old := s.asset
	s.asset = nil
	s.pendingID = id
	s.state = StateLoading
	s.place.Clear()
	s.message = "Loading…"
	s.bumpLocked()
	s.mu.Unlock()

	if old != nil {
		if err := old.Release(); err != nil {
			return id, errs.Wrap(errs.CodeInternal, err, "Could not release the previous file.")
		}
	}
	return id, nil
}

// CompleteLoad installs a decoded asset if id is still the pending load.
// A stale asset is released and STALE_ASSET is returned.
func (s *Session) CompleteLoad(id string, a media.Asset) error {
	s.mu.Lock()
	if s.state != StateLoading || s.pendingID != id || a == nil {
		s.mu.Unlock()
		if a != nil {
			_ = a.Release()
		}
		return errs.New(errs.CodeStaleAsset, "That upload was replaced.")
	}
	s.asset = a
	s.pendingID = ""
	s.state = StateReady
	s.place.Reset(a.NativeWidth(), a.NativeHeight())
	s.message = ""
	s.bumpLocked()
	s.mu.Unlock()
	return nil
}

// FailLoad returns to Empty with a user-visible message if id is still
// pending. It reports whether the session changed.
func (s *Session) FailLoad(id string, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateLoading || s.pendingID != id {
		return false
	}
	s.pendingID = ""
	s.state = StateEmpty
	s.message = errs.UserMessage(err)
	s.bumpLocked()
	return true
}

// Clear drops the media, releasing its resources, and returns to Empty.
func (s *Session) Clear() error {
	s.mu.Lock()
	old := s.asset
	s.asset = nil
	s.pendingID = ""
	s.state = StateEmpty
	s.place.Clear()
	s.message = ""
	s.bumpLocked()
	s.mu.Unlock()
	if old != nil {
		return old.Release()
	}
	return nil
}

// IsCurrent reports whether id names the loaded or pending asset.
func (s *Session) IsCurrent(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id == "" {
		return false
	}
	if s.pendingID == id {
		return true
	}
	return s.asset != nil && s.asset.ID() == id
}

// Asset returns the loaded asset, or nil.
func (s *Session) Asset() media.Asset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.asset
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Update runs fn against the placement state. It fails with NOT_READY unless
// media is loaded.
func (s *Session) Update(fn func(*placement.State)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady && s.state != StateDragging {
		return errs.New(errs.CodeNotReady, "Please upload an image first.")
	}
	before := s.place.Transform()
	fn(s.place)
	if s.place.Transform() != before {
		s.bumpLocked()
	}
	return nil
}

// BeginDrag enters Dragging.
func (s *Session) BeginDrag() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady && s.state != StateDragging {
		return errs.New(errs.CodeNotReady, "Please upload an image first.")
	}
	if s.state != StateDragging {
		s.state = StateDragging
		s.bumpLocked()
	}
	return nil
}

// EndDrag returns from Dragging to Ready.
func (s *Session) EndDrag() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDragging {
		s.state = StateReady
		s.bumpLocked()
	}
}

// SetFilters stores clamped media filters.
func (s *Session) SetFilters(f compositor.Filters) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters = f.Clamp()
	s.bumpLocked()
}

// SetMessage sets the user-visible status line.
func (s *Session) SetMessage(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.message == msg {
		return
	}
	s.message = msg
	s.bumpLocked()
}

// Revision changes whenever the rendered output could change, including when
// a playing video decodes a new frame.
func (s *Session) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revisionLocked()
}

// Changed returns a channel closed at the next state change.
func (s *Session) Changed() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.changed
}

// Snapshot returns a copy of the current session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	minS, maxS := s.place.Bounds()
	snap := Snapshot{
		Authenticated: s.authenticated || s.authDisabled,
		VideoMode:     s.videoMode,
		State:         s.state,
		Transform:     s.place.Transform(),
		MinScale:      minS,
		MaxScale:      maxS,
		Slider:        s.slider,
		Preset:        s.preset,
		Filters:       s.filters,
		Message:       s.message,
		Revision:      s.revisionLocked(),
	}
	if s.frame != nil {
		snap.Frame = s.frame.Image
	}
	if s.asset != nil {
		snap.AssetID = s.asset.ID()
		snap.Kind = s.asset.Kind()
		snap.Media = s.asset.CurrentVisual()
		snap.MediaW = s.asset.NativeWidth()
		snap.MediaH = s.asset.NativeHeight()
	}
	return snap
}

// revisionLocked folds the asset frame sequence into the revision.
func (s *Session) revisionLocked() uint64 {
	rev := s.revision
	if seq, ok := s.asset.(media.Sequenced); ok {
		rev += seq.FrameSeq()
	}
	return rev
}

// bumpLocked records a change and wakes Changed waiters.
func (s *Session) bumpLocked() {
	s.revision++
	close(s.changed)
	s.changed = make(chan struct{})
}
