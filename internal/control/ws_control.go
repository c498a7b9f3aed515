// Package control handles the editor input protocol and gesture mapping.
package control

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/frudas24/frameit/internal/errs"
	"github.com/frudas24/frameit/internal/placement"
	"github.com/frudas24/frameit/internal/session"
	"github.com/frudas24/frameit/internal/viewport"
)

const stateWriteTimeout = 2 * time.Second

// Server handles websocket control input and pushes editor state back.
type Server struct {
	mu               sync.Mutex
	upgrader         websocket.Upgrader
	session          *session.Session
	gestures         *GestureState
	joy              *Joystick
	tilt             *Tilt
	view             viewport.Viewport
	onPipelineChange func(reason string)
	logger           *log.Logger
	conn             *websocket.Conn
	kick             chan struct{}
}

// NewServer creates a control websocket server.
func NewServer(sess *session.Session, onPipelineChange func(reason string), logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		session:  sess,
		gestures: NewGestureState(),
		joy:      NewJoystick(),
		tilt:     &Tilt{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		onPipelineChange: onPipelineChange,
		logger:           logger.WithPrefix("control"),
		kick:             make(chan struct{}, 1),
	}
}

// ServeHTTP upgrades the connection and processes control messages.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !s.session.IsAuthenticated() {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	if err := s.acceptConn(conn); err != nil {
		_ = conn.Close()
		return
	}
	defer s.cleanupConn(conn)

	done := make(chan struct{})
	defer close(done)
	go s.pushLoop(conn, done)

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if err := s.HandleMessage(msg); err != nil {
			s.logger.Warn("control message failed", "t", msg.T, "err", err)
			return
		}
	}
}

// acceptConn ensures only one active control connection exists.
func (s *Server) acceptConn(conn *websocket.Conn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return fmt.Errorf("control connection already active")
	}
	s.conn = conn
	return nil
}

// cleanupConn clears the active connection and any held input when closed.
func (s *Server) cleanupConn(conn *websocket.Conn) {
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.joy.ReleaseAll()
	if s.gestures.Dragging() {
		s.gestures.Reset()
		s.session.EndDrag()
	}
	s.mu.Unlock()
	_ = conn.Close()
}

// pushLoop writes a state message on connect and after every change.
func (s *Server) pushLoop(conn *websocket.Conn, done <-chan struct{}) {
	for {
		changed := s.session.Changed()
		_ = conn.SetWriteDeadline(time.Now().Add(stateWriteTimeout))
		if err := conn.WriteJSON(s.StateMessage()); err != nil {
			return
		}
		select {
		case <-done:
			return
		case <-changed:
		case <-s.kick:
		}
	}
}

// notifyClient wakes the push loop for changes held outside the session.
func (s *Server) notifyClient() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// StateMessage builds the state push for the current session.
func (s *Server) StateMessage() StateMessage {
	snap := s.session.Snapshot()
	s.mu.Lock()
	speed, tilt := s.joy.Speed(), s.tilt.Enabled()
	s.mu.Unlock()
	msg := StateMessage{
		T:         "state",
		State:     snap.State.String(),
		AssetID:   snap.AssetID,
		Transform: snap.Transform,
		Slider:    snap.Slider,
		Min:       snap.MinScale,
		Max:       snap.MaxScale,
		Speed:     speed,
		Tilt:      tilt,
		Video:     snap.VideoMode,
		Preset:    snap.Preset.Name,
		CanvasW:   snap.Preset.CanvasW,
		CanvasH:   snap.Preset.CanvasH,
		Filters:   snap.Filters,
		Msg:       snap.Message,
	}
	if snap.AssetID != "" {
		msg.Kind = snap.Kind.String()
	}
	return msg
}

// HandleMessage dispatches a single control message. Edits without loaded
// media are ignored.
func (s *Server) HandleMessage(msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.handleLocked(msg)
	if errs.Is(err, errs.CodeNotReady) {
		return nil
	}
	return err
}

// handleLocked dispatches msg with s.mu held.
func (s *Server) handleLocked(msg Message) error {
	ready := s.ready()
	switch msg.T {
	case "viewport":
		if msg.Rect != nil {
			s.view = *msg.Rect
		}
		return nil
	case "down":
		x, y := s.toCanvas(msg.X, msg.Y)
		return s.applyActions(s.gestures.HandleDown(ready, msg.ID, x, y, s.session.Snapshot().Transform))
	case "move":
		x, y := s.toCanvas(msg.X, msg.Y)
		return s.applyActions(s.gestures.HandleMove(ready, msg.ID, x, y))
	case "up":
		return s.applyActions(s.gestures.HandleUp(msg.ID, msg.Touch))
	case "cancel":
		return s.applyActions(s.gestures.HandleCancel())
	case "dblclick":
		return s.applyActions([]Action{{Type: ActToggleZoom}})
	case "zoom":
		return s.applyActions([]Action{{Type: ActZoomTo, Value: msg.Value}})
	case "pinch":
		if msg.Value <= 0 {
			return nil
		}
		return s.applyActions([]Action{{Type: ActZoomBy, Value: msg.Value}})
	case "rotate":
		return s.applyActions([]Action{{Type: ActRotate}})
	case "rotateTo":
		return s.applyActions([]Action{{Type: ActRotateTo, Value: msg.Value}})
	case "fit":
		return s.applyActions([]Action{{Type: ActFit}})
	case "center":
		return s.applyActions([]Action{{Type: ActCenter}})
	case "key":
		return s.applyActions(ActionsForKey(ready, msg.Key))
	case "joy":
		on := msg.On != nil && *msg.On
		s.joy.Press(msg.Dir, on)
		return nil
	case "joySpeed":
		s.joy.CycleSpeed()
		s.notifyClient()
		return nil
	case "tilt":
		if msg.Enabled == nil {
			return nil
		}
		if s.tilt.SetEnabled(*msg.Enabled) {
			s.notifyClient()
			if !*msg.Enabled {
				return s.applyActions([]Action{{Type: ActCenter}})
			}
		}
		return nil
	case "orient":
		s.tilt.Orient(msg.Gamma, msg.Beta)
		return nil
	case "filters":
		if msg.Filters != nil {
			s.session.SetFilters(*msg.Filters)
		}
		return nil
	case "clear":
		s.gestures.Reset()
		s.joy.ReleaseAll()
		if err := s.session.Clear(); err != nil {
			s.logger.Warn("clear: release failed", "err", err)
		}
		return nil
	case "setVideo":
		s.session.SetVideoMode(msg.Video)
		s.notifyPipeline("video")
		return nil
	default:
		return nil
	}
}

// Tick advances held joystick directions and tilt panning by one frame.
func (s *Server) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.joy.Active() {
		dx, dy := s.joy.Step()
		_ = s.session.Update(func(p *placement.State) { p.Nudge(dx, dy) })
	}
	if s.tilt.Enabled() {
		_ = s.session.Update(s.tilt.Step)
	}
}

// ready reports whether media edits are accepted.
func (s *Server) ready() bool {
	st := s.session.State()
	return st == session.StateReady || st == session.StateDragging
}

// toCanvas maps client coordinates into canvas pixels.
func (s *Server) toCanvas(x, y float64) (float64, float64) {
	p := s.session.Preset()
	return s.view.ToCanvas(x, y, p.CanvasW, p.CanvasH)
}

// applyActions executes actions against the session.
func (s *Server) applyActions(actions []Action) error {
	for _, action := range actions {
		if err := s.applyAction(action); err != nil {
			return err
		}
	}
	return nil
}

// applyAction executes a single action.
func (s *Server) applyAction(action Action) error {
	switch action.Type {
	case ActBeginDrag:
		return s.session.BeginDrag()
	case ActEndDrag:
		s.session.EndDrag()
		return nil
	default:
		return s.session.Update(action.applyTo)
	}
}

// notifyPipeline notifies the app about pipeline-relevant changes.
func (s *Server) notifyPipeline(reason string) {
	if s.onPipelineChange != nil {
		s.onPipelineChange(reason)
	}
}
