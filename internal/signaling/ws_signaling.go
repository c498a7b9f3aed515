// Package signaling exchanges WebRTC offers, answers and ICE candidates with
// the preview viewer over a websocket.
package signaling

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"

	pub "github.com/frudas24/frameit/internal/webrtc"
)

// ViewerPolicy controls how additional viewers are handled.
type ViewerPolicy int

const (
	// ViewerReject rejects new connections when one is active.
	ViewerReject ViewerPolicy = iota
	// ViewerReplace closes the active connection when a new one arrives.
	ViewerReplace
)

var (
	errViewerBusy   = errors.New("viewer already connected")
	errViewerGone   = errors.New("viewer no longer active")
	errNoPublishing = errors.New("webrtc preview unavailable")
)

// viewer is one connected preview client.
type viewer struct {
	id   uint64
	conn *websocket.Conn
	peer *webrtc.PeerConnection
}

// Server handles WebRTC signaling over WebSocket for the single preview
// viewer and tells it when the encoder restarts with a new frame size.
type Server struct {
	mu        sync.Mutex
	writeMu   sync.Mutex
	upgrader  websocket.Upgrader
	publisher *pub.Publisher
	policy    ViewerPolicy
	authFn    func() bool
	active    *viewer
	nextID    uint64
	stream    Stream
	logger    *log.Logger
}

// NewServer creates a signaling server with the chosen viewer policy and auth function.
func NewServer(publisher *pub.Publisher, policy ViewerPolicy, authFn func() bool, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		publisher: publisher,
		policy:    policy,
		authFn:    authFn,
		logger:    logger.WithPrefix("signal"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request and runs the viewer until it leaves or is
// replaced.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.authFn != nil && !s.authFn() {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if s.publisher == nil {
		http.Error(w, errNoPublishing.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	v, err := s.admit(conn)
	if err != nil {
		s.logger.Info("viewer rejected", "remote", r.RemoteAddr, "reason", err)
		closeWith(conn, websocket.ClosePolicyViolation, err.Error())
		return
	}
	defer s.release(v)
	s.logger.Debug("viewer connected", "viewer", v.id, "remote", r.RemoteAddr)

	peer, err := s.publisher.NewPeer()
	if err != nil {
		s.logger.Warn("new peer failed", "err", err)
		return
	}
	if !s.bindPeer(v, peer) {
		_ = peer.Close()
		return
	}
	peer.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		candidate := c.ToJSON()
		_ = s.send(v, Message{T: TypeICE, Candidate: &candidate})
	})

	if st := s.Stream(); st.Known() {
		_ = s.send(v, Message{T: TypeReady, Stream: &st})
	}
	s.serveViewer(v, peer)
}

// serveViewer reads viewer messages until the socket closes or the viewer
// says bye.
func (s *Server) serveViewer(v *viewer, peer *webrtc.PeerConnection) {
	for {
		var msg Message
		if err := v.conn.ReadJSON(&msg); err != nil {
			return
		}
		if err := msg.Validate(); err != nil {
			s.logger.Debug("message ignored", "viewer", v.id, "err", err)
			continue
		}
		var err error
		switch msg.T {
		case TypeBye:
			s.logger.Debug("viewer left", "viewer", v.id)
			return
		case TypeOffer:
			err = s.answer(v, peer, msg.SDP)
		case TypeICE:
			if msg.Candidate != nil {
				err = peer.AddICECandidate(*msg.Candidate)
			}
		}
		if err != nil {
			s.logger.Warn("signaling failed", "viewer", v.id, "t", msg.T, "err", err)
			return
		}
	}
}

// Announce records the preview stream produced by a pipeline (re)start and
// asks the active viewer to renegotiate.
func (s *Server) Announce(reason string, st Stream) {
	s.mu.Lock()
	s.stream = st
	v := s.active
	s.mu.Unlock()
	if v == nil {
		return
	}
	if err := s.send(v, Message{T: TypeRestart, Reason: reason, Stream: &st}); err != nil {
		s.logger.Debug("restart not delivered", "err", err)
	}
}

// Stream returns the last announced preview stream.
func (s *Server) Stream() Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream
}

// admit registers conn as the active viewer under the server's policy.
func (s *Server) admit(conn *websocket.Conn) (*viewer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old := s.active; old != nil {
		if s.policy != ViewerReplace {
			return nil, errViewerBusy
		}
		closeWith(old.conn, websocket.CloseNormalClosure, "replaced")
		s.active = nil
	}
	s.nextID++
	v := &viewer{id: s.nextID, conn: conn}
	s.active = v
	return v, nil
}

// bindPeer stores peer on v if v is still the active viewer.
func (s *Server) bindPeer(v *viewer, peer *webrtc.PeerConnection) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != v {
		return false
	}
	v.peer = peer
	return true
}

// release closes v's peer and socket and clears it if it is still active.
func (s *Server) release(v *viewer) {
	s.mu.Lock()
	if s.active == v {
		s.active = nil
	}
	peer := v.peer
	s.mu.Unlock()
	if peer != nil {
		_ = peer.Close()
	}
	_ = v.conn.Close()
}

// answer applies an SDP offer and replies with an answer that also carries
// the current stream description.
func (s *Server) answer(v *viewer, peer *webrtc.PeerConnection, sdp string) error {
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}
	if err := peer.SetRemoteDescription(offer); err != nil {
		return err
	}
	answer, err := peer.CreateAnswer(nil)
	if err != nil {
		return err
	}
	gathered := webrtc.GatheringCompletePromise(peer)
	if err := peer.SetLocalDescription(answer); err != nil {
		return err
	}
	<-gathered
	local := peer.LocalDescription()
	if local == nil {
		return errors.New("missing local description")
	}
	reply := Message{T: TypeAnswer, SDP: local.SDP}
	if st := s.Stream(); st.Known() {
		reply.Stream = &st
	}
	return s.send(v, reply)
}

// send writes msg to v while it is the active viewer.
func (s *Server) send(v *viewer, msg Message) error {
	s.mu.Lock()
	active := s.active == v
	s.mu.Unlock()
	if !active {
		return errViewerGone
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = v.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return v.conn.WriteJSON(msg)
}

// closeWith sends a close frame with code and reason, then closes conn.
func closeWith(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = conn.Close()
}
