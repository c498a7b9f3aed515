package signaling

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pion/webrtc/v3"
)

// Message types exchanged with the preview viewer.
const (
	TypeOffer   = "offer"
	TypeAnswer  = "answer"
	TypeICE     = "ice"
	TypeReady   = "ready"
	TypeRestart = "restart"
	TypeBye     = "bye"
)

// Stream describes the preview track a viewer receives: its WebRTC ids and
// the encoded frame size, which follows the active preset's canvas.
type Stream struct {
	Track  string `json:"track"`
	Stream string `json:"stream"`
	Width  int    `json:"w"`
	Height int    `json:"h"`
	FPS    int    `json:"fps"`
}

// Known reports whether the stream has been announced.
func (s Stream) Known() bool { return s.Width > 0 && s.Height > 0 }

// Message is a websocket signaling payload.
type Message struct {
	T         string                   `json:"t"`
	SDP       string                   `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`
	Reason    string                   `json:"reason,omitempty"`
	Stream    *Stream                  `json:"stream,omitempty"`
}

// Validate checks a message received from the viewer.
func (m Message) Validate() error {
	switch m.T {
	case TypeOffer:
		if strings.TrimSpace(m.SDP) == "" {
			return errors.New("empty offer")
		}
	case TypeICE, TypeBye:
	default:
		return fmt.Errorf("unexpected message %q", m.T)
	}
	return nil
}
