// Package webrtc publishes the rendered preview as an H264 WebRTC track.
package webrtc

import (
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v3"
)

// Track identifiers announced in the SDP and to the signaling viewer.
const (
	TrackID  = "preview"
	StreamID = "frameit"
)

// Publisher owns the single viewer peer connection and the preview track fed
// from the ffmpeg RTP encoder. The RTP rewriter outlives listeners so the
// track stays continuous when the encoder is restarted on a new port.
type Publisher struct {
	mu     sync.Mutex
	api    *webrtc.API
	peer   *webrtc.PeerConnection
	track  *webrtc.TrackLocalStaticRTP
	sink   rtpSink
	logger *log.Logger

	rewrite     rtpRewriter
	rtpListener *rtpListener
}

// NewPublisher initializes a WebRTC publisher with default codecs/interceptors.
func NewPublisher(logger *log.Logger) (*Publisher, error) {
	if logger == nil {
		logger = log.Default()
	}
	media := &webrtc.MediaEngine{}
	if err := media.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	interceptors := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(media, interceptors); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(media),
		webrtc.WithInterceptorRegistry(interceptors),
	)

	return &Publisher{api: api, logger: logger.WithPrefix("webrtc")}, nil
}

// Track returns the H264 RTP track, creating it if needed.
func (p *Publisher) Track() (*webrtc.TrackLocalStaticRTP, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ensureTrack()
}

// NewPeer creates a new peer connection and attaches the video track.
func (p *Publisher) NewPeer() (*webrtc.PeerConnection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.peer != nil {
		_ = p.peer.Close()
		p.peer = nil
	}

	peer, err := p.api.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return nil, err
	}

	track, err := p.ensureTrack()
	if err != nil {
		_ = peer.Close()
		return nil, err
	}

	sender, err := peer.AddTrack(track)
	if err != nil {
		_ = peer.Close()
		return nil, err
	}

	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, rtcpErr := sender.Read(buf); rtcpErr != nil {
				return
			}
		}
	}()

	peer.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		p.logger.Debug("peer state", "state", state.String())
	})
	p.peer = peer
	return peer, nil
}

// ClosePeer closes the current peer connection.
func (p *Publisher) ClosePeer() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.peer != nil {
		_ = p.peer.Close()
		p.peer = nil
	}
}

// AttachRTP binds a local UDP port for RTP ingest.
func (p *Publisher) AttachRTP(port int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.rtpListener != nil {
		p.rtpListener.close()
		p.rtpListener = nil
	}

	listener, err := newRTPListener(port, &p.rewrite, p.logger)
	if err != nil {
		return err
	}
	p.rtpListener = listener
	return nil
}

// StartForwarding begins forwarding RTP packets into the WebRTC track.
func (p *Publisher) StartForwarding() error {
	p.mu.Lock()
	listener := p.rtpListener
	out := p.sink
	if out == nil && p.track != nil {
		out = p.track
	}
	p.mu.Unlock()

	if listener == nil || out == nil {
		return fmt.Errorf("rtp listener or track not ready")
	}
	return listener.start(out)
}

// StopForwarding stops RTP forwarding without closing the listener.
func (p *Publisher) StopForwarding() {
	p.mu.Lock()
	listener := p.rtpListener
	p.mu.Unlock()
	if listener != nil {
		listener.stop()
	}
}

// Close stops forwarding, releases the RTP port and closes the peer.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rtpListener != nil {
		p.rtpListener.close()
		p.rtpListener = nil
	}
	if p.peer != nil {
		_ = p.peer.Close()
		p.peer = nil
	}
}

// ensureTrack initializes the track if it does not already exist.
func (p *Publisher) ensureTrack() (*webrtc.TrackLocalStaticRTP, error) {
	if p.track != nil {
		return p.track, nil
	}
	track, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeH264},
		TrackID,
		StreamID,
	)
	if err != nil {
		return nil, err
	}
	p.track = track
	return track, nil
}
