package webrtc

import (
	"sync"

	"github.com/pion/rtp"
)

// maxTimestampJump is one second of the 90 kHz video clock. Larger input
// deltas are treated as an encoder restart.
const maxTimestampJump = 90000

// defaultTimestampStep is one frame at 30 fps on the 90 kHz clock.
const defaultTimestampStep = 3000

// rtpWriteParams overrides header fields when non-zero.
type rtpWriteParams struct {
	payloadType uint8
	ssrc        uint32
}

// rtpRewriter keeps the outgoing stream continuous across ffmpeg restarts:
// sequence numbers stay contiguous, packets of one input frame share one
// output timestamp, and timestamps never step backwards.
type rtpRewriter struct {
	mu        sync.Mutex
	started   bool
	seq       uint16
	lastInTS  uint32
	lastOutTS uint32
	step      uint32
}

// Apply rewrites p in place.
func (rw *rtpRewriter) Apply(p *rtp.Packet, params rtpWriteParams) {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if !rw.started {
		rw.started = true
		rw.seq = p.SequenceNumber
		rw.lastInTS = p.Timestamp
		rw.lastOutTS = p.Timestamp
		rw.step = defaultTimestampStep
	} else {
		rw.seq++
		if p.Timestamp != rw.lastInTS {
			delta := p.Timestamp - rw.lastInTS
			if delta > maxTimestampJump {
				delta = rw.step
			} else {
				rw.step = delta
			}
			rw.lastOutTS += delta
			rw.lastInTS = p.Timestamp
		}
	}
	p.SequenceNumber = rw.seq
	p.Timestamp = rw.lastOutTS
	if params.payloadType != 0 {
		p.PayloadType = params.payloadType
	}
	if params.ssrc != 0 {
		p.SSRC = params.ssrc
	}
}
