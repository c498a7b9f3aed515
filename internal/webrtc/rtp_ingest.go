package webrtc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pion/rtp"
)

// readPoll bounds how long a blocked read delays a stop.
const readPoll = 500 * time.Millisecond

// rtpSink receives rewritten packets; the preview track in production.
type rtpSink interface {
	WriteRTP(p *rtp.Packet) error
}

// rtpListener reads the encoder's RTP output from one loopback port.
type rtpListener struct {
	mu      sync.Mutex
	conn    *net.UDPConn
	cancel  context.CancelFunc
	done    chan struct{}
	rewrite *rtpRewriter
	logger  *log.Logger
}

// newRTPListener binds a loopback UDP port for RTP ingestion. Port 0 picks a
// free port.
func newRTPListener(port int, rewrite *rtpRewriter, logger *log.Logger) (*rtpListener, error) {
	addr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}
	return &rtpListener{conn: conn, rewrite: rewrite, logger: logger}, nil
}

// localAddr returns the bound address, nil once closed.
func (l *rtpListener) localAddr() *net.UDPAddr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	addr, _ := l.conn.LocalAddr().(*net.UDPAddr)
	return addr
}

// start begins forwarding RTP packets into out.
func (l *rtpListener) start(out rtpSink) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return fmt.Errorf("rtp listener not initialized")
	}
	if l.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.done = make(chan struct{})
	go l.loop(ctx, l.conn, out, l.done)
	return nil
}

// stop cancels the forward loop and waits for it to exit.
func (l *rtpListener) stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

// close stops forwarding and closes the UDP socket.
func (l *rtpListener) close() {
	l.stop()
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil {
		_ = l.conn.Close()
		l.conn = nil
	}
}

// loop reads RTP packets, rewrites them and forwards them to the track.
func (l *rtpListener) loop(ctx context.Context, conn *net.UDPConn, out rtpSink, done chan struct{}) {
	defer close(done)
	buf := make([]byte, 1600)
	var forwarded uint64
	for ctx.Err() == nil {
		_ = conn.SetReadDeadline(time.Now().Add(readPoll))
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			l.logger.Debug("rtp read stopped", "err", err)
			return
		}
		var pkt rtp.Packet
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			continue
		}
		l.rewrite.Apply(&pkt, rtpWriteParams{})
		if err := out.WriteRTP(&pkt); err != nil && debugRTPEnabled() {
			l.logger.Debug("rtp write failed", "err", err)
		}
		forwarded++
		if debugRTPEnabled() && forwarded%300 == 0 {
			l.logger.Debug("rtp forwarded", "packets", forwarded, "seq", pkt.SequenceNumber, "ts", pkt.Timestamp)
		}
	}
}
