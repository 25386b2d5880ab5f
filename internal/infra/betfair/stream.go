package betfair

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"net"
	"sync"
	"time"

	"github.com/dalbhanjan-om/BetfairOdds-Backend/internal/domain"
)

const (
	// frameTerminator ends every stream frame, inbound and outbound.
	frameTerminator = "\r\n"

	dialTimeout = 10 * time.Second
)

// Request identifiers for the fixed two-frame handshake. Status replies
// echo these ids.
const (
	AuthRequestID      = 1
	SubscribeRequestID = 2
)

// FrameDecoder reassembles CRLF-terminated frames from a raw byte
// stream. The socket may deliver partial or multiple frames per read;
// the decoder buffers the unterminated tail and discards empty
// fragments.
type FrameDecoder struct {
	buf []byte
}

// Push appends a chunk and returns every complete frame it closes.
func (d *FrameDecoder) Push(chunk []byte) [][]byte {
	d.buf = append(d.buf, chunk...)

	var frames [][]byte
	for {
		idx := bytes.Index(d.buf, []byte(frameTerminator))
		if idx < 0 {
			break
		}
		frame := d.buf[:idx]
		d.buf = d.buf[idx+len(frameTerminator):]
		if len(bytes.TrimSpace(frame)) == 0 {
			continue
		}
		out := make([]byte, len(frame))
		copy(out, frame)
		frames = append(frames, out)
	}

	// Keep the remainder in a fresh slice so released frames do not pin
	// the old backing array.
	if len(frames) > 0 {
		rest := make([]byte, len(d.buf))
		copy(rest, d.buf)
		d.buf = rest
	}
	return frames
}

// Pending returns the number of buffered bytes awaiting a terminator.
func (d *FrameDecoder) Pending() int { return len(d.buf) }

// StreamConn is one live encrypted stream socket. Exclusively owned by a
// single market worker and destroyed on cleanup.
type StreamConn struct {
	conn    net.Conn
	writeMu sync.Mutex
}

// DialStream opens a TLS connection to the streaming endpoint.
func DialStream(ctx context.Context, addr string) (*StreamConn, error) {
	dialer := &net.Dialer{Timeout: dialTimeout}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, domain.NewFatalNetworkError("dial", err)
	}
	conn, err := tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{ServerName: host})
	if err != nil {
		return nil, domain.NewNetworkError("dial", err)
	}
	return &StreamConn{conn: conn}, nil
}

// Authenticate sends the authentication frame. Must be the first frame
// on a new connection.
func (c *StreamConn) Authenticate(appKey, session string) error {
	return c.writeFrame(authenticationMessage{
		Op:      opAuthentication,
		ID:      AuthRequestID,
		AppKey:  appKey,
		Session: session,
	})
}

// Subscribe sends the market subscription frame for exactly one market.
func (c *StreamConn) Subscribe(cfg domain.MarketConfig) error {
	return c.writeFrame(marketSubscriptionMessage{
		Op:                  opMarketSubscription,
		ID:                  SubscribeRequestID,
		SegmentationEnabled: true,
		HeartbeatMS:         cfg.HeartbeatMS,
		MarketFilter:        marketFilter{MarketIDs: []string{cfg.MarketID}},
		MarketDataFilter: marketDataFilter{
			LadderLevels: cfg.LadderLevels,
			Fields:       cfg.Fields,
		},
	})
}

// Read fills p with raw socket bytes. Framing is the caller's concern.
func (c *StreamConn) Read(p []byte) (int, error) {
	n, err := c.conn.Read(p)
	if err != nil {
		return n, domain.NewNetworkError("read", err)
	}
	return n, nil
}

// Close destroys the socket. Safe to call more than once.
func (c *StreamConn) Close() error {
	return c.conn.Close()
}

func (c *StreamConn) writeFrame(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, frameTerminator...)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.conn.Write(data); err != nil {
		return domain.NewNetworkError("write", err)
	}
	return nil
}
