// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package evkit

import (
	"errors"
	"fmt"
	"io"
	"time"

	log "github.com/sirupsen/logrus"
)

// DefaultReceiveTimeout bounds a single Receive call
const DefaultReceiveTimeout = 2 * time.Second

// DefaultQueueLimit is the number of indications buffered while a response is awaited
const DefaultQueueLimit = 1024

var (
	// ErrUnexpectedResponse is returned when a response other than the awaited one arrives
	ErrUnexpectedResponse = errors.New("unexpected response")
	// ErrDeviceError is returned when the board answers with an error packet
	ErrDeviceError = errors.New("device reported error")
)

// Version is the protocol engine generation reported by the board
type Version struct {
	Major         uint8
	Minor         uint8
	StreamSupport bool
}

// String returns the version as major.minor
func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Link runs request/response exchanges over a byte stream.
//
// A Link is not safe for concurrent use; it expects one owner issuing a request
// and then blocking for its response.
type Link struct {
	rw         io.ReadWriter
	encoder    *Encoder
	decoder    *Decoder
	stats      *Statistics
	timeout    time.Duration
	queueLimit int
	queue      []*Packet // indications received while waiting for a response
	ready      []*Packet // decoded but not yet consumed
	buf        []byte
	logger     log.FieldLogger
}

// LinkOption configures a Link
type LinkOption func(*Link)

// WithReceiveTimeout sets how long Receive waits before reporting a timeout
func WithReceiveTimeout(d time.Duration) LinkOption {
	return func(l *Link) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithQueueLimit bounds the number of buffered indications
func WithQueueLimit(n int) LinkOption {
	return func(l *Link) {
		if n > 0 {
			l.queueLimit = n
		}
	}
}

// WithLinkLogger sets the logger used for frame level diagnostics
func WithLinkLogger(logger log.FieldLogger) LinkOption {
	return func(l *Link) {
		l.logger = logger
	}
}

// NewLink creates a Link over rw. Reads on rw are expected to return (0, nil)
// when the underlying transport times out.
func NewLink(rw io.ReadWriter, opts ...LinkOption) *Link {
	l := &Link{
		rw:         rw,
		encoder:    NewEncoder(),
		decoder:    NewDecoder(),
		stats:      NewStatistics(),
		timeout:    DefaultReceiveTimeout,
		queueLimit: DefaultQueueLimit,
		buf:        make([]byte, 256),
		logger:     log.StandardLogger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Statistics returns the frame counters of this link
func (l *Link) Statistics() *Statistics {
	return l.stats
}

// Send encodes and writes a request packet
func (l *Link) Send(p *Packet) error {
	data, err := l.encoder.Encode(p)
	if err != nil {
		return err
	}
	l.logger.WithField("type", FormatMessageType(p.Type())).Debug("send")
	if _, err := l.rw.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", FormatMessageType(p.Type()), err)
	}
	return nil
}

// Receive blocks until a packet of type expect arrives, or until the receive
// timeout elapses, in which case payload is nil and err is nil.
//
// Pass MsgAny (or an indication type) to wait for stream data: the returned
// key is the macro id or interrupt index and payload the raw sample bytes.
// For responses the key is the macro id or interrupt index the board assigned
// (zero when the response carries none) and payload the raw CBOR body.
func (l *Link) Receive(expect uint8) (int, []byte, error) {
	p, err := l.ReceivePacket(expect)
	if err != nil || p == nil {
		return 0, nil, err
	}
	key, _ := AttributionKey(p)
	if IsIndication(p.Type()) {
		data, _ := p.Bytes(KeyIndicationData)
		return key, data, nil
	}
	payload := p.Payload()
	if payload == nil {
		payload = []byte{}
	}
	return key, payload, nil
}

// ReceivePacket is Receive returning the whole packet
func (l *Link) ReceivePacket(expect uint8) (*Packet, error) {
	wantData := expect == MsgAny || IsIndication(expect)
	if wantData {
		if p := l.dequeue(expect); p != nil {
			return p, nil
		}
	}

	deadline := time.Now().Add(l.timeout)
	for {
		p, err := l.next(deadline)
		if err != nil || p == nil {
			return nil, err
		}
		t := p.Type()

		switch {
		case IsIndication(t):
			if wantData && (expect == MsgAny || expect == t) {
				return p, nil
			}
			l.enqueue(p)

		case IsError(t):
			return nil, fmt.Errorf("%w: %s", ErrDeviceError, FormatPacket(p))

		case t == expect:
			return p, nil

		case IsResponse(t) && !wantData:
			return nil, fmt.Errorf("%w: got %s, want %s", ErrUnexpectedResponse,
				FormatMessageType(t), FormatMessageType(expect))

		default:
			l.logger.WithField("type", FormatMessageType(t)).Debug("discarding stray packet")
		}
	}
}

// QueryVersion asks the board for its protocol engine generation
func (l *Link) QueryVersion() (Version, error) {
	if err := l.Send(NewVersionRequest()); err != nil {
		return Version{}, err
	}
	p, err := l.ReceivePacket(MsgVersionResp)
	if err != nil {
		return Version{}, err
	}
	if p == nil {
		return Version{}, fmt.Errorf("no %s within %s", FormatMessageType(MsgVersionResp), l.timeout)
	}
	major, _ := p.Uint(KeyVersionMajor)
	minor, _ := p.Uint(KeyVersionMinor)
	stream, _ := p.Bool(KeyStreamSupport)
	return Version{Major: uint8(major), Minor: uint8(minor), StreamSupport: stream}, nil
}

// Flush drops buffered indications and any partially decoded frame
func (l *Link) Flush() {
	l.queue = nil
	l.ready = nil
	l.decoder.Reset()
}

// next returns the next valid decoded packet, or nil once deadline passes
func (l *Link) next(deadline time.Time) (*Packet, error) {
	for len(l.ready) == 0 {
		if time.Now().After(deadline) {
			return nil, nil
		}
		n, err := l.rw.Read(l.buf)
		if err != nil {
			return nil, fmt.Errorf("read: %w", err)
		}
		for i := 0; i < n; i++ {
			p, decodeErr := l.decoder.DecodeByte(l.buf[i])
			if decodeErr != nil {
				l.stats.Update(nil, decodeErr, nil)
				l.logger.WithError(decodeErr).Warn("frame decode error")
				continue
			}
			if p == nil {
				continue
			}
			verrs := ValidatePacket(p)
			l.stats.Update(p, nil, verrs)
			if len(verrs) > 0 {
				l.logger.WithField("type", FormatMessageType(p.Type())).
					Warnf("dropping malformed packet: %s", verrs[0].Message)
				continue
			}
			l.ready = append(l.ready, p)
		}
	}
	p := l.ready[0]
	l.ready = l.ready[1:]
	return p, nil
}

func (l *Link) enqueue(p *Packet) {
	if len(l.queue) >= l.queueLimit {
		l.logger.Warn("indication queue full, dropping oldest")
		l.queue = l.queue[1:]
	}
	l.queue = append(l.queue, p)
}

func (l *Link) dequeue(expect uint8) *Packet {
	for i, p := range l.queue {
		if expect == MsgAny || p.Type() == expect {
			l.queue = append(l.queue[:i], l.queue[i+1:]...)
			return p
		}
	}
	return nil
}
