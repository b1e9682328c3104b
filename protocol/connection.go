package protocol

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"net"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// ErrConnectionResetByPeer reports that the peer closed the stream with an
// incomplete frame still in the read buffer, or sent bytes that don't frame
// and decode as a message.
var ErrConnectionResetByPeer = errors.New("connection reset by peer")

// ErrUnexpectedEOF reports a clean EOF that arrived while a session was
// still waiting on a specific message, as opposed to
// ErrConnectionResetByPeer's truncated-frame case.
var ErrUnexpectedEOF = errors.New("unexpected eof waiting for message")

// lengthPrefixSize is the width of the big-endian frame length prefix.
const lengthPrefixSize = 4

// Connection is a bidirectional framed message transport over one reliable
// ordered byte stream: an I/O actor that serializes the outbound queue onto
// the wire and decodes arriving bytes into the inbound queue, leaving the
// session state machine on the other side of the two queues.
type Connection struct {
	conn   net.Conn
	logger zerolog.Logger

	Outbound chan Message
	Inbound  chan Message

	readBuf bytes.Buffer
	readTmp [4096]byte
}

// NewConnection wraps a net.Conn in a Connection with bounded inbound and
// outbound queues. The protocol is request/response with O(1) messages per
// round, so a full queue means a stuck peer, not routine load.
func NewConnection(conn net.Conn, logger zerolog.Logger) *Connection {
	return &Connection{
		conn:     conn,
		logger:   logger.With().Str("component", "connection").Logger(),
		Outbound: make(chan Message, 100),
		Inbound:  make(chan Message, 100),
	}
}

// Run drives the I/O actor: it serializes and writes outbound messages as
// they're enqueued, and decodes inbound messages as bytes arrive, until ctx
// is canceled, the stream ends, or CloseSend is called and the outbound
// queue has drained. It closes Inbound before returning so the Session
// actor observes a clean end-of-stream.
func (c *Connection) Run(ctx context.Context) error {
	defer close(c.Inbound)

	readCh := make(chan readResult, 1)
	go c.readLoop(ctx, readCh)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case msg, ok := <-c.Outbound:
			if !ok {
				return nil
			}
			if err := c.writeMessage(msg); err != nil {
				return errors.Wrap(err, "writing message")
			}

		case r := <-readCh:
			if len(r.data) > 0 {
				c.readBuf.Write(r.data)
				if err := c.drainFrames(ctx); err != nil {
					return err
				}
			}
			if r.err != nil {
				if r.err == io.EOF {
					if c.readBuf.Len() > 0 {
						return ErrConnectionResetByPeer
					}
					return nil
				}
				return errors.Wrap(r.err, "reading from connection")
			}
		}
	}
}

// readResult carries one socket read: the bytes it produced, plus the
// terminal error if the read also ended the stream. Keeping both on one
// channel preserves their ordering; with data and errors on separate
// channels a select could observe EOF before a chunk that arrived first.
type readResult struct {
	data []byte
	err  error
}

// readLoop continuously reads from the socket and forwards the results, so
// Run's select can treat "more bytes available" as just another event
// alongside outbound sends.
func (c *Connection) readLoop(ctx context.Context, out chan<- readResult) {
	for {
		n, err := c.conn.Read(c.readTmp[:])
		var chunk []byte
		if n > 0 {
			chunk = make([]byte, n)
			copy(chunk, c.readTmp[:n])
		}
		if chunk != nil || err != nil {
			select {
			case out <- readResult{data: chunk, err: err}:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// drainFrames decodes as many complete frames as the read buffer holds,
// dispatching each to Inbound. The dispatch respects ctx so a canceled
// connection can't wedge on a full inbound queue nobody is reading.
func (c *Connection) drainFrames(ctx context.Context) error {
	for {
		frame, ok := decodeFrame(&c.readBuf)
		if !ok {
			return nil
		}
		msg, err := Decode(frame)
		if err != nil {
			return ErrConnectionResetByPeer
		}
		c.logger.Debug().Uint8("tag", uint8(msg.Tag())).Int("bytes", len(frame)).Msg("received message")
		select {
		case c.Inbound <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// decodeFrame tries to pull one length-prefixed frame off the front of buf.
// It reports ok=false when buf doesn't yet hold a complete frame.
func decodeFrame(buf *bytes.Buffer) (frame []byte, ok bool) {
	data := buf.Bytes()
	if len(data) < lengthPrefixSize {
		return nil, false
	}
	length := binary.BigEndian.Uint32(data[:lengthPrefixSize])
	total := lengthPrefixSize + int(length)
	if len(data) < total {
		return nil, false
	}

	frame = make([]byte, length)
	copy(frame, data[lengthPrefixSize:total])
	buf.Next(total)
	return frame, true
}

// writeMessage encodes and frames a message, then flushes it to the socket.
func (c *Connection) writeMessage(msg Message) error {
	payload, err := Encode(msg)
	if err != nil {
		return err
	}

	var prefix [lengthPrefixSize]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(payload)))

	if _, err := c.conn.Write(prefix[:]); err != nil {
		return err
	}
	if _, err := c.conn.Write(payload); err != nil {
		return err
	}
	c.logger.Debug().Uint8("tag", uint8(msg.Tag())).Int("bytes", len(payload)).Msg("wrote message")
	return nil
}

// Send enqueues a message for the outbound queue, respecting ctx
// cancellation while the queue is full.
func (c *Connection) Send(ctx context.Context, msg Message) error {
	select {
	case c.Outbound <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CloseSend closes the outbound queue. Run writes out whatever is still
// enqueued, then returns nil: call this once the session has enqueued its
// final message, so that canceling the I/O actor can't race ahead of the
// last frame reaching the wire. The underlying net.Conn stays the caller's
// to close.
func (c *Connection) CloseSend() {
	close(c.Outbound)
}
