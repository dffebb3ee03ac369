package neighborhood

// transport.go implements the length-prefixed framing the LBN wire protocol
// fixes: a 4-byte big-endian length header followed by that many bytes of
// CBOR-encoded Message. Exactly one writer at a time serializes through a
// mutex; exactly one reader (the session engine's receive loop) ever calls
// readFrame.

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// ErrProtocolViolation is returned by readFrame/decode paths on a short
// read, an out-of-bounds header length, or a decode failure.
var ErrProtocolViolation = errors.New("lbn: protocol violation")

// maxFrameBytes bounds the header length field against a clearly bogus or
// hostile value. The LBN link is trusted, but a corrupted length prefix
// must not cause an unbounded allocation.
const maxFrameBytes = 16 * 1024 * 1024

const frameHeaderLen = 4

// framedTransport implements write_frame/read_frame over an io.ReadWriteCloser.
type framedTransport struct {
	conn io.ReadWriteCloser

	writeMu sync.Mutex
}

func newFramedTransport(conn io.ReadWriteCloser) *framedTransport {
	return &framedTransport{conn: conn}
}

// writeFrame writes a length-prefixed frame. Safe for concurrent callers;
// they serialize through writeMu so no two frames interleave on the wire.
func (t *framedTransport) writeFrame(payload []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	var header [frameHeaderLen]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))

	if _, err := t.conn.Write(header[:]); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if _, err := t.conn.Write(payload); err != nil {
		return fmt.Errorf("write frame body: %w", err)
	}
	return nil
}

// readFrame reads one length-prefixed frame. Must only be called from the
// session engine's single receive loop. Returns io.EOF on clean peer close,
// ErrProtocolViolation on a short read or an out-of-bounds length.
func (t *framedTransport) readFrame() ([]byte, error) {
	var header [frameHeaderLen]byte
	if _, err := io.ReadFull(t.conn, header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: short header read: %v", ErrProtocolViolation, err)
		}
		return nil, err
	}

	length := binary.BigEndian.Uint32(header[:])
	if length > maxFrameBytes {
		return nil, fmt.Errorf("%w: frame length %d exceeds limit", ErrProtocolViolation, length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(t.conn, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: short body read: %v", ErrProtocolViolation, err)
		}
		return nil, err
	}
	return payload, nil
}

func (t *framedTransport) close() error {
	return t.conn.Close()
}

// writeMessage encodes msg to CBOR and writes it as a single frame.
func (t *framedTransport) writeMessage(msg *Message) error {
	payload, err := cbor.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	return t.writeFrame(payload)
}

// readMessage reads one frame and decodes it as a Message.
func (t *framedTransport) readMessage() (*Message, error) {
	payload, err := t.readFrame()
	if err != nil {
		return nil, err
	}
	var msg Message
	if err := cbor.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("%w: decode message: %v", ErrProtocolViolation, err)
	}
	return &msg, nil
}
