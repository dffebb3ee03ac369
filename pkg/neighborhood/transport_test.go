package neighborhood

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"testing"
	"time"
)

// fakeConn wraps a bytes.Reader for read-side error injection tests; writes
// are discarded.
type fakeConn struct {
	io.Reader
}

func (f fakeConn) Write(p []byte) (int, error) { return len(p), nil }
func (f fakeConn) Close() error                { return nil }

func TestFrameRoundTrip(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	writer := newFramedTransport(a)
	reader := newFramedTransport(b)

	payload := []byte("neighborhood-frame-payload")
	errCh := make(chan error, 1)
	go func() { errCh <- writer.writeFrame(payload) }()

	got, err := reader.readFrame()
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("writeFrame: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload mismatch: got %q want %q", got, payload)
	}
}

func TestReadFrameShortHeader(t *testing.T) {
	conn := fakeConn{Reader: bytes.NewReader([]byte{0x00, 0x01})}
	transport := newFramedTransport(conn)
	_, err := transport.readFrame()
	if !errors.Is(err, ErrProtocolViolation) {
		t.Fatalf("expected protocol violation, got %v", err)
	}
}

func TestReadFrameOversizedLength(t *testing.T) {
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], maxFrameBytes+1)
	conn := fakeConn{Reader: bytes.NewReader(header[:])}
	transport := newFramedTransport(conn)
	_, err := transport.readFrame()
	if !errors.Is(err, ErrProtocolViolation) {
		t.Fatalf("expected protocol violation, got %v", err)
	}
}

func TestReadFrameCleanEOF(t *testing.T) {
	conn := fakeConn{Reader: bytes.NewReader(nil)}
	transport := newFramedTransport(conn)
	_, err := transport.readFrame()
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestMessageRoundTripOverTransport(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	writer := newFramedTransport(a)
	reader := newFramedTransport(b)

	msg, err := buildGetNeighbourNodesByDistanceLocal(9)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	go func() { _ = writer.writeMessage(msg) }()

	done := make(chan struct{})
	var got *Message
	var readErr error
	go func() {
		got, readErr = reader.readMessage()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	if readErr != nil {
		t.Fatalf("readMessage: %v", readErr)
	}
	if got.ID != 9 || got.Request == nil || got.Request.Kind != KindGetNeighbourNodesByDistanceLocal {
		t.Fatalf("unexpected message: %+v", got)
	}
}
