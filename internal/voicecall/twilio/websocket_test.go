package twilio

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type message struct {
	messageType int
	data        []byte
}

// fakeConn feeds queued inbound messages and records writes.
type fakeConn struct {
	mu        sync.Mutex
	inbound   []message
	written   []message
	deadlines int
	closes    int
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.inbound) == 0 {
		return 0, nil, io.EOF
	}
	m := f.inbound[0]
	f.inbound = f.inbound[1:]
	return m.messageType, m.data, nil
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, message{messageType, data})
	return nil
}

func (f *fakeConn) WriteControl(messageType int, data []byte, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, message{messageType, data})
	return nil
}

func (f *fakeConn) SetWriteDeadline(time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deadlines++
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

// stallingConn blocks data writes until it is closed, like a peer that has
// stopped reading.
type stallingConn struct {
	fakeConn
	writing chan struct{}
	closed  chan struct{}
	once    sync.Once
}

func newStallingConn() *stallingConn {
	return &stallingConn{
		writing: make(chan struct{}, 1),
		closed:  make(chan struct{}),
	}
}

func (c *stallingConn) WriteMessage(int, []byte) error {
	select {
	case c.writing <- struct{}{}:
	default:
	}
	<-c.closed
	return net.ErrClosed
}

func (c *stallingConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return c.fakeConn.Close()
}

func TestMediaStreamReadContinuesAfterMalformedFrame(t *testing.T) {
	conn := &fakeConn{inbound: []message{
		{websocket.TextMessage, []byte(`not json`)},
		{websocket.BinaryMessage, []byte{0x01}},
		{websocket.TextMessage, []byte(`{"event":"start","start":{"streamSid":"SS123"}}`)},
	}}
	stream := NewMediaStream(conn)
	ctx := context.Background()

	_, err := stream.Read(ctx)
	assert.ErrorIs(t, err, ErrMalformedFrame)

	_, err = stream.Read(ctx)
	assert.ErrorIs(t, err, ErrMalformedFrame)

	frame, err := stream.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, FrameStart, frame.Kind)
	assert.Equal(t, "SS123", frame.StreamSid)

	_, err = stream.Read(ctx)
	assert.True(t, errors.Is(err, io.EOF))
}

func TestMediaStreamReadHonoursCancelledContext(t *testing.T) {
	stream := NewMediaStream(&fakeConn{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := stream.Read(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMediaStreamSendsRequireStreamSid(t *testing.T) {
	conn := &fakeConn{}
	stream := NewMediaStream(conn)

	assert.ErrorIs(t, stream.SendMedia("", "AAEC"), ErrStreamNotStarted)
	assert.ErrorIs(t, stream.SendMark("", "responsePart"), ErrStreamNotStarted)
	assert.ErrorIs(t, stream.SendClear(""), ErrStreamNotStarted)
	assert.Empty(t, conn.written)
}

func TestMediaStreamSends(t *testing.T) {
	conn := &fakeConn{}
	stream := NewMediaStream(conn)

	require.NoError(t, stream.SendMedia("SS123", "AAEC"))
	require.NoError(t, stream.SendMark("SS123", "responsePart"))
	require.NoError(t, stream.SendClear("SS123"))

	require.Len(t, conn.written, 3)
	assert.Equal(t, 3, conn.deadlines)
	assert.JSONEq(t, `{"event":"media","streamSid":"SS123","media":{"payload":"AAEC"}}`, string(conn.written[0].data))
	assert.JSONEq(t, `{"event":"mark","streamSid":"SS123","mark":{"name":"responsePart"}}`, string(conn.written[1].data))
	assert.JSONEq(t, `{"event":"clear","streamSid":"SS123"}`, string(conn.written[2].data))
}

func TestMediaStreamCloseIsIdempotent(t *testing.T) {
	conn := &fakeConn{}
	stream := NewMediaStream(conn)

	require.NoError(t, stream.Close())
	require.NoError(t, stream.Close())

	assert.Equal(t, 1, conn.closes)
	require.Len(t, conn.written, 1)
	assert.Equal(t, websocket.CloseMessage, conn.written[0].messageType)
	assert.ErrorIs(t, stream.SendMedia("SS123", "AAEC"), ErrStreamClosed)
}

func TestMediaStreamCloseDoesNotWaitForStalledWrite(t *testing.T) {
	conn := newStallingConn()
	stream := NewMediaStream(conn)

	sendErr := make(chan error, 1)
	go func() { sendErr <- stream.SendMedia("SS123", "AAEC") }()

	select {
	case <-conn.writing:
	case <-time.After(2 * time.Second):
		t.Fatal("write never started")
	}

	closed := make(chan error, 1)
	go func() { closed <- stream.Close() }()

	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked behind a stalled write")
	}

	select {
	case err := <-sendErr:
		assert.ErrorIs(t, err, ErrStreamClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("stalled write was not released by Close")
	}

	conn.mu.Lock()
	defer conn.mu.Unlock()
	assert.Equal(t, 1, conn.closes)
	require.Len(t, conn.written, 1)
	assert.Equal(t, websocket.CloseMessage, conn.written[0].messageType)
}
