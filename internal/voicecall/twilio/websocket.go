package twilio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

var (
	// ErrStreamClosed is returned by sends after the stream was closed.
	ErrStreamClosed = errors.New("twilio media stream closed")

	// ErrStreamNotStarted is returned by sends before a streamSid is known.
	ErrStreamNotStarted = errors.New("twilio media stream not started")
)

const (
	// writeTimeout bounds a single outbound frame.
	writeTimeout = 5 * time.Second
	closeTimeout = time.Second
)

// Conn is the subset of *websocket.Conn used by MediaStream.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// MediaStream is the telephony side of a call: it decodes inbound Media
// Streams frames and serializes outbound media, mark and clear frames.
type MediaStream struct {
	conn       Conn
	writeMutex sync.Mutex
	closed     atomic.Bool
	closeOnce  sync.Once
	closeErr   error
}

func NewMediaStream(conn Conn) *MediaStream {
	return &MediaStream{conn: conn}
}

// Read blocks for the next inbound frame. Decode failures are returned
// wrapping ErrMalformedFrame and leave the stream usable; any other error is
// a transport failure and ends the stream.
func (s *MediaStream) Read(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	messageType, msg, err := s.conn.ReadMessage()
	if err != nil {
		return Frame{}, err
	}
	if messageType != websocket.TextMessage {
		return Frame{}, fmt.Errorf("%w: unexpected message type %d", ErrMalformedFrame, messageType)
	}
	return DecodeFrame(msg)
}

// SendMedia writes one audio payload (base64) to the call.
func (s *MediaStream) SendMedia(streamSid, payload string) error {
	if streamSid == "" {
		return ErrStreamNotStarted
	}
	msg, err := EncodeMedia(streamSid, payload)
	if err != nil {
		return fmt.Errorf("failed to marshal media message: %w", err)
	}
	return s.write(msg)
}

// SendMark asks Twilio to report back when playback reaches this point.
func (s *MediaStream) SendMark(streamSid, name string) error {
	if streamSid == "" {
		return ErrStreamNotStarted
	}
	msg, err := EncodeMark(streamSid, name)
	if err != nil {
		return fmt.Errorf("failed to marshal mark message: %w", err)
	}
	return s.write(msg)
}

// SendClear drops any audio Twilio has buffered but not yet played.
func (s *MediaStream) SendClear(streamSid string) error {
	if streamSid == "" {
		return ErrStreamNotStarted
	}
	msg, err := EncodeClear(streamSid)
	if err != nil {
		return fmt.Errorf("failed to marshal clear message: %w", err)
	}
	return s.write(msg)
}

func (s *MediaStream) write(msg []byte) error {
	if s.closed.Load() {
		return ErrStreamClosed
	}
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	if s.closed.Load() {
		return ErrStreamClosed
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		if s.closed.Load() {
			return ErrStreamClosed
		}
		return err
	}
	return nil
}

// Close sends a normal close frame and closes the socket. It does not wait
// for a data write in progress; closing the socket fails that write. Only
// the first call has any effect.
func (s *MediaStream) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeTimeout))
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}
