package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"call-relay/internal/observability"

	"github.com/gorilla/websocket"
)

// ErrConnClosed is returned by sends after the socket was closed.
var ErrConnClosed = errors.New("realtime connection closed")

// DefaultHandshakeDelay is how long after the socket opens the handshake is
// sent. Sending immediately on open has proven unreliable.
const DefaultHandshakeDelay = 100 * time.Millisecond

const (
	writeTimeout = 5 * time.Second
	closeTimeout = time.Second
)

// Socket is the subset of *websocket.Conn used by RealtimeConn.
type Socket interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// RealtimeConn is one model session socket.
type RealtimeConn struct {
	socket Socket
	logger *observability.Logger

	writeMu sync.Mutex
	closed  atomic.Bool

	timerMu        sync.Mutex
	handshakeTimer *time.Timer

	closeOnce sync.Once
	closeErr  error
}

func NewRealtimeConn(socket Socket, logger *observability.Logger) *RealtimeConn {
	return &RealtimeConn{socket: socket, logger: logger}
}

// ScheduleHandshake sends the handshake events after delay on a one-shot
// timer. done, if non-nil, receives the result once the timer has fired.
// Closing the connection before the timer fires cancels the handshake and
// done is never called; a handshake already in flight fails with
// ErrConnClosed.
func (c *RealtimeConn) ScheduleHandshake(ctx context.Context, cfg SessionConfig, delay time.Duration, done func(error)) {
	c.timerMu.Lock()
	defer c.timerMu.Unlock()

	if c.isClosed() {
		return
	}
	if c.handshakeTimer != nil {
		c.handshakeTimer.Stop()
	}
	c.handshakeTimer = time.AfterFunc(delay, func() {
		err := c.sendHandshake(ctx, cfg)
		if done != nil {
			done(err)
		}
	})
}

func (c *RealtimeConn) sendHandshake(ctx context.Context, cfg SessionConfig) error {
	for _, event := range HandshakeEvents(cfg) {
		if err := c.writeJSON(event); err != nil {
			return fmt.Errorf("failed to send handshake: %w", err)
		}
	}
	c.logger.Debug(ctx, "Sent realtime session handshake")
	return nil
}

// ReadEvent blocks for the next server event. Decode failures wrap
// ErrMalformedEvent and leave the connection usable; other errors are
// transport failures.
func (c *RealtimeConn) ReadEvent(ctx context.Context) (ServerEvent, error) {
	if err := ctx.Err(); err != nil {
		return ServerEvent{}, err
	}
	messageType, msg, err := c.socket.ReadMessage()
	if err != nil {
		return ServerEvent{}, err
	}
	if messageType != websocket.TextMessage {
		return ServerEvent{}, fmt.Errorf("%w: unexpected message type %d", ErrMalformedEvent, messageType)
	}
	return DecodeServerEvent(msg)
}

// AppendAudio forwards one base64 caller audio chunk.
func (c *RealtimeConn) AppendAudio(payload string) error {
	return c.writeJSON(InputAudioBufferAppendEvent{
		Type:  EventInputAudioBufferAppend,
		Audio: payload,
	})
}

// Truncate tells the model only audioEndMs of the item was heard.
func (c *RealtimeConn) Truncate(itemID string, audioEndMs int64) error {
	return c.writeJSON(ConversationItemTruncateEvent{
		Type:         EventConversationItemTruncate,
		ItemID:       itemID,
		ContentIndex: 0,
		AudioEndMs:   audioEndMs,
	})
}

func (c *RealtimeConn) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal realtime event: %w", err)
	}

	if c.closed.Load() {
		return ErrConnClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed.Load() {
		return ErrConnClosed
	}
	if err := c.socket.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	if err := c.socket.WriteMessage(websocket.TextMessage, data); err != nil {
		if c.closed.Load() {
			return ErrConnClosed
		}
		return err
	}
	return nil
}

func (c *RealtimeConn) isClosed() bool {
	return c.closed.Load()
}

// Close cancels a pending handshake and closes the socket without waiting
// for a write in progress. Only the first call has any effect.
func (c *RealtimeConn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)

		c.timerMu.Lock()
		if c.handshakeTimer != nil {
			c.handshakeTimer.Stop()
		}
		c.timerMu.Unlock()

		_ = c.socket.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeTimeout))

		c.closeErr = c.socket.Close()
	})
	return c.closeErr
}
