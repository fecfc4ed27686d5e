package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"call-relay/internal/clients/openai"
	"call-relay/internal/observability"
	"call-relay/internal/voice/audio"
	"call-relay/internal/voicecall/twilio"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

// TelephonyStream is the call side of a relay. *twilio.MediaStream
// implements it.
type TelephonyStream interface {
	Read(ctx context.Context) (twilio.Frame, error)
	SendMedia(streamSid, payload string) error
	SendMark(streamSid, name string) error
	SendClear(streamSid string) error
	Close() error
}

// ModelConn is the model side of a relay. *openai.RealtimeConn implements it.
type ModelConn interface {
	ReadEvent(ctx context.Context) (openai.ServerEvent, error)
	AppendAudio(payload string) error
	Truncate(itemID string, audioEndMs int64) error
	ScheduleHandshake(ctx context.Context, cfg openai.SessionConfig, delay time.Duration, done func(error))
	Close() error
}

// DialFunc opens the model socket for one relay.
type DialFunc func(ctx context.Context) (ModelConn, error)

// Snapshot is a point-in-time copy of a relay's state.
type Snapshot struct {
	State   State
	Session CallSession
}

// Relay bridges one telephony stream to one model session. Each relay owns
// its sockets and session state; nothing is shared between relays.
type Relay struct {
	id        string
	cfg       Config
	logger    *observability.Logger
	metrics   *observability.Metrics
	telephony TelephonyStream
	dial      DialFunc

	mu            sync.Mutex
	state         State
	session       CallSession
	model         ModelConn
	modelOpenedAt time.Time

	done      chan struct{}
	closeOnce sync.Once
}

func New(telephony TelephonyStream, dial DialFunc, cfg Config, logger *observability.Logger, metrics *observability.Metrics) *Relay {
	return &Relay{
		id:        uuid.New().String(),
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
		telephony: telephony,
		dial:      dial,
		state:     StateConnecting,
		done:      make(chan struct{}),
	}
}

func (r *Relay) ID() string {
	return r.id
}

func (r *Relay) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Snapshot returns a copy of the relay state. PendingMarks is copied.
func (r *Relay) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Snapshot{State: r.state, Session: r.session}
	s.Session.PendingMarks = append([]string(nil), r.session.PendingMarks...)
	return s
}

// Done is closed once the relay starts tearing down.
func (r *Relay) Done() <-chan struct{} {
	return r.done
}

// Run dials the model, relays both directions until either side ends, and
// tears down both sockets. It returns nil on a normal hang-up.
func (r *Relay) Run(ctx context.Context) error {
	ctx = observability.WithFields(ctx, observability.Field{Key: "session_id", Value: r.id})
	r.metrics.ActiveSessions.Add(ctx, 1)
	defer r.metrics.ActiveSessions.Add(ctx, -1)
	defer r.setState(StateClosed)

	r.logger.Info(ctx, "Client connected")

	model, err := r.dial(ctx)
	if err != nil {
		r.logger.Error(ctx, "Failed to connect to the OpenAI Realtime API", err)
		r.shutdown(ctx)
		return fmt.Errorf("failed to dial model: %w", err)
	}

	r.mu.Lock()
	if r.state.closing() {
		r.mu.Unlock()
		_ = model.Close()
		return nil
	}
	r.model = model
	r.modelOpenedAt = time.Now()
	r.state = StateHandshaking
	r.mu.Unlock()

	model.ScheduleHandshake(ctx, r.cfg.SessionConfig(), r.cfg.handshakeDelay(), func(err error) {
		r.handshakeSent(ctx, err)
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer r.shutdown(ctx)
		return r.pumpTelephony(gctx)
	})
	g.Go(func() error {
		defer r.shutdown(ctx)
		return r.pumpModel(gctx, model)
	})
	g.Go(func() error {
		select {
		case <-ctx.Done():
			r.shutdown(ctx)
		case <-r.done:
		}
		return nil
	})

	err = g.Wait()
	r.logger.Info(ctx, "Client disconnected")
	return err
}

// Close tears the relay down from outside, e.g. on server shutdown.
func (r *Relay) Close() {
	r.shutdown(context.Background())
}

func (r *Relay) pumpTelephony(ctx context.Context) error {
	for {
		frame, err := r.telephony.Read(ctx)
		if err != nil {
			if errors.Is(err, twilio.ErrMalformedFrame) {
				r.metrics.RecordDecodeError(ctx, observability.ProtocolTwilio)
				r.logger.WarnWithError(ctx, "Dropping malformed Twilio frame", err)
				continue
			}
			if r.isClosing() || isNormalClose(err) {
				return nil
			}
			return fmt.Errorf("telephony read: %w", err)
		}

		if frame.Kind == twilio.FrameStart {
			ctx = observability.WithFields(ctx,
				observability.Field{Key: "stream_sid", Value: frame.StreamSid},
				observability.Field{Key: "call_sid", Value: frame.CallSid},
			)
		}
		if stop := r.handleTelephonyFrame(ctx, frame); stop {
			return nil
		}
	}
}

// handleTelephonyFrame applies one inbound frame. It reports true when the
// call has ended.
func (r *Relay) handleTelephonyFrame(ctx context.Context, frame twilio.Frame) bool {
	switch frame.Kind {
	case twilio.FrameStart:
		r.mu.Lock()
		r.session.StreamSid = frame.StreamSid
		r.session.CallSid = frame.CallSid
		r.mu.Unlock()
		r.logger.Info(ctx, "Incoming stream has started")

	case twilio.FrameMedia:
		r.forwardCallerAudio(ctx, frame)

	case twilio.FrameMark:
		r.logger.Debug(observability.WithFields(ctx, observability.Field{Key: "mark", Value: frame.MarkName}),
			"Received mark acknowledgement")

	case twilio.FrameDTMF:
		r.logger.Info(observability.WithFields(ctx, observability.Field{Key: "digit", Value: frame.Digit}),
			"Received DTMF digit")

	case twilio.FrameStop:
		r.logger.Info(ctx, "Twilio stream stopped")
		return true

	default:
		r.logger.Debug(observability.WithFields(ctx, observability.Field{Key: "event", Value: frame.Event}),
			"Received non-media event")
	}
	return false
}

func (r *Relay) forwardCallerAudio(ctx context.Context, frame twilio.Frame) {
	r.mu.Lock()
	clockErr := r.session.AdvanceClock(frame.TimestampMs)
	model, state := r.model, r.state
	r.mu.Unlock()

	if clockErr != nil {
		r.metrics.ClockAnomalies.Add(ctx, 1)
		r.logger.WarnWithError(ctx, "Ignoring regressing media timestamp", clockErr)
	}
	if !state.forwardsAudio() || model == nil {
		return
	}
	if err := model.AppendAudio(frame.Payload); err != nil {
		r.sendFailed(ctx, "input_audio_buffer.append", err)
		return
	}
	r.metrics.RecordFrame(ctx, observability.DirectionToModel)
}

func (r *Relay) pumpModel(ctx context.Context, model ModelConn) error {
	for {
		event, err := model.ReadEvent(ctx)
		if err != nil {
			if errors.Is(err, openai.ErrMalformedEvent) {
				r.metrics.RecordDecodeError(ctx, observability.ProtocolOpenAI)
				r.logger.WarnWithError(ctx, "Dropping malformed OpenAI event", err)
				continue
			}
			if r.isClosing() || isNormalClose(err) {
				r.logger.Info(ctx, "Disconnected from the OpenAI Realtime API")
				return nil
			}
			return fmt.Errorf("model read: %w", err)
		}
		r.handleModelEvent(ctx, model, event)
	}
}

func (r *Relay) handleModelEvent(ctx context.Context, model ModelConn, event openai.ServerEvent) {
	if r.cfg.isVerbose(event.Type) {
		r.logger.Info(observability.WithFields(ctx,
			observability.Field{Key: "event_type", Value: event.Type},
			observability.Field{Key: "event", Value: string(event.Raw)},
		), "Received event")
	}

	switch event.Kind() {
	case openai.KindSessionUpdated:
		r.mu.Lock()
		var handshake time.Duration
		if r.state == StateHandshaking {
			r.state = StateStreaming
			handshake = time.Since(r.modelOpenedAt)
		}
		r.mu.Unlock()
		if handshake > 0 {
			r.metrics.RecordHandshake(ctx, handshake)
		}
		r.logger.Info(ctx, "Session updated successfully")

	case openai.KindAudioDelta:
		r.forwardAssistantAudio(ctx, event)

	case openai.KindSpeechStarted:
		r.interrupt(ctx, model)

	case openai.KindError:
		var err error = errors.New("unknown realtime error")
		if event.Error != nil {
			err = event.Error
		}
		r.logger.Error(ctx, "OpenAI Realtime API error", err)
	}
}

// forwardAssistantAudio plays one model audio chunk to the caller and marks
// it. The first chunk of a response pins the response start time.
func (r *Relay) forwardAssistantAudio(ctx context.Context, event openai.ServerEvent) {
	if event.Delta == "" {
		return
	}

	r.mu.Lock()
	streamSid := r.session.StreamSid
	r.mu.Unlock()
	if streamSid == "" {
		r.logger.Warn(ctx, "Dropping audio delta received before the stream started")
		return
	}

	if err := r.telephony.SendMedia(streamSid, event.Delta); err != nil {
		r.sendFailed(ctx, "media", err)
		return
	}
	r.metrics.RecordFrame(ctx, observability.DirectionToTelephony)

	r.mu.Lock()
	started := r.session.TrackAudio(event.ItemID)
	startMs, _ := r.session.ResponseStart()
	r.mu.Unlock()

	if r.cfg.ShowTimingMath {
		fields := []observability.MetricField{
			{Key: "item_id", Value: event.ItemID},
			{Key: "chunk_ms", Value: audio.PayloadDurationMs(event.Delta, r.cfg.AudioFormat)},
		}
		if started {
			fields = append(fields, observability.MetricField{Key: "response_start_ms", Value: startMs})
		}
		r.logger.Metrics(ctx, fields...)
	}

	if err := r.telephony.SendMark(streamSid, MarkName); err != nil {
		r.sendFailed(ctx, "mark", err)
		return
	}
	r.mu.Lock()
	r.session.AddMark(MarkName)
	r.mu.Unlock()
}

// interrupt handles the caller talking over the assistant: the model item is
// truncated to what was actually heard and Twilio drops its buffered audio.
func (r *Relay) interrupt(ctx context.Context, model ModelConn) {
	r.mu.Lock()
	in, ok := r.session.Interrupt()
	streamSid := r.session.StreamSid
	r.mu.Unlock()

	if !ok {
		r.logger.Debug(ctx, "Speech started with no response in flight")
		return
	}
	r.metrics.Interruptions.Add(ctx, 1)

	if r.cfg.ShowTimingMath {
		r.logger.Metrics(ctx,
			observability.MetricField{Key: "latest_media_timestamp_ms", Value: in.NowMs},
			observability.MetricField{Key: "response_start_ms", Value: in.StartMs},
			observability.MetricField{Key: "elapsed_ms", Value: in.ElapsedMs},
		)
	}

	switch {
	case in.ClockAnomaly():
		r.metrics.ClockAnomalies.Add(ctx, 1)
		r.logger.Warn(observability.WithFields(ctx,
			observability.Field{Key: "elapsed_ms", Value: in.ElapsedMs},
		), "Negative elapsed playback time, skipping truncate")
	case in.ShouldTruncate():
		if err := model.Truncate(in.ItemID, in.ElapsedMs); err != nil {
			r.sendFailed(ctx, "conversation.item.truncate", err)
		} else {
			r.metrics.Truncations.Add(ctx, 1)
		}
	}

	if err := r.telephony.SendClear(streamSid); err != nil {
		r.sendFailed(ctx, "clear", err)
	}
}

func (r *Relay) handshakeSent(ctx context.Context, err error) {
	switch {
	case err == nil:
		r.logger.Info(ctx, "Sent session update")
	case errors.Is(err, openai.ErrConnClosed):
		r.logger.Debug(ctx, "Session handshake abandoned, connection closed")
	default:
		r.logger.Error(ctx, "Failed to send session handshake", err)
		r.shutdown(ctx)
	}
}

// sendFailed handles a failed outbound write. Writes racing a close are
// dropped silently; anything else is a transport failure that ends the relay.
func (r *Relay) sendFailed(ctx context.Context, what string, err error) {
	if r.isClosing() || errors.Is(err, twilio.ErrStreamClosed) || errors.Is(err, openai.ErrConnClosed) {
		r.logger.Debug(ctx, "Dropped "+what+" send on closing relay")
		return
	}
	r.logger.Error(ctx, "Failed to send "+what, err)
	r.shutdown(ctx)
}

// shutdown closes both sockets exactly once.
func (r *Relay) shutdown(ctx context.Context) {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.state = StateClosing
		model := r.model
		r.session.ResetResponse()
		r.mu.Unlock()

		close(r.done)

		if err := r.telephony.Close(); err != nil {
			r.logger.WarnWithError(ctx, "Error closing Twilio stream", err)
		}
		if model != nil {
			if err := model.Close(); err != nil {
				r.logger.WarnWithError(ctx, "Error closing OpenAI connection", err)
			}
		}
	})
}

func (r *Relay) setState(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s > r.state {
		r.state = s
	}
}

func (r *Relay) isClosing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.closing()
}

func isNormalClose(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, context.Canceled) ||
		websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived)
}

// RealtimeDialer adapts a realtime client to a DialFunc.
func RealtimeDialer(client *openai.RealtimeClient) DialFunc {
	return func(ctx context.Context) (ModelConn, error) {
		conn, err := client.Dial(ctx)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}
