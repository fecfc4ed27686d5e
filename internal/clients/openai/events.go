package openai

import (
	"encoding/json"
	"errors"
	"fmt"

	"call-relay/internal/voice/audio"
)

// ErrMalformedEvent is returned for inbound realtime events that cannot be
// decoded. It is recoverable: the event is dropped.
var ErrMalformedEvent = errors.New("malformed realtime event")

// Client events.
const (
	EventSessionUpdate            = "session.update"
	EventConversationItemCreate   = "conversation.item.create"
	EventResponseCreate           = "response.create"
	EventInputAudioBufferAppend   = "input_audio_buffer.append"
	EventConversationItemTruncate = "conversation.item.truncate"
)

// Server events.
const (
	EventSessionCreated            = "session.created"
	EventSessionUpdated            = "session.updated"
	EventResponseAudioDelta        = "response.audio.delta"
	EventResponseContentDone       = "response.content.done"
	EventResponseDone              = "response.done"
	EventRateLimitsUpdated         = "rate_limits.updated"
	EventInputAudioBufferCommitted = "input_audio_buffer.committed"
	EventSpeechStarted             = "input_audio_buffer.speech_started"
	EventSpeechStopped             = "input_audio_buffer.speech_stopped"
	EventError                     = "error"
)

// DefaultVerboseEventTypes are the server events worth logging in full.
var DefaultVerboseEventTypes = []string{
	EventError,
	EventResponseContentDone,
	EventRateLimitsUpdated,
	EventResponseDone,
	EventInputAudioBufferCommitted,
	EventSpeechStopped,
	EventSpeechStarted,
	EventSessionCreated,
}

// EventKind classifies a decoded server event.
type EventKind int

const (
	KindInformational EventKind = iota
	KindSessionCreated
	KindSessionUpdated
	KindAudioDelta
	KindSpeechStarted
	KindSpeechStopped
	KindError
)

// SessionConfig is what the handshake configures on the model session.
type SessionConfig struct {
	Voice             string
	Instructions      string
	TurnDetection     string
	InputAudioFormat  string
	OutputAudioFormat string
	Modalities        []string
	Temperature       float64
	// Greeting is sent as the first user message so the assistant speaks first.
	Greeting string
}

type SessionUpdateEvent struct {
	Type    string        `json:"type"`
	Session SessionParams `json:"session"`
}

type SessionParams struct {
	TurnDetection     *TurnDetection `json:"turn_detection,omitempty"`
	InputAudioFormat  string         `json:"input_audio_format,omitempty"`
	OutputAudioFormat string         `json:"output_audio_format,omitempty"`
	Voice             string         `json:"voice,omitempty"`
	Instructions      string         `json:"instructions,omitempty"`
	Modalities        []string       `json:"modalities,omitempty"`
	Temperature       float64        `json:"temperature,omitempty"`
}

type TurnDetection struct {
	Type string `json:"type"`
}

type ConversationItemCreateEvent struct {
	Type string           `json:"type"`
	Item ConversationItem `json:"item"`
}

type ConversationItem struct {
	Type    string        `json:"type"`
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

type ContentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type ResponseCreateEvent struct {
	Type string `json:"type"`
}

type InputAudioBufferAppendEvent struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

type ConversationItemTruncateEvent struct {
	Type         string `json:"type"`
	ItemID       string `json:"item_id"`
	ContentIndex int    `json:"content_index"`
	AudioEndMs   int64  `json:"audio_end_ms"`
}

// ErrorDetail is the nested object of an "error" server event.
type ErrorDetail struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
	EventID string `json:"event_id,omitempty"`
}

func (e *ErrorDetail) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ServerEvent is an inbound realtime event with the fields the relay reads.
type ServerEvent struct {
	Type         string       `json:"type"`
	EventID      string       `json:"event_id,omitempty"`
	ResponseID   string       `json:"response_id,omitempty"`
	ItemID       string       `json:"item_id,omitempty"`
	ContentIndex int          `json:"content_index,omitempty"`
	Delta        string       `json:"delta,omitempty"`
	AudioStartMs int64        `json:"audio_start_ms,omitempty"`
	Error        *ErrorDetail `json:"error,omitempty"`

	// Raw is the undecoded frame, kept for diagnostic logging.
	Raw json.RawMessage `json:"-"`
}

// Kind classifies the event for the relay's dispatch.
func (e ServerEvent) Kind() EventKind {
	switch e.Type {
	case EventSessionCreated:
		return KindSessionCreated
	case EventSessionUpdated:
		return KindSessionUpdated
	case EventResponseAudioDelta:
		return KindAudioDelta
	case EventSpeechStarted:
		return KindSpeechStarted
	case EventSpeechStopped:
		return KindSpeechStopped
	case EventError:
		return KindError
	default:
		return KindInformational
	}
}

// DecodeServerEvent parses one inbound text frame.
func DecodeServerEvent(data []byte) (ServerEvent, error) {
	var event ServerEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return ServerEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if event.Type == "" {
		return ServerEvent{}, fmt.Errorf("%w: missing type", ErrMalformedEvent)
	}
	if event.Type == EventResponseAudioDelta && event.Delta != "" {
		if _, err := audio.Base64ToBytes(event.Delta); err != nil {
			return ServerEvent{}, fmt.Errorf("%w: audio delta: %v", ErrMalformedEvent, err)
		}
	}
	event.Raw = append(json.RawMessage(nil), data...)
	return event, nil
}

// NewSessionUpdate builds the session.update sent at the start of the handshake.
func NewSessionUpdate(cfg SessionConfig) SessionUpdateEvent {
	params := SessionParams{
		InputAudioFormat:  cfg.InputAudioFormat,
		OutputAudioFormat: cfg.OutputAudioFormat,
		Voice:             cfg.Voice,
		Instructions:      cfg.Instructions,
		Modalities:        cfg.Modalities,
		Temperature:       cfg.Temperature,
	}
	if cfg.TurnDetection != "" {
		params.TurnDetection = &TurnDetection{Type: cfg.TurnDetection}
	}
	return SessionUpdateEvent{Type: EventSessionUpdate, Session: params}
}

// NewGreetingItem builds the scripted user message that prompts the
// assistant's opening line.
func NewGreetingItem(greeting string) ConversationItemCreateEvent {
	return ConversationItemCreateEvent{
		Type: EventConversationItemCreate,
		Item: ConversationItem{
			Type: "message",
			Role: "user",
			Content: []ContentPart{
				{Type: "input_text", Text: greeting},
			},
		},
	}
}

// HandshakeEvents returns the ordered handshake: session.update, then the
// greeting item and response.create when a greeting is configured.
func HandshakeEvents(cfg SessionConfig) []any {
	events := []any{NewSessionUpdate(cfg)}
	if cfg.Greeting != "" {
		events = append(events,
			NewGreetingItem(cfg.Greeting),
			ResponseCreateEvent{Type: EventResponseCreate},
		)
	}
	return events
}
