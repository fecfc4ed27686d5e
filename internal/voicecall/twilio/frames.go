package twilio

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"call-relay/internal/voice/audio"
)

// ErrMalformedFrame is returned for inbound frames that cannot be decoded.
// It is recoverable: the frame is dropped and the stream continues.
var ErrMalformedFrame = errors.New("malformed twilio frame")

// Media Streams event names.
const (
	EventConnected = "connected"
	EventStart     = "start"
	EventMedia     = "media"
	EventMark      = "mark"
	EventDTMF      = "dtmf"
	EventStop      = "stop"
	EventClear     = "clear"
)

// FrameKind classifies a decoded inbound frame.
type FrameKind int

const (
	FrameOther FrameKind = iota
	FrameConnected
	FrameStart
	FrameMedia
	FrameMark
	FrameDTMF
	FrameStop
)

func (k FrameKind) String() string {
	switch k {
	case FrameConnected:
		return EventConnected
	case FrameStart:
		return EventStart
	case FrameMedia:
		return EventMedia
	case FrameMark:
		return EventMark
	case FrameDTMF:
		return EventDTMF
	case FrameStop:
		return EventStop
	default:
		return "other"
	}
}

// MediaEvent is the wire shape of an inbound Media Streams message.
type MediaEvent struct {
	Event          string       `json:"event"`
	SequenceNumber string       `json:"sequenceNumber,omitempty"`
	StreamSid      string       `json:"streamSid,omitempty"`
	Start          *StartEvent  `json:"start,omitempty"`
	Media          *MediaChunk  `json:"media,omitempty"`
	Mark           *MarkPayload `json:"mark,omitempty"`
	DTMF           *DTMFPayload `json:"dtmf,omitempty"`
	Stop           *StopEvent   `json:"stop,omitempty"`
}

type StartEvent struct {
	StreamSid        string            `json:"streamSid"`
	AccountSid       string            `json:"accountSid,omitempty"`
	CallSid          string            `json:"callSid,omitempty"`
	Tracks           []string          `json:"tracks,omitempty"`
	CustomParameters map[string]string `json:"customParameters,omitempty"`
	MediaFormat      struct {
		Encoding   string `json:"encoding"`
		SampleRate int    `json:"sampleRate"`
		Channels   int    `json:"channels"`
	} `json:"mediaFormat"`
}

type MediaChunk struct {
	Track     string `json:"track,omitempty"`
	Chunk     string `json:"chunk,omitempty"`
	Timestamp Millis `json:"timestamp"`
	Payload   string `json:"payload"`
}

type MarkPayload struct {
	Name string `json:"name"`
}

type DTMFPayload struct {
	Track string `json:"track,omitempty"`
	Digit string `json:"digit"`
}

type StopEvent struct {
	AccountSid string `json:"accountSid,omitempty"`
	CallSid    string `json:"callSid,omitempty"`
}

// Millis is a millisecond timestamp. Twilio sends it as a JSON string; a
// bare number is accepted too.
type Millis int64

func (m *Millis) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*m = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*m = 0
			return nil
		}
		data = []byte(s)
	}
	v, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q: %w", data, err)
	}
	*m = Millis(v)
	return nil
}

// Frame is a decoded inbound frame reduced to what the relay consumes.
type Frame struct {
	Kind             FrameKind
	Event            string
	StreamSid        string
	CallSid          string
	AccountSid       string
	CustomParameters map[string]string
	TimestampMs      int64
	Payload          string
	MarkName         string
	Digit            string
}

// DecodeFrame parses one inbound text frame. Unknown event names decode to
// FrameOther without error.
func DecodeFrame(data []byte) (Frame, error) {
	var event MediaEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	frame := Frame{Event: event.Event, StreamSid: event.StreamSid}

	switch event.Event {
	case EventConnected:
		frame.Kind = FrameConnected

	case EventStart:
		if event.Start == nil || event.Start.StreamSid == "" {
			return Frame{}, fmt.Errorf("%w: start event without streamSid", ErrMalformedFrame)
		}
		frame.Kind = FrameStart
		frame.StreamSid = event.Start.StreamSid
		frame.CallSid = event.Start.CallSid
		frame.AccountSid = event.Start.AccountSid
		frame.CustomParameters = event.Start.CustomParameters

	case EventMedia:
		if event.Media == nil {
			return Frame{}, fmt.Errorf("%w: media event without media", ErrMalformedFrame)
		}
		if _, err := audio.Base64ToBytes(event.Media.Payload); err != nil {
			return Frame{}, fmt.Errorf("%w: media payload: %v", ErrMalformedFrame, err)
		}
		frame.Kind = FrameMedia
		frame.TimestampMs = int64(event.Media.Timestamp)
		frame.Payload = event.Media.Payload

	case EventMark:
		frame.Kind = FrameMark
		if event.Mark != nil {
			frame.MarkName = event.Mark.Name
		}

	case EventDTMF:
		frame.Kind = FrameDTMF
		if event.DTMF != nil {
			frame.Digit = event.DTMF.Digit
		}

	case EventStop:
		frame.Kind = FrameStop
		if event.Stop != nil {
			frame.CallSid = event.Stop.CallSid
			frame.AccountSid = event.Stop.AccountSid
		}

	default:
		frame.Kind = FrameOther
	}

	return frame, nil
}

type outboundFrame struct {
	Event     string         `json:"event"`
	StreamSid string         `json:"streamSid"`
	Media     *outboundMedia `json:"media,omitempty"`
	Mark      *MarkPayload   `json:"mark,omitempty"`
}

type outboundMedia struct {
	Payload string `json:"payload"`
}

// EncodeMedia builds an outbound media frame carrying a base64 audio payload.
func EncodeMedia(streamSid, payload string) ([]byte, error) {
	return json.Marshal(outboundFrame{
		Event:     EventMedia,
		StreamSid: streamSid,
		Media:     &outboundMedia{Payload: payload},
	})
}

// EncodeMark builds a mark frame; Twilio echoes it back once playback of
// everything queued before it has finished.
func EncodeMark(streamSid, name string) ([]byte, error) {
	return json.Marshal(outboundFrame{
		Event:     EventMark,
		StreamSid: streamSid,
		Mark:      &MarkPayload{Name: name},
	})
}

// EncodeClear builds a clear frame, which discards audio buffered on the
// Twilio side that has not been played yet.
func EncodeClear(streamSid string) ([]byte, error) {
	return json.Marshal(outboundFrame{
		Event:     EventClear,
		StreamSid: streamSid,
	})
}
