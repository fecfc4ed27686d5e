package twilio

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFrame(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Frame
	}{
		{
			name:  "connected",
			input: `{"event":"connected","protocol":"Call","version":"1.0.0"}`,
			want:  Frame{Kind: FrameConnected, Event: EventConnected},
		},
		{
			name: "start carries stream and call identifiers",
			input: `{"event":"start","sequenceNumber":"1","start":{"streamSid":"SS123","accountSid":"AC1","callSid":"CA1",
				"tracks":["inbound"],"customParameters":{"campaign":"spring"},
				"mediaFormat":{"encoding":"audio/x-mulaw","sampleRate":8000,"channels":1}},"streamSid":"SS123"}`,
			want: Frame{
				Kind:             FrameStart,
				Event:            EventStart,
				StreamSid:        "SS123",
				CallSid:          "CA1",
				AccountSid:       "AC1",
				CustomParameters: map[string]string{"campaign": "spring"},
			},
		},
		{
			name:  "media with string timestamp",
			input: `{"event":"media","streamSid":"SS123","media":{"track":"inbound","chunk":"2","timestamp":"5000","payload":"AAEC"}}`,
			want:  Frame{Kind: FrameMedia, Event: EventMedia, StreamSid: "SS123", TimestampMs: 5000, Payload: "AAEC"},
		},
		{
			name:  "media with numeric timestamp",
			input: `{"event":"media","media":{"timestamp":42,"payload":""}}`,
			want:  Frame{Kind: FrameMedia, Event: EventMedia, TimestampMs: 42},
		},
		{
			name:  "mark acknowledgement",
			input: `{"event":"mark","streamSid":"SS123","mark":{"name":"responsePart"}}`,
			want:  Frame{Kind: FrameMark, Event: EventMark, StreamSid: "SS123", MarkName: "responsePart"},
		},
		{
			name:  "dtmf",
			input: `{"event":"dtmf","streamSid":"SS123","dtmf":{"track":"inbound_track","digit":"5"}}`,
			want:  Frame{Kind: FrameDTMF, Event: EventDTMF, StreamSid: "SS123", Digit: "5"},
		},
		{
			name:  "stop",
			input: `{"event":"stop","streamSid":"SS123","stop":{"accountSid":"AC1","callSid":"CA1"}}`,
			want:  Frame{Kind: FrameStop, Event: EventStop, StreamSid: "SS123", CallSid: "CA1", AccountSid: "AC1"},
		},
		{
			name:  "unknown events are passed through as other",
			input: `{"event":"something-new","streamSid":"SS123"}`,
			want:  Frame{Kind: FrameOther, Event: "something-new", StreamSid: "SS123"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeFrame([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeFrameMalformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "not json", input: `{"event":`},
		{name: "start without payload", input: `{"event":"start"}`},
		{name: "start without stream sid", input: `{"event":"start","start":{"callSid":"CA1"}}`},
		{name: "media without payload object", input: `{"event":"media"}`},
		{name: "media with invalid base64", input: `{"event":"media","media":{"timestamp":"1","payload":"@@@"}}`},
		{name: "media with invalid timestamp", input: `{"event":"media","media":{"timestamp":"soon","payload":""}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeFrame([]byte(tt.input))
			assert.ErrorIs(t, err, ErrMalformedFrame)
		})
	}
}

func TestEncodeOutboundFrames(t *testing.T) {
	media, err := EncodeMedia("SS123", "AAEC")
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"media","streamSid":"SS123","media":{"payload":"AAEC"}}`, string(media))

	mark, err := EncodeMark("SS123", "responsePart")
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"mark","streamSid":"SS123","mark":{"name":"responsePart"}}`, string(mark))

	clr, err := EncodeClear("SS123")
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"clear","streamSid":"SS123"}`, string(clr))
}

func TestMillisUnmarshal(t *testing.T) {
	var v struct {
		T Millis `json:"t"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"t":null}`), &v))
	assert.Equal(t, Millis(0), v.T)
	require.NoError(t, json.Unmarshal([]byte(`{"t":""}`), &v))
	assert.Equal(t, Millis(0), v.T)
	require.NoError(t, json.Unmarshal([]byte(`{"t":"1234"}`), &v))
	assert.Equal(t, Millis(1234), v.T)
}
