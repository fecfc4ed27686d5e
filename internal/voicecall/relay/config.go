package relay

import (
	"time"

	"call-relay/internal/clients/openai"
	"call-relay/internal/voice/audio"
)

// Config is the per-call behaviour of a relay. It is built once at startup
// and shared read-only by every relay.
type Config struct {
	VoiceID            string
	SystemInstructions string
	TurnDetectionMode  string
	// VerboseEventTypes lists model event types logged in full.
	VerboseEventTypes map[string]struct{}
	Greeting          string
	Temperature       float64
	AudioFormat       string
	Modalities        []string
	HandshakeDelay    time.Duration
	// ShowTimingMath logs the playback arithmetic behind each truncation.
	ShowTimingMath bool
}

// NewEventSet builds a VerboseEventTypes set.
func NewEventSet(types ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	return set
}

// DefaultConfig returns a config with the protocol defaults filled in and no
// persona.
func DefaultConfig() Config {
	return Config{
		TurnDetectionMode: "server_vad",
		VerboseEventTypes: NewEventSet(openai.DefaultVerboseEventTypes...),
		AudioFormat:       audio.FormatG711Ulaw,
		Modalities:        []string{"text", "audio"},
		Temperature:       0.8,
		HandshakeDelay:    openai.DefaultHandshakeDelay,
	}
}

// SessionConfig maps the relay config onto the model handshake.
func (c Config) SessionConfig() openai.SessionConfig {
	return openai.SessionConfig{
		Voice:             c.VoiceID,
		Instructions:      c.SystemInstructions,
		TurnDetection:     c.TurnDetectionMode,
		InputAudioFormat:  c.AudioFormat,
		OutputAudioFormat: c.AudioFormat,
		Modalities:        c.Modalities,
		Temperature:       c.Temperature,
		Greeting:          c.Greeting,
	}
}

func (c Config) isVerbose(eventType string) bool {
	_, ok := c.VerboseEventTypes[eventType]
	return ok
}

func (c Config) handshakeDelay() time.Duration {
	if c.HandshakeDelay <= 0 {
		return openai.DefaultHandshakeDelay
	}
	return c.HandshakeDelay
}
