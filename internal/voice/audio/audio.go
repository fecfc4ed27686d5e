// Package audio holds helpers for the base64 audio payloads exchanged with
// Twilio and the realtime model. Audio is passed through untouched; both
// sides agree on G.711 µ-law at 8kHz.
package audio

import (
	"encoding/base64"
)

// Codec names as used by the realtime model session config.
const (
	FormatG711Ulaw = "g711_ulaw"
	FormatG711Alaw = "g711_alaw"
	FormatPCM16    = "pcm16"
)

func Base64ToBytes(base64String string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(base64String)
}

func BytesToBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DurationMs returns the playback length of n raw bytes in the given format.
// G.711 is one byte per sample at 8kHz; pcm16 is two bytes per sample at 24kHz.
func DurationMs(n int, format string) int64 {
	switch format {
	case FormatG711Ulaw, FormatG711Alaw:
		return int64(n) / 8
	case FormatPCM16:
		return int64(n) / 48
	default:
		return 0
	}
}

// PayloadDurationMs is DurationMs for a base64 payload. Undecodable payloads
// report zero.
func PayloadDurationMs(payload, format string) int64 {
	raw, err := Base64ToBytes(payload)
	if err != nil {
		return 0
	}
	return DurationMs(len(raw), format)
}
