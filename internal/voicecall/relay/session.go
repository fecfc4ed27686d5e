package relay

import (
	"errors"
	"fmt"
)

// MarkName is the token attached to every mark sent after an audio chunk.
// Acknowledgements are not matched back to individual marks.
const MarkName = "responsePart"

// ErrClockRegression is returned when a media timestamp is older than the
// latest one seen.
var ErrClockRegression = errors.New("media timestamp regressed")

// CallSession is the state of one call. It is not synchronized; the owning
// Relay serializes access.
type CallSession struct {
	StreamSid string
	CallSid   string

	// LatestMediaTimestampMs is the caller-side clock: the timestamp of the
	// newest inbound media frame. It never decreases.
	LatestMediaTimestampMs int64

	// LastAssistantItemID is the model item currently being played out.
	LastAssistantItemID string

	// PendingMarks holds marks sent while a response streams. It is only
	// checked for emptiness and is cleared wholesale.
	PendingMarks []string

	responseStartMs  int64
	responseInFlight bool
}

// ResponseStart returns the caller clock value at which the current
// response's first chunk was forwarded.
func (s *CallSession) ResponseStart() (int64, bool) {
	return s.responseStartMs, s.responseInFlight
}

// AdvanceClock moves the caller clock forward. A timestamp older than the
// current one is rejected with ErrClockRegression and not applied.
func (s *CallSession) AdvanceClock(timestampMs int64) error {
	if timestampMs < s.LatestMediaTimestampMs {
		return fmt.Errorf("%w: %d < %d", ErrClockRegression, timestampMs, s.LatestMediaTimestampMs)
	}
	s.LatestMediaTimestampMs = timestampMs
	return nil
}

// TrackAudio records that an assistant chunk of itemID was forwarded. The
// first chunk of a response pins the response start to the current caller
// clock; it reports true in that case.
func (s *CallSession) TrackAudio(itemID string) (started bool) {
	if !s.responseInFlight {
		s.responseStartMs = s.LatestMediaTimestampMs
		s.responseInFlight = true
		started = true
	}
	if itemID != "" {
		s.LastAssistantItemID = itemID
	}
	return started
}

// AddMark queues a sent mark.
func (s *CallSession) AddMark(name string) {
	s.PendingMarks = append(s.PendingMarks, name)
}

// Interruption is the outcome of a barge-in on a streaming response.
type Interruption struct {
	ItemID    string
	StartMs   int64
	NowMs     int64
	ElapsedMs int64
}

// ClockAnomaly reports a negative elapsed playback time.
func (i Interruption) ClockAnomaly() bool {
	return i.ElapsedMs < 0
}

// ShouldTruncate reports whether the model item should be truncated.
func (i Interruption) ShouldTruncate() bool {
	return i.ItemID != "" && !i.ClockAnomaly()
}

// Interrupt computes how much of the current response was heard and resets
// the response tracking. It reports false, leaving the session untouched,
// when there is nothing in flight to interrupt.
func (s *CallSession) Interrupt() (Interruption, bool) {
	if len(s.PendingMarks) == 0 || !s.responseInFlight {
		return Interruption{}, false
	}
	in := Interruption{
		ItemID:    s.LastAssistantItemID,
		StartMs:   s.responseStartMs,
		NowMs:     s.LatestMediaTimestampMs,
		ElapsedMs: s.LatestMediaTimestampMs - s.responseStartMs,
	}
	s.ResetResponse()
	return in, true
}

// ResetResponse returns the session to "no response in flight".
func (s *CallSession) ResetResponse() {
	s.PendingMarks = nil
	s.LastAssistantItemID = ""
	s.responseStartMs = 0
	s.responseInFlight = false
}
