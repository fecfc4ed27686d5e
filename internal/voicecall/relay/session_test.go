package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdvanceClockIsMonotonic(t *testing.T) {
	var s CallSession
	require.NoError(t, s.AdvanceClock(4200))
	require.NoError(t, s.AdvanceClock(4200))

	err := s.AdvanceClock(4000)
	assert.ErrorIs(t, err, ErrClockRegression)
	assert.Equal(t, int64(4200), s.LatestMediaTimestampMs)
}

func TestTrackAudioPinsStartOncePerResponse(t *testing.T) {
	var s CallSession
	s.LatestMediaTimestampMs = 1000
	assert.True(t, s.TrackAudio("item_1"))

	s.LatestMediaTimestampMs = 1500
	assert.False(t, s.TrackAudio("item_1"))
	assert.False(t, s.TrackAudio(""))

	start, ok := s.ResponseStart()
	assert.True(t, ok)
	assert.Equal(t, int64(1000), start)
	assert.Equal(t, "item_1", s.LastAssistantItemID)
}

func TestTrackAudioAtClockZero(t *testing.T) {
	var s CallSession
	assert.True(t, s.TrackAudio("item_1"))

	s.LatestMediaTimestampMs = 300
	assert.False(t, s.TrackAudio("item_1"))

	start, ok := s.ResponseStart()
	assert.True(t, ok)
	assert.Zero(t, start)
}

func TestInterruptComputesElapsedAndResets(t *testing.T) {
	s := CallSession{StreamSid: "SS123", LatestMediaTimestampMs: 4200}
	s.TrackAudio("item_1")
	s.AddMark(MarkName)
	s.LatestMediaTimestampMs = 5000

	in, ok := s.Interrupt()
	require.True(t, ok)
	assert.Equal(t, Interruption{ItemID: "item_1", StartMs: 4200, NowMs: 5000, ElapsedMs: 800}, in)
	assert.True(t, in.ShouldTruncate())
	assert.False(t, in.ClockAnomaly())

	assert.Empty(t, s.PendingMarks)
	assert.Empty(t, s.LastAssistantItemID)
	_, inFlight := s.ResponseStart()
	assert.False(t, inFlight)
	assert.Equal(t, "SS123", s.StreamSid)
	assert.Equal(t, int64(5000), s.LatestMediaTimestampMs)
}

func TestInterruptWithoutMarksIsNoop(t *testing.T) {
	s := CallSession{LatestMediaTimestampMs: 4200}
	s.TrackAudio("item_1")

	_, ok := s.Interrupt()
	assert.False(t, ok)
	assert.Equal(t, "item_1", s.LastAssistantItemID)
}

func TestInterruptNegativeElapsed(t *testing.T) {
	s := CallSession{LatestMediaTimestampMs: 100}
	s.TrackAudio("item_1")
	s.AddMark(MarkName)
	s.responseStartMs = 300

	in, ok := s.Interrupt()
	require.True(t, ok)
	assert.Equal(t, int64(-200), in.ElapsedMs)
	assert.True(t, in.ClockAnomaly())
	assert.False(t, in.ShouldTruncate())
	assert.Empty(t, s.PendingMarks)
}

func TestInterruptWithoutItemSkipsTruncate(t *testing.T) {
	s := CallSession{LatestMediaTimestampMs: 100}
	s.TrackAudio("")
	s.AddMark(MarkName)

	in, ok := s.Interrupt()
	require.True(t, ok)
	assert.False(t, in.ShouldTruncate())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "streaming", StateStreaming.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "unknown", State(42).String())
}
