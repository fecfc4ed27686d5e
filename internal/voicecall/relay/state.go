package relay

// State is a relay's lifecycle position. States only move forward.
type State int32

const (
	// StateConnecting: telephony socket accepted, model dial in progress.
	StateConnecting State = iota
	// StateHandshaking: model socket open, session handshake scheduled or sent.
	StateHandshaking
	// StateStreaming: the model acknowledged the session; audio flows both ways.
	StateStreaming
	// StateClosing: one side ended; the other is being closed.
	StateClosing
	// StateClosed: terminal.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateStreaming:
		return "streaming"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// forwardsAudio reports whether caller audio is sent to the model. Audio is
// forwarded as soon as the model socket is open, before the session is
// acknowledged.
func (s State) forwardsAudio() bool {
	return s == StateHandshaking || s == StateStreaming
}

func (s State) closing() bool {
	return s >= StateClosing
}
