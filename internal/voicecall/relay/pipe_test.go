package relay

import (
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type pipeMessage struct {
	data []byte
	err  error
}

// pipeConn is an in-memory websocket endpoint. Messages queued with send
// are read in order; hangup queues a normal close from the remote side.
type pipeConn struct {
	in        chan pipeMessage
	closed    chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	written [][]byte
	closes  int
	stall   bool
	stalled int
}

func newPipeConn() *pipeConn {
	return &pipeConn{
		in:     make(chan pipeMessage, 64),
		closed: make(chan struct{}),
	}
}

func (p *pipeConn) ReadMessage() (int, []byte, error) {
	select {
	case msg := <-p.in:
		if msg.err != nil {
			return 0, nil, msg.err
		}
		return websocket.TextMessage, msg.data, nil
	case <-p.closed:
		return 0, nil, net.ErrClosed
	}
}

func (p *pipeConn) WriteMessage(messageType int, data []byte) error {
	p.mu.Lock()
	if p.stall {
		p.stalled++
		p.mu.Unlock()
		<-p.closed
		return net.ErrClosed
	}
	defer p.mu.Unlock()
	if messageType == websocket.TextMessage {
		p.written = append(p.written, append([]byte(nil), data...))
	}
	return nil
}

func (p *pipeConn) WriteControl(int, []byte, time.Time) error {
	return nil
}

func (p *pipeConn) SetWriteDeadline(time.Time) error {
	return nil
}

// stallWrites makes every later write block until the conn is closed.
func (p *pipeConn) stallWrites() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stall = true
}

func (p *pipeConn) stalledWrites() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stalled
}

func (p *pipeConn) Close() error {
	p.mu.Lock()
	p.closes++
	p.mu.Unlock()
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}

func (p *pipeConn) send(t *testing.T, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	p.in <- pipeMessage{data: data}
}

func (p *pipeConn) sendRaw(data string) {
	p.in <- pipeMessage{data: []byte(data)}
}

func (p *pipeConn) hangup() {
	p.in <- pipeMessage{err: &websocket.CloseError{Code: websocket.CloseNormalClosure}}
}

func (p *pipeConn) closeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closes
}

// messages returns every written JSON message whose key field equals value.
func (p *pipeConn) messages(key, value string) []map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []map[string]any
	for _, data := range p.written {
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			continue
		}
		if m[key] == value {
			out = append(out, m)
		}
	}
	return out
}

func (p *pipeConn) firstMessage() map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.written) == 0 {
		return nil
	}
	var m map[string]any
	_ = json.Unmarshal(p.written[0], &m)
	return m
}
