package serialmux

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSerialPort serves a fixed byte stream, then blocks in short sleeps
// until closed.
type TestSerialPort struct {
	mu        sync.Mutex
	readData  []byte
	readIndex int
	written   bytes.Buffer
	writeErr  error
	readErr   error
	short     bool
	closed    bool
}

func NewTestSerialPort(data string) *TestSerialPort {
	return &TestSerialPort{readData: []byte(data)}
}

func (p *TestSerialPort) Read(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, io.EOF
	}
	if p.readIndex >= len(p.readData) {
		if p.readErr != nil {
			return 0, p.readErr
		}
		p.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		p.mu.Lock()
		return 0, nil
	}
	n := copy(buf, p.readData[p.readIndex:])
	p.readIndex += n
	return n, nil
}

func (p *TestSerialPort) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	if p.short {
		return p.written.Write(data[:len(data)/2])
	}
	return p.written.Write(data)
}

func (p *TestSerialPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *TestSerialPort) WrittenData() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.String()
}

func recv(t *testing.T, c <-chan string) string {
	t.Helper()
	select {
	case l, ok := <-c:
		require.True(t, ok, "channel closed")
		return l
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for line")
		return ""
	}
}

func TestSerialMux_SubscribeUnsubscribe(t *testing.T) {
	mux := NewSerialMux(NewTestSerialPort(""))

	id1, c1 := mux.Subscribe()
	id2, _ := mux.Subscribe()
	assert.NotEqual(t, id1, id2)
	assert.Len(t, mux.subscribers, 2)
	assert.Equal(t, subscriberBuffer, cap(c1))

	mux.Unsubscribe(id1)
	_, ok := <-c1
	assert.False(t, ok)
	assert.Len(t, mux.subscribers, 1)

	mux.Unsubscribe(id1)
	mux.Unsubscribe("missing")
	assert.Len(t, mux.subscribers, 1)
}

func TestSerialMux_SendCommand(t *testing.T) {
	tests := []struct {
		name    string
		command string
		want    string
	}{
		{"adds newline", "R100", "R100\n"},
		{"keeps newline", "Z\n", "Z\n"},
		{"empty", "", "\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			port := NewTestSerialPort("")
			require.NoError(t, NewSerialMux(port).SendCommand(tt.command))
			assert.Equal(t, tt.want, port.WrittenData())
		})
	}
}

func TestSerialMux_SendCommand_Errors(t *testing.T) {
	boom := errors.New("write failed")
	port := NewTestSerialPort("")
	port.writeErr = boom
	assert.ErrorIs(t, NewSerialMux(port).SendCommand("Z"), boom)

	port = NewTestSerialPort("")
	port.short = true
	assert.ErrorIs(t, NewSerialMux(port).SendCommand("R100"), ErrWriteFailed)
}

func TestSerialMux_Monitor(t *testing.T) {
	lines := []string{
		"0 A 0 0 -1 G 0 0 0 M 1 0 0",
		"1 A 0 0 -1 G 0.5 0 0 M 1 0 0",
		"IMU ready",
	}
	var data string
	for _, l := range lines {
		data += l + "\r\n"
	}
	mux := NewSerialMux(NewTestSerialPort(data))
	_, c1 := mux.Subscribe()
	_, c2 := mux.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mux.Monitor(ctx) }()

	for _, want := range lines {
		assert.Equal(t, want, recv(t, c1))
		assert.Equal(t, want, recv(t, c2))
	}
	require.NotNil(t, mux.LastLine())
	assert.Equal(t, "IMU ready", mux.LastLine().Text)
	assert.False(t, mux.LastLine().ReceivedAt.IsZero())

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Monitor did not stop")
	}
}

func TestSerialMux_Monitor_DropsForSlowSubscriber(t *testing.T) {
	var data bytes.Buffer
	for i := 0; i < subscriberBuffer+10; i++ {
		data.WriteString("A 0 0 -1 G 0 0 0 M 1 0 0\n")
	}
	port := NewTestSerialPort(data.String())
	port.readErr = io.ErrUnexpectedEOF
	mux := NewSerialMux(port)
	mux.Subscribe()

	err := mux.Monitor(context.Background())
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, int64(10), mux.Dropped())
}

func TestSerialMux_Monitor_EOF(t *testing.T) {
	r := &eofPort{Reader: bytes.NewBufferString("a\nb\n")}
	mux := NewSerialMux[SerialPorter](r)
	_, c := mux.Subscribe()

	require.NoError(t, mux.Monitor(context.Background()))
	assert.Equal(t, "a", recv(t, c))
	assert.Equal(t, "b", recv(t, c))
}

type eofPort struct {
	io.Reader
}

func (eofPort) Write(p []byte) (int, error) { return len(p), nil }
func (eofPort) Close() error                { return nil }

func TestSerialMux_Close(t *testing.T) {
	port := NewTestSerialPort("")
	mux := NewSerialMux(port)
	_, c1 := mux.Subscribe()
	id2, c2 := mux.Subscribe()

	done := make(chan error, 1)
	go func() { done <- mux.Monitor(context.Background()) }()

	require.NoError(t, mux.Close())
	require.NoError(t, mux.Close())

	for _, c := range []chan string{c1, c2} {
		_, ok := <-c
		assert.False(t, ok)
	}
	mux.Unsubscribe(id2)
	assert.True(t, port.closed)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Monitor did not stop after Close")
	}
}
