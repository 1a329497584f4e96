package serialmux

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleLine(t *testing.T) {
	var stats Stats
	var got []Record
	handle := func(r Record) error {
		got = append(got, r)
		return nil
	}

	require.NoError(t, HandleLine("banner", &stats, handle))
	require.NoError(t, HandleLine("A 1 2 G 1 2 3 M 1 2 3", &stats, handle))
	require.NoError(t, HandleLine("0 A 0 0 -1 G 0 0 0 M 1 0 0", &stats, handle))

	assert.Equal(t, int64(3), stats.Lines())
	assert.Equal(t, int64(1), stats.Skipped())
	assert.Equal(t, int64(1), stats.Invalid())
	assert.Equal(t, int64(1), stats.Records())
	require.Len(t, got, 1)
	assert.Equal(t, -1.0, got[0].Acc.Z)

	boom := errors.New("boom")
	err := HandleLine("A 0 0 -1 G 0 0 0 M 1 0 0", &stats, func(Record) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestConsume(t *testing.T) {
	port := NewTestSerialPort("hello\nA 0 0 -1 G 0 0 0 M 1 0 0\nA 1 1 1 G 1 1 1 M 1 1 1\n")
	mux := NewSerialMux(port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var stats Stats
	records := make(chan Record, 4)
	consumed := make(chan error, 1)
	go func() {
		consumed <- Consume(ctx, mux, &stats, func(r Record) error {
			records <- r
			return nil
		})
	}()

	// Subscribe happens inside Consume; wait for it before lines flow.
	require.Eventually(t, func() bool {
		mux.subscriberMu.Lock()
		defer mux.subscriberMu.Unlock()
		return len(mux.subscribers) == 1
	}, time.Second, 5*time.Millisecond)

	go mux.Monitor(ctx)

	for i := 0; i < 2; i++ {
		select {
		case <-records:
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for record %d", i)
		}
	}
	assert.Equal(t, int64(1), stats.Skipped())

	cancel()
	select {
	case err := <-consumed:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Consume did not return after cancel")
	}
}

func TestConsume_MuxClosed(t *testing.T) {
	mux := NewSerialMux(NewTestSerialPort(""))
	var stats Stats
	done := make(chan error, 1)
	go func() {
		done <- Consume(context.Background(), mux, &stats, func(Record) error { return nil })
	}()
	require.Eventually(t, func() bool {
		mux.subscriberMu.Lock()
		defer mux.subscriberMu.Unlock()
		return len(mux.subscribers) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, mux.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Consume did not return after Close")
	}
}
