package serialmux

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/banshee-data/imufusion/internal/monitoring"
)

// Stats counts the lines seen by Consume.
type Stats struct {
	lines   atomic.Int64
	records atomic.Int64
	skipped atomic.Int64
	invalid atomic.Int64
}

// Lines returns the number of lines received.
func (s *Stats) Lines() int64 { return s.lines.Load() }

// Records returns the number of lines parsed into records.
func (s *Stats) Records() int64 { return s.records.Load() }

// Skipped returns the number of lines that were not IMU records.
func (s *Stats) Skipped() int64 { return s.skipped.Load() }

// Invalid returns the number of malformed records.
func (s *Stats) Invalid() int64 { return s.invalid.Load() }

// HandleLine parses payload and passes the record to handle. Lines that
// are not records are counted and ignored; malformed records are logged.
func HandleLine(payload string, stats *Stats, handle func(Record) error) error {
	stats.lines.Add(1)
	rec, err := ParseLine(payload)
	switch {
	case errors.Is(err, ErrNotRecord):
		stats.skipped.Add(1)
		monitoring.Debugf("non-record line: %s", payload)
		return nil
	case err != nil:
		stats.invalid.Add(1)
		monitoring.Logf("invalid IMU line %q: %v", payload, err)
		return nil
	}
	stats.records.Add(1)
	return handle(rec)
}

// Consume subscribes to mux and feeds every parsed record to handle until
// ctx is done or the mux closes. An error from handle stops consumption.
func Consume(ctx context.Context, mux SerialMuxInterface, stats *Stats, handle func(Record) error) error {
	id, lines := mux.Subscribe()
	defer mux.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := HandleLine(line, stats, handle); err != nil {
				return err
			}
		}
	}
}
