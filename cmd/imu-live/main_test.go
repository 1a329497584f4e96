package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/imufusion/internal/config"
	"github.com/banshee-data/imufusion/internal/fusion"
	"github.com/banshee-data/imufusion/internal/live"
	"github.com/banshee-data/imufusion/internal/serialmux"
	"github.com/banshee-data/imufusion/internal/timeutil"
	"github.com/banshee-data/imufusion/internal/units"
)

func TestSplitPorts(t *testing.T) {
	assert.Equal(t, []string{"/dev/ttyUSB0", "/dev/ttyACM0"}, splitPorts(" /dev/ttyUSB0, ,/dev/ttyACM0,"))
	assert.Nil(t, splitPorts(""))
}

func TestApplySerialConfig(t *testing.T) {
	paths := []string{"/dev/a"}
	opts := serialmux.PortOptions{BaudRate: 115200}

	gotPaths, gotOpts := applySerialConfig(config.SerialConfig{}, paths, opts)
	assert.Equal(t, paths, gotPaths)
	assert.Equal(t, opts, gotOpts)

	gotPaths, gotOpts = applySerialConfig(config.SerialConfig{
		PortNames: []string{"/dev/b", "/dev/c"},
		BaudRate:  9600,
		Timeout:   250,
	}, paths, opts)
	assert.Equal(t, []string{"/dev/b", "/dev/c"}, gotPaths)
	assert.Equal(t, serialmux.PortOptions{BaudRate: 9600, ReadTimeout: 250 * time.Millisecond}, gotOpts)
}

func TestReplayLines(t *testing.T) {
	lines, err := replayLines(40, 7)
	require.NoError(t, err)
	require.Len(t, lines, 40)

	for i, l := range lines {
		rec, err := serialmux.ParseLine(l)
		require.NoError(t, err, "line %d: %s", i, l)
		assert.Equal(t, i, rec.ID)
		assert.True(t, rec.HasQuat)
	}

	again, err := replayLines(40, 7)
	require.NoError(t, err)
	assert.Equal(t, lines, again)

	_, err = replayLines(1, 7)
	assert.Error(t, err)
}

func TestNewHandler(t *testing.T) {
	port := serialmux.NewBufferPort()
	m := serialmux.NewSerialMux(port)
	f, err := fusion.New(fusion.KindMadgwickRevised, 0.5, fusion.DefaultOptions())
	require.NoError(t, err)
	est := live.NewEstimator(f, timeutil.NewMockClock(time.Unix(0, 0)), live.Options{SamplePeriod: 0.01})

	lines, err := replayLines(20, 1)
	require.NoError(t, err)
	var stats serialmux.Stats
	for _, l := range lines {
		require.NoError(t, serialmux.HandleLine(l, &stats, func(r serialmux.Record) error {
			est.Update(r)
			return nil
		}))
	}

	h := newHandler(m, est, &stats, units.Deg)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/orientation", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var o live.Orientation
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&o))
	assert.Equal(t, "madgwick-revised", o.Filter)
	assert.Equal(t, int64(20), o.Samples)
	require.NotNil(t, o.DeviceErrorDeg)

	req := httptest.NewRequest(http.MethodGet, "/debug/send-command", nil)
	req.RemoteAddr = "127.0.0.1:1234"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestFilterOptions(t *testing.T) {
	opts := filterOptions(10, 60, true, true)
	assert.Equal(t, 10.0, opts.FieldMin)
	assert.Equal(t, 60.0, opts.FieldMax)
	assert.True(t, opts.RejectField)
	assert.True(t, opts.LegacyFieldResidual)
	assert.Equal(t, fusion.DefaultOptions().MagReference, opts.MagReference)

	_, err := fusion.New(fusion.KindMadgwickOriginal, 0.1, opts)
	require.NoError(t, err)
}
