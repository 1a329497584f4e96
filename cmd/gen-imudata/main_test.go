package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/imufusion/internal/fsutil"
	"github.com/banshee-data/imufusion/internal/sensordata"
	"github.com/banshee-data/imufusion/internal/synth"
)

func TestRun(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	p := synth.DefaultParams()
	p.Samples = 120
	p.Still = 20

	require.NoError(t, run(fs, options{out: "gen", params: p, walk: "0.1,0,0.2"}))

	d, err := sensordata.Load(fs, Paths("gen"))
	require.NoError(t, err)
	assert.Equal(t, 120, d.Len())
	assert.Len(t, d.Truth, 120)
	assert.InDelta(t, 1, d.Truth[0].Norm(), 1e-9)
}

func TestRun_Invalid(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	p := synth.DefaultParams()

	assert.Error(t, run(fs, options{out: "gen", params: p, walk: "1,2"}))

	p.Samples = 1
	assert.Error(t, run(fs, options{out: "gen", params: p}))
}

func TestParseVec(t *testing.T) {
	v, err := parseVec(" 0.3, 0 ,1e-2")
	require.NoError(t, err)
	assert.Equal(t, r3.Vec{X: 0.3, Z: 0.01}, v)

	_, err = parseVec("x,1,2")
	assert.Error(t, err)
}
