package sweep

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogGrid(t *testing.T) {
	g := LogGrid(0.01, 1000)
	require.Len(t, g, 54)
	assert.Equal(t, 0.01, g[0])
	assert.Equal(t, 0.09, g[8])
	assert.Equal(t, 0.1, g[9])
	assert.Equal(t, 0.7, g[15])
	assert.Equal(t, 1000.0, g[45])
	assert.Equal(t, 9000.0, g[53])

	for i := 1; i < len(g); i++ {
		assert.Greater(t, g[i], g[i-1], "grid must be increasing at %d", i)
	}
}

func TestLogGrid_Invalid(t *testing.T) {
	assert.Nil(t, LogGrid(0, 10))
	assert.Nil(t, LogGrid(-1, 10))
	assert.Nil(t, LogGrid(10, 1))
	assert.Len(t, LogGrid(1, 1), 9)
}

func TestParseRangeSpec(t *testing.T) {
	spec, err := ParseRangeSpec("0:1:0.25")
	require.NoError(t, err)
	assert.Equal(t, RangeSpec{Min: 0, Max: 1, Step: 0.25}, spec)

	for _, bad := range []string{"1:2", "a:1:1", "0:b:1", "0:1:c", "0:1:0", "0:1:-1"} {
		_, err := ParseRangeSpec(bad)
		assert.Error(t, err, bad)
	}
}

func TestGenerateRange(t *testing.T) {
	tests := []struct {
		name string
		spec RangeSpec
		want []float64
	}{
		{"quarters", RangeSpec{0, 1, 0.25}, []float64{0, 0.25, 0.5, 0.75, 1}},
		{"tenths", RangeSpec{0.1, 0.5, 0.1}, []float64{0.1, 0.2, 0.3, 0.4, 0.5}},
		{"single", RangeSpec{2, 2, 1}, []float64{2}},
		{"inverted", RangeSpec{2, 1, 1}, nil},
		{"zero step", RangeSpec{0, 1, 0}, nil},
		{"too many", RangeSpec{0, 1e6, 1}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, GenerateRange(tt.spec)); diff != "" {
				t.Errorf("GenerateRange mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseGains(t *testing.T) {
	tests := []struct {
		in      string
		want    []float64
		wantErr bool
	}{
		{in: "", want: nil},
		{in: "0.1, 1,10", want: []float64{0.1, 1, 10}},
		{in: "1:10", want: []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 20, 30, 40, 50, 60, 70, 80, 90}},
		{in: "0:0.3:0.1", want: []float64{0, 0.1, 0.2, 0.3}},
		{in: "1,x", wantErr: true},
		{in: "x:10", wantErr: true},
		{in: "1:y", wantErr: true},
		{in: "10:1", wantErr: true},
		{in: "0:1:0", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseGains(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
