package main

import (
	"github.com/banshee-data/imufusion/internal/serialmux"
	"github.com/banshee-data/imufusion/internal/synth"
)

// replayLines renders n synthetic samples as serial lines, gyro in deg/s
// and the true orientation as the on-board quaternion.
func replayLines(n int, seed uint64) ([]string, error) {
	p := synth.DefaultParams()
	p.Samples = n
	p.Still = n / 4
	p.GyroDegrees = true
	p.Seed = seed
	d, err := synth.Generate(p)
	if err != nil {
		return nil, err
	}

	lines := make([]string, 0, n)
	for i := 0; i < d.Len(); i++ {
		lines = append(lines, serialmux.FormatLine(serialmux.Record{
			ID:      i,
			HasID:   true,
			Acc:     d.Acc[i],
			Gyro:    d.Gyro[i],
			Mag:     d.Mag[i],
			Quat:    d.Truth[i],
			HasQuat: true,
		}))
	}
	return lines, nil
}
