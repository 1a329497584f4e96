package serialmux

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/imufusion/internal/quaternion"
)

// ErrNotRecord is returned for lines that carry no accelerometer field,
// such as boot banners or command echoes.
var ErrNotRecord = errors.New("line is not an IMU record")

// Record is one parsed IMU line. Units are whatever the device streams.
type Record struct {
	ID      int
	HasID   bool
	Acc     r3.Vec
	Gyro    r3.Vec
	Mag     r3.Vec
	Quat    quaternion.Quaternion
	HasQuat bool
}

// field markers in the order a record carries them.
const markers = "AGMQ"

// ParseLine parses "[id] A ax ay az G gx gy gz M mx my mz [Q qw qx qy qz]".
// Values are separated by spaces, tabs or commas; markers may touch the
// numbers they introduce.
func ParseLine(line string) (Record, error) {
	var rec Record
	line = strings.TrimSpace(line)
	start := strings.IndexByte(line, 'A')
	if start < 0 {
		return rec, ErrNotRecord
	}
	if id := strings.Trim(line[:start], " \t,"); id != "" {
		n, err := strconv.Atoi(id)
		if err != nil {
			return rec, fmt.Errorf("invalid record id %q: %w", id, err)
		}
		rec.ID, rec.HasID = n, true
	}

	fields := make(map[byte]string, len(markers))
	cur, from := byte('A'), start+1
	for i := from; i <= len(line); i++ {
		if i < len(line) && strings.IndexByte(markers, line[i]) < 0 {
			continue
		}
		if _, dup := fields[cur]; dup {
			return rec, fmt.Errorf("duplicate %c field", cur)
		}
		fields[cur] = line[from:i]
		if i < len(line) {
			cur, from = line[i], i+1
		}
	}

	for _, f := range []struct {
		marker byte
		dst    *r3.Vec
	}{
		{'A', &rec.Acc},
		{'G', &rec.Gyro},
		{'M', &rec.Mag},
	} {
		s, ok := fields[f.marker]
		if !ok {
			return rec, fmt.Errorf("missing %c field", f.marker)
		}
		vals, err := parseValues(s, 3)
		if err != nil {
			return rec, fmt.Errorf("%c field: %w", f.marker, err)
		}
		*f.dst = r3.Vec{X: vals[0], Y: vals[1], Z: vals[2]}
	}

	if s, ok := fields['Q']; ok {
		vals, err := parseValues(s, 4)
		if err != nil {
			return rec, fmt.Errorf("Q field: %w", err)
		}
		rec.Quat = quaternion.New(vals[0], vals[1], vals[2], vals[3])
		rec.HasQuat = true
	}
	return rec, nil
}

func parseValues(s string, n int) ([]float64, error) {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '\t' || r == ','
	})
	if len(parts) != n {
		return nil, fmt.Errorf("want %d values, got %d", n, len(parts))
	}
	out := make([]float64, n)
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value '%s': %w", p, err)
		}
		out[i] = v
	}
	return out, nil
}

// FormatLine renders rec in the form ParseLine accepts.
func FormatLine(rec Record) string {
	var b strings.Builder
	if rec.HasID {
		b.WriteString(strconv.Itoa(rec.ID))
		b.WriteByte(' ')
	}
	writeField := func(marker byte, vals ...float64) {
		b.WriteByte(marker)
		for _, v := range vals {
			b.WriteByte(' ')
			b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		}
	}
	writeField('A', rec.Acc.X, rec.Acc.Y, rec.Acc.Z)
	b.WriteByte(' ')
	writeField('G', rec.Gyro.X, rec.Gyro.Y, rec.Gyro.Z)
	b.WriteByte(' ')
	writeField('M', rec.Mag.X, rec.Mag.Y, rec.Mag.Z)
	if rec.HasQuat {
		b.WriteByte(' ')
		writeField('Q', rec.Quat.Slice()...)
	}
	return b.String()
}
