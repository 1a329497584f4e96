// Package keyfile reads and writes the section/key text files used for
// sweep configuration and recorded sensor data.
//
// Two layouts share the Store interface. ConfigFile is the INI-like
// configuration layout:
//
//	# comment
//	[General]
//	DataSource = synthetic
//	serialPortNames = {/dev/ttyUSB0, /dev/ttyUSB1}
//
// DataFile is the tag-delimited layout used for long value columns:
//
//	[GYRO_DATA]
//	<gyro_x>*********(double)
//	0.0012
//	...
//	</gyro_x>
package keyfile

import (
	"errors"
	"fmt"
	"io"
	"strconv"
)

var (
	// ErrNoSection is returned when a section does not exist.
	ErrNoSection = errors.New("section not found")
	// ErrNoKey is returned when a key does not exist in its section.
	ErrNoKey = errors.New("key not found")
)

// Store is a section/key/value store that can be serialized.
type Store interface {
	// Sections lists section names in file order.
	Sections() []string
	// Keys lists the keys of a section in file order.
	Keys(section string) ([]string, error)
	// Values returns every value stored under section/key.
	Values(section, key string) ([]string, error)
	// Set replaces the values under section/key, creating both if needed.
	Set(section, key string, values ...string)
	// WriteTo serializes the store in its own layout.
	WriteTo(w io.Writer) (int64, error)
}

// Value returns the single value under section/key. Multi-valued keys
// return their first value.
func Value(s Store, section, key string) (string, error) {
	vals, err := s.Values(section, key)
	if err != nil {
		return "", err
	}
	if len(vals) == 0 {
		return "", fmt.Errorf("%w: %s/%s has no value", ErrNoKey, section, key)
	}
	return vals[0], nil
}

// Floats parses every value under section/key as float64.
func Floats(s Store, section, key string) ([]float64, error) {
	vals, err := s.Values(section, key)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(vals))
	for i, v := range vals {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float '%s' in %s/%s: %w", v, section, key, err)
		}
		out[i] = f
	}
	return out, nil
}

// Int parses the single value under section/key as an int.
func Int(s Store, section, key string) (int, error) {
	v, err := Value(s, section, key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid int '%s' in %s/%s: %w", v, section, key, err)
	}
	return n, nil
}

// SetFloats stores vals under section/key with full precision.
func SetFloats(s Store, section, key string, vals []float64) {
	strs := make([]string, len(vals))
	for i, v := range vals {
		strs[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	s.Set(section, key, strs...)
}

// sections is the ordered storage shared by both layouts.
type sections struct {
	order []string
	keys  map[string][]string
	vals  map[string]map[string][]string
}

func newSections() sections {
	return sections{
		keys: make(map[string][]string),
		vals: make(map[string]map[string][]string),
	}
}

func (s *sections) Sections() []string {
	return append([]string(nil), s.order...)
}

func (s *sections) Keys(section string) ([]string, error) {
	if _, ok := s.vals[section]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoSection, section)
	}
	return append([]string(nil), s.keys[section]...), nil
}

func (s *sections) Values(section, key string) ([]string, error) {
	sec, ok := s.vals[section]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoSection, section)
	}
	v, ok := sec[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrNoKey, section, key)
	}
	return append([]string(nil), v...), nil
}

func (s *sections) Set(section, key string, values ...string) {
	s.addSection(section)
	if _, ok := s.vals[section][key]; !ok {
		s.keys[section] = append(s.keys[section], key)
	}
	s.vals[section][key] = append([]string(nil), values...)
}

func (s *sections) addSection(section string) {
	if _, ok := s.vals[section]; ok {
		return
	}
	s.order = append(s.order, section)
	s.vals[section] = make(map[string][]string)
}

func (s *sections) appendValue(section, key, value string) {
	s.vals[section][key] = append(s.vals[section][key], value)
}

// countingWriter tracks bytes written for WriteTo.
type countingWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (c *countingWriter) printf(format string, args ...any) {
	if c.err != nil {
		return
	}
	n, err := fmt.Fprintf(c.w, format, args...)
	c.n += int64(n)
	c.err = err
}
