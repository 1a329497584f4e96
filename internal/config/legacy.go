package config

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/banshee-data/imufusion/internal/fsutil"
	"github.com/banshee-data/imufusion/internal/keyfile"
)

// legacyResultsRoot prefixes the result directories named in a sense.cfg.
const legacyResultsRoot = "Results"

// SerialConfig is the serial section of a legacy sense.cfg.
type SerialConfig struct {
	PortNames []string
	BaudRate  int
	Timeout   int // milliseconds
}

// LoadLegacyConfig reads a sense.cfg key file. Keys are read from the
// leading unnamed section:
//
//	Mode = offline
//	DataSource = MadgwickData
//	GyroData = ExampleData/gyro.dat
//	QuatDataResult = quat
//
// QuatDataResult and EulerDataResult name directories under "Results".
func LoadLegacyConfig(fs fsutil.FileSystem, path string) (*SweepConfig, error) {
	store, err := readKeyFile(fs, path)
	if err != nil {
		return nil, err
	}

	cfg := EmptySweepConfig()
	strs := []struct {
		key string
		dst **string
		dir bool
	}{
		{"Mode", &cfg.Mode, false},
		{"DataSource", &cfg.DataSource, false},
		{"GyroData", &cfg.GyroData, false},
		{"AccData", &cfg.AccData, false},
		{"MagData", &cfg.MagData, false},
		{"QuatData", &cfg.QuatData, false},
		{"QuatDataResult", &cfg.ResultsDir, true},
		{"EulerDataResult", &cfg.EulerDir, true},
	}
	for _, s := range strs {
		v, err := keyfile.Value(store, "", s.key)
		if errors.Is(err, keyfile.ErrNoKey) || errors.Is(err, keyfile.ErrNoSection) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", s.key, err)
		}
		if s.dir {
			v = filepath.Join(legacyResultsRoot, v)
		}
		*s.dst = ptrString(v)
	}

	if v, err := keyfile.Value(store, "", "Repetitions"); err == nil {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid Repetitions '%s': %w", v, err)
		}
		cfg.Repetitions = ptrInt(n)
	}
	if v, err := keyfile.Value(store, "", "SamplePeriod"); err == nil {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid SamplePeriod '%s': %w", v, err)
		}
		cfg.SamplePeriod = ptrFloat64(f)
	}
	if v, err := keyfile.Value(store, "", "GyroInDegrees"); err == nil {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid GyroInDegrees '%s': %w", v, err)
		}
		cfg.GyroInDegrees = ptrBool(b)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadSerialConfig reads the serial port settings from section of a
// legacy key file. Missing keys keep their zero values.
func LoadSerialConfig(fs fsutil.FileSystem, path, section string) (SerialConfig, error) {
	var sc SerialConfig
	store, err := readKeyFile(fs, path)
	if err != nil {
		return sc, err
	}

	names, err := store.Values(section, "serialPortNames")
	if err != nil && !errors.Is(err, keyfile.ErrNoKey) {
		return sc, fmt.Errorf("failed to read serial section: %w", err)
	}
	sc.PortNames = names

	if n, err := keyfile.Int(store, section, "serialBaudRate"); err == nil {
		sc.BaudRate = n
	} else if !errors.Is(err, keyfile.ErrNoKey) {
		return sc, err
	}
	if n, err := keyfile.Int(store, section, "serialTimeout"); err == nil {
		sc.Timeout = n
	} else if !errors.Is(err, keyfile.ErrNoKey) {
		return sc, err
	}
	return sc, nil
}

func readKeyFile(fs fsutil.FileSystem, path string) (*keyfile.ConfigFile, error) {
	cleanPath := filepath.Clean(path)
	data, err := readLimited(fs, cleanPath)
	if err != nil {
		return nil, err
	}
	store, err := keyfile.ParseConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", cleanPath, err)
	}
	return store, nil
}
