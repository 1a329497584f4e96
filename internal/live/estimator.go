// Package live runs one fusion filter on the records streamed by a
// serial-attached IMU and publishes the latest orientation.
package live

import (
	"context"
	"sync"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/imufusion/internal/fusion"
	"github.com/banshee-data/imufusion/internal/monitoring"
	"github.com/banshee-data/imufusion/internal/quaternion"
	"github.com/banshee-data/imufusion/internal/serialmux"
	"github.com/banshee-data/imufusion/internal/timeutil"
	"github.com/banshee-data/imufusion/internal/units"
)

// Options controls how records are turned into filter samples.
type Options struct {
	// SamplePeriod fixes dt in seconds. Zero measures dt between records
	// with the clock.
	SamplePeriod float64
	// DefaultPeriod is used for the first record and whenever a measured
	// dt is not positive or exceeds MaxPeriod.
	DefaultPeriod float64
	MaxPeriod     float64

	// GyroUnits is the unit of streamed angular rates (units.Deg or
	// units.Rad).
	GyroUnits string

	// Smoothing is the window of the circular moving average of the
	// reported Euler angles.
	Smoothing int

	// MadgwickFrame converts acc and mag with fusion.FlipX before they reach
	// a Madgwick-original filter.
	MadgwickFrame bool

	// InitFromDevice starts from the first on-board quaternion instead of
	// the identity.
	InitFromDevice bool
}

// DefaultOptions returns options for a 100 Hz board streaming deg/s.
func DefaultOptions() Options {
	return Options{
		DefaultPeriod: 0.01,
		MaxPeriod:     0.5,
		GyroUnits:     units.Deg,
		Smoothing:     10,
	}
}

// Orientation is a published estimate. Angles are degrees; Euler angles
// are those of the conjugated quaternion, as in sweep output.
type Orientation struct {
	Filter     string     `json:"filter"`
	Gain       float64    `json:"gain"`
	Quaternion [4]float64 `json:"quaternion"`
	Euler      [3]float64 `json:"euler"`
	Smoothed   [3]float64 `json:"smoothed"`

	// Device is the on-board estimate of the last record, when it has one.
	Device         *[4]float64 `json:"device,omitempty"`
	DeviceErrorDeg *float64    `json:"device_error_deg,omitempty"`

	AccValid  bool      `json:"acc_valid"`
	MagValid  bool      `json:"mag_valid"`
	Samples   int64     `json:"samples"`
	Resets    int64     `json:"resets"`
	Dt        float64   `json:"dt"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Estimator owns a filter. Update must be called from one goroutine;
// Snapshot may be called from any.
type Estimator struct {
	filter fusion.Filter
	clock  timeutil.Clock
	opts   Options
	flip   bool

	q       quaternion.Quaternion
	last    time.Time
	smooth  [3]*AngleAverage
	samples int64
	resets  int64
	reset   chan struct{}

	mu    sync.RWMutex
	state Orientation
}

// NewEstimator wraps f. Zero option fields take their DefaultOptions value.
func NewEstimator(f fusion.Filter, clock timeutil.Clock, opts Options) *Estimator {
	def := DefaultOptions()
	if opts.DefaultPeriod <= 0 {
		opts.DefaultPeriod = def.DefaultPeriod
	}
	if opts.MaxPeriod <= 0 {
		opts.MaxPeriod = def.MaxPeriod
	}
	if opts.GyroUnits == "" {
		opts.GyroUnits = def.GyroUnits
	}
	e := &Estimator{
		filter: f,
		clock:  clock,
		opts:   opts,
		flip:   opts.MadgwickFrame && f.Name() == string(fusion.KindMadgwickOriginal),
		q:      quaternion.Identity(),
		reset:  make(chan struct{}, 1),
		state:  Orientation{Filter: f.Name(), Gain: f.Gain()},
	}
	e.state.Quaternion = [4]float64{1, 0, 0, 0}
	e.initSmoothing()
	return e
}

func (e *Estimator) initSmoothing() {
	for i := range e.smooth {
		e.smooth[i] = NewAngleAverage(e.opts.Smoothing)
	}
}

// RequestReset asks the updating goroutine to restart from the identity
// before the next record.
func (e *Estimator) RequestReset() {
	select {
	case e.reset <- struct{}{}:
	default:
	}
}

func (e *Estimator) restart() {
	e.q = quaternion.Identity()
	e.last = time.Time{}
	e.samples = 0
	e.resets++
	e.initSmoothing()
	if r, ok := e.filter.(interface{ Reset() }); ok {
		r.Reset()
	}
}

func (e *Estimator) period() float64 {
	if e.opts.SamplePeriod > 0 {
		return e.opts.SamplePeriod
	}
	now := e.clock.Now()
	prev := e.last
	e.last = now
	if prev.IsZero() {
		return e.opts.DefaultPeriod
	}
	dt := now.Sub(prev).Seconds()
	if dt <= 0 || dt > e.opts.MaxPeriod {
		monitoring.Debugf("record interval %.4fs out of range, using %.4fs", dt, e.opts.DefaultPeriod)
		return e.opts.DefaultPeriod
	}
	return dt
}

// Update advances the filter by one record and publishes the result.
func (e *Estimator) Update(rec serialmux.Record) Orientation {
	select {
	case <-e.reset:
		e.restart()
	default:
	}

	if e.samples == 0 && e.opts.InitFromDevice && rec.HasQuat && rec.Quat.Norm() > 0 {
		e.q = rec.Quat.Normalized()
	}

	dt := e.period()
	acc, mag := rec.Acc, rec.Mag
	if e.flip {
		acc, mag = fusion.FlipX(acc), fusion.FlipX(mag)
	}
	s := fusion.Sample{
		Gyro: r3.Scale(units.ToRadians(1, e.opts.GyroUnits), rec.Gyro),
		Acc:  acc,
		Mag:  mag,
		Dt:   dt,
	}

	q := fusion.Step(e.filter, s, e.q)
	if q.IsNaN() {
		monitoring.Logf("%s produced NaN at sample %d, restarting from identity", e.filter.Name(), e.samples)
		e.restart()
		q = e.q
	}
	e.q = q
	e.samples++

	r, p, y := q.Conj().EulerDegrees()
	o := Orientation{
		Filter:     e.filter.Name(),
		Gain:       e.filter.Gain(),
		Quaternion: [4]float64(q.Slice()),
		Euler:      [3]float64{r, p, y},
		Smoothed:   [3]float64{e.smooth[0].Add(r), e.smooth[1].Add(p), e.smooth[2].Add(y)},
		AccValid:   e.filter.Last().AccValid,
		MagValid:   e.filter.Last().MagValid,
		Samples:    e.samples,
		Resets:     e.resets,
		Dt:         dt,
		UpdatedAt:  e.clock.Now(),
	}
	if rec.HasQuat {
		dev := [4]float64(rec.Quat.Slice())
		o.Device = &dev
		if rec.Quat.Norm() > 0 {
			errDeg := units.FromRadians(quaternion.AngleBetween(q, rec.Quat), units.Deg)
			o.DeviceErrorDeg = &errDeg
		}
	}

	e.mu.Lock()
	e.state = o
	e.mu.Unlock()
	return o
}

// Snapshot returns the latest published orientation.
func (e *Estimator) Snapshot() Orientation {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Run feeds every record read by mux to Update until ctx is done or the
// mux closes.
func (e *Estimator) Run(ctx context.Context, mux serialmux.SerialMuxInterface, stats *serialmux.Stats) error {
	return serialmux.Consume(ctx, mux, stats, func(rec serialmux.Record) error {
		e.Update(rec)
		return nil
	})
}
