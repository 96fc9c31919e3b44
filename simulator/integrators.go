package simulator

import (
	"context"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/w1xm/nmc_interface/weather"
	"github.com/w1xm/nmc_interface/worker"
)

// Worker group keys. At most one worker runs per key.
const trackerKey = "tracker"
const weatherKey = "weather"

func rateKey(a Axis) string {
	return "offset-rate/" + string(a)
}

// NewOffsetRateIntegrator adds axis' current rate to its accumulated
// offset every period.
func NewOffsetRateIntegrator(s *State, axis Axis, period time.Duration, logger logrus.FieldLogger) *worker.Worker {
	return worker.New(rateKey(axis), period, func(context.Context) error {
		_, err := s.AccumulateRate(axis)
		return err
	}, logger)
}

// TargetFunc returns the azimuth and elevation to point at, at time t.
type TargetFunc func(t time.Time) (az, el float64, err error)

// FixedTarget always returns the same position.
func FixedTarget(az, el float64) TargetFunc {
	return func(time.Time) (float64, float64, error) {
		return az, el, nil
	}
}

type tracker struct {
	state   *State
	target  TargetFunc
	maxStep float64
	now     func() time.Time
	logger  logrus.FieldLogger
}

// slew returns actual moved toward predicted by at most maxStep.
func slew(actual, predicted, maxStep float64) float64 {
	diff := predicted - actual
	if math.Abs(diff) <= maxStep {
		return predicted
	}
	return actual + math.Copysign(maxStep, diff)
}

func (t *tracker) tick(context.Context) error {
	az, el, err := t.target(t.now())
	if err != nil {
		t.logger.Errorf("computing target: %v", err)
		return nil
	}
	t.state.UpdatePointing(func(a, e *PointState) {
		a.Predicted, e.Predicted = az, el
		a.Actual = slew(a.Actual, a.Predicted, t.maxStep)
		e.Actual = slew(e.Actual, e.Predicted, t.maxStep)
	})
	return nil
}

// NewPositionTracker points the antenna at target. Each period it updates
// the predicted position and moves the actual position toward it by at
// most slewRate (degrees per second) times the period.
func NewPositionTracker(s *State, target TargetFunc, slewRate float64, period time.Duration, now func() time.Time, logger logrus.FieldLogger) *worker.Worker {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	t := &tracker{
		state:   s,
		target:  target,
		maxStep: slewRate * period.Seconds(),
		now:     now,
		logger:  logger,
	}
	return worker.New(trackerKey, period, t.tick, logger)
}

type weatherPoller struct {
	state    *State
	fetcher  weather.Fetcher
	lat, lon float64
	timeout  time.Duration
	logger   logrus.FieldLogger
}

func (w *weatherPoller) tick(ctx context.Context) error {
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}
	r, err := w.fetcher.Fetch(ctx, w.lat, w.lon)
	if err != nil {
		w.logger.Errorf("couldn't get weather: %v", err)
		return nil
	}
	w.logger.Debugf("weather: %+v", r)
	w.state.SetWeather(r)
	return nil
}

// NewWeatherPoller refreshes the weather every period. A failed fetch
// leaves the previous report in place.
func NewWeatherPoller(s *State, f weather.Fetcher, latDeg, lonDeg float64, period, timeout time.Duration, logger logrus.FieldLogger) *worker.Worker {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	w := &weatherPoller{
		state:   s,
		fetcher: f,
		lat:     latDeg,
		lon:     lonDeg,
		timeout: timeout,
		logger:  logger,
	}
	return worker.New(weatherKey, period, w.tick, logger)
}
