// Package simulator implements a stand-in for the NMC antenna controller.
// Position and offsets evolve in background workers; the command handlers
// read and write the same State.
package simulator

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/w1xm/nmc_interface/antenna"
	"github.com/w1xm/nmc_interface/ephem"
	"github.com/w1xm/nmc_interface/protocol"
	"github.com/w1xm/nmc_interface/weather"
	"github.com/w1xm/nmc_interface/worker"
)

const (
	DefaultSlewRate      = 0.23 // degrees per second
	DefaultRatePeriod    = 1 * time.Second
	DefaultTrackPeriod   = 1 * time.Second
	DefaultWeatherPeriod = 300 * time.Second
)

type Config struct {
	Site     ephem.Site
	SlewRate float64

	RatePeriod    time.Duration
	TrackPeriod   time.Duration
	WeatherPeriod time.Duration

	// Transformer defaults to an Observer at Site.
	Transformer ephem.Transformer
	// Weather is polled when set.
	Weather    weather.Fetcher
	Tolerances antenna.Tolerances

	Now    func() time.Time
	Logger logrus.FieldLogger
}

func (c *Config) setDefaults() {
	if c.SlewRate <= 0 {
		c.SlewRate = DefaultSlewRate
	}
	if c.RatePeriod <= 0 {
		c.RatePeriod = DefaultRatePeriod
	}
	if c.TrackPeriod <= 0 {
		c.TrackPeriod = DefaultTrackPeriod
	}
	if c.WeatherPeriod <= 0 {
		c.WeatherPeriod = DefaultWeatherPeriod
	}
	if c.Transformer == nil {
		c.Transformer = ephem.NewObserver(c.Site)
	}
	if c.Tolerances == (antenna.Tolerances{}) {
		c.Tolerances = antenna.DefaultTolerances
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
}

// Antenna answers protocol requests against a simulated State.
type Antenna struct {
	cfg     Config
	state   *State
	workers *worker.Group
	router  *protocol.Router
	logger  logrus.FieldLogger

	// rateMu keeps each axis' rate in step with its running integrator.
	rateMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
}

// New builds a simulated antenna. Background workers run until ctx is
// canceled or Close is called.
func New(ctx context.Context, cfg Config) (*Antenna, error) {
	cfg.setDefaults()
	ctx, cancel := context.WithCancel(ctx)
	a := &Antenna{
		cfg:     cfg,
		state:   NewState(cfg.Site.WrapCenter),
		workers: worker.NewGroup(cfg.Logger),
		logger:  cfg.Logger,
		ctx:     ctx,
		cancel:  cancel,
	}
	a.router = a.newRouter()
	if cfg.Weather != nil {
		w := NewWeatherPoller(a.state, cfg.Weather, cfg.Site.LatDeg, cfg.Site.LonDeg, cfg.WeatherPeriod, 30*time.Second, a.logger)
		if err := a.workers.Replace(ctx, weatherKey, w); err != nil {
			cancel()
			return nil, fmt.Errorf("starting weather poller: %w", err)
		}
	}
	return a, nil
}

func (a *Antenna) State() *State {
	return a.state
}

func (a *Antenna) Router() *protocol.Router {
	return a.router
}

// Workers lists the keys of the running background workers.
func (a *Antenna) Workers() []string {
	return a.workers.Keys()
}

// Handle answers one request line.
func (a *Antenna) Handle(line string) string {
	return a.router.Handle(line)
}

// Close stops every background worker and waits for them.
func (a *Antenna) Close() error {
	a.cancel()
	return a.workers.StopAll()
}

func (a *Antenna) newRouter() *protocol.Router {
	sub := protocol.NewRouter(1, protocol.Rejected)
	for _, h := range []struct {
		name string
		fn   protocol.HandlerFunc
	}{
		{"HI", a.completed},
		{"RO", a.antennaRO},
		{"PO", a.antennaPO},
		{"CLR", a.antennaCLR},
		{"TRK", a.completed},
		{"MOVE", a.antennaMove},
		{"SEMN", a.completed},
		{"RADEC", a.antennaRadec},
		{"AZEL", a.antennaAzel},
	} {
		sub.Register(h.name, h.fn)
	}

	top := protocol.NewRouter(0, protocol.Error)
	for _, h := range []struct {
		name string
		fn   protocol.HandlerFunc
	}{
		{"ANTENNA", sub.Dispatch},
		{"PARAM", a.param},
		{"GET_WEATHER", a.getWeather},
		{"GET_OFFSETS", a.getOffsets},
		{"GET_AZEL", a.getAzel},
		{"GET_HADEC", a.getHadec},
		{"TERMINATE", a.completed},
		{"ONSOURCE", a.onsource},
		{"WAITONSOURCE", a.completed},
		{"GET_COMMANDS", func([]string) string { return strings.Join(top.Names(), ", ") }},
		{"GET_PARAMS", func([]string) string { return strings.Join(ParamNames(), ", ") }},
		{"ATTEN", a.completed},
	} {
		top.Register(h.name, h.fn)
	}
	return top
}

func (a *Antenna) completed(fields []string) string {
	a.logger.Debugf("%s: called", strings.Join(fields, " "))
	return protocol.Completed
}

func parseFloats(fields []string) ([]float64, error) {
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// axisValue parses "ANTENNA <cmd> <axis> <value>".
func axisValue(fields []string) (Axis, float64, error) {
	if len(fields) != 4 {
		return "", 0, fmt.Errorf("want 4 fields, got %d", len(fields))
	}
	axis, err := ParseAxis(fields[2])
	if err != nil {
		return "", 0, err
	}
	v, err := strconv.ParseFloat(fields[3], 64)
	if err != nil {
		return "", 0, err
	}
	return axis, v, nil
}

func (a *Antenna) antennaPO(fields []string) string {
	axis, v, err := axisValue(fields)
	if err != nil {
		a.logger.Errorf("antenna PO: %v", err)
		return protocol.Rejected
	}
	a.logger.Debugf("setting offset in %s to %v", axis, v)
	if err := a.state.SetOffset(axis, v); err != nil {
		return protocol.Rejected
	}
	return protocol.Completed
}

func (a *Antenna) antennaRO(fields []string) string {
	axis, rate, err := axisValue(fields)
	if err != nil {
		a.logger.Errorf("antenna RO: %v", err)
		return protocol.Rejected
	}
	a.logger.Debugf("setting offset rate in %s to %v", axis, rate)
	a.rateMu.Lock()
	defer a.rateMu.Unlock()
	if err := a.state.SetRate(axis, rate); err != nil {
		return protocol.Rejected
	}
	w := NewOffsetRateIntegrator(a.state, axis, a.cfg.RatePeriod, a.logger)
	if err := a.workers.Replace(a.ctx, rateKey(axis), w); err != nil {
		a.logger.Errorf("starting rate integrator: %v", err)
		return protocol.Error
	}
	return protocol.Completed
}

func (a *Antenna) antennaCLR(fields []string) string {
	if len(fields) < 3 {
		return protocol.Rejected
	}
	switch strings.ToUpper(fields[2]) {
	case "RO":
		a.logger.Debug("clearing position rate offsets")
		a.rateMu.Lock()
		defer a.rateMu.Unlock()
		a.state.ClearRates()
		for _, axis := range Axes {
			a.workers.Stop(rateKey(axis))
		}
	case "PO":
		a.logger.Debug("clearing position offsets")
		a.state.ClearOffsets()
	default:
		return protocol.Rejected
	}
	return protocol.Completed
}

func (a *Antenna) track(target TargetFunc) string {
	w := NewPositionTracker(a.state, target, a.cfg.SlewRate, a.cfg.TrackPeriod, a.cfg.Now, a.logger)
	if err := a.workers.Replace(a.ctx, trackerKey, w); err != nil {
		a.logger.Errorf("starting tracker: %v", err)
		return protocol.Error
	}
	return protocol.Completed
}

func (a *Antenna) antennaRadec(fields []string) string {
	if len(fields) != 4 {
		return protocol.Rejected
	}
	v, err := parseFloats(fields[2:])
	if err != nil {
		a.logger.Errorf("antenna RADEC: %v", err)
		return protocol.Rejected
	}
	ra, dec := v[0], v[1]
	a.logger.Debugf("pointing at ra: %v, dec: %v", ra, dec)
	return a.track(func(t time.Time) (float64, float64, error) {
		return a.cfg.Transformer.Horizontal(ra, dec, t)
	})
}

func (a *Antenna) antennaAzel(fields []string) string {
	if len(fields) != 4 {
		return protocol.Rejected
	}
	v, err := parseFloats(fields[2:])
	if err != nil {
		a.logger.Errorf("antenna AZEL: %v", err)
		return protocol.Rejected
	}
	return a.track(FixedTarget(v[0], v[1]))
}

// antennaMove drives one axis to a fixed position and holds the other at
// its current prediction. A bare MOVE is accepted and does nothing.
func (a *Antenna) antennaMove(fields []string) string {
	if len(fields) == 2 {
		return protocol.Completed
	}
	if len(fields) != 4 {
		return protocol.Rejected
	}
	pos, err := strconv.ParseFloat(fields[3], 64)
	if err != nil {
		return protocol.Rejected
	}
	az, el := a.state.Pointing()
	switch strings.ToUpper(fields[2]) {
	case "AZ":
		return a.track(FixedTarget(pos, el.Predicted))
	case "EL":
		return a.track(FixedTarget(az.Predicted, pos))
	}
	return protocol.Rejected
}

func (a *Antenna) param(fields []string) string {
	snap := a.state.Snapshot()
	now := a.cfg.Now()
	values := make([]string, 0, len(fields)-1)
	for _, name := range fields[1:] {
		p, ok := ParseParam(name)
		if !ok {
			a.logger.Debugf("PARAM: skipping unknown %q", name)
			continue
		}
		values = append(values, snap.Value(p, now))
	}
	return strings.Join(values, ", ")
}

func (a *Antenna) getWeather([]string) string {
	w := a.state.Snapshot().Weather
	f := protocol.FormatFloat
	t := w.Time.UTC()
	return protocol.Reply(protocol.Completed,
		f(w.Temperature), f(w.Pressure), f(w.Humidity),
		f(w.WindSpeed), f(w.WindDirection), f(w.Precipitation),
		fmt.Sprintf("%d:%d:%d", t.Hour(), t.Minute(), t.Second()))
}

func (a *Antenna) getOffsets([]string) string {
	snap := a.state.Snapshot()
	f := protocol.FormatFloat
	return protocol.Reply(protocol.Completed,
		f(snap.Offsets[EL].Offset), "0", f(snap.Offsets[XEL].Offset), "0")
}

func (a *Antenna) timestamp() string {
	return protocol.FormatFloat(float64(a.cfg.Now().Unix()))
}

func (a *Antenna) getAzel([]string) string {
	snap := a.state.Snapshot()
	f := protocol.FormatFloat
	return protocol.Reply(protocol.Completed,
		f(snap.Az.Actual), f(snap.El.Actual), strconv.Itoa(snap.Wrap), a.timestamp())
}

func (a *Antenna) getHadec([]string) string {
	snap := a.state.Snapshot()
	ha, dec := ephem.HourAngleDec(snap.Az.Actual, snap.El.Actual, a.cfg.Site.LatDeg)
	f := protocol.FormatFloat
	return protocol.Reply(protocol.Completed, f(ha), f(dec), strconv.Itoa(snap.Wrap), a.timestamp())
}

// onsource reports whether the simulated tracking error is inside the
// tolerance band.
func (a *Antenna) onsource([]string) string {
	az, el := a.state.Pointing()
	xelErr := antenna.CrossElevation(az.TrackingError(), el.TrackingError())
	tol := a.cfg.Tolerances
	status := antenna.Slewing
	if math.Abs(xelErr) < tol.AzTol && math.Abs(el.TrackingError()) < tol.ElTol {
		status = antenna.Onsource
	}
	return protocol.Reply(protocol.Completed, status.String())
}
