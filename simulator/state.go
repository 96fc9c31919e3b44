package simulator

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/w1xm/nmc_interface/weather"
)

var ErrUnknownAxis = errors.New("unknown axis")

// Axis is an offset axis.
type Axis string

const (
	EL  Axis = "EL"
	XEL Axis = "XEL"
)

// Axes lists the offset axes in reporting order.
var Axes = []Axis{EL, XEL}

func ParseAxis(s string) (Axis, error) {
	switch a := Axis(strings.ToUpper(s)); a {
	case EL, XEL:
		return a, nil
	}
	return "", fmt.Errorf("%w %q", ErrUnknownAxis, s)
}

// AxisOffset is in millidegrees; Rate is millidegrees per integrator tick.
type AxisOffset struct {
	Offset      float64
	Accumulated float64
	Rate        float64
}

// PointState is one pointing axis in degrees.
type PointState struct {
	Predicted float64
	Actual    float64
}

// TrackingError is predicted minus actual.
func (p PointState) TrackingError() float64 {
	return p.Predicted - p.Actual
}

// State is the simulated antenna. Every method holds the lock only for
// the duration of one read or update.
type State struct {
	mu      sync.Mutex
	offsets map[Axis]*AxisOffset
	az, el  PointState
	wrap    int
	weather weather.Report
}

// NewState parks the antenna at the wrap centre near zenith, with a
// default offset rate of 1 on each axis.
func NewState(wrapCenter float64) *State {
	s := &State{
		offsets: make(map[Axis]*AxisOffset),
		az:      PointState{Predicted: wrapCenter, Actual: wrapCenter},
		el:      PointState{Predicted: 88.0, Actual: 88.0},
	}
	for _, a := range Axes {
		s.offsets[a] = &AxisOffset{Rate: 1.0}
	}
	return s
}

func (s *State) axis(a Axis) (*AxisOffset, error) {
	o, ok := s.offsets[a]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownAxis, a)
	}
	return o, nil
}

func (s *State) Offset(a Axis) (AxisOffset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.axis(a)
	if err != nil {
		return AxisOffset{}, err
	}
	return *o, nil
}

// SetOffset sets a position offset. It also restarts the accumulated
// offset from the new value.
func (s *State) SetOffset(a Axis, v float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.axis(a)
	if err != nil {
		return err
	}
	o.Offset = v
	o.Accumulated = v
	return nil
}

func (s *State) SetRate(a Axis, rate float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.axis(a)
	if err != nil {
		return err
	}
	o.Rate = rate
	return nil
}

// AccumulateRate adds the axis' rate to its accumulated offset and returns
// the result.
func (s *State) AccumulateRate(a Axis) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.axis(a)
	if err != nil {
		return 0, err
	}
	o.Accumulated += o.Rate
	return o.Accumulated, nil
}

func (s *State) ClearOffsets() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.offsets {
		o.Offset = 0
		o.Accumulated = 0
	}
}

func (s *State) ClearRates() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.offsets {
		o.Rate = 0
	}
}

// Pointing returns the azimuth and elevation axes.
func (s *State) Pointing() (az, el PointState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.az, s.el
}

// UpdatePointing runs fn with the lock held.
func (s *State) UpdatePointing(fn func(az, el *PointState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.az, &s.el)
}

func (s *State) SetWeather(r weather.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.weather = r
}

// Snapshot is a point-in-time copy of the state.
type Snapshot struct {
	Offsets map[Axis]AxisOffset
	Az, El  PointState
	Wrap    int
	Weather weather.Report
}

func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Offsets: make(map[Axis]AxisOffset, len(s.offsets)),
		Az:      s.az,
		El:      s.el,
		Wrap:    s.wrap,
		Weather: s.weather,
	}
	for a, o := range s.offsets {
		snap.Offsets[a] = *o
	}
	return snap
}
