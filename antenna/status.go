// Package antenna holds the pointing status model shared by the client and
// the simulator, and the onsource classification.
package antenna

import (
	"fmt"
	"strings"
)

type PointStatus int

const (
	Unknown PointStatus = iota
	Slewing
	Onsource
	Error
)

func (p PointStatus) String() string {
	switch p {
	case Slewing:
		return "SLEWING"
	case Onsource:
		return "ONSOURCE"
	case Error:
		return "ERROR"
	}
	return "UNKNOWN"
}

func ParsePointStatus(s string) (PointStatus, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "UNKNOWN", "":
		return Unknown, nil
	case "SLEWING":
		return Slewing, nil
	case "ONSOURCE":
		return Onsource, nil
	case "ERROR":
		return Error, nil
	}
	return Unknown, fmt.Errorf("unknown point status %q", s)
}

func (p PointStatus) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *PointStatus) UnmarshalText(text []byte) error {
	v, err := ParsePointStatus(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Tolerances bound the deviations allowed for onsource, in degrees.
// The azimuth tolerances are applied to cross-elevation.
type Tolerances struct {
	AzTol     float64 `json:"az_tol"`
	ElTol     float64 `json:"el_tol"`
	AzPredTol float64 `json:"az_pred_tol"`
	ElPredTol float64 `json:"el_pred_tol"`
}

var DefaultTolerances = Tolerances{
	AzTol:     0.085,
	ElTol:     0.085,
	AzPredTol: 0.11,
	ElPredTol: 0.11,
}

type Angle struct {
	Az float64 `json:"az"`
	El float64 `json:"el"`
	Tolerances
}

// AxisPair holds an elevation and cross-elevation value in millidegrees.
type AxisPair struct {
	El  float64 `json:"el"`
	XEl float64 `json:"xel"`
}

// Status is the client's view of the antenna.
type Status struct {
	AntennaStatus string      `json:"antenna_status"`
	PointStatus   PointStatus `json:"point_status"`
	Angle         Angle       `json:"angle"`
	Offset        AxisPair    `json:"offset"`
	OffsetRate    AxisPair    `json:"offset_rate"`
}

func NewStatus() Status {
	return Status{
		PointStatus: Unknown,
		Angle:       Angle{Tolerances: DefaultTolerances},
	}
}
