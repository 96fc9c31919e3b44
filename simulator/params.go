package simulator

import (
	"fmt"
	"strconv"
	"time"

	"github.com/w1xm/nmc_interface/protocol"
)

// Param is a monitor item the simulator can report.
type Param int

// In GET_PARAMS order.
const (
	Temperature Param = iota
	Pressure
	WindSpeed
	WindDirection
	Precipitation
	TotalPrecipitation
	Humidity
	WxHr
	WxMin
	WxSec
	AzimuthPredictedAngle
	AzimuthAngle
	ElevationPredictedAngle
	ElevationAngle
	Wrap
	AzimuthTrackingError
	ElevationTrackingError
	Status
	AxisAngleTime
	ElevationManualOffset
	ElevationPositionOffset
	ElevationAccumulatedRateOffset
	CrossElevationManualOffset
	CrossElevationPositionOffset
	CrossElevationAccumulatedRateOffset
	AzimuthAngleWrap
	AngTime
	CurrentDoyTime
	numParams
)

var paramNames = [numParams]string{
	Temperature:                         "temperature",
	Pressure:                            "pressure",
	WindSpeed:                           "windspeed",
	WindDirection:                       "winddirection",
	Precipitation:                       "precipitation",
	TotalPrecipitation:                  "total_precipitation",
	Humidity:                            "humidity",
	WxHr:                                "WxHr",
	WxMin:                               "WxMin",
	WxSec:                               "WxSec",
	AzimuthPredictedAngle:               "AzimuthPredictedAngle",
	AzimuthAngle:                        "AzimuthAngle",
	ElevationPredictedAngle:             "ElevationPredictedAngle",
	ElevationAngle:                      "ElevationAngle",
	Wrap:                                "WRAP",
	AzimuthTrackingError:                "AzimuthTrackingError",
	ElevationTrackingError:              "ElevationTrackingError",
	Status:                              "Status",
	AxisAngleTime:                       "AxisAngleTime",
	ElevationManualOffset:               "ElevationManualOffset",
	ElevationPositionOffset:             "ElevationPositionOffset",
	ElevationAccumulatedRateOffset:      "ElevationAccumulatedRateOffset",
	CrossElevationManualOffset:          "CrossElevationManualOffset",
	CrossElevationPositionOffset:        "CrossElevationPositionOffset",
	CrossElevationAccumulatedRateOffset: "CrossElevationAccumulatedRateOffset",
	AzimuthAngleWrap:                    "AzimuthAngleWrap",
	AngTime:                             "ANGTIME",
	CurrentDoyTime:                      "CurrentDoyTime",
}

var paramsByName = func() map[string]Param {
	m := make(map[string]Param, numParams)
	for p, name := range paramNames {
		m[name] = Param(p)
	}
	return m
}()

func (p Param) String() string {
	if p < 0 || p >= numParams {
		return fmt.Sprintf("Param(%d)", int(p))
	}
	return paramNames[p]
}

// ParseParam looks up a monitor item by its exact name.
func ParseParam(name string) (Param, bool) {
	p, ok := paramsByName[name]
	return p, ok
}

// ParamNames lists every monitor item in order.
func ParamNames() []string {
	return append([]string(nil), paramNames[:]...)
}

const doyTimeLayout = "2006-002-15:04:05.000000"

// Value renders p as it appears in a PARAM reply.
func (s Snapshot) Value(p Param, now time.Time) string {
	f := protocol.FormatFloat
	itoa := strconv.Itoa
	w := s.Weather
	switch p {
	case Temperature:
		return f(w.Temperature)
	case Pressure:
		return f(w.Pressure)
	case WindSpeed:
		return f(w.WindSpeed)
	case WindDirection:
		return f(w.WindDirection)
	case Precipitation, TotalPrecipitation:
		return f(w.Precipitation)
	case Humidity:
		return f(w.Humidity)
	case WxHr:
		return itoa(w.Time.UTC().Hour())
	case WxMin:
		return itoa(w.Time.UTC().Minute())
	case WxSec:
		return itoa(w.Time.UTC().Second())
	case AzimuthPredictedAngle:
		return f(s.Az.Predicted)
	case AzimuthAngle:
		return f(s.Az.Actual)
	case ElevationPredictedAngle:
		return f(s.El.Predicted)
	case ElevationAngle:
		return f(s.El.Actual)
	case Wrap, AzimuthAngleWrap:
		return itoa(s.Wrap)
	case AzimuthTrackingError:
		return f(s.Az.TrackingError())
	case ElevationTrackingError:
		return f(s.El.TrackingError())
	case Status:
		return "operational"
	case AxisAngleTime:
		return "0"
	case ElevationManualOffset, ElevationAccumulatedRateOffset:
		return f(s.Offsets[EL].Accumulated)
	case ElevationPositionOffset:
		return f(s.Offsets[EL].Offset)
	case CrossElevationManualOffset, CrossElevationAccumulatedRateOffset:
		return f(s.Offsets[XEL].Accumulated)
	case CrossElevationPositionOffset:
		return f(s.Offsets[XEL].Offset)
	case AngTime:
		return fmt.Sprintf("%s 18000000 0", f(unixSeconds(now)))
	case CurrentDoyTime:
		return now.UTC().Format(doyTimeLayout)
	}
	return ""
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
