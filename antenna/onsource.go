package antenna

import (
	"math"
	"strings"
)

// SampleParams are the monitor items one onsource sample reads, in order.
var SampleParams = []string{
	"AzimuthTrackingError",
	"AzimuthAngle",
	"AzimuthPredictedAngle",
	"ElevationTrackingError",
	"ElevationAngle",
	"ElevationPredictedAngle",
	"Status",
}

// Sample is one reading of the pointing monitor items, in degrees.
type Sample struct {
	AzTrackErr float64
	Az         float64
	AzPred     float64
	ElTrackErr float64
	El         float64
	ElPred     float64
	Status     string
}

// Operational classifies the antenna's Status monitor text. Anything that
// is neither operational/marginal nor critical counts as operational.
func Operational(status string) bool {
	status = strings.ToLower(status)
	for _, s := range []string{"operational", "marginal"} {
		if strings.Contains(status, s) {
			return true
		}
	}
	if strings.Contains(status, "critical") {
		return false
	}
	return true
}

// CrossElevation returns az*cos(el). It is applied the same way to angle,
// tracking error and predicted pairs.
func CrossElevation(az, el float64) float64 {
	return az * math.Cos(el*math.Pi/180)
}

// Evaluate classifies pointing from two samples taken a settle interval
// apart. The operational flag comes from the first sample.
func Evaluate(before, after Sample, tol Tolerances) PointStatus {
	xelPrev := CrossElevation(before.Az, before.El)
	xelCur := CrossElevation(after.Az, after.El)
	xelErrCur := CrossElevation(after.AzTrackErr, after.ElTrackErr)
	xelPredCur := CrossElevation(after.AzPred, after.ElPred)

	onsource := math.Abs(xelErrCur) < tol.AzTol &&
		math.Abs(after.ElTrackErr) < tol.ElTol &&
		math.Abs(xelCur-xelPrev) < tol.AzTol &&
		math.Abs(after.El-before.El) < tol.ElTol &&
		math.Abs(xelPredCur-xelCur) < tol.AzPredTol &&
		math.Abs(after.ElPred-after.El) < tol.ElPredTol
	switch {
	case onsource:
		return Onsource
	case Operational(before.Status):
		return Slewing
	}
	return Error
}
