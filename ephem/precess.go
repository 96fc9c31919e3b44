package ephem

import (
	"math"
	"time"
)

// J2000ToDate precesses mean J2000 coordinates to the mean equator and
// equinox of t, using the IAU 1976 angles. Angles are in degrees.
func J2000ToDate(raDeg, decDeg float64, t time.Time) (float64, float64) {
	T := centuries(t)
	const arcsec = math.Pi / (180 * 3600)
	zeta := (2306.2181*T + 0.30188*T*T + 0.017998*T*T*T) * arcsec
	z := (2306.2181*T + 1.09468*T*T + 0.018203*T*T*T) * arcsec
	theta := (2004.3109*T - 0.42665*T*T - 0.041833*T*T*T) * arcsec

	ra, dec := deg2rad(raDeg), deg2rad(decDeg)
	a := math.Cos(dec) * math.Sin(ra+zeta)
	b := math.Cos(theta)*math.Cos(dec)*math.Cos(ra+zeta) - math.Sin(theta)*math.Sin(dec)
	c := math.Sin(theta)*math.Cos(dec)*math.Cos(ra+zeta) + math.Cos(theta)*math.Sin(dec)

	// asin loses precision near the poles
	decOut := math.Asin(c)
	if math.Abs(c) > 0.99 {
		decOut = math.Copysign(math.Acos(math.Hypot(a, b)), c)
	}
	return normalize(rad2deg(math.Atan2(a, b) + z)), rad2deg(decOut)
}
