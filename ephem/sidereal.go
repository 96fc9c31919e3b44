package ephem

import (
	"math"
	"time"
)

const j2000 = 2451545.0

// JulianDate returns the Julian Date of t.
func JulianDate(t time.Time) float64 {
	t = t.UTC()
	y := float64(t.Year())
	m := float64(t.Month())
	d := float64(t.Day())
	dayFrac := (float64(t.Hour()) +
		float64(t.Minute())/60 +
		float64(t.Second())/3600 +
		float64(t.Nanosecond())/3600e9) / 24

	if m <= 2 {
		y--
		m += 12
	}
	a := math.Floor(y / 100)
	b := 2 - a + math.Floor(a/4)
	return math.Floor(365.25*(y+4716)) + math.Floor(30.6001*(m+1)) + d + dayFrac + b - 1524.5
}

// centuries returns Julian centuries since J2000.0.
func centuries(t time.Time) float64 {
	return (JulianDate(t) - j2000) / 36525
}

// GMST returns Greenwich mean sidereal time in degrees (IAU 1982).
func GMST(t time.Time) float64 {
	jd := JulianDate(t)
	T := (jd - j2000) / 36525
	gmst := 280.46061837 +
		360.98564736629*(jd-j2000) +
		0.000387933*T*T -
		T*T*T/38710000
	return normalize(gmst)
}

// LST returns local mean sidereal time in degrees for an east-positive
// longitude.
func LST(t time.Time, lonDeg float64) float64 {
	return normalize(GMST(t) + lonDeg)
}

func normalize(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

func deg2rad(x float64) float64 {
	return x * math.Pi / 180
}

func rad2deg(x float64) float64 {
	return x * 180 / math.Pi
}
