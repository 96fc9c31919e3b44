package ephem

import (
	"fmt"
	"math"
	"time"
)

// Transformer turns RA/Dec of date into azimuth/elevation at time t.
type Transformer interface {
	Horizontal(raDeg, decDeg float64, t time.Time) (az, el float64, err error)
}

// Observer is a Transformer for a fixed site.
type Observer struct {
	Site Site
}

func NewObserver(site Site) *Observer {
	return &Observer{Site: site}
}

func (o *Observer) Horizontal(raDeg, decDeg float64, t time.Time) (float64, float64, error) {
	if math.IsNaN(raDeg) || math.IsNaN(decDeg) || decDeg < -90 || decDeg > 90 {
		return 0, 0, fmt.Errorf("invalid coordinates ra=%v dec=%v", raDeg, decDeg)
	}
	ha := normalize(LST(t, o.Site.LonDeg) - raDeg)
	az, el := equhorDeg(ha, decDeg, o.Site.LatDeg)
	return az, el, nil
}

// HourAngleDec converts azimuth/elevation at a site into hour angle and
// declination. The hour angle is in degrees, in [0, 360).
func (o *Observer) HourAngleDec(az, el float64) (float64, float64) {
	return HourAngleDec(az, el, o.Site.LatDeg)
}

func HourAngleDec(az, el, latDeg float64) (float64, float64) {
	return equhorDeg(az, el, latDeg)
}

// equhor converts between azimuth/altitude and hour-angle/declination.
// The transform is its own inverse. phi is the observer's latitude.
// Arguments are in radians.
// Algorithm from https://metacpan.org/dist/Astro-Montenbruck/source/lib/Astro/Montenbruck/CoCo.pm
func equhor(x, y, phi float64) (float64, float64) {
	sx, sy, sphi := math.Sin(x), math.Sin(y), math.Sin(phi)
	cx, cy, cphi := math.Cos(x), math.Cos(y), math.Cos(phi)

	sq := clamp((sy * sphi) + (cy * cphi * cx))
	q := math.Asin(sq)

	cp := clamp((sy - (sphi * sq)) / (cphi * math.Cos(q)))
	if math.IsNaN(cp) {
		// at the pole of the target frame p is undefined
		cp = 1
	}
	p := math.Acos(cp)
	if sx > 0 {
		p = 2*math.Pi - p
	}
	return p, q
}

func equhorDeg(x, y, phi float64) (float64, float64) {
	p, q := equhor(deg2rad(x), deg2rad(y), deg2rad(phi))
	return rad2deg(p), rad2deg(q)
}

// clamp removes rounding error that would push a cosine out of [-1, 1].
func clamp(x float64) float64 {
	return math.Max(-1, math.Min(1, x))
}
