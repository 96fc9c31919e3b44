// Package ephem converts celestial coordinates into antenna pointing for a
// Deep Space Network site.
package ephem

import "fmt"

// Site describes one antenna.
type Site struct {
	Name    string
	Complex string
	DSS     int
	LatDeg  float64
	LonDeg  float64 // east positive
	HeightM float64

	// WrapCenter is the azimuth at the centre of the cable wrap, where the
	// antenna parks.
	WrapCenter float64
}

var sites = map[int]Site{
	14: {Name: "DSS-14", Complex: "GDSCC", DSS: 14, LatDeg: 35.4259, LonDeg: -116.8895, HeightM: 1002, WrapCenter: 45.0},
	43: {Name: "DSS-43", Complex: "CDSCC", DSS: 43, LatDeg: -35.4024, LonDeg: 148.9813, HeightM: 689, WrapCenter: 17.0},
	63: {Name: "DSS-63", Complex: "MDSCC", DSS: 63, LatDeg: 40.4313, LonDeg: -4.2480, HeightM: 865, WrapCenter: 45.0},
}

// LookupSite returns the site for a DSS number.
func LookupSite(dss int) (Site, error) {
	s, ok := sites[dss]
	if !ok {
		return Site{}, fmt.Errorf("unknown antenna DSS-%d", dss)
	}
	return s, nil
}
