package nmc

// BasePort plus the DSS number is the control script's TCP port.
const BasePort = 6700

var workstations = map[string]map[int]string{
	"CDSCC": {
		0:  "localhost",
		1:  "137.228.202.190",
		2:  "137.228.202.191",
		3:  "137.228.202.192",
		4:  "137.228.202.193",
		5:  "137.228.202.194",
		6:  "137.228.202.195",
		7:  "137.228.202.209",
		8:  "137.228.202.203",
		9:  "137.228.202.210",
		91: "137.228.202.68",
		92: "137.228.202.81",
	},
	"GDSCC": {
		0:  "localhost",
		1:  "137.228.201.190",
		2:  "137.228.201.191",
		3:  "137.228.201.192",
		4:  "137.228.201.193",
		5:  "137.228.201.194",
		6:  "137.228.201.195",
		7:  "137.228.201.209",
		11: "137.228.201.86",
		12: "137.228.201.87",
		93: "137.228.201.68",
		94: "137.228.201.81",
	},
}

// Workstation returns the host for a workstation at a complex. Unknown
// workstations resolve to workstation 0 on localhost.
func Workstation(site string, wsn int) (host string, resolved int, ok bool) {
	if host, ok := workstations[site][wsn]; ok {
		return host, wsn, true
	}
	return "localhost", 0, false
}

func Port(dss int) int {
	return BasePort + dss
}
