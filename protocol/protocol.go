// Package protocol implements the NMC antenna control text protocol:
// space-delimited ASCII tokens on "\n"-terminated lines, answered with a
// COMPLETED, REJECTED or ERROR token and an optional payload.
package protocol

import (
	"math"
	"strconv"
	"strings"
)

// Reply tokens.
const (
	Completed = "COMPLETED"
	Rejected  = "REJECTED"
	Error     = "ERROR"
)

const Terminator = '\n'

// Reply joins a token and its payload fields with single spaces.
func Reply(token string, fields ...string) string {
	if len(fields) == 0 {
		return token
	}
	return token + " " + strings.Join(fields, " ")
}

// Token returns the upper-cased leading token of a reply, or "" if the
// reply is blank.
func Token(reply string) string {
	fields := strings.Fields(reply)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}

// Command renders a command line, including the terminator.
func Command(name string, args ...string) string {
	return Reply(name, args...) + string(Terminator)
}

// FormatFloat renders f the way the antenna control scripts render
// floating point monitor values: shortest representation, always with a
// decimal point (5 -> "5.0", 0.23 -> "0.23").
func FormatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if abs := math.Abs(f); abs != 0 && (abs >= 1e16 || abs < 1e-4) {
		s = strconv.FormatFloat(f, 'e', -1, 64)
		return s
	}
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

// FormatArg renders a command argument with four decimals.
func FormatArg(f float64) string {
	return strconv.FormatFloat(f, 'f', 4, 64)
}
