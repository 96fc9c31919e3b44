package nmc

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/w1xm/nmc_interface/antenna"
	"github.com/w1xm/nmc_interface/ephem"
	"github.com/w1xm/nmc_interface/protocol"
)

const enumRecvSize = 1024

// Value is one monitor item as the control script reported it. Valid is
// false when the item could not be read.
type Value struct {
	Raw   string
	Valid bool
}

func (v Value) Float() (float64, error) {
	if !v.Valid {
		return 0, fmt.Errorf("no value")
	}
	return strconv.ParseFloat(v.Raw, 64)
}

func (v Value) MarshalJSON() ([]byte, error) {
	if !v.Valid {
		return []byte("null"), nil
	}
	if f, err := strconv.ParseFloat(v.Raw, 64); err == nil {
		return json.Marshal(f)
	}
	return json.Marshal(v.Raw)
}

// Params maps monitor item names to values.
type Params map[string]Value

func nullParams(names []string) Params {
	p := make(Params, len(names))
	for _, n := range names {
		p[n] = Value{}
	}
	return p
}

func splitList(reply string) []string {
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return nil
	}
	return strings.Split(reply, ", ")
}

// GetCommands lists the commands the control script accepts.
func (c *Client) GetCommands(ctx context.Context) ([]string, error) {
	resp, err := c.Command(ctx, protocol.Command("GET_COMMANDS"), enumRecvSize)
	if err != nil {
		return nil, err
	}
	return splitList(resp), nil
}

// GetParams lists the monitor items the control script reports.
func (c *Client) GetParams(ctx context.Context) ([]string, error) {
	resp, err := c.Command(ctx, protocol.Command("GET_PARAMS"), enumRecvSize)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.primed = true
	c.mu.Unlock()
	return splitList(resp), nil
}

// Get reads monitor items. If the reply does not carry exactly one value
// per item, the mismatch is logged and every item comes back invalid.
func (c *Client) Get(ctx context.Context, names ...string) (Params, error) {
	c.mu.Lock()
	primed := c.primed
	c.mu.Unlock()
	if !primed {
		if _, err := c.GetParams(ctx); err != nil {
			c.logger.Errorf("listing params: %v", err)
		}
	}

	out := nullParams(names)
	if len(names) == 0 {
		return out, nil
	}
	cmd := protocol.Command("PARAM", names...)
	resp, err := c.Command(ctx, cmd, enumRecvSize)
	if err != nil {
		return out, err
	}
	// a blank reply carries no values
	var values []string
	if r := strings.TrimSpace(resp); r != "" {
		values = strings.Split(r, ",")
	}
	if len(values) != len(names) {
		c.logger.Errorf("%v", &ProtocolError{
			Command: strings.TrimSpace(cmd),
			Reply:   resp,
			Reason:  fmt.Sprintf("requested %d params, got %d", len(names), len(values)),
		})
		return out, nil
	}
	for i, n := range names {
		out[n] = Value{Raw: strings.TrimSpace(values[i]), Valid: true}
	}
	return out, nil
}

var weatherParams = []string{
	"temperature",
	"pressure",
	"humidity",
	"windspeed",
	"winddirection",
	"precipitation",
	"WxHr", "WxMin", "WxSec",
}

func (c *Client) GetWeather(ctx context.Context) (Params, error) {
	return c.Get(ctx, weatherParams...)
}

// HourAngleDec is the GET_HADEC reply. HA and Dec are only set when the
// peer reports them.
type HourAngleDec struct {
	Success string   `json:"success"`
	HA      *float64 `json:"ha,omitempty"`
	Dec     *float64 `json:"dec,omitempty"`
	Wrap    string   `json:"wrap"`
	Timing  string   `json:"timing"`
}

func (c *Client) GetHadec(ctx context.Context) (HourAngleDec, error) {
	resp, err := c.Command(ctx, protocol.Command("GET_HADEC"), enumRecvSize)
	if err != nil {
		return HourAngleDec{}, err
	}
	fields := strings.Fields(resp)
	if len(fields) < 3 {
		// bare token, as the simulators send
		return HourAngleDec{Success: strings.ToUpper(strings.TrimSpace(resp)), Wrap: "0", Timing: "0"}, nil
	}
	h := HourAngleDec{
		Success: strings.ToUpper(fields[0]),
		Wrap:    fields[len(fields)-2],
		Timing:  fields[len(fields)-1],
	}
	if len(fields) == 5 {
		if ha, err := strconv.ParseFloat(fields[1], 64); err == nil {
			h.HA = &ha
		}
		if dec, err := strconv.ParseFloat(fields[2], 64); err == nil {
			h.Dec = &dec
		}
	}
	return h, nil
}

type AzEl struct {
	Az float64 `json:"az"`
	El float64 `json:"el"`
}

func (c *Client) GetAzel(ctx context.Context) (AzEl, error) {
	p, err := c.Get(ctx, "AzimuthAngle", "ElevationAngle")
	if err != nil {
		return AzEl{}, err
	}
	var out AzEl
	if err := floats(p, "GetAzel", map[string]*float64{
		"AzimuthAngle":   &out.Az,
		"ElevationAngle": &out.El,
	}); err != nil {
		return AzEl{}, err
	}
	return out, nil
}

func floats(p Params, op string, dest map[string]*float64) error {
	for name, d := range dest {
		v := p[name]
		f, err := v.Float()
		if err != nil {
			return &ProtocolError{Command: op, Reply: v.Raw, Reason: fmt.Sprintf("%s: %v", name, err)}
		}
		*d = f
	}
	return nil
}

var offsetParams = map[string]string{
	"EL":  "ElevationPositionOffset",
	"XEL": "CrossElevationPositionOffset",
}

// GetOffsets returns the elevation and cross-elevation position offsets in
// millidegrees.
func (c *Client) GetOffsets(ctx context.Context) (antenna.AxisPair, error) {
	p, err := c.Get(ctx, offsetParams["EL"], offsetParams["XEL"])
	if err != nil {
		return antenna.AxisPair{}, err
	}
	var out antenna.AxisPair
	if err := floats(p, "GetOffsets", map[string]*float64{
		offsetParams["EL"]:  &out.El,
		offsetParams["XEL"]: &out.XEl,
	}); err != nil {
		return antenna.AxisPair{}, err
	}
	return out, nil
}

// GetOffset returns one axis' position offset in millidegrees.
func (c *Client) GetOffset(ctx context.Context, axis string) (float64, error) {
	name, ok := offsetParams[strings.ToUpper(axis)]
	if !ok {
		return 0, fmt.Errorf("%w %q", ErrUnsupportedAxis, axis)
	}
	p, err := c.Get(ctx, name)
	if err != nil {
		return 0, err
	}
	var v float64
	if err := floats(p, "GetOffset", map[string]*float64{name: &v}); err != nil {
		return 0, err
	}
	return v, nil
}

// token sends a command and returns its trimmed reply.
func (c *Client) token(ctx context.Context, name string, args ...string) (string, error) {
	resp, err := c.Command(ctx, protocol.Command(name, args...), DefaultRecvSize)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp), nil
}

// SetOffset sets position offsets on two axes, in millidegrees, and
// returns each axis' reply.
func (c *Client) SetOffset(ctx context.Context, axis1, axis2 string, value1, value2 float64) (map[string]string, error) {
	out := make(map[string]string, 2)
	for _, av := range []struct {
		axis  string
		value float64
	}{{axis1, value1}, {axis2, value2}} {
		resp, err := c.SetOffsetOneAxis(ctx, av.axis, av.value)
		if err != nil {
			return out, err
		}
		out[av.axis] = resp
	}
	return out, nil
}

func (c *Client) SetOffsetOneAxis(ctx context.Context, axis string, value float64) (string, error) {
	return c.token(ctx, "ANTENNA", "PO", axis, protocol.FormatArg(value))
}

func (c *Client) ClrOffsets(ctx context.Context) (string, error) {
	return c.token(ctx, "ANTENNA", "CLR", "PO")
}

func (c *Client) ClrRates(ctx context.Context) (string, error) {
	return c.token(ctx, "ANTENNA", "CLR", "RO")
}

// Trk puts the antenna in track mode.
func (c *Client) Trk(ctx context.Context) (string, error) {
	return c.token(ctx, "ANTENNA", "TRK")
}

var rateAxes = map[string]bool{
	"AZ": true, "EL": true, "XEL": true,
	"HA": true, "DEC": true, "XDEC": true,
}

// SetRate sets an offset rate in millidegrees per second.
func (c *Client) SetRate(ctx context.Context, axis string, rate float64) (string, error) {
	axis = strings.ToUpper(axis)
	if !rateAxes[axis] {
		c.logger.Errorf("won't accept axis type: %s", axis)
		return "", fmt.Errorf("%w %q", ErrUnsupportedAxis, axis)
	}
	return c.token(ctx, "ANTENNA", "RO", axis, protocol.FormatArg(rate))
}

// Move drives one axis to a position in degrees.
func (c *Client) Move(ctx context.Context, axis string, position float64) (string, error) {
	return c.token(ctx, "ANTENNA", "MOVE", strings.ToUpper(axis), protocol.FormatArg(position))
}

// Feed 2 sits this far from feed 1, in millidegrees.
const (
	feed2ElOffset  = 14.0
	feed2XElOffset = 31.0
)

// FeedChange moves the beam onto feed 1 or, when feed2 is set, feed 2, by
// setting offsets on both axes.
func (c *Client) FeedChange(ctx context.Context, feed2 bool, elOffset, xelOffset float64) (map[string]string, error) {
	feed := "Feed 1"
	if feed2 {
		feed = "Feed 2"
		elOffset += feed2ElOffset
		xelOffset += feed2XElOffset
	}
	resp, err := c.SetOffset(ctx, "EL", "XEL", elOffset, xelOffset)
	c.logger.Infof("moving to %s by setting offsets to El: %v, xEl: %v: %v", feed, elOffset, xelOffset, resp)
	return resp, err
}

// PointRadec points at RA/Dec in degrees. With epoch "now" the coordinates
// are sent as given; with "J2000" they are precessed to the current date
// first.
func (c *Client) PointRadec(ctx context.Context, ra, dec float64, epoch string) (string, error) {
	switch strings.ToLower(epoch) {
	case "now":
	case "j2000":
		ra, dec = ephem.J2000ToDate(ra, dec, c.cfg.Now())
	default:
		return "", fmt.Errorf("%w: epoch %q is not J2000 or now", ErrInvalidArgument, epoch)
	}
	c.logger.Debugf("pointing at ra: %v, dec: %v", ra, dec)
	return c.token(ctx, "ANTENNA", "RADEC", protocol.FormatArg(ra), protocol.FormatArg(dec))
}

// KBandFWHM returns the 70-m beamwidth in millidegrees at freq MHz.
func KBandFWHM(freq float64) float64 {
	if freq <= 0 {
		freq = 22000
	}
	return 13.5 * 22000 / freq
}
