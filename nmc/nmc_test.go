package nmc

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/w1xm/nmc_interface/antenna"
	"github.com/w1xm/nmc_interface/ephem"
	"github.com/w1xm/nmc_interface/protocol"
	"github.com/w1xm/nmc_interface/simulator"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

// simClient connects a client to a simulated antenna over loopback TCP.
func simClient(t *testing.T, cfg Config) (*Client, *simulator.Antenna) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	site, err := ephem.LookupSite(43)
	require.NoError(t, err)
	ant, err := simulator.New(ctx, simulator.Config{Site: site, RatePeriod: time.Hour, Logger: quietLogger()})
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &protocol.Server{Handler: ant, Logger: quietLogger()}
	served := make(chan struct{})
	go func() {
		defer close(served)
		srv.Serve(ctx, ln)
	}()

	cfg.Logger = quietLogger()
	cfg.Dial = func(ctx context.Context, network, _ string) (net.Conn, error) {
		return (&net.Dialer{}).DialContext(ctx, network, ln.Addr().String())
	}
	c := New(cfg)
	res := c.Connect(ctx, 0, "CDSCC")
	require.True(t, res.Success)
	t.Cleanup(func() {
		c.Close()
		cancel()
		<-served
		ant.Close()
	})
	return c, ant
}

type script struct {
	mu    sync.Mutex
	lines []string
	reply func(line string) string
}

func (s *script) Handle(line string) string {
	s.mu.Lock()
	s.lines = append(s.lines, line)
	s.mu.Unlock()
	if strings.HasPrefix(line, "GET_PARAMS") {
		return "AzimuthAngle, ElevationAngle"
	}
	if s.reply == nil {
		return protocol.Completed
	}
	return s.reply(line)
}

// Lines returns every request except GET_PARAMS.
func (s *script) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, l := range s.lines {
		if l != "GET_PARAMS" {
			out = append(out, l)
		}
	}
	return out
}

// scriptClient connects a client to a scripted peer over net.Pipe.
func scriptClient(t *testing.T, s *script, cfg Config) *Client {
	t.Helper()
	srv := &protocol.Server{Handler: s, Logger: quietLogger()}
	cfg.Logger = quietLogger()
	cfg.Dial = func(context.Context, string, string) (net.Conn, error) {
		a, b := net.Pipe()
		go srv.ServeConn(context.Background(), a)
		return b, nil
	}
	c := New(cfg)
	require.True(t, c.Connect(context.Background(), 0, "CDSCC").Success)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestSetOffsetGetOffset(t *testing.T) {
	c, _ := simClient(t, Config{})
	ctx := context.Background()
	for _, axis := range []string{"EL", "XEL"} {
		for _, v := range []float64{5, -12.25, 0.0001, 0} {
			resp, err := c.SetOffsetOneAxis(ctx, axis, v)
			require.NoError(t, err)
			require.Equal(t, "COMPLETED", resp)
			got, err := c.GetOffset(ctx, axis)
			require.NoError(t, err)
			assert.Equal(t, v, got, "%s %v", axis, v)
		}
	}
	_, err := c.GetOffset(ctx, "AZ")
	assert.ErrorIs(t, err, ErrUnsupportedAxis)
}

func TestSimulatorAccessors(t *testing.T) {
	c, _ := simClient(t, Config{})
	ctx := context.Background()

	cmds, err := c.GetCommands(ctx)
	require.NoError(t, err)
	assert.Len(t, cmds, 12)
	assert.Equal(t, "ANTENNA", cmds[0])

	azel, err := c.GetAzel(ctx)
	require.NoError(t, err)
	assert.Equal(t, AzEl{Az: 17, El: 88}, azel)

	resp, err := c.SetOffset(ctx, "EL", "XEL", 1.5, -2)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"EL": "COMPLETED", "XEL": "COMPLETED"}, resp)
	offsets, err := c.GetOffsets(ctx)
	require.NoError(t, err)
	assert.Equal(t, antenna.AxisPair{El: 1.5, XEl: -2}, offsets)

	_, err = c.FeedChange(ctx, true, 1, 2)
	require.NoError(t, err)
	offsets, err = c.GetOffsets(ctx)
	require.NoError(t, err)
	assert.Equal(t, antenna.AxisPair{El: 15, XEl: 33}, offsets)

	tok, err := c.ClrOffsets(ctx)
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", tok)
	offsets, err = c.GetOffsets(ctx)
	require.NoError(t, err)
	assert.Equal(t, antenna.AxisPair{}, offsets)

	hadec, err := c.GetHadec(ctx)
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", hadec.Success)
	assert.Equal(t, "0", hadec.Wrap)
	require.NotNil(t, hadec.HA)
	require.NotNil(t, hadec.Dec)

	w, err := c.GetWeather(ctx)
	require.NoError(t, err)
	assert.Len(t, w, len(weatherParams))
	for name, v := range w {
		assert.True(t, v.Valid, name)
	}

	for _, fn := range []func(context.Context) (string, error){c.Trk, c.ClrRates} {
		tok, err := fn(ctx)
		require.NoError(t, err)
		assert.Equal(t, "COMPLETED", tok)
	}
	tok, err = c.SetRate(ctx, "el", 3)
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", tok)
	tok, err = c.Move(ctx, "el", 45)
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", tok)
}

func TestGetCountMismatch(t *testing.T) {
	c, _ := simClient(t, Config{})
	p, err := c.Get(context.Background(), "AzimuthAngle", "NoSuchParam")
	require.NoError(t, err)
	assert.Equal(t, Params{"AzimuthAngle": {}, "NoSuchParam": {}}, p)
}

func TestGetUnknownSingleParam(t *testing.T) {
	c, _ := simClient(t, Config{})
	p, err := c.Get(context.Background(), "Bogus")
	require.NoError(t, err)
	assert.Equal(t, Params{"Bogus": {}}, p)

	p, err = c.Get(context.Background(), "ElevationAngle")
	require.NoError(t, err)
	assert.Equal(t, Params{"ElevationAngle": {Raw: "88.0", Valid: true}}, p)
}

func TestOnsourceAtRest(t *testing.T) {
	c, _ := simClient(t, Config{SettleDelay: time.Millisecond})
	ps, err := c.Onsource(context.Background())
	require.NoError(t, err)
	assert.Equal(t, antenna.Onsource, ps)
	st := c.GetStatus()
	assert.Equal(t, antenna.Onsource, st.PointStatus)
	assert.Equal(t, "operational", st.AntennaStatus)
	assert.Equal(t, 88.0, st.Angle.El)
}

func sampleReplies(before, after string) func(string) string {
	var n int
	return func(line string) string {
		if !strings.HasPrefix(line, "PARAM") {
			return protocol.Completed
		}
		n++
		if n == 1 {
			return before
		}
		return after
	}
}

func TestOnsourceClassification(t *testing.T) {
	for _, test := range []struct {
		name          string
		before, after string
		want          antenna.PointStatus
	}{
		{"settled", "0, 10, 10, 0, 45, 45, operational", "0.01, 10.01, 10.01, 0, 45, 45, operational", antenna.Onsource},
		{"moving", "0, 10, 10, 0, 45, 45, operational", "0, 20, 20, 0, 45, 45, operational", antenna.Slewing},
		{"moving marginal", "0, 10, 10, 0, 45, 45, marginal", "0, 20, 20, 0, 45, 45, critical", antenna.Slewing},
		{"moving critical", "0, 10, 10, 0, 45, 45, critical", "0, 20, 20, 0, 45, 45, critical", antenna.Error},
	} {
		t.Run(test.name, func(t *testing.T) {
			c := scriptClient(t, &script{reply: sampleReplies(test.before, test.after)}, Config{SettleDelay: time.Millisecond})
			ps, err := c.Onsource(context.Background())
			require.NoError(t, err)
			assert.Equal(t, test.want, ps)
			assert.Equal(t, test.want, c.GetStatus().PointStatus)
		})
	}
}

func TestOnsourceBadSample(t *testing.T) {
	c := scriptClient(t, &script{reply: sampleReplies("0, x, 10, 0, 45, 45, operational", "")}, Config{SettleDelay: time.Millisecond})
	ps, err := c.Onsource(context.Background())
	var pe *ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, antenna.Unknown, ps)
}

func TestOnsourceCanceledDuringSettle(t *testing.T) {
	c := scriptClient(t, &script{reply: sampleReplies("0, 10, 10, 0, 45, 45, operational", "")}, Config{SettleDelay: time.Hour})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Onsource(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCommandFormatting(t *testing.T) {
	s := &script{}
	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	c := scriptClient(t, s, Config{Now: func() time.Time { return now }})
	ctx := context.Background()

	_, err := c.FeedChange(ctx, true, 1, 2)
	require.NoError(t, err)
	_, err = c.FeedChange(ctx, false, 1, 2)
	require.NoError(t, err)
	_, err = c.PointRadec(ctx, 10, -20, "now")
	require.NoError(t, err)
	_, err = c.PointRadec(ctx, 10, -20, "J2000")
	require.NoError(t, err)
	_, err = c.SetRate(ctx, "xdec", 1.5)
	require.NoError(t, err)
	_, err = c.ClrRates(ctx)
	require.NoError(t, err)
	_, err = c.Trk(ctx)
	require.NoError(t, err)
	_, err = c.Move(ctx, "el", 45)
	require.NoError(t, err)

	ra, dec := ephem.J2000ToDate(10, -20, now)
	want := []string{
		"ANTENNA PO EL 15.0000",
		"ANTENNA PO XEL 33.0000",
		"ANTENNA PO EL 1.0000",
		"ANTENNA PO XEL 2.0000",
		"ANTENNA RADEC 10.0000 -20.0000",
		"ANTENNA RADEC " + protocol.FormatArg(ra) + " " + protocol.FormatArg(dec),
		"ANTENNA RO XDEC 1.5000",
		"ANTENNA CLR RO",
		"ANTENNA TRK",
		"ANTENNA MOVE EL 45.0000",
	}
	if diff := cmp.Diff(s.Lines(), want); diff != "" {
		t.Errorf("unexpected commands: got(-)/want(+):\n%s", diff)
	}

	_, err = c.PointRadec(ctx, 10, -20, "B1950")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = c.SetRate(ctx, "ROLL", 1)
	assert.ErrorIs(t, err, ErrUnsupportedAxis)
	assert.Len(t, s.Lines(), len(want))
}

func TestCommandSingleRead(t *testing.T) {
	long := strings.Repeat("x", 200)
	c := scriptClient(t, &script{reply: func(string) string { return long }}, Config{})
	resp, err := c.Command(context.Background(), "GET_LONG\n", 16)
	require.NoError(t, err)
	assert.Equal(t, long[:16], resp)
}

func TestCommandTimeout(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	c := scriptClient(t, &script{reply: func(string) string {
		<-block
		return protocol.Completed
	}}, Config{CommandTimeout: 20 * time.Millisecond})
	_, err := c.Command(context.Background(), "HANG\n", 0)
	assert.ErrorIs(t, err, os.ErrDeadlineExceeded)
}

// within fails the test if fn does not return within d.
func within(t *testing.T, d time.Duration, what string, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("%s blocked behind a stalled exchange", what)
	}
}

func TestCloseUnblocksStalledCommand(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	c := scriptClient(t, &script{reply: func(string) string {
		<-block
		return protocol.Completed
	}}, Config{})

	errc := make(chan error, 1)
	go func() {
		_, err := c.Command(context.Background(), "HANG\n", 0)
		errc <- err
	}()
	// let the exchange reach its read
	time.Sleep(20 * time.Millisecond)

	within(t, 500*time.Millisecond, "Simulated()", func() { assert.False(t, c.Simulated()) })
	within(t, 500*time.Millisecond, "WSN()", func() { c.WSN() })
	within(t, 500*time.Millisecond, "Close()", func() { c.Close() })
	select {
	case err := <-errc:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("Command still stalled after Close")
	}

	_, err := c.Command(context.Background(), "HI\n", 0)
	assert.ErrorIs(t, err, ErrNotConnected)
	within(t, 500*time.Millisecond, "Simulate()", func() { c.Simulate() })
	resp, err := c.Command(context.Background(), "HI\n", 0)
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED\n", resp)
}

func TestGetHadecBareToken(t *testing.T) {
	c := scriptClient(t, &script{}, Config{})
	h, err := c.GetHadec(context.Background())
	require.NoError(t, err)
	assert.Equal(t, HourAngleDec{Success: "COMPLETED", Wrap: "0", Timing: "0"}, h)
}

func TestConnectFallsBackToSimulator(t *testing.T) {
	c := New(Config{
		Logger: quietLogger(),
		Dial: func(context.Context, string, string) (net.Conn, error) {
			return nil, &net.OpError{Op: "dial", Net: "tcp", Err: &os.SyscallError{Syscall: "connect", Err: syscall.ECONNREFUSED}}
		},
	})
	ctx := context.Background()
	res := c.Connect(ctx, 3, "GDSCC")
	assert.Equal(t, ConnectResult{Success: false, WSN: 0, Errno: syscall.ECONNREFUSED.Error()}, res)
	assert.True(t, c.Simulated())
	assert.Equal(t, 0, c.WSN())
	assert.Equal(t, 43, c.DSS())

	resp, err := c.Command(ctx, "ANTENNA HI\n", 0)
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED\n", resp)

	azel, err := c.GetAzel(ctx)
	require.NoError(t, err)
	assert.Equal(t, AzEl{Az: 60, El: 45}, azel)

	ps, err := c.Onsource(ctx)
	require.NoError(t, err)
	assert.Equal(t, antenna.Onsource, ps)

	assert.NoError(t, c.Close())
	_, err = c.Command(ctx, "ANTENNA HI\n", 0)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Equal(t, ConnectResult{Success: true, WSN: 0}, c.Simulate())
}

func TestConnectTimeout(t *testing.T) {
	c := New(Config{
		Logger:         quietLogger(),
		ConnectTimeout: 10 * time.Millisecond,
		Dial: func(ctx context.Context, _, _ string) (net.Conn, error) {
			<-ctx.Done()
			return nil, &net.OpError{Op: "dial", Net: "tcp", Err: ctx.Err()}
		},
	})
	res := c.Connect(context.Background(), 1, "CDSCC")
	assert.False(t, res.Success)
	assert.True(t, c.Simulated())
}

func TestReconnect(t *testing.T) {
	var dials int
	s := &script{}
	srv := &protocol.Server{Handler: s, Logger: quietLogger()}
	c := New(Config{
		Logger: quietLogger(),
		Dial: func(_ context.Context, _, addr string) (net.Conn, error) {
			dials++
			assert.Equal(t, "137.228.201.86:6714", addr)
			a, b := net.Pipe()
			go srv.ServeConn(context.Background(), a)
			return b, nil
		},
		DSS: 14,
	})
	defer c.Close()
	require.True(t, c.Connect(context.Background(), 11, "GDSCC").Success)
	require.True(t, c.Reconnect(context.Background()).Success)
	assert.Equal(t, 2, dials)
	assert.Equal(t, 11, c.WSN())
	assert.Equal(t, "GDSCC", c.Site())
}

func TestWorkstation(t *testing.T) {
	host, wsn, ok := Workstation("GDSCC", 11)
	assert.Equal(t, "137.228.201.86", host)
	assert.Equal(t, 11, wsn)
	assert.True(t, ok)

	host, wsn, ok = Workstation("CDSCC", 55)
	assert.Equal(t, "localhost", host)
	assert.Equal(t, 0, wsn)
	assert.False(t, ok)

	assert.Equal(t, 6743, Port(43))
}

func TestKBandFWHM(t *testing.T) {
	assert.Equal(t, 13.5, KBandFWHM(22000))
	assert.Equal(t, 13.5, KBandFWHM(0))
	assert.Equal(t, 27.0, KBandFWHM(11000))
}

func TestValueJSON(t *testing.T) {
	for _, test := range []struct {
		v    Value
		want string
	}{
		{Value{}, "null"},
		{Value{Raw: "5.0", Valid: true}, "5"},
		{Value{Raw: "operational", Valid: true}, `"operational"`},
	} {
		b, err := test.v.MarshalJSON()
		require.NoError(t, err)
		assert.Equal(t, test.want, string(b))
	}
	_, err := Value{}.Float()
	assert.Error(t, err)
}

func TestProtocolErrorMessage(t *testing.T) {
	err := error(&ProtocolError{Command: "PARAM A B", Reply: "1", Reason: "requested 2 params, got 1"})
	assert.Equal(t, `PARAM A B: requested 2 params, got 1 (reply "1")`, err.Error())
	assert.False(t, errors.Is(err, ErrInvalidArgument))
}
