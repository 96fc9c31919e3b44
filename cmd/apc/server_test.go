package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/w1xm/nmc_interface/antenna"
	"github.com/w1xm/nmc_interface/ephem"
	"github.com/w1xm/nmc_interface/internal/config"
	"github.com/w1xm/nmc_interface/nmc"
	"github.com/w1xm/nmc_interface/protocol"
	"github.com/w1xm/nmc_interface/simulator"
	"github.com/w1xm/nmc_interface/telemetry"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

// simServer serves the HTTP surface for a client connected to a simulator.
func simServer(t *testing.T) (*httptest.Server, *Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	site, err := ephem.LookupSite(43)
	require.NoError(t, err)
	ant, err := simulator.New(ctx, simulator.Config{Site: site, RatePeriod: time.Hour, Logger: quietLogger()})
	require.NoError(t, err)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	served := make(chan struct{})
	go func() {
		defer close(served)
		(&protocol.Server{Handler: ant, Logger: quietLogger()}).Serve(ctx, ln)
	}()

	client := nmc.New(nmc.Config{
		Logger: quietLogger(),
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(ctx, network, ln.Addr().String())
		},
	})
	require.True(t, client.Connect(ctx, 0, "CDSCC").Success)
	sink := &telemetry.MemorySink{}
	rec := telemetry.NewRecorder(client, sink, telemetry.RecorderConfig{Interval: 5 * time.Millisecond, Logger: quietLogger()})
	s := NewServer(ctx, client, rec, quietLogger())
	hs := httptest.NewServer(s.Router())
	t.Cleanup(func() {
		hs.Close()
		rec.Stop()
		client.Close()
		cancel()
		<-served
		ant.Close()
	})
	return hs, s
}

func do(t *testing.T, method, url string, body interface{}, out interface{}) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestOffsetsRoundTrip(t *testing.T) {
	hs, s := simServer(t)

	var set map[string]string
	code := do(t, http.MethodPost, hs.URL+"/api/offset", offsetRequest{Axis1: "EL", Axis2: "XEL", Value1: 5, Value2: 7}, &set)
	require.Equal(t, http.StatusOK, code)
	if diff := cmp.Diff(set, map[string]string{"EL": "COMPLETED", "XEL": "COMPLETED"}); diff != "" {
		t.Errorf("set offset got(-)/want(+):\n%s", diff)
	}

	var got antenna.AxisPair
	require.Equal(t, http.StatusOK, do(t, http.MethodGet, hs.URL+"/api/offsets", nil, &got))
	if diff := cmp.Diff(got, antenna.AxisPair{El: 5, XEl: 7}); diff != "" {
		t.Errorf("offsets got(-)/want(+):\n%s", diff)
	}

	var one map[string]interface{}
	require.Equal(t, http.StatusOK, do(t, http.MethodGet, hs.URL+"/api/offset/xel", nil, &one))
	assert.Equal(t, "XEL", one["axis"])
	assert.Equal(t, 7.0, one["offset"])

	assert.Equal(t, antenna.AxisPair{El: 5, XEl: 7}, s.client.GetStatus().Offset)
	assert.Equal(t, http.StatusBadRequest, do(t, http.MethodGet, hs.URL+"/api/offset/ha", nil, nil))
}

func TestCommandsAndQueries(t *testing.T) {
	hs, _ := simServer(t)

	var tok tokenResponse
	require.Equal(t, http.StatusOK, do(t, http.MethodPost, hs.URL+"/api/trk", nil, &tok))
	assert.Equal(t, "COMPLETED", tok.Response)

	require.Equal(t, http.StatusOK, do(t, http.MethodPost, hs.URL+"/api/command", commandRequest{Command: "ANTENNA BOGUS"}, &tok))
	assert.Equal(t, "REJECTED\n", tok.Response)

	assert.Equal(t, http.StatusBadRequest, do(t, http.MethodPost, hs.URL+"/api/rate", rateRequest{Axis: "AZEL", Rate: 1}, nil))
	assert.Equal(t, http.StatusBadRequest, do(t, http.MethodPost, hs.URL+"/api/point_radec", pointRadecRequest{Epoch: "B1950"}, nil))
	assert.Equal(t, http.StatusBadRequest, do(t, http.MethodPost, hs.URL+"/api/command", commandRequest{}, nil))

	var azel nmc.AzEl
	require.Equal(t, http.StatusOK, do(t, http.MethodGet, hs.URL+"/api/azel", nil, &azel))
	assert.Equal(t, nmc.AzEl{Az: 17, El: 88}, azel)

	var params map[string]interface{}
	require.Equal(t, http.StatusOK, do(t, http.MethodGet, hs.URL+"/api/get?param=ElevationAngle,WRAP&param=Status", nil, &params))
	if diff := cmp.Diff(params, map[string]interface{}{"ElevationAngle": 88.0, "WRAP": 0.0, "Status": "operational"}); diff != "" {
		t.Errorf("get got(-)/want(+):\n%s", diff)
	}

	var hadec nmc.HourAngleDec
	require.Equal(t, http.StatusOK, do(t, http.MethodGet, hs.URL+"/api/hadec", nil, &hadec))
	assert.Equal(t, "COMPLETED", hadec.Success)
	require.NotNil(t, hadec.Dec)
}

func TestSimulateAndRecording(t *testing.T) {
	hs, s := simServer(t)

	var res nmc.ConnectResult
	require.Equal(t, http.StatusOK, do(t, http.MethodPost, hs.URL+"/api/simulate", nil, &res))
	assert.True(t, res.Success)
	assert.True(t, s.client.Simulated())

	var ps map[string]string
	require.Equal(t, http.StatusOK, do(t, http.MethodPost, hs.URL+"/api/onsource", nil, &ps))
	assert.Equal(t, "ONSOURCE", strings.ToUpper(ps["point_status"]))

	require.Equal(t, http.StatusOK, do(t, http.MethodPost, hs.URL+"/api/recording/start", nil, nil))
	require.Eventually(t, func() bool {
		return s.recorder.Last().Fields["AzimuthAngle"] == 60.0
	}, time.Second, time.Millisecond)
	require.Equal(t, http.StatusOK, do(t, http.MethodPost, hs.URL+"/api/recording/stop", nil, nil))
	assert.False(t, s.recorder.Recording())

	var st Status
	require.Equal(t, http.StatusOK, do(t, http.MethodGet, hs.URL+"/api/status", nil, &st))
	assert.True(t, st.Simulated)
	assert.Equal(t, 43, st.DSS)
	assert.Equal(t, antenna.Onsource, st.PointStatus)
}

func TestStatusSocket(t *testing.T) {
	hs, _ := simServer(t)
	wsURL := "ws" + strings.TrimPrefix(hs.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var st Status
	require.NoError(t, conn.ReadJSON(&st))
	assert.False(t, st.Simulated)

	do(t, http.MethodPost, hs.URL+"/api/simulate", nil, nil)
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	require.NoError(t, conn.ReadJSON(&st))
	assert.True(t, st.Simulated)
}

func TestLogStatusFlattensFeed(t *testing.T) {
	hs, _ := simServer(t)
	wsURL := "ws" + strings.TrimPrefix(hs.URL, "http") + "/api/ws"
	sink := &telemetry.MemorySink{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- logStatus(ctx, wsURL, sink, quietLogger()) }()

	require.Eventually(t, func() bool { return len(sink.Samples()) > 0 }, 5*time.Second, time.Millisecond)
	fields := sink.Samples()[0].Fields
	assert.Equal(t, "CDSCC", fields["site"])
	assert.Equal(t, false, fields["simulated"])
	assert.Equal(t, "UNKNOWN", fields["point_status"])
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("logStatus did not return")
	}
}

func TestClientConfigCarriesCommandTimeout(t *testing.T) {
	cfg := clientConfig(config.NMCConfig{Site: "GDSCC", DSS: 14, WSN: 3, CommandTimeout: 3 * time.Second}, quietLogger())
	assert.Equal(t, 3*time.Second, cfg.CommandTimeout)
	assert.Equal(t, "GDSCC", cfg.Site)
	assert.Equal(t, 14, cfg.DSS)
	assert.Equal(t, 3, cfg.WSN)

	cmd := newRootCommand()
	require.NoError(t, cmd.Flags().Set("command-timeout", "250ms"))
	f := cmd.Flags().Lookup("command-timeout")
	require.NotNil(t, f)
	assert.Equal(t, "250ms", f.Value.String())
}
