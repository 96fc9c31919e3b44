package telemetry

import (
	"context"
	"strconv"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/sirupsen/logrus"
)

const DefaultMeasurement = "antenna.monitor"

type InfluxConfig struct {
	Server      string
	Token       string
	Org         string
	Bucket      string
	Measurement string
	DSS         int
}

// InfluxSink writes samples as points tagged with the antenna. Writes are
// asynchronous; write errors are logged.
type InfluxSink struct {
	measurement string
	tags        map[string]string
	client      influxdb2.Client
	writeApi    api.WriteApi
	done        chan struct{}
}

func NewInfluxSink(cfg InfluxConfig, logger logrus.FieldLogger) *InfluxSink {
	if cfg.Server == "" {
		cfg.Server = "http://localhost:9999"
	}
	if cfg.Measurement == "" {
		cfg.Measurement = DefaultMeasurement
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	client := influxdb2.NewClient(cfg.Server, cfg.Token)
	// Get non-blocking write client
	writeApi := client.WriteApi(cfg.Org, cfg.Bucket)
	s := &InfluxSink{
		measurement: cfg.Measurement,
		tags:        map[string]string{"dss": strconv.Itoa(cfg.DSS)},
		client:      client,
		writeApi:    writeApi,
		done:        make(chan struct{}),
	}
	errorsCh := writeApi.Errors()
	go func() {
		defer close(s.done)
		for err := range errorsCh {
			logger.Errorf("write error: %v", err)
		}
	}()
	return s
}

func (s *InfluxSink) Push(_ context.Context, sample Sample) error {
	if len(sample.Fields) == 0 {
		return nil
	}
	p := influxdb2.NewPoint(s.measurement, s.tags, sample.Fields, sample.Time)
	// write asynchronously
	s.writeApi.WritePoint(p)
	return nil
}

func (s *InfluxSink) Flush() {
	s.writeApi.Flush()
}

// Close flushes pending points and closes the client.
func (s *InfluxSink) Close() error {
	s.writeApi.Flush()
	s.writeApi.Close()
	s.client.Close()
	return nil
}
