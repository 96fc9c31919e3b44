package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/w1xm/nmc_interface/internal/config"
	"github.com/w1xm/nmc_interface/internal/logging"
	"github.com/w1xm/nmc_interface/telemetry"
)

func newLoggerCommand(cfg *config.Config) *cobra.Command {
	url := "ws://localhost:8502/api/ws"
	if v := os.Getenv("APC_ADDRESS"); v != "" {
		url = v
	}
	cmd := &cobra.Command{
		Use:   "logger",
		Short: "Copy the status feed of a running apc into InfluxDB",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			logger, closer, err := logging.New(cfg.Logging.Level, cfg.Logging.Dir, "apc_logger", time.Now())
			if err != nil {
				return err
			}
			defer closer.Close()
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sink := telemetry.NewInfluxSink(telemetry.InfluxConfig{
				Server:      cfg.Influx.Server,
				Token:       cfg.Influx.Token,
				Org:         cfg.Influx.Org,
				Bucket:      cfg.Influx.Bucket,
				Measurement: "antenna.status",
				DSS:         cfg.NMC.DSS,
			}, logger)
			defer sink.Close()
			for ctx.Err() == nil {
				if err := logStatus(ctx, url, sink, logger); err != nil {
					logger.Error(err)
				}
				sink.Flush()
				select {
				case <-ctx.Done():
				case <-time.After(time.Second):
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", url, "status feed to follow")
	return cmd
}

// logStatus pushes every message of the status feed at url to sink until
// the feed ends.
func logStatus(ctx context.Context, url string, sink telemetry.Sink, logger logrus.FieldLogger) error {
	var dialer websocket.Dialer
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	for {
		var status interface{}
		if err := conn.ReadJSON(&status); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		fields := make(map[string]interface{})
		telemetry.Flatten(fields, status, "")
		if err := sink.Push(ctx, telemetry.Sample{Time: time.Now(), Fields: fields}); err != nil {
			logger.Errorf("pushing status: %v", err)
		}
	}
}
