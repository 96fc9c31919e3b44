// apc serves the antenna pointing control client over HTTP: JSON endpoints
// for each client operation and a websocket status feed.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/w1xm/nmc_interface/internal/config"
	"github.com/w1xm/nmc_interface/internal/logging"
	"github.com/w1xm/nmc_interface/nmc"
	"github.com/w1xm/nmc_interface/telemetry"
)

const statusPeriod = time.Second

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := config.Load()
	var record bool
	cmd := &cobra.Command{
		Use:   "apc",
		Short: "Serve the antenna pointing control client",
		Long: `Serve the antenna pointing control client.

apc connects to the NMC control script on a workstation (or simulates one
when it cannot) and exposes its operations under /api. Monitor samples are
recorded to InfluxDB when INFLUX_SERVER is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return serve(cmd.Context(), cfg, record)
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.HTTPAddr, "http", cfg.HTTPAddr, "address to serve HTTP on")
	f.IntVar(&cfg.NMC.DSS, "dss", cfg.NMC.DSS, "antenna to control")
	f.StringVar(&cfg.NMC.Site, "site", cfg.NMC.Site, "complex of the workstation (CDSCC or GDSCC)")
	f.IntVar(&cfg.NMC.WSN, "wsn", cfg.NMC.WSN, "workstation number")
	f.DurationVar(&cfg.NMC.CommandTimeout, "command-timeout", cfg.NMC.CommandTimeout, "bound on each exchange with the control script (0 for none)")
	f.BoolVar(&cfg.NMC.Simulated, "simulate", cfg.NMC.Simulated, "do not connect; answer from a fake antenna")
	f.DurationVar(&cfg.RecordInterval, "record-interval", cfg.RecordInterval, "telemetry sampling period")
	f.BoolVar(&record, "record", false, "start recording at startup")
	cmd.PersistentFlags().StringVar(&cfg.Logging.Level, "log-level", cfg.Logging.Level, "log level")
	cmd.PersistentFlags().StringVar(&cfg.Logging.Dir, "log-dir", cfg.Logging.Dir, "directory for log files")
	cmd.AddCommand(newLoggerCommand(cfg))
	return cmd
}

func clientConfig(cfg config.NMCConfig, logger logrus.FieldLogger) nmc.Config {
	return nmc.Config{
		Site:           cfg.Site,
		DSS:            cfg.DSS,
		WSN:            cfg.WSN,
		CommandTimeout: cfg.CommandTimeout,
		Logger:         logger,
	}
}

func serve(ctx context.Context, cfg *config.Config, record bool) error {
	logger, closer, err := logging.New(cfg.Logging.Level, cfg.Logging.Dir, "apc", time.Now())
	if err != nil {
		return err
	}
	defer closer.Close()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := nmc.New(clientConfig(cfg.NMC, logger.WithField("component", "nmc")))
	defer client.Close()
	if cfg.NMC.Simulated {
		client.Simulate()
	} else {
		res := client.Connect(ctx, cfg.NMC.WSN, cfg.NMC.Site)
		logger.WithFields(logrus.Fields{"success": res.Success, "wsn": res.WSN}).Info("connect")
	}

	var sink telemetry.Sink = &telemetry.MemorySink{Max: 1}
	if cfg.Influx.Server != "" {
		influx := telemetry.NewInfluxSink(telemetry.InfluxConfig{
			Server: cfg.Influx.Server,
			Token:  cfg.Influx.Token,
			Org:    cfg.Influx.Org,
			Bucket: cfg.Influx.Bucket,
			DSS:    client.DSS(),
		}, logger.WithField("component", "influx"))
		defer influx.Close()
		sink = influx
	}
	recorder := telemetry.NewRecorder(client, sink, telemetry.RecorderConfig{
		Interval: cfg.RecordInterval,
		Logger:   logger,
	})
	defer recorder.Stop()

	g, ctx := errgroup.WithContext(ctx)
	s := NewServer(ctx, client, recorder, logger.WithField("component", "http"))
	if record {
		if err := recorder.Start(ctx); err != nil {
			return err
		}
	}
	srv := &http.Server{
		Handler:      s.Router(),
		Addr:         cfg.HTTPAddr,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	g.Go(func() error {
		return s.PublishLoop(ctx, statusPeriod)
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		logger.Infof("listening on %v", srv.Addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	return g.Wait()
}
