// nmc_sim serves a simulated NMC antenna controller over TCP and,
// optionally, a serial line.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/w1xm/nmc_interface/ephem"
	"github.com/w1xm/nmc_interface/internal/config"
	"github.com/w1xm/nmc_interface/internal/logging"
	"github.com/w1xm/nmc_interface/protocol"
	"github.com/w1xm/nmc_interface/simulator"
	"github.com/w1xm/nmc_interface/weather"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := config.Load()
	var slewRate float64
	cmd := &cobra.Command{
		Use:   "nmc_sim",
		Short: "Simulate the NMC antenna control script",
		Long: `Simulate the NMC antenna control script.

The simulator answers the line protocol on a TCP port and tracks RA/Dec,
Az/El and offset-rate commands in background workers. When a weather
source is configured it is polled for GET_WEATHER and the weather params.`,
		Example: `  # DSS-43 on the default port
  nmc_sim

  # DSS-14 with a Modbus weather station
  nmc_sim --dss 14 --addr :6714 --weather-modbus 10.0.0.5:502`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return run(cmd.Context(), cfg, slewRate)
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.NMC.Addr, "addr", cfg.NMC.Addr, "address to listen on")
	f.IntVar(&cfg.NMC.DSS, "dss", cfg.NMC.DSS, "antenna to simulate")
	f.StringVar(&cfg.NMC.SerialPort, "serial", cfg.NMC.SerialPort, "also serve on this serial port")
	f.IntVar(&cfg.NMC.SerialBaud, "baud", cfg.NMC.SerialBaud, "serial baud rate")
	f.StringVar(&cfg.Weather.URL, "weather-url", cfg.Weather.URL, "weather service URL")
	f.StringVar(&cfg.Weather.ModbusAddr, "weather-modbus", cfg.Weather.ModbusAddr, "Modbus-TCP weather station address")
	f.StringVar(&cfg.Weather.ModbusPort, "weather-serial", cfg.Weather.ModbusPort, "serial port of a Modbus-RTU weather station")
	f.DurationVar(&cfg.Weather.Interval, "weather-interval", cfg.Weather.Interval, "weather polling period")
	f.Float64Var(&slewRate, "slew-rate", simulator.DefaultSlewRate, "slew rate in degrees per second")
	f.StringVar(&cfg.Logging.Level, "log-level", cfg.Logging.Level, "log level")
	f.StringVar(&cfg.Logging.Dir, "log-dir", cfg.Logging.Dir, "directory for log files")
	return cmd
}

// weatherFetcher picks the configured weather source; nil means none.
func weatherFetcher(cfg config.WeatherConfig) weather.Fetcher {
	switch {
	case cfg.ModbusAddr != "":
		return weather.NewModbusStation(cfg.ModbusAddr, 1)
	case cfg.ModbusPort != "":
		return weather.NewModbusSerialStation(cfg.ModbusPort, cfg.ModbusBaud, 1)
	case cfg.URL != "" || cfg.APIKey != "":
		opts := []weather.Option{weather.WithAPIKey(cfg.APIKey)}
		if cfg.URL != "" {
			opts = append(opts, weather.WithURL(cfg.URL))
		}
		return weather.NewHTTPFetcher(opts...)
	}
	return nil
}

func run(ctx context.Context, cfg *config.Config, slewRate float64) error {
	logger, closer, err := logging.New(cfg.Logging.Level, cfg.Logging.Dir, "nmc_sim", time.Now())
	if err != nil {
		return err
	}
	defer closer.Close()

	site, err := ephem.LookupSite(cfg.NMC.DSS)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	simCfg := simulator.Config{
		Site:          site,
		SlewRate:      slewRate,
		WeatherPeriod: cfg.Weather.Interval,
		Logger:        logger.WithField("component", "simulator"),
	}
	if f := weatherFetcher(cfg.Weather); f != nil {
		simCfg.Weather = f
		if c, ok := f.(interface{ Close() error }); ok {
			defer c.Close()
		}
	}
	ant, err := simulator.New(ctx, simCfg)
	if err != nil {
		return err
	}
	defer ant.Close()
	logger.WithFields(logrus.Fields{"dss": site.DSS, "site": site.Name}).Info("simulating antenna")

	srv := &protocol.Server{
		Handler: ant,
		Logger:  logger.WithField("component", "server"),
	}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(ctx, cfg.NMC.Addr)
	})
	if cfg.NMC.SerialPort != "" {
		g.Go(func() error {
			return srv.ServeSerial(ctx, cfg.NMC.SerialPort, cfg.NMC.SerialBaud)
		})
	}
	return g.Wait()
}
