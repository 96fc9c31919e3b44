// Package config loads runtime settings from an optional .env file and the
// environment.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	NMC      NMCConfig
	Weather  WeatherConfig
	Influx   InfluxConfig
	HTTPAddr string
	// RecordInterval is the telemetry sampling period.
	RecordInterval time.Duration
	Logging        LoggingConfig
}

type NMCConfig struct {
	// Addr is where the simulator listens.
	Addr       string
	DSS        int
	Site       string
	WSN        int
	Simulated  bool
	SerialPort string
	SerialBaud int
	// CommandTimeout bounds each client exchange with the control script.
	CommandTimeout time.Duration
}

type WeatherConfig struct {
	URL        string
	APIKey     string
	ModbusAddr string
	ModbusPort string
	ModbusBaud int
	Interval   time.Duration
}

type InfluxConfig struct {
	Server string
	Token  string
	Org    string
	Bucket string
}

type LoggingConfig struct {
	Level string
	Dir   string
}

// Load reads files (".env" when none are given) if present, then the
// environment. Missing files are not an error.
func Load(files ...string) *Config {
	_ = godotenv.Load(files...)

	return &Config{
		NMC: NMCConfig{
			Addr:           getEnv("NMC_ADDR", ":6743"),
			DSS:            getEnvAsInt("NMC_DSS", 43),
			Site:           getEnv("NMC_SITE", "CDSCC"),
			WSN:            getEnvAsInt("NMC_WSN", 0),
			Simulated:      getEnvAsBool("NMC_SIMULATED", false),
			SerialPort:     getEnv("NMC_SERIAL_PORT", ""),
			SerialBaud:     getEnvAsInt("NMC_SERIAL_BAUD", 9600),
			CommandTimeout: getEnvAsDuration("NMC_COMMAND_TIMEOUT", 10*time.Second),
		},
		Weather: WeatherConfig{
			URL:        getEnv("WEATHER_URL", ""),
			APIKey:     getEnv("WEATHER_API_KEY", ""),
			ModbusAddr: getEnv("WEATHER_MODBUS_ADDR", ""),
			ModbusPort: getEnv("WEATHER_MODBUS_PORT", ""),
			ModbusBaud: getEnvAsInt("WEATHER_MODBUS_BAUD", 19200),
			Interval:   getEnvAsDuration("WEATHER_INTERVAL", 300*time.Second),
		},
		Influx: InfluxConfig{
			Server: getEnv("INFLUX_SERVER", ""),
			Token:  getEnv("INFLUX_TOKEN", ""),
			Org:    getEnv("INFLUX_ORG", "dsn"),
			Bucket: getEnv("INFLUX_BUCKET", "apc"),
		},
		HTTPAddr:       getEnv("HTTP_ADDR", ":8502"),
		RecordInterval: getEnvAsDuration("RECORD_INTERVAL", 2*time.Second),
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			Dir:   getEnv("LOG_DIR", ""),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(name string, defaultValue int) int {
	valueStr := getEnv(name, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	val, _ := strconv.ParseBool(value)
	return val
}

// getEnvAsDuration accepts Go durations ("2s") or plain seconds ("2.5").
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if s, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(s * float64(time.Second))
	}
	return defaultValue
}
