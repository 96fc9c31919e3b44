package weather

import (
	"context"
	"time"

	"github.com/w1xm/nmc_interface/internal/modbus"
)

// Station register map, input registers starting at 0.
const (
	regTemperature   = iota // int16, 0.1 C
	regPressure             // 0.1 hPa
	regHumidity             // 0.1 %
	regWindSpeed            // 0.1 m/s
	regWindDirection        // degrees
	regPrecipitation        // 0.1 mm
	numRegisters
)

// ModbusStation reads a site weather station over Modbus. The location
// arguments of Fetch are ignored; the station is wherever it is.
type ModbusStation struct {
	Client *modbus.Client
	now    func() time.Time
}

func NewModbusStation(addr string, slaveID byte) *ModbusStation {
	return &ModbusStation{
		Client: &modbus.Client{Addr: addr, SlaveId: slaveID},
		now:    time.Now,
	}
}

// NewModbusSerialStation reads a station attached to a local RTU line.
func NewModbusSerialStation(port string, baud int, slaveID byte) *ModbusStation {
	return &ModbusStation{
		Client: &modbus.Client{Port: port, BaudRate: baud, SlaveId: slaveID},
		now:    time.Now,
	}
}

func (s *ModbusStation) Fetch(ctx context.Context, _, _ float64) (Report, error) {
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}
	regs, err := s.Client.ReadInputRegisters(0, numRegisters)
	if err != nil {
		return Report{}, err
	}
	r := decodeRegisters(regs)
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	r.Time = now().UTC()
	return r, nil
}

func (s *ModbusStation) Close() error {
	return s.Client.Close()
}

func decodeRegisters(regs []uint16) Report {
	return Report{
		Temperature:   float64(int16(regs[regTemperature])) / 10,
		Pressure:      float64(regs[regPressure]) / 10,
		Humidity:      float64(regs[regHumidity]) / 10,
		WindSpeed:     float64(regs[regWindSpeed]) / 10,
		WindDirection: float64(regs[regWindDirection]),
		Precipitation: float64(regs[regPrecipitation]) / 10,
	}
}
