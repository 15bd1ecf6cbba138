package modbusctrl

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	mbserver "github.com/tbrandon/mbserver"

	"github.com/unitherm/unitherm/internal/ports"
	"github.com/unitherm/unitherm/internal/thermostat"
)

// Register map (big-endian, temperatures scaled by 100):
//
//	HR 0  target_temp          (rw)
//	HR 1  target_temp_low      (rw)
//	HR 2  target_temp_high     (rw)
//	HR 3  min_temp             (rw)
//	HR 4  max_temp             (rw)
//	HR 5  hvac_mode            (rw, HVACMode enum value)
//	HR 6  current_temperature  (write-only, wired-sensor injection)
//	IR 0  current_temperature  (ro, 0x8000 when no reading yet)
//	Coils 0..N  per-controller demand, declaration order (ro)

// Config for the Modbus controller.
type Config struct {
	DeviceID string
	Addr     string
	UnitID   byte // Modbus slave/unit ID. Use an integer 1..247.
	// SyncInterval retained in config to preserve API but unused when reads are handled by custom handlers.
	SyncInterval time.Duration
}

type Controller struct {
	svc ports.ThermostatService
	cfg Config

	serv *mbserver.Server
}

func New(svc ports.ThermostatService, cfg Config) (*Controller, error) {
	if cfg.UnitID == 0 {
		return nil, errors.New("modbus: UnitID is required (non-zero)")
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:1502"
	}
	return &Controller{svc: svc, cfg: cfg}, nil
}

// Run starts the Modbus server and registers handlers that apply writes immediately and
// provide reads directly from the thermostat service. It blocks until ctx is canceled.
func (c *Controller) Run(ctx context.Context) error {
	serv := mbserver.NewServer()
	c.serv = serv

	// Register handlers BEFORE starting the TCP listener to avoid races inside mbserver
	// between handler registration and the server's goroutines.
	// Read Coils (function 1) - per-controller demand flags.
	serv.RegisterFunctionHandler(1, func(s *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
		data := frame.GetData()
		if len(data) < 4 {
			return []byte{}, &mbserver.IllegalDataValue
		}
		start := int(binary.BigEndian.Uint16(data[0:2]))
		qty := int(binary.BigEndian.Uint16(data[2:4]))
		if qty == 0 || qty > 2000 {
			return []byte{}, &mbserver.IllegalDataValue
		}
		snap := c.svc.Get()
		if start < 0 || start+qty > len(snap.Controllers) {
			return []byte{}, &mbserver.IllegalDataAddress
		}
		byteCount := (qty + 7) / 8
		resp := make([]byte, 1+byteCount)
		resp[0] = byte(byteCount)
		for i := 0; i < qty; i++ {
			if snap.Controllers[start+i].Running {
				resp[1+i/8] |= 1 << (i % 8)
			}
		}
		return resp, &mbserver.Success
	})

	// Read Holding Registers (function 3) - expose HR 0..5 from service snapshot.
	serv.RegisterFunctionHandler(3, func(s *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
		data := frame.GetData()
		if len(data) < 4 {
			return []byte{}, &mbserver.IllegalDataValue
		}
		start := int(binary.BigEndian.Uint16(data[0:2]))
		qty := int(binary.BigEndian.Uint16(data[2:4]))
		if qty == 0 || qty > 125 {
			return []byte{}, &mbserver.IllegalDataValue
		}
		if start < 0 || start+qty > 6 {
			return []byte{}, &mbserver.IllegalDataAddress
		}
		snap := c.svc.Get()
		regs := make([]uint16, 0, qty)
		for i := 0; i < qty; i++ {
			addr := start + i
			switch addr {
			case 0:
				regs = append(regs, encodeTemp(snap.TargetTemp))
			case 1:
				regs = append(regs, encodeTemp(snap.TargetTempLow))
			case 2:
				regs = append(regs, encodeTemp(snap.TargetTempHigh))
			case 3:
				regs = append(regs, encodeTemp(snap.MinTemp))
			case 4:
				regs = append(regs, encodeTemp(snap.MaxTemp))
			case 5:
				regs = append(regs, uint16(snap.HVACMode))
			default:
				return []byte{}, &mbserver.IllegalDataAddress
			}
		}
		byteCount := len(regs) * 2
		resp := make([]byte, 1+byteCount)
		resp[0] = byte(byteCount)
		for i, r := range regs {
			binary.BigEndian.PutUint16(resp[1+i*2:1+i*2+2], r)
		}
		return resp, &mbserver.Success
	})

	// Read Input Registers (function 4) - expose IR 0 (current temperature).
	serv.RegisterFunctionHandler(4, func(s *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
		data := frame.GetData()
		if len(data) < 4 {
			return []byte{}, &mbserver.IllegalDataValue
		}
		start := int(binary.BigEndian.Uint16(data[0:2]))
		qty := int(binary.BigEndian.Uint16(data[2:4]))
		if qty == 0 || qty > 125 {
			return []byte{}, &mbserver.IllegalDataValue
		}
		if start != 0 || qty != 1 {
			return []byte{}, &mbserver.IllegalDataAddress
		}
		snap := c.svc.Get()
		val := uint16(noReadingSentinel)
		if snap.HasCurrentTemp {
			val = encodeTemp(snap.CurrentTemp)
		}
		resp := make([]byte, 1+2)
		resp[0] = 2
		binary.BigEndian.PutUint16(resp[1:3], val)
		return resp, &mbserver.Success
	})

	// Write Single Register (function 6)
	serv.RegisterFunctionHandler(6, func(s *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
		data := frame.GetData()
		if len(data) < 4 {
			return []byte{}, &mbserver.IllegalDataValue
		}
		addr := binary.BigEndian.Uint16(data[0:2])
		value := binary.BigEndian.Uint16(data[2:4])

		if ex := c.writeRegister(int(addr), value); ex != nil {
			return []byte{}, ex
		}

		// echo request (address + value)
		resp := make([]byte, 4)
		copy(resp, data[0:4])
		return resp, &mbserver.Success
	})

	// Write Multiple Registers (function 16)
	serv.RegisterFunctionHandler(16, func(s *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
		d := frame.GetData()
		if len(d) < 5 {
			return []byte{}, &mbserver.IllegalDataValue
		}
		start := binary.BigEndian.Uint16(d[0:2])
		quantity := binary.BigEndian.Uint16(d[2:4])
		byteCount := int(d[4])
		if byteCount != int(quantity)*2 || len(d) < 5+byteCount {
			return []byte{}, &mbserver.IllegalDataValue
		}
		for i := 0; i < int(quantity); i++ {
			addr := int(start) + i
			val := binary.BigEndian.Uint16(d[5+i*2 : 5+i*2+2])
			if ex := c.writeRegister(addr, val); ex != nil {
				return []byte{}, ex
			}
		}

		resp := make([]byte, 4)
		binary.BigEndian.PutUint16(resp[0:2], start)
		binary.BigEndian.PutUint16(resp[2:4], quantity)
		return resp, &mbserver.Success
	})

	// Now start listening after all handlers are registered.
	if err := serv.ListenTCP(c.cfg.Addr); err != nil {
		return fmt.Errorf("mbserver listen tcp %s: %w", c.cfg.Addr, err)
	}

	// Block until ctx.Done()
	<-ctx.Done()
	serv.Close()
	return ctx.Err()
}

func (c *Controller) writeRegister(addr int, val uint16) *mbserver.Exception {
	switch addr {
	case 0:
		if err := c.svc.SetTargetTemp(decodeTemp(val)); err != nil {
			return &mbserver.IllegalDataValue
		}
	case 1:
		cur := c.svc.Get()
		if err := c.svc.SetTargetTempRange(decodeTemp(val), cur.TargetTempHigh); err != nil {
			return &mbserver.IllegalDataValue
		}
	case 2:
		cur := c.svc.Get()
		if err := c.svc.SetTargetTempRange(cur.TargetTempLow, decodeTemp(val)); err != nil {
			return &mbserver.IllegalDataValue
		}
	case 3:
		cur := c.svc.Get()
		if err := c.svc.SetMinMax(decodeTemp(val), cur.MaxTemp); err != nil {
			return &mbserver.IllegalDataValue
		}
	case 4:
		cur := c.svc.Get()
		if err := c.svc.SetMinMax(cur.MinTemp, decodeTemp(val)); err != nil {
			return &mbserver.IllegalDataValue
		}
	case 5:
		if err := c.svc.SetHVACMode(thermostat.HVACMode(val)); err != nil {
			return &mbserver.IllegalDataValue
		}
	case 6:
		if err := c.svc.UpdateCurrentTemp(decodeTemp(val), time.Now()); err != nil {
			return &mbserver.IllegalDataValue
		}
	default:
		return &mbserver.IllegalDataAddress
	}
	return nil
}

const TemperatureScale int = 100

const noReadingSentinel = 0x8000

func encodeTemp(v float64) uint16 {
	r := min(max(int(math.Round(v*float64(TemperatureScale))), math.MinInt16), math.MaxInt16)
	return uint16(int16(r))
}

func decodeTemp(u uint16) float64 {
	i := int16(u)
	return float64(i) / float64(TemperatureScale)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
