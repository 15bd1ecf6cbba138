package modbusctrl

import (
	"encoding/binary"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/goburrow/modbus"

	"github.com/unitherm/unitherm/internal/thermostat"
)

// fake service for tests
type spyThermostatService struct {
	mu sync.Mutex
	s  thermostat.Snapshot

	// record calls
	setModeCalls       []thermostat.HVACMode
	setPresetCalls     []string
	setTargetCalls     []float64
	setRangeCalls      [][2]float64
	setMinMaxCalls     [][2]float64
	updateCurrentCalls []float64
	setGainsCalls      []string
	setTolerancesCalls []string
}

func (f *spyThermostatService) Get() thermostat.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.s
}

func (f *spyThermostatService) SetHVACMode(m thermostat.HVACMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.s.HVACMode = m
	f.setModeCalls = append(f.setModeCalls, m)
	return nil
}

func (f *spyThermostatService) SetPreset(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.s.Preset = name
	f.setPresetCalls = append(f.setPresetCalls, name)
	return nil
}

func (f *spyThermostatService) SetTargetTemp(v float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.s.TargetTemp = v
	f.setTargetCalls = append(f.setTargetCalls, v)
	return nil
}

func (f *spyThermostatService) SetTargetTempRange(low, high float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.s.TargetTempLow = low
	f.s.TargetTempHigh = high
	f.setRangeCalls = append(f.setRangeCalls, [2]float64{low, high})
	return nil
}

func (f *spyThermostatService) SetMinMax(min, max float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.s.MinTemp = min
	f.s.MaxTemp = max
	f.setMinMaxCalls = append(f.setMinMaxCalls, [2]float64{min, max})
	return nil
}

func (f *spyThermostatService) UpdateCurrentTemp(v float64, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.s.CurrentTemp = v
	f.s.HasCurrentTemp = true
	f.updateCurrentCalls = append(f.updateCurrentCalls, v)
	return nil
}

func (f *spyThermostatService) SetControllerGains(name string, _, _, _ float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setGainsCalls = append(f.setGainsCalls, name)
	return nil
}

func (f *spyThermostatService) SetControllerTolerances(name string, _, _ float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setTolerancesCalls = append(f.setTolerancesCalls, name)
	return nil
}

func findFreeTCPAddr(t *testing.T) string {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("free port: %v", err)
	}
	a := l.Addr().String()
	_ = l.Close()
	return a
}

const settleInterval = 50 * time.Millisecond

func TestModbusControllerHandlers(t *testing.T) {
	fs := &spyThermostatService{}
	fs.s = thermostat.Snapshot{
		HVACMode:       thermostat.ModeHeat,
		TargetTemp:     22.5,
		TargetTempLow:  20.0,
		TargetTempHigh: 24.0,
		MinTemp:        16.0,
		MaxTemp:        28.0,
		CurrentTemp:    21.25,
		HasCurrentTemp: true,
		Controllers: []thermostat.ControllerStatus{
			{Name: "heater", Role: thermostat.RoleHeater, Running: true, Target: 22.5},
			{Name: "cooler", Role: thermostat.RoleCooler, Running: false, Target: 24.0},
		},
	}

	addr := findFreeTCPAddr(t)

	ctrl, err := New(fs, Config{
		DeviceID: "dev",
		Addr:     addr,
		UnitID:   1,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := t.Context()
	go func() {
		_ = ctrl.Run(ctx)
	}()

	time.Sleep(settleInterval)

	handler := modbus.NewTCPClientHandler(addr)
	if err := handler.Connect(); err != nil {
		t.Fatalf("client connect: %v", err)
	}
	defer handler.Close()
	client := modbus.NewClient(handler)

	// Read holding registers 0..5
	res, err := client.ReadHoldingRegisters(0, 6)
	if err != nil {
		t.Fatalf("read holding: %v", err)
	}
	if len(res) != 12 {
		t.Fatalf("expected 12 bytes got %d", len(res))
	}
	get := func(i int) uint16 { return binary.BigEndian.Uint16(res[i*2 : i*2+2]) }
	if get(0) != encodeTemp(22.5) {
		t.Fatalf("target mismatch")
	}
	if get(1) != encodeTemp(20.0) || get(2) != encodeTemp(24.0) {
		t.Fatalf("range mismatch")
	}
	if get(5) != uint16(thermostat.ModeHeat) {
		t.Fatalf("mode mismatch")
	}

	// Read input register 0 (current temperature)
	res, err = client.ReadInputRegisters(0, 1)
	if err != nil {
		t.Fatalf("read input: %v", err)
	}
	if binary.BigEndian.Uint16(res) != encodeTemp(21.25) {
		t.Fatalf("current temperature mismatch")
	}

	// Read coils: per-controller demand flags
	res, err = client.ReadCoils(0, 2)
	if err != nil {
		t.Fatalf("read coils: %v", err)
	}
	if res[0]&0x01 == 0 {
		t.Fatalf("expected heater coil set")
	}
	if res[0]&0x02 != 0 {
		t.Fatalf("expected cooler coil clear")
	}

	// Write target register
	newTarget := encodeTemp(25.75)
	if _, err := client.WriteSingleRegister(0, newTarget); err != nil {
		t.Fatalf("write register: %v", err)
	}
	fs.mu.Lock()
	if len(fs.setTargetCalls) == 0 || fs.setTargetCalls[len(fs.setTargetCalls)-1] != decodeTemp(newTarget) {
		fs.mu.Unlock()
		t.Fatalf("SetTargetTemp not called")
	}
	fs.mu.Unlock()

	// Write mode register
	if _, err := client.WriteSingleRegister(5, uint16(thermostat.ModeCool)); err != nil {
		t.Fatalf("write mode: %v", err)
	}
	fs.mu.Lock()
	if len(fs.setModeCalls) == 0 || fs.setModeCalls[len(fs.setModeCalls)-1] != thermostat.ModeCool {
		fs.mu.Unlock()
		t.Fatalf("SetHVACMode not called")
	}
	fs.mu.Unlock()

	// Inject a wired-sensor reading
	if _, err := client.WriteSingleRegister(6, encodeTemp(19.5)); err != nil {
		t.Fatalf("write current temp: %v", err)
	}
	fs.mu.Lock()
	if len(fs.updateCurrentCalls) == 0 || fs.updateCurrentCalls[len(fs.updateCurrentCalls)-1] != 19.5 {
		fs.mu.Unlock()
		t.Fatalf("UpdateCurrentTemp not called")
	}
	fs.mu.Unlock()

	// Write low bound, high kept from the snapshot
	if _, err := client.WriteSingleRegister(1, encodeTemp(19.0)); err != nil {
		t.Fatalf("write low: %v", err)
	}
	fs.mu.Lock()
	if len(fs.setRangeCalls) == 0 || fs.setRangeCalls[len(fs.setRangeCalls)-1] != [2]float64{19.0, 24.0} {
		fs.mu.Unlock()
		t.Fatalf("SetTargetTempRange not called with kept high bound")
	}
	fs.mu.Unlock()
}

func TestModbusNewValidation(t *testing.T) {
	if _, err := New(&spyThermostatService{}, Config{}); err == nil {
		t.Fatal("expected error when UnitID missing")
	}
}

func TestTempEncoding(t *testing.T) {
	cases := []float64{0, 21.25, -10.5, 25.75}
	for _, v := range cases {
		if got := decodeTemp(encodeTemp(v)); got != v {
			t.Fatalf("round trip of %v gave %v", v, got)
		}
	}
}
