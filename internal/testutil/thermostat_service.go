package testutil

import (
	"time"

	"github.com/unitherm/unitherm/internal/thermostat"
)

// FakeThermostatService is a reusable fake implementing ports.ThermostatService.
// Put ONLY what multiple test packages need here.
type FakeThermostatService struct {
	S thermostat.Snapshot

	SetHVACModeCalled bool
	SetHVACModeArg    thermostat.HVACMode
	SetHVACModeErr    error

	SetPresetCalled bool
	SetPresetArg    string
	SetPresetErr    error

	SetTargetTempCalled bool
	SetTargetTempArg    float64
	SetTargetTempErr    error

	SetTargetTempRangeCalled bool
	SetTargetTempRangeLow    float64
	SetTargetTempRangeHigh   float64
	SetTargetTempRangeErr    error

	SetMinMaxCalled bool
	SetMinMaxMin    float64
	SetMinMaxMax    float64
	SetMinMaxErr    error

	UpdateCurrentTempCalled bool
	UpdateCurrentTempArg    float64
	UpdateCurrentTempTS     time.Time
	UpdateCurrentTempErr    error

	SetGainsCalled bool
	SetGainsName   string
	SetGainsArgs   [3]float64
	SetGainsErr    error

	SetTolerancesCalled bool
	SetTolerancesName   string
	SetTolerancesArgs   [2]float64
	SetTolerancesErr    error
}

func NewFakeThermostatService() *FakeThermostatService {
	return &FakeThermostatService{
		S: thermostat.Snapshot{
			HVACMode:       thermostat.ModeHeat,
			TargetTemp:     22,
			TargetTempLow:  20,
			TargetTempHigh: 24,
			MinTemp:        16,
			MaxTemp:        28,
			AutoHeatDelta:  1,
			AutoCoolDelta:  1,
			CurrentTemp:    21,
			HasCurrentTemp: true,
		},
	}
}

func (f *FakeThermostatService) Get() thermostat.Snapshot { return f.S }

func (f *FakeThermostatService) SetHVACMode(m thermostat.HVACMode) error {
	f.SetHVACModeCalled = true
	f.SetHVACModeArg = m
	if f.SetHVACModeErr != nil {
		return f.SetHVACModeErr
	}
	f.S.HVACMode = m
	return nil
}

func (f *FakeThermostatService) SetPreset(name string) error {
	f.SetPresetCalled = true
	f.SetPresetArg = name
	if f.SetPresetErr != nil {
		return f.SetPresetErr
	}
	f.S.Preset = name
	return nil
}

func (f *FakeThermostatService) SetTargetTemp(v float64) error {
	f.SetTargetTempCalled = true
	f.SetTargetTempArg = v
	if f.SetTargetTempErr != nil {
		return f.SetTargetTempErr
	}
	f.S.TargetTemp = v
	return nil
}

func (f *FakeThermostatService) SetTargetTempRange(low, high float64) error {
	f.SetTargetTempRangeCalled = true
	f.SetTargetTempRangeLow = low
	f.SetTargetTempRangeHigh = high
	if f.SetTargetTempRangeErr != nil {
		return f.SetTargetTempRangeErr
	}
	f.S.TargetTempLow = low
	f.S.TargetTempHigh = high
	return nil
}

func (f *FakeThermostatService) SetMinMax(min, max float64) error {
	f.SetMinMaxCalled = true
	f.SetMinMaxMin = min
	f.SetMinMaxMax = max
	if f.SetMinMaxErr != nil {
		return f.SetMinMaxErr
	}
	f.S.MinTemp = min
	f.S.MaxTemp = max
	return nil
}

func (f *FakeThermostatService) UpdateCurrentTemp(v float64, ts time.Time) error {
	f.UpdateCurrentTempCalled = true
	f.UpdateCurrentTempArg = v
	f.UpdateCurrentTempTS = ts
	if f.UpdateCurrentTempErr != nil {
		return f.UpdateCurrentTempErr
	}
	f.S.CurrentTemp = v
	f.S.HasCurrentTemp = true
	return nil
}

func (f *FakeThermostatService) SetControllerGains(name string, kp, ki, kd float64) error {
	f.SetGainsCalled = true
	f.SetGainsName = name
	f.SetGainsArgs = [3]float64{kp, ki, kd}
	return f.SetGainsErr
}

func (f *FakeThermostatService) SetControllerTolerances(name string, cold, hot float64) error {
	f.SetTolerancesCalled = true
	f.SetTolerancesName = name
	f.SetTolerancesArgs = [2]float64{cold, hot}
	return f.SetTolerancesErr
}
