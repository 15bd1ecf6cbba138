package ports

import (
	"time"

	"github.com/unitherm/unitherm/internal/thermostat"
)

// ThermostatService is the control-plane port used by controllers (HTTP/MQTT/Modbus).
type ThermostatService interface {
	Get() thermostat.Snapshot
	SetHVACMode(thermostat.HVACMode) error
	SetPreset(name string) error
	SetTargetTemp(float64) error
	SetTargetTempRange(low, high float64) error
	SetMinMax(min, max float64) error
	UpdateCurrentTemp(value float64, ts time.Time) error
	SetControllerGains(name string, kp, ki, kd float64) error
	SetControllerTolerances(name string, cold, hot float64) error
}
