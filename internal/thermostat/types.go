package thermostat

import "fmt"

// HVACMode is an integer enum.
type HVACMode int

const (
	ModeUnknown HVACMode = iota
	ModeOff
	ModeHeat
	ModeCool
	ModeHeatCool
	ModeAuto
)

func (m HVACMode) Valid() bool {
	return m == ModeOff || m == ModeHeat || m == ModeCool || m == ModeHeatCool || m == ModeAuto
}

func (m HVACMode) String() string {
	switch m {
	case ModeOff:
		return "off"
	case ModeHeat:
		return "heat"
	case ModeCool:
		return "cool"
	case ModeHeatCool:
		return "heat_cool"
	case ModeAuto:
		return "auto"
	default:
		return "unknown"
	}
}

// ParseHVACMode is optional but handy for env vars / CLI.
func ParseHVACMode(s string) (HVACMode, error) {
	switch s {
	case "off":
		return ModeOff, nil
	case "heat":
		return ModeHeat, nil
	case "cool":
		return ModeCool, nil
	case "heat_cool":
		return ModeHeatCool, nil
	case "auto":
		return ModeAuto, nil
	default:
		return ModeUnknown, fmt.Errorf("invalid hvac mode: %q", s)
	}
}

// Role says whether a controller acts as a heater or a cooler.
type Role int

const (
	RoleUnknown Role = iota
	RoleHeater
	RoleCooler
)

func (r Role) Valid() bool {
	return r == RoleHeater || r == RoleCooler
}

func (r Role) String() string {
	switch r {
	case RoleHeater:
		return "heater"
	case RoleCooler:
		return "cooler"
	default:
		return "unknown"
	}
}

func ParseRole(s string) (Role, error) {
	switch s {
	case "heater":
		return RoleHeater, nil
	case "cooler":
		return RoleCooler, nil
	default:
		return RoleUnknown, fmt.Errorf("invalid role: %q", s)
	}
}

// Strategy is the closed set of regulation strategies a controller can run.
type Strategy int

const (
	StrategyUnknown Strategy = iota
	StrategySwitch
	StrategyPWMSwitch
	StrategyClimateSwitch
	StrategyClimatePID
	StrategyNumberSwitch
)

func (s Strategy) Valid() bool {
	switch s {
	case StrategySwitch, StrategyPWMSwitch, StrategyClimateSwitch, StrategyClimatePID, StrategyNumberSwitch:
		return true
	default:
		return false
	}
}

func (s Strategy) String() string {
	switch s {
	case StrategySwitch:
		return "switch"
	case StrategyPWMSwitch:
		return "pwm_switch"
	case StrategyClimateSwitch:
		return "climate_switch"
	case StrategyClimatePID:
		return "climate_pid"
	case StrategyNumberSwitch:
		return "number_switch"
	default:
		return "unknown"
	}
}

func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "switch":
		return StrategySwitch, nil
	case "pwm_switch":
		return StrategyPWMSwitch, nil
	case "climate_switch":
		return StrategyClimateSwitch, nil
	case "climate_pid":
		return StrategyClimatePID, nil
	case "number_switch":
		return StrategyNumberSwitch, nil
	default:
		return StrategyUnknown, fmt.Errorf("invalid strategy: %q", s)
	}
}
