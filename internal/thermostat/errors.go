package thermostat

import "errors"

var (
	ErrInvalidMode            = errors.New("invalid hvac mode")
	ErrInvalidRole            = errors.New("invalid controller role")
	ErrInvalidStrategy        = errors.New("invalid controller strategy")
	ErrInvalidMinMax          = errors.New("invalid min/max temperatures")
	ErrSetpointOutOfRange     = errors.New("setpoint out of range")
	ErrUnknownPreset          = errors.New("unknown preset")
	ErrUnknownController      = errors.New("unknown controller")
	ErrMixedPresetSchema      = errors.New("preset mixes delta and absolute keys")
	ErrEmptyPreset            = errors.New("preset has no keys")
	ErrInvalidGains           = errors.New("pid gains must be greater or equal to zero")
	ErrInvalidPWMPeriod       = errors.New("pwm period must be positive")
	ErrMissingEntity          = errors.New("controller entity is required")
	ErrMissingSwitchEntity    = errors.New("number_switch requires a switch entity")
	ErrInvalidOutputLimits    = errors.New("output min must be below output max")
	ErrInvalidTolerance       = errors.New("tolerances must be greater or equal to zero")
	ErrNoCurrentTemperature   = errors.New("no current temperature yet")
	ErrNegativeLossCoefficent = errors.New("room loss coefficient must be greater or equal to zero")
)
