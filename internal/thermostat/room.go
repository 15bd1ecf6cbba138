package thermostat

import "time"

// RoomParams is a first-order thermal model of a heated/cooled space, used
// by closed-loop tests and the simulation script.
type RoomParams struct {
	OutdoorTemperature float64
	LossCoefficient    float64 // >= 0, conductivity toward outdoors. 0 for no loss.
	ActuatorRate       float64 // degrees per second contributed at full power
}

func (p *RoomParams) Validate() error {
	if p.LossCoefficient < 0 {
		return ErrNegativeLossCoefficent
	}
	return nil
}

// Room integrates indoor temperature over time given actuator power.
type Room struct {
	params RoomParams
	indoor float64
}

func NewRoom(params RoomParams, initialIndoor float64) (*Room, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Room{params: params, indoor: initialIndoor}, nil
}

func (r *Room) Indoor() float64 {
	return r.indoor
}

// Step advances the model by dt with the actuator at the given power
// fraction (0..1 for heating, negative for cooling).
func (r *Room) Step(power float64, dt time.Duration) float64 {
	loss := r.params.LossCoefficient * (r.params.OutdoorTemperature - r.indoor) * dt.Seconds()
	r.indoor += loss + r.params.ActuatorRate*power*dt.Seconds()
	return r.indoor
}
