package thermostat

import "time"

// PIDParams holds the regulator gains and output bounds. Gains are always
// configured non-negative; a cooling controller flips the sign of the error
// it feeds in, never the gains.
type PIDParams struct {
	Kp           float64
	Ki           float64
	Kd           float64
	SamplePeriod time.Duration // zero means recompute on every sample
	OutMin       float64
	OutMax       float64
}

func (p *PIDParams) Validate() error {
	if p.Kp < 0 || p.Ki < 0 || p.Kd < 0 {
		return ErrInvalidGains
	}
	if p.OutMin >= p.OutMax {
		return ErrInvalidOutputLimits
	}
	return nil
}

// PID is a stateful proportional-integral-derivative regulator producing a
// bounded output from an error signal.
type PID struct {
	kp, ki, kd   float64
	samplePeriod time.Duration
	outMin       float64
	outMax       float64

	integral   float64
	prevError  float64
	prevTime   time.Time
	lastOutput float64
	primed     bool
}

func NewPID(params PIDParams) *PID {
	return &PID{
		kp:           params.Kp,
		ki:           params.Ki,
		kd:           params.Kd,
		samplePeriod: params.SamplePeriod,
		outMin:       params.OutMin,
		outMax:       params.OutMax,
	}
}

// Sample advances the regulator with the given error at the given time and
// returns the bounded output. A non-positive dt (clock anomaly, duplicate
// event) returns the previous output without touching state. When a sample
// period is configured, calls arriving before the period has elapsed return
// the previous output unchanged.
func (p *PID) Sample(err float64, now time.Time) float64 {
	if !p.primed {
		p.prevError = err
		p.prevTime = now
		p.primed = true
		p.lastOutput = clamp(p.kp*err, p.outMin, p.outMax)
		return p.lastOutput
	}

	dt := now.Sub(p.prevTime)
	if dt <= 0 {
		return p.lastOutput
	}
	if p.samplePeriod > 0 && dt < p.samplePeriod {
		return p.lastOutput
	}

	p.integral += err * dt.Seconds()
	// Anti-windup: keep ki*integral within the output bounds.
	if p.ki > 0 {
		p.integral = clamp(p.integral, p.outMin/p.ki, p.outMax/p.ki)
	}

	derivative := (err - p.prevError) / dt.Seconds()

	p.prevError = err
	p.prevTime = now
	p.lastOutput = clamp(p.kp*err+p.ki*p.integral+p.kd*derivative, p.outMin, p.outMax)
	return p.lastOutput
}

// SetGains applies new gains. They take effect on the next Sample call;
// accumulated integral state is kept.
func (p *PID) SetGains(kp, ki, kd float64) {
	p.kp = kp
	p.ki = ki
	p.kd = kd
}

func (p *PID) Gains() (kp, ki, kd float64) {
	return p.kp, p.ki, p.kd
}

// SetLimits changes the output bounds. The integral is re-clamped so the
// next output respects the new bounds immediately.
func (p *PID) SetLimits(outMin, outMax float64) {
	p.outMin = outMin
	p.outMax = outMax
	if p.ki > 0 {
		p.integral = clamp(p.integral, outMin/p.ki, outMax/p.ki)
	}
}

// Output returns the last computed output.
func (p *PID) Output() float64 {
	return p.lastOutput
}

// Reset drops all accumulated state. Used when the regulation direction
// changes identity, never on ordinary setpoint changes.
func (p *PID) Reset() {
	p.integral = 0
	p.prevError = 0
	p.prevTime = time.Time{}
	p.lastOutput = 0
	p.primed = false
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
