package thermostat

import "time"

const (
	pwmMinDuty = 0
	pwmMaxDuty = 100
)

// PWM converts the 0-100 output of a PID regulator into timed on/off phases
// for a binary actuator. Phase state is the pair (on, lastChange): the
// actuator stays in its current phase until the phase duration derived from
// the duty value has elapsed.
type PWM struct {
	pid    *PID
	period time.Duration

	duty       int
	on         bool
	lastChange time.Time
	started    bool
}

func NewPWM(kp, ki, kd float64, samplePeriod, pwmPeriod time.Duration) *PWM {
	return &PWM{
		pid: NewPID(PIDParams{
			Kp:           kp,
			Ki:           ki,
			Kd:           kd,
			SamplePeriod: samplePeriod,
			OutMin:       pwmMinDuty,
			OutMax:       pwmMaxDuty,
		}),
		period: pwmPeriod,
	}
}

// CheckInterval is how often Tick should be polled. Duty resolution is 1%,
// so polling finer than period/100 is wasted; 1 second is the floor.
func (m *PWM) CheckInterval() time.Duration {
	interval := m.period / pwmMaxDuty
	if interval < time.Second {
		interval = time.Second
	}
	return interval
}

// Tick feeds the error into the PID, refreshes the duty value and returns the
// desired actuator state at time now.
func (m *PWM) Tick(err float64, now time.Time) bool {
	m.duty = int(m.pid.Sample(err, now))

	onDuration := m.period * time.Duration(m.duty) / pwmMaxDuty
	offDuration := m.period - onDuration

	if !m.started {
		m.started = true
		m.lastChange = now
		m.on = m.duty > pwmMinDuty
		return m.on
	}

	switch {
	case m.on && offDuration > 0 && !now.Before(m.lastChange.Add(onDuration)):
		m.on = false
		m.lastChange = now
	case !m.on && onDuration > 0 && !now.Before(m.lastChange.Add(offDuration)):
		m.on = true
		m.lastChange = now
	}
	return m.on
}

// Duty returns the current duty percentage.
func (m *PWM) Duty() int {
	return m.duty
}

// State exposes the phase state for persistence.
func (m *PWM) State() (on bool, lastChange time.Time) {
	return m.on, m.lastChange
}

// Restore resumes a persisted phase so a restart does not truncate an
// in-progress on/off interval. The next Tick compares elapsed time since
// lastChange against the restored phase boundaries instead of starting a
// fresh cycle.
func (m *PWM) Restore(on bool, lastChange time.Time) {
	m.on = on
	m.lastChange = lastChange
	m.started = true
}

// SetGains forwards new gains to the wrapped PID.
func (m *PWM) SetGains(kp, ki, kd float64) {
	m.pid.SetGains(kp, ki, kd)
}

// ResetCycle drops the cycle alignment but keeps accumulated PID state, so a
// reactivated controller resumes regulation without cold-starting.
func (m *PWM) ResetCycle() {
	m.started = false
	m.on = false
	m.lastChange = time.Time{}
}

// Reset drops PID state and cycle alignment. The next Tick starts a fresh
// cycle.
func (m *PWM) Reset() {
	m.pid.Reset()
	m.duty = 0
	m.ResetCycle()
}
