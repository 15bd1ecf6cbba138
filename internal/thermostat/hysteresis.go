package thermostat

import "time"

// DecideSwitch is the hysteresis on/off decision for a binary actuator.
// The returned bool is the desired state; decided reports whether a decision
// was made at all. No decision is returned inside the dead band, and the
// min-cycle cooldown is a hard override: within it no flip is emitted no
// matter how far the temperature has drifted.
func DecideSwitch(currentTemp, targetTemp float64, role Role, coldTolerance, hotTolerance float64,
	lastSwitch time.Time, minCycleDuration time.Duration, now time.Time) (state, decided bool) {

	if minCycleDuration > 0 && !lastSwitch.IsZero() && now.Sub(lastSwitch) < minCycleDuration {
		return false, false
	}

	tooCold := currentTemp <= targetTemp-coldTolerance
	tooHot := currentTemp >= targetTemp+hotTolerance

	switch role {
	case RoleHeater:
		if tooCold {
			return true, true
		}
		if tooHot {
			return false, true
		}
	case RoleCooler:
		if tooHot {
			return true, true
		}
		if tooCold {
			return false, true
		}
	}
	return false, false
}
