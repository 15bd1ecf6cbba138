package thermostat

// BaseState is the snapshot of the thermostat's setpoints with no preset
// applied. Preset deltas are always computed against these values, never
// against an already-adjusted one, so re-resolving can never compound.
type BaseState struct {
	TargetTemp     float64
	TargetTempLow  float64
	TargetTempHigh float64
}

// Resolution is the per-role outcome of setpoint resolution.
type Resolution struct {
	Active bool
	Target float64
}

// Resolve maps the global thermostat state onto one controller role's
// effective setpoint and on/off intent. It is a pure function: identical
// inputs always produce identical output.
func Resolve(mode HVACMode, base BaseState, autoHeatDelta, autoCoolDelta float64,
	preset *PresetConfig, role Role) Resolution {

	if mode == ModeOff {
		return Resolution{}
	}
	switch role {
	case RoleHeater:
		if mode == ModeCool {
			return Resolution{}
		}
	case RoleCooler:
		if mode == ModeHeat {
			return Resolution{}
		}
	default:
		return Resolution{}
	}

	if preset == nil {
		return Resolution{Active: true, Target: baseTarget(mode, base, autoHeatDelta, autoCoolDelta, role)}
	}

	switch preset.schema() {
	case presetSchemaSingleDelta:
		shifted := base
		shifted.TargetTemp += *preset.TempDelta
		shifted.TargetTempLow += *preset.TempDelta
		shifted.TargetTempHigh += *preset.TempDelta
		return Resolution{Active: true, Target: baseTarget(mode, shifted, autoHeatDelta, autoCoolDelta, role)}

	case presetSchemaRoleDeltas:
		target := baseTarget(mode, base, autoHeatDelta, autoCoolDelta, role)
		if role == RoleHeater {
			target += preset.heatDelta()
		} else {
			target += preset.coolDelta()
		}
		return Resolution{Active: true, Target: target}

	case presetSchemaAbsolute:
		if role == RoleHeater && preset.HeatTargetTemp != nil {
			return Resolution{Active: true, Target: *preset.HeatTargetTemp}
		}
		if role == RoleCooler && preset.CoolTargetTemp != nil {
			return Resolution{Active: true, Target: *preset.CoolTargetTemp}
		}
		if preset.TargetTemp != nil {
			return Resolution{Active: true, Target: *preset.TargetTemp}
		}
		return Resolution{Active: true, Target: baseTarget(mode, base, autoHeatDelta, autoCoolDelta, role)}
	}

	return Resolution{Active: true, Target: baseTarget(mode, base, autoHeatDelta, autoCoolDelta, role)}
}

// baseTarget is the mode-to-setpoint mapping before any preset is applied.
func baseTarget(mode HVACMode, base BaseState, autoHeatDelta, autoCoolDelta float64, role Role) float64 {
	switch mode {
	case ModeHeatCool:
		if role == RoleHeater {
			return base.TargetTempLow
		}
		return base.TargetTempHigh
	case ModeAuto:
		if role == RoleHeater {
			return base.TargetTemp - autoHeatDelta
		}
		return base.TargetTemp + autoCoolDelta
	default:
		return base.TargetTemp
	}
}
