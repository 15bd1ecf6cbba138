package thermostat

// PresetConfig is one of three mutually exclusive shapes: a single delta, two
// per-role deltas, or absolute targets. Mixing keys across shapes within one
// preset is a configuration error caught at setup, never resolved at runtime.
type PresetConfig struct {
	TempDelta *float64

	HeatDelta *float64
	CoolDelta *float64

	TargetTemp     *float64
	HeatTargetTemp *float64
	CoolTargetTemp *float64
}

type presetSchema int

const (
	presetSchemaInvalid presetSchema = iota
	presetSchemaSingleDelta
	presetSchemaRoleDeltas
	presetSchemaAbsolute
)

func (p *PresetConfig) schema() presetSchema {
	single := p.TempDelta != nil
	role := p.HeatDelta != nil || p.CoolDelta != nil
	abs := p.TargetTemp != nil || p.HeatTargetTemp != nil || p.CoolTargetTemp != nil

	switch {
	case single && !role && !abs:
		return presetSchemaSingleDelta
	case role && !single && !abs:
		return presetSchemaRoleDeltas
	case abs && !single && !role:
		return presetSchemaAbsolute
	default:
		return presetSchemaInvalid
	}
}

func (p *PresetConfig) Validate() error {
	if p.TempDelta == nil && p.HeatDelta == nil && p.CoolDelta == nil &&
		p.TargetTemp == nil && p.HeatTargetTemp == nil && p.CoolTargetTemp == nil {
		return ErrEmptyPreset
	}
	if p.schema() == presetSchemaInvalid {
		return ErrMixedPresetSchema
	}
	return nil
}

func (p *PresetConfig) heatDelta() float64 {
	if p.HeatDelta != nil {
		return *p.HeatDelta
	}
	return 0
}

func (p *PresetConfig) coolDelta() float64 {
	if p.CoolDelta != nil {
		return *p.CoolDelta
	}
	return 0
}
