package thermostat

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"
)

// Config is the orchestrator-level configuration.
type Config struct {
	MinTemp        float64
	MaxTemp        float64
	AutoHeatDelta  float64
	AutoCoolDelta  float64
	InitialMode    HVACMode
	TargetTemp     float64
	TargetTempLow  float64
	TargetTempHigh float64
	Presets        map[string]PresetConfig
}

// ControllerStatus is the per-controller view exposed in snapshots.
type ControllerStatus struct {
	Name    string
	Role    Role
	Running bool
	Target  float64
	Stale   bool
}

// Snapshot is the externally visible thermostat state.
type Snapshot struct {
	HVACMode       HVACMode
	TargetTemp     float64
	TargetTempLow  float64
	TargetTempHigh float64
	MinTemp        float64
	MaxTemp        float64
	AutoHeatDelta  float64
	AutoCoolDelta  float64
	Preset         string // empty means no preset
	CurrentTemp    float64
	HasCurrentTemp bool
	Controllers    []ControllerStatus
}

// Thermostat owns the thermostat state and the controller list and pushes
// activate/deactivate/tick calls down on every relevant event. All entry
// points run to completion under one lock: one event is processed fully
// before the next.
type Thermostat struct {
	mu  sync.Mutex
	log *slog.Logger

	minTemp, maxTemp             float64
	autoHeatDelta, autoCoolDelta float64

	mode           HVACMode
	lastActiveMode HVACMode
	base           BaseState
	preset         string
	presets        map[string]PresetConfig

	// fixed order: heaters first, then coolers, each in configuration order
	controllers []*Controller

	currentTemp    float64
	hasCurrentTemp bool

	now func() time.Time
}

func New(cfg Config, controllers []*Controller, log *slog.Logger) (*Thermostat, error) {
	if !cfg.InitialMode.Valid() {
		return nil, ErrInvalidMode
	}
	if cfg.MinTemp >= cfg.MaxTemp {
		return nil, ErrInvalidMinMax
	}
	for _, v := range []float64{cfg.TargetTemp, cfg.TargetTempLow, cfg.TargetTempHigh} {
		if v < cfg.MinTemp || v > cfg.MaxTemp {
			return nil, ErrSetpointOutOfRange
		}
	}
	for name, p := range cfg.Presets {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("preset %q: %w", name, err)
		}
	}
	if log == nil {
		log = slog.Default()
	}

	ordered := make([]*Controller, 0, len(controllers))
	for _, c := range controllers {
		if c.Role() == RoleHeater {
			ordered = append(ordered, c)
		}
	}
	for _, c := range controllers {
		if c.Role() == RoleCooler {
			ordered = append(ordered, c)
		}
	}

	t := &Thermostat{
		log:           log,
		minTemp:       cfg.MinTemp,
		maxTemp:       cfg.MaxTemp,
		autoHeatDelta: cfg.AutoHeatDelta,
		autoCoolDelta: cfg.AutoCoolDelta,
		mode:          cfg.InitialMode,
		presets:       cfg.Presets,
		controllers:   ordered,
		base: BaseState{
			TargetTemp:     cfg.TargetTemp,
			TargetTempLow:  cfg.TargetTempLow,
			TargetTempHigh: cfg.TargetTempHigh,
		},
		now: time.Now,
	}
	if t.mode != ModeOff {
		t.lastActiveMode = t.mode
	}
	return t, nil
}

func (t *Thermostat) Get() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Thermostat) snapshotLocked() Snapshot {
	s := Snapshot{
		HVACMode:       t.mode,
		TargetTemp:     t.base.TargetTemp,
		TargetTempLow:  t.base.TargetTempLow,
		TargetTempHigh: t.base.TargetTempHigh,
		MinTemp:        t.minTemp,
		MaxTemp:        t.maxTemp,
		AutoHeatDelta:  t.autoHeatDelta,
		AutoCoolDelta:  t.autoCoolDelta,
		Preset:         t.preset,
		CurrentTemp:    t.currentTemp,
		HasCurrentTemp: t.hasCurrentTemp,
	}
	for _, c := range t.controllers {
		s.Controllers = append(s.Controllers, ControllerStatus{
			Name:    c.Name(),
			Role:    c.Role(),
			Running: c.Running(),
			Target:  c.Target(),
			Stale:   c.Stale(),
		})
	}
	return s
}

// SetHVACMode changes the global mode. A manual mode change always clears
// the active preset.
func (t *Thermostat) SetHVACMode(mode HVACMode) error {
	if !mode.Valid() {
		return ErrInvalidMode
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if mode == t.mode {
		return nil
	}
	if t.preset != "" {
		t.log.Info("hvac mode changed, clearing preset", "preset", t.preset)
		t.preset = ""
	}
	t.translateTargets(mode)
	t.mode = mode
	if mode != ModeOff {
		t.lastActiveMode = mode
	}
	t.log.Info("hvac mode set", "mode", mode.String())
	t.applyLocked(t.now())
	return nil
}

// translateTargets syncs the single target with the low/high pair when the
// mode moves in or out of heat_cool, mirroring how a user expects setpoints
// to carry over.
func (t *Thermostat) translateTargets(newMode HVACMode) {
	from := t.lastActiveMode
	if newMode == ModeHeatCool && from != ModeHeatCool {
		switch from {
		case ModeCool:
			t.base.TargetTempHigh = t.clampTemp(t.base.TargetTemp)
			t.base.TargetTempLow = t.clampTemp(t.base.TargetTemp - t.autoHeatDelta)
		case ModeHeat:
			t.base.TargetTempLow = t.clampTemp(t.base.TargetTemp)
			t.base.TargetTempHigh = t.clampTemp(t.base.TargetTemp + t.autoCoolDelta)
		case ModeAuto:
			t.base.TargetTempLow = t.clampTemp(t.base.TargetTemp - t.autoHeatDelta)
			t.base.TargetTempHigh = t.clampTemp(t.base.TargetTemp + t.autoCoolDelta)
		}
		return
	}
	if from == ModeHeatCool && (newMode == ModeHeat || newMode == ModeCool || newMode == ModeAuto) {
		switch newMode {
		case ModeHeat:
			t.base.TargetTemp = t.base.TargetTempLow
		case ModeCool:
			t.base.TargetTemp = t.base.TargetTempHigh
		case ModeAuto:
			t.base.TargetTemp = t.clampTemp((t.base.TargetTempLow + t.base.TargetTempHigh) / 2)
		}
	}
}

func (t *Thermostat) clampTemp(v float64) float64 {
	return clamp(v, t.minTemp, t.maxTemp)
}

// SetPreset activates a named preset, or clears it when name is empty.
// The base setpoints are never touched: the preset view is always derived
// from them by the resolver.
func (t *Thermostat) SetPreset(name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if name != "" {
		if _, ok := t.presets[name]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownPreset, name)
		}
	}
	if name == t.preset {
		return nil
	}
	t.preset = name
	t.log.Info("preset set", "preset", name)
	t.applyLocked(t.now())
	return nil
}

// SetTargetTemp sets the single target setpoint. While a preset is active
// this mutates the base state the preset deltas are applied against; the
// live view stays preset-adjusted.
func (t *Thermostat) SetTargetTemp(value float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if value < t.minTemp || value > t.maxTemp {
		return ErrSetpointOutOfRange
	}
	t.base.TargetTemp = value
	t.applyLocked(t.now())
	return nil
}

// SetTargetTempRange sets the heat_cool low/high setpoints.
func (t *Thermostat) SetTargetTempRange(low, high float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if low > high {
		return ErrInvalidMinMax
	}
	if low < t.minTemp || high > t.maxTemp {
		return ErrSetpointOutOfRange
	}
	t.base.TargetTempLow = low
	t.base.TargetTempHigh = high
	t.applyLocked(t.now())
	return nil
}

func (t *Thermostat) SetMinMax(min, max float64) error {
	if min > max {
		return ErrInvalidMinMax
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	// Enforce current setpoints remain valid
	for _, v := range []float64{t.base.TargetTemp, t.base.TargetTempLow, t.base.TargetTempHigh} {
		if v < min || v > max {
			return ErrSetpointOutOfRange
		}
	}
	t.minTemp = min
	t.maxTemp = max
	return nil
}

// UpdateCurrentTemp feeds a sensor sample with its timestamp. NaN and Inf
// are rejected; regulation keeps running on the previous value.
func (t *Thermostat) UpdateCurrentTemp(value float64, ts time.Time) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("illegal sensor value: %v", value)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.currentTemp = value
	t.hasCurrentTemp = true
	t.applyLocked(ts)
	return nil
}

// SetControllerGains routes a re-resolved gain set to one controller.
// Failures keep the last known-good gains in effect.
func (t *Thermostat) SetControllerGains(name string, kp, ki, kd float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	c := t.findLocked(name)
	if c == nil {
		return fmt.Errorf("%w: %q", ErrUnknownController, name)
	}
	if err := c.SetGains(kp, ki, kd); err != nil {
		return err
	}
	t.applyLocked(t.now())
	return nil
}

// SetControllerTolerances routes re-resolved hysteresis tolerances.
func (t *Thermostat) SetControllerTolerances(name string, cold, hot float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	c := t.findLocked(name)
	if c == nil {
		return fmt.Errorf("%w: %q", ErrUnknownController, name)
	}
	if err := c.SetTolerances(cold, hot); err != nil {
		return err
	}
	t.applyLocked(t.now())
	return nil
}

// SetControllerOutputLimits routes re-resolved PID output bounds.
func (t *Thermostat) SetControllerOutputLimits(name string, outMin, outMax float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	c := t.findLocked(name)
	if c == nil {
		return fmt.Errorf("%w: %q", ErrUnknownController, name)
	}
	if err := c.SetOutputLimits(outMin, outMax); err != nil {
		return err
	}
	t.applyLocked(t.now())
	return nil
}

// SetControllerTargetTempDelta routes a re-resolved climate setpoint offset.
func (t *Thermostat) SetControllerTargetTempDelta(name string, delta float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	c := t.findLocked(name)
	if c == nil {
		return fmt.Errorf("%w: %q", ErrUnknownController, name)
	}
	c.SetTargetTempDelta(delta)
	t.applyLocked(t.now())
	return nil
}

// MarkControllerStale flags a controller whose templated parameter failed to
// resolve. Regulation continues on the last known-good value.
func (t *Thermostat) MarkControllerStale(name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	c := t.findLocked(name)
	if c == nil {
		return fmt.Errorf("%w: %q", ErrUnknownController, name)
	}
	c.MarkStale()
	return nil
}

func (t *Thermostat) findLocked(name string) *Controller {
	for _, c := range t.controllers {
		if c.Name() == name {
			return c
		}
	}
	return nil
}

// Tick drives the per-controller logical clocks (PWM check interval,
// keep-alive). It goes through the same lock as every other event.
func (t *Thermostat) Tick(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, c := range t.controllers {
		c.OnTick(now)
	}
}

// applyLocked recomputes every controller's resolution and pushes
// activation changes and the current temperature, heaters first.
func (t *Thermostat) applyLocked(now time.Time) {
	var preset *PresetConfig
	if t.preset != "" {
		if p, ok := t.presets[t.preset]; ok {
			preset = &p
		}
	}

	for _, c := range t.controllers {
		res := Resolve(t.mode, t.base, t.autoHeatDelta, t.autoCoolDelta, preset, c.Role())
		if !res.Active {
			c.Deactivate(now)
			continue
		}
		target := clamp(res.Target, t.minTemp, t.maxTemp)
		c.Activate(target, now)
		if t.hasCurrentTemp {
			c.OnTemperature(t.currentTemp, now)
		}
	}
}

// Run drives the 1-second tick until the context is done.
func (t *Thermostat) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			t.Tick(t.now())
		}
	}
}
