package thermostat

import (
	"fmt"
	"log/slog"
	"time"
)

// Actuator is the boundary to the host platform's devices. Calls are
// fire-and-forget from the core's perspective: the core only issues the
// latest intended state and never assumes delivery.
type Actuator interface {
	TurnOn(entity string) error
	TurnOff(entity string) error
	SetSetpoint(entity string, value float64) error
}

// SwitchState is the persisted per-controller blob: the last commanded state
// and when it was commanded. Restoring it lets a restart resume mid-cycle
// instead of assuming the actuator is off.
type SwitchState struct {
	On         bool      `yaml:"on" json:"on"`
	LastChange time.Time `yaml:"last_change" json:"last_change"`
}

// StateStore persists SwitchState blobs. Load reports whether a blob existed.
type StateStore interface {
	Load(name string) (SwitchState, bool)
	Save(name string, state SwitchState) error
}

const (
	DefaultColdTolerance = 0.3
	DefaultHotTolerance  = 0.3
)

// ControllerConfig is the immutable per-controller configuration. Numeric
// parameters may be template-valued on the host side; the core only ever
// sees the latest resolved scalar via the Set* methods.
type ControllerConfig struct {
	Name     string
	Role     Role
	Strategy Strategy
	Entity   string
	Inverted bool

	ColdTolerance    float64
	HotTolerance     float64
	MinCycleDuration time.Duration
	KeepAlive        time.Duration

	Kp              float64
	Ki              float64
	Kd              float64
	PIDSamplePeriod time.Duration
	PWMPeriod       time.Duration
	OutMin          float64
	OutMax          float64

	TargetTempDelta float64 // climate_switch: pushed setpoint offset

	SwitchEntity   string // number_switch companion switch
	SwitchInverted bool
}

func (c *ControllerConfig) Validate() error {
	if !c.Role.Valid() {
		return ErrInvalidRole
	}
	if !c.Strategy.Valid() {
		return ErrInvalidStrategy
	}
	if c.Entity == "" {
		return ErrMissingEntity
	}
	if c.ColdTolerance < 0 || c.HotTolerance < 0 {
		return ErrInvalidTolerance
	}
	if c.Kp < 0 || c.Ki < 0 || c.Kd < 0 {
		return ErrInvalidGains
	}
	switch c.Strategy {
	case StrategyPWMSwitch:
		if c.PWMPeriod <= 0 {
			return ErrInvalidPWMPeriod
		}
	case StrategyClimatePID, StrategyNumberSwitch:
		if c.OutMin >= c.OutMax {
			return ErrInvalidOutputLimits
		}
	}
	if c.Strategy == StrategyNumberSwitch && c.SwitchEntity == "" {
		return ErrMissingSwitchEntity
	}
	return nil
}

func (c ControllerConfig) withDefaults() ControllerConfig {
	if c.ColdTolerance == 0 {
		c.ColdTolerance = DefaultColdTolerance
	}
	if c.HotTolerance == 0 {
		c.HotTolerance = DefaultHotTolerance
	}
	return c
}

// Controller drives one actuator with one regulation strategy. It owns its
// regulator/modulator state exclusively; the orchestrator owns the effective
// target passed in through Activate.
type Controller struct {
	cfg   ControllerConfig
	act   Actuator
	store StateStore
	log   *slog.Logger

	running bool
	target  float64

	currentTemp    float64
	hasCurrentTemp bool

	pid *PID // climate_pid, number_switch
	pwm *PWM // pwm_switch

	// last hysteresis flip, guards min_cycle_duration
	lastSwitch time.Time

	// last intended actuator switch state
	lastCommandOn bool
	hasCommand    bool

	// last pushed continuous output
	lastApplied float64
	hasApplied  bool

	lastPWMCheck  time.Time
	lastKeepAlive time.Time

	restoredPhase bool
	stale         bool
}

func NewController(cfg ControllerConfig, act Actuator, store StateStore, log *slog.Logger) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("controller %q: %w", cfg.Name, err)
	}
	cfg = cfg.withDefaults()
	if log == nil {
		log = slog.Default()
	}

	c := &Controller{
		cfg:   cfg,
		act:   act,
		store: store,
		log:   log.With("controller", cfg.Name),
	}

	switch cfg.Strategy {
	case StrategyPWMSwitch:
		c.pwm = NewPWM(cfg.Kp, cfg.Ki, cfg.Kd, cfg.PIDSamplePeriod, cfg.PWMPeriod)
	case StrategyClimatePID, StrategyNumberSwitch:
		c.pid = NewPID(PIDParams{
			Kp:           cfg.Kp,
			Ki:           cfg.Ki,
			Kd:           cfg.Kd,
			SamplePeriod: cfg.PIDSamplePeriod,
			OutMin:       cfg.OutMin,
			OutMax:       cfg.OutMax,
		})
	}

	c.restore()
	return c, nil
}

// restore resumes the persisted switch phase, if any.
func (c *Controller) restore() {
	if c.store == nil {
		return
	}
	switch c.cfg.Strategy {
	case StrategySwitch, StrategyPWMSwitch:
	default:
		return
	}
	st, ok := c.store.Load(c.cfg.Name)
	if !ok {
		return
	}
	c.lastCommandOn = st.On
	c.hasCommand = true
	c.lastSwitch = st.LastChange
	if c.pwm != nil {
		c.pwm.Restore(st.On, st.LastChange)
		c.restoredPhase = true
	}
	c.log.Info("restored switch state", "on", st.On, "last_change", st.LastChange)
}

func (c *Controller) Name() string   { return c.cfg.Name }
func (c *Controller) Role() Role     { return c.cfg.Role }
func (c *Controller) Running() bool  { return c.running }
func (c *Controller) Target() float64 { return c.target }
func (c *Controller) Stale() bool    { return c.stale }

// Activate turns the controller on with a fresh effective target. Calling it
// on an already-running controller updates the target.
func (c *Controller) Activate(target float64, now time.Time) {
	targetChanged := c.target != target
	c.target = target

	if !c.running {
		c.running = true
		c.lastKeepAlive = now
		switch c.cfg.Strategy {
		case StrategyPWMSwitch:
			// Realign the cycle unless a persisted phase is being resumed.
			if c.restoredPhase {
				c.restoredPhase = false
			} else {
				c.pwm.ResetCycle()
			}
		case StrategyClimateSwitch:
			c.turnOnTarget()
			c.pushClimateSetpoint()
		case StrategyClimatePID:
			c.turnOnTarget()
		case StrategyNumberSwitch:
			c.commandCompanionSwitch(true)
		}
		return
	}

	if targetChanged && c.cfg.Strategy == StrategyClimateSwitch {
		c.pushClimateSetpoint()
	}
}

// Deactivate stops regulation and leaves the actuator in a deterministic off
// state. Accumulated PID/PWM state stays dormant so a later reactivation
// resumes smoothly instead of cold-starting.
func (c *Controller) Deactivate(now time.Time) {
	if !c.running {
		return
	}
	c.running = false

	switch c.cfg.Strategy {
	case StrategySwitch, StrategyPWMSwitch:
		c.commandSwitch(false, now)
	case StrategyClimateSwitch, StrategyClimatePID:
		if err := c.act.TurnOff(c.cfg.Entity); err != nil {
			c.log.Warn("turn off failed", "entity", c.cfg.Entity, "error", err)
		}
	case StrategyNumberSwitch:
		c.commandCompanionSwitch(false)
	}
}

// OnTemperature feeds a current-temperature sample into the strategy.
func (c *Controller) OnTemperature(currentTemp float64, now time.Time) {
	c.currentTemp = currentTemp
	c.hasCurrentTemp = true
	if !c.running {
		return
	}

	switch c.cfg.Strategy {
	case StrategySwitch:
		c.runHysteresis(now)
	case StrategyPWMSwitch:
		// Only when no fixed sample period: then every update is a sample.
		if c.cfg.PIDSamplePeriod == 0 {
			c.tickPWM(now)
		}
	case StrategyClimatePID, StrategyNumberSwitch:
		c.pushPIDOutput(now)
	}
}

// OnTick drives the controller's logical clocks: the PWM check interval and
// the keep-alive re-assertion. Fed through the orchestrator's single event
// queue, so it never runs concurrently with other entry points.
func (c *Controller) OnTick(now time.Time) {
	if !c.running {
		return
	}

	if c.cfg.Strategy == StrategyPWMSwitch && c.hasCurrentTemp {
		if c.lastPWMCheck.IsZero() || now.Sub(c.lastPWMCheck) >= c.pwm.CheckInterval() {
			c.lastPWMCheck = now
			c.tickPWM(now)
		}
	}

	if c.cfg.KeepAlive > 0 && now.Sub(c.lastKeepAlive) >= c.cfg.KeepAlive {
		c.lastKeepAlive = now
		c.keepAlive()
	}
}

// signedError is the regulation error, negated for cooling so gains stay
// non-negative in both directions.
func (c *Controller) signedError() float64 {
	if c.cfg.Role == RoleCooler {
		return c.currentTemp - c.target
	}
	return c.target - c.currentTemp
}

func (c *Controller) runHysteresis(now time.Time) {
	desired, decided := DecideSwitch(c.currentTemp, c.target, c.cfg.Role,
		c.cfg.ColdTolerance, c.cfg.HotTolerance, c.lastSwitch, c.cfg.MinCycleDuration, now)
	if !decided {
		return
	}
	if c.hasCommand && c.lastCommandOn == desired {
		return
	}
	c.commandSwitch(desired, now)
}

func (c *Controller) tickPWM(now time.Time) {
	prevOn, prevChange := c.pwm.State()
	desired := c.pwm.Tick(c.signedError(), now)
	if c.hasCommand && desired == c.lastCommandOn {
		return
	}
	if err := c.applySwitch(desired); err != nil {
		// Keep the regulation state intact and retry next cycle.
		c.pwm.Restore(prevOn, prevChange)
		c.log.Warn("pwm switch command failed", "entity", c.cfg.Entity, "desired_on", desired, "error", err)
		return
	}
	c.lastCommandOn = desired
	c.hasCommand = true
	on, lastChange := c.pwm.State()
	c.persist(SwitchState{On: on, LastChange: lastChange})
	c.log.Debug("pwm switch", "on", desired, "duty", c.pwm.Duty())
}

func (c *Controller) pushPIDOutput(now time.Time) {
	if !c.hasCurrentTemp {
		return
	}
	output := c.pid.Sample(c.signedError(), now)
	if c.hasApplied && output == c.lastApplied {
		return
	}
	entity := c.cfg.Entity
	if err := c.act.SetSetpoint(entity, output); err != nil {
		c.log.Warn("setpoint write failed", "entity", entity, "value", output, "error", err)
		return
	}
	c.lastApplied = output
	c.hasApplied = true
}

// pushClimateSetpoint sends effective_target +/- target_temp_delta to the
// climate device. Heaters add the delta, coolers subtract it.
func (c *Controller) pushClimateSetpoint() {
	value := c.target
	if c.cfg.Role == RoleCooler {
		value -= c.cfg.TargetTempDelta
	} else {
		value += c.cfg.TargetTempDelta
	}
	if c.cfg.OutMin < c.cfg.OutMax {
		value = clamp(value, c.cfg.OutMin, c.cfg.OutMax)
	}
	if err := c.act.SetSetpoint(c.cfg.Entity, value); err != nil {
		c.log.Warn("setpoint write failed", "entity", c.cfg.Entity, "value", value, "error", err)
		return
	}
	c.lastApplied = value
	c.hasApplied = true
}

// commandSwitch issues on/off and records the flip only when the write
// succeeded, so a transient failure is retried by the next cycle with state
// unchanged.
func (c *Controller) commandSwitch(desired bool, now time.Time) {
	if err := c.applySwitch(desired); err != nil {
		c.log.Warn("switch command failed", "entity", c.cfg.Entity, "desired_on", desired, "error", err)
		return
	}
	c.lastCommandOn = desired
	c.hasCommand = true
	c.lastSwitch = now
	c.persist(SwitchState{On: desired, LastChange: now})
	c.log.Debug("switch", "on", desired, "target", c.target)
}

// applySwitch XORs the desired state with the inverted flag before touching
// the actuator.
func (c *Controller) applySwitch(desired bool) error {
	if desired != c.cfg.Inverted {
		return c.act.TurnOn(c.cfg.Entity)
	}
	return c.act.TurnOff(c.cfg.Entity)
}

func (c *Controller) commandCompanionSwitch(on bool) {
	entity := c.cfg.SwitchEntity
	physical := on != c.cfg.SwitchInverted
	var err error
	if physical {
		err = c.act.TurnOn(entity)
	} else {
		err = c.act.TurnOff(entity)
	}
	if err != nil {
		c.log.Warn("companion switch command failed", "entity", entity, "on", on, "error", err)
	}
}

// keepAlive re-issues the last intended state so devices that reset
// themselves (or missed a command) converge again.
func (c *Controller) keepAlive() {
	switch c.cfg.Strategy {
	case StrategySwitch, StrategyPWMSwitch:
		if !c.hasCommand {
			return
		}
		if err := c.applySwitch(c.lastCommandOn); err != nil {
			c.log.Warn("keep-alive switch command failed", "entity", c.cfg.Entity, "error", err)
		}
	case StrategyClimateSwitch, StrategyClimatePID, StrategyNumberSwitch:
		if !c.hasApplied {
			return
		}
		if err := c.act.SetSetpoint(c.cfg.Entity, c.lastApplied); err != nil {
			c.log.Warn("keep-alive setpoint write failed", "entity", c.cfg.Entity, "error", err)
		}
	}
}

func (c *Controller) turnOnTarget() {
	if err := c.act.TurnOn(c.cfg.Entity); err != nil {
		c.log.Warn("turn on failed", "entity", c.cfg.Entity, "error", err)
	}
}

func (c *Controller) persist(state SwitchState) {
	if c.store == nil {
		return
	}
	if err := c.store.Save(c.cfg.Name, state); err != nil {
		c.log.Warn("state save failed", "error", err)
	}
}

// SetGains applies re-resolved gains. They take effect on the next sample
// without resetting integral state. Negative values keep the last known-good
// gains and flag the controller stale.
func (c *Controller) SetGains(kp, ki, kd float64) error {
	if kp < 0 || ki < 0 || kd < 0 {
		c.stale = true
		return ErrInvalidGains
	}
	c.stale = false
	switch {
	case c.pwm != nil:
		c.pwm.SetGains(kp, ki, kd)
	case c.pid != nil:
		c.pid.SetGains(kp, ki, kd)
	}
	return nil
}

// SetTolerances applies re-resolved hysteresis tolerances.
func (c *Controller) SetTolerances(cold, hot float64) error {
	if cold < 0 || hot < 0 {
		c.stale = true
		return ErrInvalidTolerance
	}
	c.stale = false
	c.cfg.ColdTolerance = cold
	c.cfg.HotTolerance = hot
	return nil
}

// SetOutputLimits applies re-resolved output bounds for PID strategies.
func (c *Controller) SetOutputLimits(outMin, outMax float64) error {
	if outMin >= outMax {
		c.stale = true
		return ErrInvalidOutputLimits
	}
	c.stale = false
	c.cfg.OutMin = outMin
	c.cfg.OutMax = outMax
	if c.pid != nil {
		c.pid.SetLimits(outMin, outMax)
	}
	return nil
}

// SetTargetTempDelta applies a re-resolved climate setpoint offset.
func (c *Controller) SetTargetTempDelta(delta float64) {
	c.stale = false
	c.cfg.TargetTempDelta = delta
	if c.running && c.cfg.Strategy == StrategyClimateSwitch {
		c.pushClimateSetpoint()
	}
}

// MarkStale flags that a template-valued parameter failed to resolve; the
// last known-good value stays in effect and regulation continues.
func (c *Controller) MarkStale() {
	c.stale = true
}
