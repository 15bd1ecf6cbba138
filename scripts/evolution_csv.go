package main

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/unitherm/unitherm/internal/thermostat"
)

type SetpointCommand struct {
	IterationNumber int
	Value           float64
}

// powerActuator maps switch commands onto heating power for the room model.
type powerActuator struct {
	on bool
}

func (a *powerActuator) TurnOn(string) error  { a.on = true; return nil }
func (a *powerActuator) TurnOff(string) error { a.on = false; return nil }
func (a *powerActuator) SetSetpoint(string, float64) error {
	return nil
}

func SimulateThermostat(iterations int, filename string, setpointCommands []SetpointCommand) error {
	room, err := thermostat.NewRoom(thermostat.RoomParams{
		OutdoorTemperature: 10,
		LossCoefficient:    1.e-4,
		ActuatorRate:       5.e-3,
	}, 20.0)
	if err != nil {
		return fmt.Errorf("failed to create room model: %v", err)
	}

	act := &powerActuator{}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	heater, err := thermostat.NewController(thermostat.ControllerConfig{
		Name:      "sim-heater",
		Role:      thermostat.RoleHeater,
		Strategy:  thermostat.StrategyPWMSwitch,
		Entity:    "switch.sim_heater",
		Kp:        20,
		Ki:        0.02,
		PWMPeriod: 5 * time.Minute,
	}, act, nil, logger)
	if err != nil {
		return fmt.Errorf("failed to create heater loop: %v", err)
	}

	th, err := thermostat.New(thermostat.Config{
		MinTemp:        15,
		MaxTemp:        30,
		AutoHeatDelta:  1,
		AutoCoolDelta:  1,
		InitialMode:    thermostat.ModeHeat,
		TargetTemp:     20,
		TargetTempLow:  19,
		TargetTempHigh: 23,
	}, []*thermostat.Controller{heater}, logger)
	if err != nil {
		return fmt.Errorf("failed to create thermostat: %v", err)
	}

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"Iteration", "Room", "Target", "HeaterOn"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	start := time.Now()
	step := time.Second

	for i := range iterations {
		now := start.Add(time.Duration(i) * step)

		for _, cmd := range setpointCommands {
			if cmd.IterationNumber == i+1 {
				if err := th.SetTargetTemp(cmd.Value); err != nil {
					return fmt.Errorf("failed to update target: %v", err)
				}
				break
			}
		}

		if err := th.UpdateCurrentTemp(room.Indoor(), now); err != nil {
			return fmt.Errorf("failed to feed temperature: %v", err)
		}
		th.Tick(now)

		snapshot := th.Get()
		heaterOn := "0"
		if act.on {
			heaterOn = "1"
		}
		if err := writer.Write([]string{
			fmt.Sprintf("%d", i+1),
			fmt.Sprintf("%.2f", room.Indoor()),
			fmt.Sprintf("%.2f", snapshot.TargetTemp),
			heaterOn,
		}); err != nil {
			return fmt.Errorf("failed to write CSV record: %v", err)
		}

		power := 0.0
		if act.on {
			power = 1.0
		}
		room.Step(power, step)
	}

	return nil
}

func main() {
	commands := []SetpointCommand{
		{
			IterationNumber: 200,
			Value:           22.0,
		},
	}
	if err := SimulateThermostat(3600, "unitherm.csv", commands); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
