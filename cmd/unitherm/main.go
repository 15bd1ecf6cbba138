package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/unitherm/unitherm/cmd/app"
	httpctrl "github.com/unitherm/unitherm/internal/controllers/http"
	modbusctrl "github.com/unitherm/unitherm/internal/controllers/modbus"
	mqttctrl "github.com/unitherm/unitherm/internal/controllers/mqtt"
	"github.com/unitherm/unitherm/internal/store"
	"github.com/unitherm/unitherm/internal/thermostat"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "path to config file (.yaml/.yml/.json)")
	flag.Parse()

	cfg, err := app.LoadConfig(configPath)
	if err != nil {
		log.Fatal(err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil)).With("device", cfg.DeviceID)

	thermoCfg, err := cfg.ThermostatConfig()
	if err != nil {
		log.Fatal(err)
	}
	loopCfgs, err := cfg.ControllerConfigs()
	if err != nil {
		log.Fatal(err)
	}

	st, err := store.Open(cfg.StatePath)
	if err != nil {
		log.Fatal(err)
	}

	var act thermostat.Actuator
	if cfg.Actuator.CommandTopic != "" {
		mact, err := mqttctrl.NewActuator(mqttctrl.ActuatorConfig{
			BrokerURL:      cfg.Actuator.BrokerURL,
			ClientID:       cfg.Actuator.ClientID,
			CommandTopic:   cfg.Actuator.CommandTopic,
			QoS:            cfg.Actuator.QoS,
			Username:       cfg.Actuator.Username,
			Password:       cfg.Actuator.Password,
			CommandTimeout: cfg.Actuator.CommandTimeout,
		})
		if err != nil {
			log.Fatal(err)
		}
		if err := mact.Connect(); err != nil {
			log.Fatal(err)
		}
		defer mact.Close()
		act = mact
	} else {
		act = logActuator{log: logger}
	}

	controllers := make([]*thermostat.Controller, 0, len(loopCfgs))
	for _, lc := range loopCfgs {
		c, err := thermostat.NewController(lc, act, st, logger)
		if err != nil {
			log.Fatal(err)
		}
		controllers = append(controllers, c)
	}

	th, err := thermostat.New(thermoCfg, controllers, logger)
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return th.Run(ctx, time.Second)
	})

	if cfg.Controllers.HTTP.Enabled {
		srv := httpctrl.New(th, cfg.Controllers.HTTP.Addr, cfg.DeviceID)
		logger.Info("http controller listening", "addr", cfg.Controllers.HTTP.Addr)
		g.Go(func() error { return srv.Run(ctx) })
	}

	if cfg.Controllers.MQTT.Enabled {
		mc, err := mqttctrl.New(th, mqttctrl.Config{
			DeviceID:        cfg.DeviceID,
			BrokerURL:       cfg.Controllers.MQTT.BrokerURL,
			ClientID:        cfg.Controllers.MQTT.ClientID,
			BaseTopic:       cfg.Controllers.MQTT.BaseTopic,
			SensorTopic:     cfg.Controllers.MQTT.SensorTopic,
			QoS:             cfg.Controllers.MQTT.QoS,
			RetainSnapshot:  cfg.Controllers.MQTT.RetainSnapshot,
			PublishInterval: cfg.Controllers.MQTT.PublishInterval,
			Username:        cfg.Controllers.MQTT.Username,
			Password:        cfg.Controllers.MQTT.Password,
		})
		if err != nil {
			log.Fatal(err)
		}
		logger.Info("mqtt controller starting", "broker", cfg.Controllers.MQTT.BrokerURL)
		g.Go(func() error { return mc.Run(ctx) })
	}

	if cfg.Controllers.MODBUS.Enabled {
		mb, err := modbusctrl.New(th, modbusctrl.Config{
			DeviceID:     cfg.DeviceID,
			Addr:         cfg.Controllers.MODBUS.Addr,
			UnitID:       cfg.Controllers.MODBUS.UnitID,
			SyncInterval: cfg.Controllers.MODBUS.SyncInterval,
		})
		if err != nil {
			log.Fatal(err)
		}
		logger.Info("modbus controller listening", "addr", cfg.Controllers.MODBUS.Addr)
		g.Go(func() error { return mb.Run(ctx) })
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("exited", "error", err)
	}
}

// logActuator stands in when no actuator bridge is configured. Commands are
// logged and reported as delivered so regulation state advances.
type logActuator struct {
	log *slog.Logger
}

func (a logActuator) TurnOn(entity string) error {
	a.log.Info("actuator turn on", "entity", entity)
	return nil
}

func (a logActuator) TurnOff(entity string) error {
	a.log.Info("actuator turn off", "entity", entity)
	return nil
}

func (a logActuator) SetSetpoint(entity string, value float64) error {
	a.log.Info("actuator setpoint", "entity", entity, "value", value)
	return nil
}
