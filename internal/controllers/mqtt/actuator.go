package mqttctrl

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type ActuatorConfig struct {
	BrokerURL string
	ClientID  string

	// CommandTopic is the prefix for actuator commands. Per-entity topics
	// are <CommandTopic>/<entity>/switch and <CommandTopic>/<entity>/setpoint.
	CommandTopic string

	QoS byte

	Username string
	Password string

	// CommandTimeout bounds the wait for the broker ack on every command.
	CommandTimeout time.Duration
}

// Actuator drives switches and climate setpoints over MQTT. Commands are
// published with the configured QoS; a command that cannot be acked within
// the timeout is reported as an error so the caller can retry.
type Actuator struct {
	cfg    ActuatorConfig
	client mqtt.Client
}

func NewActuator(cfg ActuatorConfig) (*Actuator, error) {
	if cfg.BrokerURL == "" {
		cfg.BrokerURL = "tcp://localhost:1883"
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "unitherm-actuator"
	}
	if cfg.CommandTopic == "" {
		return nil, errors.New("mqtt: CommandTopic is required")
	}
	if cfg.QoS > 1 {
		return nil, errors.New("mqtt: QoS must be 0 or 1")
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 5 * time.Second
	}
	return &Actuator{cfg: cfg}, nil
}

func (a *Actuator) Connect() error {
	opts := mqtt.NewClientOptions().
		AddBroker(a.cfg.BrokerURL).
		SetClientID(a.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(2 * time.Second)

	if a.cfg.Username != "" {
		opts.SetUsername(a.cfg.Username)
		opts.SetPassword(a.cfg.Password)
	}

	a.client = mqtt.NewClient(opts)
	tok := a.client.Connect()
	tok.Wait()
	if err := tok.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}

func (a *Actuator) Close() {
	if a.client != nil {
		a.client.Disconnect(250)
	}
}

func (a *Actuator) TurnOn(entity string) error {
	return a.publish(a.entityTopic(entity, "switch"), "ON")
}

func (a *Actuator) TurnOff(entity string) error {
	return a.publish(a.entityTopic(entity, "switch"), "OFF")
}

func (a *Actuator) SetSetpoint(entity string, value float64) error {
	return a.publish(a.entityTopic(entity, "setpoint"), strconv.FormatFloat(value, 'f', -1, 64))
}

func (a *Actuator) publish(topic, payload string) error {
	if a.client == nil {
		return errors.New("mqtt: actuator not connected")
	}
	tok := a.client.Publish(topic, a.cfg.QoS, false, payload)
	if !tok.WaitTimeout(a.cfg.CommandTimeout) {
		return fmt.Errorf("mqtt: publish %s timed out", topic)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("mqtt: publish %s: %w", topic, err)
	}
	return nil
}

func (a *Actuator) entityTopic(entity, kind string) string {
	return strings.TrimRight(a.cfg.CommandTopic, "/") + "/" + entity + "/" + kind
}
