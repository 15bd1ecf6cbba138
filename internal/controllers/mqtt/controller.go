package mqttctrl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/unitherm/unitherm/internal/ports"
	"github.com/unitherm/unitherm/internal/thermostat"
)

type Config struct {
	// Identity
	DeviceID string

	// MQTT connection
	BrokerURL string
	ClientID  string

	// Topics
	BaseTopic   string
	SensorTopic string // current-temperature feed; plain float payload

	// Behavior
	QoS             byte
	RetainSnapshot  bool
	PublishInterval time.Duration

	Username string
	Password string
}

type Controller struct {
	svc ports.ThermostatService
	cfg Config

	client mqtt.Client
}

func New(svc ports.ThermostatService, cfg Config) (*Controller, error) {
	// ---- defaults ----

	if cfg.BrokerURL == "" {
		cfg.BrokerURL = "tcp://localhost:1883"
	}

	if cfg.DeviceID == "" {
		return nil, errors.New("mqtt: DeviceID is required")
	}
	if cfg.BaseTopic == "" {
		cfg.BaseTopic = "unitherm/" + cfg.DeviceID
	}
	cfg.BaseTopic = strings.TrimRight(cfg.BaseTopic, "/")
	if cfg.ClientID == "" {
		cfg.ClientID = "unitherm-" + cfg.DeviceID
	}
	if cfg.PublishInterval <= 0 {
		cfg.PublishInterval = 1 * time.Second
	}
	if cfg.QoS > 1 {
		return nil, errors.New("mqtt: QoS must be 0 or 1")
	}
	return &Controller{
		svc: svc,
		cfg: cfg,
	}, nil
}

func (c *Controller) Run(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(c.cfg.BrokerURL).
		SetClientID(c.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(2 * time.Second)

	if c.cfg.Username != "" {
		opts.SetUsername(c.cfg.Username)
		opts.SetPassword(c.cfg.Password)
	}

	// Subscribe when connected/reconnected.
	opts.OnConnect = func(cl mqtt.Client) {
		token := cl.Subscribe(c.topic("set/+"), c.cfg.QoS, c.onMessage)
		token.Wait()
		if c.cfg.SensorTopic != "" {
			token = cl.Subscribe(c.cfg.SensorTopic, c.cfg.QoS, c.onSensor)
			token.Wait()
		}
	}

	c.client = mqtt.NewClient(opts)
	tok := c.client.Connect()
	tok.Wait()
	if err := tok.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}

	// Publish loop: publish snapshot on interval, and only when changed.
	ticker := time.NewTicker(c.cfg.PublishInterval)
	defer ticker.Stop()

	var last thermostat.Snapshot
	first := true

	// publish immediately once
	c.publishSnapshot()

	for {
		select {
		case <-ctx.Done():
			c.client.Disconnect(250)
			return ctx.Err()

		case <-ticker.C:
			cur := c.svc.Get()
			if first || !reflect.DeepEqual(cur, last) {
				c.publishSnapshot()
				last = cur
				first = false
			}
		}
	}
}

func (c *Controller) publishSnapshot() {
	s := c.svc.Get()
	dto := snapshotDTO{
		HVACMode:       s.HVACMode.String(),
		Preset:         s.Preset,
		TargetTemp:     s.TargetTemp,
		TargetTempLow:  s.TargetTempLow,
		TargetTempHigh: s.TargetTempHigh,
		MinTemp:        s.MinTemp,
		MaxTemp:        s.MaxTemp,
	}
	if s.HasCurrentTemp {
		cur := s.CurrentTemp
		dto.CurrentTemp = &cur
	}
	for _, ctrl := range s.Controllers {
		dto.Controllers = append(dto.Controllers, controllerDTO{
			Name:    ctrl.Name,
			Role:    ctrl.Role.String(),
			Running: ctrl.Running,
			Target:  ctrl.Target,
			Stale:   ctrl.Stale,
		})
	}
	b, _ := json.Marshal(dto)
	c.client.Publish(c.topic("snapshot"), c.cfg.QoS, c.cfg.RetainSnapshot, b)
}

type controllerDTO struct {
	Name    string  `json:"name"`
	Role    string  `json:"role"`
	Running bool    `json:"running"`
	Target  float64 `json:"target"`
	Stale   bool    `json:"stale,omitempty"`
}

type snapshotDTO struct {
	HVACMode       string          `json:"hvac_mode"`
	Preset         string          `json:"preset,omitempty"`
	TargetTemp     float64         `json:"target_temp"`
	TargetTempLow  float64         `json:"target_temp_low"`
	TargetTempHigh float64         `json:"target_temp_high"`
	MinTemp        float64         `json:"min_temp"`
	MaxTemp        float64         `json:"max_temp"`
	CurrentTemp    *float64        `json:"current_temperature,omitempty"`
	Controllers    []controllerDTO `json:"controllers"`
}

// Command payload format: {"value": ...}
type valueReq[T any] struct {
	Value *T `json:"value"`
}

func (c *Controller) onMessage(_ mqtt.Client, msg mqtt.Message) {
	// topic format: <base>/set/<field>
	t := msg.Topic()
	prefix := c.cfg.BaseTopic + "/set/"
	if !strings.HasPrefix(t, prefix) {
		return
	}
	field := strings.TrimPrefix(t, prefix)

	payload := msg.Payload()

	// Dispatch by field
	switch field {
	case "hvac_mode":
		s, err := decodeValueStrict[string](payload)
		if err != nil {
			return
		}
		m, err := thermostat.ParseHVACMode(s)
		if err != nil {
			return
		}
		_ = c.svc.SetHVACMode(m)

	case "preset":
		s, err := decodeValueStrict[string](payload)
		if err != nil {
			return
		}
		_ = c.svc.SetPreset(s)

	case "target_temp":
		v, err := decodeValueStrict[float64](payload)
		if err != nil {
			return
		}
		_ = c.svc.SetTargetTemp(v)

	case "target_temp_low":
		v, err := decodeValueStrict[float64](payload)
		if err != nil {
			return
		}
		cur := c.svc.Get()
		_ = c.svc.SetTargetTempRange(v, cur.TargetTempHigh)

	case "target_temp_high":
		v, err := decodeValueStrict[float64](payload)
		if err != nil {
			return
		}
		cur := c.svc.Get()
		_ = c.svc.SetTargetTempRange(cur.TargetTempLow, v)

	case "min_temp":
		v, err := decodeValueStrict[float64](payload)
		if err != nil {
			return
		}
		cur := c.svc.Get()
		_ = c.svc.SetMinMax(v, cur.MaxTemp)

	case "max_temp":
		v, err := decodeValueStrict[float64](payload)
		if err != nil {
			return
		}
		cur := c.svc.Get()
		_ = c.svc.SetMinMax(cur.MinTemp, v)
	}
}

// onSensor handles the current-temperature feed. Payload is a plain float.
func (c *Controller) onSensor(_ mqtt.Client, msg mqtt.Message) {
	v, err := strconv.ParseFloat(strings.TrimSpace(string(msg.Payload())), 64)
	if err != nil {
		return
	}
	_ = c.svc.UpdateCurrentTemp(v, time.Now())
}

func (c *Controller) topic(suffix string) string {
	return strings.TrimRight(c.cfg.BaseTopic, "/") + "/" + suffix
}

func decodeValueStrict[T any](b []byte) (T, error) {
	var zero T
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	var req valueReq[T]
	if err := dec.Decode(&req); err != nil {
		return zero, err
	}
	if req.Value == nil {
		return zero, errors.New("missing field 'value'")
	}
	return *req.Value, nil
}
