package mqtt

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/eclipse/paho.golang/paho"
	"github.com/pkg/errors"

	"github.com/hubertat/lockbox/errcode"
	"github.com/hubertat/lockbox/pins"
)

// Device is what the command topics drive.
type Device interface {
	SaveConfig() error
	LoadConfig() error
	Reset() error
	SetPinState(pin pins.LogicalPin, state pins.State) error
	PinState(pin pins.LogicalPin) (pins.State, error)
}

// Status is published on <name>/status after every command.
type Status struct {
	Command string       `json:"command"`
	Code    errcode.Code `json:"code"`
	Message string       `json:"message,omitempty"`
}

type commands struct {
	name      string
	device    Device
	publisher Publisher
	logger    *log.Logger
}

func (c *commands) publishStatus(command string, err error) {
	status := Status{Command: command, Code: errcode.Of(err)}
	if err != nil {
		status.Message = err.Error()
		c.logger.Warn("command failed", "command", command, "err", err)
	}

	payload, _ := json.Marshal(status)
	if pubErr := c.publisher.Publish(c.name+"/status", payload); pubErr != nil {
		c.logger.Error("failed to publish status", "err", pubErr)
	}
}

func (c *commands) publishPinState(pin pins.LogicalPin) error {
	state, err := c.device.PinState(pin)
	if err != nil {
		return err
	}
	return c.publisher.Publish(PinStateTopic(c.name, pin), []byte(FormatState(state)))
}

type actionHandler struct {
	*commands
	command string
	run     func() error
}

func (ah *actionHandler) MqttSubscribeTopic() string {
	return ah.name + "/" + ah.command
}

func (ah *actionHandler) MqttHandle(pub *paho.Publish) {
	ah.publishStatus(ah.command, ah.run())
}

type pinStateHandler struct {
	*commands
}

func (ph *pinStateHandler) MqttSubscribeTopic() string {
	return ph.name + "/dpin/+/state/set"
}

func (ph *pinStateHandler) MqttHandle(pub *paho.Publish) {
	parts := strings.Split(pub.Topic, "/")
	if len(parts) < 4 {
		return
	}

	err := ph.setPin(parts[len(parts)-3], string(pub.Payload))
	ph.publishStatus("dpin/"+parts[len(parts)-3]+"/state/set", err)
}

func (ph *pinStateHandler) setPin(pinName, payload string) error {
	pin, err := pins.ParseLogicalPin(pinName)
	if err != nil {
		return err
	}
	state, err := ParseState(payload)
	if err != nil {
		return err
	}
	if err = ph.device.SetPinState(pin, state); err != nil {
		return err
	}
	return ph.publishPinState(pin)
}

// NewCommandHandlers returns the handlers of every command topic under name.
func NewCommandHandlers(name string, device Device, publisher Publisher) []MqttHandler {
	c := &commands{
		name:      name,
		device:    device,
		publisher: publisher,
		logger: log.NewWithOptions(os.Stderr, log.Options{
			Prefix: "MqttCommands 🐰: ",
			Level:  log.GetLevel(),
		}),
	}

	return []MqttHandler{
		&actionHandler{commands: c, command: "config/save", run: device.SaveConfig},
		&actionHandler{commands: c, command: "config/load", run: device.LoadConfig},
		&actionHandler{commands: c, command: "reset", run: device.Reset},
		&pinStateHandler{commands: c},
	}
}

// PublishPinStates publishes the state of every logical pin.
func PublishPinStates(name string, device Device, publisher Publisher) error {
	c := &commands{name: name, device: device, publisher: publisher}
	for _, pin := range pins.AllLogicalPins() {
		if err := c.publishPinState(pin); err != nil {
			return errors.Wrapf(err, "publish %s state", pin)
		}
	}
	return nil
}

func PinStateTopic(name string, pin pins.LogicalPin) string {
	return name + "/dpin/" + pin.String() + "/state"
}

func FormatState(state pins.State) string {
	if state {
		return "1"
	}
	return "0"
}

// ParseState accepts 1/0, true/false, on/off and high/low.
func ParseState(s string) (pins.State, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "on", "high":
		return pins.High, nil
	case "0", "false", "off", "low":
		return pins.Low, nil
	}
	return pins.Low, errors.Wrapf(errcode.InvalidParam, "bad pin state %q", s)
}
