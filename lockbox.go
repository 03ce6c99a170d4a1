package lockbox

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"

	"github.com/hubertat/lockbox/analog"
	"github.com/hubertat/lockbox/digital"
	"github.com/hubertat/lockbox/drivers"
	"github.com/hubertat/lockbox/httpapi"
	"github.com/hubertat/lockbox/modules"
	"github.com/hubertat/lockbox/mqtt"
	"github.com/hubertat/lockbox/pins"
	"github.com/hubertat/lockbox/snapshot"
	"github.com/hubertat/lockbox/telemetry"
)

const defaultName = "lockbox"

// Lockbox is the whole board. Exported fields are filled from the JSON
// config file.
type Lockbox struct {
	Name string

	MemDevice   string
	Mock        bool
	ConfigPath  string
	LoadOnStart bool
	LogLevel    string

	HttpAddr  string
	HttpToken string

	MqttBroker string

	Influx *telemetry.InfluxExporter

	lock      sync.Mutex
	registers drivers.RegisterDriver
	digital   *digital.Controller
	analog    *analog.Scaler
	pid       *modules.PIDRegisters
	limiter   *modules.LimiterBank
	generator *modules.GeneratorBank
	snapshot  *snapshot.Snapshot

	http       *httpapi.Server
	mqttClient *mqtt.MqttClient
	ticker     *time.Ticker
	logger     *log.Logger
}

func (lb *Lockbox) name() string {
	if len(lb.Name) == 0 {
		return defaultName
	}
	return lb.Name
}

// ApplyLogLevel sets the global log level from LogLevel, if given.
func (lb *Lockbox) ApplyLogLevel() error {
	if len(lb.LogLevel) > 0 {
		level, err := log.ParseLevel(lb.LogLevel)
		if err != nil {
			return errors.Wrapf(err, "bad log level %s", lb.LogLevel)
		}
		log.SetLevel(level)
	}

	lb.logger = log.NewWithOptions(os.Stderr, log.Options{
		Prefix: "Lockbox 🔒: ",
		Level:  log.GetLevel(),
	})
	return nil
}

func (lb *Lockbox) InitDrivers(ctx context.Context) error {
	if lb.logger == nil {
		if err := lb.ApplyLogLevel(); err != nil {
			return err
		}
	}

	mapped := drivers.MapAllRegisterDrivers()
	if lb.Mock {
		lb.registers = mapped["mock_registers"]
	} else {
		lb.registers = &drivers.MemDriver{Device: lb.MemDevice}
	}

	err := lb.registers.Setup(ctx)
	if err != nil {
		return errors.Wrapf(err, "failed to setup %s driver", lb.registers)
	}

	hk, err := lb.registers.Region(drivers.Housekeeping)
	if err != nil {
		return errors.Wrap(err, "housekeeping registers")
	}
	ams, err := lb.registers.Region(drivers.AnalogMixedSignals)
	if err != nil {
		return errors.Wrap(err, "analog registers")
	}
	pidRegs, err := lb.registers.Region(drivers.PID)
	if err != nil {
		return errors.Wrap(err, "pid registers")
	}

	lb.digital = digital.New(hk)
	lb.analog = analog.New(ams)
	lb.pid = modules.NewPIDRegisters(pidRegs)
	lb.limiter = modules.NewLimiterBank()
	lb.generator = modules.NewGeneratorBank()
	lb.snapshot = snapshot.New(lb.ConfigPath, lb.pid, lb.limiter, lb.generator)

	lb.resetLocked()
	lb.logger.Info("drivers ready", "driver", lb.registers, "board_id", fmt.Sprintf("0x%08x", lb.digital.ID()))

	if lb.LoadOnStart {
		if err = lb.snapshot.Load(); err != nil {
			lb.logger.Warn("stored config not loaded, running on defaults", "path", lb.snapshot.Path, "err", err)
		}
	}

	return nil
}

// MonitorRegisters prints register changes when running on mock registers.
func (lb *Lockbox) MonitorRegisters(writer io.Writer) error {
	mock, isMock := lb.registers.(*drivers.MockRegisters)
	if !isMock {
		return errors.Errorf("register driver %s cannot be monitored", lb.registers)
	}
	mock.MonitorStateChanges(writer)
	return nil
}

func (lb *Lockbox) resetLocked() {
	lb.digital.Reset()
	lb.analog.Reset()
	lb.pid.Reset()
	lb.limiter.Reset()
	lb.generator.Reset()
}

// Reset puts lines, analog outputs and every module back to defaults. It
// cannot fail; the error satisfies mqtt.Device.
func (lb *Lockbox) Reset() error {
	lb.lock.Lock()
	defer lb.lock.Unlock()

	lb.resetLocked()
	return nil
}

func (lb *Lockbox) SaveConfig() error {
	lb.lock.Lock()
	defer lb.lock.Unlock()

	return lb.snapshot.Save()
}

func (lb *Lockbox) LoadConfig() error {
	lb.lock.Lock()
	defer lb.lock.Unlock()

	return lb.snapshot.Load()
}

func (lb *Lockbox) SetPinState(pin pins.LogicalPin, state pins.State) error {
	lb.lock.Lock()
	defer lb.lock.Unlock()

	return lb.digital.SetState(pin, state)
}

func (lb *Lockbox) PinState(pin pins.LogicalPin) (pins.State, error) {
	lb.lock.Lock()
	defer lb.lock.Unlock()

	return lb.digital.GetState(pin)
}

func (lb *Lockbox) SetPinDirection(pin pins.LogicalPin, dir pins.Direction) error {
	lb.lock.Lock()
	defer lb.lock.Unlock()

	return lb.digital.SetDirection(pin, dir)
}

func (lb *Lockbox) SetAnalog(pin pins.AnalogPin, voltage float64) error {
	lb.lock.Lock()
	defer lb.lock.Unlock()

	return lb.analog.SetValue(pin, voltage)
}

// Sample reads every analog channel and the digital words.
func (lb *Lockbox) Sample() (r telemetry.Reading) {
	lb.lock.Lock()
	defer lb.lock.Unlock()

	r.Voltages = make(map[string]float64)
	for id := 0; id < 2*pins.AnalogChannels; id++ {
		pin := pins.MustAnalog(id)
		if v, err := lb.analog.GetValue(pin); err == nil {
			r.Voltages[pin.String()] = v
		}
	}

	r.Words = map[string]uint32{"leds": lb.digital.LEDs()}
	for _, bank := range []pins.Bank{pins.BankPositive, pins.BankNegative} {
		suffix := "p"
		if bank == pins.BankNegative {
			suffix = "n"
		}
		r.Words["dio_"+suffix+"_dir"], _ = lb.digital.BankDirection(bank)
		r.Words["dio_"+suffix+"_in"], _ = lb.digital.BankState(bank)
		r.Words["dio_"+suffix+"_out"], _ = lb.digital.BankOutput(bank)
	}
	return
}

func (lb *Lockbox) push(ctx context.Context) {
	if lb.Influx != nil && lb.Influx.IsReady() {
		if err := lb.Influx.Write(ctx, lb.Sample(), time.Now()); err != nil {
			lb.logger.Error("telemetry write failed", "err", err)
		}
	}
	if lb.mqttClient != nil {
		if err := mqtt.PublishPinStates(lb.name(), lb, lb.mqttClient); err != nil {
			lb.logger.Debug("pin state publish failed", "err", err)
		}
	}
}

// StartTicker pushes telemetry and pin states every interval until ctx is
// done.
func (lb *Lockbox) StartTicker(ctx context.Context, interval time.Duration) {
	lb.ticker = time.NewTicker(interval)
	defer lb.ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-lb.ticker.C:
			lb.push(ctx)
		}
	}
}

func (lb *Lockbox) StartHttp(ctx context.Context) error {
	if len(lb.HttpAddr) == 0 {
		return errors.New("http address not set")
	}

	lb.http = &httpapi.Server{
		Addr:      lb.HttpAddr,
		Token:     lb.HttpToken,
		Lock:      &lb.lock,
		Digital:   lb.digital,
		Analog:    lb.analog,
		PID:       lb.pid,
		Limiter:   lb.limiter,
		Generator: lb.generator,
		Snapshot:  lb.snapshot,
		Reset: func() error {
			lb.resetLocked()
			return nil
		},
	}
	return lb.http.Setup(ctx)
}

// HttpErr delivers the error of a stopped HTTP API. Without a running API
// it never delivers.
func (lb *Lockbox) HttpErr() <-chan error {
	if lb.http == nil {
		return nil
	}
	return lb.http.Err()
}

func (lb *Lockbox) InitInflux(ctx context.Context) error {
	if lb.Influx == nil {
		return errors.New("influx not configured")
	}
	if lb.Influx.Tags == nil {
		lb.Influx.Tags = map[string]string{"board": lb.name()}
	}
	return lb.Influx.Setup(ctx)
}

func (lb *Lockbox) InitMqtt() (err error) {
	if len(lb.MqttBroker) == 0 {
		err = errors.New("mqtt broker not set")
		return
	}

	mc, err := mqtt.NewMqttClient(lb.MqttBroker, lb.name())
	if err != nil {
		err = errors.Wrap(err, "failed to create mqtt client")
		return
	}

	lb.mqttClient = mc

	err = mc.Connect(mqtt.NewCommandHandlers(lb.name(), lb, mc))
	if err != nil {
		err = errors.Wrap(err, "failed to connect to mqtt broker")
	}

	return
}

func (lb *Lockbox) Close() (err error) {
	if lb.http != nil {
		if closeErr := lb.http.Close(); closeErr != nil {
			err = errors.Wrap(closeErr, "http close")
		}
	}
	if lb.mqttClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		lb.mqttClient.Disconnect(ctx)
		cancel()
	}
	if lb.Influx != nil {
		lb.Influx.Close()
	}
	if lb.registers != nil {
		if closeErr := lb.registers.Close(); closeErr != nil && err == nil {
			err = errors.Wrap(closeErr, "register driver close")
		}
	}

	return
}

func (lb *Lockbox) PrintIoStatus(writer io.Writer) {
	lb.lock.Lock()
	defer lb.lock.Unlock()

	fmt.Fprintln(writer)
	fmt.Fprintf(writer, "=== %s on %s ===\n", lb.name(), lb.registers)
	fmt.Fprintf(writer, "| fpga id: 0x%08x dna: 0x%014x loopback: %v\n", lb.digital.ID(), lb.digital.DNA(), lb.digital.Loopback())
	fmt.Fprintln(writer, "________")
	for _, pin := range pins.AllLogicalPins() {
		dir, _ := lb.digital.GetDirection(pin)
		state, _ := lb.digital.GetState(pin)
		fmt.Fprintf(writer, "| %-7s %-3s %d\n", pin, dir, state.Bit())
	}
	fmt.Fprintln(writer, "________")
	for id := 0; id < 2*pins.AnalogChannels; id++ {
		pin := pins.MustAnalog(id)
		v, _ := lb.analog.GetValue(pin)
		fmt.Fprintf(writer, "| %-7s %.3f V\n", pin, v)
	}
	fmt.Fprintln(writer, "-----------------------------")
	fmt.Fprintln(writer)
}
