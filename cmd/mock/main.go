package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/hubertat/lockbox"
	"github.com/hubertat/lockbox/pins"
)

var (
	Version string
	Build   string
)

func main() {
	log.SetLevel(log.DebugLevel)
	log.Info("lockbox mock started", "version", Version)
	log.Info("mock instance for testing purposes, runs on any machine")

	syncDuration := 500 * time.Millisecond

	lb := &lockbox.Lockbox{
		Name:       "lockbox-mock",
		Mock:       true,
		ConfigPath: filepath.Join(os.TempDir(), "lockbox-mock.conf"),
		HttpAddr:   "127.0.0.1:8088",
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	err := lb.InitDrivers(ctx)
	defer lb.Close()
	if err != nil {
		log.Fatal("driver init failed", "err", err)
	}

	if err = lb.MonitorRegisters(os.Stdout); err != nil {
		log.Fatal("monitor failed", "err", err)
	}

	dio0p := pins.MustLogical(8)
	lb.SetPinDirection(dio0p, pins.Output)
	lb.SetPinState(dio0p, true)
	lb.SetPinState(pins.MustLogical(3), true)
	lb.SetAnalog(pins.MustAnalog(0), 0.9)

	lb.PrintIoStatus(os.Stdout)

	if err = lb.StartHttp(ctx); err != nil {
		log.Fatal("http api not started", "err", err)
	}

	go lb.StartTicker(ctx, syncDuration)

	select {
	case <-ctx.Done():
	case err = <-lb.HttpErr():
		log.Error("http api stopped", "err", err)
	}
}
