package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/davecgh/go-spew/spew"
	"github.com/hubertat/servicemaker"

	"github.com/hubertat/lockbox"
	"github.com/hubertat/lockbox/snapshot"
)

const defaultSyncInterval = "1s"

var (
	Version string
	Build   string

	config       = flag.String("config", "config.json", "path of the configuration file")
	flagInstall  = flag.Bool("install", false, "Install service in os")
	syncInterval = flag.String("sync", defaultSyncInterval, "telemetry and mqtt sync interval (time.Duration)")
	dump         = flag.String("dump", "", "print the stored config record at this path and exit")

	lbService = servicemaker.ServiceMaker{
		User:               "root",
		ServicePath:        "/etc/systemd/system/lockbox.service",
		ServiceDescription: "Lockbox service: Red Pitaya lock-box hardware access over http and mqtt. github.com/hubertat/lockbox",
		ExecDir:            "/opt/redpitaya/lockbox",
		ExecName:           "lockbox",
	}
)

func main() {
	log.Info("lockbox started", "version", Version, "build", Build)
	flag.Parse()

	if *flagInstall {
		err := lbService.InstallService()
		if err != nil {
			log.Fatal("service install failed", "err", err)
		}
		log.Info("service installed!")
		return
	}

	if len(*dump) > 0 {
		rec, err := snapshot.ReadRecord(*dump)
		if err != nil {
			log.Fatal("failed to read config record", "path", *dump, "err", err)
		}
		spew.Dump(rec)
		return
	}

	syncDuration, err := time.ParseDuration(*syncInterval)
	if err != nil {
		log.Fatal("bad sync interval", "sync", *syncInterval, "err", err)
	}

	lb := &lockbox.Lockbox{ConfigPath: snapshot.DefaultPath}
	configFile, err := os.Open(*config)
	if err != nil {
		log.Fatal("can't find/open config file, will terminate", "path", *config, "err", err)
	}
	cBuff, err := io.ReadAll(configFile)
	configFile.Close()
	if err != nil {
		log.Fatal("failed reading config file", "err", err)
	}
	err = json.Unmarshal(cBuff, lb)
	if err != nil {
		log.Fatal("failed unmarshalling json config", "err", err)
	}
	if err = lb.ApplyLogLevel(); err != nil {
		log.Fatal("bad config", "err", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Info("will init lockbox drivers...")
	err = lb.InitDrivers(ctx)
	defer lb.Close()
	if err != nil {
		log.Error("driver init failed", "err", err)
		return
	}

	lb.PrintIoStatus(os.Stdout)

	if len(lb.MqttBroker) > 0 {
		if err = lb.InitMqtt(); err != nil {
			log.Error("mqtt disabled", "err", err)
		}
	} else {
		log.Info("mqtt not configured, disabled")
	}

	if lb.Influx != nil {
		if err = lb.InitInflux(ctx); err != nil {
			log.Error("influx disabled", "err", err)
		}
	}

	if len(lb.HttpAddr) > 0 {
		if err = lb.StartHttp(ctx); err != nil {
			log.Error("http api not started", "err", err)
			return
		}
	} else {
		log.Info("http api not configured, disabled")
	}

	go lb.StartTicker(ctx, syncDuration)

	select {
	case <-ctx.Done():
		log.Info("lockbox stopping")
	case err = <-lb.HttpErr():
		log.Error("http api stopped, lockbox stopping", "err", err)
	}
}
