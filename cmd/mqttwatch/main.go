package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"time"

	"github.com/charmbracelet/log"
	"github.com/eclipse/paho.golang/paho"

	"github.com/hubertat/lockbox/mqtt"
)

var (
	broker = flag.String("broker", "mqtt://127.0.0.1:1883", "mqtt broker url")
	name   = flag.String("name", "lockbox", "lockbox name (topic prefix)")
	action = flag.String("action", "", "publish one command: config/save, config/load or reset")
)

type Handler struct {
	topic string
}

func (h *Handler) MqttSubscribeTopic() string {
	return h.topic
}

func (h *Handler) MqttHandle(pub *paho.Publish) {
	log.Info("received", "topic", pub.Topic, "payload", string(pub.Payload))
}

func main() {
	flag.Parse()
	log.SetLevel(log.DebugLevel)

	mc, err := mqtt.NewMqttClient(*broker, *name+"-watch")
	if err != nil {
		log.Error("failed to create mqtt client", "error", err)
		return
	}

	err = mc.Connect([]mqtt.MqttHandler{
		&Handler{topic: *name + "/status"},
		&Handler{topic: *name + "/dpin/+/state"},
	})
	if err != nil {
		log.Error("failed to connect to mqtt broker", "error", err)
		return
	}
	log.Info("mqtt client connected")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if len(*action) > 0 {
		// the connection comes up asynchronously
		time.Sleep(time.Second)
		if err = mc.Publish(*name+"/"+*action, nil); err != nil {
			log.Error("publish failed", "error", err)
		}
	}

	<-ctx.Done()
	stop, done := context.WithTimeout(context.Background(), time.Second)
	defer done()
	mc.Disconnect(stop)
}
