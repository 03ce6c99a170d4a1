package mqtt

import (
	"context"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/pkg/errors"
)

const subscribeTimeoutSeconds = 15
const connectionTimeoutSeconds = 5
const publishTimeoutSeconds = 4

type MqttHandler interface {
	MqttHandle(pub *paho.Publish)
	MqttSubscribeTopic() string
}

type Publisher interface {
	Publish(topic string, payload []byte) error
}

type MqttClient struct {
	config autopaho.ClientConfig
	conn   *autopaho.ConnectionManager
	logger *log.Logger

	lock    sync.RWMutex
	workers []*handlerWorker
}

// handlerWorker runs one handler on its own goroutine, in arrival order.
// The queue is unbounded so the paho receive goroutine never blocks on a
// slow handler.
type handlerWorker struct {
	handler MqttHandler

	lock    sync.Mutex
	pending []*paho.Publish
	wake    chan struct{}
	quit    chan struct{}
	done    chan struct{}
}

func newHandlerWorker(h MqttHandler) *handlerWorker {
	w := &handlerWorker{
		handler: h,
		wake:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *handlerWorker) enqueue(pub *paho.Publish) {
	w.lock.Lock()
	w.pending = append(w.pending, pub)
	w.lock.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *handlerWorker) run() {
	defer close(w.done)

	for {
		w.lock.Lock()
		batch := w.pending
		w.pending = nil
		w.lock.Unlock()

		for _, pub := range batch {
			w.handler.MqttHandle(pub)
		}
		if len(batch) > 0 {
			continue
		}

		select {
		case <-w.wake:
		case <-w.quit:
			return
		}
	}
}

// stop waits for the message being handled; queued ones are dropped.
func (w *handlerWorker) stop() {
	close(w.quit)
	<-w.done
}

func (mc *MqttClient) Publish(topic string, payload []byte) (err error) {
	if mc.conn == nil {
		return errors.Errorf("mqtt not connected, dropping publish to %s", topic)
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeoutSeconds*time.Second)
	defer cancel()

	_, err = mc.conn.Publish(ctx, &paho.Publish{
		Topic:   topic,
		QoS:     1,
		Payload: payload,
	})
	return
}

func (mc *MqttClient) topics() (topics []string) {
	mc.lock.RLock()
	defer mc.lock.RUnlock()

	for _, w := range mc.workers {
		topics = append(topics, w.handler.MqttSubscribeTopic())
	}
	return
}

func (mc *MqttClient) onConnUp(cm *autopaho.ConnectionManager, connAck *paho.Connack) {
	mc.logger.Info("Connected to MQTT broker")

	subs := []paho.SubscribeOptions{}
	for _, topic := range mc.topics() {
		subs = append(subs, paho.SubscribeOptions{
			QoS:   1,
			Topic: topic,
		})
	}
	if len(subs) == 0 {
		return
	}

	mc.logger.Debug("subscribing mqtt", "subs", subs)

	ctx, cancel := context.WithTimeout(context.Background(), subscribeTimeoutSeconds*time.Second)
	defer cancel()

	_, err := cm.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: subs,
	})
	if err != nil {
		mc.logger.Error("Failed to subscribe to topics", "err", err)
	}
}

func (mc *MqttClient) onConnError(err error) {
	mc.logger.Error("Received Mqtt connection error", "err", err)
}

func (mc *MqttClient) onSrvDisconnect(d *paho.Disconnect) {
	mc.logger.Info("Disconnected from MQTT broker")
}

// route queues a received message on the worker of every handler whose
// subscription matches its topic. Handlers publish with QoS 1 and the
// acknowledgement arrives on the receiving goroutine, so they must not run
// on it.
func (mc *MqttClient) route(pub *paho.Publish) (handled bool) {
	mc.lock.RLock()
	defer mc.lock.RUnlock()

	for _, w := range mc.workers {
		if MatchTopic(w.handler.MqttSubscribeTopic(), pub.Topic) {
			w.enqueue(pub)
			handled = true
		}
	}
	if !handled {
		mc.logger.Debug("no handler for mqtt message", "topic", pub.Topic)
	}
	return
}

// setHandlers stops the workers of the previous handlers and starts one
// per new handler.
func (mc *MqttClient) setHandlers(handlers []MqttHandler) {
	mc.lock.Lock()
	old := mc.workers
	mc.workers = nil
	for _, h := range handlers {
		mc.workers = append(mc.workers, newHandlerWorker(h))
	}
	mc.lock.Unlock()

	for _, w := range old {
		w.stop()
	}
}

func (mc *MqttClient) onPublishRecv() []func(paho.PublishReceived) (bool, error) {
	return []func(paho.PublishReceived) (bool, error){
		func(pr paho.PublishReceived) (bool, error) {
			mc.logger.Debug("received message", "topic", pr.Packet.Topic, "retain", pr.Packet.Retain)
			return mc.route(pr.Packet), nil
		},
	}
}

func (mc *MqttClient) Connect(handlers []MqttHandler) (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeoutSeconds*time.Second)
	defer cancel()

	mc.setHandlers(handlers)

	for _, h := range handlers {
		mc.logger.Debug("setting up mqtt topics config", "topic", h.MqttSubscribeTopic())
	}

	mc.conn, err = autopaho.NewConnection(context.Background(), mc.config)
	if err != nil {
		return errors.Wrap(err, "failed to start mqtt connection")
	}

	err = mc.conn.AwaitConnection(ctx)
	mc.logger.Debug("AwaitConnection done", "err", err)

	return
}

func (mc *MqttClient) Disconnect(ctx context.Context) error {
	mc.setHandlers(nil)

	if mc.conn == nil {
		return nil
	}
	return mc.conn.Disconnect(ctx)
}

func NewMqttClient(broker string, clientId string) (mc *MqttClient, err error) {
	addr, err := url.Parse(broker)
	if err != nil {
		err = errors.Wrapf(err, "bad broker url %s", broker)
		return
	}

	mc = &MqttClient{
		logger: log.NewWithOptions(os.Stderr, log.Options{
			Prefix: "MqttClient 🐰: ",
			Level:  log.GetLevel(),
		}),
	}

	mc.config = autopaho.ClientConfig{
		ServerUrls:            []*url.URL{addr},
		KeepAlive:             20,
		SessionExpiryInterval: 60,
		OnConnectionUp:        mc.onConnUp,
		OnConnectError:        mc.onConnError,
		ClientConfig: paho.ClientConfig{
			ClientID:           clientId,
			OnClientError:      mc.onConnError,
			OnServerDisconnect: mc.onSrvDisconnect,
			OnPublishReceived:  mc.onPublishRecv(),
		},
	}

	return
}

// MatchTopic reports whether topic matches the subscription filter, with
// the usual + and # wildcards.
func MatchTopic(filter, topic string) bool {
	fparts := strings.Split(filter, "/")
	tparts := strings.Split(topic, "/")

	for i, f := range fparts {
		if f == "#" {
			return true
		}
		if i >= len(tparts) {
			return false
		}
		if f != "+" && f != tparts[i] {
			return false
		}
	}
	return len(fparts) == len(tparts)
}
