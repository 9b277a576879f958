// Package mqtt bridges the announcement daemon to an MQTT broker. It accepts
// announce requests and presence updates and publishes status events.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/micro-nova/lms-announce/internal/config"
	"github.com/micro-nova/lms-announce/internal/models"
)

const (
	connectTimeout = 10 * time.Second
	submitTimeout  = 5 * time.Second
	publishTimeout = 2 * time.Second
	quiesceMillis  = 250
)

// Submitter validates and enqueues announce requests.
type Submitter interface {
	Submit(ctx context.Context, req models.AnnounceRequest) (models.AnnounceResponse, *models.AppError)
}

// PresenceSetter records presence states pushed over MQTT.
type PresenceSetter interface {
	Set(entity, state string)
}

// EventSource is the status event bus.
type EventSource interface {
	Subscribe(id string) <-chan models.StatusEvent
	Unsubscribe(id string)
}

// message is one outgoing publish.
type message struct {
	topic    string
	payload  []byte
	retained bool
}

// Listener is the MQTT transport.
type Listener struct {
	cfg      config.MQTTConfig
	submit   Submitter
	presence PresenceSetter
	events   EventSource
	client   paho.Client
}

// New creates a listener. presence and events may be nil.
func New(cfg config.MQTTConfig, submit Submitter, presence PresenceSetter, events EventSource) *Listener {
	return &Listener{cfg: cfg, submit: submit, presence: presence, events: events}
}

func (l *Listener) topic(parts ...string) string {
	return strings.Join(append([]string{strings.TrimSuffix(l.cfg.Prefix, "/")}, parts...), "/")
}

// Start connects to the broker, subscribes and forwards status events until
// ctx is cancelled.
func (l *Listener) Start(ctx context.Context) error {
	opts := paho.NewClientOptions().AddBroker(l.cfg.Broker)
	opts.SetClientID(l.cfg.ClientID)
	if l.cfg.Username != "" {
		opts.SetUsername(l.cfg.Username)
		opts.SetPassword(l.cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetWill(l.topic("availability"), "offline", 1, true)
	opts.SetOnConnectHandler(l.onConnect)
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		slog.Warn("mqtt: connection lost", "err", err)
	})

	l.client = paho.NewClient(opts)
	token := l.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		slog.Warn("mqtt: broker not reachable yet, retrying in background", "broker", l.cfg.Broker)
	} else if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}

	var ch <-chan models.StatusEvent
	if l.events != nil {
		id := "mqtt-" + uuid.NewString()
		ch = l.events.Subscribe(id)
		defer l.events.Unsubscribe(id)
	}

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				ch = nil
				continue
			}
			for _, m := range eventMessages(l.topic(), ev) {
				l.publish(m)
			}
		case <-ctx.Done():
			l.publish(message{topic: l.topic("availability"), payload: []byte("offline"), retained: true})
			l.client.Disconnect(quiesceMillis)
			slog.Info("mqtt: disconnected")
			return nil
		}
	}
}

// onConnect runs on every (re)connect since subscriptions do not survive a
// clean session.
func (l *Listener) onConnect(c paho.Client) {
	filters := map[string]byte{
		l.topic("announce"):      1,
		l.topic("presence", "+"): 0,
	}
	if token := c.SubscribeMultiple(filters, l.onMessage); token.Wait() && token.Error() != nil {
		slog.Error("mqtt: subscribe failed", "err", token.Error())
		return
	}
	c.Publish(l.topic("availability"), 1, true, "online")
	slog.Info("mqtt: connected", "broker", l.cfg.Broker, "prefix", l.cfg.Prefix)
}

func (l *Listener) onMessage(_ paho.Client, msg paho.Message) {
	topic := msg.Topic()
	switch {
	case topic == l.topic("announce"):
		if _, err := l.handleAnnounce(msg.Payload()); err != nil {
			slog.Warn("mqtt: announce rejected", "err", err)
		}
	case strings.HasPrefix(topic, l.topic("presence")+"/"):
		if err := l.handlePresence(topic, msg.Payload()); err != nil {
			slog.Warn("mqtt: presence update ignored", "topic", topic, "err", err)
		}
	default:
		slog.Debug("mqtt: unexpected topic", "topic", topic)
	}
}

// handleAnnounce decodes an announce payload and submits it.
func (l *Listener) handleAnnounce(payload []byte) (models.AnnounceResponse, error) {
	var req models.AnnounceRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return models.AnnounceResponse{}, fmt.Errorf("invalid JSON: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
	defer cancel()
	resp, appErr := l.submit.Submit(ctx, req)
	if appErr != nil {
		return resp, appErr
	}
	slog.Info("mqtt: announcement queued", "zones", len(resp.Accepted), "dropped", resp.Dropped)
	return resp, nil
}

// handlePresence stores the payload as the state of the entity named by
// the last topic level.
func (l *Listener) handlePresence(topic string, payload []byte) error {
	if l.presence == nil {
		return errors.New("presence updates disabled")
	}
	entity := strings.TrimPrefix(topic, l.topic("presence")+"/")
	if entity == "" || strings.Contains(entity, "/") {
		return fmt.Errorf("bad presence topic %q", topic)
	}
	state := strings.TrimSpace(string(payload))
	l.presence.Set(entity, state)
	slog.Debug("mqtt: presence", "entity", entity, "state", state)
	return nil
}

func (l *Listener) publish(m message) {
	if l.client == nil || !l.client.IsConnectionOpen() {
		return
	}
	token := l.client.Publish(m.topic, 0, m.retained, m.payload)
	if token.WaitTimeout(publishTimeout) && token.Error() != nil {
		slog.Warn("mqtt: publish failed", "topic", m.topic, "err", token.Error())
	}
}

// eventMessages maps a status event to the messages published for it: the
// raw event on <prefix>/status plus a retained state topic.
func eventMessages(prefix string, ev models.StatusEvent) []message {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil
	}
	out := []message{{topic: prefix + "/status", payload: data}}
	if ev.Zone != "" {
		out = append(out, message{
			topic:    prefix + "/zone/" + ev.Zone + "/status",
			payload:  []byte(ev.Status.String()),
			retained: true,
		})
	}
	if ev.Phase != "" {
		out = append(out, message{
			topic:    prefix + "/phase",
			payload:  []byte(ev.Phase),
			retained: true,
		})
	}
	return out
}
