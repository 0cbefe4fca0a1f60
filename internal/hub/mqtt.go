package hub

import (
	"encoding/json"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"feedtrack/internal/logging"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
)

// mqttChannel forwards events to an MQTT topic so sibling processes on
// the same workstation (or elsewhere on the floor network) can react to
// data updates. Everything here is best-effort: a broker outage must
// never degrade local operation.
type mqttChannel struct {
	client mqtt.Client
	topic  string
	logger *slog.Logger
}

// NewMQTTChannel connects to an MQTT broker and returns an External that
// publishes events as JSON to topic. Connection failure is returned so
// the caller can decide to run without the channel.
func NewMQTTChannel(brokerURL, clientID, topic string, logger *slog.Logger) (External, error) {
	logger = logging.Default(logger)

	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetConnectTimeout(connectTimeout).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, mqtt.ErrNotConnected
	}
	if err := token.Error(); err != nil {
		return nil, err
	}

	return &mqttChannel{
		client: client,
		topic:  topic,
		logger: logger.With("component", "hub", "channel", "mqtt"),
	}, nil
}

// Publish sends the event to the topic. Failures are logged and dropped.
func (c *mqttChannel) Publish(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		c.logger.Warn("failed to encode event", "error", err)
		return
	}

	token := c.client.Publish(c.topic, 0, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		c.logger.Warn("publish timed out", "topic", c.topic)
		return
	}
	if err := token.Error(); err != nil {
		c.logger.Warn("publish failed", "topic", c.topic, "error", err)
	}
}

// Close disconnects from the broker, allowing in-flight work to drain.
func (c *mqttChannel) Close() {
	c.client.Disconnect(uint(publishTimeout / time.Millisecond))
}
