package mqtt

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"

	"github.com/julienar/peblar-bridge/internal/config"
)

const (
	payloadOnline  = "online"
	payloadOffline = "offline"
)

// MessageHandler processes one inbound command payload.
type MessageHandler func(payload []byte)

// Handler wraps the MQTT connection used to expose the charger to the home
// automation platform: retained state topics, discovery announcements and
// command subscriptions.
type Handler struct {
	client            mqtt.Client
	topicPrefix       string
	discoveryPrefix   string
	availabilityTopic string
	logger            *zap.Logger
}

// NewHandler connects to the broker. The last-will marks the bridge offline
// if the connection drops; the matching online message is published once
// connected.
func NewHandler(cfg config.MQTTConfig, deviceID string, logger *zap.Logger) (*Handler, error) {
	span := tracer.StartSpan("mqtt.new_handler")
	defer span.Finish()

	h := &Handler{
		topicPrefix:     fmt.Sprintf("%s/%s", cfg.TopicPrefix, deviceID),
		discoveryPrefix: cfg.DiscoveryPrefix,
		logger:          logger,
	}
	h.availabilityTopic = h.topicPrefix + "/availability"

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Broker, cfg.Port))
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(1 * time.Minute)
	opts.SetWill(h.availabilityTopic, payloadOffline, 1, true)

	opts.SetOnConnectHandler(func(c mqtt.Client) {
		logger.Info("MQTT connected to broker", zap.String("broker", cfg.Broker))
		// Re-announce availability on every (re)connect, the will may have
		// fired in between.
		c.Publish(h.availabilityTopic, 1, true, payloadOnline)
	})
	opts.SetConnectionLostHandler(func(c mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", zap.Error(err))
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	h.client = client

	logger.Info("MQTT handler initialized",
		zap.String("broker", cfg.Broker),
		zap.String("topic_prefix", h.topicPrefix),
	)

	return h, nil
}

// StateTopic returns the retained state topic for an entity key.
func (h *Handler) StateTopic(key string) string {
	return fmt.Sprintf("%s/%s/state", h.topicPrefix, key)
}

// CommandTopic returns the command topic for an entity key.
func (h *Handler) CommandTopic(key string) string {
	return fmt.Sprintf("%s/%s/set", h.topicPrefix, key)
}

// AvailabilityTopic returns the bridge-level availability topic.
func (h *Handler) AvailabilityTopic() string {
	return h.availabilityTopic
}

// PublishState publishes an entity state, retained so the platform sees the
// last value after a restart.
func (h *Handler) PublishState(key, payload string) error {
	topic := h.StateTopic(key)
	token := h.client.Publish(topic, 0, true, payload)
	if token.Wait() && token.Error() != nil {
		h.logger.Error("Failed to publish MQTT state", zap.String("topic", topic), zap.Error(token.Error()))
		return token.Error()
	}

	h.logger.Debug("Published MQTT state", zap.String("topic", topic), zap.String("payload", payload))
	return nil
}

// PublishDiscovery publishes a Home Assistant discovery announcement for one
// entity. component is the platform name (sensor, select, switch, ...).
func (h *Handler) PublishDiscovery(component, uniqueID string, payload []byte) error {
	span := tracer.StartSpan("mqtt.publish_discovery", tracer.Tag("component", component))
	defer span.Finish()

	topic := fmt.Sprintf("%s/%s/%s/config", h.discoveryPrefix, component, uniqueID)
	token := h.client.Publish(topic, 1, true, payload)
	if token.Wait() && token.Error() != nil {
		h.logger.Error("Failed to publish discovery config", zap.String("topic", topic), zap.Error(token.Error()))
		return token.Error()
	}

	h.logger.Debug("Published discovery config", zap.String("topic", topic))
	return nil
}

// Subscribe registers a handler for an inbound command topic. Paho delivers
// messages for a subscription in order on a single goroutine, which
// serializes the write-then-refresh sequences triggered by commands.
func (h *Handler) Subscribe(topic string, handler MessageHandler) error {
	token := h.client.Subscribe(topic, 1, func(c mqtt.Client, msg mqtt.Message) {
		span := tracer.StartSpan("mqtt.handle_command", tracer.Tag("topic", msg.Topic()))
		defer span.Finish()

		h.logger.Debug("Received MQTT command",
			zap.String("topic", msg.Topic()),
			zap.String("payload", string(msg.Payload())),
		)
		handler(msg.Payload())
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", topic, token.Error())
	}

	h.logger.Info("Subscribed to MQTT command topic", zap.String("topic", topic))
	return nil
}

// Close marks the bridge offline and disconnects.
func (h *Handler) Close() {
	if h.client != nil && h.client.IsConnected() {
		token := h.client.Publish(h.availabilityTopic, 1, true, payloadOffline)
		token.WaitTimeout(time.Second)
		h.client.Disconnect(250)
		h.logger.Info("MQTT handler closed")
	}
}
