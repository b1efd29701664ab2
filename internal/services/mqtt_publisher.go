package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/fotastore/server/internal/observability"
)

// MQTTConfig holds the broker connection settings
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	// TopicPrefix is prepended to every topic, e.g. "fota"
	TopicPrefix string
}

const mqttPublishTimeout = 5 * time.Second

// mqttPublishClient is the part of mqtt.Client the publisher needs
type mqttPublishClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTPublisher mirrors store events to an MQTT broker. Events are queued
// and published from Start so a slow broker never holds the store lock.
type MQTTPublisher struct {
	client mqttPublishClient
	prefix string
	queue  chan Event
	logger *observability.Logger
}

// ConnectMQTT dials the broker with auto-reconnect enabled
func ConnectMQTT(cfg MQTTConfig) (mqtt.Client, error) {
	logger := observability.GetLogger().WithField("component", "mqtt")

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.WithField("broker", cfg.Broker).Info("MQTT connection established")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.WithError(err).Warn("MQTT connection lost")
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return client, nil
}

// NewMQTTPublisher creates a publisher writing to client under prefix
func NewMQTTPublisher(client mqttPublishClient, prefix string) *MQTTPublisher {
	if prefix == "" {
		prefix = "fota"
	}
	return &MQTTPublisher{
		client: client,
		prefix: strings.TrimSuffix(prefix, "/"),
		queue:  make(chan Event, 256),
		logger: observability.GetLogger().WithField("component", "mqtt_publisher"),
	}
}

// Publish queues the event. When the queue is full the event is dropped.
func (p *MQTTPublisher) Publish(_ context.Context, event Event) {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	select {
	case p.queue <- event:
	default:
		p.logger.WithField("event", event.Type).Warn("MQTT queue full, dropping event")
	}
}

// Start publishes queued events until ctx is cancelled
func (p *MQTTPublisher) Start(ctx context.Context) {
	p.logger.Info("MQTT publisher starting")
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("MQTT publisher stopped")
			return
		case event := <-p.queue:
			if err := p.send(event); err != nil {
				p.logger.WithField("event", event.Type).WithError(err).Warn("Publishing event failed")
			}
		}
	}
}

func (p *MQTTPublisher) send(event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	topic := p.Topic(event)
	token := p.client.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return fmt.Errorf("timed out publishing event to %s after %s", topic, mqttPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Topic returns the MQTT topic of an event:
// {prefix}/{accountId}/upgrades[/{deviceHid}],
// {prefix}/{accountId}/transactions[/{transactionHid}] or
// {prefix}/{accountId}/account
func (p *MQTTPublisher) Topic(event Event) string {
	parts := []string{p.prefix, event.AccountID}
	switch {
	case event.DeviceHid != "":
		parts = append(parts, TopicUpgrades, event.DeviceHid)
	case event.Type == EventUpgradeStatesCleared:
		parts = append(parts, TopicUpgrades)
	case strings.HasPrefix(event.Type, "transaction"):
		parts = append(parts, TopicTransactions)
		if event.TransactionHid != "" {
			parts = append(parts, event.TransactionHid)
		}
	default:
		parts = append(parts, "account")
	}
	return strings.Join(parts, "/")
}
