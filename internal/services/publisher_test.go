package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t doneToken) Error() error { return t.err }

// stalledToken never completes
type stalledToken struct{}

func (stalledToken) Wait() bool                     { return false }
func (stalledToken) WaitTimeout(time.Duration) bool { return false }
func (stalledToken) Done() <-chan struct{}          { return make(chan struct{}) }
func (stalledToken) Error() error                   { return nil }

type published struct {
	topic   string
	payload []byte
}

type fakeMQTTClient struct {
	mu    sync.Mutex
	sent  []published
	token mqtt.Token
}

func (c *fakeMQTTClient) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, published{topic: topic, payload: payload.([]byte)})
	if c.token != nil {
		return c.token
	}
	return doneToken{}
}

func (c *fakeMQTTClient) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func TestMQTTPublisher_Topic(t *testing.T) {
	p := NewMQTTPublisher(&fakeMQTTClient{}, "fota/")

	tests := []struct {
		name  string
		event Event
		want  string
	}{
		{"upgrade change", Event{Type: EventUpgradeStateChanged, AccountID: "acc", DeviceHid: "dev-1"}, "fota/acc/upgrades/dev-1"},
		{"pended transaction", Event{Type: EventTransactionPended, AccountID: "acc", TransactionHid: "tx-1"}, "fota/acc/transactions/tx-1"},
		{"cleared transactions", Event{Type: EventTransactionsCleared, AccountID: "acc"}, "fota/acc/transactions"},
		{"cleared upgrade states", Event{Type: EventUpgradeStatesCleared, AccountID: "acc"}, "fota/acc/upgrades"},
		{"account switch", Event{Type: EventAccountSwitched, AccountID: "acc"}, "fota/acc/account"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Topic(tt.event))
		})
	}
}

func TestMQTTPublisher_Send(t *testing.T) {
	event := Event{Type: EventUpgradeStateChanged, AccountID: "acc", DeviceHid: "dev-1"}

	t.Run("completed publish succeeds", func(t *testing.T) {
		p := NewMQTTPublisher(&fakeMQTTClient{}, "")
		assert.NoError(t, p.send(event))
	})

	t.Run("broker error is returned", func(t *testing.T) {
		p := NewMQTTPublisher(&fakeMQTTClient{token: doneToken{err: assert.AnError}}, "")
		assert.ErrorIs(t, p.send(event), assert.AnError)
	})

	t.Run("publish that never completes is a timeout", func(t *testing.T) {
		p := NewMQTTPublisher(&fakeMQTTClient{token: stalledToken{}}, "")
		err := p.send(event)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "timed out")
	})
}

func TestMQTTPublisher_Start(t *testing.T) {
	client := &fakeMQTTClient{}
	p := NewMQTTPublisher(client, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Start(ctx)

	p.Publish(ctx, Event{Type: EventUpgradeStateChanged, AccountID: "acc", DeviceHid: "dev-1"})
	require.Eventually(t, func() bool { return client.count() == 1 }, time.Second, 10*time.Millisecond)

	client.mu.Lock()
	sent := client.sent[0]
	client.mu.Unlock()
	assert.Equal(t, "fota/acc/upgrades/dev-1", sent.topic)

	var event Event
	require.NoError(t, json.Unmarshal(sent.payload, &event))
	assert.Equal(t, EventUpgradeStateChanged, event.Type)
	assert.False(t, event.At.IsZero())
}

func TestWebSocketHub_Publish(t *testing.T) {
	hub := NewWebSocketHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	subscriber := hub.NewClient("c1", nil)
	bystander := hub.NewClient("c2", nil)
	hub.Register(subscriber)
	hub.Register(bystander)
	hub.Subscribe(subscriber, AccountTopic(TopicUpgrades, "acc"))
	hub.Subscribe(bystander, AccountTopic(TopicUpgrades, "other"))

	hub.Publish(ctx, Event{Type: EventUpgradeStateChanged, AccountID: "acc", DeviceHid: "dev-1"})

	select {
	case data := <-subscriber.Send:
		var msg WSMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		assert.Equal(t, EventUpgradeStateChanged, msg.Type)
	case <-time.After(time.Second):
		t.Fatal("subscriber received nothing")
	}

	select {
	case <-bystander.Send:
		t.Fatal("event leaked to another account's topic")
	case <-time.After(50 * time.Millisecond):
	}

	assert.Equal(t, 2, hub.GetClientCount())
	assert.Equal(t, 1, hub.GetTopicSubscriberCount("upgrades:acc"))
}

func TestEventTopic(t *testing.T) {
	assert.Equal(t, "upgrades:a", EventTopic(Event{Type: EventUpgradeStateDeleted, AccountID: "a"}))
	assert.Equal(t, "upgrades:a", EventTopic(Event{Type: EventUpgradeStatesCleared, AccountID: "a"}))
	assert.Equal(t, "transactions:a", EventTopic(Event{Type: EventTransactionResolved, AccountID: "a"}))
	assert.Equal(t, TopicAccounts, EventTopic(Event{Type: EventAccountCleared, AccountID: "a"}))
}
