// Package notify publishes fleet sync events to an MQTT broker so other
// devices of the same user know to refresh.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-tracker/internal/localstore"
)

var ErrPublishTimeout = errors.New("mqtt publish timed out")

// Publisher is the part of an MQTT client the notifier needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTNotifier publishes localstore events as JSON to
// <prefix>/<user id>/sync.
type MQTTNotifier struct {
	client  Publisher
	prefix  string
	timeout time.Duration
}

// NewMQTTNotifier wraps an already connected client.
func NewMQTTNotifier(client Publisher, prefix string) *MQTTNotifier {
	return &MQTTNotifier{client: client, prefix: prefix, timeout: 5 * time.Second}
}

// Connect dials broker and returns a connected client.
func Connect(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.WithError(err).Warn("MQTT connection lost")
		})
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(15 * time.Second) {
		return nil, fmt.Errorf("connect to %s: timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", broker, err)
	}
	return client, nil
}

// Topic returns the topic events of userID are published on.
func (n *MQTTNotifier) Topic(userID string) string {
	return fmt.Sprintf("%s/%s/sync", n.prefix, userID)
}

func (n *MQTTNotifier) Notify(ctx context.Context, event localstore.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	timeout := n.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	token := n.client.Publish(n.Topic(event.UserID), 1, false, payload)
	if !token.WaitTimeout(timeout) {
		return ErrPublishTimeout
	}
	return token.Error()
}
