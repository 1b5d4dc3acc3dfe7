//go:build integration

package mqtt

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/hmccu/homematic-core/internal/infrastructure/config"
)

// Integration tests require a running MQTT broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -count=1 -v ./internal/infrastructure/mqtt/...

func integrationConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "hmcore-integration-test",
		},
		QoS:         1,
		TopicPrefix: "hmcore-test",
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	client, err := Connect(integrationConfig())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close() //nolint:errcheck // Test cleanup

	topics := Topics{Prefix: "hmcore-test"}
	var received atomic.Int32

	err = client.Subscribe(topics.AllCommands(), 1, func(topic string, payload []byte) error {
		if _, _, ok := topics.ParseCommand(topic); ok && string(payload) == "0.5" {
			received.Add(1)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if err := client.Publish(topics.Command("VCU0000123:1", "LEVEL"), []byte("0.5"), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	deadline := time.After(5 * time.Second)
	for received.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("message not received within deadline")
		case <-time.After(50 * time.Millisecond):
		}
	}
}
