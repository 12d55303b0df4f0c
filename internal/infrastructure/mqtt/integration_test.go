//go:build integration

package mqtt

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/knx-statemonitor/internal/infrastructure/config"
)

// Integration tests need a running MQTT broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -count=1 -v ./internal/infrastructure/mqtt/...

func integrationConfig(clientID string) config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: clientID,
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

func connectTest(t *testing.T, clientID, device string) *Client {
	t.Helper()
	client, err := Connect(integrationConfig(clientID), Topics{Device: device})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestIntegration_Connect(t *testing.T) {
	client := connectTest(t, "statemonitor-int-connect", "int-connect")

	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
}

func TestIntegration_ConnectRefused(t *testing.T) {
	cfg := integrationConfig("statemonitor-int-refused")
	cfg.Broker.Port = 19999

	_, err := Connect(cfg, Topics{Device: "refused"})
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestIntegration_OnlineStatusRetained(t *testing.T) {
	connectTest(t, "statemonitor-int-status", "int-status")
	observer := connectTest(t, "statemonitor-int-observer", "int-observer")

	received := make(chan string, 1)
	var once sync.Once
	err := observer.Subscribe(Topics{Device: "int-status"}.Status(), 1, func(_ string, p []byte) error {
		once.Do(func() { received <- string(p) })
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	select {
	case msg := <-received:
		if !strings.Contains(msg, `"status":"online"`) {
			t.Errorf("status payload = %s, want online", msg)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for retained status")
	}
}

func TestIntegration_MessageRoundtrip(t *testing.T) {
	pub := connectTest(t, "statemonitor-int-pub", "int-pub")
	sub := connectTest(t, "statemonitor-int-sub", "int-sub")

	topic := Topics{Device: "int-pub"}.Event()
	expected := `{"index":3,"port":1,"channel":3,"type":"button","event":"double"}`

	received := make(chan string, 1)
	var once sync.Once
	err := sub.Subscribe(TopicPrefix+"/+/stat", 1, func(got string, p []byte) error {
		if got == topic {
			once.Do(func() { received <- string(p) })
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	if err := pub.Publish(topic, []byte(expected), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case msg := <-received:
		if msg != expected {
			t.Errorf("received = %q, want %q", msg, expected)
		}
	case <-time.After(5 * time.Second):
		t.Error("timeout waiting for message")
	}
}

func TestIntegration_PublishAfterClose(t *testing.T) {
	client, err := Connect(integrationConfig("statemonitor-int-closed"), Topics{Device: "int-closed"})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	client.Close()

	if err := client.Publish("statemonitor/int-closed/stat", []byte("x"), 1, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
}
