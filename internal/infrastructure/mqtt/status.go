package mqtt

import (
	"encoding/json"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// statusQoS is used for every retained status message, LWT included.
const statusQoS = 1

// Status values on Topics.Status().
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// StatusMessage is the retained payload on Topics.Status().
type StatusMessage struct {
	Status    string `json:"status"`
	Device    string `json:"device"`
	ClientID  string `json:"client_id"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

func statusPayload(status, reason string, topics Topics, clientID string) []byte {
	// Marshal of a struct of strings cannot fail
	data, _ := json.Marshal(StatusMessage{ //nolint:errcheck // see above
		Status:    status,
		Device:    topics.Device,
		ClientID:  clientID,
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	return data
}

func onlinePayload(topics Topics, clientID string) []byte {
	return statusPayload(StatusOnline, "", topics, clientID)
}

func offlinePayload(topics Topics, clientID string) []byte {
	return statusPayload(StatusOffline, "graceful_shutdown", topics, clientID)
}

// configureLWT makes the broker publish a retained offline status if the
// monitor vanishes without Close.
func configureLWT(opts *pahomqtt.ClientOptions, topics Topics, clientID string) {
	opts.SetBinaryWill(topics.Status(),
		statusPayload(StatusOffline, "unexpected_disconnect", topics, clientID),
		statusQoS, true)
}
