// Package mqtt is the broker boundary: topic layout, discovery payloads, and
// a Transport with a paho implementation and a fake for tests.
package mqtt

import (
	"github.com/sweeney/sprinkler-controller/internal/settings"
)

// Availability markers published on the status topic.
const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

// Message is an inbound publish.
type Message struct {
	Topic   string
	Payload []byte
}

// Transport is a broker connection as the control loop sees it.
//
// Connect and Publish block for at most the transport's configured timeouts.
// Inbound messages are queued by the transport; Notify signals that Drain
// has something to return.
type Transport interface {
	// Connect opens a new session. The last-will is registered as part of
	// the connect. Any previous session is dropped first.
	Connect(s settings.ConnectionSettings) error

	// Subscribe registers a topic filter whose messages are queued for Drain.
	Subscribe(filter string) error

	// Publish sends payload to topic.
	Publish(topic string, payload []byte, retained bool) error

	// IsConnected reports whether the session is up.
	IsConnected() bool

	// Disconnect closes the session cleanly; the last-will is not sent.
	Disconnect()

	// Notify receives a value whenever new messages are queued.
	Notify() <-chan struct{}

	// Drain returns queued messages in arrival order and empties the queue.
	Drain() []Message
}
