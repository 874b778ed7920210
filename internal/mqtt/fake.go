package mqtt

import (
	"sync"

	"github.com/sweeney/sprinkler-controller/internal/settings"
)

// Publication is one recorded Publish call.
type Publication struct {
	Topic    string
	Payload  []byte
	Retained bool
}

// FakeTransport records calls for test assertions.
// Only Deliver, Notify and Drain are safe for concurrent use.
type FakeTransport struct {
	// Connects records the settings of every Connect attempt, failed or not.
	Connects []settings.ConnectionSettings

	// Subscriptions holds every filter passed to Subscribe.
	Subscriptions []string

	// Published holds every successful publish in order.
	Published []Publication

	// ConnectError, if set, is returned by Connect.
	ConnectError error

	// SubscribeError, if set, is returned by Subscribe.
	SubscribeError error

	// PublishError, if set, is returned by Publish.
	PublishError error

	// TopicErrors makes Publish fail for specific topics only.
	TopicErrors map[string]error

	// OnPublish, if set, runs at the start of every Publish call.
	OnPublish func(topic string)

	// Connected controls IsConnected. Connect sets it on success.
	Connected bool

	// Disconnects counts Disconnect calls.
	Disconnects int

	mu     sync.Mutex
	queue  []Message
	notify chan struct{}
}

// NewFakeTransport creates a disconnected FakeTransport.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{notify: make(chan struct{}, 1)}
}

// Connect records the attempt.
func (f *FakeTransport) Connect(s settings.ConnectionSettings) error {
	f.Connects = append(f.Connects, s)
	if f.ConnectError != nil {
		f.Connected = false
		return f.ConnectError
	}
	f.Connected = true
	return nil
}

// Subscribe records the filter.
func (f *FakeTransport) Subscribe(filter string) error {
	if !f.Connected {
		return ErrNotConnected
	}
	if f.SubscribeError != nil {
		return f.SubscribeError
	}
	f.Subscriptions = append(f.Subscriptions, filter)
	return nil
}

// Publish records the publication.
func (f *FakeTransport) Publish(topic string, payload []byte, retained bool) error {
	if f.OnPublish != nil {
		f.OnPublish(topic)
	}
	if !f.Connected {
		return ErrNotConnected
	}
	if f.PublishError != nil {
		return f.PublishError
	}
	if err, ok := f.TopicErrors[topic]; ok {
		return err
	}
	p := make([]byte, len(payload))
	copy(p, payload)
	f.Published = append(f.Published, Publication{Topic: topic, Payload: p, Retained: retained})
	return nil
}

// IsConnected returns Connected.
func (f *FakeTransport) IsConnected() bool {
	return f.Connected
}

// Disconnect marks the fake disconnected.
func (f *FakeTransport) Disconnect() {
	f.Disconnects++
	f.Connected = false
}

// Deliver queues an inbound message as if the broker had sent it.
func (f *FakeTransport) Deliver(topic, payload string) {
	f.mu.Lock()
	f.queue = append(f.queue, Message{Topic: topic, Payload: []byte(payload)})
	f.mu.Unlock()
	select {
	case f.notify <- struct{}{}:
	default:
	}
}

// Notify signals queued messages.
func (f *FakeTransport) Notify() <-chan struct{} {
	return f.notify
}

// Drain returns queued messages.
func (f *FakeTransport) Drain() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.queue
	f.queue = nil
	return msgs
}

// PublishedTo returns the payloads published to topic, in order.
func (f *FakeTransport) PublishedTo(topic string) []string {
	var out []string
	for _, p := range f.Published {
		if p.Topic == topic {
			out = append(out, string(p.Payload))
		}
	}
	return out
}

// Reset clears recorded calls and injected errors. Connected is kept.
func (f *FakeTransport) Reset() {
	f.Connects = nil
	f.Subscriptions = nil
	f.Published = nil
	f.ConnectError = nil
	f.SubscribeError = nil
	f.PublishError = nil
	f.TopicErrors = nil
	f.OnPublish = nil
	f.Disconnects = 0
	f.mu.Lock()
	f.queue = nil
	f.mu.Unlock()
}
