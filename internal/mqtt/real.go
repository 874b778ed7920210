package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/sprinkler-controller/internal/logging"
	"github.com/sweeney/sprinkler-controller/internal/settings"
)

const (
	defaultConnectTimeout    = 10 * time.Second
	defaultPublishTimeout    = 5 * time.Second
	defaultKeepAlive         = 30 * time.Second
	defaultDisconnectQuiesce = 250 // milliseconds
)

// Options configure a PahoTransport. Broker address and credentials are
// supplied per Connect.
type Options struct {
	ClientID       string
	WillTopic      string
	QoS            byte
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
	InboxSize      int
}

// PahoTransport is a Transport on paho.mqtt.golang.
//
// Automatic reconnection is off: the control loop owns the retry schedule
// and starts a fresh session on every Connect, so the last-will, the
// subscription and the state replay always happen together.
type PahoTransport struct {
	opts  Options
	log   *logging.Logger
	inbox *inbox

	mu     sync.Mutex
	client paho.Client
}

// NewPahoTransport creates a disconnected transport.
func NewPahoTransport(opts Options, log *logging.Logger) *PahoTransport {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = defaultPublishTimeout
	}
	if opts.InboxSize <= 0 {
		opts.InboxSize = DefaultInboxSize
	}
	return &PahoTransport{
		opts:  opts,
		log:   log.With("component", "mqtt"),
		inbox: newInbox(opts.InboxSize),
	}
}

// buildClientOptions creates paho options for one session.
func buildClientOptions(o Options, s settings.ConnectionSettings) *paho.ClientOptions {
	opts := paho.NewClientOptions().
		AddBroker(s.BrokerURL()).
		SetClientID(o.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetConnectTimeout(o.ConnectTimeout).
		SetWriteTimeout(o.PublishTimeout).
		SetKeepAlive(defaultKeepAlive).
		SetOrderMatters(true)

	if s.Username != "" {
		opts.SetUsername(s.Username)
		opts.SetPassword(s.Password)
	}

	// Retained so late subscribers see the device went away.
	opts.SetWill(o.WillTopic, PayloadOffline, o.QoS, true)

	return opts
}

// Connect opens a new session to the broker in s.
func (t *PahoTransport) Connect(s settings.ConnectionSettings) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.client != nil {
		t.client.Disconnect(0)
		t.client = nil
	}

	opts := buildClientOptions(t.opts, s)
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		t.log.Warn("connection lost", "error", err)
	})

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(t.opts.ConnectTimeout) {
		client.Disconnect(0)
		return fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, t.opts.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	t.client = client
	return nil
}

// Subscribe queues every message matching filter for Drain.
func (t *PahoTransport) Subscribe(filter string) error {
	t.mu.Lock()
	client := t.client
	t.mu.Unlock()

	if client == nil || !client.IsConnectionOpen() {
		return ErrNotConnected
	}

	token := client.Subscribe(filter, t.opts.QoS, func(_ paho.Client, m paho.Message) {
		payload := make([]byte, len(m.Payload()))
		copy(payload, m.Payload())
		t.inbox.push(Message{Topic: m.Topic(), Payload: payload})
	})
	if !token.WaitTimeout(t.opts.PublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, t.opts.PublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	return nil
}

// Publish sends payload at the configured QoS.
func (t *PahoTransport) Publish(topic string, payload []byte, retained bool) error {
	t.mu.Lock()
	client := t.client
	t.mu.Unlock()

	if client == nil || !client.IsConnectionOpen() {
		return ErrNotConnected
	}

	token := client.Publish(topic, t.opts.QoS, retained, payload)
	if !token.WaitTimeout(t.opts.PublishTimeout) {
		return fmt.Errorf("%w: %s: timeout after %v", ErrPublishFailed, topic, t.opts.PublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}
	return nil
}

// IsConnected reports whether the current session is open.
func (t *PahoTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client != nil && t.client.IsConnectionOpen()
}

// Disconnect closes the session without triggering the last-will.
func (t *PahoTransport) Disconnect() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.client != nil {
		t.client.Disconnect(defaultDisconnectQuiesce)
		t.client = nil
	}
}

// Notify signals that messages are waiting.
func (t *PahoTransport) Notify() <-chan struct{} {
	return t.inbox.notify
}

// Drain returns queued messages oldest first.
func (t *PahoTransport) Drain() []Message {
	msgs, dropped := t.inbox.drain()
	if dropped > 0 {
		t.log.Warn("inbound queue overflowed, oldest messages dropped", "dropped", dropped)
	}
	return msgs
}
