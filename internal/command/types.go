// Package command turns inbound MQTT topic/payload pairs into zone actions.
// This package has NO external dependencies and performs no I/O.
package command

// Action is the classified intent of one inbound command message.
type Action string

const (
	ActionActivate   Action = "ACTIVATE"
	ActionDeactivate Action = "DEACTIVATE"
	ActionIgnore     Action = "IGNORE"
)

// MaxPayloadLen is the number of payload bytes considered for classification.
// Longer payloads are truncated before comparison. Every valid token is shorter.
const MaxPayloadLen = 7

// Message is one decoded command. It is never persisted.
type Message struct {
	Zone   int
	Action Action
}

// Decode parses topic and classifies payload in one step.
// zoneCount bounds the valid zone range [1, zoneCount].
func Decode(topic string, payload []byte, zoneCount int) Message {
	zone, ok := ParseTopic(topic)
	if !ok {
		return Message{Action: ActionIgnore}
	}
	return Message{
		Zone:   zone,
		Action: Classify(zone, zoneCount, payload),
	}
}
