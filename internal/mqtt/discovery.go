package mqtt

import (
	"encoding/json"
)

// availabilityTemplate maps both the plain "online" marker and the JSON
// status snapshot, which carries "status":"online", to available.
const availabilityTemplate = "{{ 'online' if 'online' in value else 'offline' }}"

// Device groups every zone under one device in the hub.
type Device struct {
	ID    string
	Name  string
	Model string
}

// DiscoveryPayload is the hub discovery document for one zone switch.
type DiscoveryPayload struct {
	Name                 string          `json:"name"`
	UniqueID             string          `json:"unique_id"`
	CommandTopic         string          `json:"command_topic"`
	StateTopic           string          `json:"state_topic"`
	AvailabilityTopic    string          `json:"availability_topic"`
	AvailabilityTemplate string          `json:"availability_template"`
	PayloadOn            string          `json:"payload_on"`
	PayloadOff           string          `json:"payload_off"`
	StateOn              string          `json:"state_on"`
	StateOff             string          `json:"state_off"`
	Optimistic           bool            `json:"optimistic"`
	QoS                  int             `json:"qos"`
	Retain               bool            `json:"retain"`
	Device               DiscoveryDevice `json:"device"`
}

// DiscoveryDevice is the device block of a discovery document.
type DiscoveryDevice struct {
	Identifiers []string `json:"identifiers"`
	Name        string   `json:"name"`
	Model       string   `json:"model,omitempty"`
}

// FormatDiscovery creates the discovery document for zone. The device is
// authoritative: the hub must wait for the retained state confirmation.
func FormatDiscovery(t Topics, dev Device, zone int, name string, qos byte) ([]byte, error) {
	payload := DiscoveryPayload{
		Name:                 name,
		UniqueID:             UniqueID(zone),
		CommandTopic:         t.Command(zone),
		StateTopic:           t.State(zone),
		AvailabilityTopic:    t.Status(),
		AvailabilityTemplate: availabilityTemplate,
		PayloadOn:            "ON",
		PayloadOff:           "OFF",
		StateOn:              "ON",
		StateOff:             "OFF",
		Optimistic:           false,
		QoS:                  int(qos),
		Retain:               true,
		Device: DiscoveryDevice{
			Identifiers: []string{dev.ID},
			Name:        dev.Name,
			Model:       dev.Model,
		},
	}
	return json.Marshal(payload)
}
