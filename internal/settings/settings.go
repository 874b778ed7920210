// Package settings loads, validates and stores the broker connection record.
//
// The record is a small JSON object with four string fields. It is written by
// the provisioning flow and read before every connection attempt. A record
// that is missing, corrupt or fails validation means provisioning must run
// again; nothing here ever attempts a connection with partial settings.
package settings

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// DefaultPort is used when the record has no port field.
const DefaultPort = "1883"

// Record is the persisted form. Every field is a string, including the port.
type Record struct {
	Server   string `json:"mqtt_server"`
	Port     string `json:"mqtt_port"`
	User     string `json:"mqtt_user"`
	Password string `json:"mqtt_password"`
}

// Defaults returns the record used when a field, or the whole record, is absent.
func Defaults() Record {
	return Record{Port: DefaultPort}
}

// ConnectionSettings are validated settings, ready for the transport.
type ConnectionSettings struct {
	Address  string
	Port     int
	Username string
	Password string
}

// BrokerURL returns the address in the form paho expects.
func (c ConnectionSettings) BrokerURL() string {
	return fmt.Sprintf("tcp://%s:%d", c.Address, c.Port)
}

// Decode parses a stored record. Each field falls back to its default
// independently, so a partially written record still decodes. A field that
// is present but not a JSON string also takes its default.
//
// Unparseable data returns Defaults() and an error wrapping ErrNoRecord.
func Decode(data []byte) (Record, error) {
	r := Defaults()

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(bytes.TrimSpace(data), &fields); err != nil {
		return r, fmt.Errorf("%w: %v", ErrNoRecord, err)
	}
	if fields == nil {
		// JSON null
		return r, fmt.Errorf("%w: empty document", ErrNoRecord)
	}

	readString(fields, "mqtt_server", &r.Server)
	readString(fields, "mqtt_port", &r.Port)
	readString(fields, "mqtt_user", &r.User)
	readString(fields, "mqtt_password", &r.Password)
	return r, nil
}

func readString(fields map[string]json.RawMessage, key string, dst *string) {
	raw, ok := fields[key]
	if !ok {
		return
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return
	}
	*dst = s
}

// Encode serialises a record with exactly the four persisted fields.
func Encode(r Record) ([]byte, error) {
	return json.Marshal(r)
}

// Validate applies the connection invariant: a non-empty server and a port
// that is a plain decimal integer in [1, 65535]. An empty port means
// DefaultPort. Any violation discards the whole record and returns an error
// wrapping ErrInvalid.
func Validate(r Record) (ConnectionSettings, error) {
	if r.Server == "" {
		return ConnectionSettings{}, fmt.Errorf("%w: server address is empty", ErrInvalid)
	}
	if r.Port == "" {
		r.Port = DefaultPort
	}
	port, ok := parsePort(r.Port)
	if !ok {
		return ConnectionSettings{}, fmt.Errorf("%w: port %q is not in 1-65535", ErrInvalid, r.Port)
	}
	return ConnectionSettings{
		Address:  r.Server,
		Port:     port,
		Username: r.User,
		Password: r.Password,
	}, nil
}

// parsePort accepts only ASCII digits, so "+80", " 80" and "80x" are rejected.
func parsePort(s string) (int, bool) {
	if s == "" || len(s) > 5 {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 65535 {
		return 0, false
	}
	return n, true
}
