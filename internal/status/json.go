package status

import (
	"encoding/json"
	"time"
)

// MQTTStatus is the periodic snapshot published on the status topic.
type MQTTStatus struct {
	Status        string       `json:"status"`
	Zones         []ZoneJSON   `json:"zones"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	Network       *NetworkJSON `json:"network,omitempty"`
}

// ZoneJSON is one zone in a status payload. The web view adds timing.
type ZoneJSON struct {
	Zone             int    `json:"zone"`
	Name             string `json:"name"`
	State            string `json:"state"`
	ActivatedAt      string `json:"activated_at,omitempty"`
	RemainingSeconds *int64 `json:"remaining_seconds,omitempty"`
}

// StatusJSON is the top-level JSON envelope for the web endpoint.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Zones         []ZoneJSON   `json:"zones"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTConn     `json:"mqtt"`
	Counts        CountsJSON   `json:"run_counts"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// MQTTConn reports MQTT connection state.
type MQTTConn struct {
	Connected            bool   `json:"connected"`
	Broker               string `json:"broker"`
	ProvisioningRequired bool   `json:"provisioning_required"`
}

// CountsJSON is the JSON representation of run counts.
type CountsJSON struct {
	CommandOff  int `json:"command_off"`
	SafetyOff   int `json:"safety_off"`
	ShutdownOff int `json:"shutdown_off"`
	Failures    int `json:"failures"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	ClientID          string `json:"client_id"`
	Driver            string `json:"driver"`
	MaxRuntimeSeconds int64  `json:"max_runtime_seconds"`
	SweepMs           int64  `json:"sweep_ms"`
	StatusIntervalMs  int64  `json:"status_interval_ms"`
	HTTPAddr          string `json:"http_addr"`
}

func uptimeSeconds(snap Snapshot) int64 {
	return int64(snap.Uptime().Truncate(time.Second).Seconds())
}

func buildNetwork(snap Snapshot) *NetworkJSON {
	if snap.Network == nil {
		return nil
	}
	return &NetworkJSON{
		Type:       snap.Network.Type,
		IP:         snap.Network.IP,
		Status:     snap.Network.Status,
		Gateway:    snap.Network.Gateway,
		WifiStatus: snap.Network.WifiStatus,
		SSID:       snap.Network.SSID,
	}
}

// FormatMQTT returns the compact status payload for the status topic.
func FormatMQTT(snap Snapshot) []byte {
	zones := make([]ZoneJSON, len(snap.Zones))
	for i, z := range snap.Zones {
		zones[i] = ZoneJSON{Zone: z.Index, Name: z.Name, State: string(z.State)}
	}

	data, _ := json.Marshal(MQTTStatus{
		Status:        "online",
		Zones:         zones,
		UptimeSeconds: uptimeSeconds(snap),
		Network:       buildNetwork(snap),
	})
	return data
}

// FormatJSON returns the detailed status for the web endpoint.
func FormatJSON(snap Snapshot) []byte {
	zones := make([]ZoneJSON, len(snap.Zones))
	for i, z := range snap.Zones {
		zj := ZoneJSON{Zone: z.Index, Name: z.Name, State: string(z.State)}
		if !z.ActivatedAt.IsZero() {
			zj.ActivatedAt = z.ActivatedAt.UTC().Format(time.RFC3339)
			left := int64(snap.Remaining(z).Seconds())
			zj.RemainingSeconds = &left
		}
		zones[i] = zj
	}

	inner := StatusInner{
		Zones:         zones,
		UptimeSeconds: uptimeSeconds(snap),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT: MQTTConn{
			Connected:            snap.MQTTConnected,
			Broker:               snap.Broker,
			ProvisioningRequired: snap.ProvisioningRequired,
		},
		Counts: CountsJSON{
			CommandOff:  snap.Counts.CommandOff,
			SafetyOff:   snap.Counts.SafetyOff,
			ShutdownOff: snap.Counts.ShutdownOff,
			Failures:    snap.Counts.Failures,
		},
		Network: buildNetwork(snap),
		Config: ConfigJSON{
			ClientID:          snap.Config.ClientID,
			Driver:            snap.Config.Driver,
			MaxRuntimeSeconds: int64(snap.Config.MaxRuntime.Seconds()),
			SweepMs:           snap.Config.SweepInterval.Milliseconds(),
			StatusIntervalMs:  snap.Config.StatusInterval.Milliseconds(),
			HTTPAddr:          snap.Config.HTTPAddr,
		},
	}

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}
