// Package status provides a thread-safe status tracker for the sprinkler daemon.
// The control loop writes it; HTTP handlers read it.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/sprinkler-controller/internal/zone"
)

// NetworkInfo contains network state as reported by pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	ClientID       string
	Driver         string
	MaxRuntime     time.Duration
	SweepInterval  time.Duration
	StatusInterval time.Duration
	HTTPAddr       string
}

// Counts tally completed runs by how they ended.
type Counts struct {
	CommandOff  int
	SafetyOff   int
	ShutdownOff int
	Failures    int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Zones                []zone.Zone
	Counts               Counts
	StartTime            time.Time
	Now                  time.Time
	MQTTConnected        bool
	Broker               string
	ProvisioningRequired bool
	Network              *NetworkInfo
	Config               Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Remaining returns how long z may still run before the safety cutoff.
func (s Snapshot) Remaining(z zone.Zone) time.Duration {
	if z.State != zone.StateOn {
		return 0
	}
	left := s.Config.MaxRuntime - s.Now.Sub(z.ActivatedAt)
	if left < 0 {
		return 0
	}
	return left
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// SetZones replaces the zone list. The slice is copied.
func (t *Tracker) SetZones(zones []zone.Zone) {
	cp := make([]zone.Zone, len(zones))
	copy(cp, zones)
	t.mu.Lock()
	t.snap.Zones = cp
	t.mu.Unlock()
}

// RecordChange counts a change that ended a run or failed.
func (t *Tracker) RecordChange(c zone.Change) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if c.Err != nil {
		t.snap.Counts.Failures++
		return
	}
	if !c.Ended() {
		return
	}
	switch c.Cause {
	case zone.CauseCommand:
		t.snap.Counts.CommandOff++
	case zone.CauseSafety:
		t.snap.Counts.SafetyOff++
	case zone.CauseShutdown:
		t.snap.Counts.ShutdownOff++
	}
}

// SetMQTT sets the MQTT connection status and the broker in use.
func (t *Tracker) SetMQTT(connected bool, broker string) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.snap.Broker = broker
	t.mu.Unlock()
}

// SetProvisioningRequired records whether the settings record is unusable.
func (t *Tracker) SetProvisioningRequired(required bool) {
	t.mu.Lock()
	t.snap.ProvisioningRequired = required
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy with Now set to the wall clock.
func (t *Tracker) Snapshot() Snapshot {
	return t.SnapshotAt(time.Now())
}

// SnapshotAt returns a point-in-time copy with Now set to now.
func (t *Tracker) SnapshotAt(now time.Time) Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Zones = make([]zone.Zone, len(t.snap.Zones))
	copy(s.Zones, t.snap.Zones)
	t.mu.RUnlock()
	s.Now = now
	return s
}
