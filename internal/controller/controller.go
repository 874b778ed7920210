// Package controller runs the sprinkler control plane: command dispatch,
// the safety sweep, and the broker connection lifecycle.
//
// A Controller is driven from one goroutine. OnTick runs the sweep first,
// then the reconnect and status timers; HandleMessage applies one inbound
// command and publishes its confirmation before returning. Time is always
// passed in so every window is testable with a fake clock.
//
// Session setup blocks on the broker. Between setup steps the controller
// rereads the clock, sweeps any zone that has reached the ceiling, and
// abandons the session rather than start a step that could outlast the
// next ceiling deadline.
package controller

import (
	"context"
	"errors"
	"time"

	"github.com/sweeney/sprinkler-controller/internal/command"
	"github.com/sweeney/sprinkler-controller/internal/history"
	"github.com/sweeney/sprinkler-controller/internal/logging"
	"github.com/sweeney/sprinkler-controller/internal/mqtt"
	"github.com/sweeney/sprinkler-controller/internal/settings"
	"github.com/sweeney/sprinkler-controller/internal/status"
	"github.com/sweeney/sprinkler-controller/internal/zone"
)

const (
	settingsTimeout = 2 * time.Second
	historyTimeout  = 2 * time.Second
)

// State is the connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnected    State = "connected"
)

// SettingsSource yields validated broker settings or an error meaning
// provisioning must run.
type SettingsSource interface {
	Resolve(ctx context.Context) (settings.ConnectionSettings, error)
}

// RunRecorder persists completed runs.
type RunRecorder interface {
	Record(ctx context.Context, r history.Run) error
}

// Telemetry receives completed runs and periodic zone samples.
type Telemetry interface {
	WriteRun(r history.Run)
	WriteZoneStates(zones []zone.Zone, now time.Time)
}

// Config holds the controller's topic layout and timers.
type Config struct {
	Topics            mqtt.Topics
	Device            mqtt.Device
	QoS               byte
	ReconnectInterval time.Duration
	StatusInterval    time.Duration

	// ConnectTimeout and StepTimeout bound how long Connect and a single
	// subscribe or publish can block.
	ConnectTimeout time.Duration
	StepTimeout    time.Duration

	// Clock is read between session setup steps. Nil means the time passed
	// to OnTick is used throughout.
	Clock func() time.Time
}

// errCutoffDue aborts session setup so the safety sweep is not delayed.
var errCutoffDue = errors.New("safety cutoff due during session setup")

// Controller owns the zone monitor and the transport.
// Not safe for concurrent use.
type Controller struct {
	cfg       Config
	zones     *zone.Monitor
	transport mqtt.Transport
	settings  SettingsSource
	tracker   *status.Tracker
	log       *logging.Logger

	history   RunRecorder
	telemetry Telemetry

	state        State
	seen         time.Time
	attempted    bool
	lastAttempt  time.Time
	lastStatus   time.Time
	provisioning bool
}

// New creates a disconnected Controller. The first OnTick attempts a
// connection immediately.
func New(cfg Config, zones *zone.Monitor, transport mqtt.Transport, src SettingsSource, tracker *status.Tracker, log *logging.Logger) *Controller {
	c := &Controller{
		cfg:       cfg,
		zones:     zones,
		transport: transport,
		settings:  src,
		tracker:   tracker,
		log:       log.With("component", "controller"),
		state:     StateDisconnected,
	}
	tracker.SetZones(zones.Zones())
	return c
}

// SetHistory enables the run log.
func (c *Controller) SetHistory(r RunRecorder) {
	c.history = r
}

// SetTelemetry enables telemetry export.
func (c *Controller) SetTelemetry(t Telemetry) {
	c.telemetry = t
}

// State returns the connection state.
func (c *Controller) State() State {
	return c.state
}

// ProvisioningRequired reports whether the last connection attempt found
// no usable settings record.
func (c *Controller) ProvisioningRequired() bool {
	return c.provisioning
}

// NextSweep returns how long after the latest observed time the earliest
// running zone reaches the ceiling. The caller should run OnTick then.
func (c *Controller) NextSweep() (time.Duration, bool) {
	at, ok := c.zones.NextDeadline(c.seen)
	if !ok {
		return 0, false
	}
	return at.Sub(c.seen), true
}

// OnTick runs one control-loop step: safety sweep, connection check,
// backoff-gated reconnect, then the periodic status publish.
func (c *Controller) OnTick(now time.Time) {
	c.observe(now)
	c.applyChanges(c.zones.Sweep(now))

	if c.state == StateConnected && !c.transport.IsConnected() {
		c.markDisconnected(now, errors.New("connection lost"))
	}

	if c.state == StateDisconnected && c.reconnectDue(now) {
		c.connect(now)
	}

	if c.state == StateConnected && now.Sub(c.lastStatus) >= c.cfg.StatusInterval {
		c.publishStatus(now)
	}
}

// HandleMessage decodes and applies one inbound command. It returns the
// resulting change, or false if the message was ignored.
func (c *Controller) HandleMessage(topic string, payload []byte, now time.Time) (zone.Change, bool) {
	c.observe(now)
	msg := command.Decode(topic, payload, c.zones.Count())
	if msg.Action == command.ActionIgnore {
		c.log.Debug("ignored message", "topic", topic, "zone", msg.Zone)
		return zone.Change{}, false
	}

	change, ok := c.zones.Apply(msg.Zone, msg.Action, now)
	if !ok {
		return zone.Change{}, false
	}
	c.applyChanges([]zone.Change{change})
	return change, true
}

// Shutdown switches every zone off, publishes the final states and the
// offline marker, and closes the session.
func (c *Controller) Shutdown(now time.Time) {
	c.observe(now)
	c.applyChanges(c.zones.AllOff(now, zone.CauseShutdown))

	if c.state == StateConnected {
		c.withdraw()
	}
	c.transport.Disconnect()
	c.state = StateDisconnected
	c.tracker.SetMQTT(false, "")
	c.log.Info("shutdown complete")
}

func (c *Controller) reconnectDue(now time.Time) bool {
	return !c.attempted || now.Sub(c.lastAttempt) >= c.cfg.ReconnectInterval
}

// connect runs the full session setup. Any failure leaves the controller
// disconnected with the attempt time recorded for backoff.
func (c *Controller) connect(now time.Time) {
	if !c.budgetAllows(now, settingsTimeout+c.cfg.ConnectTimeout) {
		c.log.Debug("connect deferred until after safety cutoff")
		return
	}
	c.attempted = true
	c.lastAttempt = now

	ctx, cancel := context.WithTimeout(context.Background(), settingsTimeout)
	cs, err := c.settings.Resolve(ctx)
	cancel()
	if err != nil {
		c.setProvisioning(true, err)
		return
	}
	c.setProvisioning(false, nil)

	log := c.log.With("broker", cs.BrokerURL())
	if err := c.guard(now, c.cfg.ConnectTimeout); err != nil {
		log.Info("connect deferred", "reason", err)
		return
	}
	if err := c.transport.Connect(cs); err != nil {
		log.Warn("connect failed", "error", err)
		return
	}

	announced, err := c.establish(now)
	if err != nil {
		log.Warn("session setup failed", "error", err)
		if announced {
			c.withdraw()
		}
		c.transport.Disconnect()
		return
	}

	c.state = StateConnected
	c.lastStatus = now
	c.tracker.SetMQTT(true, cs.BrokerURL())
	log.Info("connected", "zones", c.zones.Count())
}

// establish subscribes, then publishes availability, every zone state and
// every discovery document, in that order. announced reports whether the
// online marker went out before a failure.
func (c *Controller) establish(now time.Time) (announced bool, err error) {
	t := c.cfg.Topics

	if err := c.guard(now, c.cfg.StepTimeout); err != nil {
		return false, err
	}
	if err := c.transport.Subscribe(t.CommandFilter()); err != nil {
		return false, err
	}
	if err := c.guard(now, c.cfg.StepTimeout); err != nil {
		return false, err
	}
	if err := c.transport.Publish(t.Status(), []byte(mqtt.PayloadOnline), true); err != nil {
		return false, err
	}

	for i := 1; i <= c.zones.Count(); i++ {
		if err := c.guard(now, c.cfg.StepTimeout); err != nil {
			return true, err
		}
		// Reread per zone: a guard sweep may have changed it.
		z := c.zones.Zones()[i-1]
		if err := c.transport.Publish(t.State(z.Index), []byte(z.State), true); err != nil {
			return true, err
		}
	}
	for _, z := range c.zones.Zones() {
		if err := c.guard(now, c.cfg.StepTimeout); err != nil {
			return true, err
		}
		payload, err := mqtt.FormatDiscovery(t, c.cfg.Device, z.Index, z.Name, c.cfg.QoS)
		if err != nil {
			return true, err
		}
		if err := c.transport.Publish(t.DiscoveryConfig(z.Index), payload, true); err != nil {
			return true, err
		}
	}
	return true, nil
}

// guard runs before each blocking setup step. It sweeps zones that reached
// the ceiling while setup was blocked, and fails if a run was cut off or if
// a step of length d could end after the next ceiling deadline.
func (c *Controller) guard(start time.Time, d time.Duration) error {
	now := start
	if c.cfg.Clock != nil {
		now = c.cfg.Clock()
	}
	c.observe(now)

	if c.zones.Due(now) {
		changes := c.zones.Sweep(now)
		c.applyChanges(changes)
		for _, ch := range changes {
			if ch.Ended() {
				return errCutoffDue
			}
		}
	}
	if !c.budgetAllows(now, d) {
		return errCutoffDue
	}
	return nil
}

// budgetAllows reports whether a blocking step of length d started at now
// ends no later than the next ceiling deadline.
func (c *Controller) budgetAllows(now time.Time, d time.Duration) bool {
	at, ok := c.zones.NextDeadline(now)
	return !ok || !now.Add(d).After(at)
}

// withdraw replaces a retained online marker after a failed setup. A clean
// disconnect suppresses the will, so nothing else would.
func (c *Controller) withdraw() {
	if !c.transport.IsConnected() {
		return
	}
	if err := c.transport.Publish(c.cfg.Topics.Status(), []byte(mqtt.PayloadOffline), true); err != nil {
		c.log.Warn("failed to withdraw online marker", "error", err)
	}
}

func (c *Controller) observe(now time.Time) {
	if now.After(c.seen) {
		c.seen = now
	}
}

func (c *Controller) setProvisioning(required bool, err error) {
	if required && !c.provisioning {
		c.log.Warn("no usable broker settings, provisioning required", "error", err)
	} else if required {
		c.log.Debug("still waiting for provisioning", "error", err)
	} else if c.provisioning {
		c.log.Info("broker settings available")
	}
	c.provisioning = required
	c.tracker.SetProvisioningRequired(required)
}

func (c *Controller) markDisconnected(now time.Time, err error) {
	c.log.Warn("disconnected", "error", err)
	c.state = StateDisconnected
	c.attempted = true
	c.lastAttempt = now
	c.tracker.SetMQTT(false, "")
}

// applyChanges publishes confirmations and records completed runs.
func (c *Controller) applyChanges(changes []zone.Change) {
	if len(changes) == 0 {
		return
	}

	for _, ch := range changes {
		c.logChange(ch)
		c.tracker.RecordChange(ch)
		c.publishState(ch)
		c.recordRun(ch)
	}
	c.tracker.SetZones(c.zones.Zones())
}

func (c *Controller) logChange(ch zone.Change) {
	args := []any{"zone", ch.Zone, "name", ch.Name, "state", ch.State, "cause", ch.Cause}
	switch {
	case ch.Err != nil:
		c.log.Error("zone actuation failed", append(args, "error", ch.Err)...)
	case ch.Cause == zone.CauseSafety:
		c.log.Warn("zone forced off at max runtime", append(args, "ran", ch.RunTime())...)
	case ch.Previous != ch.State:
		c.log.Info("zone changed", args...)
	default:
		c.log.Debug("zone unchanged", args...)
	}
}

func (c *Controller) publishState(ch zone.Change) {
	if c.state != StateConnected {
		return
	}
	err := c.transport.Publish(c.cfg.Topics.State(ch.Zone), []byte(ch.State), true)
	if err == nil {
		return
	}
	c.log.Warn("failed to publish zone state", "zone", ch.Zone, "error", err)
	if !c.transport.IsConnected() {
		c.markDisconnected(ch.At, err)
	}
}

func (c *Controller) recordRun(ch zone.Change) {
	run, ok := history.FromChange(ch)
	if !ok {
		return
	}
	if c.history != nil {
		ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
		if err := c.history.Record(ctx, run); err != nil {
			c.log.Warn("failed to record run", "zone", run.Zone, "error", err)
		}
		cancel()
	}
	if c.telemetry != nil {
		c.telemetry.WriteRun(run)
	}
}

func (c *Controller) publishStatus(now time.Time) {
	c.lastStatus = now
	zones := c.zones.Zones()
	c.tracker.SetZones(zones)

	payload := status.FormatMQTT(c.tracker.SnapshotAt(now))
	if err := c.transport.Publish(c.cfg.Topics.Status(), payload, true); err != nil {
		c.log.Warn("failed to publish status", "error", err)
		if !c.transport.IsConnected() {
			c.markDisconnected(now, err)
		}
		return
	}
	if c.telemetry != nil {
		c.telemetry.WriteZoneStates(zones, now)
	}
}
