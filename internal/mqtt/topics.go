package mqtt

import (
	"strconv"
)

// Topics builds every topic the controller uses from two prefixes.
//
//	<prefix>zone/<N>/command        inbound commands
//	<prefix>zone/<N>/state          retained ON/OFF confirmations
//	<prefix>status                  availability and status snapshots
//	<discovery>/switch/<id>/config  hub discovery
type Topics struct {
	// Prefix ends with "/", e.g. "home/sprinkler/".
	Prefix string

	// Discovery is the hub's discovery root, e.g. "homeassistant".
	Discovery string
}

// Command returns the command topic for zone.
func (t Topics) Command(zone int) string {
	return t.Prefix + "zone/" + strconv.Itoa(zone) + "/command"
}

// CommandFilter matches the command topic of every zone.
func (t Topics) CommandFilter() string {
	return t.Prefix + "zone/+/command"
}

// State returns the retained state topic for zone.
func (t Topics) State(zone int) string {
	return t.Prefix + "zone/" + strconv.Itoa(zone) + "/state"
}

// Status returns the availability and status topic.
func (t Topics) Status() string {
	return t.Prefix + "status"
}

// DiscoveryConfig returns the discovery config topic for zone.
func (t Topics) DiscoveryConfig(zone int) string {
	return t.Discovery + "/switch/" + UniqueID(zone) + "/config"
}

// UniqueID is the stable hub identifier for zone.
func UniqueID(zone int) string {
	return "sprinkler_zone" + strconv.Itoa(zone)
}
