package command

import "strings"

// Classify maps a raw payload to an Action for the given zone.
//
// Zones outside [1, zoneCount] are always ignored, whatever the payload.
// "ON"/"OFF" match case-insensitively; "1"/"0" match exactly.
func Classify(zone, zoneCount int, payload []byte) Action {
	if zone < 1 || zone > zoneCount {
		return ActionIgnore
	}

	msg := string(Truncate(payload))
	switch {
	case strings.EqualFold(msg, "ON") || msg == "1":
		return ActionActivate
	case strings.EqualFold(msg, "OFF") || msg == "0":
		return ActionDeactivate
	default:
		return ActionIgnore
	}
}

// Truncate caps payload at MaxPayloadLen bytes. It never copies.
func Truncate(payload []byte) []byte {
	if len(payload) > MaxPayloadLen {
		return payload[:MaxPayloadLen]
	}
	return payload
}
