package command

import "strings"

// Topic markers recognised by ParseTopic.
const (
	zoneMarker    = "/zone/"
	commandMarker = "/command"
)

// maxZoneIndex saturates absurdly long digit runs so they cannot overflow.
// Anything this large is already out of range for every zone count.
const maxZoneIndex = 1 << 20

// ParseTopic extracts the zone index from a topic of the form
// <prefix>zone/<N>/command.
//
// The index starts right after the first "/zone/" and ends at the first
// non-digit. The zone marker must follow a non-empty prefix, and a "/command"
// marker must appear somewhere after it; extra segments in between are
// tolerated. Returns ok=false when either marker is missing, when the topic
// starts with "/zone/", when "/command" only appears before "/zone/", or when
// the digit run is empty. An index of 0 is returned as-is and rejected by
// Classify.
func ParseTopic(topic string) (int, bool) {
	zonePos := strings.Index(topic, zoneMarker)
	if zonePos <= 0 {
		return 0, false
	}
	start := zonePos + len(zoneMarker)

	if !strings.Contains(topic[start:], commandMarker) {
		return 0, false
	}

	n := 0
	digits := 0
	for i := start; i < len(topic); i++ {
		c := topic[i]
		if c < '0' || c > '9' {
			break
		}
		digits++
		if n < maxZoneIndex {
			n = n*10 + int(c-'0')
		}
	}
	if digits == 0 {
		return 0, false
	}
	if n > maxZoneIndex {
		n = maxZoneIndex
	}
	return n, true
}
