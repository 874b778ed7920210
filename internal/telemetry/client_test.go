package telemetry

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/sweeney/sprinkler-controller/internal/config"
	"github.com/sweeney/sprinkler-controller/internal/history"
	"github.com/sweeney/sprinkler-controller/internal/zone"
)

var t0 = time.Date(2026, 6, 1, 6, 0, 0, 0, time.UTC)

func TestConnectDisabled(t *testing.T) {
	_, err := Connect(config.InfluxDBConfig{Enabled: false}, "dev")
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("got %v, want ErrDisabled", err)
	}
}

func TestRunPoint(t *testing.T) {
	r := history.Run{
		Zone: 2, Name: "Back Lawn",
		Start: t0, End: t0.Add(2 * time.Hour),
		Cause: zone.CauseSafety,
	}

	line := write.PointToLineProtocol(runPoint("sprinkler_controller", r), time.Second)

	for _, want := range []string{
		"zone_run,",
		"cause=safety_timeout",
		"device=sprinkler_controller",
		`name=Back\ Lawn`,
		"zone=2",
		"duration_s=7200",
		" 1780300800",
	} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
}

func TestStatePoints(t *testing.T) {
	zones := []zone.Zone{
		{Index: 1, Name: "Front Lawn", State: zone.StateOn, ActivatedAt: t0},
		{Index: 2, Name: "Garden", State: zone.StateOff},
	}

	points := statePoints("dev", zones, t0)
	if len(points) != 2 {
		t.Fatalf("expected 2 points, got %d", len(points))
	}

	first := write.PointToLineProtocol(points[0], time.Second)
	if !strings.HasPrefix(first, "zone_state,") || !strings.Contains(first, "on=1i") || !strings.Contains(first, "zone=1") {
		t.Errorf("zone 1: %q", first)
	}
	second := write.PointToLineProtocol(points[1], time.Second)
	if !strings.Contains(second, "on=0i") || !strings.Contains(second, "name=Garden") {
		t.Errorf("zone 2: %q", second)
	}
}

func TestStatePointsEmpty(t *testing.T) {
	if got := statePoints("dev", nil, t0); len(got) != 0 {
		t.Errorf("expected no points, got %d", len(got))
	}
}
