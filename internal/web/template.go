package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/sprinkler-controller/internal/status"
	"github.com/sweeney/sprinkler-controller/internal/zone"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"duration": formatDuration,
}).Parse(indexHTML))

func formatDuration(d time.Duration) string {
	d = d.Truncate(time.Second)
	days := int(d.Hours()) / 24
	h := int(d.Hours()) % 24
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
	}
	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="10">
<title>Sprinkler Controller</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
.warn { color: orange; font-weight: bold; }
</style>
</head>
<body>
<h1>Sprinkler Controller</h1>

<h2>Zones</h2>
<table>
<tr><th>Zone</th><td>State</td><td>Remaining</td></tr>
{{range .Zones}}<tr><th>{{.Index}}. {{.Name}}</th><td class="{{if .On}}on{{else}}off{{end}}">{{.State}}</td><td>{{if .On}}{{duration .Remaining}}{{end}}</td></tr>
{{end}}</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Broker}}{{.Broker}}{{else}}-{{end}}</td></tr>
{{if .ProvisioningRequired}}<tr><th>Settings</th><td class="warn">provisioning required</td></tr>{{end}}
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Completed Runs</h2>
<table>
<tr><th>Switched off</th><td>{{.Counts.CommandOff}}</td></tr>
<tr><th>Safety cutoff</th><td>{{.Counts.SafetyOff}}</td></tr>
<tr><th>Shutdown</th><td>{{.Counts.ShutdownOff}}</td></tr>
<tr><th>Output failures</th><td>{{.Counts.Failures}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{duration .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Client ID</th><td>{{.Config.ClientID}}</td></tr>
<tr><th>Driver</th><td>{{.Config.Driver}}</td></tr>
<tr><th>Max runtime</th><td>{{duration .Config.MaxRuntime}}</td></tr>
<tr><th>Sweep</th><td>{{.Config.SweepInterval.Milliseconds}}ms</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/history.json">History</a></p>
</body>
</html>
`

type zoneRow struct {
	zone.Zone
	On        bool
	Remaining time.Duration
}

func renderHTML(w io.Writer, snap status.Snapshot) {
	rows := make([]zoneRow, len(snap.Zones))
	for i, z := range snap.Zones {
		rows[i] = zoneRow{Zone: z, On: z.State == zone.StateOn, Remaining: snap.Remaining(z)}
	}

	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Zones  []zoneRow
		Uptime time.Duration
	}{
		Snapshot: snap,
		Zones:    rows,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}
