package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/fancoil-controller/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
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
	},
	"temp": func(v float64) string {
		return fmt.Sprintf("%.1f", v)
	},
	"unit": func(units string) string {
		if units == "celsius" {
			return "°C"
		}
		return "°F"
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="30">
<title>Fan Coil</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Fan Coil</h1>

<h2>Control</h2>
<table>
<tr><th>State</th><td id="state" class="{{if eq .State "OFF"}}off{{else if eq .State "UNKNOWN"}}unknown{{else}}on{{end}}">{{.State}}</td></tr>
<tr><th>Coil</th><td id="running" class="{{if .Control.Running}}on{{else}}off{{end}}">{{if .Control.Running}}running{{else}}idle{{end}}</td></tr>
<tr><th>Target</th><td>{{temp .Control.TargetTemp}}{{unit .Config.Units}}</td></tr>
<tr><th>Fan speed</th><td>{{.Control.FanSpeed}}{{if eq .Control.FanSpeed 0}} (last {{.Control.LastNonzeroSpeed}}){{end}}</td></tr>
</table>

<h2>Indoor</h2>
<table>
{{with .Indoor}}<tr><th>Temperature</th><td id="indoor-temp">{{temp .Temperature}}{{unit $.Config.Units}}</td></tr>
<tr><th>Humidity</th><td>{{temp .Humidity}}%</td></tr>
<tr><th>Pressure</th><td>{{temp .Pressure}} hPa</td></tr>
<tr><th>Air quality</th><td>{{.AirQuality}}</td></tr>
<tr><th>Read</th><td>{{.Time.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
{{else}}<tr><th>Sensor</th><td class="unknown">no reading yet</td></tr>
{{end}}<tr><th>Gas baseline</th><td>{{if .BaselineReady}}ready{{else}}burning in{{end}}</td></tr>
</table>

<h2>Outdoor</h2>
<table>
{{with .Outdoor}}<tr><th>Condition</th><td>{{if .Icon}}<img src="{{.Icon}}" alt="" width="24" height="24"> {{end}}{{.Condition}}</td></tr>
<tr><th>Temperature</th><td>{{temp .Temperature}}°C</td></tr>
<tr><th>Humidity</th><td>{{temp .Humidity}}%</td></tr>
<tr><th>Wind</th><td>{{.WindSpeed}} km/h {{.WindDirName}}</td></tr>
<tr><th>Precipitation</th><td>{{.Precipitation}} mm</td></tr>
{{else}}<tr><th>Weather</th><td class="unknown">no data yet</td></tr>
{{end}}</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
</table>

<h2>Actuator</h2>
<table>
<tr><th>Starts</th><td>{{.Counts.Starts}}</td></tr>
<tr><th>Stops</th><td>{{.Counts.Stops}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Sensor interval</th><td>{{.Config.SensorIntervalMs}}ms</td></tr>
<tr><th>Weather interval</th><td>{{.Config.WeatherInterval}}min</td></tr>
<tr><th>Offset / margin</th><td>{{.Config.Offset}} / {{.Config.ReachedMargin}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> · <a href="/metrics">metrics</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	data := struct {
		status.Snapshot
		Uptime time.Duration
		State  string
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		State:    status.StateName(snap.Control),
	}
	return indexTmpl.Execute(w, data)
}
