package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/feedback-kiosk/internal/status"
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
	"ms": func(v int64) string {
		if v <= 0 {
			return "disabled"
		}
		return fmt.Sprintf("%dms", v)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Feedback Kiosk{{if .Config.Kiosk}} ({{.Config.Kiosk}}){{end}}</title>
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
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; background: orange; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
</style>
</head>
<body>
<h1>Feedback Kiosk{{if .Config.Kiosk}} {{.Config.Kiosk}}{{end}}<span id="live-dot" class="live-dot" title="connecting"></span></h1>

<h2>Buttons <small id="state">{{if .Asleep}}ASLEEP{{else}}AWAKE{{end}}</small></h2>
<table id="channels">
<tr><th>Button</th><td>LED</td><td>Votes</td></tr>
{{range .Channels}}<tr><th>{{.Label}}</th><td id="led-{{.ID}}" class="{{if .LEDOn}}on{{else}}off{{end}}">{{if .LEDOn}}ON{{else}}OFF{{end}}</td><td id="votes-{{.ID}}">{{.Votes}}</td></tr>
{{end}}</table>
<p>Total votes: <span id="total">{{.TotalVotes}}</span>{{if .LastVote}}, last: {{.LastVote.Label}} at {{.LastVote.At.UTC.Format "2006-01-02T15:04:05Z"}}{{end}}</p>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .MQTTBuffered}}<tr><th>Queued</th><td>{{.MQTTBuffered}} messages</td></tr>{{end}}
<tr><th>Clock</th><td>{{if .ClockSynced}}NTP synced{{else}}local{{end}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Sleeps</th><td>{{.Sleeps}}</td></tr>
<tr><th>Poll</th><td>{{ms .Config.PollMs}}</td></tr>
<tr><th>Debounce</th><td>{{ms .Config.DebounceMs}}</td></tr>
<tr><th>LED on</th><td>{{ms .Config.LEDOnMs}}</td></tr>
<tr><th>Idle timeout</th><td>{{ms .Config.IdleTimeoutMs}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPPort}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
<script>
(function() {
  var dot = document.getElementById("live-dot");
  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }
  function connect() {
    var proto = location.protocol === "https:" ? "wss://" : "ws://";
    var ws = new WebSocket(proto + location.host + "/ws");
    ws.onopen = function() { setDot("ok", "live"); };
    ws.onclose = function() {
      setDot("err", "offline");
      setTimeout(connect, 5000);
    };
    ws.onmessage = function(ev) {
      try {
        var s = JSON.parse(ev.data).status;
        document.getElementById("state").textContent = s.state;
        document.getElementById("total").textContent = s.total_votes;
        (s.channels || []).forEach(function(ch) {
          var led = document.getElementById("led-" + ch.id);
          var votes = document.getElementById("votes-" + ch.id);
          if (led) {
            led.textContent = ch.led ? "ON" : "OFF";
            led.className = ch.led ? "on" : "off";
          }
          if (votes) { votes.textContent = ch.votes; }
        });
      } catch (e) {}
    };
  }
  connect();
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}
