package web

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sweeney/brew-controller/internal/status"
)

// statusResponse is the JSON representation of a status snapshot.
type statusResponse struct {
	Status statusInner `json:"status"`
}

type statusInner struct {
	State         string      `json:"state"`
	Step          string      `json:"step,omitempty"`
	Error         string      `json:"error,omitempty"`
	Busy          bool        `json:"busy"`
	CycleID       string      `json:"cycle_id,omitempty"`
	Recipe        string      `json:"recipe,omitempty"`
	CupPresent    bool        `json:"cup_present"`
	IntTemp       *float64    `json:"internal_temp,omitempty"`
	ExtTemp       *float64    `json:"external_temp,omitempty"`
	UptimeSeconds int64       `json:"uptime_seconds"`
	StartTime     string      `json:"start_time"`
	Timestamp     string      `json:"timestamp"`
	MQTT          mqttStatus  `json:"mqtt"`
	Counts        countsJSON  `json:"cycle_counts"`
	Config        configJSON  `json:"config"`
}

type mqttStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

type countsJSON struct {
	Started   int `json:"started"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

type configJSON struct {
	PollMs       int64  `json:"poll_ms"`
	Broker       string `json:"broker"`
	HTTPAddr     string `json:"http_addr"`
	SettingsPath string `json:"settings_path"`
	HistoryPath  string `json:"history_path,omitempty"`
	HALMode      string `json:"hal_mode"`
}

func buildStatus(snap status.Snapshot) statusResponse {
	inner := statusInner{
		State:         string(snap.State),
		Step:          snap.Step,
		Error:         string(snap.Error),
		Busy:          snap.Busy,
		CycleID:       snap.CycleID,
		Recipe:        string(snap.Recipe),
		CupPresent:    snap.CupPresent,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          mqttStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: countsJSON{
			Started:   snap.Counts.Started,
			Completed: snap.Counts.Completed,
			Failed:    snap.Counts.Failed,
		},
		Config: configJSON{
			PollMs:       snap.Config.PollMs,
			Broker:       snap.Config.Broker,
			HTTPAddr:     snap.Config.HTTPAddr,
			SettingsPath: snap.Config.SettingsPath,
			HistoryPath:  snap.Config.HistoryPath,
			HALMode:      snap.Config.HALMode,
		},
	}

	// Faulted sensors are omitted rather than reported as zero degrees.
	if snap.IntTempOK {
		v := snap.IntTemp
		inner.IntTemp = &v
	}
	if snap.ExtTempOK {
		v := snap.ExtTemp
		inner.ExtTemp = &v
	}

	return statusResponse{Status: inner}
}

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Brew Controller</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.busy { color: green; font-weight: bold; }
.idle { color: #888; }
.error { color: red; font-weight: bold; }
</style>
<script>
async function refresh() {
  const r = await fetch('/api/status');
  const j = await r.json();
  for (const [k, v] of Object.entries({
    state: j.status.state,
    step: j.status.step || '-',
    error: j.status.error || '-',
    cup: j.status.cup_present ? 'yes' : 'no',
    temp: j.status.internal_temp != null ? j.status.internal_temp.toFixed(1) + ' °C' : 'fault',
    counts: j.status.cycle_counts.completed + ' done / ' + j.status.cycle_counts.failed + ' failed',
  })) document.getElementById(k).textContent = v;
}
setInterval(refresh, 1000);
window.onload = refresh;
</script>
</head>
<body>
<h1>Brew Controller</h1>
<table>
<tr><th>State</th><td id="state">-</td></tr>
<tr><th>Step</th><td id="step">-</td></tr>
<tr><th>Error</th><td id="error">-</td></tr>
<tr><th>Cup present</th><td id="cup">-</td></tr>
<tr><th>Internal temp</th><td id="temp">-</td></tr>
<tr><th>Cycles</th><td id="counts">-</td></tr>
</table>
</body>
</html>
`

func (s *Server) handleIndex(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(indexHTML))
}
