package event

import (
	"encoding/json"
	"net/http"
	"time"
)

// ConnChecker is satisfied by mqtt.Client.
type ConnChecker interface {
	IsConnectionOpen() bool
}

type healthHandler struct {
	bus    ConnChecker
	writer *Writer
}

// NewHealthHandler reports bus and Influx state. A nil writer means Influx is not configured,
// which is not a degradation.
func NewHealthHandler(bus ConnChecker, w *Writer) http.Handler {
	return &healthHandler{bus: bus, writer: w}
}

func (h *healthHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	type status struct {
		Status          string  `json:"status"`
		MQTTConnected   bool    `json:"mqtt_connected"`
		InfluxEnabled   bool    `json:"influx_enabled"`
		WriteFailures   int64   `json:"write_failures"`
		LastWriteErrorS float64 `json:"last_write_error_age_sec,omitempty"`
	}
	st := status{
		MQTTConnected: h.bus != nil && h.bus.IsConnectionOpen(),
		InfluxEnabled: h.writer != nil,
	}
	influxOK := true
	if h.writer != nil {
		age := h.writer.LastErrorAge()
		st.WriteFailures = h.writer.Failures()
		if st.WriteFailures > 0 {
			st.LastWriteErrorS = age.Seconds()
		}
		influxOK = age > 30*time.Second
	}

	switch {
	case st.MQTTConnected && influxOK:
		st.Status = "ok"
	case st.MQTTConnected || (h.writer != nil && influxOK):
		st.Status = "degraded"
	default:
		st.Status = "down"
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(st)
}

type readyHandler struct {
	bus      ConnChecker
	writer   *Writer
	minError time.Duration
}

// NewReadyHandler answers 200 only when the bus is connected and Influx has not failed a write
// within minOkErrorAge.
func NewReadyHandler(bus ConnChecker, w *Writer, minOkErrorAge time.Duration) http.Handler {
	return &readyHandler{bus: bus, writer: w, minError: minOkErrorAge}
}

func (h *readyHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	ready := h.bus != nil && h.bus.IsConnectionOpen()
	if h.writer != nil && h.writer.LastErrorAge() <= h.minError {
		ready = false
	}
	w.Header().Set("Content-Type", "application/json")
	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(struct {
		Ready bool `json:"ready"`
	}{Ready: ready})
}
