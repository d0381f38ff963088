package event

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
)

// CycleSummary is one stored control cycle as served by GET /events/cycles/latest.
type CycleSummary struct {
	CycleID     string  `json:"cycle_id"`
	Room        string  `json:"room,omitempty"`
	Stage       string  `json:"stage,omitempty"`
	Severity    string  `json:"severity"`
	MaxSeverity int64   `json:"max_severity"`
	Executed    int64   `json:"executed"`
	Failed      int64   `json:"failed"`
	Skipped     int64   `json:"skipped"`
	VPD         float64 `json:"vpd,omitempty"`
	Time        string  `json:"time"` // RFC3339
}

type queryParams struct {
	Minutes   int
	Limit     int
	TimeoutMS int
	Room      string
}

func parseQuery(r *http.Request, defMin, defLim, defTOms int) queryParams {
	q := r.URL.Query()
	get := func(k string, def, min, max int) int {
		if v := strings.TrimSpace(q.Get(k)); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				if n < min {
					return min
				}
				if max > 0 && n > max {
					return max
				}
				return n
			}
		}
		return def
	}
	return queryParams{
		Minutes:   get("minutes", defMin, 1, 7*24*60),
		Limit:     get("limit", defLim, 1, 500),
		TimeoutMS: get("timeout_ms", defTOms, 200, 5000),
		Room:      strings.TrimSpace(q.Get("room")),
	}
}

func buildCycleFlux(bucket string, p queryParams) string {
	roomFilter := ""
	if p.Room != "" {
		roomFilter = fmt.Sprintf("\n  |> filter(fn: (r) => r.room == %q)", p.Room)
	}
	return fmt.Sprintf(`
from(bucket: %q)
  |> range(start: -%dm)
  |> filter(fn: (r) => r._measurement == "system_event" and r.event_type == %q)%s
  |> pivot(rowKey: ["_time"], columnKey: ["_field"], valueColumn: "_value")
  |> sort(columns: ["_time"], desc: true)
  |> limit(n:%d)
`, bucket, p.Minutes, TypeControlCycle, roomFilter, p.Limit)
}

func asInt(v interface{}) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case float64:
		return int64(x)
	case uint64:
		return int64(x)
	}
	return 0
}

func asString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// NewCycleLatestHandler serves GET /events/cycles/latest?limit=20[&minutes=1440][&room=r1].
func NewCycleLatestHandler(influx influxdb2.Client, org, bucket string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := parseQuery(r, 1440, 20, 2000)

		ctx, cancel := context.WithTimeout(r.Context(), time.Duration(p.TimeoutMS)*time.Millisecond)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		res, err := influx.QueryAPI(org).Query(ctx, buildCycleFlux(bucket, p))
		if err != nil {
			w.Header().Set("X-Error", "influx-query-error")
			_, _ = w.Write([]byte("[]"))
			return
		}
		defer func() { _ = res.Close() }()

		out := make([]CycleSummary, 0, p.Limit)
		for res.Next() {
			rec := res.Record()
			s := CycleSummary{
				CycleID:     asString(rec.ValueByKey("cycle_id")),
				Room:        asString(rec.ValueByKey("room")),
				Stage:       asString(rec.ValueByKey("subject")),
				Severity:    asString(rec.ValueByKey("severity")),
				MaxSeverity: asInt(rec.ValueByKey("max_severity")),
				Executed:    asInt(rec.ValueByKey("executed")),
				Failed:      asInt(rec.ValueByKey("failed")),
				Skipped:     asInt(rec.ValueByKey("skipped")),
				Time:        rec.Time().UTC().Format(time.RFC3339),
			}
			if v, ok := rec.ValueByKey("vpd").(float64); ok {
				s.VPD = v
			}
			out = append(out, s)
		}
		if res.Err() != nil {
			w.Header().Set("X-Error", "influx-iter-error")
		}
		_ = json.NewEncoder(w).Encode(out)
	})
}
