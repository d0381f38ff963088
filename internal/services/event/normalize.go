package event

import (
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// EventToPoint normalizes a CommonEvent into a system_event point.
func EventToPoint(evt CommonEvent) *write.Point {
	tags := map[string]string{
		"event_type":     evt.EventType,
		"source_service": evt.SourceService,
		"severity":       evt.Severity,
	}
	if evt.Room != "" {
		tags["room"] = evt.Room
	}
	if evt.Subject != "" {
		tags["subject"] = evt.Subject
	}

	fields := map[string]interface{}{}
	for k, v := range evt.Fields {
		fields[k] = v
	}
	// at least one field per point
	if _, ok := fields["count"]; !ok {
		fields["count"] = int64(1)
	}

	ts := evt.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return influxdb2.NewPoint("system_event", tags, fields, ts)
}
