package event

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.uber.org/zap"
)

// PointSink is the part of influxdb2's api.WriteAPI the recorder needs.
type PointSink interface {
	WritePoint(point *write.Point)
	Flush()
	Errors() <-chan error
}

const neverFailed = time.Duration(math.MaxInt64)

// Writer counts ingested events per type and remembers when Influx last rejected a batch.
// Its methods are safe on a nil receiver so handlers can run without Influx.
type Writer struct {
	sink PointSink
	lg   *zap.Logger
	now  func() time.Time

	lastFail atomic.Int64 // unix nanos, 0 until the first failure
	failures atomic.Int64

	mu     sync.Mutex
	counts map[string]int64

	drained chan struct{}
}

func NewWriter(sink PointSink, lg *zap.Logger) *Writer {
	if lg == nil {
		lg = zap.NewNop()
	}
	w := &Writer{
		sink:    sink,
		lg:      lg.Named("influx"),
		now:     time.Now,
		counts:  make(map[string]int64),
		drained: make(chan struct{}),
	}
	go w.watchErrors(sink.Errors())
	return w
}

// watchErrors runs until the client closes the channel.
func (w *Writer) watchErrors(errs <-chan error) {
	defer close(w.drained)
	for err := range errs {
		if err == nil {
			continue
		}
		w.lastFail.Store(w.now().UnixNano())
		n := w.failures.Add(1)
		w.lg.Warn("batch write failed", zap.Int64("failures", n), zap.Error(err))
	}
}

func (w *Writer) Write(p *write.Point, eventType string) {
	w.sink.WritePoint(p)
	w.MarkIngest(eventType)
}

func (w *Writer) Flush() { w.sink.Flush() }

// LastErrorAge is the time since the last failed batch, or the maximum duration if none failed.
func (w *Writer) LastErrorAge() time.Duration {
	if w == nil {
		return neverFailed
	}
	ns := w.lastFail.Load()
	if ns == 0 {
		return neverFailed
	}
	return w.now().Sub(time.Unix(0, ns))
}

func (w *Writer) Failures() int64 {
	if w == nil {
		return 0
	}
	return w.failures.Load()
}

func (w *Writer) MarkIngest(eventType string) {
	if w == nil {
		return
	}
	w.mu.Lock()
	w.counts[eventType]++
	w.mu.Unlock()
}

func (w *Writer) Count(eventType string) int64 {
	if w == nil {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.counts[eventType]
}
