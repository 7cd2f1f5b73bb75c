package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/bookline/whatsgate/internal/audit"
	"github.com/bookline/whatsgate/internal/observability/logger"
	"github.com/bookline/whatsgate/internal/observability/metrics"
	"github.com/bookline/whatsgate/internal/settings"
)

// DefaultTimeout bounds a single sink delivery
const DefaultTimeout = 5 * time.Second

// Result is the outcome of one sink delivery
type Result struct {
	Sink string
	Err  error
}

// Report lists the delivery attempts of one notification
type Report struct {
	Results []Result
}

// Attempted returns the number of sinks tried
func (r Report) Attempted() int { return len(r.Results) }

// Failed returns the number of failed deliveries
func (r Report) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Err != nil {
			n++
		}
	}
	return n
}

// Dispatcher fans a notification out to every enabled sink. Deliveries are
// concurrent and isolated: one failing sink never affects another.
type Dispatcher struct {
	sinks       []Sink
	timeout     time.Duration
	auditLogger audit.Logger
	metrics     *metrics.Instruments
}

// NewDispatcher creates a dispatcher. auditLogger and instruments may be nil.
func NewDispatcher(sinks []Sink, timeout time.Duration, auditLogger audit.Logger, instruments *metrics.Instruments) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if auditLogger == nil {
		auditLogger = audit.Discard{}
	}
	if instruments == nil {
		instruments = metrics.NoopInstruments()
	}
	return &Dispatcher{sinks: sinks, timeout: timeout, auditLogger: auditLogger, metrics: instruments}
}

// Notify delivers n to every sink enabled by prefs. It never fails; the
// report carries per-sink errors.
func (d *Dispatcher) Notify(ctx context.Context, prefs settings.NotificationPreferences, n Notification) Report {
	var (
		mu     sync.Mutex
		report Report
		g      errgroup.Group
	)
	for _, sink := range d.sinks {
		if !sink.Enabled(prefs) {
			continue
		}
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(ctx, d.timeout)
			defer cancel()
			err := sink.Send(sctx, prefs, n)

			mu.Lock()
			report.Results = append(report.Results, Result{Sink: sink.Name(), Err: err})
			mu.Unlock()

			d.observe(ctx, sink.Name(), n, err)
			return nil
		})
	}
	_ = g.Wait()
	return report
}

func (d *Dispatcher) observe(ctx context.Context, sink string, n Notification, err error) {
	result := "sent"
	eventType := audit.TypeNotificationSent
	meta := map[string]any{"sink": sink, "kind": string(n.Kind), "notification_id": n.ID}
	if err != nil {
		result = "failed"
		eventType = audit.TypeNotificationFailed
		meta["error"] = err.Error()
		slog.WarnContext(ctx, "notification delivery failed",
			logger.TenantID(n.TenantID), logger.Sink(sink), logger.Error(err))
	}

	d.metrics.Notifications.Add(ctx, 1, metric.WithAttributes(
		attribute.String("sink", sink),
		attribute.String("result", result),
	))
	d.auditLogger.Log(ctx, audit.Event{
		Type:     eventType,
		TenantID: n.TenantID,
		ActorID:  audit.ActorMonitor,
		Resource: n.PhoneNumberID,
		Metadata: meta,
	})
}
