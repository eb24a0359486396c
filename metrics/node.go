package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/eau2/eau2/internal/log"
)

// LogReportBackend is a ReportBackend that writes each periodic snapshot
// through an internal/log Logger, the backend the cmd/eau2-* daemons use
// in place of a StatsD/push-gateway integration.
type LogReportBackend struct {
	log *log.Logger
}

// NewLogReportBackend returns a backend that logs every report at info
// level under the "metrics" message.
func NewLogReportBackend(logger *log.Logger) *LogReportBackend {
	return &LogReportBackend{log: logger}
}

// Report implements ReportBackend.
func (b *LogReportBackend) Report(snapshot map[string]float64) error {
	args := make([]any, 0, len(snapshot)*2)
	for name, v := range snapshot {
		args = append(args, name, v)
	}
	b.log.Info("metrics", args...)
	return nil
}

// flattenSnapshot turns a Registry.Snapshot() into the flat float64 map a
// MetricsReporter's backends expect. Histograms are expanded into
// _count/_sum/_min/_max/_mean entries, the same suffixing PrometheusExporter
// uses for its summary output.
func flattenSnapshot(snap map[string]interface{}) map[string]float64 {
	flat := make(map[string]float64, len(snap))
	for name, v := range snap {
		switch val := v.(type) {
		case int64:
			flat[name] = float64(val)
		case float64:
			flat[name] = val
		case map[string]interface{}:
			if n, ok := val["count"].(int64); ok {
				flat[name+"_count"] = float64(n)
			}
			for _, suffix := range []string{"sum", "min", "max", "mean"} {
				if f, ok := val[suffix].(float64); ok {
					flat[name+"_"+suffix] = f
				}
			}
		}
	}
	return flat
}

// MeterCollector adapts a Meter to PrometheusExporter's CustomCollector
// interface, exposing its 1/5/15-minute rates and lifetime count as gauges
// under name-prefixed metric lines (e.g. "transport.messages.rate1").
type MeterCollector struct {
	name  string
	meter *Meter
}

// NewMeterCollector returns a CustomCollector for meter, naming its output
// lines with the given dot-separated prefix.
func NewMeterCollector(name string, meter *Meter) *MeterCollector {
	return &MeterCollector{name: name, meter: meter}
}

// Collect implements CustomCollector.
func (mc *MeterCollector) Collect() []MetricLine {
	return []MetricLine{
		{Name: mc.name + ".count", Value: float64(mc.meter.Count())},
		{Name: mc.name + ".rate1", Value: mc.meter.Rate1()},
		{Name: mc.name + ".rate5", Value: mc.meter.Rate5()},
		{Name: mc.name + ".rate15", Value: mc.meter.Rate15()},
	}
}

// StartPrometheusServer starts an HTTP server on addr exposing DefaultRegistry
// (and MessageRate's throughput) at PrometheusConfig's default path. It
// returns immediately; the server runs in a background goroutine until
// Shutdown is called on the returned *http.Server. Listen failures are
// logged, not returned, since metrics serving is ancillary to a node's
// actual KV/dataframe work.
func StartPrometheusServer(addr string) *http.Server {
	exporter := NewPrometheusExporter(DefaultRegistry, DefaultPrometheusConfig())
	exporter.RegisterCollector("transport.messages", NewMeterCollector("transport.messages", MessageRate))

	srv := &http.Server{Addr: addr, Handler: exporter.Handler()}
	logger := log.Default().Module("metrics")
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("prometheus server exited", "addr", addr, "err", err)
		}
	}()
	return srv
}

// StartReporter runs a MetricsReporter that logs a snapshot of
// DefaultRegistry every interval through a LogReportBackend. A separate
// ticker refreshes the reporter's recorded values from Registry.Snapshot(),
// since MetricsReporter itself only reports whatever was last pushed to it
// via RecordMetric. Callers should Stop() the returned reporter on shutdown.
func StartReporter(logger *log.Logger, interval time.Duration) *MetricsReporter {
	reporter := NewMetricsReporter(interval)
	reporter.RegisterBackend("log", NewLogReportBackend(logger))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for name, v := range flattenSnapshot(DefaultRegistry.Snapshot()) {
					reporter.RecordMetric(name, v)
				}
			}
		}
	}()
	reporter.refreshCancel = cancel
	reporter.Start()
	return reporter
}
