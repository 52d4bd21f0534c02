package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/deskops/deskauth"
	"github.com/deskops/deskauth/metrics/export/internaldefs"
)

// Source is satisfied by *deskauth.Engine.
type Source interface {
	MetricsSnapshot() deskauth.MetricsSnapshot
	AuditDropped() uint64
}

type Exporter struct {
	source Source
}

func NewExporter(source Source) *Exporter {
	return &Exporter{source: source}
}

func (p *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(p.Render()))
	})
}

// Render returns the exposition text, or "" when metrics are disabled and
// no audit event was dropped.
func (p *Exporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}

	snapshot := p.source.MetricsSnapshot()
	dropped := p.source.AuditDropped()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && dropped == 0 {
		return ""
	}

	var b strings.Builder
	b.Grow(4096)

	for _, def := range internaldefs.CounterDefs {
		writeCounter(&b, def, snapshot.Counters[def.ID])
	}
	for _, def := range internaldefs.HistogramDefs {
		raw, ok := snapshot.Histograms[def.ID]
		if !ok {
			continue
		}
		writeHistogram(&b, def, internaldefs.Cumulative(raw))
	}
	writeCounter(&b, internaldefs.AuditDropped, dropped)

	return b.String()
}

func writeHeader(b *strings.Builder, def internaldefs.MetricDef, kind string) {
	b.WriteString("# HELP " + def.Name + " " + escapeHelp(def.Help) + "\n")
	b.WriteString("# TYPE " + def.Name + " " + kind + "\n")
}

func writeCounter(b *strings.Builder, def internaldefs.MetricDef, value uint64) {
	writeHeader(b, def, "counter")
	b.WriteString(def.Name + " " + strconv.FormatUint(value, 10) + "\n")
}

// The engine keeps no latency sum, so _sum is always 0.
func writeHistogram(b *strings.Builder, def internaldefs.MetricDef, cumulative [internaldefs.BucketCount]uint64) {
	writeHeader(b, def, "histogram")
	for i, le := range internaldefs.HistogramBounds {
		b.WriteString(def.Name + `_bucket{le="` + le + `"} ` + strconv.FormatUint(cumulative[i], 10) + "\n")
	}
	b.WriteString(def.Name + "_count " + strconv.FormatUint(cumulative[internaldefs.BucketCount-1], 10) + "\n")
	b.WriteString(def.Name + "_sum 0\n")
}

func escapeHelp(help string) string {
	help = strings.ReplaceAll(help, "\\", "\\\\")
	return strings.ReplaceAll(help, "\n", "\\n")
}
