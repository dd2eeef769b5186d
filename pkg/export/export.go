package export

import (
	"fmt"
	"io"
	"sort"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/obsidianstack/threadwork/pkg/types"
)

// Family names.
const (
	MetricAuditScore    = "threadwork_audit_score"
	MetricAuditNumeric  = "threadwork_audit_numeric_value"
	MetricCategoryMs    = "threadwork_mainthread_category_ms"
	MetricSavingsMs     = "threadwork_metric_savings_ms"
	MetricLongTasks     = "threadwork_long_tasks"
	MetricRunWarnings   = "threadwork_run_warnings"
	MetricRuntimeErrors = "threadwork_runtime_error"
)

var help = map[string]string{
	MetricAuditScore:    "Audit score in [0,1]; absent for informative and error results.",
	MetricAuditNumeric:  "Audit numeric value in the audit's numeric unit.",
	MetricCategoryMs:    "Throttling-adjusted main-thread time per work category in milliseconds.",
	MetricSavingsMs:     "Metric savings reported by the work breakdown in milliseconds.",
	MetricLongTasks:     "Number of long main-thread tasks during the navigation.",
	MetricRunWarnings:   "Number of run warnings recorded for the page.",
	MetricRuntimeErrors: "1 when the run ended with a runtime error, labelled by code.",
}

func ptr[T any](v T) *T { return &v }

type builder map[string]*dto.MetricFamily

func (b builder) gauge(name string, value float64, labels ...string) {
	mf, ok := b[name]
	if !ok {
		mf = &dto.MetricFamily{
			Name: ptr(name),
			Help: ptr(help[name]),
			Type: dto.MetricType_GAUGE.Enum(),
		}
		b[name] = mf
	}
	m := &dto.Metric{Gauge: &dto.Gauge{Value: ptr(value)}}
	for i := 0; i+1 < len(labels); i += 2 {
		m.Label = append(m.Label, &dto.LabelPair{Name: ptr(labels[i]), Value: ptr(labels[i+1])})
	}
	mf.Metric = append(mf.Metric, m)
}

// Families converts reports into metric families sorted by name. Metrics
// inside a family keep report order, and audits are visited in id order.
func Families(reports []*types.Report) []*dto.MetricFamily {
	b := builder{}
	for _, r := range reports {
		url := r.PageURL()

		ids := make([]string, 0, len(r.Audits))
		for id := range r.Audits {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			a := r.Audits[id]
			if a.Score != nil {
				b.gauge(MetricAuditScore, *a.Score, "url", url, "audit", id)
			}
			if a.ScoreDisplayMode != types.DisplayError && a.NumericUnit != "" {
				b.gauge(MetricAuditNumeric, a.NumericValue, "url", url, "audit", id, "unit", a.NumericUnit)
			}
		}

		if s := r.Summary; s != nil {
			cats := make([]string, 0, len(s.Categories))
			for c := range s.Categories {
				cats = append(cats, c)
			}
			sort.Strings(cats)
			for _, c := range cats {
				b.gauge(MetricCategoryMs, s.Categories[c], "url", url, "category", c)
			}
			b.gauge(MetricSavingsMs, s.MetricSavingsMs, "url", url, "metric", "TBT")
			b.gauge(MetricLongTasks, float64(s.LongTaskCount), "url", url)
		}

		b.gauge(MetricRunWarnings, float64(len(r.RunWarnings)), "url", url)
		if r.RuntimeError != nil {
			b.gauge(MetricRuntimeErrors, 1, "url", url, "code", r.RuntimeError.Code)
		}
	}

	out := make([]*dto.MetricFamily, 0, len(b))
	for _, mf := range b {
		out = append(out, mf)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GetName() < out[j].GetName() })
	return out
}

// Write renders reports as text exposition.
func Write(w io.Writer, reports []*types.Report) error {
	for _, mf := range Families(reports) {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("export: write %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// ContentType is the media type of Write's output.
func ContentType() string {
	return string(expfmt.NewFormat(expfmt.TypeTextPlain))
}

// Parse decodes a text exposition into metric families. A partial result
// with a trailing parse warning is still returned successfully.
func Parse(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("export: parse: %w", err)
	}
	return mfs, nil
}

// SumFamily adds up the gauge, counter and untyped values of mf whose labels
// include every name/value pair in match. A nil mf sums to 0.
func SumFamily(mf *dto.MetricFamily, match ...string) float64 {
	if mf == nil {
		return 0
	}
	var total float64
	for _, m := range mf.GetMetric() {
		if !hasLabels(m, match) {
			continue
		}
		switch {
		case m.Gauge != nil:
			total += m.Gauge.GetValue()
		case m.Counter != nil:
			total += m.Counter.GetValue()
		case m.Untyped != nil:
			total += m.Untyped.GetValue()
		}
	}
	return total
}

func hasLabels(m *dto.Metric, match []string) bool {
	for i := 0; i+1 < len(match); i += 2 {
		found := false
		for _, lp := range m.GetLabel() {
			if lp.GetName() == match[i] && lp.GetValue() == match[i+1] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
