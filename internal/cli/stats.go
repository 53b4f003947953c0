package cli

import (
	"fmt"
	"sort"
	"strings"

	dto "github.com/prometheus/client_model/go"
)

// printMetrics writes every non-zero counter and histogram gathered during
// the command to the log stream.
func (c *CLI) printMetrics() {
	families, err := c.metrics.Gather()
	if err != nil {
		c.Logger.Warn("failed to gather metrics", "err", err)
		return
	}
	lines := formatMetrics(families)
	if len(lines) == 0 {
		return
	}
	fmt.Fprintln(c.err, StyleTitle.Render("stats"))
	for _, line := range lines {
		fmt.Fprintln(c.err, "  "+line)
	}
}

// formatMetrics renders metric families as "name{labels} value" lines,
// skipping series that never moved.
func formatMetrics(families []*dto.MetricFamily) []string {
	var lines []string
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			name := strings.TrimPrefix(mf.GetName(), "pget_") + labels(m.GetLabel())
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				if v := m.GetCounter().GetValue(); v != 0 {
					lines = append(lines, fmt.Sprintf("%s %s", name, StyleNumber.Render(fmt.Sprintf("%g", v))))
				}
			case dto.MetricType_HISTOGRAM:
				h := m.GetHistogram()
				if h.GetSampleCount() != 0 {
					lines = append(lines, fmt.Sprintf("%s count=%d sum=%.3fs", name, h.GetSampleCount(), h.GetSampleSum()))
				}
			}
		}
	}
	sort.Strings(lines)
	return lines
}

func labels(pairs []*dto.LabelPair) string {
	if len(pairs) == 0 {
		return ""
	}
	parts := make([]string, len(pairs))
	for i, p := range pairs {
		parts[i] = p.GetName() + "=" + p.GetValue()
	}
	return "{" + strings.Join(parts, ",") + "}"
}
