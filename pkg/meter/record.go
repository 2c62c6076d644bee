// SPDX-License-Identifier: GPL-3.0-or-later

package meter

// ExportType is the metric family type stamped on every record. Exporters use
// it to group and annotate output (the Prometheus text format in particular).
type ExportType string

const (
	TypeCounter   ExportType = "counter"
	TypeGauge     ExportType = "gauge"
	TypeHistogram ExportType = "histogram"
	TypeSummary   ExportType = "summary"
)

// Record is one flattened measurement produced by an instrument during a
// snapshot: a metric name, the resolved series tags, the value, and the
// export type.
type Record struct {
	Name  string
	Tags  TagSet
	Value float64
	Type  ExportType
}
