// SPDX-License-Identifier: GPL-3.0-or-later

package graphite

import (
	"strings"

	"github.com/meterflow/meterflow/pkg/meter"
)

// translate renders a snapshot as Graphite points sharing one timestamp.
func translate(recs []meter.Record, ts int64) []metricPoint {
	points := make([]metricPoint, 0, len(recs))
	for _, r := range recs {
		points = append(points, metricPoint{Path: metricPath(r), Time: ts, Value: r.Value})
	}
	return points
}

// metricPath builds the dotted Graphite path: the metric name with
// underscores as dots, followed by one key.value segment per tag. Spaces
// become underscores, slashes become dots, doubled dots collapse.
func metricPath(r meter.Record) string {
	path := strings.ReplaceAll(r.Name, "_", ".")

	if r.Tags.Len() > 0 {
		pairs := make([]string, 0, r.Tags.Len())
		for _, t := range r.Tags {
			pairs = append(pairs, t.Key+"."+t.Value)
		}
		path += "." + strings.Join(pairs, ".")
	}

	path = strings.ReplaceAll(path, " ", "_")
	path = strings.ReplaceAll(path, "/", ".")
	path = strings.ReplaceAll(path, "..", ".")

	return path
}
