// SPDX-License-Identifier: GPL-3.0-or-later

// Package promexport serves and pushes metric snapshots in the Prometheus
// exposition text format, either through a pull endpoint (standalone
// listener or a mounted route) or through a Pushgateway.
package promexport

import (
	"strconv"
	"strings"

	"github.com/meterflow/meterflow/pkg/meter"
)

// Encode renders records as exposition text: a #TYPE line per metric group
// followed by that group's sample lines, groups in first-appearance order
// with no separator. Histogram and summary records group under their name
// with the statistical suffix (_sum, _count, _bucket) stripped, so one
// #TYPE line covers the whole family.
func Encode(recs []meter.Record) string {
	var order []string
	groups := make(map[string][]string)

	for _, r := range recs {
		name := r.Name
		if r.Type == meter.TypeHistogram || r.Type == meter.TypeSummary {
			name = stripLastSegment(name)
		}
		key := "#TYPE " + name + " " + string(r.Type) + "\n"

		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], sampleLine(r))
	}

	var b strings.Builder
	for _, key := range order {
		b.WriteString(key)
		for _, line := range groups[key] {
			b.WriteString(line)
		}
	}
	return b.String()
}

// sampleLine renders one record: name{k="v", k2="v2"} value. The braces are
// always present, labels keep their canonical key order.
func sampleLine(r meter.Record) string {
	var b strings.Builder
	b.WriteString(r.Name)
	b.WriteByte('{')
	for i, t := range r.Tags {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(t.Key)
		b.WriteString(`="`)
		b.WriteString(t.Value)
		b.WriteByte('"')
	}
	b.WriteString("} ")
	b.WriteString(formatValue(r.Value))
	b.WriteByte('\n')
	return b.String()
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func stripLastSegment(name string) string {
	if i := strings.LastIndexByte(name, '_'); i >= 0 {
		return name[:i]
	}
	return name
}
