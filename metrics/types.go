// Package metrics exposes grouped counters, gauges and histograms backed by a
// prometheus registry. Metric names are "<group>_<name>"; the label set of a
// metric is fixed by its first use.
package metrics

// Value represents a metric value as a float64.
type Value float64

// Dimension represents metric dimensions as key-value pairs.
// Dimensions become prometheus labels, such as the error type of a failed
// operation or the transport kind.
type Dimension map[string]string

func (d Dimension) keys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	return keys
}
