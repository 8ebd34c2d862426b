// Package metrics aggregates per-run measurements for the experiment daemon.
package metrics

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/montanaflynn/stats"
)

const (
	RunDuration      = "run_duration_ms"
	HabituationSteps = "habituation_steps"
	HabituationTime  = "habituation_time"
	RecoveryTime     = "recovery_time"
	RunsFinished     = "runs_finished"
)

// Point is one recorded value.
type Point struct {
	Timestamp time.Time         `json:"timestamp"`
	Name      string            `json:"name"`
	Value     float64           `json:"value"`
	Labels    map[string]string `json:"labels,omitempty"`
}

// Aggregation summarizes the points of one series.
type Aggregation struct {
	Count int64   `json:"count"`
	Sum   float64 `json:"sum"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
}

// Series is one metric name and label set with its aggregation.
type Series struct {
	Name        string            `json:"name"`
	Labels      map[string]string `json:"labels,omitempty"`
	Aggregation *Aggregation      `json:"aggregation"`
}

// Collector keeps recorded points per metric name and label set. NaN and
// infinite values are dropped.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	series    map[string]map[string][]Point
}

func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		series:    make(map[string]map[string][]Point),
	}
}

// Uptime returns the time since the collector was created.
func (c *Collector) Uptime() time.Duration {
	return time.Since(c.startTime)
}

// Record records value for name at timestamp.
func (c *Collector) Record(name string, value float64, timestamp time.Time, labels map[string]string) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	key := labelKey(labels)
	if c.series[name] == nil {
		c.series[name] = make(map[string][]Point)
	}
	c.series[name][key] = append(c.series[name][key], Point{
		Timestamp: timestamp,
		Name:      name,
		Value:     value,
		Labels:    copyLabels(labels),
	})
}

// RecordNow records value at the current time.
func (c *Collector) RecordNow(name string, value float64, labels map[string]string) {
	c.Record(name, value, time.Now(), labels)
}

// Points returns a copy of the points recorded for name and labels.
func (c *Collector) Points(name string, labels map[string]string) []Point {
	c.mu.RLock()
	defer c.mu.RUnlock()

	points := c.series[name][labelKey(labels)]
	out := make([]Point, len(points))
	for i, p := range points {
		p.Labels = copyLabels(p.Labels)
		out[i] = p
	}
	return out
}

// Aggregate returns statistics for name and labels, or nil when nothing was
// recorded.
func (c *Collector) Aggregate(name string, labels map[string]string) *Aggregation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return aggregate(c.series[name][labelKey(labels)])
}

// Snapshot aggregates every series, sorted by name then label key.
func (c *Collector) Snapshot() []Series {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []Series
	for _, name := range sortedKeys(c.series) {
		bySet := c.series[name]
		for _, key := range sortedKeys(bySet) {
			points := bySet[key]
			out = append(out, Series{
				Name:        name,
				Labels:      copyLabels(points[0].Labels),
				Aggregation: aggregate(points),
			})
		}
	}
	return out
}

// Names lists the recorded metric names.
func (c *Collector) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return sortedKeys(c.series)
}

func (c *Collector) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.series = make(map[string]map[string][]Point)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func labelKey(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	var b strings.Builder
	for _, k := range sortedKeys(labels) {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
		b.WriteByte(',')
	}
	return b.String()
}

func copyLabels(labels map[string]string) map[string]string {
	if labels == nil {
		return nil
	}
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}

func aggregate(points []Point) *Aggregation {
	if len(points) == 0 {
		return nil
	}
	values := make(stats.Float64Data, len(points))
	for i, p := range points {
		values[i] = p.Value
	}
	a := &Aggregation{Count: int64(len(values))}
	a.Sum, _ = values.Sum()
	a.Min, _ = values.Min()
	a.Max, _ = values.Max()
	a.Mean, _ = values.Mean()
	a.P50 = percentile(values, 0.50)
	a.P95 = percentile(values, 0.95)
	a.P99 = percentile(values, 0.99)
	return a
}

// percentile interpolates linearly between the closest ranks.
func percentile(values stats.Float64Data, p float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if len(sorted) == 1 {
		return sorted[0]
	}
	index := p * float64(len(sorted)-1)
	lower := int(index)
	if lower+1 >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[lower+1]*weight
}
