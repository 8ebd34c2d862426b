package metrics

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorRecordAndPoints(t *testing.T) {
	c := NewCollector()
	now := time.Now()
	c.Record(RunDuration, 10, now, nil)
	c.Record(RunDuration, 20, now.Add(time.Second), nil)

	points := c.Points(RunDuration, nil)
	require.Len(t, points, 2)
	assert.Equal(t, 10.0, points[0].Value)
	assert.Equal(t, 20.0, points[1].Value)
	assert.Empty(t, c.Points("missing", nil))
}

func TestCollectorLabelsSeparateSeries(t *testing.T) {
	c := NewCollector()
	dep := map[string]string{"model": "depletion", "status": "completed"}
	lin := map[string]string{"status": "completed", "model": "linear"}
	c.RecordNow(HabituationSteps, 3, dep)
	c.RecordNow(HabituationSteps, 5, dep)
	c.RecordNow(HabituationSteps, 9, lin)

	assert.Len(t, c.Points(HabituationSteps, dep), 2)
	assert.Len(t, c.Points(HabituationSteps, map[string]string{"status": "completed", "model": "depletion"}), 2)
	assert.Len(t, c.Points(HabituationSteps, lin), 1)

	dep["model"] = "changed"
	assert.Equal(t, "depletion", c.Points(HabituationSteps, map[string]string{"model": "depletion", "status": "completed"})[0].Labels["model"])
}

func TestCollectorDropsNonFinite(t *testing.T) {
	c := NewCollector()
	c.RecordNow(RecoveryTime, math.NaN(), nil)
	c.RecordNow(RecoveryTime, math.Inf(1), nil)
	assert.Nil(t, c.Aggregate(RecoveryTime, nil))
	assert.Empty(t, c.Names())
}

func TestCollectorAggregate(t *testing.T) {
	c := NewCollector()
	for _, v := range []float64{5, 1, 4, 2, 3} {
		c.RecordNow(RunDuration, v, nil)
	}
	a := c.Aggregate(RunDuration, nil)
	require.NotNil(t, a)
	assert.Equal(t, int64(5), a.Count)
	assert.Equal(t, 15.0, a.Sum)
	assert.Equal(t, 1.0, a.Min)
	assert.Equal(t, 5.0, a.Max)
	assert.Equal(t, 3.0, a.Mean)
	assert.Equal(t, 3.0, a.P50)
	assert.InDelta(t, 4.8, a.P95, 1e-9)
	assert.InDelta(t, 4.96, a.P99, 1e-9)
}

func TestPercentileSingleValue(t *testing.T) {
	assert.Equal(t, 7.0, percentile([]float64{7}, 0.99))
}

func TestCollectorSnapshotSorted(t *testing.T) {
	c := NewCollector()
	c.RecordNow(RunsFinished, 1, map[string]string{"status": "failed"})
	c.RecordNow(RunsFinished, 1, map[string]string{"status": "completed"})
	c.RecordNow(HabituationTime, 12, nil)

	snap := c.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, HabituationTime, snap[0].Name)
	assert.Equal(t, "completed", snap[1].Labels["status"])
	assert.Equal(t, "failed", snap[2].Labels["status"])
	assert.Equal(t, []string{HabituationTime, RunsFinished}, c.Names())

	c.Clear()
	assert.Empty(t, c.Snapshot())
}
