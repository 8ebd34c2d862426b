package improvement

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// HistorySummary describes how a search progressed. Scores are oriented so
// that lower is better.
type HistorySummary struct {
	InitialScore       float64 `json:"initial_score"`
	FinalScore         float64 `json:"final_score"`
	ImprovementPercent float64 `json:"improvement_percent"`
	Trend              string  `json:"trend"`
	MeanScore          float64 `json:"mean_score"`
	ScoreStdDev        float64 `json:"score_stddev"`
}

// SummarizeHistory summarizes an optimization history.
func SummarizeHistory(history []OptimizationStep) HistorySummary {
	if len(history) == 0 {
		return HistorySummary{Trend: "stable"}
	}
	ys := make([]float64, 0, len(history))
	for _, s := range history {
		if !math.IsInf(s.Score, 0) {
			ys = append(ys, s.Score)
		}
	}
	sum := HistorySummary{
		InitialScore: history[0].Score,
		FinalScore:   history[len(history)-1].Score,
		Trend:        determineTrend(ys),
	}
	sum.ImprovementPercent = GetImprovementPercentage(sum.InitialScore, sum.FinalScore)
	if len(ys) > 0 {
		sum.MeanScore, sum.ScoreStdDev = stat.PopMeanStdDev(ys, nil)
	}
	return sum
}

// determineTrend fits a line through the scores; a slope below -0.01 is
// improving and above 0.01 degrading.
func determineTrend(scores []float64) string {
	if len(scores) < 2 {
		return "stable"
	}
	xs := make([]float64, len(scores))
	for i := range xs {
		xs[i] = float64(i)
	}
	_, slope := stat.LinearRegression(xs, scores, nil, false)
	switch {
	case slope < -0.01:
		return "improving"
	case slope > 0.01:
		return "degrading"
	default:
		return "stable"
	}
}

// GetImprovementPercentage is the relative decrease from before to after,
// as a percentage of |before|.
func GetImprovementPercentage(before, after float64) float64 {
	if before == 0 || math.IsInf(before, 0) || math.IsInf(after, 0) {
		return 0
	}
	return (before - after) / math.Abs(before) * 100
}
