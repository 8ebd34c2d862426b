package improvement

import (
	"math"
	"testing"
)

func TestSummarizeHistory(t *testing.T) {
	s := SummarizeHistory(history(-1, -2, -3, -4))
	if s.Trend != "improving" {
		t.Fatalf("expected improving trend, got %q", s.Trend)
	}
	if s.InitialScore != -1 || s.FinalScore != -4 {
		t.Fatalf("unexpected endpoints %+v", s)
	}
	if math.Abs(s.ImprovementPercent-300) > 1e-9 {
		t.Fatalf("expected 300%% improvement, got %g", s.ImprovementPercent)
	}
	if math.Abs(s.MeanScore+2.5) > 1e-12 {
		t.Fatalf("expected mean -2.5, got %g", s.MeanScore)
	}
	if math.Abs(s.ScoreStdDev-math.Sqrt(1.25)) > 1e-12 {
		t.Fatalf("expected population stddev sqrt(1.25), got %g", s.ScoreStdDev)
	}

	if got := SummarizeHistory(history(2, 2, 2)).Trend; got != "stable" {
		t.Fatalf("expected stable trend, got %q", got)
	}
	if got := SummarizeHistory(history(1, 2, 3)).Trend; got != "degrading" {
		t.Fatalf("expected degrading trend, got %q", got)
	}
	if got := SummarizeHistory(nil).Trend; got != "stable" {
		t.Fatalf("empty history should be stable, got %q", got)
	}
}

func TestSummarizeHistoryIgnoresInfiniteScores(t *testing.T) {
	s := SummarizeHistory(history(math.Inf(1), 4, 2))
	if s.ImprovementPercent != 0 {
		t.Fatalf("improvement from an infinite score is undefined, got %g", s.ImprovementPercent)
	}
	if s.MeanScore != 3 {
		t.Fatalf("expected mean of finite scores 3, got %g", s.MeanScore)
	}
}

func TestGetImprovementPercentage(t *testing.T) {
	if got := GetImprovementPercentage(10, 5); got != 50 {
		t.Fatalf("expected 50, got %g", got)
	}
	if got := GetImprovementPercentage(-2, -3); got != 50 {
		t.Fatalf("expected 50 for negative scores, got %g", got)
	}
	if got := GetImprovementPercentage(0, -3); got != 0 {
		t.Fatalf("expected 0 from a zero baseline, got %g", got)
	}
}
