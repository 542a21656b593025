package advisor

import (
	"context"
	"math"
	"strings"
	"testing"

	"broker-gateway/internal/portfolio"
)

func TestEncodeInput(t *testing.T) {
	in := Input{
		Summary: portfolio.Summary{TotalValue: 1000, DayPnL: 100},
		AsOf:    "2026-08-23",
	}
	payload, err := encodeInput(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(payload, `"as_of":"2026-08-23"`) {
		t.Errorf("expected as_of in payload, got %s", payload)
	}
}

func TestEncodeInput_RejectsNonFinite(t *testing.T) {
	cases := []float64{math.NaN(), math.Inf(1), math.Inf(-1)}
	for _, v := range cases {
		in := Input{Summary: portfolio.Summary{DayPnLPct: v}}
		if _, err := encodeInput(in); err == nil {
			t.Errorf("expected error for summary field %v", v)
		}
	}
}

func TestEvaluateDisabledUsesFallback(t *testing.T) {
	a := New(Config{Enabled: false})
	if a.Enabled() {
		t.Fatal("expected agent disabled")
	}

	insight, err := a.Evaluate(context.Background(), Input{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if insight.Stance != "neutral" {
		t.Errorf("expected neutral stance for empty input, got %q", insight.Stance)
	}
}

func TestFallbackInsightStance(t *testing.T) {
	holding := portfolio.HoldingView{Symbol: "INFY"}
	cases := []struct {
		name   string
		dayPnL float64
		want   string
	}{
		{"gain", 100, "bullish"},
		{"loss", -100, "bearish"},
		{"flat", 0, "neutral"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := Input{Summary: portfolio.Summary{
				DayPnL:   tc.dayPnL,
				Holdings: []portfolio.HoldingView{holding},
			}}
			got := FallbackInsight(in)
			if got.Stance != tc.want {
				t.Errorf("expected stance %q, got %q", tc.want, got.Stance)
			}
		})
	}
}
