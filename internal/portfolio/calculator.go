// Package portfolio derives summary and performance views from raw
// broker holdings. Everything here is pure: no state, no I/O.
package portfolio

import (
	"sort"

	"broker-gateway/internal/broker"
)

type HoldingView struct {
	Symbol        string  `json:"symbol"`
	Exchange      string  `json:"exchange"`
	Quantity      float64 `json:"quantity"`
	AveragePrice  float64 `json:"average_price"`
	LastPrice     float64 `json:"last_price"`
	PreviousClose float64 `json:"previous_close"`
	CurrentValue  float64 `json:"current_value"`
	Investment    float64 `json:"investment"`
	DayPnL        float64 `json:"day_pnl"`
	OverallPnL    float64 `json:"overall_pnl"`
	DayChangePct  float64 `json:"day_change_pct"`
}

type Summary struct {
	TotalValue      float64       `json:"total_value"`
	TotalInvestment float64       `json:"total_investment"`
	DayPnL          float64       `json:"day_pnl"`
	OverallPnL      float64       `json:"overall_pnl"`
	DayPnLPct       float64       `json:"day_pnl_pct"`
	OverallPnLPct   float64       `json:"overall_pnl_pct"`
	Holdings        []HoldingView `json:"holdings"`
}

type Window struct {
	Change    float64 `json:"change"`
	ChangePct float64 `json:"change_pct"`
}

type Mover struct {
	Symbol       string  `json:"symbol"`
	LastPrice    float64 `json:"last_price"`
	DayChangePct float64 `json:"day_change_pct"`
}

type Analysis struct {
	Daily      Window  `json:"daily"`
	Weekly     Window  `json:"weekly"`
	Monthly    Window  `json:"monthly"`
	Yearly     Window  `json:"yearly"`
	TopGainers []Mover `json:"top_gainers"`
	TopLosers  []Mover `json:"top_losers"`
}

// Summarize computes per-holding and aggregate value/P&L figures.
// Percentages are plain float division: a zero base yields NaN or Inf,
// which callers must treat as undefined rather than a number.
func Summarize(holdings []broker.Holding) Summary {
	out := Summary{Holdings: make([]HoldingView, 0, len(holdings))}
	for _, h := range holdings {
		view := HoldingView{
			Symbol:        h.Symbol,
			Exchange:      h.Exchange,
			Quantity:      h.Quantity,
			AveragePrice:  h.AveragePrice,
			LastPrice:     h.LastPrice,
			PreviousClose: h.PreviousClose,
			CurrentValue:  h.Quantity * h.LastPrice,
			Investment:    h.Quantity * h.AveragePrice,
			DayPnL:        h.Quantity * (h.LastPrice - h.PreviousClose),
			OverallPnL:    h.Quantity * (h.LastPrice - h.AveragePrice),
			DayChangePct:  dayChangePct(h),
		}
		out.TotalValue += view.CurrentValue
		out.TotalInvestment += view.Investment
		out.DayPnL += view.DayPnL
		out.OverallPnL += view.OverallPnL
		out.Holdings = append(out.Holdings, view)
	}
	out.DayPnLPct = out.DayPnL / out.TotalValue * 100
	out.OverallPnLPct = out.OverallPnL / out.TotalInvestment * 100
	return out
}

// Analyze derives the four performance windows plus top movers. The
// daily window is measured against previous close; weekly, monthly and
// yearly are all measured against average acquisition price and are
// therefore identical until real historical data exists.
func Analyze(holdings []broker.Holding) Analysis {
	var dayChange, closeBase, allChange, avgBase float64
	for _, h := range holdings {
		dayChange += h.Quantity * (h.LastPrice - h.PreviousClose)
		closeBase += h.Quantity * h.PreviousClose
		allChange += h.Quantity * (h.LastPrice - h.AveragePrice)
		avgBase += h.Quantity * h.AveragePrice
	}

	allTime := Window{Change: allChange, ChangePct: allChange / avgBase * 100}
	out := Analysis{
		Daily:   Window{Change: dayChange, ChangePct: dayChange / closeBase * 100},
		Weekly:  allTime,
		Monthly: allTime,
		Yearly:  allTime,
	}

	movers := make([]Mover, 0, len(holdings))
	for _, h := range holdings {
		movers = append(movers, Mover{
			Symbol:       h.Symbol,
			LastPrice:    h.LastPrice,
			DayChangePct: dayChangePct(h),
		})
	}
	sort.SliceStable(movers, func(i, j int) bool {
		return movers[i].DayChangePct > movers[j].DayChangePct
	})

	n := len(movers)
	top := n
	if top > 3 {
		top = 3
	}
	out.TopGainers = append([]Mover(nil), movers[:top]...)

	// Bottom three of the same descending order, reported worst first.
	losers := append([]Mover(nil), movers[n-top:]...)
	for i, j := 0, len(losers)-1; i < j; i, j = i+1, j-1 {
		losers[i], losers[j] = losers[j], losers[i]
	}
	out.TopLosers = losers
	return out
}

func dayChangePct(h broker.Holding) float64 {
	if h.PreviousClose == 0 {
		if h.DayChangePct != 0 {
			return h.DayChangePct
		}
		return 0
	}
	return (h.LastPrice - h.PreviousClose) / h.PreviousClose * 100
}
