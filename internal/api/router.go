package api

import (
	"context"
	"fmt"
	"log"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"

	"broker-gateway/internal/advisor"
	"broker-gateway/internal/broker"
	"broker-gateway/internal/monitor"
	"broker-gateway/internal/portfolio"
	"broker-gateway/internal/store"
)

// Broker is the slice of the broker client the handlers consume.
// *broker.Client satisfies it.
type Broker interface {
	LoginURL() string
	GenerateSession(ctx context.Context, requestToken string) (broker.Session, error)
	GetProfile(ctx context.Context) (broker.Profile, error)
	GetHoldings(ctx context.Context) ([]broker.Holding, error)
	GetQuote(ctx context.Context, symbols []string) (map[string]broker.Quote, error)
	PlaceOrder(ctx context.Context, variety string, p broker.OrderParams) (string, error)
}

type MonitorRequest struct {
	Symbol     string   `json:"symbol"`
	AbovePrice *float64 `json:"abovePrice"`
	BelowPrice *float64 `json:"belowPrice"`
}

type StopMonitorRequest struct {
	Symbol string `json:"symbol"`
}

type OrderRequest struct {
	Variety         string  `json:"variety"`
	Exchange        string  `json:"exchange"`
	Symbol          string  `json:"symbol"`
	TransactionType string  `json:"transactionType"`
	OrderType       string  `json:"orderType"`
	Product         string  `json:"product"`
	Quantity        int     `json:"quantity"`
	Price           float64 `json:"price"`
	TriggerPrice    float64 `json:"triggerPrice"`
	Validity        string  `json:"validity"`
}

func RegisterRoutes(h *server.Hertz, bk Broker, st *store.Store, mon *monitor.Service, adv *advisor.Agent) {
	h.GET("/healthz", func(_ context.Context, c *app.RequestContext) {
		c.JSON(http.StatusOK, map[string]bool{"ok": true})
	})

	h.GET("/start-auth", func(_ context.Context, c *app.RequestContext) {
		loginURL := bk.LoginURL()
		log.Printf("auth: open %s to start the login flow", loginURL)
		c.JSON(http.StatusOK, map[string]string{
			"message": fmt.Sprintf("open %s in a browser to login", loginURL),
		})
	})

	h.GET("/login", func(_ context.Context, c *app.RequestContext) {
		c.JSON(http.StatusOK, map[string]string{"loginUrl": bk.LoginURL()})
	})

	h.GET("/callback", func(ctx context.Context, c *app.RequestContext) {
		requestToken := c.Query("request_token")
		if requestToken == "" {
			fail(c, fmt.Errorf("request_token is required"))
			return
		}
		session, err := bk.GenerateSession(ctx, requestToken)
		if err != nil {
			fail(c, err)
			return
		}
		if err := st.SaveSession(session.AccessToken); err != nil {
			log.Printf("save session error: %v", err)
		}
		c.JSON(http.StatusOK, map[string]string{"accessToken": session.AccessToken})
	})

	h.GET("/profile", func(ctx context.Context, c *app.RequestContext) {
		profile, err := bk.GetProfile(ctx)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, profile)
	})

	h.GET("/portfolio", func(ctx context.Context, c *app.RequestContext) {
		holdings, err := bk.GetHoldings(ctx)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, jsonSafeSummary(portfolio.Summarize(holdings)))
	})

	h.GET("/portfolio/performance", func(ctx context.Context, c *app.RequestContext) {
		holdings, err := bk.GetHoldings(ctx)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, jsonSafeAnalysis(portfolio.Analyze(holdings)))
	})

	h.POST("/portfolio/insights", func(ctx context.Context, c *app.RequestContext) {
		holdings, err := bk.GetHoldings(ctx)
		if err != nil {
			fail(c, err)
			return
		}
		input := advisor.Input{
			Summary: jsonSafeSummary(portfolio.Summarize(holdings)),
			AsOf:    time.Now().Format("2006-01-02"),
		}
		mode := "fallback"
		insight, err := adv.Evaluate(ctx, input)
		if err != nil {
			log.Printf("advisor eval error: %v", err)
		} else if adv.Enabled() {
			mode = "llm"
		}
		c.JSON(http.StatusOK, map[string]any{
			"mode":    mode,
			"insight": insight,
		})
	})

	h.GET("/quote", func(ctx context.Context, c *app.RequestContext) {
		symbols := parseSymbols(c.Query("symbols"))
		if len(symbols) == 0 {
			fail(c, fmt.Errorf("symbols is required"))
			return
		}
		quotes, err := bk.GetQuote(ctx, symbols)
		if err != nil {
			fail(c, err)
			return
		}
		keys := make([]string, 0, len(quotes))
		for sym := range quotes {
			keys = append(keys, sym)
		}
		sort.Strings(keys)
		pairs := make([][]any, 0, len(keys))
		for _, sym := range keys {
			pairs = append(pairs, []any{sym, quotes[sym]})
		}
		c.JSON(http.StatusOK, pairs)
	})

	h.POST("/monitor", func(_ context.Context, c *app.RequestContext) {
		var req MonitorRequest
		if err := c.BindJSON(&req); err != nil {
			fail(c, fmt.Errorf("invalid json body: %w", err))
			return
		}
		if req.Symbol == "" {
			fail(c, fmt.Errorf("symbol is required"))
			return
		}
		mon.Watch(req.Symbol, req.AbovePrice, req.BelowPrice)
		c.JSON(http.StatusOK, map[string]string{
			"message": fmt.Sprintf("monitoring %s", req.Symbol),
		})
	})

	h.POST("/stop-monitor", func(_ context.Context, c *app.RequestContext) {
		var req StopMonitorRequest
		if err := c.BindJSON(&req); err != nil {
			fail(c, fmt.Errorf("invalid json body: %w", err))
			return
		}
		if req.Symbol == "" {
			fail(c, fmt.Errorf("symbol is required"))
			return
		}
		mon.Unwatch(req.Symbol)
		c.JSON(http.StatusOK, map[string]string{
			"message": fmt.Sprintf("stopped monitoring %s", req.Symbol),
		})
	})

	h.POST("/order", func(ctx context.Context, c *app.RequestContext) {
		var req OrderRequest
		if err := c.BindJSON(&req); err != nil {
			fail(c, fmt.Errorf("invalid json body: %w", err))
			return
		}
		if req.Symbol == "" || req.Exchange == "" || req.Quantity <= 0 {
			fail(c, fmt.Errorf("exchange, symbol and quantity are required"))
			return
		}
		orderID, err := bk.PlaceOrder(ctx, req.Variety, broker.OrderParams{
			Exchange:        req.Exchange,
			Symbol:          req.Symbol,
			TransactionType: req.TransactionType,
			OrderType:       req.OrderType,
			Product:         req.Product,
			Quantity:        req.Quantity,
			Price:           req.Price,
			TriggerPrice:    req.TriggerPrice,
			Validity:        req.Validity,
		})
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, map[string]string{"orderId": orderID})
	})

	h.GET("/alerts", func(_ context.Context, c *app.RequestContext) {
		symbol := c.Query("symbol")
		limit, err := parseIntQuery(c.Query("limit"), 200)
		if err != nil {
			fail(c, fmt.Errorf("invalid limit"))
			return
		}
		offset, err := parseIntQuery(c.Query("offset"), 0)
		if err != nil {
			fail(c, fmt.Errorf("invalid offset"))
			return
		}
		items, err := st.QueryAlerts(symbol, limit, offset)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, map[string]any{"items": items})
	})
}

// fail converts any handler failure into the gateway's uniform error
// shape: HTTP 500 with {error: message}. Validation failures share this
// path; there is no separate 400 response.
func fail(c *app.RequestContext, err error) {
	log.Printf("request error: %v", err)
	c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

// The calculator's percentage fields are plain float division and go
// non-finite on a zero base (an empty portfolio). JSON cannot encode NaN
// or Inf, so the handlers zero those fields before rendering.
func jsonSafeSummary(s portfolio.Summary) portfolio.Summary {
	s.DayPnLPct = finiteOrZero(s.DayPnLPct)
	s.OverallPnLPct = finiteOrZero(s.OverallPnLPct)
	for i := range s.Holdings {
		s.Holdings[i].DayChangePct = finiteOrZero(s.Holdings[i].DayChangePct)
	}
	return s
}

func jsonSafeAnalysis(a portfolio.Analysis) portfolio.Analysis {
	a.Daily.ChangePct = finiteOrZero(a.Daily.ChangePct)
	a.Weekly.ChangePct = finiteOrZero(a.Weekly.ChangePct)
	a.Monthly.ChangePct = finiteOrZero(a.Monthly.ChangePct)
	a.Yearly.ChangePct = finiteOrZero(a.Yearly.ChangePct)
	for i := range a.TopGainers {
		a.TopGainers[i].DayChangePct = finiteOrZero(a.TopGainers[i].DayChangePct)
	}
	for i := range a.TopLosers {
		a.TopLosers[i].DayChangePct = finiteOrZero(a.TopLosers[i].DayChangePct)
	}
	return a
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func parseSymbols(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseIntQuery(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid number: %q", raw)
	}
	return v, nil
}
