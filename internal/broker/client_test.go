package broker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	c := NewClient(Config{
		APIKey:    "key",
		APISecret: "secret",
		BaseURL:   ts.URL,
		LoginURL:  "https://broker.example/connect/login",
		Timeout:   2 * time.Second,
	})
	return c, ts
}

func TestLoginURL(t *testing.T) {
	c := NewClient(Config{APIKey: "key", LoginURL: "https://broker.example/connect/login"})

	u, err := url.Parse(c.LoginURL())
	if err != nil {
		t.Fatalf("invalid login url: %v", err)
	}
	q := u.Query()
	if q.Get("api_key") != "key" {
		t.Errorf("expected api_key=key, got %q", q.Get("api_key"))
	}
	if q.Get("v") != "3" {
		t.Errorf("expected v=3, got %q", q.Get("v"))
	}
}

func TestGenerateSession(t *testing.T) {
	var gotForm url.Values
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/session/token" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		gotForm = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","data":{"access_token":"tok123","user_id":"AB1234"}}`))
	}))

	session, err := c.GenerateSession(context.Background(), "reqtok")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.AccessToken != "tok123" {
		t.Errorf("expected access token tok123, got %q", session.AccessToken)
	}
	if session.UserID != "AB1234" {
		t.Errorf("expected user id AB1234, got %q", session.UserID)
	}

	sum := sha256.Sum256([]byte("key" + "reqtok" + "secret"))
	if gotForm.Get("checksum") != hex.EncodeToString(sum[:]) {
		t.Errorf("wrong checksum: %q", gotForm.Get("checksum"))
	}
	if gotForm.Get("api_key") != "key" || gotForm.Get("request_token") != "reqtok" {
		t.Errorf("wrong form fields: %v", gotForm)
	}

	// The token is installed for subsequent authenticated calls.
	if c.AccessToken() != "tok123" {
		t.Errorf("expected token installed on client, got %q", c.AccessToken())
	}
}

func TestGenerateSession_EmptyToken(t *testing.T) {
	c := NewClient(Config{APIKey: "key", APISecret: "secret"})
	if _, err := c.GenerateSession(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty request token")
	}
}

func TestGetQuote_BatchedRequestAndAuthHeader(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/quote" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "token key:tok123" {
			t.Errorf("wrong auth header: %q", got)
		}
		if got := r.Header.Get("X-Kite-Version"); got != "3" {
			t.Errorf("wrong version header: %q", got)
		}
		if got := r.URL.Query()["i"]; len(got) != 2 || got[0] != "NSE:INFY" || got[1] != "NSE:TCS" {
			t.Errorf("expected one batched request with both symbols, got %v", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","data":{
			"NSE:INFY":{"last_price":1500.5,"net_change":10.5,"ohlc":{"close":1490},"timestamp":"2024-05-01 10:00:00"},
			"NSE:TCS":{"last_price":3900,"ohlc":{"close":4000}}
		}}`))
	}))
	c.SetAccessToken("tok123")

	quotes, err := c.GetQuote(context.Background(), []string{"NSE:INFY", "NSE:TCS"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(quotes) != 2 {
		t.Fatalf("expected 2 quotes, got %d", len(quotes))
	}

	infy := quotes["NSE:INFY"]
	if infy.LastPrice != 1500.5 || infy.Change != 10.5 {
		t.Errorf("unexpected INFY quote: %+v", infy)
	}
	if infy.TS == 0 {
		t.Error("expected parsed timestamp")
	}

	// Change derived from previous close when the feed omits net_change.
	tcs := quotes["NSE:TCS"]
	if tcs.Change != -100 {
		t.Errorf("expected derived change -100, got %.2f", tcs.Change)
	}
	if tcs.ChangePct != -2.5 {
		t.Errorf("expected change pct -2.5, got %.2f", tcs.ChangePct)
	}
}

func TestGetQuote_EmptySymbols(t *testing.T) {
	c := NewClient(Config{APIKey: "key"})
	if _, err := c.GetQuote(context.Background(), nil); err == nil {
		t.Fatal("expected error for empty symbols")
	}
}

func TestGetHoldings(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/portfolio/holdings" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","data":[
			{"tradingsymbol":"INFY","exchange":"NSE","quantity":10,"average_price":80,"last_price":100,"close_price":90,"day_change":10,"day_change_percentage":11.11}
		]}`))
	}))

	holdings, err := c.GetHoldings(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(holdings) != 1 {
		t.Fatalf("expected 1 holding, got %d", len(holdings))
	}
	h := holdings[0]
	if h.Symbol != "INFY" || h.Exchange != "NSE" {
		t.Errorf("unexpected identity: %+v", h)
	}
	if h.Quantity != 10 || h.AveragePrice != 80 || h.LastPrice != 100 || h.PreviousClose != 90 {
		t.Errorf("unexpected prices: %+v", h)
	}
}

func TestGetProfile(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/user/profile" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","data":{"user_id":"AB1234","user_name":"Test User","email":"t@example.com","broker":"ZERODHA"}}`))
	}))

	profile, err := c.GetProfile(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if profile.UserID != "AB1234" || profile.UserName != "Test User" {
		t.Errorf("unexpected profile: %+v", profile)
	}
}

func TestPlaceOrder(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/orders/regular" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if r.PostForm.Get("tradingsymbol") != "INFY" || r.PostForm.Get("quantity") != "5" {
			t.Errorf("unexpected form: %v", r.PostForm)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","data":{"order_id":"240501000001"}}`))
	}))

	orderID, err := c.PlaceOrder(context.Background(), "", OrderParams{
		Exchange:        "NSE",
		Symbol:          "INFY",
		TransactionType: "BUY",
		OrderType:       "MARKET",
		Product:         "CNC",
		Quantity:        5,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if orderID != "240501000001" {
		t.Errorf("expected order id 240501000001, got %q", orderID)
	}
}

func TestErrorEnvelope(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"status":"error","message":"Invalid token","error_type":"TokenException"}`))
	}))

	_, err := c.GetProfile(context.Background())
	if err == nil {
		t.Fatal("expected error from error envelope")
	}
	if !strings.Contains(err.Error(), "TokenException") || !strings.Contains(err.Error(), "Invalid token") {
		t.Errorf("error should carry upstream type and message, got: %v", err)
	}
}
