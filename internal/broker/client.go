// Package broker is a typed client for a Kite-Connect-style trading API.
// Every response shape the gateway relies on is decoded into an explicit
// struct; the upstream error envelope becomes a normal Go error.
package broker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

const kiteVersion = "3"

type Client struct {
	apiKey    string
	apiSecret string
	baseURL   string
	loginURL  string
	client    *http.Client

	mu          sync.RWMutex
	accessToken string
}

type Config struct {
	APIKey    string
	APISecret string
	BaseURL   string
	LoginURL  string
	Timeout   time.Duration
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.kite.trade"
	}
	if cfg.LoginURL == "" {
		cfg.LoginURL = "https://kite.zerodha.com/connect/login"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 7 * time.Second
	}
	return &Client{
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		loginURL:  cfg.LoginURL,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// LoginURL returns the browser URL that starts the broker's login flow.
func (c *Client) LoginURL() string {
	u, err := url.Parse(c.loginURL)
	if err != nil {
		return c.loginURL
	}
	q := u.Query()
	q.Set("v", kiteVersion)
	q.Set("api_key", c.apiKey)
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	c.accessToken = token
	c.mu.Unlock()
}

func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// GenerateSession exchanges a request token for an access token. The
// checksum is sha256(api_key + request_token + api_secret), hex encoded.
// The token is installed on the client before returning.
func (c *Client) GenerateSession(ctx context.Context, requestToken string) (Session, error) {
	if requestToken == "" {
		return Session{}, fmt.Errorf("request_token is empty")
	}

	sum := sha256.Sum256([]byte(c.apiKey + requestToken + c.apiSecret))
	form := url.Values{}
	form.Set("api_key", c.apiKey)
	form.Set("request_token", requestToken)
	form.Set("checksum", hex.EncodeToString(sum[:]))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/session/token", strings.NewReader(form.Encode()))
	if err != nil {
		return Session{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var payload sessionData
	if err := c.do(req, &payload); err != nil {
		return Session{}, fmt.Errorf("generate session: %w", err)
	}
	if payload.AccessToken == "" {
		return Session{}, fmt.Errorf("generate session: empty access token in response")
	}

	session := Session{
		AccessToken: payload.AccessToken,
		PublicToken: payload.PublicToken,
		UserID:      payload.UserID,
	}
	c.SetAccessToken(session.AccessToken)
	return session, nil
}

func (c *Client) GetProfile(ctx context.Context) (Profile, error) {
	var payload profileData
	if err := c.getJSON(ctx, "/user/profile", nil, &payload); err != nil {
		return Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return Profile{
		UserID:    payload.UserID,
		UserName:  payload.UserName,
		Email:     payload.Email,
		Broker:    payload.Broker,
		UserType:  payload.UserType,
		AvatarURL: payload.AvatarURL,
	}, nil
}

func (c *Client) GetHoldings(ctx context.Context) ([]Holding, error) {
	var payload []holdingData
	if err := c.getJSON(ctx, "/portfolio/holdings", nil, &payload); err != nil {
		return nil, fmt.Errorf("get holdings: %w", err)
	}
	out := make([]Holding, 0, len(payload))
	for _, h := range payload {
		out = append(out, Holding{
			Symbol:        h.TradingSymbol,
			Exchange:      h.Exchange,
			Quantity:      h.Quantity,
			AveragePrice:  h.AveragePrice,
			LastPrice:     h.LastPrice,
			PreviousClose: h.ClosePrice,
			DayChange:     h.DayChange,
			DayChangePct:  h.DayChangePct,
		})
	}
	return out, nil
}

// GetQuote fetches all requested symbols in one batched call. The result
// is keyed by the symbol as requested.
func (c *Client) GetQuote(ctx context.Context, symbols []string) (map[string]Quote, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("symbols is empty")
	}
	q := url.Values{}
	for _, sym := range symbols {
		q.Add("i", sym)
	}

	var payload map[string]quoteData
	if err := c.getJSON(ctx, "/quote", q, &payload); err != nil {
		return nil, fmt.Errorf("get quote: %w", err)
	}

	out := make(map[string]Quote, len(payload))
	for sym, d := range payload {
		change := d.NetChange
		changePct := 0.0
		if d.OHLC.Close != 0 {
			if change == 0 {
				change = d.LastPrice - d.OHLC.Close
			}
			changePct = change / d.OHLC.Close * 100
		}
		ts := d.Timestamp.Unix()
		if ts <= 0 {
			ts = time.Now().Unix()
		}
		out[sym] = Quote{
			Symbol:    sym,
			LastPrice: d.LastPrice,
			Change:    change,
			ChangePct: changePct,
			TS:        ts,
		}
	}
	return out, nil
}

// PlaceOrder submits an order under the given variety and returns the
// broker-assigned order ID.
func (c *Client) PlaceOrder(ctx context.Context, variety string, p OrderParams) (string, error) {
	if variety == "" {
		variety = "regular"
	}
	form := url.Values{}
	form.Set("exchange", p.Exchange)
	form.Set("tradingsymbol", p.Symbol)
	form.Set("transaction_type", p.TransactionType)
	form.Set("order_type", p.OrderType)
	form.Set("product", p.Product)
	form.Set("quantity", strconv.Itoa(p.Quantity))
	if p.Price > 0 {
		form.Set("price", strconv.FormatFloat(p.Price, 'f', -1, 64))
	}
	if p.TriggerPrice > 0 {
		form.Set("trigger_price", strconv.FormatFloat(p.TriggerPrice, 'f', -1, 64))
	}
	if p.Validity != "" {
		form.Set("validity", p.Validity)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/orders/"+variety, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var payload orderData
	if err := c.do(req, &payload); err != nil {
		return "", fmt.Errorf("place order: %w", err)
	}
	if payload.OrderID == "" {
		return "", fmt.Errorf("place order: empty order id in response")
	}
	return payload.OrderID, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return c.do(req, out)
}

// do sends the request with auth headers and unwraps the broker's
// {status, data} envelope into out.
func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("X-Kite-Version", kiteVersion)
	if token := c.AccessToken(); token != "" {
		req.Header.Set("Authorization", "token "+c.apiKey+":"+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode >= 400 || env.Status == "error" {
		msg := env.Message
		if msg == "" {
			msg = resp.Status
		}
		if env.ErrorType != "" {
			return fmt.Errorf("broker error (%s): %s", env.ErrorType, msg)
		}
		return fmt.Errorf("broker error: %s", msg)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}

type envelope struct {
	Status    string          `json:"status"`
	Message   string          `json:"message"`
	ErrorType string          `json:"error_type"`
	Data      json.RawMessage `json:"data"`
}

type sessionData struct {
	AccessToken string `json:"access_token"`
	PublicToken string `json:"public_token"`
	UserID      string `json:"user_id"`
}

type profileData struct {
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
	Email     string `json:"email"`
	Broker    string `json:"broker"`
	UserType  string `json:"user_type"`
	AvatarURL string `json:"avatar_url"`
}

type holdingData struct {
	TradingSymbol string  `json:"tradingsymbol"`
	Exchange      string  `json:"exchange"`
	Quantity      float64 `json:"quantity"`
	AveragePrice  float64 `json:"average_price"`
	LastPrice     float64 `json:"last_price"`
	ClosePrice    float64 `json:"close_price"`
	DayChange     float64 `json:"day_change"`
	DayChangePct  float64 `json:"day_change_percentage"`
}

type quoteData struct {
	LastPrice float64 `json:"last_price"`
	NetChange float64 `json:"net_change"`
	OHLC      struct {
		Open  float64 `json:"open"`
		High  float64 `json:"high"`
		Low   float64 `json:"low"`
		Close float64 `json:"close"`
	} `json:"ohlc"`
	Timestamp kiteTime `json:"timestamp"`
}

type orderData struct {
	OrderID string `json:"order_id"`
}

// kiteTime accepts the broker's "2006-01-02 15:04:05" timestamps as well
// as RFC 3339 and null.
type kiteTime struct {
	time.Time
}

func (t *kiteTime) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339} {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("invalid timestamp: %q", s)
}
