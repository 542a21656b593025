package broker

// Quote is one instrument's last traded state. Fetched fresh per call,
// never cached by this package.
type Quote struct {
	Symbol    string  `json:"symbol"`
	LastPrice float64 `json:"last_price"`
	Change    float64 `json:"change"`
	ChangePct float64 `json:"change_pct"`
	TS        int64   `json:"ts"`
}

// Holding is one portfolio position as reported by the broker.
type Holding struct {
	Symbol        string  `json:"symbol"`
	Exchange      string  `json:"exchange"`
	Quantity      float64 `json:"quantity"`
	AveragePrice  float64 `json:"average_price"`
	LastPrice     float64 `json:"last_price"`
	PreviousClose float64 `json:"previous_close"`
	DayChange     float64 `json:"day_change"`
	DayChangePct  float64 `json:"day_change_pct"`
}

type Profile struct {
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
	Email     string `json:"email"`
	Broker    string `json:"broker"`
	UserType  string `json:"user_type"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

type Session struct {
	AccessToken string `json:"access_token"`
	PublicToken string `json:"public_token,omitempty"`
	UserID      string `json:"user_id,omitempty"`
}

// OrderParams carries the fields of a regular order. Optional prices are
// zero when unused (market orders).
type OrderParams struct {
	Exchange        string  `json:"exchange"`
	Symbol          string  `json:"symbol"`
	TransactionType string  `json:"transaction_type"`
	OrderType       string  `json:"order_type"`
	Product         string  `json:"product"`
	Quantity        int     `json:"quantity"`
	Price           float64 `json:"price,omitempty"`
	TriggerPrice    float64 `json:"trigger_price,omitempty"`
	Validity        string  `json:"validity,omitempty"`
}
