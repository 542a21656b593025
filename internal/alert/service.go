// Package alert observes threshold crossings. Alerts are logged and
// recorded locally; there is no outbound delivery channel.
package alert

import (
	"context"
	"log"
	"time"

	"broker-gateway/internal/store"
)

type Direction string

const (
	DirectionAbove Direction = "above"
	DirectionBelow Direction = "below"
)

type Event struct {
	TS        int64     `json:"ts"`
	Symbol    string    `json:"symbol"`
	Direction Direction `json:"direction"`
	LastPrice float64   `json:"last_price"`
	Threshold float64   `json:"threshold"`
}

type Service struct {
	store *store.Store
}

func NewService(st *store.Store) *Service {
	return &Service{store: st}
}

// Emit logs the event and writes its audit row. A store failure is
// logged and swallowed: observing an alert must never fail the caller.
func (s *Service) Emit(_ context.Context, e Event) {
	if e.TS == 0 {
		e.TS = time.Now().Unix()
	}
	log.Printf("alert: %s %s threshold=%.4f last=%.4f", e.Symbol, e.Direction, e.Threshold, e.LastPrice)

	if s == nil || s.store == nil {
		return
	}
	rec := store.AlertRecord{
		TS:        e.TS,
		Symbol:    e.Symbol,
		Direction: string(e.Direction),
		LastPrice: e.LastPrice,
		Threshold: e.Threshold,
	}
	if err := s.store.InsertAlert(rec); err != nil {
		log.Printf("insert alert record error: %v", err)
	}
}
