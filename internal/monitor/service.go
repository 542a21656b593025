// Package monitor keeps the set of watched symbols and drives the one
// shared polling loop that evaluates price thresholds against them.
package monitor

import (
	"context"
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"broker-gateway/internal/alert"
	"broker-gateway/internal/broker"
)

// QuoteFetcher is the one upstream call the poll loop needs.
type QuoteFetcher interface {
	GetQuote(ctx context.Context, symbols []string) (map[string]broker.Quote, error)
}

// Sink receives emitted threshold alerts.
type Sink interface {
	Emit(ctx context.Context, e alert.Event)
}

// Watch is one monitored symbol. An unset side defaults to ±Inf so it
// can never fire.
type Watch struct {
	Symbol string
	Above  float64
	Below  float64
}

type Service struct {
	fetcher      QuoteFetcher
	sink         Sink
	interval     time.Duration
	fetchTimeout time.Duration

	mu      sync.Mutex
	watches map[string]Watch
	cancel  context.CancelFunc

	tickMu sync.Mutex // held for the duration of one tick; TryLock skips overlaps
}

func New(fetcher QuoteFetcher, sink Sink, interval, fetchTimeout time.Duration) *Service {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	if fetchTimeout <= 0 {
		fetchTimeout = 10 * time.Second
	}
	return &Service{
		fetcher:      fetcher,
		sink:         sink,
		interval:     interval,
		fetchTimeout: fetchTimeout,
		watches:      make(map[string]Watch),
	}
}

// Watch inserts or overwrites the thresholds for symbol. A nil threshold
// leaves that side open. Starts the poll loop on the empty → non-empty
// transition.
func (s *Service) Watch(symbol string, above, below *float64) {
	w := Watch{Symbol: symbol, Above: math.Inf(1), Below: math.Inf(-1)}
	if above != nil {
		w.Above = *above
	}
	if below != nil {
		w.Below = *below
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.watches[symbol] = w
	if s.cancel == nil {
		ctx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		go s.run(ctx)
	}
}

// Unwatch removes symbol. Unknown symbols are a no-op. Stops the poll
// loop when the registry becomes empty.
func (s *Service) Unwatch(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.watches, symbol)
	if len(s.watches) == 0 && s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// Watching returns a snapshot of the registry, sorted by symbol.
func (s *Service) Watching() []Watch {
	s.mu.Lock()
	out := make([]Watch, 0, len(s.watches))
	for _, w := range s.watches {
		out = append(out, w)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Polling reports whether the shared loop is active. Invariant: true iff
// the registry is non-empty.
func (s *Service) Polling() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Close stops the loop and empties the registry. Nothing is persisted.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.watches = make(map[string]Watch)
}

func (s *Service) run(ctx context.Context) {
	s.tick(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs one poll cycle: snapshot, one batched quote fetch, evaluate.
// A tick that fires while the previous one is still in flight is skipped
// so at most one upstream request is outstanding.
func (s *Service) tick(ctx context.Context) {
	if !s.tickMu.TryLock() {
		log.Printf("monitor: previous tick still in flight, skipping")
		return
	}
	defer s.tickMu.Unlock()

	symbols := s.snapshotSymbols()
	if len(symbols) == 0 {
		return
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()
	quotes, err := s.fetcher.GetQuote(fetchCtx, symbols)
	if err != nil {
		// A failed tick is dropped; the loop itself keeps going and no
		// watches are removed.
		log.Printf("monitor poll error: %v", err)
		return
	}

	s.evaluate(ctx, quotes)
}

func (s *Service) snapshotSymbols() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	symbols := make([]string, 0, len(s.watches))
	for sym := range s.watches {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	return symbols
}

// evaluate checks each returned quote against the thresholds currently
// in the registry. Alerting is level-triggered: the same alert fires on
// every tick while the condition holds. Both sides are independent and
// can both fire in one tick when thresholds are misconfigured
// (above < below).
func (s *Service) evaluate(ctx context.Context, quotes map[string]broker.Quote) {
	s.mu.Lock()
	current := make(map[string]Watch, len(s.watches))
	for sym, w := range s.watches {
		current[sym] = w
	}
	s.mu.Unlock()

	for sym, q := range quotes {
		w, ok := current[sym]
		if !ok {
			// Removed between snapshot and response; a race, not an error.
			continue
		}
		if q.LastPrice > w.Above {
			s.sink.Emit(ctx, alert.Event{
				TS:        q.TS,
				Symbol:    sym,
				Direction: alert.DirectionAbove,
				LastPrice: q.LastPrice,
				Threshold: w.Above,
			})
		}
		if q.LastPrice < w.Below {
			s.sink.Emit(ctx, alert.Event{
				TS:        q.TS,
				Symbol:    sym,
				Direction: alert.DirectionBelow,
				LastPrice: q.LastPrice,
				Threshold: w.Below,
			})
		}
	}
}
