// Package stream fans out real-time price updates to websocket subscribers.
package stream

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"custodia/internal/logger"
)

// subscriberBuffer is the per-subscriber message backlog. A subscriber that
// falls further behind than this is dropped.
const subscriberBuffer = 16

// PriceUpdate is the payload pushed to subscribers when an asset's price
// moves.
type PriceUpdate struct {
	Ticker             string              `json:"ticker"`
	CurrentPrice       decimal.Decimal     `json:"current_price"`
	DailyChange        decimal.NullDecimal `json:"daily_change,omitempty"`
	DailyChangePercent decimal.NullDecimal `json:"daily_change_percent,omitempty"`
	Volume             int64               `json:"volume"`
	Timestamp          time.Time           `json:"timestamp"`
	MarketStatus       string              `json:"market_status"`
}

// Subscriber is one registered consumer of price updates.
type Subscriber struct {
	ch chan []byte
}

// Messages returns the subscriber's delivery channel. The channel is closed
// when the subscriber is unsubscribed or dropped.
func (s *Subscriber) Messages() <-chan []byte {
	return s.ch
}

// Hub keeps the registry of live subscribers and broadcasts encoded updates
// to all of them. Delivery is best effort: a subscriber whose buffer is full
// is dropped rather than stalling the broadcast for everyone else.
type Hub struct {
	mu          sync.Mutex
	subscribers map[*Subscriber]struct{}
	log         *zap.SugaredLogger
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[*Subscriber]struct{}),
		log:         logger.Named("stream"),
	}
}

// Subscribe registers a new consumer.
func (h *Hub) Subscribe() *Subscriber {
	sub := &Subscriber{ch: make(chan []byte, subscriberBuffer)}
	h.mu.Lock()
	h.subscribers[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// Unsubscribe removes a consumer and closes its channel. Safe to call for a
// subscriber the hub has already dropped.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	h.remove(sub)
	h.mu.Unlock()
}

// Broadcast encodes the update once and delivers it to every subscriber.
func (h *Hub) Broadcast(update PriceUpdate) {
	payload, err := json.Marshal(update)
	if err != nil {
		h.log.Errorw("failed to encode price update", "ticker", update.Ticker, "error", err)
		return
	}

	h.mu.Lock()
	for sub := range h.subscribers {
		select {
		case sub.ch <- payload:
		default:
			h.log.Warnw("dropping slow subscriber", "ticker", update.Ticker)
			h.remove(sub)
		}
	}
	h.mu.Unlock()
}

// Count returns the number of live subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// remove must be called with the mutex held.
func (h *Hub) remove(sub *Subscriber) {
	if _, ok := h.subscribers[sub]; ok {
		delete(h.subscribers, sub)
		close(sub.ch)
	}
}
