package usecase

import (
	"sync"
	"time"
)

type pricePoint struct {
	price float64
	at    time.Time
}

// PriceCache keeps the last streamed price per symbol.
type PriceCache struct {
	mu     sync.RWMutex
	prices map[string]pricePoint
	now    func() time.Time
}

func NewPriceCache() *PriceCache {
	return &PriceCache{
		prices: make(map[string]pricePoint),
		now:    time.Now,
	}
}

// Update matches the exchange stream callback signature. Samples that are
// not positive finite numbers are dropped.
func (c *PriceCache) Update(symbol string, price float64) {
	if !positiveFinite(price) {
		return
	}
	c.mu.Lock()
	c.prices[symbol] = pricePoint{price: price, at: c.now()}
	c.mu.Unlock()
}

// Get returns the cached price if it is younger than maxAge. A zero maxAge
// accepts any age.
func (c *PriceCache) Get(symbol string, maxAge time.Duration) (float64, bool) {
	c.mu.RLock()
	p, ok := c.prices[symbol]
	c.mu.RUnlock()
	if !ok {
		return 0, false
	}
	if maxAge > 0 && c.now().Sub(p.at) > maxAge {
		return 0, false
	}
	return p.price, true
}
