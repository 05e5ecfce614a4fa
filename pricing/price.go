// Package pricing provides the BTC/USD price used to convert USD-denominated
// commons contributions into BTC. A moving average keeps contributors from
// being penalised by short price swings between contribution and evaluation.
package pricing

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"commons-governance/errs"
	"commons-governance/logger"
)

const (
	// DefaultWindow is the moving average window.
	DefaultWindow = 30 * 24 * time.Hour
	// DefaultPriceUSD is used when no price point has been recorded.
	DefaultPriceUSD = 50000.0
	// retention keeps a week beyond the window.
	retention = 7 * 24 * time.Hour
	maxPoints = 1000
)

// Source yields the BTC price in USD used for conversions.
type Source interface {
	MovingAverage() (float64, error)
}

// Static is a fixed price source.
type Static float64

func (s Static) MovingAverage() (float64, error) {
	if s <= 0 {
		return 0, errs.New(errs.Validation, "pricing.Static", "price must be positive, got %v", float64(s))
	}
	return float64(s), nil
}

type point struct {
	usd float64
	at  time.Time
}

// MovingAverage averages recorded prices inside a trailing window.
type MovingAverage struct {
	mu       sync.RWMutex
	window   time.Duration
	fallback float64
	points   []point
	now      func() time.Time
}

// NewMovingAverage returns a source with the given window and fallback price.
// Zero values select DefaultWindow and DefaultPriceUSD.
func NewMovingAverage(window time.Duration, fallback float64) *MovingAverage {
	if window <= 0 {
		window = DefaultWindow
	}
	if fallback <= 0 {
		fallback = DefaultPriceUSD
	}
	return &MovingAverage{window: window, fallback: fallback, now: time.Now}
}

// AddPrice records a price point and trims points outside the retention span.
func (m *MovingAverage) AddPrice(usd float64, at time.Time) error {
	if usd <= 0 {
		return errs.New(errs.Validation, "pricing.AddPrice", "price must be positive, got %v", usd)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.points = append(m.points, point{usd: usd, at: at})
	cutoff := m.now().Add(-(m.window + retention))
	i := 0
	for i < len(m.points) && m.points[i].at.Before(cutoff) {
		i++
	}
	m.points = m.points[i:]
	if len(m.points) > maxPoints {
		m.points = m.points[len(m.points)-maxPoints:]
	}
	return nil
}

// MovingAverage returns the mean price inside the window. Without points in
// the window it falls back to the latest price, then to the configured default.
func (m *MovingAverage) MovingAverage() (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cutoff := m.now().Add(-m.window)
	var sum float64
	var n int
	for _, p := range m.points {
		if !p.at.Before(cutoff) {
			sum += p.usd
			n++
		}
	}
	if n == 0 {
		if len(m.points) > 0 {
			latest := m.points[len(m.points)-1].usd
			logger.Logger.Warn("No BTC price inside moving average window, using latest",
				zap.Duration("window", m.window), zap.Float64("price_usd", latest))
			return latest, nil
		}
		return m.fallback, nil
	}
	return sum / float64(n), nil
}

// USDToBTC converts an amount using the moving average.
func USDToBTC(src Source, usd float64) (float64, error) {
	price, err := src.MovingAverage()
	if err != nil {
		return 0, err
	}
	if price <= 0 {
		return 0, errs.New(errs.Validation, "pricing.USDToBTC", "non-positive BTC price %v", price)
	}
	return usd / price, nil
}
