// Package analyzer keeps a bounded rolling window of received trades and
// derives descriptive statistics over it, served on /analysis.
package analyzer

import (
	"math"
	"sync"

	"github.com/luxfi/tradewire/pkg/wire"
)

// Stats is the point-in-time view over the current window.
type Stats struct {
	WindowSize int     `json:"window_size"`
	MeanQty    float64 `json:"mean_qty"`
	StdQty     float64 `json:"std_qty"`
	MaxQty     float64 `json:"max_qty"`
	BuyCount   int     `json:"buy_count"`
	SellCount  int     `json:"sell_count"`
	BuyVolume  float64 `json:"buy_volume"`
	SellVolume float64 `json:"sell_volume"`
}

// Analyzer is a fixed-capacity ring over the most recent trades.
type Analyzer struct {
	mu     sync.RWMutex
	trades []wire.TradeMsg
	next   int
	filled bool
}

// New builds an analyzer holding at most window trades. window <= 0
// defaults to 100.
func New(window int) *Analyzer {
	if window <= 0 {
		window = 100
	}
	return &Analyzer{trades: make([]wire.TradeMsg, window)}
}

// Add records one trade, evicting the oldest when the window is full.
func (a *Analyzer) Add(t wire.TradeMsg) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.trades[a.next] = t
	a.next++
	if a.next == len(a.trades) {
		a.next = 0
		a.filled = true
	}
}

// Stats computes the window statistics. An empty window yields zeroes.
func (a *Analyzer) Stats() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	n := a.next
	if a.filled {
		n = len(a.trades)
	}
	stats := Stats{WindowSize: n}
	if n == 0 {
		return stats
	}

	sum := 0.0
	for i := 0; i < n; i++ {
		t := a.trades[i]
		sum += t.Qty
		if t.Qty > stats.MaxQty {
			stats.MaxQty = t.Qty
		}
		switch t.Side {
		case wire.Buy:
			stats.BuyCount++
			stats.BuyVolume += t.Qty
		case wire.Sell:
			stats.SellCount++
			stats.SellVolume += t.Qty
		}
	}
	stats.MeanQty = sum / float64(n)

	variance := 0.0
	for i := 0; i < n; i++ {
		d := a.trades[i].Qty - stats.MeanQty
		variance += d * d
	}
	stats.StdQty = math.Sqrt(variance / float64(n))

	return stats
}
