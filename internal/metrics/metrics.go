// Package metrics accumulates the per-step series and the final summary of a
// run. The aggregator is append-only while the run is live and read-only once
// finalized.
package metrics

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/enchere-labs/marketsim/internal/types"
)

// Aggregator accumulates transaction, price and volume statistics per step.
// Not safe for concurrent use; the simulation manager owns it for the run.
type Aggregator struct {
	window int

	transactions []types.Transaction
	series       []types.StepStats

	// recent holds up to `window` most recent trade prices per item, the
	// basis of the rolling volatility estimate.
	recent map[types.ItemID][]float64
}

// NewAggregator creates an aggregator. window is how many recent trade prices
// feed the rolling volatility estimate per item.
func NewAggregator(window int) *Aggregator {
	if window < 2 {
		window = 2
	}

	return &Aggregator{
		window: window,
		recent: make(map[types.ItemID][]float64),
	}
}

// RecordStep ingests one completed step: its transactions plus the step's
// order counts and book depth. Transactions must already carry their
// per-step Seq; the aggregator appends them to the run log in order.
func (a *Aggregator) RecordStep(step int64, txs []types.Transaction, orders, rejected, pending int64) {
	stats := types.StepStats{
		Step:          step,
		Orders:        orders,
		Rejected:      rejected,
		Transactions:  int64(len(txs)),
		Value:         decimal.Zero,
		VWAP:          make(map[types.ItemID]decimal.Decimal),
		Volatility:    make(map[types.ItemID]float64),
		PendingOrders: pending,
	}

	stepVolume := make(map[types.ItemID]int64)
	stepValue := make(map[types.ItemID]decimal.Decimal)

	for _, tx := range txs {
		a.transactions = append(a.transactions, tx)

		value := tx.Value()
		stats.Volume += tx.Quantity
		stats.Value = stats.Value.Add(value)

		stepVolume[tx.ItemID] += tx.Quantity
		stepValue[tx.ItemID] = stepValue[tx.ItemID].Add(value)

		a.pushPrice(tx.ItemID, tx.Price)
	}

	for item, volume := range stepVolume {
		stats.VWAP[item] = stepValue[item].Div(decimal.NewFromInt(volume)).Round(4)
	}

	for item, prices := range a.recent {
		if len(prices) >= 2 {
			stats.Volatility[item] = stddev(prices)
		}
	}

	a.series = append(a.series, stats)
}

func (a *Aggregator) pushPrice(item types.ItemID, price decimal.Decimal) {
	prices := append(a.recent[item], price.InexactFloat64())
	if len(prices) > a.window {
		prices = prices[len(prices)-a.window:]
	}
	a.recent[item] = prices
}

// stddev is the population standard deviation.
func stddev(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))

	var sq float64
	for _, x := range xs {
		d := x - mean
		sq += d * d
	}

	return math.Sqrt(sq / float64(len(xs)))
}

// Transactions returns the full run log in recording order.
func (a *Aggregator) Transactions() []types.Transaction {
	return a.transactions
}

// Series returns the per-step stats recorded so far.
func (a *Aggregator) Series() []types.StepStats {
	return a.series
}

// WindowVWAP computes the volume-weighted average price of an item across the
// steps in [from, to). Zero volume yields false.
func (a *Aggregator) WindowVWAP(item types.ItemID, from, to int64) (decimal.Decimal, bool) {
	var volume int64
	value := decimal.Zero

	for _, tx := range a.transactions {
		if tx.ItemID != item || tx.Step < from || tx.Step >= to {
			continue
		}
		volume += tx.Quantity
		value = value.Add(tx.Value())
	}

	if volume == 0 {
		return decimal.Zero, false
	}

	return value.Div(decimal.NewFromInt(volume)).Round(4), true
}

// Finalize produces the run summary. The aggregator is still readable
// afterwards but must not record further steps.
func (a *Aggregator) Finalize() types.Summary {
	summary := types.Summary{
		TotalValue:     decimal.Zero,
		StepsCompleted: int64(len(a.series)),
	}

	for _, stats := range a.series {
		summary.TotalTransactions += stats.Transactions
		summary.TotalVolume += stats.Volume
		summary.TotalValue = summary.TotalValue.Add(stats.Value)
	}

	if summary.StepsCompleted > 0 {
		summary.AvgTransactions = float64(summary.TotalTransactions) / float64(summary.StepsCompleted)
		summary.AvgVolume = float64(summary.TotalVolume) / float64(summary.StepsCompleted)
	}

	return summary
}
