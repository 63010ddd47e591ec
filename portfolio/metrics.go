// Copyright 2021-2022
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package portfolio

import (
	"math"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/stat"

	"github.com/marshm100/Robinhood-Dashboard-v0.1-sub001/common"
)

// MetricsOptions control annualization of the risk metrics
type MetricsOptions struct {
	// RiskFreeRate is the annual risk free rate as a fraction, e.g. 0.02
	RiskFreeRate float64

	// PeriodsPerYear overrides the annualization factor; 0 derives it from
	// the series frequency
	PeriodsPerYear float64
}

// DrawdownPeriod is a decline from a peak. Recovery is nil while the value
// has not returned to the previous peak.
type DrawdownPeriod struct {
	Start    time.Time
	Trough   time.Time
	Recovery *time.Time
	DepthPct float64
}

func (dd *DrawdownPeriod) MarshalJSON() ([]byte, error) {
	var recovery *string
	if dd.Recovery != nil {
		s := dd.Recovery.Format("2006-01-02")
		recovery = &s
	}
	return json.Marshal(struct {
		Start    string   `json:"start"`
		Trough   string   `json:"trough"`
		Recovery *string  `json:"recovery"`
		DepthPct *float64 `json:"depth_pct"`
	}{
		Start:    dd.Start.Format("2006-01-02"),
		Trough:   dd.Trough.Format("2006-01-02"),
		Recovery: recovery,
		DepthPct: nullable(dd.DepthPct),
	})
}

// MetricsBundle holds the performance and risk statistics of a value series.
// Returns and drawdowns are fractions (0.1 = 10%); DepthPct is in percent.
// A metric that cannot be computed is NaN.
type MetricsBundle struct {
	TotalReturn     float64
	CAGR            float64
	Volatility      float64
	Sharpe          float64
	Sortino         float64
	MaxDrawdown     float64
	DrawdownPeriods []*DrawdownPeriod
	VaR95           float64
	VaR99           float64
	Beta            float64
}

func undefinedBundle() *MetricsBundle {
	nan := math.NaN()
	return &MetricsBundle{
		TotalReturn:     nan,
		CAGR:            nan,
		Volatility:      nan,
		Sharpe:          nan,
		Sortino:         nan,
		MaxDrawdown:     nan,
		DrawdownPeriods: []*DrawdownPeriod{},
		VaR95:           nan,
		VaR99:           nan,
		Beta:            nan,
	}
}

func (m *MetricsBundle) fields() []struct {
	name string
	val  float64
} {
	return []struct {
		name string
		val  float64
	}{
		{"total_return", m.TotalReturn},
		{"cagr", m.CAGR},
		{"volatility", m.Volatility},
		{"sharpe", m.Sharpe},
		{"sortino", m.Sortino},
		{"max_drawdown", m.MaxDrawdown},
		{"var_95", m.VaR95},
		{"var_99", m.VaR99},
		{"beta", m.Beta},
	}
}

// Undefined lists the names of the metrics that could not be computed
func (m *MetricsBundle) Undefined() []string {
	undefined := make([]string, 0)
	for _, f := range m.fields() {
		if math.IsNaN(f.val) || math.IsInf(f.val, 0) {
			undefined = append(undefined, f.name)
		}
	}
	return undefined
}

func (m *MetricsBundle) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		TotalReturn     *float64          `json:"total_return"`
		CAGR            *float64          `json:"cagr"`
		Volatility      *float64          `json:"volatility"`
		Sharpe          *float64          `json:"sharpe"`
		Sortino         *float64          `json:"sortino"`
		MaxDrawdown     *float64          `json:"max_drawdown"`
		DrawdownPeriods []*DrawdownPeriod `json:"drawdown_periods"`
		VaR95           *float64          `json:"var_95"`
		VaR99           *float64          `json:"var_99"`
		Beta            *float64          `json:"beta"`
	}{
		TotalReturn:     nullable(m.TotalReturn),
		CAGR:            nullable(m.CAGR),
		Volatility:      nullable(m.Volatility),
		Sharpe:          nullable(m.Sharpe),
		Sortino:         nullable(m.Sortino),
		MaxDrawdown:     nullable(m.MaxDrawdown),
		DrawdownPeriods: m.DrawdownPeriods,
		VaR95:           nullable(m.VaR95),
		VaR99:           nullable(m.VaR99),
		Beta:            nullable(m.Beta),
	})
}

// ComputeMetrics derives the metrics bundle of series. Points with unpriced
// holdings are excluded. benchmark may be nil, in which case Beta is
// undefined. ComputeMetrics never fails; degenerate inputs produce NaN fields.
func ComputeMetrics(series *ValueSeries, benchmark *ValueSeries, opts MetricsOptions) *MetricsBundle {
	bundle := undefinedBundle()
	if series == nil {
		return bundle
	}

	complete := series.Complete()
	if complete.Len() < 2 {
		log.Debug().Int("NumPoints", complete.Len()).Msg("too few points to compute metrics")
		return bundle
	}

	dates := complete.Dates()
	vals := complete.Values()
	v0 := vals[0]
	vn := vals[len(vals)-1]

	ppy := opts.PeriodsPerYear
	if ppy <= 0 {
		ppy = complete.PeriodsPerYear()
	}

	// total return and cagr
	if v0 != 0 {
		bundle.TotalReturn = vn/v0 - 1
		days := common.DaysBetween(dates[0], dates[len(dates)-1])
		if days > 0 && vn/v0 >= 0 {
			bundle.CAGR = math.Pow(vn/v0, 365.0/float64(days)) - 1
		}
	}

	// risk metrics
	returns := periodReturns(vals)
	if len(returns) >= 2 && ppy > 0 {
		annualReturn := stat.Mean(returns, nil) * ppy
		bundle.Volatility = stat.StdDev(returns, nil) * math.Sqrt(ppy)
		if bundle.Volatility > 0 {
			bundle.Sharpe = (annualReturn - opts.RiskFreeRate) / bundle.Volatility
		}

		downside := make([]float64, 0, len(returns))
		for _, r := range returns {
			if r < 0 {
				downside = append(downside, r)
			}
		}
		if len(downside) >= 2 {
			downsideDev := stat.StdDev(downside, nil) * math.Sqrt(ppy)
			if downsideDev > 0 {
				bundle.Sortino = (annualReturn - opts.RiskFreeRate) / downsideDev
			}
		}
	}

	if len(returns) > 0 {
		sorted := make([]float64, len(returns))
		copy(sorted, returns)
		sort.Float64s(sorted)
		bundle.VaR95 = stat.Quantile(0.05, stat.Empirical, sorted, nil)
		bundle.VaR99 = stat.Quantile(0.01, stat.Empirical, sorted, nil)
	}

	bundle.MaxDrawdown, bundle.DrawdownPeriods = drawdowns(dates, vals)

	if benchmark != nil {
		bundle.Beta = beta(complete, benchmark.Complete())
	}

	return bundle
}

// periodReturns returns v[i]/v[i-1] - 1 skipping pairs with a zero denominator
func periodReturns(vals []float64) []float64 {
	returns := make([]float64, 0, len(vals))
	for idx := 1; idx < len(vals); idx++ {
		if vals[idx-1] == 0 {
			continue
		}
		returns = append(returns, vals[idx]/vals[idx-1]-1)
	}
	return returns
}

// drawdowns tracks the running peak and records every decline below it
func drawdowns(dates []time.Time, vals []float64) (float64, []*DrawdownPeriod) {
	periods := make([]*DrawdownPeriod, 0)
	maxDrawdown := 0.0
	peak := vals[0]
	peakDate := dates[0]
	var current *DrawdownPeriod

	for idx, val := range vals {
		if val >= peak {
			if current != nil {
				recovery := dates[idx]
				current.Recovery = &recovery
				periods = append(periods, current)
				current = nil
			}
			peak = val
			peakDate = dates[idx]
			continue
		}

		if peak <= 0 {
			continue
		}

		depth := val/peak - 1
		if depth < maxDrawdown {
			maxDrawdown = depth
		}

		switch {
		case current == nil:
			current = &DrawdownPeriod{
				Start:    peakDate,
				Trough:   dates[idx],
				DepthPct: depth * 100,
			}
		case depth*100 < current.DepthPct:
			current.Trough = dates[idx]
			current.DepthPct = depth * 100
		}
	}

	if current != nil {
		periods = append(periods, current)
	}

	return maxDrawdown, periods
}

// pairedReturns computes period returns of a and b over the dates the two
// series have in common
func pairedReturns(a, b *ValueSeries) ([]float64, []float64) {
	bvals := make(map[int64]float64, b.Len())
	for _, point := range b.Points {
		bvals[point.Date.Unix()] = point.Value
	}

	var prevA, prevB float64
	havePrev := false
	ra := make([]float64, 0, a.Len())
	rb := make([]float64, 0, a.Len())
	for _, point := range a.Points {
		bv, ok := bvals[point.Date.Unix()]
		if !ok {
			continue
		}
		if havePrev && prevA != 0 && prevB != 0 {
			ra = append(ra, point.Value/prevA-1)
			rb = append(rb, bv/prevB-1)
		}
		prevA, prevB = point.Value, bv
		havePrev = true
	}
	return ra, rb
}

func beta(a, b *ValueSeries) float64 {
	ra, rb := pairedReturns(a, b)
	if len(ra) < 2 {
		return math.NaN()
	}
	variance := stat.Variance(rb, nil)
	if variance == 0 {
		return math.NaN()
	}
	return stat.Covariance(ra, rb, nil) / variance
}

// trackingError is the annualized standard deviation of the difference in
// returns of a and b over their common dates
func trackingError(a, b *ValueSeries, ppy float64) float64 {
	ra, rb := pairedReturns(a, b)
	if len(ra) < 2 || ppy <= 0 {
		return math.NaN()
	}
	diff := make([]float64, len(ra))
	for idx := range ra {
		diff[idx] = ra[idx] - rb[idx]
	}
	return stat.StdDev(diff, nil) * math.Sqrt(ppy)
}
