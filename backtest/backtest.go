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

package backtest

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/marshm100/Robinhood-Dashboard-v0.1-sub001/common"
	"github.com/marshm100/Robinhood-Dashboard-v0.1-sub001/data"
	"github.com/marshm100/Robinhood-Dashboard-v0.1-sub001/observability/opentelemetry"
	"github.com/marshm100/Robinhood-Dashboard-v0.1-sub001/portfolio"
)

// Result is the outcome of simulating an allocation
type Result struct {
	Spec          *AllocationSpec
	Series        *portfolio.ValueSeries
	MissingLegs   []data.Missing
	Shares        map[string]float64
	TotalInvested float64
	Metrics       *portfolio.MetricsBundle
}

// FinalValue is the value of the last point of the series
func (r *Result) FinalValue() float64 {
	if r.Series == nil || r.Series.Len() == 0 {
		return 0
	}
	return r.Series.Points[r.Series.Len()-1].Value
}

func (r *Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Spec          *AllocationSpec          `json:"allocation"`
		TotalInvested float64                  `json:"total_invested"`
		FinalValue    float64                  `json:"final_value"`
		Shares        map[string]float64       `json:"shares"`
		ValueHistory  []portfolio.ValuePoint   `json:"value_history"`
		MissingLegs   []data.Missing           `json:"missing_legs"`
		Metrics       *portfolio.MetricsBundle `json:"metrics"`
	}{
		Spec:          r.Spec,
		TotalInvested: r.TotalInvested,
		FinalValue:    r.FinalValue(),
		Shares:        r.Shares,
		ValueHistory:  r.Series.Points,
		MissingLegs:   r.MissingLegs,
		Metrics:       r.Metrics,
	})
}

// Engine simulates hypothetical allocations against historical prices
type Engine struct {
	prices  portfolio.PriceSource
	metrics portfolio.MetricsOptions
}

func New(prices portfolio.PriceSource) *Engine {
	return &Engine{
		prices: prices,
	}
}

// WithMetricsOptions sets the options used to compute the result metrics
func (e *Engine) WithMetricsOptions(opts portfolio.MetricsOptions) *Engine {
	e.metrics = opts
	return e
}

// InvestmentDates returns the dates on which money is invested: begin for a
// lump sum; begin and the first of every following month up to end for dca
func InvestmentDates(strategy Strategy, begin, end time.Time) []time.Time {
	begin = common.Day(begin)
	end = common.Day(end)
	if end.Before(begin) {
		return []time.Time{}
	}

	dates := []time.Time{begin}
	if strategy != DCA {
		return dates
	}

	next := time.Date(begin.Year(), begin.Month()+1, 1, 0, 0, 0, 0, begin.Location())
	for !next.After(end) {
		dates = append(dates, next)
		next = next.AddDate(0, 1, 0)
	}
	return dates
}

// Run simulates spec over [begin, end]. Each investment is split across the
// allocation by weight and converted to shares at that day's price. Legs that
// cannot be priced are skipped and reported in MissingLegs; the simulated
// holdings are then valued the same way as an actual portfolio. The tickers
// of spec are upper cased in place.
func (e *Engine) Run(ctx context.Context, spec *AllocationSpec, begin, end time.Time) (*Result, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "backtest.Run")
	defer span.End()

	if spec == nil {
		return nil, portfolio.ErrValidation
	}
	spec.normalize()
	if err := spec.Validate(); err != nil {
		span.SetStatus(codes.Error, "invalid allocation")
		return nil, err
	}

	begin = common.Day(begin)
	end = common.Day(end)
	if end.Before(begin) {
		span.SetStatus(codes.Error, "invalid date range")
		return nil, portfolio.ErrInvalidDateRange
	}

	span.SetAttributes(
		attribute.String("Strategy", string(spec.Strategy)),
		attribute.StringSlice("Tickers", spec.Tickers()),
	)

	subLog := log.With().Str("Allocation", spec.Name).Str("Strategy", string(spec.Strategy)).Logger()

	tickers := spec.Tickers()
	if _, err := e.prices.GetPricesBatch(ctx, tickers, begin, end); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "preload failed")
		subLog.Error().Err(err).Msg("could not preload prices for backtest")
		return nil, err
	}

	amount := spec.InitialInvestment
	if spec.Strategy == DCA {
		amount = spec.MonthlyInvestment
	}

	result := &Result{
		Spec:        spec,
		MissingLegs: make([]data.Missing, 0),
	}

	invested := decimal.Zero
	trxs := make([]*portfolio.Transaction, 0)
	for _, date := range InvestmentDates(spec.Strategy, begin, end) {
		for _, ticker := range tickers {
			weight := spec.Weights[ticker]
			if weight == 0 {
				continue
			}

			quote, err := e.prices.GetPrice(ctx, ticker, date)
			if err == nil && !(quote.Close > 0) {
				err = data.ErrDataNotFound
			}
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, ctxErr
				}
				if !errors.Is(err, data.ErrDataNotFound) {
					subLog.Warn().Err(err).Str("Ticker", ticker).Time("Date", date).Msg("price lookup failed")
				}
				subLog.Warn().Str("Ticker", ticker).Time("Date", date).Msg("skipping leg that cannot be priced")
				result.MissingLegs = append(result.MissingLegs, data.Missing{Ticker: ticker, Date: date})
				continue
			}

			legAmount := decimal.NewFromFloat(amount).Mul(decimal.NewFromFloat(weight))
			dollars, _ := legAmount.Float64()
			trxs = append(trxs, portfolio.NewTransaction(date, ticker, portfolio.Buy, dollars/quote.Close, quote.Close, -dollars))
			invested = invested.Add(legAmount)
		}
	}

	ledger := portfolio.NewLedger(trxs)
	series, err := portfolio.NewValuationEngine(ledger, e.prices).ValueHistory(ctx, begin, end)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "valuation failed")
		return nil, err
	}

	result.Series = series
	result.Shares = ledger.HoldingsAt(end)
	result.TotalInvested, _ = invested.Float64()
	result.Metrics = portfolio.ComputeMetrics(series, nil, e.metrics)

	subLog.Info().Int("NumLegs", len(trxs)).Int("NumMissingLegs", len(result.MissingLegs)).
		Float64("TotalInvested", result.TotalInvested).Float64("FinalValue", result.FinalValue()).Msg("backtest complete")

	return result, nil
}
