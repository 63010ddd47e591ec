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
	"context"
	"errors"
	"math"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/marshm100/Robinhood-Dashboard-v0.1-sub001/common"
	"github.com/marshm100/Robinhood-Dashboard-v0.1-sub001/data"
	"github.com/marshm100/Robinhood-Dashboard-v0.1-sub001/observability/opentelemetry"
)

// PriceSource resolves closing prices; it is satisfied by *data.PriceCache
type PriceSource interface {
	GetPrice(ctx context.Context, ticker string, date time.Time) (*data.PricePoint, error)
	GetPricesBatch(ctx context.Context, tickers []string, begin, end time.Time) (map[string][]*data.PricePoint, error)
}

// ValuationEngine values the holdings implied by a ledger over time
type ValuationEngine struct {
	ledger *Ledger
	prices PriceSource
}

func NewValuationEngine(ledger *Ledger, prices PriceSource) *ValuationEngine {
	return &ValuationEngine{
		ledger: ledger,
		prices: prices,
	}
}

// ValueAt returns the market value of the holdings as of date
func (engine *ValuationEngine) ValueAt(ctx context.Context, date time.Time) (*ValuePoint, error) {
	date = common.Day(date)
	point, err := ValueHoldings(ctx, engine.prices, engine.ledger.HoldingsAt(date), date)
	if err != nil {
		return nil, err
	}
	return &point, nil
}

// ValueHistory values the portfolio on an adaptive grid of dates between
// begin and end (inclusive)
func (engine *ValuationEngine) ValueHistory(ctx context.Context, begin, end time.Time) (*ValueSeries, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "ValuationEngine.ValueHistory")
	defer span.End()

	begin = common.Day(begin)
	end = common.Day(end)
	span.SetAttributes(
		attribute.String("Begin", begin.Format("2006-01-02")),
		attribute.String("End", end.Format("2006-01-02")),
	)

	if end.Before(begin) {
		span.SetStatus(codes.Error, "invalid date range")
		return nil, ErrInvalidDateRange
	}

	dates, freq := SampleDates(begin, end, engine.ledger.TransactionDates())
	holdings := engine.ledger.HoldingsSeries(dates)

	held := make(map[string]bool)
	for _, snap := range holdings {
		for ticker := range snap {
			held[ticker] = true
		}
	}
	tickers := make([]string, 0, len(held))
	for ticker := range held {
		tickers = append(tickers, ticker)
	}

	if len(tickers) > 0 {
		if _, err := engine.prices.GetPricesBatch(ctx, tickers, begin, end); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "preload failed")
			log.Error().Err(err).Strs("Tickers", tickers).Msg("could not preload prices for valuation")
			return nil, err
		}
	}

	points := make([]ValuePoint, 0, len(dates))
	for idx, date := range dates {
		point, err := ValueHoldings(ctx, engine.prices, holdings[idx], date)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "valuation cancelled")
			return nil, err
		}
		points = append(points, point)
	}

	series, err := NewValueSeries(points, freq)
	if err != nil {
		return nil, err
	}

	log.Debug().Int("NumPoints", series.Len()).Str("Frequency", string(freq)).Int("NumTickers", len(tickers)).Msg("computed value history")
	return series, nil
}

// ValueHoldings prices each holding at date and sums quantity × close.
// Holdings that cannot be priced are listed in the point's Missing field;
// only cancellation of ctx is returned as an error.
func ValueHoldings(ctx context.Context, prices PriceSource, holdings Holdings, date time.Time) (ValuePoint, error) {
	point := ValuePoint{Date: date}
	for _, ticker := range holdings.Tickers() {
		if err := ctx.Err(); err != nil {
			return point, err
		}

		quote, err := prices.GetPrice(ctx, ticker, date)
		if err != nil {
			if !errors.Is(err, data.ErrDataNotFound) {
				log.Warn().Err(err).Str("Ticker", ticker).Time("Date", date).Msg("price lookup failed")
			}
			point.Missing = append(point.Missing, ticker)
			continue
		}
		if !(quote.Close > 0) || math.IsInf(quote.Close, 0) {
			log.Warn().Str("Ticker", ticker).Time("Date", date).Float64("Close", quote.Close).Msg("ignoring unusable close")
			point.Missing = append(point.Missing, ticker)
			continue
		}
		point.Value += holdings[ticker] * quote.Close
	}
	return point, nil
}
