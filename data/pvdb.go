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

package data

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/marshm100/Robinhood-Dashboard-v0.1-sub001/common"
	"github.com/marshm100/Robinhood-Dashboard-v0.1-sub001/data/database"
	"github.com/marshm100/Robinhood-Dashboard-v0.1-sub001/observability/opentelemetry"
)

const eodSQL = `SELECT event_date, open, high, low, close, (volume::double precision) AS volume FROM eod WHERE ticker=$1 AND event_date BETWEEN $2 AND $3 ORDER BY event_date`

// PvDb reads end-of-day quotes from the eod table of a postgres database
type PvDb struct {
}

// NewPvDb Create a new PVDB data provider
func NewPvDb() *PvDb {
	return &PvDb{}
}

// Fetch loads all quotes for ticker between begin and end (inclusive)
func (p *PvDb) Fetch(ctx context.Context, ticker string, begin, end time.Time) ([]*PricePoint, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "pvdb.Fetch")
	defer span.End()

	span.SetAttributes(attribute.String("Ticker", ticker))

	subLog := log.With().Str("Ticker", ticker).Time("Begin", begin).Time("End", end).Logger()

	if end.Before(begin) {
		subLog.Warn().Stack().Msg("end before begin in call to pvdb.Fetch")
		return nil, ErrBeginAfterEnd
	}

	trx, err := database.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		msg := "failed to load eod prices -- could not get a database transaction"
		span.SetStatus(codes.Error, msg)
		subLog.Warn().Stack().Err(err).Msg(msg)
		return nil, err
	}

	rows, err := trx.Query(ctx, eodSQL, ticker, begin, end)
	if err != nil {
		span.RecordError(err)
		msg := "failed to load eod prices -- db query failed"
		span.SetStatus(codes.Error, msg)
		subLog.Warn().Stack().Err(err).Str("SQL", eodSQL).Msg(msg)
		if err := trx.Rollback(ctx); err != nil {
			subLog.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return nil, err
	}

	tz := common.GetTimezone()
	points := make([]*PricePoint, 0, 252)
	for rows.Next() {
		var eventDate time.Time
		point := &PricePoint{Ticker: ticker}
		if err := rows.Scan(&eventDate, &point.Open, &point.High, &point.Low, &point.Close, &point.Volume); err != nil {
			span.RecordError(err)
			subLog.Error().Stack().Err(err).Msg("failed to load eod prices -- db query scan failed")
			rows.Close()
			if err := trx.Rollback(ctx); err != nil {
				subLog.Error().Stack().Err(err).Msg("could not rollback transaction")
			}
			return nil, err
		}
		point.Date = time.Date(eventDate.Year(), eventDate.Month(), eventDate.Day(), 0, 0, 0, 0, tz)
		points = append(points, point)
	}
	rows.Close()

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "row iteration failed")
		subLog.Error().Stack().Err(err).Msg("failed to load eod prices -- row iteration failed")
		if err := trx.Rollback(ctx); err != nil {
			subLog.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return nil, err
	}

	if err := trx.Commit(ctx); err != nil {
		subLog.Warn().Stack().Err(err).Msg("error committing transaction")
	}

	subLog.Debug().Int("NumPoints", len(points)).Msg("loaded eod prices")
	return points, nil
}
