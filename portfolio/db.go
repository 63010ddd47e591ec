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
	"time"

	"github.com/jackc/pgconn"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/marshm100/Robinhood-Dashboard-v0.1-sub001/common"
	"github.com/marshm100/Robinhood-Dashboard-v0.1-sub001/data/database"
	"github.com/marshm100/Robinhood-Dashboard-v0.1-sub001/observability/opentelemetry"
)

const transactionsSQL = `SELECT event_date, COALESCE(ticker, '') AS ticker, action, quantity, price, amount, COALESCE(source_id, '') AS source_id FROM transactions WHERE account_id=$1 ORDER BY event_date`

// LoadTransactionsFromDB reads the transaction log of accountID from the
// transactions table
func LoadTransactionsFromDB(ctx context.Context, accountID string) ([]*Transaction, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "LoadTransactionsFromDB",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("AccountID", accountID)))
	defer span.End()

	subLog := log.With().Str("AccountID", accountID).Logger()

	trx, err := database.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		msg := "failed to load transactions -- could not get a database transaction"
		span.SetStatus(codes.Error, msg)
		subLog.Warn().Stack().Err(err).Msg(msg)
		return nil, err
	}

	rows, err := trx.Query(ctx, transactionsSQL, accountID)
	if err != nil {
		span.RecordError(err)
		msg := "failed to load transactions -- db query failed"
		span.SetStatus(codes.Error, msg)
		event := subLog.Warn().Stack().Err(err).Str("SQL", transactionsSQL)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			span.SetAttributes(attribute.String("SQLState", pgErr.Code))
			event = event.Str("SQLState", pgErr.Code).Str("Detail", pgErr.Detail)
		}
		event.Msg(msg)
		if err := trx.Rollback(ctx); err != nil {
			subLog.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return nil, err
	}

	tz := common.GetTimezone()
	trxs := make([]*Transaction, 0, 64)
	for rows.Next() {
		var (
			eventDate time.Time
			ticker    string
			action    string
			quantity  float64
			price     float64
			amount    float64
			sourceID  string
		)
		if err := rows.Scan(&eventDate, &ticker, &action, &quantity, &price, &amount, &sourceID); err != nil {
			span.RecordError(err)
			subLog.Error().Stack().Err(err).Msg("failed to load transactions -- db query scan failed")
			rows.Close()
			if err := trx.Rollback(ctx); err != nil {
				subLog.Error().Stack().Err(err).Msg("could not rollback transaction")
			}
			return nil, err
		}

		date := time.Date(eventDate.Year(), eventDate.Month(), eventDate.Day(), 0, 0, 0, 0, tz)
		t := NewTransaction(date, ticker, ParseAction(action), quantity, price, amount)
		if sourceID != "" {
			t.SourceID = sourceID
		}
		trxs = append(trxs, t)
	}
	rows.Close()

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "row iteration failed")
		subLog.Error().Stack().Err(err).Msg("failed to load transactions -- row iteration failed")
		if err := trx.Rollback(ctx); err != nil {
			subLog.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return nil, err
	}

	if err := trx.Commit(ctx); err != nil {
		subLog.Warn().Stack().Err(err).Msg("error committing transaction")
	}

	if len(trxs) == 0 {
		return nil, ErrNoTransactions
	}

	subLog.Debug().Int("NumTransactions", len(trxs)).Msg("loaded transactions")
	return trxs, nil
}
