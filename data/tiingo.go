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
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/marshm100/Robinhood-Dashboard-v0.1-sub001/common"
	"github.com/marshm100/Robinhood-Dashboard-v0.1-sub001/observability/opentelemetry"
)

type tiingoJSONResponse struct {
	Date     string  `json:"date"`
	Close    float64 `json:"close"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Open     float64 `json:"open"`
	Volume   int64   `json:"volume"`
	AdjClose float64 `json:"adjClose"`
}

var tiingoAPI = "https://api.tiingo.com"

// Tiingo fetches daily quotes from the tiingo REST API
type Tiingo struct {
	apikey string
	client *http.Client
}

// NewTiingo Create a new Tiingo data provider
func NewTiingo(key string) *Tiingo {
	return &Tiingo{
		apikey: key,
		client: http.DefaultClient,
	}
}

// Fetch requests daily prices for ticker between begin and end
func (t *Tiingo) Fetch(ctx context.Context, ticker string, begin, end time.Time) ([]*PricePoint, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "tiingo.Fetch")
	defer span.End()

	subLog := log.With().Str("Ticker", ticker).Time("Begin", begin).Time("End", end).Logger()

	if end.Before(begin) {
		return nil, ErrBeginAfterEnd
	}

	symbol := strings.ReplaceAll(ticker, "/", "-")
	query := url.Values{}
	query.Set("startDate", begin.Format("2006-01-02"))
	query.Set("endDate", end.Format("2006-01-02"))
	endpoint := fmt.Sprintf("%s/tiingo/daily/%s/prices", tiingoAPI, url.PathEscape(symbol))

	span.SetAttributes(
		attribute.String("Url", endpoint+"?"+query.Encode()),
		attribute.String("Symbol", symbol),
	)

	query.Set("token", t.apikey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	resp, err := t.client.Do(req)
	if err != nil {
		span.RecordError(err)
		msg := "tiingo http request failed"
		span.SetStatus(codes.Error, msg)
		subLog.Error().Err(err).Msg(msg)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		// unknown ticker: no data rather than a failure
		subLog.Warn().Msg("tiingo does not know ticker")
		return []*PricePoint{}, nil
	}

	if resp.StatusCode >= 400 {
		span.SetAttributes(attribute.Int("StatusCode", resp.StatusCode))
		msg := "tiingo returned invalid response code"
		span.SetStatus(codes.Error, msg)
		subLog.Error().Int("HTTPResponseStatusCode", resp.StatusCode).Msg(msg)
		return nil, fmt.Errorf("%w: %d", ErrProviderStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		msg := "could not read tiingo body"
		span.SetStatus(codes.Error, msg)
		subLog.Error().Err(err).Msg(msg)
		return nil, err
	}

	jsonResp := []tiingoJSONResponse{}
	if err := json.Unmarshal(body, &jsonResp); err != nil {
		span.RecordError(err)
		msg := "could not unmarshal json"
		span.SetStatus(codes.Error, msg)
		subLog.Error().Err(err).Bytes("Body", body).Msg(msg)
		return nil, err
	}

	tz := common.GetTimezone()
	points := make([]*PricePoint, 0, len(jsonResp))
	for _, quote := range jsonResp {
		dtParts := strings.Split(quote.Date, "T")
		day, err := time.ParseInLocation("2006-01-02", dtParts[0], tz)
		if err != nil {
			subLog.Warn().Err(err).Str("DateStr", quote.Date).Msg("skipping quote with unparsable date")
			continue
		}

		points = append(points, &PricePoint{
			Ticker: ticker,
			Date:   day,
			Open:   quote.Open,
			High:   quote.High,
			Low:    quote.Low,
			Close:  quote.Close,
			Volume: float64(quote.Volume),
		})
	}

	return points, nil
}
