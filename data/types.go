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

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// PricePoint is the end-of-day quote of a ticker
type PricePoint struct {
	Ticker string    `json:"ticker"`
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Provider fetches raw price points for a ticker over [begin, end]. Results
// need not be sorted; the cache normalizes them.
type Provider interface {
	Fetch(ctx context.Context, ticker string, begin, end time.Time) ([]*PricePoint, error)
}

// ProviderFunc adapts a plain function to the Provider interface
type ProviderFunc func(ctx context.Context, ticker string, begin, end time.Time) ([]*PricePoint, error)

func (f ProviderFunc) Fetch(ctx context.Context, ticker string, begin, end time.Time) ([]*PricePoint, error) {
	return f(ctx, ticker, begin, end)
}

// Missing identifies a (ticker, date) pair for which no price could be resolved
type Missing struct {
	Ticker string
	Date   time.Time
}

func (m Missing) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Ticker string `json:"ticker"`
		Date   string `json:"date"`
	}{
		Ticker: m.Ticker,
		Date:   m.Date.Format("2006-01-02"),
	})
}

// MarshalZerologObject implement the log marshaller interface for zerolog
func (m Missing) MarshalZerologObject(e *zerolog.Event) {
	e.Str("Ticker", m.Ticker).Time("Date", m.Date)
}
