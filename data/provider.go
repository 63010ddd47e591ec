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
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// NewProviderFromConfig builds the provider named by pricing.provider wrapped
// in a circuit breaker
func NewProviderFromConfig() (Provider, error) {
	var provider Provider

	switch name := viper.GetString("pricing.provider"); name {
	case "pvdb":
		provider = NewPvDb()
	case "tiingo":
		provider = NewTiingo(viper.GetString("tiingo.token"))
	case "csv", "":
		fn := viper.GetString("pricing.csv")
		if fn == "" {
			return nil, fmt.Errorf("%w: pricing.csv must be set for the csv provider", ErrNoProvider)
		}
		static, err := LoadPricesCSV(fn)
		if err != nil {
			return nil, err
		}
		return static, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}

	return NewBreakerProvider(viper.GetString("pricing.provider"), provider, 5, 30*time.Second), nil
}

// CacheOptionsFromConfig translates the pricing.* settings into cache options
func CacheOptionsFromConfig() []CacheOption {
	return []CacheOption{
		WithLookback(viper.GetInt("pricing.lookback_days")),
		WithMinRequest(viper.GetInt("pricing.min_request_days")),
		WithTTL(time.Duration(viper.GetInt("pricing.ttl")) * time.Second),
	}
}
