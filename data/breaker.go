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
	"github.com/sony/gobreaker"
)

// BreakerProvider guards a provider with a circuit breaker so an unavailable
// upstream fails fast instead of stalling every lookup
type BreakerProvider struct {
	provider Provider
	cb       *gobreaker.CircuitBreaker
}

// NewBreakerProvider opens after maxFailures consecutive failures and probes
// the provider again after timeout
func NewBreakerProvider(name string, provider Provider, maxFailures uint32, timeout time.Duration) *BreakerProvider {
	return &BreakerProvider{
		provider: provider,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    name,
			Timeout: timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= maxFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn().Str("Breaker", name).Str("From", from.String()).Str("To", to.String()).Msg("price provider circuit breaker changed state")
			},
		}),
	}
}

func (b *BreakerProvider) Fetch(ctx context.Context, ticker string, begin, end time.Time) ([]*PricePoint, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.provider.Fetch(ctx, ticker, begin, end)
	})
	if err != nil {
		return nil, err
	}
	return res.([]*PricePoint), nil
}

// State returns the current breaker state
func (b *BreakerProvider) State() gobreaker.State {
	return b.cb.State()
}
