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

import "github.com/prometheus/client_golang/prometheus"

var (
	priceLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pvdash_price_lookups_total",
			Help: "Price lookups by result (exact, carry_forward, miss)",
		},
		[]string{"result"},
	)
	providerFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pvdash_price_provider_fetches_total",
			Help: "Calls made to the price provider by outcome",
		},
		[]string{"outcome"},
	)
	blobStoreLoads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pvdash_price_blob_loads_total",
			Help: "Second level cache reads by result (hit, miss, stale)",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(priceLookups, providerFetches, blobStoreLoads)
}
