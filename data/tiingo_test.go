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

package data_test

import (
	"context"
	"errors"
	"net/http"

	"github.com/jarcoal/httpmock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/marshm100/Robinhood-Dashboard-v0.1-sub001/data"
)

const tiingoVFINX = `[
{"date":"2021-01-04T00:00:00.000Z","close":332.13,"high":338.1,"low":330.52,"open":337.82,"volume":0,"adjClose":320.1},
{"date":"2021-01-05T00:00:00.000Z","close":334.51,"high":335.23,"low":332.01,"open":332.41,"volume":0,"adjClose":322.4}
]`

var _ = Describe("Tiingo", func() {
	var (
		ctx    context.Context
		tiingo *data.Tiingo
	)

	BeforeEach(func() {
		httpmock.Activate()
		ctx = context.Background()
		tiingo = data.NewTiingo("secret")
	})

	AfterEach(func() {
		httpmock.DeactivateAndReset()
	})

	It("parses daily prices", func() {
		httpmock.RegisterResponder("GET", `=~^https://api.tiingo.com/tiingo/daily/VFINX/prices`,
			httpmock.NewStringResponder(200, tiingoVFINX))

		points, err := tiingo.Fetch(ctx, "VFINX", day(2021, 1, 4), day(2021, 1, 5))
		Expect(err).To(BeNil())
		Expect(points).To(HaveLen(2))
		Expect(points[0].Date).To(Equal(day(2021, 1, 4)))
		Expect(points[0].Close).Should(BeNumerically("~", 332.13))
		Expect(points[1].Open).Should(BeNumerically("~", 332.41))
		Expect(httpmock.GetTotalCallCount()).To(Equal(1))
	})

	It("treats an unknown ticker as no data", func() {
		httpmock.RegisterResponder("GET", `=~^https://api.tiingo.com/tiingo/daily/NOPE/prices`,
			httpmock.NewStringResponder(http.StatusNotFound, `{"detail":"Error: Ticker 'NOPE' not found"}`))

		points, err := tiingo.Fetch(ctx, "NOPE", day(2021, 1, 4), day(2021, 1, 5))
		Expect(err).To(BeNil())
		Expect(points).To(BeEmpty())
	})

	It("reports server errors", func() {
		httpmock.RegisterResponder("GET", `=~^https://api.tiingo.com/tiingo/daily/VFINX/prices`,
			httpmock.NewStringResponder(http.StatusInternalServerError, ``))

		_, err := tiingo.Fetch(ctx, "VFINX", day(2021, 1, 4), day(2021, 1, 5))
		Expect(errors.Is(err, data.ErrProviderStatus)).To(BeTrue())
	})
})
