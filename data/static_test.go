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
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sony/gobreaker"

	"github.com/marshm100/Robinhood-Dashboard-v0.1-sub001/data"
)

var _ = Describe("Static prices", func() {
	It("reads a price file", func() {
		provider, err := data.LoadPricesCSV("../testdata/prices.csv")
		Expect(err).To(BeNil())
		Expect(provider.Tickers()).To(Equal([]string{"PRIDX", "VFINX"}))

		points, err := provider.Fetch(context.Background(), "vfinx", day(2021, 1, 1), day(2021, 1, 31))
		Expect(err).To(BeNil())
		Expect(points).To(HaveLen(2))
		Expect(points[1].Close).Should(BeNumerically("~", 334.51))
	})

	It("accepts columns in any order and without optional columns", func() {
		points, err := data.ReadPricesCSV(strings.NewReader("Close,Date,Ticker\n10.5,2022-02-01,spy\n"))
		Expect(err).To(BeNil())
		Expect(points).To(HaveLen(1))
		Expect(points[0].Ticker).To(Equal("SPY"))
		Expect(points[0].Date).To(Equal(day(2022, 2, 1)))
		Expect(points[0].Close).Should(BeNumerically("~", 10.5))
	})

	DescribeTable("rejects malformed files",
		func(contents string) {
			_, err := data.ReadPricesCSV(strings.NewReader(contents))
			Expect(errors.Is(err, data.ErrInvalidPriceRow)).To(BeTrue())
		},
		Entry("missing close column", "ticker,date\nSPY,2022-02-01\n"),
		Entry("bad date", "ticker,date,close\nSPY,02/01/2022,10\n"),
		Entry("bad number", "ticker,date,close\nSPY,2022-02-01,ten\n"),
		Entry("empty ticker", "ticker,date,close\n,2022-02-01,10\n"),
	)
})

var _ = Describe("BreakerProvider", func() {
	It("stops calling a failing provider", func() {
		inner := &countingProvider{failWith: errUpstream}
		breaker := data.NewBreakerProvider("test", inner, 3, time.Minute)

		for ii := 0; ii < 3; ii++ {
			_, err := breaker.Fetch(context.Background(), "VFINX", day(2021, 1, 4), day(2021, 1, 5))
			Expect(errors.Is(err, errUpstream)).To(BeTrue())
		}
		Expect(breaker.State()).To(Equal(gobreaker.StateOpen))

		_, err := breaker.Fetch(context.Background(), "VFINX", day(2021, 1, 4), day(2021, 1, 5))
		Expect(errors.Is(err, gobreaker.ErrOpenState)).To(BeTrue())
		Expect(inner.Calls()).To(Equal(3))
	})

	It("passes results through", func() {
		breaker := data.NewBreakerProvider("test", data.NewStaticProvider(vfinxWeek()), 3, time.Minute)
		points, err := breaker.Fetch(context.Background(), "VFINX", day(2021, 1, 4), day(2021, 1, 5))
		Expect(err).To(BeNil())
		Expect(points).To(HaveLen(2))
	})
})
