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

package portfolio_test

import (
	"errors"
	"math"
	"time"

	"github.com/goccy/go-json"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/marshm100/Robinhood-Dashboard-v0.1-sub001/dataframe"
	"github.com/marshm100/Robinhood-Dashboard-v0.1-sub001/portfolio"
)

var _ = Describe("Comparison", func() {
	var (
		actual *portfolio.ValueSeries
		bench  *portfolio.ValueSeries
		short  *portfolio.ValueSeries
		inputs []*portfolio.NamedSeries
	)

	BeforeEach(func() {
		var err error
		actual = series(day(2021, 1, 4), dataframe.Daily, 100, 101, 102, 103, 104)
		bench, err = portfolio.NewValueSeries([]portfolio.ValuePoint{
			{Date: day(2021, 1, 4), Value: 50},
			{Date: day(2021, 1, 6), Value: 55},
			{Date: day(2021, 1, 8), Value: 60},
		}, dataframe.Unknown)
		Expect(err).To(BeNil())
		short = series(day(2021, 1, 5), dataframe.Daily, 10, 11)

		inputs = []*portfolio.NamedSeries{
			{Name: "Actual", Series: actual},
			{Name: "SPY", Role: portfolio.RoleBenchmark, Series: bench},
			{Name: "What If", Role: portfolio.RoleHypothetical, Series: short},
		}
	})

	Context("on a percent basis", func() {
		var comparison *portfolio.Comparison

		BeforeEach(func() {
			var err error
			comparison, err = portfolio.Compare(inputs, portfolio.CompareOptions{})
			Expect(err).To(BeNil())
		})

		It("aligns every series on the union of dates", func() {
			Expect(comparison.Basis).To(Equal(portfolio.BasisPercent))
			Expect(comparison.Dates).To(Equal([]time.Time{day(2021, 1, 4), day(2021, 1, 5), day(2021, 1, 6), day(2021, 1, 7), day(2021, 1, 8)}))
			for _, cs := range comparison.Series {
				Expect(cs.Values).To(HaveLen(5))
			}
		})

		It("rebases to the first value", func() {
			vals := comparison.Get("Actual").Values
			for idx, expected := range []float64{0, 1, 2, 3, 4} {
				Expect(vals[idx]).Should(BeNumerically("~", expected, 1e-9))
			}
		})

		It("forward fills inside a series' own range", func() {
			vals := comparison.Get("SPY").Values
			for idx, expected := range []float64{0, 0, 10, 10, 20} {
				Expect(vals[idx]).Should(BeNumerically("~", expected, 1e-9))
			}
		})

		It("is undefined outside a series' own range", func() {
			vals := comparison.Get("What If").Values
			Expect(math.IsNaN(vals[0])).To(BeTrue())
			Expect(vals[1]).Should(BeNumerically("~", 0, 1e-9))
			Expect(vals[2]).Should(BeNumerically("~", 10, 1e-9))
			Expect(math.IsNaN(vals[3])).To(BeTrue())
			Expect(math.IsNaN(vals[4])).To(BeTrue())
		})

		It("has no undefined values between the first and last date of each series", func() {
			for idx, input := range inputs {
				cs := comparison.Series[idx]
				first, last := input.Series.Dates()[0], input.Series.Dates()[input.Series.Len()-1]
				for row, dt := range comparison.Dates {
					if !dt.Before(first) && !dt.After(last) {
						Expect(math.IsNaN(cs.Values[row])).To(BeFalse(), "%s on %s", cs.Name, dt)
					}
				}
			}
		})

		It("treats the first series as the baseline", func() {
			Expect(comparison.Series[0].Role).To(Equal(portfolio.RoleBaseline))
			Expect(comparison.Series[0].VsBaseline).To(BeNil())
			Expect(comparison.Series[1].VsBaseline).ToNot(BeNil())
			Expect(comparison.Series[1].VsBaseline.ExcessReturn).Should(BeNumerically("~", 0.16, 1e-9))
		})

		It("measures every other series against each benchmark", func() {
			Expect(comparison.Get("Actual").VsBenchmarks).To(HaveKey("SPY"))
			Expect(comparison.Get("What If").VsBenchmarks).To(HaveKey("SPY"))
			Expect(comparison.Get("SPY").VsBenchmarks).To(BeEmpty())
		})

		It("computes metrics for every series", func() {
			Expect(comparison.Get("Actual").Metrics.TotalReturn).Should(BeNumerically("~", 0.04, 1e-9))
			Expect(comparison.Get("SPY").Metrics.TotalReturn).Should(BeNumerically("~", 0.2, 1e-9))
			Expect(comparison.Get("What If").Metrics.TotalReturn).Should(BeNumerically("~", 0.1, 1e-9))
		})

		It("encodes undefined values as null", func() {
			out, err := json.Marshal(comparison)
			Expect(err).To(BeNil())
			Expect(string(out)).To(ContainSubstring(`"dates":["2021-01-04",`))
			Expect(string(out)).To(ContainSubstring(`"values":[null,0,`))
		})

		It("renders tables", func() {
			Expect(comparison.Table()).To(ContainSubstring("WHAT IF"))
			Expect(comparison.MetricsTable()).To(ContainSubstring("baseline"))
		})
	})

	Context("on a dollar basis", func() {
		It("scales every series to the starting investment", func() {
			comparison, err := portfolio.Compare(inputs, portfolio.CompareOptions{Basis: portfolio.BasisDollar})
			Expect(err).To(BeNil())
			Expect(comparison.Get("Actual").Values[0]).Should(BeNumerically("~", 10_000, 1e-6))
			Expect(comparison.Get("Actual").Values[4]).Should(BeNumerically("~", 10_400, 1e-6))
			Expect(comparison.Get("SPY").Values[4]).Should(BeNumerically("~", 12_000, 1e-6))
			Expect(comparison.Get("What If").Values[2]).Should(BeNumerically("~", 11_000, 1e-6))
		})

		It("honors a custom starting investment", func() {
			comparison, err := portfolio.Compare(inputs, portfolio.CompareOptions{Basis: portfolio.BasisDollar, StartingInvestment: 1_000})
			Expect(err).To(BeNil())
			Expect(comparison.Get("SPY").Values[2]).Should(BeNumerically("~", 1_100, 1e-6))
		})
	})

	Context("with unpriced samples", func() {
		var comparison *portfolio.Comparison

		BeforeEach(func() {
			partial, err := portfolio.NewValueSeries([]portfolio.ValuePoint{
				{Date: day(2021, 1, 4), Value: 100},
				{Date: day(2021, 1, 5), Value: 40, Missing: []string{"ZZZZ"}},
				{Date: day(2021, 1, 6), Value: 110},
			}, dataframe.Daily)
			Expect(err).To(BeNil())

			comparison, err = portfolio.Compare([]*portfolio.NamedSeries{
				{Name: "Actual", Series: partial},
				{Name: "SPY", Role: portfolio.RoleBenchmark, Series: series(day(2021, 1, 4), dataframe.Daily, 50, 51, 52)},
			}, portfolio.CompareOptions{Basis: portfolio.BasisDollar})
			Expect(err).To(BeNil())
		})

		It("leaves the incomplete date undefined instead of carrying the previous value", func() {
			vals := comparison.Get("Actual").Values
			Expect(vals).To(HaveLen(3))
			Expect(vals[0]).Should(BeNumerically("~", 10_000, 1e-6))
			Expect(math.IsNaN(vals[1])).To(BeTrue())
			Expect(vals[2]).Should(BeNumerically("~", 11_000, 1e-6))
			Expect(comparison.Get("SPY").Values[1]).Should(BeNumerically("~", 10_200, 1e-6))
		})

		It("reports the unpriced tickers", func() {
			missing := comparison.Get("Actual").Missing
			Expect(missing).To(HaveLen(1))
			Expect(missing[0].Ticker).To(Equal("ZZZZ"))
			Expect(missing[0].Date).To(Equal(day(2021, 1, 5)))
			Expect(comparison.Get("SPY").Missing).To(BeEmpty())

			out, err := json.Marshal(comparison)
			Expect(err).To(BeNil())
			Expect(string(out)).To(ContainSubstring("ZZZZ"))
			Expect(string(out)).To(ContainSubstring(`"values":[10000,null,11000]`))
		})

		It("computes metrics from the complete samples only", func() {
			Expect(comparison.Get("Actual").Metrics.TotalReturn).Should(BeNumerically("~", 0.1, 1e-9))
		})
	})

	Context("with an explicit baseline", func() {
		It("measures the other series against it", func() {
			inputs[2].Role = portfolio.RoleBaseline
			comparison, err := portfolio.Compare(inputs, portfolio.CompareOptions{})
			Expect(err).To(BeNil())
			Expect(comparison.Get("What If").VsBaseline).To(BeNil())
			Expect(comparison.Get("Actual").Role).To(Equal(portfolio.RoleHypothetical))
			Expect(comparison.Get("Actual").VsBaseline).ToNot(BeNil())
		})

		It("tracks an identical series perfectly", func() {
			comparison, err := portfolio.Compare([]*portfolio.NamedSeries{
				{Name: "Actual", Role: portfolio.RoleBaseline, Series: actual},
				{Name: "Copy", Series: series(day(2021, 1, 4), dataframe.Daily, 200, 202, 204, 206, 208)},
			}, portfolio.CompareOptions{})
			Expect(err).To(BeNil())
			rel := comparison.Get("Copy").VsBaseline
			Expect(rel.Beta).Should(BeNumerically("~", 1.0, 1e-9))
			Expect(rel.TrackingError).Should(BeNumerically("~", 0, 1e-9))
			Expect(rel.ExcessReturn).Should(BeNumerically("~", 0, 1e-9))
		})
	})

	Context("with degenerate input", func() {
		It("is undefined for a series that starts at zero", func() {
			inputs[2].Series = series(day(2021, 1, 5), dataframe.Daily, 0, 11)
			comparison, err := portfolio.Compare(inputs, portfolio.CompareOptions{})
			Expect(err).To(BeNil())
			for _, val := range comparison.Get("What If").Values {
				Expect(math.IsNaN(val)).To(BeTrue())
			}
			Expect(math.IsNaN(comparison.Get("What If").Metrics.TotalReturn)).To(BeTrue())
		})

		DescribeTable("rejects invalid requests",
			func(mutate func([]*portfolio.NamedSeries) ([]*portfolio.NamedSeries, portfolio.CompareOptions)) {
				in, opts := mutate(inputs)
				_, err := portfolio.Compare(in, opts)
				Expect(errors.Is(err, portfolio.ErrValidation)).To(BeTrue())
			},
			Entry("a single series", func(in []*portfolio.NamedSeries) ([]*portfolio.NamedSeries, portfolio.CompareOptions) {
				return in[:1], portfolio.CompareOptions{}
			}),
			Entry("duplicate names", func(in []*portfolio.NamedSeries) ([]*portfolio.NamedSeries, portfolio.CompareOptions) {
				in[1].Name = "Actual"
				return in, portfolio.CompareOptions{}
			}),
			Entry("two baselines", func(in []*portfolio.NamedSeries) ([]*portfolio.NamedSeries, portfolio.CompareOptions) {
				in[0].Role = portfolio.RoleBaseline
				in[1].Role = portfolio.RoleBaseline
				return in, portfolio.CompareOptions{}
			}),
			Entry("a missing series", func(in []*portfolio.NamedSeries) ([]*portfolio.NamedSeries, portfolio.CompareOptions) {
				in[1].Series = nil
				return in, portfolio.CompareOptions{}
			}),
			Entry("a negative starting investment", func(in []*portfolio.NamedSeries) ([]*portfolio.NamedSeries, portfolio.CompareOptions) {
				return in, portfolio.CompareOptions{StartingInvestment: -1}
			}),
			Entry("an unknown basis", func(in []*portfolio.NamedSeries) ([]*portfolio.NamedSeries, portfolio.CompareOptions) {
				return in, portfolio.CompareOptions{Basis: "shares"}
			}),
		)
	})
})
