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
	"math"

	"github.com/goccy/go-json"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/marshm100/Robinhood-Dashboard-v0.1-sub001/dataframe"
	"github.com/marshm100/Robinhood-Dashboard-v0.1-sub001/portfolio"
)

var _ = Describe("Metrics", func() {
	Context("with a doubling over one year", func() {
		It("has a CAGR of 100%", func() {
			s, err := portfolio.NewValueSeries([]portfolio.ValuePoint{
				{Date: day(2021, 1, 1), Value: 100},
				{Date: day(2022, 1, 1), Value: 200},
			}, dataframe.Unknown)
			Expect(err).To(BeNil())

			m := portfolio.ComputeMetrics(s, nil, portfolio.MetricsOptions{})
			Expect(m.TotalReturn).Should(BeNumerically("~", 1.0, 1e-9))
			Expect(m.CAGR).Should(BeNumerically("~", 1.0, 1e-9))
		})
	})

	Context("with a drawdown and recovery", func() {
		var m *portfolio.MetricsBundle

		BeforeEach(func() {
			m = portfolio.ComputeMetrics(series(day(2021, 1, 4), dataframe.Daily, 100, 90, 95, 80, 120), nil, portfolio.MetricsOptions{})
		})

		It("reports the deepest decline", func() {
			Expect(m.MaxDrawdown).Should(BeNumerically("~", -0.2, 1e-9))
		})

		It("records a single recovered period with its trough", func() {
			Expect(m.DrawdownPeriods).To(HaveLen(1))
			period := m.DrawdownPeriods[0]
			Expect(period.Start).To(Equal(day(2021, 1, 4)))
			Expect(period.Trough).To(Equal(day(2021, 1, 7)))
			Expect(period.Recovery).ToNot(BeNil())
			Expect(*period.Recovery).To(Equal(day(2021, 1, 8)))
			Expect(period.DepthPct).Should(BeNumerically("~", -20.0, 1e-9))
		})

		It("uses the lowest return for VaR with few samples", func() {
			Expect(m.VaR95).Should(BeNumerically("~", 80.0/95.0-1, 1e-9))
			Expect(m.VaR99).Should(BeNumerically("<=", m.VaR95))
		})
	})

	It("leaves an open drawdown without a recovery date", func() {
		m := portfolio.ComputeMetrics(series(day(2021, 1, 4), dataframe.Daily, 100, 110, 90, 95), nil, portfolio.MetricsOptions{})
		Expect(m.DrawdownPeriods).To(HaveLen(1))
		Expect(m.DrawdownPeriods[0].Start).To(Equal(day(2021, 1, 5)))
		Expect(m.DrawdownPeriods[0].Recovery).To(BeNil())

		out, err := json.Marshal(m.DrawdownPeriods[0])
		Expect(err).To(BeNil())
		Expect(string(out)).To(ContainSubstring(`"recovery":null`))
	})

	It("annualizes volatility and sharpe with the periods per year", func() {
		m := portfolio.ComputeMetrics(series(day(2021, 1, 4), dataframe.Daily, 100, 110, 99, 108.9), nil, portfolio.MetricsOptions{})
		// returns are +10%, -10%, +10%
		sd := math.Sqrt((2*math.Pow(0.1-0.1/3, 2) + math.Pow(-0.1-0.1/3, 2)) / 2)
		Expect(m.Volatility).Should(BeNumerically("~", sd*math.Sqrt(252), 1e-9))
		Expect(m.Sharpe).Should(BeNumerically("~", (0.1/3*252)/(sd*math.Sqrt(252)), 1e-9))

		// a single negative return does not define a downside deviation
		Expect(math.IsNaN(m.Sortino)).To(BeTrue())

		monthly := portfolio.ComputeMetrics(series(day(2021, 1, 4), dataframe.Daily, 100, 110, 99, 108.9), nil, portfolio.MetricsOptions{PeriodsPerYear: 12})
		Expect(monthly.Volatility).Should(BeNumerically("~", sd*math.Sqrt(12), 1e-9))
	})

	It("computes sortino from the downside returns", func() {
		m := portfolio.ComputeMetrics(series(day(2021, 1, 4), dataframe.Daily, 100, 90, 99, 94.05, 103.455), nil, portfolio.MetricsOptions{RiskFreeRate: 0.02})
		// returns are -10%, +10%, -5%, +10%
		annual := (-0.1 + 0.1 - 0.05 + 0.1) / 4 * 252
		downsideSD := math.Sqrt(math.Pow(-0.1+0.075, 2) + math.Pow(-0.05+0.075, 2))
		Expect(m.Sortino).Should(BeNumerically("~", (annual-0.02)/(downsideSD*math.Sqrt(252)), 1e-6))

		mean := 0.0125
		sd := math.Sqrt((math.Pow(-0.1-mean, 2) + math.Pow(0.1-mean, 2) + math.Pow(-0.05-mean, 2) + math.Pow(0.1-mean, 2)) / 3)
		Expect(m.Sharpe).Should(BeNumerically("~", (annual-0.02)/(sd*math.Sqrt(252)), 1e-6))
	})

	Context("with degenerate input", func() {
		It("is fully undefined for a single point", func() {
			m := portfolio.ComputeMetrics(series(day(2021, 1, 4), dataframe.Daily, 100), nil, portfolio.MetricsOptions{})
			Expect(m.Undefined()).To(ConsistOf("total_return", "cagr", "volatility", "sharpe", "sortino", "max_drawdown", "var_95", "var_99", "beta"))
			Expect(m.DrawdownPeriods).To(BeEmpty())
		})

		It("is fully undefined for a nil series", func() {
			m := portfolio.ComputeMetrics(nil, nil, portfolio.MetricsOptions{})
			Expect(m.Undefined()).To(HaveLen(9))
		})

		It("does not define returns when the first value is zero", func() {
			m := portfolio.ComputeMetrics(series(day(2021, 1, 4), dataframe.Daily, 0, 100, 110), nil, portfolio.MetricsOptions{})
			Expect(math.IsNaN(m.TotalReturn)).To(BeTrue())
			Expect(math.IsNaN(m.CAGR)).To(BeTrue())
			// only one return survives once the zero denominator is excluded
			Expect(math.IsNaN(m.Volatility)).To(BeTrue())
			Expect(m.VaR95).Should(BeNumerically("~", 0.1, 1e-9))
		})

		It("does not define sharpe for a flat series", func() {
			m := portfolio.ComputeMetrics(series(day(2021, 1, 4), dataframe.Daily, 100, 100, 100), nil, portfolio.MetricsOptions{})
			Expect(m.Volatility).To(Equal(0.0))
			Expect(math.IsNaN(m.Sharpe)).To(BeTrue())
			Expect(math.IsNaN(m.Sortino)).To(BeTrue())
			Expect(m.MaxDrawdown).To(Equal(0.0))
			Expect(m.DrawdownPeriods).To(BeEmpty())
		})

		It("does not define cagr without elapsed time", func() {
			s := &portfolio.ValueSeries{Points: []portfolio.ValuePoint{
				{Date: day(2021, 1, 4), Value: 100},
				{Date: day(2021, 1, 4), Value: 110},
			}}
			m := portfolio.ComputeMetrics(s, nil, portfolio.MetricsOptions{PeriodsPerYear: 252})
			Expect(m.TotalReturn).Should(BeNumerically("~", 0.1, 1e-9))
			Expect(math.IsNaN(m.CAGR)).To(BeTrue())
		})

		It("excludes incomplete points", func() {
			s, err := portfolio.NewValueSeries([]portfolio.ValuePoint{
				{Date: day(2021, 1, 4), Value: 100},
				{Date: day(2021, 1, 5), Value: 10, Missing: []string{"ZZZZ"}},
				{Date: day(2021, 1, 6), Value: 110},
			}, dataframe.Daily)
			Expect(err).To(BeNil())
			m := portfolio.ComputeMetrics(s, nil, portfolio.MetricsOptions{})
			Expect(m.MaxDrawdown).To(Equal(0.0))
			Expect(m.TotalReturn).Should(BeNumerically("~", 0.1, 1e-9))
		})
	})

	Context("with a benchmark", func() {
		It("has a beta of one against itself", func() {
			s := series(day(2021, 1, 4), dataframe.Daily, 100, 103, 101, 106, 104)
			m := portfolio.ComputeMetrics(s, s, portfolio.MetricsOptions{})
			Expect(m.Beta).Should(BeNumerically("~", 1.0, 1e-9))
		})

		It("scales beta with leverage", func() {
			bench := series(day(2021, 1, 4), dataframe.Daily, 100, 102, 101, 104, 103)
			// twice the benchmark's daily return on every day
			vals := []float64{100}
			bv := bench.Values()
			for idx := 1; idx < len(bv); idx++ {
				vals = append(vals, vals[idx-1]*(1+2*(bv[idx]/bv[idx-1]-1)))
			}
			m := portfolio.ComputeMetrics(series(day(2021, 1, 4), dataframe.Daily, vals...), bench, portfolio.MetricsOptions{})
			Expect(m.Beta).Should(BeNumerically("~", 2.0, 1e-9))
		})

		It("is undefined against a flat benchmark", func() {
			s := series(day(2021, 1, 4), dataframe.Daily, 100, 103, 101, 106)
			bench := series(day(2021, 1, 4), dataframe.Daily, 50, 50, 50, 50)
			m := portfolio.ComputeMetrics(s, bench, portfolio.MetricsOptions{})
			Expect(math.IsNaN(m.Beta)).To(BeTrue())
		})

		It("only uses common dates", func() {
			s := series(day(2021, 1, 4), dataframe.Daily, 100, 103, 101)
			bench := series(day(2021, 1, 6), dataframe.Daily, 50, 51, 52)
			m := portfolio.ComputeMetrics(s, bench, portfolio.MetricsOptions{})
			Expect(math.IsNaN(m.Beta)).To(BeTrue())
		})
	})

	It("encodes undefined metrics as null", func() {
		m := portfolio.ComputeMetrics(series(day(2021, 1, 4), dataframe.Daily, 100, 110), nil, portfolio.MetricsOptions{})
		out, err := json.Marshal(m)
		Expect(err).To(BeNil())
		Expect(string(out)).To(ContainSubstring(`"sharpe":null`))
		Expect(string(out)).To(ContainSubstring(`"beta":null`))
		Expect(string(out)).To(ContainSubstring(`"drawdown_periods":[]`))
		Expect(string(out)).To(ContainSubstring(`"max_drawdown":0`))
	})
})
