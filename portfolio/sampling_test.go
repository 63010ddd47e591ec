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
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/marshm100/Robinhood-Dashboard-v0.1-sub001/dataframe"
	"github.com/marshm100/Robinhood-Dashboard-v0.1-sub001/portfolio"
)

func strictlyIncreasing(dates []time.Time) bool {
	for idx := 1; idx < len(dates); idx++ {
		if !dates[idx].After(dates[idx-1]) {
			return false
		}
	}
	return true
}

var _ = Describe("Sampling", func() {
	DescribeTable("picks a cadence from the length of the range",
		func(begin, end time.Time, expected dataframe.Frequency) {
			Expect(portfolio.Cadence(begin, end)).To(Equal(expected))
		},
		Entry("six months", day(2021, 1, 1), day(2021, 7, 1), dataframe.Daily),
		Entry("exactly one year", day(2021, 1, 1), day(2022, 1, 1), dataframe.Daily),
		Entry("one year and a day", day(2021, 1, 1), day(2022, 1, 2), dataframe.Weekly),
		Entry("exactly three years", day(2021, 1, 1), day(2024, 1, 1), dataframe.Weekly),
		Entry("five years", day(2015, 1, 1), day(2020, 1, 1), dataframe.Monthly),
	)

	It("samples every day of a short range", func() {
		dates, freq := portfolio.SampleDates(day(2021, 1, 4), day(2021, 1, 8), nil)
		Expect(freq).To(Equal(dataframe.Daily))
		Expect(dates).To(Equal([]time.Time{day(2021, 1, 4), day(2021, 1, 5), day(2021, 1, 6), day(2021, 1, 7), day(2021, 1, 8)}))
	})

	It("samples weekly from begin and always includes end and anchors", func() {
		dates, freq := portfolio.SampleDates(day(2020, 1, 1), day(2021, 6, 30), []time.Time{
			day(2020, 1, 8),  // already a sample date
			day(2020, 3, 17), // off grid
			day(2019, 5, 1),  // out of range
		})
		Expect(freq).To(Equal(dataframe.Weekly))
		Expect(dates[0]).To(Equal(day(2020, 1, 1)))
		Expect(dates[1]).To(Equal(day(2020, 1, 8)))
		Expect(dates).To(ContainElement(day(2020, 3, 17)))
		Expect(dates).ToNot(ContainElement(day(2019, 5, 1)))
		Expect(dates[len(dates)-1]).To(Equal(day(2021, 6, 30)))
		Expect(strictlyIncreasing(dates)).To(BeTrue())
	})

	It("clamps monthly samples to the end of short months", func() {
		dates, freq := portfolio.SampleDates(day(2015, 1, 31), day(2020, 1, 31), nil)
		Expect(freq).To(Equal(dataframe.Monthly))
		Expect(dates[0]).To(Equal(day(2015, 1, 31)))
		Expect(dates[1]).To(Equal(day(2015, 2, 28)))
		Expect(dates[2]).To(Equal(day(2015, 3, 31)))
		Expect(dates).To(ContainElement(day(2016, 2, 29)))
		Expect(dates).To(HaveLen(61))
		Expect(strictlyIncreasing(dates)).To(BeTrue())
	})

	It("returns nothing for an inverted range", func() {
		dates, _ := portfolio.SampleDates(day(2021, 1, 8), day(2021, 1, 4), nil)
		Expect(dates).To(BeEmpty())
	})
})
