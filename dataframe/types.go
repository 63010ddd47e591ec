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

package dataframe

import (
	"errors"
	"time"
)

// DataFrame stores a table of values organized by date. Vals is indexed by
// column then row, e.g.,
// ACTUAL  SPY
// 1      4
// 2      5
// 3      6
//
// Vals[0][1] = 2
// Vals[1][0] = 4
type DataFrame struct {
	Dates    []time.Time
	ColNames []string
	Vals     [][]float64
}

// Frequency is the sampling cadence of a date index
type Frequency string

const (
	Unknown Frequency = ""
	Daily   Frequency = "Daily"
	Weekly  Frequency = "Weekly"
	Monthly Frequency = "Monthly"
)

// PeriodsPerYear returns the number of samples per year used to annualize
// statistics at this frequency; 0 if the frequency is unknown
func (f Frequency) PeriodsPerYear() float64 {
	switch f {
	case Daily:
		return 252
	case Weekly:
		return 52
	case Monthly:
		return 12
	default:
		return 0
	}
}

var (
	ErrDateIndexNotAligned = errors.New("date index does not align")
	ErrColumnLength        = errors.New("column length does not match date index")
)
