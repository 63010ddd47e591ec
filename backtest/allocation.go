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

package backtest

import (
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog/log"

	"github.com/marshm100/Robinhood-Dashboard-v0.1-sub001/portfolio"
)

// Strategy is the schedule on which money is invested
type Strategy string

const (
	LumpSum Strategy = "lump_sum"
	DCA     Strategy = "dca"
)

// WeightTolerance is the allowed deviation of the weight sum from 1
const WeightTolerance = 1e-4

// AllocationSpec describes a hypothetical portfolio
type AllocationSpec struct {
	Name              string             `toml:"name" json:"name,omitempty"`
	Weights           map[string]float64 `toml:"weights" json:"weights"`
	Strategy          Strategy           `toml:"strategy" json:"strategy"`
	InitialInvestment float64            `toml:"initial_investment" json:"initial_investment,omitempty"`
	MonthlyInvestment float64            `toml:"monthly_investment" json:"monthly_investment,omitempty"`
}

// Validate checks the weights and the amounts required by the strategy.
// Errors wrap portfolio.ErrValidation.
func (spec *AllocationSpec) Validate() error {
	if len(spec.Weights) == 0 {
		return fmt.Errorf("%w: allocation has no weights", portfolio.ErrValidation)
	}

	sum := 0.0
	for ticker, weight := range spec.Weights {
		if strings.TrimSpace(ticker) == "" {
			return fmt.Errorf("%w: allocation contains an empty ticker", portfolio.ErrValidation)
		}
		if math.IsNaN(weight) || math.IsInf(weight, 0) || weight < 0 {
			return fmt.Errorf("%w: weight of %s must be a non-negative number, got %v", portfolio.ErrValidation, ticker, weight)
		}
		sum += weight
	}

	if math.Abs(sum-1) > WeightTolerance {
		return fmt.Errorf("%w: weights must sum to 1, got %.6f", portfolio.ErrValidation, sum)
	}

	switch spec.Strategy {
	case LumpSum:
		if !(spec.InitialInvestment > 0) || math.IsInf(spec.InitialInvestment, 0) {
			return fmt.Errorf("%w: lump_sum requires a positive initial investment", portfolio.ErrValidation)
		}
	case DCA:
		if !(spec.MonthlyInvestment > 0) || math.IsInf(spec.MonthlyInvestment, 0) {
			return fmt.Errorf("%w: dca requires a positive monthly investment", portfolio.ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown strategy %q", portfolio.ErrValidation, spec.Strategy)
	}

	return nil
}

// Tickers returns the tickers of the allocation in sorted order
func (spec *AllocationSpec) Tickers() []string {
	tickers := make([]string, 0, len(spec.Weights))
	for ticker := range spec.Weights {
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)
	return tickers
}

// normalize upper cases tickers and combines weights that differ only by case
func (spec *AllocationSpec) normalize() {
	weights := make(map[string]float64, len(spec.Weights))
	for ticker, weight := range spec.Weights {
		weights[strings.ToUpper(strings.TrimSpace(ticker))] += weight
	}
	spec.Weights = weights
	spec.Strategy = Strategy(strings.ToLower(strings.TrimSpace(string(spec.Strategy))))
}

type allocationFile struct {
	Allocation []*AllocationSpec `toml:"allocation"`
}

// ParseAllocations reads allocations from a TOML document of the form
//
//	[[allocation]]
//	name = "60/40"
//	strategy = "lump_sum"
//	initial_investment = 10000.0
//	[allocation.weights]
//	VTI = 0.6
//	BND = 0.4
func ParseAllocations(doc []byte) ([]*AllocationSpec, error) {
	var file allocationFile
	if err := toml.Unmarshal(doc, &file); err != nil {
		log.Error().Err(err).Msg("could not parse allocation file")
		return nil, fmt.Errorf("%w: %w", portfolio.ErrValidation, err)
	}
	if len(file.Allocation) == 0 {
		return nil, fmt.Errorf("%w: no allocations defined", portfolio.ErrValidation)
	}

	for idx, spec := range file.Allocation {
		spec.normalize()
		if spec.Name == "" {
			spec.Name = fmt.Sprintf("allocation %d", idx+1)
		}
		if err := spec.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", spec.Name, err)
		}
	}

	return file.Allocation, nil
}

// LoadAllocationFile reads allocations from the TOML file fn
func LoadAllocationFile(fn string) ([]*AllocationSpec, error) {
	doc, err := os.ReadFile(fn)
	if err != nil {
		log.Error().Err(err).Str("FileName", fn).Msg("could not read allocation file")
		return nil, err
	}
	return ParseAllocations(doc)
}
