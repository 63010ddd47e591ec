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

package portfolio

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"

	"github.com/marshm100/Robinhood-Dashboard-v0.1-sub001/data"
	"github.com/marshm100/Robinhood-Dashboard-v0.1-sub001/dataframe"
)

// Role describes how a series participates in a comparison
type Role string

const (
	RoleBaseline     Role = "baseline"
	RoleBenchmark    Role = "benchmark"
	RoleHypothetical Role = "hypothetical"
)

// Basis selects how compared series are rebased
type Basis string

const (
	BasisPercent Basis = "percent"
	BasisDollar  Basis = "dollar"
)

const DefaultStartingInvestment = 10_000.0

// NamedSeries is an input to Compare
type NamedSeries struct {
	Name   string
	Role   Role
	Series *ValueSeries
}

type CompareOptions struct {
	Basis Basis

	// StartingInvestment is the common starting value of the dollar basis;
	// 0 uses DefaultStartingInvestment
	StartingInvestment float64

	Metrics MetricsOptions
}

// Relative holds the statistics of one series measured against another
type Relative struct {
	ExcessReturn  float64
	ExcessCAGR    float64
	Beta          float64
	TrackingError float64
}

func (r *Relative) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ExcessReturn  *float64 `json:"excess_return"`
		ExcessCAGR    *float64 `json:"excess_cagr"`
		Beta          *float64 `json:"beta"`
		TrackingError *float64 `json:"tracking_error"`
	}{
		ExcessReturn:  nullable(r.ExcessReturn),
		ExcessCAGR:    nullable(r.ExcessCAGR),
		Beta:          nullable(r.Beta),
		TrackingError: nullable(r.TrackingError),
	})
}

// ComparedSeries is one rebased series of a comparison. Values is aligned
// with Comparison.Dates and is NaN outside the series' own date range and on
// dates whose latest sample was incomplete; Missing lists the unpriced
// (ticker, date) pairs behind those gaps.
type ComparedSeries struct {
	Name         string
	Role         Role
	Values       []float64
	Missing      []data.Missing
	Metrics      *MetricsBundle
	VsBaseline   *Relative
	VsBenchmarks map[string]*Relative
}

func (cs *ComparedSeries) MarshalJSON() ([]byte, error) {
	values := make([]*float64, len(cs.Values))
	for idx, val := range cs.Values {
		values[idx] = nullable(val)
	}
	return json.Marshal(struct {
		Name         string               `json:"name"`
		Role         Role                 `json:"role"`
		Values       []*float64           `json:"values"`
		Missing      []data.Missing       `json:"missing"`
		Metrics      *MetricsBundle       `json:"metrics"`
		VsBaseline   *Relative            `json:"vs_baseline,omitempty"`
		VsBenchmarks map[string]*Relative `json:"vs_benchmarks,omitempty"`
	}{
		Name:         cs.Name,
		Role:         cs.Role,
		Values:       values,
		Missing:      cs.Missing,
		Metrics:      cs.Metrics,
		VsBaseline:   cs.VsBaseline,
		VsBenchmarks: cs.VsBenchmarks,
	})
}

// Comparison is the result of aligning and rebasing several value series
type Comparison struct {
	Dates  []time.Time
	Basis  Basis
	Series []*ComparedSeries
}

func (c *Comparison) MarshalJSON() ([]byte, error) {
	dates := make([]string, len(c.Dates))
	for idx, dt := range c.Dates {
		dates[idx] = dt.Format("2006-01-02")
	}
	return json.Marshal(struct {
		Dates  []string          `json:"dates"`
		Basis  Basis             `json:"basis"`
		Series []*ComparedSeries `json:"series"`
	}{
		Dates:  dates,
		Basis:  c.Basis,
		Series: c.Series,
	})
}

// Get returns the compared series called name or nil
func (c *Comparison) Get(name string) *ComparedSeries {
	for _, cs := range c.Series {
		if cs.Name == name {
			return cs
		}
	}
	return nil
}

// DataFrame returns the rebased values as a dataframe with one column per series
func (c *Comparison) DataFrame() *dataframe.DataFrame {
	df := &dataframe.DataFrame{
		Dates:    c.Dates,
		ColNames: make([]string, 0, len(c.Series)),
		Vals:     make([][]float64, 0, len(c.Series)),
	}
	for _, cs := range c.Series {
		df.ColNames = append(df.ColNames, cs.Name)
		df.Vals = append(df.Vals, cs.Values)
	}
	return df
}

// Table renders the rebased values
func (c *Comparison) Table() string {
	return c.DataFrame().Table()
}

// MetricsTable renders one row of metrics per series
func (c *Comparison) MetricsTable() string {
	sb := &strings.Builder{}
	table := tablewriter.NewWriter(sb)
	table.SetHeader([]string{"Series", "Role", "Total Return", "CAGR", "Volatility", "Sharpe", "Sortino", "Max Drawdown", "Beta vs Baseline", "Tracking Error"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)

	for _, cs := range c.Series {
		betaVal, te := math.NaN(), math.NaN()
		if cs.VsBaseline != nil {
			betaVal = cs.VsBaseline.Beta
			te = cs.VsBaseline.TrackingError
		}
		table.Append([]string{
			cs.Name,
			string(cs.Role),
			FormatPercent(cs.Metrics.TotalReturn),
			FormatPercent(cs.Metrics.CAGR),
			FormatPercent(cs.Metrics.Volatility),
			FormatFloat(cs.Metrics.Sharpe),
			FormatFloat(cs.Metrics.Sortino),
			FormatPercent(cs.Metrics.MaxDrawdown),
			FormatFloat(betaVal),
			FormatPercent(te),
		})
	}

	table.Render()
	return sb.String()
}

// FormatPercent renders a fraction as a percentage; undefined values are "-"
func FormatPercent(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "-"
	}
	return fmt.Sprintf("%.2f%%", f*100)
}

// FormatFloat renders f with two decimals; undefined values are "-"
func FormatFloat(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "-"
	}
	return fmt.Sprintf("%.2f", f)
}

// Compare aligns inputs on the union of their dates, rebases them to a common
// start and computes per-series and relative metrics. At least two inputs are
// required; if no input is flagged as the baseline the first one is used.
func Compare(inputs []*NamedSeries, opts CompareOptions) (*Comparison, error) {
	if len(inputs) < 2 {
		return nil, fmt.Errorf("%w: comparison requires at least two series, got %d", ErrValidation, len(inputs))
	}

	switch opts.Basis {
	case "":
		opts.Basis = BasisPercent
	case BasisPercent, BasisDollar:
	default:
		return nil, fmt.Errorf("%w: unknown basis %q", ErrValidation, opts.Basis)
	}

	if opts.StartingInvestment == 0 {
		opts.StartingInvestment = DefaultStartingInvestment
	}
	if opts.StartingInvestment < 0 || math.IsNaN(opts.StartingInvestment) || math.IsInf(opts.StartingInvestment, 0) {
		return nil, fmt.Errorf("%w: starting investment must be positive", ErrValidation)
	}

	baseline := -1
	names := make(map[string]bool, len(inputs))
	for idx, input := range inputs {
		if input == nil || input.Series == nil {
			return nil, fmt.Errorf("%w: series %d is empty", ErrValidation, idx)
		}
		if input.Name == "" {
			return nil, fmt.Errorf("%w: series %d has no name", ErrValidation, idx)
		}
		if names[input.Name] {
			return nil, fmt.Errorf("%w: duplicate series name %q", ErrValidation, input.Name)
		}
		names[input.Name] = true

		switch input.Role {
		case RoleBaseline:
			if baseline != -1 {
				return nil, fmt.Errorf("%w: more than one baseline", ErrValidation)
			}
			baseline = idx
		case "", RoleBenchmark, RoleHypothetical:
		default:
			return nil, fmt.Errorf("%w: unknown role %q", ErrValidation, input.Role)
		}
	}
	if baseline == -1 {
		baseline = 0
	}

	// incomplete samples stay on the grid as NaN so that the previous value
	// is not carried over them
	frames := make([]*dataframe.DataFrame, len(inputs))
	native := make([]*ValueSeries, len(inputs))
	for idx, input := range inputs {
		native[idx] = input.Series.Complete()
		frames[idx] = input.Series.DataFrame(input.Name)
		for row, point := range input.Series.Points {
			if point.Incomplete() {
				frames[idx].Vals[0][row] = math.NaN()
			}
		}
	}
	aligned := dataframe.AlignUnion(frames...)

	ppy := opts.Metrics.PeriodsPerYear
	if ppy <= 0 {
		ppy = InferFrequency(aligned.Dates).PeriodsPerYear()
	}

	comparison := &Comparison{
		Dates:  aligned.Dates,
		Basis:  opts.Basis,
		Series: make([]*ComparedSeries, len(inputs)),
	}

	// dollar rebased series on their own dates and on the shared grid
	rebasedNative := make([]*ValueSeries, len(inputs))
	rebasedAligned := make([]*ValueSeries, len(inputs))
	for idx, input := range inputs {
		role := input.Role
		if idx == baseline {
			role = RoleBaseline
		} else if role == "" {
			role = RoleHypothetical
		}

		values := make([]float64, len(aligned.Dates))
		stale := staleRows(aligned.Dates, input.Series)
		missing := input.Series.MissingTickers()
		if len(missing) > 0 {
			log.Warn().Str("Series", input.Name).Int("NumMissing", len(missing)).Msg("series has unpriced holdings; affected dates are undefined")
		}
		rebasedNative[idx] = &ValueSeries{Points: []ValuePoint{}, Frequency: native[idx].Frequency}
		rebasedAligned[idx] = &ValueSeries{Points: []ValuePoint{}}

		if native[idx].Len() == 0 || native[idx].Points[0].Value == 0 {
			log.Warn().Str("Series", input.Name).Msg("series has no non-zero starting value; rebased values are undefined")
			for row := range values {
				values[row] = math.NaN()
			}
		} else {
			scale := opts.StartingInvestment / native[idx].Points[0].Value
			for _, point := range native[idx].Points {
				rebasedNative[idx].Points = append(rebasedNative[idx].Points, ValuePoint{Date: point.Date, Value: point.Value * scale})
			}

			v0 := native[idx].Points[0].Value
			for row, val := range aligned.Vals[idx] {
				if math.IsNaN(val) || stale[row] {
					values[row] = math.NaN()
					continue
				}
				rebasedAligned[idx].Points = append(rebasedAligned[idx].Points, ValuePoint{Date: aligned.Dates[row], Value: val * scale})
				if opts.Basis == BasisDollar {
					values[row] = val * scale
				} else {
					values[row] = (val/v0 - 1) * 100
				}
			}
		}

		comparison.Series[idx] = &ComparedSeries{
			Name:    input.Name,
			Role:    role,
			Values:  values,
			Missing: missing,
			Metrics: ComputeMetrics(rebasedNative[idx], nil, opts.Metrics),
		}
	}

	relative := func(i, j int) *Relative {
		mi := comparison.Series[i].Metrics
		mj := comparison.Series[j].Metrics
		return &Relative{
			ExcessReturn:  mi.TotalReturn - mj.TotalReturn,
			ExcessCAGR:    mi.CAGR - mj.CAGR,
			Beta:          beta(rebasedAligned[i], rebasedAligned[j]),
			TrackingError: trackingError(rebasedAligned[i], rebasedAligned[j], ppy),
		}
	}

	for idx, cs := range comparison.Series {
		if idx != baseline {
			cs.VsBaseline = relative(idx, baseline)
		}
		for other, bench := range comparison.Series {
			if other == idx || bench.Role != RoleBenchmark {
				continue
			}
			if cs.VsBenchmarks == nil {
				cs.VsBenchmarks = make(map[string]*Relative)
			}
			cs.VsBenchmarks[bench.Name] = relative(idx, other)
		}
	}

	log.Debug().Int("NumSeries", len(inputs)).Int("NumDates", len(aligned.Dates)).Str("Basis", string(opts.Basis)).Msg("compared series")
	return comparison, nil
}

// staleRows flags the grid dates whose most recent sample of s, at or before
// the date, is incomplete
func staleRows(grid []time.Time, s *ValueSeries) []bool {
	flags := make([]bool, len(grid))
	src := 0
	incomplete := false
	for row, date := range grid {
		for src < len(s.Points) && !s.Points[src].Date.After(date) {
			incomplete = s.Points[src].Incomplete()
			src++
		}
		flags[row] = incomplete
	}
	return flags
}
