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

package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/marshm100/Robinhood-Dashboard-v0.1-sub001/backtest"
	"github.com/marshm100/Robinhood-Dashboard-v0.1-sub001/portfolio"
)

var (
	allocationFile    string
	weightsFlag       string
	strategyFlag      string
	initialInvestment float64
	monthlyInvestment float64
)

func init() {
	backtestCmd.Flags().StringVarP(&allocationFile, "allocation", "a", "", "TOML file with one or more [[allocation]] tables")
	backtestCmd.Flags().StringVarP(&weightsFlag, "weights", "w", "", "Inline allocation as TICKER=WEIGHT pairs, e.g. VTI=0.6,BND=0.4")
	backtestCmd.Flags().StringVar(&strategyFlag, "strategy", string(backtest.LumpSum), "Investment strategy of the inline allocation: lump_sum or dca")
	backtestCmd.Flags().Float64Var(&initialInvestment, "initial", portfolio.DefaultStartingInvestment, "Initial investment of a lump_sum allocation")
	backtestCmd.Flags().Float64Var(&monthlyInvestment, "monthly", 0, "Monthly investment of a dca allocation")
	backtestCmd.Flags().StringVar(&beginDate, "begin", "", "First date of the backtest as YYYY-MM-DD")
	backtestCmd.Flags().StringVar(&endDate, "end", "", "Last date of the backtest as YYYY-MM-DD (default today)")
	if err := backtestCmd.MarkFlagRequired("begin"); err != nil {
		log.Panic().Err(err).Msg("could not mark begin as required")
	}

	rootCmd.AddCommand(backtestCmd)
}

// parseWeights converts TICKER=WEIGHT pairs to a weight map
func parseWeights(s string) (map[string]float64, error) {
	weights := make(map[string]float64)
	for _, pair := range splitList(s) {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("%w: weight %q is not TICKER=WEIGHT", portfolio.ErrValidation, pair)
		}
		weight, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: weight %q is not a number", portfolio.ErrValidation, pair)
		}
		weights[strings.TrimSpace(parts[0])] += weight
	}
	return weights, nil
}

// allocationsFromFlags reads the allocation file or builds the inline allocation
func allocationsFromFlags() ([]*backtest.AllocationSpec, error) {
	if allocationFile != "" {
		return backtest.LoadAllocationFile(allocationFile)
	}

	if weightsFlag == "" {
		return nil, fmt.Errorf("%w: one of --allocation or --weights is required", portfolio.ErrValidation)
	}

	weights, err := parseWeights(weightsFlag)
	if err != nil {
		return nil, err
	}

	spec := &backtest.AllocationSpec{
		Name:     weightsFlag,
		Weights:  weights,
		Strategy: backtest.Strategy(strategyFlag),
	}
	if spec.Strategy == backtest.DCA {
		spec.MonthlyInvestment = monthlyInvestment
	} else {
		spec.InitialInvestment = initialInvestment
	}

	return []*backtest.AllocationSpec{spec}, nil
}

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Simulate hypothetical allocations over a historical period",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		specs, err := allocationsFromFlags()
		if err != nil {
			return err
		}

		begin, end, err := parseRange(beginDate, endDate, time.Now())
		if err != nil {
			return err
		}

		prices, closer, err := newPriceCache(ctx)
		if err != nil {
			return err
		}
		defer closer()

		engine := backtest.New(prices).WithMetricsOptions(metricsOptions())
		results := make([]*backtest.Result, 0, len(specs))
		for _, spec := range specs {
			result, err := engine.Run(ctx, spec, begin, end)
			if err != nil {
				log.Error().Err(err).Str("Allocation", spec.Name).Msg("backtest failed")
				return err
			}
			results = append(results, result)
		}

		if outputFormat == "json" {
			return printJSON(results)
		}

		for idx, result := range results {
			if idx > 0 {
				fmt.Println()
			}
			fmt.Printf("%s (%s): invested %.2f, final value %.2f\n\n", result.Spec.Name, result.Spec.Strategy, result.TotalInvested, result.FinalValue())
			printSections(
				holdingsTable(result.Shares),
				result.Series.DataFrame("Value").Table(),
				metricsTable(result.Metrics),
				drawdownTable(result.Metrics.DrawdownPeriods),
				missingTable("Missing Leg", result.MissingLegs),
			)
		}
		return nil
	},
}
