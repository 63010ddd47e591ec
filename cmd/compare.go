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
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/marshm100/Robinhood-Dashboard-v0.1-sub001/backtest"
	"github.com/marshm100/Robinhood-Dashboard-v0.1-sub001/portfolio"
)

var (
	benchmarkList      string
	basisFlag          string
	startingInvestment float64
)

func init() {
	compareCmd.Flags().StringVarP(&transactionsFile, "transactions", "t", "", "CSV file with the transaction log of the actual portfolio")
	compareCmd.Flags().StringVar(&accountID, "account", "", "Load the actual portfolio's transaction log from the database")
	compareCmd.Flags().StringVarP(&allocationFile, "allocation", "a", "", "TOML file with hypothetical allocations")
	compareCmd.Flags().StringVarP(&weightsFlag, "weights", "w", "", "Inline hypothetical allocation as TICKER=WEIGHT pairs")
	compareCmd.Flags().StringVar(&strategyFlag, "strategy", string(backtest.LumpSum), "Investment strategy of the inline allocation: lump_sum or dca")
	compareCmd.Flags().Float64Var(&initialInvestment, "initial", portfolio.DefaultStartingInvestment, "Initial investment of a lump_sum allocation")
	compareCmd.Flags().Float64Var(&monthlyInvestment, "monthly", 0, "Monthly investment of a dca allocation")
	compareCmd.Flags().StringVarP(&benchmarkList, "benchmark", "b", "", "Comma separated benchmark tickers, e.g. SPY,QQQ")
	compareCmd.Flags().StringVar(&basisFlag, "basis", string(portfolio.BasisPercent), "Rebase series as percent change or dollar value")
	compareCmd.Flags().Float64Var(&startingInvestment, "starting-investment", portfolio.DefaultStartingInvestment, "Starting value of every series on the dollar basis")
	compareCmd.Flags().StringVar(&beginDate, "begin", "", "First date of the comparison as YYYY-MM-DD (default first transaction)")
	compareCmd.Flags().StringVar(&endDate, "end", "", "Last date of the comparison as YYYY-MM-DD (default today)")

	rootCmd.AddCommand(compareCmd)
}

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compare the actual portfolio with benchmarks and hypothetical allocations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		var ledger *portfolio.Ledger
		defaultBegin := time.Now()
		if transactionsFile != "" || accountID != "" {
			trxs, err := loadTransactions(ctx, transactionsFile, accountID)
			if err != nil {
				return err
			}
			ledger = portfolio.NewLedger(trxs)
			if ledger.Len() == 0 {
				return portfolio.ErrNoTransactions
			}
			defaultBegin = ledger.TransactionDates()[0]
		}

		begin, end, err := parseRange(beginDate, endDate, defaultBegin)
		if err != nil {
			return err
		}

		var specs []*backtest.AllocationSpec
		if allocationFile != "" || weightsFlag != "" {
			if specs, err = allocationsFromFlags(); err != nil {
				return err
			}
		}

		prices, closer, err := newPriceCache(ctx)
		if err != nil {
			return err
		}
		defer closer()

		inputs := make([]*portfolio.NamedSeries, 0, len(specs)+4)
		if ledger != nil {
			series, err := portfolio.NewValuationEngine(ledger, prices).ValueHistory(ctx, begin, end)
			if err != nil {
				return err
			}
			inputs = append(inputs, &portfolio.NamedSeries{Name: "Actual", Role: portfolio.RoleBaseline, Series: series})
		}

		engine := backtest.New(prices).WithMetricsOptions(metricsOptions())
		for _, spec := range specs {
			result, err := engine.Run(ctx, spec, begin, end)
			if err != nil {
				return err
			}
			inputs = append(inputs, &portfolio.NamedSeries{Name: spec.Name, Role: portfolio.RoleHypothetical, Series: result.Series})
		}

		for _, ticker := range splitList(benchmarkList) {
			result, err := benchmarkSeries(ctx, engine, ticker, begin, end)
			if err != nil {
				return err
			}
			inputs = append(inputs, &portfolio.NamedSeries{Name: result.Spec.Name, Role: portfolio.RoleBenchmark, Series: result.Series})
		}

		comparison, err := portfolio.Compare(inputs, portfolio.CompareOptions{
			Basis:              portfolio.Basis(basisFlag),
			StartingInvestment: startingInvestment,
			Metrics:            metricsOptions(),
		})
		if err != nil {
			return err
		}

		log.Info().Int("NumSeries", len(comparison.Series)).Int("NumDates", len(comparison.Dates)).Msg("compared portfolios")

		if outputFormat == "json" {
			return printJSON(comparison)
		}

		sections := []string{comparison.Table(), comparison.MetricsTable()}
		for _, cs := range comparison.Series {
			sections = append(sections, missingTable("Missing in "+cs.Name, cs.Missing))
		}
		printSections(sections...)
		return nil
	},
}
