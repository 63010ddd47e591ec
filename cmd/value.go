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
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/marshm100/Robinhood-Dashboard-v0.1-sub001/backtest"
	"github.com/marshm100/Robinhood-Dashboard-v0.1-sub001/common"
	"github.com/marshm100/Robinhood-Dashboard-v0.1-sub001/data"
	"github.com/marshm100/Robinhood-Dashboard-v0.1-sub001/portfolio"
)

var (
	transactionsFile string
	accountID        string
	beginDate        string
	endDate          string
	valueDate        string
	benchmarkTicker  string
)

func init() {
	valueCmd.Flags().StringVarP(&transactionsFile, "transactions", "t", "", "CSV file with the transaction log")
	valueCmd.Flags().StringVar(&accountID, "account", "", "Load the transaction log of this account from the database")
	valueCmd.Flags().StringVar(&beginDate, "begin", "", "First date of the value history as YYYY-MM-DD (default first transaction)")
	valueCmd.Flags().StringVar(&endDate, "end", "", "Last date of the value history as YYYY-MM-DD (default today)")
	valueCmd.Flags().StringVar(&valueDate, "date", "", "Only value the portfolio on this date (YYYY-MM-DD)")
	valueCmd.Flags().StringVar(&benchmarkTicker, "benchmark", "", "Ticker used to compute beta")

	rootCmd.AddCommand(valueCmd)
}

type valueReport struct {
	Holdings       portfolio.Holdings        `json:"holdings"`
	Series         *portfolio.ValueSeries    `json:"series"`
	Metrics        *portfolio.MetricsBundle  `json:"metrics"`
	MissingTickers []data.Missing            `json:"missing_tickers"`
	Warnings       []portfolio.LedgerWarning `json:"warnings"`
}

var valueCmd = &cobra.Command{
	Use:   "value",
	Short: "Value a portfolio over time and compute its performance metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		trxs, err := loadTransactions(ctx, transactionsFile, accountID)
		if err != nil {
			return err
		}

		ledger := portfolio.NewLedger(trxs)
		if ledger.Len() == 0 {
			return portfolio.ErrNoTransactions
		}

		prices, closer, err := newPriceCache(ctx)
		if err != nil {
			return err
		}
		defer closer()

		engine := portfolio.NewValuationEngine(ledger, prices)

		if valueDate != "" {
			dt, err := common.ParseDay(valueDate)
			if err != nil {
				return fmt.Errorf("%w: date %q is not YYYY-MM-DD", portfolio.ErrValidation, valueDate)
			}
			point, err := engine.ValueAt(ctx, dt)
			if err != nil {
				return err
			}
			if outputFormat == "json" {
				return printJSON(point)
			}
			fmt.Printf("%s\t%.2f\n", point.Date.Format("2006-01-02"), point.Value)
			if point.Incomplete() {
				fmt.Printf("missing prices: %s\n", strings.Join(point.Missing, ", "))
			}
			return nil
		}

		begin, end, err := parseRange(beginDate, endDate, ledger.TransactionDates()[0])
		if err != nil {
			return err
		}

		series, err := engine.ValueHistory(ctx, begin, end)
		if err != nil {
			return err
		}

		var bench *portfolio.ValueSeries
		if benchmarkTicker != "" {
			res, err := benchmarkSeries(ctx, backtest.New(prices), benchmarkTicker, begin, end)
			if err != nil {
				return err
			}
			bench = res.Series
		}

		report := &valueReport{
			Holdings:       ledger.HoldingsAt(end),
			Series:         series,
			Metrics:        portfolio.ComputeMetrics(series, bench, metricsOptions()),
			MissingTickers: series.MissingTickers(),
			Warnings:       ledger.Warnings(),
		}

		log.Info().Int("NumPoints", series.Len()).Int("NumMissing", len(report.MissingTickers)).Msg("valued portfolio")

		if outputFormat == "json" {
			return printJSON(report)
		}

		printSections(
			holdingsTable(report.Holdings),
			series.DataFrame("Value").Table(),
			metricsTable(report.Metrics),
			drawdownTable(report.Metrics.DrawdownPeriods),
			missingTable("Missing Ticker", report.MissingTickers),
			warningTable(report.Warnings),
		)
		return nil
	},
}

func holdingsTable(holdings portfolio.Holdings) string {
	sb := &strings.Builder{}
	table := tablewriter.NewWriter(sb)
	table.SetHeader([]string{"Ticker", "Shares"})
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT})
	for _, ticker := range holdings.Tickers() {
		table.Append([]string{ticker, fmt.Sprintf("%.4f", holdings[ticker])})
	}
	table.Render()
	return sb.String()
}
