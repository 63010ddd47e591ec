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
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/marshm100/Robinhood-Dashboard-v0.1-sub001/backtest"
	"github.com/marshm100/Robinhood-Dashboard-v0.1-sub001/common"
	"github.com/marshm100/Robinhood-Dashboard-v0.1-sub001/data"
	"github.com/marshm100/Robinhood-Dashboard-v0.1-sub001/data/database"
	"github.com/marshm100/Robinhood-Dashboard-v0.1-sub001/portfolio"
)

var errNoTransactionSource = errors.New("one of --transactions or --account is required")

// connectDatabase opens the database pool unless one is already installed
func connectDatabase(ctx context.Context) error {
	if database.Configured() {
		return nil
	}
	return database.Connect(ctx)
}

// newPriceCache builds the price cache described by the pricing.* and cache.*
// settings; extra options are applied last. The returned function releases
// the second level cache.
func newPriceCache(ctx context.Context, extra ...data.CacheOption) (*data.PriceCache, func(), error) {
	if viper.GetString("pricing.provider") == "pvdb" {
		if err := connectDatabase(ctx); err != nil {
			return nil, nil, err
		}
	}

	provider, err := data.NewProviderFromConfig()
	if err != nil {
		log.Error().Err(err).Msg("could not create price provider")
		return nil, nil, err
	}

	opts := data.CacheOptionsFromConfig()
	closer := func() {}

	if viper.GetBool("cache.redis") {
		blobs, err := common.NewCacheFromConfig()
		if err != nil {
			log.Error().Err(err).Msg("could not create blob cache")
			return nil, nil, err
		}
		opts = append(opts, data.WithBlobStore(blobs))
		closer = func() {
			if err := blobs.Close(); err != nil {
				log.Warn().Err(err).Msg("could not close blob cache")
			}
		}
	}

	opts = append(opts, extra...)
	return data.NewPriceCache(provider, opts...), closer, nil
}

// loadTransactions reads the transaction log from a csv file or the database
func loadTransactions(ctx context.Context, fn, accountID string) ([]*portfolio.Transaction, error) {
	switch {
	case fn != "":
		return portfolio.LoadTransactionsCSV(fn)
	case accountID != "":
		if err := connectDatabase(ctx); err != nil {
			return nil, err
		}
		return portfolio.LoadTransactionsFromDB(ctx, accountID)
	default:
		return nil, errNoTransactionSource
	}
}

// parseRange converts YYYY-MM-DD flags to days. An empty begin uses
// defaultBegin and an empty end uses today.
func parseRange(beginStr, endStr string, defaultBegin time.Time) (time.Time, time.Time, error) {
	begin := common.Day(defaultBegin)
	end := common.Day(time.Now())

	if beginStr != "" {
		dt, err := common.ParseDay(beginStr)
		if err != nil {
			return begin, end, fmt.Errorf("%w: begin date %q is not YYYY-MM-DD", portfolio.ErrValidation, beginStr)
		}
		begin = dt
	}

	if endStr != "" {
		dt, err := common.ParseDay(endStr)
		if err != nil {
			return begin, end, fmt.Errorf("%w: end date %q is not YYYY-MM-DD", portfolio.ErrValidation, endStr)
		}
		end = dt
	}

	if end.Before(begin) {
		return begin, end, portfolio.ErrInvalidDateRange
	}
	return begin, end, nil
}

func metricsOptions() portfolio.MetricsOptions {
	return portfolio.MetricsOptions{
		RiskFreeRate: viper.GetFloat64("metrics.risk_free_rate"),
	}
}

// benchmarkSeries simulates buying ticker with the default starting
// investment at begin
func benchmarkSeries(ctx context.Context, engine *backtest.Engine, ticker string, begin, end time.Time) (*backtest.Result, error) {
	return engine.Run(ctx, &backtest.AllocationSpec{
		Name:              strings.ToUpper(ticker),
		Weights:           map[string]float64{ticker: 1},
		Strategy:          backtest.LumpSum,
		InitialInvestment: portfolio.DefaultStartingInvestment,
	}, begin, end)
}

func splitList(s string) []string {
	items := make([]string, 0)
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Error().Err(err).Msg("could not encode output")
		return err
	}
	fmt.Fprintln(os.Stdout, string(out))
	return nil
}

// metricsTable renders a bundle as a two column table
func metricsTable(m *portfolio.MetricsBundle) string {
	sb := &strings.Builder{}
	table := tablewriter.NewWriter(sb)
	table.SetHeader([]string{"Metric", "Value"})
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT})

	table.Append([]string{"Total Return", portfolio.FormatPercent(m.TotalReturn)})
	table.Append([]string{"CAGR", portfolio.FormatPercent(m.CAGR)})
	table.Append([]string{"Volatility", portfolio.FormatPercent(m.Volatility)})
	table.Append([]string{"Sharpe", portfolio.FormatFloat(m.Sharpe)})
	table.Append([]string{"Sortino", portfolio.FormatFloat(m.Sortino)})
	table.Append([]string{"Max Drawdown", portfolio.FormatPercent(m.MaxDrawdown)})
	table.Append([]string{"VaR 95%", portfolio.FormatPercent(m.VaR95)})
	table.Append([]string{"VaR 99%", portfolio.FormatPercent(m.VaR99)})
	table.Append([]string{"Beta", portfolio.FormatFloat(m.Beta)})

	table.Render()
	return sb.String()
}

// drawdownTable lists drawdown periods; open drawdowns show no recovery
func drawdownTable(periods []*portfolio.DrawdownPeriod) string {
	if len(periods) == 0 {
		return ""
	}

	sb := &strings.Builder{}
	table := tablewriter.NewWriter(sb)
	table.SetHeader([]string{"Start", "Trough", "Recovery", "Depth"})
	for _, dd := range periods {
		recovery := "-"
		if dd.Recovery != nil {
			recovery = dd.Recovery.Format("2006-01-02")
		}
		table.Append([]string{
			dd.Start.Format("2006-01-02"),
			dd.Trough.Format("2006-01-02"),
			recovery,
			fmt.Sprintf("%.2f%%", dd.DepthPct),
		})
	}
	table.Render()
	return sb.String()
}

func missingTable(title string, missing []data.Missing) string {
	if len(missing) == 0 {
		return ""
	}

	sb := &strings.Builder{}
	table := tablewriter.NewWriter(sb)
	table.SetHeader([]string{title, "Date"})
	for _, m := range missing {
		table.Append([]string{m.Ticker, m.Date.Format("2006-01-02")})
	}
	table.Render()
	return sb.String()
}

func warningTable(warnings []portfolio.LedgerWarning) string {
	if len(warnings) == 0 {
		return ""
	}

	sb := &strings.Builder{}
	table := tablewriter.NewWriter(sb)
	table.SetHeader([]string{"Row", "Source ID", "Reason"})
	for _, w := range warnings {
		table.Append([]string{fmt.Sprintf("%d", w.Index+1), w.SourceID, w.Reason})
	}
	table.Render()
	return sb.String()
}

// printSections prints each non-empty section separated by a blank line
func printSections(sections ...string) {
	first := true
	for _, section := range sections {
		if section == "" {
			continue
		}
		if !first {
			fmt.Println()
		}
		fmt.Print(section)
		first = false
	}
}
