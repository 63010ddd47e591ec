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
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/marshm100/Robinhood-Dashboard-v0.1-sub001/common"
	"github.com/marshm100/Robinhood-Dashboard-v0.1-sub001/data"
	"github.com/marshm100/Robinhood-Dashboard-v0.1-sub001/portfolio"
)

var (
	refreshOnce bool
	refreshDays int
)

func init() {
	refreshCmd.Flags().String("tickers", "", "Comma separated tickers to keep cached")
	if err := viper.BindPFlag("refresh.tickers", refreshCmd.Flags().Lookup("tickers")); err != nil {
		log.Panic().Err(err).Msg("could not bind refresh.tickers")
	}

	refreshCmd.Flags().String("schedule", "0 18 * * 1-5", "Cron schedule of the refresh in the market timezone")
	if err := viper.BindPFlag("refresh.schedule", refreshCmd.Flags().Lookup("schedule")); err != nil {
		log.Panic().Err(err).Msg("could not bind refresh.schedule")
	}

	refreshCmd.Flags().String("metrics-addr", ":9090", "Listen address of the prometheus /metrics endpoint, empty disables it")
	if err := viper.BindPFlag("refresh.metrics_addr", refreshCmd.Flags().Lookup("metrics-addr")); err != nil {
		log.Panic().Err(err).Msg("could not bind refresh.metrics_addr")
	}

	refreshCmd.Flags().Duration("max-age", 12*time.Hour, "Cached prices older than this are fetched again")
	if err := viper.BindPFlag("refresh.max_age", refreshCmd.Flags().Lookup("max-age")); err != nil {
		log.Panic().Err(err).Msg("could not bind refresh.max_age")
	}

	refreshCmd.Flags().IntVar(&refreshDays, "days", 365*5, "Number of days of history to keep cached")
	refreshCmd.Flags().BoolVar(&refreshOnce, "once", false, "Refresh immediately and exit")
	refreshCmd.Flags().StringVarP(&transactionsFile, "transactions", "t", "", "Also refresh every ticker in this transaction log")
	refreshCmd.Flags().StringVar(&accountID, "account", "", "Also refresh every ticker in this account's transaction log")

	rootCmd.AddCommand(refreshCmd)
}

// refreshTickers collects the configured tickers and those of the transaction log
func refreshTickers(ctx context.Context) ([]string, error) {
	tickers := splitList(viper.GetString("refresh.tickers"))
	if transactionsFile != "" || accountID != "" {
		trxs, err := loadTransactions(ctx, transactionsFile, accountID)
		if err != nil {
			return nil, err
		}
		tickers = append(tickers, portfolio.NewLedger(trxs).Tickers()...)
	}
	return tickers, nil
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Keep the price cache populated on a schedule",
	Long: `Periodically preload prices for a set of tickers so that valuations and
backtests find them in the shared cache. Prometheus metrics of the cache are
served on /metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		tickers, err := refreshTickers(ctx)
		if err != nil {
			return err
		}
		if len(tickers) == 0 {
			return errors.New("no tickers to refresh; use --tickers, --transactions or --account")
		}

		prices, closer, err := newPriceCache(ctx, data.WithTTL(viper.GetDuration("refresh.max_age")))
		if err != nil {
			return err
		}
		defer closer()

		refresh := func() {
			end := common.Day(time.Now())
			begin := end.AddDate(0, 0, -refreshDays)
			start := time.Now()

			runCtx, cancel := context.WithTimeout(ctx, 30*time.Minute)
			defer cancel()

			if err := prices.Preload(runCtx, tickers, begin, end); err != nil {
				log.Error().Err(err).Strs("Tickers", tickers).Msg("refresh incomplete")
				return
			}
			log.Info().Int("NumTickers", len(tickers)).Dur("Elapsed", time.Since(start)).Int("NumCached", prices.Count()).Msg("refreshed prices")
		}

		if refreshOnce {
			refresh()
			return nil
		}

		if addr := viper.GetString("refresh.metrics_addr"); addr != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			server := &http.Server{
				Addr:              addr,
				Handler:           mux,
				ReadHeaderTimeout: 5 * time.Second,
			}
			go func() {
				log.Info().Str("Addr", addr).Msg("serving metrics")
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error().Err(err).Msg("metrics server failed")
				}
			}()
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					log.Warn().Err(err).Msg("could not shutdown metrics server")
				}
			}()
		}

		scheduler := cron.New(cron.WithLocation(common.GetTimezone()))
		if _, err := scheduler.AddFunc(viper.GetString("refresh.schedule"), refresh); err != nil {
			log.Error().Err(err).Str("Schedule", viper.GetString("refresh.schedule")).Msg("invalid refresh schedule")
			return err
		}

		refresh()
		scheduler.Start()
		log.Info().Str("Schedule", viper.GetString("refresh.schedule")).Strs("Tickers", tickers).Msg("refresh scheduled")

		<-ctx.Done()
		log.Info().Msg("shutting down refresh")
		<-scheduler.Stop().Done()
		return nil
	},
}
