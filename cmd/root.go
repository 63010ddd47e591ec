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
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/marshm100/Robinhood-Dashboard-v0.1-sub001/common"
	"github.com/marshm100/Robinhood-Dashboard-v0.1-sub001/data"
	"github.com/marshm100/Robinhood-Dashboard-v0.1-sub001/observability/opentelemetry"
)

var (
	outputFormat  string
	traceShutdown func(context.Context) error
)

// bind connects a config key to an environment variable and a persistent flag
func bind(key, env, flag string) {
	if err := viper.BindEnv(key, env); err != nil {
		log.Panic().Err(err).Str("Key", key).Msg("could not bind environment variable")
	}
	if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		log.Panic().Err(err).Str("Key", key).Msg("could not bind flag")
	}
}

func init() {
	viper.SetDefault("pricing.lookback_days", data.DefaultLookbackDays)
	viper.SetDefault("pricing.min_request_days", data.DefaultMinRequestDays)
	viper.SetDefault("cache.local_size", 256)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&outputFormat, "format", "table", "Output format: table or json")

	// Logging configuration
	flags.String("log-level", "warning", "Logging level")
	bind("log.level", "PVDASH_LOG_LEVEL", "log-level")

	flags.Bool("log-report-caller", false, "Log function name that called log statement")
	bind("log.report_caller", "PVDASH_LOG_REPORT_CALLER", "log-report-caller")

	flags.String("log-output", "stderr", "Write logs to specified output one of: file path, `stdout`, or `stderr`")
	bind("log.output", "PVDASH_LOG_OUTPUT", "log-output")

	flags.Bool("log-pretty", true, "Write human readable log messages")
	bind("log.pretty", "PVDASH_LOG_PRETTY", "log-pretty")

	// Database
	flags.String("database-url", "", "PostgreSQL connection string")
	bind("database.url", "DATABASE_URL", "database-url")

	// Pricing
	flags.String("pricing-provider", "csv", "Price provider one of: pvdb, tiingo, csv")
	bind("pricing.provider", "PVDASH_PRICING_PROVIDER", "pricing-provider")

	flags.String("prices", "", "CSV file of prices used by the csv provider")
	bind("pricing.csv", "PVDASH_PRICES", "prices")

	flags.String("tiingo-token", "", "Tiingo API token")
	bind("tiingo.token", "TIINGO_TOKEN", "tiingo-token")

	flags.Int("lookback-days", data.DefaultLookbackDays, "Maximum number of days a price is carried forward")
	bind("pricing.lookback_days", "PVDASH_LOOKBACK_DAYS", "lookback-days")

	flags.Int("min-request-days", data.DefaultMinRequestDays, "Minimum number of days requested from the price provider at once")
	bind("pricing.min_request_days", "PVDASH_MIN_REQUEST_DAYS", "min-request-days")

	flags.Int("pricing-ttl", 0, "Seconds before cached prices are refreshed, 0 never refreshes")
	bind("pricing.ttl", "PVDASH_PRICING_TTL", "pricing-ttl")

	// Cache
	flags.Bool("redis", false, "Share cached prices through redis")
	bind("cache.redis", "PVDASH_REDIS", "redis")

	flags.String("redis-url", "redis://localhost:6379/0", "Redis connection string")
	bind("cache.redis_url", "REDIS_URL", "redis-url")

	// Metrics
	flags.Float64("risk-free-rate", 0, "Annual risk free rate used for sharpe and sortino, e.g. 0.02")
	bind("metrics.risk_free_rate", "PVDASH_RISK_FREE_RATE", "risk-free-rate")

	// Tracing
	flags.String("otlp-endpoint", "", "OpenTelemetry collector endpoint, tracing is disabled when empty")
	bind("otlp.endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT", "otlp-endpoint")
}

var rootCmd = &cobra.Command{
	Use:     common.ProgramName,
	Version: common.CurrentVersion.String(),
	Short:   "pvdash values portfolios and backtests hypothetical allocations",
	Long: `pvdash replays a transaction log into holdings, values them against
historical prices and compares the result with benchmarks and hypothetical
allocations.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		common.SetupLogging()

		if outputFormat != "table" && outputFormat != "json" {
			return fmt.Errorf("unknown output format %q", outputFormat)
		}

		var err error
		traceShutdown, err = opentelemetry.Setup()
		if err != nil {
			log.Error().Err(err).Msg("could not setup tracing")
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if traceShutdown != nil {
			if err := traceShutdown(context.Background()); err != nil {
				log.Warn().Err(err).Msg("could not flush traces")
			}
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
