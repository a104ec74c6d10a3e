// Command riskeval runs demo payment transactions through a container-wired
// risk pipeline. It is the production-shaped composition root of this
// repository: configuration from env and flags, structured logging, a score
// cache layered on as a decorator, and one scope per evaluated transaction.
//
// Usage:
//
//	riskeval evaluate tx-1 tx-2
//	riskeval analyze --strict
package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "riskeval",
	Short: "Evaluate payment transactions through the demo risk pipeline",
	Long: `riskeval wires the demo risk pipeline (transaction lookup, scoring
rules, decision store) through the dependency container and runs transactions
against it. Configuration comes from defaults, an optional .env file and
RISKEVAL_* environment variables; flags override both.`,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "",
		"env file loaded before reading configuration (default: .env)")
	rootCmd.PersistentFlags().String("blocked-country", "",
		"country code scored as high risk (overrides RISKEVAL_BLOCKED_COUNTRY)")

	// Bind flags to viper
	_ = viper.BindPFlag("blocked_country", rootCmd.PersistentFlags().Lookup("blocked-country"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
