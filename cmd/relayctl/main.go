// Command relayctl is an operator CLI that talks to the configured
// Postgres schema directly (spec §6: "CLI / host surface... out of
// core"), replacing the teacher's REST-backed memoryctl with direct
// store access since this engine has no HTTP surface.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	dsnFlag    string
	schemaFlag string
	rootCmd    = &cobra.Command{
		Use:   "relayctl",
		Short: "Operator CLI for the relaybase engine",
	}
)

func main() {
	rootCmd.PersistentFlags().StringVarP(&dsnFlag, "dsn", "d", os.Getenv("RELAYBASE_POSTGRES_DSN"), "Postgres connection string")
	rootCmd.PersistentFlags().StringVarP(&schemaFlag, "schema", "s", "infra", "Schema name")

	rootCmd.AddCommand(newEnqueueCmd())
	rootCmd.AddCommand(newJobCmd())
	rootCmd.AddCommand(newTimerCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
