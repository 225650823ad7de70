// Command realreview runs the property image review API and its operational
// tasks.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:           "realreview",
		Short:         "Property image review API",
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newMigrateCmd(), newAdminCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
