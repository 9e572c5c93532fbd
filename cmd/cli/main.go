package main

import (
	"errors"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var configFile string

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "taxo",
		Short: "Taxonomy bridge CLI",
		Long: `Maintain the canonical catalog and its marketplace mappings from the command line.

Examples:
  taxo bootstrap
  taxo import --marketplace mkt-000001 --file ./rozetka.xlsx --auto-map true
  taxo automap --kind characteristic
  taxo stats`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", os.Getenv("TAXO_CONFIG"), "Config file (or set TAXO_CONFIG env)")

	root.AddCommand(
		newBootstrapCommand(),
		newImportCommand(),
		newAutoMapCommand(),
		newStatsCommand(),
		newDeleteMarketplaceCommand(),
		newExportCommand(),
	)
	return root
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		os.Stderr.WriteString("warning: reading .env: " + err.Error() + "\n")
	}
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
