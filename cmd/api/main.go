package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
)

const serviceName = "shop-panel"

var Version = "dev"

func main() {
	if err := newRootCmd(log.Default()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(logger *log.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:           "shop-panel",
		Short:         "Sell hosted panels: take payment, provision, reclaim on expiry",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(logger))
	root.AddCommand(migrateCmd(logger))
	root.AddCommand(sweepCmd(logger))
	return root
}
