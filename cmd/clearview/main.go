package main

import (
	"os"

	"github.com/spf13/cobra"
)

var configFile string

func rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "clearview",
		Short:         "ClearNode session authentication and balance view",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "env file to load before the environment")
	root.AddCommand(serveCommand(), connectCommand())
	return root
}

func main() {
	if err := rootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
