package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	root := &cobra.Command{
		Use:           "autolot",
		Short:         "Dealership inventory web application",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "path to a config file (default ./config.{yaml,toml,json})")
	root.PersistentFlags().String("db", "", "path to the sqlite database file")

	serve := newServeCommand(logger)
	root.AddCommand(serve, newPasswdCommand(logger))
	// running without a subcommand serves
	root.Flags().AddFlagSet(serve.Flags())
	root.RunE = serve.RunE

	if err := root.Execute(); err != nil {
		logger.Fatal(err)
	}
}
