// Package cmd defines the command line interface.
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MadBale/Mewsage-project/internal/conf"
	"github.com/MadBale/Mewsage-project/internal/server"
)

// RootCommand creates and returns the root command.
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "mewsage",
		Short: "Mewsage cat sound classification server",
	}

	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		cobra.CheckErr(err)
	}

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		settings.Debug = viper.GetBool("debug")
	}

	rootCmd.AddCommand(serveCommand(settings))
	return rootCmd
}

func serveCommand(settings *conf.Settings) *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the prediction HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return server.Run(settings)
		},
	}

	serveCmd.Flags().IntP("port", "p", settings.WebServer.Port, "Port to listen on")
	if err := viper.BindPFlag("webserver.port", serveCmd.Flags().Lookup("port")); err != nil {
		cobra.CheckErr(err)
	}

	serveCmd.PreRun = func(cmd *cobra.Command, args []string) {
		settings.WebServer.Port = viper.GetInt("webserver.port")
	}

	return serveCmd
}
