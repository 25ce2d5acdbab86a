// Copyright © 2024 The pikelsp authors

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tliron/commonlog"

	"github.com/piketools/pikelsp/bridge"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pikelsp",
	Short: "pikelsp — Language server for Pike",
	Long: `pikelsp is a Language Server Protocol server for the Pike programming
language. It delegates parsing, compilation, and introspection to the
Pike compiler itself, run as a long-lived analyze-server subprocess, and
layers caching on top so the editor stays responsive.

Getting started:
  pikelsp lsp                  Start the language server (stdio)
  pikelsp check file.pike      Parse files and report diagnostics
  pikelsp check --probe        Verify the Pike executable is runnable
  pikelsp query                Interactive wire-protocol console
  pikelsp version              Show pikelsp and Pike versions

Configuration (flags, $PIKELSP_* environment, or ~/.pikelsp.yaml):
  pike            Path to the Pike executable (default "pike")
  master-script   Analyze-server entry script run by Pike
  module-path     Extra module search paths (-M), repeatable
  include-path    Extra include search paths (-I), repeatable
  debug           Verbose logging on both sides of the bridge

More information:
  Source code:     https://github.com/piketools/pikelsp`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.pikelsp.yaml)")
	rootCmd.PersistentFlags().String("pike", "pike", "path to the Pike executable")
	rootCmd.PersistentFlags().String("master-script", "", "analyze-server entry script run by Pike")
	rootCmd.PersistentFlags().StringSlice("module-path", nil, "extra module search paths passed as -M")
	rootCmd.PersistentFlags().StringSlice("include-path", nil, "extra include search paths passed as -I")
	rootCmd.PersistentFlags().Bool("debug", false, "enable verbose bridge logging")

	for _, flag := range []string{"pike", "master-script", "module-path", "include-path", "debug"} {
		if err := viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".pikelsp" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigName(".pikelsp")
	}

	viper.SetEnvPrefix("pikelsp")
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	commonlog.Configure(logVerbosity(), nil)
}

// logVerbosity maps the debug flag onto commonlog's verbosity scale.
func logVerbosity() int {
	if viper.GetBool("debug") {
		return 2
	}
	return 1
}

// bridgeConfig assembles the bridge configuration from viper.
func bridgeConfig() bridge.Config {
	return bridge.Config{
		Debug: viper.GetBool("debug"),
		Process: bridge.ProcessConfig{
			Command:      viper.GetString("pike"),
			MasterScript: viper.GetString("master-script"),
			ModulePaths:  viper.GetStringSlice("module-path"),
			IncludePaths: viper.GetStringSlice("include-path"),
		},
	}
}
