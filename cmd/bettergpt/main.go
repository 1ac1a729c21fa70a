package main

import (
	"io"
	"os"
	"strings"

	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	bettergpt_cmds "github.com/vmanoilov/bettergpt/cmd/bettergpt/cmds"
)

var rootCmd = &cobra.Command{
	Use:   "bettergpt",
	Short: "bettergpt inspects conversation graphs and assembles request context",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// reinitialize the logger because we can now parse --log-level and co
		// from the command line flag
		initLogger()
	},
}

func initLogger() {
	logLevel := viper.GetString("log-level")
	if viper.GetBool("verbose") && logLevel != "trace" {
		logLevel = "debug"
	}

	var logWriter io.Writer = os.Stderr
	if viper.GetString("log-format") == "text" {
		logWriter = zerolog.ConsoleWriter{Out: os.Stderr}
	}
	log.Logger = log.Output(logWriter)

	switch logLevel {
	case "trace":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case "fatal":
		zerolog.SetGlobalLevel(zerolog.FatalLevel)
	}
}

func initConfig(configPath string) error {
	viper.SetEnvPrefix("bettergpt")

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.bettergpt")

		xdgConfigPath, err := os.UserConfigDir()
		if err == nil {
			viper.AddConfigPath(xdgConfigPath + "/bettergpt")
		}
	}

	err := viper.ReadInConfig()
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		// Config file not found; ignore error
	} else if err != nil {
		return err
	}
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	return viper.BindPFlags(rootCmd.PersistentFlags())
}

func main() {
	_ = rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (trace, debug, info, warn, error, fatal)")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format (json, text)")
	rootCmd.PersistentFlags().String("config", "", "Path to config file (default ~/.bettergpt/config.yml)")
	rootCmd.PersistentFlags().Bool("verbose", false, "Verbose output")

	// parse the flags one time just to catch --config
	configFile := ""
	for idx, arg := range os.Args {
		if arg == "--config" {
			if len(os.Args) > idx+1 {
				configFile = os.Args[idx+1]
			}
		}
	}

	err := initConfig(configFile)
	cobra.CheckErr(err)
	initLogger()

	graphCmdInstance, err := bettergpt_cmds.NewGraphCommand()
	cobra.CheckErr(err)
	graphCommand, err := cli.BuildCobraCommandFromGlazeCommand(graphCmdInstance)
	cobra.CheckErr(err)
	rootCmd.AddCommand(graphCommand)

	contextCmdInstance, err := bettergpt_cmds.NewContextCommand()
	cobra.CheckErr(err)
	contextCommand, err := cli.BuildCobraCommandFromWriterCommand(contextCmdInstance)
	cobra.CheckErr(err)
	rootCmd.AddCommand(contextCommand)

	tokensCmd := &cobra.Command{
		Use:   "tokens",
		Short: "Commands related to tokens",
	}
	countCmdInstance, err := bettergpt_cmds.NewCountCommand()
	cobra.CheckErr(err)
	countCommand, err := cli.BuildCobraCommandFromWriterCommand(countCmdInstance)
	cobra.CheckErr(err)
	tokensCmd.AddCommand(countCommand)
	rootCmd.AddCommand(tokensCmd)
}
