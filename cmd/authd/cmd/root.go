// Package cmd implements the authd command-line interface, following the
// cobra/viper wiring of the lora-gateway-bridge upstream's root command.
package cmd

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/AstralVarkon/azure-iot-sdks/internal/config"
)

var cfgFile string
var version string

var rootCmd = &cobra.Command{
	Use:   "authd",
	Short: "Azure IoT Hub CBS authentication daemon",
	RunE:  run,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to configuration file (default authd.toml)")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("authd")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/authd")
	}

	viper.SetDefault("auth.sas_token_lifetime", "1h")
	viper.SetDefault("auth.sas_token_refresh_time", "45m")
	viper.SetDefault("auth.cbs_request_timeout", "30s")
	viper.SetDefault("auth.do_work_interval", "2s")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.WithError(err).Fatal("authd: read config error")
		}
	}

	if err := viper.Unmarshal(&config.C); err != nil {
		log.WithError(errors.Wrap(err, "authd: unmarshal config error")).Fatal("authd: invalid configuration")
	}

	if err := config.C.ApplyDeviceConnectionString(); err != nil {
		log.WithError(err).Fatal("authd: invalid device connection string")
	}
}
