// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/Thermoquad/cn105emu/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string

	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	cfg    *config.Config
	logger = logrus.StandardLogger()
)

var rootCmd = &cobra.Command{
	Use:   "cn105emu",
	Short: "CN105 heat pump emulator for Mitsubishi wired remotes",
	Long: `cn105emu - Stands in for a Mitsubishi heat pump on the CN105 connector.

The wired remote keeps working as a normal thermostat while an external
control engine (simulated, or a controller reached over MQTT) owns the
settings. Changes made on the remote take control for a while and are pushed
to the engine; otherwise the engine's settings are mirrored to the remote.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 2400]   (8E1)
  WebSocket: --url ws://host/path [--username user]

Settings are read from --config (YAML), then a .env file, then CN105_*
environment variables, then flags.

For WebSocket authentication, the password is read from the CN105_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")

	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 2400, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")
}

// loadConfig reads the config file and lets explicitly set flags win
func loadConfig(cmd *cobra.Command, _ []string) error {
	c, err := config.Load(configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		c.Link.Port = portName
	}
	if flags.Changed("baud") {
		c.Link.Baud = baudRate
	}
	if flags.Changed("url") {
		c.Link.URL = wsURL
	}
	if flags.Changed("username") {
		c.Link.Username = wsUsername
	}
	if flags.Changed("no-ssl-verify") {
		c.Link.NoSSLVerify = wsNoSSLVerify
	}
	if flags.Changed("log-level") {
		c.Log.Level = logLevel
	}

	if err := c.Validate(); err != nil {
		return err
	}
	if err := c.Log.Apply(logger); err != nil {
		return err
	}
	cfg = c
	return nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
