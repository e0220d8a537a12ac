package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sebas/outdial/internal/logger"
	"github.com/sebas/outdial/internal/outdial/config"
)

var rootCmd = &cobra.Command{
	Use:          "outdial",
	Short:        "Agent outdial widget",
	SilenceUsage: true,
}

var (
	configPath string
	cfg        *config.Config
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", os.Getenv(config.EnvPrefix+"CONFIG"), "Path to YAML config file")
	pf.String("loglevel", "", "Log level (debug, info, warn, error)")
	pf.String("agent-id", "", "Agent identifier sent to the endpoints")
	pf.String("entry-point", "", "Outbound entry point id")
	pf.String("origin", "", "Origin (caller) number")
	pf.String("failure-policy", "", "Validation transport failure policy (fail_open, fail_closed)")
	pf.Bool("gate-on-active-call", false, "Disable outdial while a call is active")
	pf.String("validation-url", "", "Pre-outdial validation endpoint")
	pf.String("notification-url", "", "Post-outdial notification endpoint")
	pf.String("sip-proxy", "", "SIP outbound proxy host:port")

	rootCmd.PersistentPreRunE = loadConfig
}

// loadConfig layers flags on top of defaults, file and environment.
func loadConfig(cmd *cobra.Command, _ []string) error {
	loaded, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := withFlags(cmd, loaded); err != nil {
		return err
	}
	cfg = loaded

	logger.InitLogger(cfg.LogLevel, os.Stdout)
	return nil
}

// withFlags applies the command-line overrides to c and validates the result.
// It runs on every load, including hot reloads of the config file.
func withFlags(cmd *cobra.Command, c *config.Config) error {
	applyFlags(cmd, c)
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func applyFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	str := func(name string, dst *string) {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	num := func(name string, dst *int) {
		if flags.Changed(name) {
			*dst, _ = flags.GetInt(name)
		}
	}

	str("loglevel", &c.LogLevel)
	str("agent-id", &c.Widget.AgentID)
	str("entry-point", &c.Widget.EntryPointID)
	str("origin", &c.Widget.OriginNumber)
	str("failure-policy", &c.Widget.FailurePolicy)
	str("validation-url", &c.Validation.URL)
	str("notification-url", &c.Notification.URL)
	str("sip-proxy", &c.SIP.Proxy)
	if flags.Changed("gate-on-active-call") {
		c.Widget.GateOnActiveCall, _ = flags.GetBool("gate-on-active-call")
	}
	// serve-only flags; Changed is false when the command lacks them
	num("port", &c.Port)
	num("grpc-port", &c.GRPCPort)
	str("bind", &c.BindAddr)
}
