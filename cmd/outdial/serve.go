package main

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sebas/outdial/internal/banner"
	"github.com/sebas/outdial/internal/outdial/config"
	"github.com/sebas/outdial/internal/outdial/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the outdial widget HTTP server",
	Long: `Run the outdial widget as a long-running service.

The widget page is served on --port, host events are accepted on
/api/v1/host/events and a gRPC health service listens on --grpc-port.

Examples:
  outdial serve --config outdial.yaml
  outdial serve --sip-proxy 10.0.0.1:5060 --entry-point ep-1`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().Int("port", 0, "HTTP server port")
	serveCmd.Flags().String("bind", "", "HTTP and gRPC bind address")
	serveCmd.Flags().Int("grpc-port", 0, "gRPC health port (0 disables)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.close()

	banner.Print("OUTDIAL WIDGET", []banner.ConfigLine{
		{Label: "HTTP Listen", Value: fmt.Sprintf("%s:%d", cfg.BindAddr, cfg.Port)},
		{Label: "gRPC Health", Value: grpcAddr(cfg)},
		{Label: "Agent", Value: cfg.Widget.AgentID},
		{Label: "Entry Point", Value: cfg.Widget.EntryPointID},
		{Label: "Failure Policy", Value: cfg.Widget.FailurePolicy},
		{Label: "Gate On Call", Value: fmt.Sprint(cfg.Widget.GateOnActiveCall)},
		{Label: "Validation", Value: cfg.Validation.URL},
		{Label: "Notification", Value: cfg.Notification.URL},
		{Label: "SIP Proxy", Value: cfg.SIP.Proxy},
		{Label: "Log Level", Value: cfg.LogLevel},
	})

	if rt.sip != nil {
		go func() {
			if err := rt.sip.Serve(ctx); err != nil && ctx.Err() == nil {
				slog.Error("SIP listener stopped", "error", err)
			}
		}()
	}

	srv, err := server.NewServer(server.Config{
		BindAddr: cfg.BindAddr,
		Port:     cfg.Port,
		Widget:   rt.widget,
		Emitter:  rt.host,
		Hanger:   rt,
	})
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}
	if err := srv.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	var health *server.HealthServer
	if cfg.GRPCPort > 0 {
		health = server.NewHealthServer(cfg.BindAddr, cfg.GRPCPort)
		if err := health.Start(); err != nil {
			return err
		}
	}

	rt.widget.Connect(ctx)
	if health != nil {
		health.SetServing(true)
	}

	if configPath != "" {
		current := cfg
		go func() {
			err := config.Watch(configPath, ctx.Done(), func(next *config.Config) {
				if err := withFlags(cmd, next); err != nil {
					slog.Error("Config reload rejected", "path", configPath, "error", err)
					return
				}
				rt.reload(current, next)
				current = next
			})
			if err != nil {
				slog.Error("Config watch stopped", "path", configPath, "error", err)
			}
		}()
	}

	slog.Info("Outdial widget started", "addr", cfg.BindAddr, "port", cfg.Port)
	<-ctx.Done()

	slog.Info("Shutting down outdial widget...")
	if health != nil {
		health.Stop()
	}
	if err := srv.Stop(); err != nil {
		slog.Error("Error during shutdown", "error", err)
	}
	slog.Info("Outdial widget stopped")
	return nil
}

func grpcAddr(c *config.Config) string {
	if c.GRPCPort <= 0 {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.BindAddr, c.GRPCPort)
}
