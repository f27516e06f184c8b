// Package main provides the ticketbridge binary entry point.
// Ticketbridge relays Intercom support conversations into a Discord
// channel and routes replies back.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "ticketbridge"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Intercom to Discord ticket bridge",
		Long: `Ticketbridge mirrors fresh Intercom support conversations into a
Discord channel as ticket messages with reply buttons.

It provides:
- A webhook receiver for Intercom conversation events
- A Discord interactions endpoint for buttons, modals and slash commands
- A SQLite-backed ticket registry

Events flow through an embedded NATS JetStream so webhook deliveries
are deduplicated and survive handler failures.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			configureLogging(logLevel)
		},
		// Bare invocation runs the bridge.
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(serveCmd(&configPath))
	cmd.AddCommand(syncCmd(&configPath))
	cmd.AddCommand(statusCmd(&configPath))
	cmd.AddCommand(cleanupCmd(&configPath))
	cmd.AddCommand(configCmd())

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	return cmd
}

func configureLogging(logLevel string) {
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

func printBanner() {
	fmt.Println("╔═══════════════════════════════════════════════╗")
	fmt.Println("║          Ticketbridge v" + Version + "                  ║")
	fmt.Println("║     Intercom ↔ Discord Support Bridge         ║")
	fmt.Println("╚═══════════════════════════════════════════════╝")
}
