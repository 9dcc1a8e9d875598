package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/john/chitu_uploader/logger"
	"github.com/john/chitu_uploader/printer"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	configPath  string
	verbose     bool
	ip          string
	mainboardID string
	broadcast   string

	cfg *Config
	log *zap.Logger
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "chitu",
		Short:         "Upload and print files on Chitu SDCP resin printers",
		SilenceUsage:  true,
		SilenceErrors: true,

		// Runs before every subcommand.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				a.log.Sync()
			}
		},
	}

	pflags := root.PersistentFlags()
	pflags.StringVarP(&a.configPath, "config", "c", defaultConfigPath, "path to configuration file")
	pflags.BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")
	pflags.StringVar(&a.ip, "ip", "", "printer IP address (skips discovery together with --mainboard-id)")
	pflags.StringVar(&a.mainboardID, "mainboard-id", "", "printer mainboard ID")
	pflags.StringVar(&a.broadcast, "broadcast", "", `discovery broadcast address, or "auto" for every local subnet`)

	root.AddCommand(
		newDiscoverCmd(a),
		newUploadCmd(a),
		newFilesCmd(a),
		newStartCmd(a),
		newPrintCmd(a),
		newEmulateCmd(a),
	)
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := LoadConfig(a.configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("ip") {
		cfg.Printer.IP = a.ip
	}
	if flags.Changed("mainboard-id") {
		cfg.Printer.MainboardID = a.mainboardID
	}
	if flags.Changed("broadcast") {
		cfg.Discovery.Broadcast = a.broadcast
	}
	a.cfg = cfg

	a.log, err = logger.New(cfg.Environment, a.verbose)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	return nil
}

func (a *app) client() *printer.Client {
	return printer.NewClient(
		printer.WithHTTPPort(a.cfg.Printer.HTTPPort),
		printer.WithUploadTimeout(a.cfg.Timeouts.Upload),
		printer.WithCommandTimeout(a.cfg.Timeouts.Command),
		printer.WithLogger(a.log.Named("printer")),
	)
}

func (a *app) discoverer() (printer.Discoverer, error) {
	d := a.cfg.Discovery
	disc, err := printer.NewDiscoverer(d.Broadcast, d.Port, d.Timeout, a.log.Named("discovery"))
	if err != nil {
		return nil, err
	}
	return disc, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := (&app{}).rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
