package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/repoupdate/internal/config"
	"github.com/oshokin/repoupdate/internal/logger"
	"github.com/oshokin/repoupdate/internal/service/updater"
	"github.com/oshokin/repoupdate/internal/version"
)

var (
	// configPath to the optional YAML settings file.
	configPath string
	// sourceRoot is the add-on source tree.
	sourceRoot string
	// force holds the --force value: updater.ForceAll, an add-on id or empty.
	force string
	// forceManifest rewrites addons.xml even if nothing was released.
	forceManifest bool
	// logLevel overrides the configured log level.
	logLevel string

	// rootCmd releases changed add-ons and regenerates the repository manifest.
	rootCmd = &cobra.Command{
		Use:   "repoupdate [repo-root] [--force[=ADDON_ID]]",
		Short: "Update a local Kodi repository from a local add-on source directory",
		Long: "Scans the source tree for addon.xml files, zips every add-on that is new or newer than the one " +
			"listed in <repo-root>/addons.xml and regenerates addons.xml and addons.xml.md5.\n\n" +
			"The repository root may also come from the repo_root setting of the config file.\n\n" +
			"A single add-on is forced with --force=ADDON_ID; a bare --force forces every add-on.",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
)

// Execute runs the repoupdate CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		logger.Error(context.Background(), err)
		logger.Sync()
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	// Setup graceful shutdown handling.
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	cfg, err := settings(cmd, args)
	if err != nil {
		return err
	}

	if level, ok := logger.ParseLogLevel(cfg.LogLevel); ok {
		logger.SetLevel(level)
	}

	defer logger.Sync()

	logger.DebugKV(ctx, "Starting", "version", version.Full())

	return updater.Run(ctx, &updater.Options{
		RepositoryRoot: cfg.RepositoryRoot,
		SourceRoot:     cfg.SourceRoot,
		Update:         updateOptions(force, forceManifest),
	})
}

// settings layers explicitly set flags and arguments over the loaded configuration.
func settings(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if len(args) > 0 {
		cfg.RepositoryRoot = args[0]
	}

	if cmd.Flags().Changed("source") {
		cfg.SourceRoot = sourceRoot
	}

	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = logLevel
	}

	if err = config.Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// updateOptions translates the --force and --force-xml flags.
func updateOptions(force string, forceManifest bool) updater.UpdateOptions {
	opts := updater.UpdateOptions{
		ForceManifest: forceManifest,
	}

	switch force {
	case "":
	case updater.ForceAll:
		opts.ForceAll = true
	default:
		opts.ForceID = force
	}

	return opts
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	flags := rootCmd.Flags()

	flags.StringVarP(&configPath, "config", "c", "",
		"path to the YAML settings file (default "+config.DefaultConfigFilename+" if present)")
	flags.StringVarP(&sourceRoot, "source", "s", "", "path to the root of the add-on source directory (default current directory)")
	flags.StringVarP(&force, "force", "f", "",
		"force release of all add-ons; use --force=ADDON_ID (with '=') to force a single add-on")
	flags.Lookup("force").NoOptDefVal = updater.ForceAll
	flags.BoolVarP(&forceManifest, "force-xml", "F", false, "force the recreation of addons.xml and addons.xml.md5")
	flags.StringVarP(&logLevel, "log-level", "l", config.DefaultLogLevel, "log level: debug, info, warn or error")
}
