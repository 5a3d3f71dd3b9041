// Package cli wires the cobra commands: the root command runs the HTTP
// server, with subcommands for model management and version info.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"whisperd/internal/config"
	"whisperd/internal/logging"
	"whisperd/internal/version"
)

type appState struct {
	configPath string
	verbose    bool
	jsonLogs   bool
	noProgress bool

	cfg    config.Config
	logger *zap.Logger
}

func NewRootCmd() *cobra.Command {
	app := &appState{}

	cmd := &cobra.Command{
		Use:           "whisperd",
		Short:         "HTTP transcription service backed by a whisper.cpp binary",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Resolve(),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(app.configPath)
			if err != nil {
				return err
			}
			applyFlagOverrides(cmd, &cfg)
			app.cfg = cfg

			logger, err := logging.New(logging.Options{
				Verbose: app.verbose,
				JSON:    app.jsonLogs,
				File:    cfg.LogFile,
			})
			if err != nil {
				return fmt.Errorf("initialize logger: %w", err)
			}
			app.logger = logger
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.runServe(cmd.Context())
		},
	}

	cmd.SetVersionTemplate("{{.Name}} v{{.Version}}\n")

	bindGlobalFlags(cmd, app)
	bindServerFlags(cmd)

	cmd.AddCommand(newModelsCmd(app))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func bindGlobalFlags(cmd *cobra.Command, app *appState) {
	pf := cmd.PersistentFlags()
	pf.StringVar(&app.configPath, "config", "", "Path to YAML config file")
	pf.BoolVar(&app.verbose, "verbose", false, "Enable verbose logs")
	pf.BoolVar(&app.jsonLogs, "json", false, "Enable JSON logging")
	pf.BoolVar(&app.noProgress, "no-progress", false, "Disable download progress indicators")
	pf.String("model", "", "Model alias or model file path")
	pf.String("models-dir", "", "Directory where models are stored")
	pf.String("bin", "", "Preferred whisper binary name")
}

func bindServerFlags(cmd *cobra.Command) {
	cmd.Flags().String("addr", "", "Listen address, e.g. :8080")
	cmd.Flags().Bool("silence-gate", false, "Skip transcription for near-silent WAV uploads")
	cmd.Flags().Float64("silence-threshold-dbfs", -65, "Silence gate RMS threshold in dBFS")
}

// applyFlagOverrides lets explicitly set flags win over file and
// environment configuration.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("model") {
		cfg.Model, _ = cmd.Flags().GetString("model")
	}
	if cmd.Flags().Changed("models-dir") {
		cfg.ModelsDir, _ = cmd.Flags().GetString("models-dir")
	}
	if cmd.Flags().Changed("bin") {
		cfg.Bin, _ = cmd.Flags().GetString("bin")
	}
	if cmd.Flags().Changed("addr") {
		cfg.Addr, _ = cmd.Flags().GetString("addr")
	}
	if cmd.Flags().Changed("silence-gate") {
		cfg.SilenceGate, _ = cmd.Flags().GetBool("silence-gate")
	}
	if cmd.Flags().Changed("silence-threshold-dbfs") {
		cfg.SilenceThresholdDBFS, _ = cmd.Flags().GetFloat64("silence-threshold-dbfs")
	}
}

func (a *appState) log() *zap.Logger {
	if a.logger == nil {
		return zap.NewNop()
	}
	return a.logger
}
