package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"whisperd/internal/download"
	"whisperd/internal/platform"
	"whisperd/internal/whisper"
)

func newModelsCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Manage whisper model files",
	}

	cmd.AddCommand(newModelsListCmd(app))
	cmd.AddCommand(newModelsPullCmd(app))
	return cmd
}

func newModelsListCmd(app *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List known model aliases and their on-disk status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			modelsDir, err := platform.ResolveModelsDir("", app.cfg.ModelsDir)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tFILE\tSTATUS")
			for _, name := range whisper.ModelNames() {
				model, _ := whisper.LookupModel(name)
				status := "missing"
				if _, err := os.Stat(filepath.Join(modelsDir, model.FileName)); err == nil {
					status = "present"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", name, model.FileName, status)
			}
			return tw.Flush()
		},
	}
}

func newModelsPullCmd(app *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "pull [model]",
		Short: "Download and verify a model",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			modelRef := ""
			if len(args) == 1 {
				modelRef = args[0]
			} else {
				modelRef = app.cfg.Model
			}

			modelsDir, err := platform.ResolveModelsDir("", app.cfg.ModelsDir)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(modelsDir, 0o755); err != nil {
				return fmt.Errorf("create models directory %s: %w", modelsDir, err)
			}

			resolved, err := whisper.ResolveModel(modelRef, modelsDir)
			if err != nil {
				return err
			}
			if resolved.IsCustomPath {
				return fmt.Errorf("pull expects a model alias; got path %s", resolved.Path)
			}

			if !resolved.NeedsDownload {
				if err := download.VerifySHA256(resolved.Path, resolved.SHA256); err != nil {
					app.log().Warn("model checksum verification failed; downloading fresh copy",
						zap.String("model", resolved.Name), zap.Error(err))
					resolved.NeedsDownload = true
				}
			}

			if !resolved.NeedsDownload {
				fmt.Fprintf(cmd.OutOrStdout(), "Model %s already present at %s\n", resolved.Name, resolved.Path)
				return nil
			}

			if err := download.File(cmd.Context(), download.Options{
				URL:            resolved.URL,
				Destination:    resolved.Path,
				ExpectedSHA256: resolved.SHA256,
				NoProgress:     app.noProgress,
				Logger:         app.log(),
			}); err != nil {
				return fmt.Errorf("download model %q: %w", resolved.Name, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Model %s installed at %s\n", resolved.Name, resolved.Path)
			return nil
		},
	}
}
