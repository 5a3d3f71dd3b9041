package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"whisperd/internal/download"
	"whisperd/internal/platform"
	"whisperd/internal/server"
	"whisperd/internal/whisper"
)

func (a *appState) runServe(ctx context.Context) error {
	resolved, err := a.ensureModelAvailable(ctx)
	if err != nil {
		return err
	}

	engine := whisper.NewCLIEngine(a.cfg.Bin, a.log())
	handler := server.New(a.cfg, engine, resolved.Path, a.log())

	srv := &http.Server{
		Addr:              a.cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		a.log().Info("listening",
			zap.String("addr", a.cfg.Addr),
			zap.String("model", a.cfg.Model),
			zap.String("model_path", resolved.Path),
			zap.String("bin", a.cfg.Bin),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.log().Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// ensureModelAvailable resolves the configured model and downloads a
// missing named model into the models directory.
func (a *appState) ensureModelAvailable(ctx context.Context) (whisper.ResolvedModel, error) {
	modelsDir, err := platform.ResolveModelsDir("", a.cfg.ModelsDir)
	if err != nil {
		return whisper.ResolvedModel{}, err
	}
	if err := os.MkdirAll(modelsDir, 0o755); err != nil {
		return whisper.ResolvedModel{}, fmt.Errorf("create models directory %s: %w", modelsDir, err)
	}

	resolved, err := whisper.ResolveModel(a.cfg.Model, modelsDir)
	if err != nil {
		return whisper.ResolvedModel{}, err
	}

	if !resolved.NeedsDownload {
		return resolved, nil
	}

	a.log().Info("model not found, downloading",
		zap.String("model", resolved.Name),
		zap.String("destination", resolved.Path),
	)
	if err := download.File(ctx, download.Options{
		URL:            resolved.URL,
		Destination:    resolved.Path,
		ExpectedSHA256: resolved.SHA256,
		NoProgress:     a.noProgress,
		Logger:         a.log(),
	}); err != nil {
		return whisper.ResolvedModel{}, fmt.Errorf("download model %q: %w", resolved.Name, err)
	}

	resolved.NeedsDownload = false
	return resolved, nil
}
