package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"whisperd/internal/audio"
	"whisperd/internal/config"
	"whisperd/internal/whisper"
)

// Token whisper.cpp emits for audio without detectable speech; the
// silence gate mimics it so gated responses look like engine output.
const blankAudioToken = "[BLANK_AUDIO]"

type handlers struct {
	cfg       config.Config
	engine    whisper.Engine
	modelPath string
	logger    *zap.Logger
	metrics   *metrics
}

type healthzResponse struct {
	OK        bool   `json:"ok"`
	Model     string `json:"model"`
	ModelPath string `json:"model_path"`
	Threads   int    `json:"threads"`
	BeamSize  int    `json:"beam_size"`
	Bin       string `json:"bin"`
}

type transcribeResponse struct {
	Language       string            `json:"language"`
	Duration       float64           `json:"duration"`
	Text           string            `json:"text"`
	Segments       []whisper.Segment `json:"segments"`
	SRT            *string           `json:"srt"`
	WordTimestamps json.RawMessage   `json:"word_timestamps"`
	UsedBin        string            `json:"used_bin"`
}

func (h *handlers) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthzResponse{
		OK:        true,
		Model:     h.cfg.Model,
		ModelPath: h.modelPath,
		Threads:   h.cfg.Threads,
		BeamSize:  h.cfg.BeamSize,
		Bin:       h.cfg.Bin,
	})
}

func (h *handlers) transcribe(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.metrics.transcriptions.WithLabelValues("too_large").Inc()
			writeError(w, http.StatusRequestEntityTooLarge, map[string]any{
				"error": fmt.Sprintf("upload exceeds limit of %d bytes", tooLarge.Limit),
			})
			return
		}
		h.metrics.transcriptions.WithLabelValues("bad_request").Inc()
		writeError(w, http.StatusBadRequest, map[string]any{"error": "invalid multipart form"})
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.metrics.transcriptions.WithLabelValues("bad_request").Inc()
		writeError(w, http.StatusBadRequest, map[string]any{"error": "missing file field"})
		return
	}
	defer file.Close()

	language := strings.TrimSpace(r.FormValue("language"))
	translate := r.FormValue("task") == "translate"
	wordTS := false
	if v := strings.TrimSpace(r.FormValue("word_ts")); v != "" {
		wordTS, _ = strconv.ParseBool(v)
	}

	audioPath, err := h.spoolUpload(file, header.Filename)
	if err != nil {
		h.logger.Error("failed to spool upload", zap.Error(err))
		h.metrics.transcriptions.WithLabelValues("error").Inc()
		writeError(w, http.StatusInternalServerError, map[string]any{"error": "failed to store upload"})
		return
	}
	defer func() {
		if err := os.Remove(audioPath); err != nil {
			h.logger.Warn("failed to remove upload", zap.String("path", audioPath), zap.Error(err))
		}
	}()

	if h.gatedAsSilent(audioPath) {
		h.metrics.transcriptions.WithLabelValues("silent").Inc()
		writeJSON(w, http.StatusOK, transcribeResponse{
			Language: language,
			Text:     blankAudioToken,
			Segments: []whisper.Segment{},
		})
		return
	}

	started := time.Now()
	result, err := h.engine.Transcribe(r.Context(), whisper.Request{
		AudioPath:      audioPath,
		ModelPath:      h.modelPath,
		Language:       language,
		Translate:      translate,
		WordTimestamps: wordTS,
		Threads:        h.cfg.Threads,
		BeamSize:       h.cfg.BeamSize,
	})
	h.metrics.duration.Observe(time.Since(started).Seconds())

	if err != nil {
		h.metrics.transcriptions.WithLabelValues("error").Inc()
		h.logger.Warn("transcription failed", zap.Duration("elapsed", time.Since(started)), zap.Error(err))
		h.writeTranscribeError(w, err)
		return
	}

	h.metrics.transcriptions.WithLabelValues("ok").Inc()
	h.logger.Info("transcription finished",
		zap.Duration("elapsed", time.Since(started)),
		zap.String("used_bin", result.UsedBin),
		zap.Int("segments", len(result.Segments)),
	)

	segments := result.Segments
	if segments == nil {
		segments = []whisper.Segment{}
	}
	var srt *string
	if result.SRT != "" {
		srt = &result.SRT
	}

	writeJSON(w, http.StatusOK, transcribeResponse{
		Language:       result.Language,
		Duration:       result.Duration,
		Text:           result.Text,
		Segments:       segments,
		SRT:            srt,
		WordTimestamps: result.WordTimestamps,
		UsedBin:        result.UsedBin,
	})
}

// spoolUpload writes the multipart file to a temp path, keeping the
// original extension so the binary can sniff the container format.
func (h *handlers) spoolUpload(file io.Reader, filename string) (string, error) {
	ext := filepath.Ext(filepath.Base(filename))
	if ext == "" {
		ext = ".wav"
	}

	tmp, err := os.CreateTemp("", "whisperd-upload-*"+ext)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	written, err := io.Copy(tmp, file)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("write upload: %w", err)
	}

	h.metrics.uploadBytes.Observe(float64(written))
	return tmp.Name(), nil
}

func (h *handlers) gatedAsSilent(audioPath string) bool {
	if !h.cfg.SilenceGate {
		return false
	}
	if !strings.EqualFold(filepath.Ext(audioPath), ".wav") {
		return false
	}

	m, err := audio.Analyze(audioPath)
	if err != nil {
		h.logger.Warn("silence gate analysis failed; continuing transcription", zap.Error(err))
		return false
	}
	if !m.Silent(h.cfg.SilenceThresholdDBFS) {
		return false
	}

	h.logger.Info("audio considered silent; skipping transcription",
		zap.Float64("rms_dbfs", m.RMSdBFS),
		zap.Float64("peak_dbfs", m.PeakdBFS),
		zap.Float64("threshold_dbfs", h.cfg.SilenceThresholdDBFS),
	)
	return true
}

func (h *handlers) writeTranscribeError(w http.ResponseWriter, err error) {
	var notFound *whisper.BinaryNotFoundError
	if errors.As(err, &notFound) {
		writeError(w, http.StatusInternalServerError, map[string]any{
			"error": notFound.Error(),
		})
		return
	}

	var exitErr *whisper.ExitError
	if errors.As(err, &exitErr) {
		payload := map[string]any{
			"error":       "whisper.cpp failed",
			"exit_code":   exitErr.ExitCode,
			"stderr_tail": exitErr.StderrTail,
			"stdout_tail": exitErr.StdoutTail,
			"cmd":         exitErr.Cmd,
			"tried_bins":  exitErr.Tried,
			"used_bin":    exitErr.UsedBin,
		}
		if exitErr.Hint != "" {
			payload["hint"] = exitErr.Hint
		}
		writeError(w, http.StatusInternalServerError, payload)
		return
	}

	var missing *whisper.MissingOutputError
	if errors.As(err, &missing) {
		writeError(w, http.StatusInternalServerError, map[string]any{
			"error":       "missing JSON output",
			"stdout_tail": missing.StdoutTail,
			"stderr_tail": missing.StderrTail,
		})
		return
	}

	writeError(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, payload map[string]any) {
	writeJSON(w, status, payload)
}
