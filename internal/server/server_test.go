package server

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"whisperd/internal/config"
	"whisperd/internal/whisper"
)

type stubEngine struct {
	result *whisper.Result
	err    error
	calls  []whisper.Request
}

func (s *stubEngine) Transcribe(_ context.Context, req whisper.Request) (*whisper.Result, error) {
	s.calls = append(s.calls, req)
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Model = "base.en"
	return cfg
}

func newTestServer(t *testing.T, cfg config.Config, engine whisper.Engine) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(New(cfg, engine, "/models/ggml-base.en.bin", nil))
	t.Cleanup(srv.Close)
	return srv
}

func multipartBody(t *testing.T, filename string, audio []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		part, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(audio)
		require.NoError(t, err)
	}
	for key, value := range fields {
		require.NoError(t, mw.WriteField(key, value))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	var payload map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return payload
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, testConfig(), &stubEngine{})

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	payload := decodeBody(t, resp)
	require.Equal(t, true, payload["ok"])
	require.Equal(t, "base.en", payload["model"])
	require.Equal(t, "/models/ggml-base.en.bin", payload["model_path"])
	require.EqualValues(t, 4, payload["threads"])
	require.EqualValues(t, 5, payload["beam_size"])
	require.Equal(t, "whisper-cli", payload["bin"])
}

func TestTranscribeSuccess(t *testing.T) {
	t.Parallel()

	srt := "1\n00:00:00,000 --> 00:00:01,000\nhello\n"
	engine := &stubEngine{result: &whisper.Result{
		Language: "en",
		Duration: 1.0,
		Text:     "hello",
		Segments: []whisper.Segment{{Start: 0, End: 1, Text: "hello"}},
		SRT:      srt,
		UsedBin:  "whisper-cli",
	}}
	srv := newTestServer(t, testConfig(), engine)

	body, contentType := multipartBody(t, "clip.mp3", []byte("fake-audio"), map[string]string{
		"language": "en",
		"task":     "translate",
		"word_ts":  "true",
	})
	resp, err := http.Post(srv.URL+"/transcribe", contentType, body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	payload := decodeBody(t, resp)
	require.Equal(t, "en", payload["language"])
	require.Equal(t, "hello", payload["text"])
	require.Equal(t, srt, payload["srt"])
	require.Equal(t, "whisper-cli", payload["used_bin"])
	require.Nil(t, payload["word_timestamps"])
	require.Len(t, payload["segments"], 1)

	require.Len(t, engine.calls, 1)
	req := engine.calls[0]
	require.Equal(t, ".mp3", filepath.Ext(req.AudioPath))
	require.Equal(t, "/models/ggml-base.en.bin", req.ModelPath)
	require.Equal(t, "en", req.Language)
	require.True(t, req.Translate)
	require.True(t, req.WordTimestamps)
	require.Equal(t, 4, req.Threads)
	require.Equal(t, 5, req.BeamSize)
}

func TestTranscribeDefaultsExtensionToWAV(t *testing.T) {
	t.Parallel()

	engine := &stubEngine{result: &whisper.Result{Text: "ok"}}
	srv := newTestServer(t, testConfig(), engine)

	body, contentType := multipartBody(t, "upload", []byte("fake-audio"), nil)
	resp, err := http.Post(srv.URL+"/transcribe", contentType, body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	require.Len(t, engine.calls, 1)
	require.Equal(t, ".wav", filepath.Ext(engine.calls[0].AudioPath))
	require.False(t, engine.calls[0].Translate)
}

func TestTranscribeMissingFile(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, testConfig(), &stubEngine{})

	body, contentType := multipartBody(t, "", nil, map[string]string{"language": "en"})
	resp, err := http.Post(srv.URL+"/transcribe", contentType, body)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	payload := decodeBody(t, resp)
	require.Equal(t, "missing file field", payload["error"])
}

func TestTranscribeUploadTooLarge(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.MaxUploadBytes = 64
	srv := newTestServer(t, cfg, &stubEngine{})

	body, contentType := multipartBody(t, "big.wav", bytes.Repeat([]byte("a"), 4096), nil)
	resp, err := http.Post(srv.URL+"/transcribe", contentType, body)
	require.NoError(t, err)
	require.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	resp.Body.Close()
}

func TestTranscribeBinaryNotFound(t *testing.T) {
	t.Parallel()

	engine := &stubEngine{err: &whisper.BinaryNotFoundError{Tried: []string{"whisper-cli", "whisper"}}}
	srv := newTestServer(t, testConfig(), engine)

	body, contentType := multipartBody(t, "clip.wav", []byte("x"), nil)
	resp, err := http.Post(srv.URL+"/transcribe", contentType, body)
	require.NoError(t, err)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	payload := decodeBody(t, resp)
	require.Contains(t, payload["error"], "whisper binary not found")
	require.Contains(t, payload["error"], "whisper-cli")
}

func TestTranscribeExitError(t *testing.T) {
	t.Parallel()

	engine := &stubEngine{err: &whisper.ExitError{
		ExitCode:   3,
		StderrTail: "boom",
		StdoutTail: "out",
		Cmd:        "whisper-cli -m model.bin",
		UsedBin:    "whisper-cli",
		Tried:      []string{"whisper-cli", "whisper"},
	}}
	srv := newTestServer(t, testConfig(), engine)

	body, contentType := multipartBody(t, "clip.wav", []byte("x"), nil)
	resp, err := http.Post(srv.URL+"/transcribe", contentType, body)
	require.NoError(t, err)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	payload := decodeBody(t, resp)
	require.Equal(t, "whisper.cpp failed", payload["error"])
	require.EqualValues(t, 3, payload["exit_code"])
	require.Equal(t, "boom", payload["stderr_tail"])
	require.Equal(t, "out", payload["stdout_tail"])
	require.Equal(t, "whisper-cli", payload["used_bin"])
	require.Len(t, payload["tried_bins"], 2)
}

func TestTranscribeMissingOutput(t *testing.T) {
	t.Parallel()

	engine := &stubEngine{err: &whisper.MissingOutputError{Path: "/tmp/out.json", StdoutTail: "ran"}}
	srv := newTestServer(t, testConfig(), engine)

	body, contentType := multipartBody(t, "clip.wav", []byte("x"), nil)
	resp, err := http.Post(srv.URL+"/transcribe", contentType, body)
	require.NoError(t, err)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	payload := decodeBody(t, resp)
	require.Equal(t, "missing JSON output", payload["error"])
	require.Equal(t, "ran", payload["stdout_tail"])
}

func TestTranscribeSilenceGate(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.SilenceGate = true
	engine := &stubEngine{result: &whisper.Result{Text: "should not run"}}
	srv := newTestServer(t, cfg, engine)

	body, contentType := multipartBody(t, "silent.wav", makeSilentWAV(8000), nil)
	resp, err := http.Post(srv.URL+"/transcribe", contentType, body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	payload := decodeBody(t, resp)
	require.Equal(t, "[BLANK_AUDIO]", payload["text"])
	require.Empty(t, payload["segments"])
	require.Empty(t, engine.calls)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, testConfig(), &stubEngine{})

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(raw), "go_goroutines")
}

// makeSilentWAV builds a mono 16-bit PCM WAV of all-zero samples.
func makeSilentWAV(sampleCount int) []byte {
	dataSize := sampleCount * 2
	buf := make([]byte, 0, 44+dataSize)
	buf = append(buf, []byte("RIFF")...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(36+dataSize))
	buf = append(buf, []byte("WAVE")...)
	buf = append(buf, []byte("fmt ")...)
	buf = binary.LittleEndian.AppendUint32(buf, 16)
	buf = binary.LittleEndian.AppendUint16(buf, 1)
	buf = binary.LittleEndian.AppendUint16(buf, 1)
	buf = binary.LittleEndian.AppendUint32(buf, 16000)
	buf = binary.LittleEndian.AppendUint32(buf, 32000)
	buf = binary.LittleEndian.AppendUint16(buf, 2)
	buf = binary.LittleEndian.AppendUint16(buf, 16)
	buf = append(buf, []byte("data")...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(dataSize))
	buf = append(buf, make([]byte, dataSize)...)
	return buf
}
