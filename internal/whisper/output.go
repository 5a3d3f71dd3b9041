package whisper

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// outputJSON covers both shapes whisper.cpp has written over time: the
// flat {language, duration, text, segments} form and the native
// {result, transcription} form with millisecond offsets.
type outputJSON struct {
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Text     string  `json:"text"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`

	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

// loadOutputs reads the files the binary wrote next to outPrefix: the
// mandatory JSON transcript, the SRT rendering when present, and raw
// word-timestamp JSON when it was requested.
func loadOutputs(outPrefix string, wantWordTimestamps bool) (*Result, error) {
	jsonPath := outPrefix + ".json"
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &MissingOutputError{Path: jsonPath}
		}
		return nil, fmt.Errorf("read transcript JSON: %w", err)
	}

	result, err := parseTranscript(data)
	if err != nil {
		return nil, err
	}

	if srt, err := os.ReadFile(outPrefix + ".srt"); err == nil {
		result.SRT = string(srt)
	}

	if wantWordTimestamps {
		if wts, err := os.ReadFile(outPrefix + ".wts.json"); err == nil && json.Valid(wts) {
			result.WordTimestamps = json.RawMessage(wts)
		}
	}

	return result, nil
}

func parseTranscript(data []byte) (*Result, error) {
	var out outputJSON
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse transcript JSON: %w", err)
	}

	result := &Result{
		Language: out.Language,
		Duration: out.Duration,
		Text:     strings.TrimSpace(out.Text),
	}
	if result.Language == "" {
		result.Language = out.Result.Language
	}

	for _, seg := range out.Segments {
		result.Segments = append(result.Segments, Segment{
			Start: seg.Start,
			End:   seg.End,
			Text:  strings.TrimSpace(seg.Text),
		})
	}
	for _, seg := range out.Transcription {
		result.Segments = append(result.Segments, Segment{
			Start: float64(seg.Offsets.From) / 1000,
			End:   float64(seg.Offsets.To) / 1000,
			Text:  strings.TrimSpace(seg.Text),
		})
	}

	if result.Text == "" && len(out.Transcription) > 0 {
		parts := make([]string, 0, len(out.Transcription))
		for _, seg := range out.Transcription {
			if trimmed := strings.TrimSpace(seg.Text); trimmed != "" {
				parts = append(parts, trimmed)
			}
		}
		result.Text = strings.Join(parts, " ")
	}

	if result.Duration == 0 && len(result.Segments) > 0 {
		result.Duration = result.Segments[len(result.Segments)-1].End
	}

	return result, nil
}
