package whisper

import (
	"context"
	"encoding/json"
)

// Request describes one transcription run against a model on disk.
type Request struct {
	AudioPath      string
	ModelPath      string
	Language       string
	Translate      bool
	WordTimestamps bool
	Threads        int
	BeamSize       int
}

// Segment is one timed span of the transcript, in seconds.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Result holds everything a transcription run produced: the parsed JSON
// output, the SRT rendering when present, and raw word-timestamp data
// when it was requested.
type Result struct {
	Language       string
	Duration       float64
	Text           string
	Segments       []Segment
	SRT            string
	WordTimestamps json.RawMessage
	UsedBin        string
}

type Engine interface {
	Transcribe(ctx context.Context, req Request) (*Result, error)
}
