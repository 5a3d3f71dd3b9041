package whisper

import (
	"fmt"
	"strings"
)

// BinaryNotFoundError reports that none of the candidate executables
// could be located.
type BinaryNotFoundError struct {
	Tried []string
}

func (e *BinaryNotFoundError) Error() string {
	return fmt.Sprintf("whisper binary not found (tried [%s])", strings.Join(e.Tried, ", "))
}

// ExitError reports a candidate that ran but exited non-zero.
type ExitError struct {
	ExitCode   int
	StdoutTail string
	StderrTail string
	Cmd        string
	UsedBin    string
	Tried      []string
	Hint       string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("whisper.cpp failed: %s exited with code %d", e.UsedBin, e.ExitCode)
	if e.Hint != "" {
		msg += ": " + e.Hint
	}
	return msg
}

// MissingOutputError reports a zero exit that nevertheless left no JSON
// output file behind.
type MissingOutputError struct {
	Path       string
	StdoutTail string
	StderrTail string
}

func (e *MissingOutputError) Error() string {
	return fmt.Sprintf("missing JSON output at %s", e.Path)
}

const outputTailLimit = 2000

func tail(s string) string {
	if len(s) <= outputTailLimit {
		return s
	}
	return s[len(s)-outputTailLimit:]
}
