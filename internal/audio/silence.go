// Package audio analyzes uploaded WAV files so near-silent uploads can
// skip the transcription subprocess entirely.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

var (
	ErrUnsupportedWAV = errors.New("unsupported wav format")
	ErrInvalidWAV     = errors.New("invalid wav file")
)

type Metrics struct {
	RMSdBFS  float64
	PeakdBFS float64
	Samples  int64
}

// Silent reports whether the analyzed audio falls below the RMS
// threshold; the peak gets 6 dB of headroom so a single loud click does
// not defeat the gate.
func (m Metrics) Silent(thresholdDBFS float64) bool {
	if m.Samples == 0 {
		return true
	}
	if math.IsInf(m.RMSdBFS, -1) && math.IsInf(m.PeakdBFS, -1) {
		return true
	}
	return m.RMSdBFS <= thresholdDBFS && m.PeakdBFS <= thresholdDBFS+6
}

// Analyze computes loudness metrics for a WAV file on disk. PCM
// (8/16/24/32 bit) and IEEE float (32/64 bit) sample formats are
// supported.
func Analyze(path string) (Metrics, error) {
	f, err := os.Open(path)
	if err != nil {
		return Metrics{}, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	return analyze(f)
}

func analyze(f io.ReadSeeker) (Metrics, error) {
	header := make([]byte, 12)
	if _, err := io.ReadFull(f, header); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Metrics{}, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
		}
		return Metrics{}, fmt.Errorf("read wav header: %w", err)
	}
	if string(header[:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return Metrics{}, ErrInvalidWAV
	}

	var (
		format     uint16
		sampleBits uint16
		dataOffset int64
		dataSize   uint32
		hasFmt     bool
		hasData    bool
	)

	for {
		chunkHeader := make([]byte, 8)
		if _, err := io.ReadFull(f, chunkHeader); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return Metrics{}, fmt.Errorf("read wav chunk header: %w", err)
		}

		chunkID := string(chunkHeader[:4])
		chunkSize := binary.LittleEndian.Uint32(chunkHeader[4:8])

		chunkStart, err := f.Seek(0, io.SeekCurrent)
		if err != nil {
			return Metrics{}, fmt.Errorf("seek wav chunk start: %w", err)
		}

		// Chunks are word-aligned.
		skip := int64(chunkSize)
		if chunkSize%2 != 0 {
			skip++
		}

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return Metrics{}, ErrInvalidWAV
			}
			buf := make([]byte, 16)
			if _, err := io.ReadFull(f, buf); err != nil {
				return Metrics{}, fmt.Errorf("read wav fmt chunk: %w", err)
			}
			format = binary.LittleEndian.Uint16(buf[0:2])
			sampleBits = binary.LittleEndian.Uint16(buf[14:16])
			hasFmt = true
			if _, err := f.Seek(chunkStart+skip, io.SeekStart); err != nil {
				return Metrics{}, fmt.Errorf("seek past wav fmt chunk: %w", err)
			}
		case "data":
			dataOffset = chunkStart
			dataSize = chunkSize
			hasData = true
			if _, err := f.Seek(skip, io.SeekCurrent); err != nil {
				return Metrics{}, fmt.Errorf("seek past wav data chunk: %w", err)
			}
		default:
			if _, err := f.Seek(skip, io.SeekCurrent); err != nil {
				return Metrics{}, fmt.Errorf("seek wav chunk %s: %w", chunkID, err)
			}
		}
	}

	if !hasFmt || !hasData {
		return Metrics{}, ErrInvalidWAV
	}

	if _, err := f.Seek(dataOffset, io.SeekStart); err != nil {
		return Metrics{}, fmt.Errorf("seek wav data offset: %w", err)
	}

	data := make([]byte, dataSize)
	if _, err := io.ReadFull(f, data); err != nil {
		return Metrics{}, fmt.Errorf("read wav data: %w", err)
	}

	return measure(data, format, sampleBits)
}

func measure(data []byte, format, sampleBits uint16) (Metrics, error) {
	step := int(sampleBits / 8)
	if step <= 0 {
		return Metrics{}, ErrUnsupportedWAV
	}

	var peak, sumSquares float64
	var samples int64

	for i := 0; i+step <= len(data); i += step {
		value, err := decodeSample(data[i:i+step], format, sampleBits)
		if err != nil {
			return Metrics{}, err
		}

		if abs := math.Abs(value); abs > peak {
			peak = abs
		}
		sumSquares += value * value
		samples++
	}

	if samples == 0 {
		return Metrics{RMSdBFS: math.Inf(-1), PeakdBFS: math.Inf(-1)}, nil
	}

	rms := math.Sqrt(sumSquares / float64(samples))
	return Metrics{
		RMSdBFS:  toDBFS(rms),
		PeakdBFS: toDBFS(peak),
		Samples:  samples,
	}, nil
}

func decodeSample(sample []byte, format, sampleBits uint16) (float64, error) {
	const (
		formatPCM   = 1
		formatFloat = 3
	)

	switch format {
	case formatFloat:
		switch sampleBits {
		case 32:
			return float64(math.Float32frombits(binary.LittleEndian.Uint32(sample))), nil
		case 64:
			return math.Float64frombits(binary.LittleEndian.Uint64(sample)), nil
		}
	case formatPCM:
		switch sampleBits {
		case 8:
			return (float64(sample[0]) - 128.0) / 128.0, nil
		case 16:
			return float64(int16(binary.LittleEndian.Uint16(sample))) / 32768.0, nil
		case 24:
			v := int32(sample[0]) | int32(sample[1])<<8 | int32(sample[2])<<16
			if v&0x800000 != 0 {
				v |= ^0xFFFFFF
			}
			return float64(v) / 8388608.0, nil
		case 32:
			return float64(int32(binary.LittleEndian.Uint32(sample))) / 2147483648.0, nil
		}
	}

	return 0, ErrUnsupportedWAV
}

func toDBFS(amplitude float64) float64 {
	if amplitude <= 0 {
		return math.Inf(-1)
	}
	return 20.0 * math.Log10(amplitude)
}
