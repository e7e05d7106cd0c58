package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrEmptyModelPath = errors.New("empty model path")
	ErrNilModel       = errors.New("nil model")
	ErrNoSamples      = errors.New("no audio samples provided")
)

// Segment is a timed span of the transcript. Start and End are seconds.
type Segment struct {
	ID         int      `json:"id"`
	Start      float64  `json:"start"`
	End        float64  `json:"end"`
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Result is what a backend returns. A nil Segments means the backend
// produced no segment list at all; an empty one means it heard nothing.
type Result struct {
	Text     string    `json:"text"`
	Segments []Segment `json:"segments"`
	Language string    `json:"language,omitempty"`
}

// MarshalJSON leaves out the segments key only for a nil list. HTML
// characters are written as is.
func (r Result) MarshalJSON() ([]byte, error) {
	out := struct {
		Text     string     `json:"text"`
		Segments *[]Segment `json:"segments,omitempty"`
		Language string     `json:"language,omitempty"`
	}{Text: r.Text, Language: r.Language}
	if r.Segments != nil {
		out.Segments = &r.Segments
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(out); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Engine is a loaded speech recognizer.
type Engine interface {
	Transcribe(ctx context.Context, path, language string) (Result, error)
	Close() error
}

// ModelPath maps a model name such as "medium" to a ggml file under dir.
// Names that already point at a model file are returned unchanged.
func ModelPath(dir, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	ext := strings.ToLower(filepath.Ext(name))
	if ext == ".bin" || ext == ".gguf" {
		return name
	}
	if info, err := os.Stat(name); err == nil && !info.IsDir() {
		return name
	}
	return filepath.Join(dir, "ggml-"+name+".bin")
}

func confidence(v float64) *float64 {
	return &v
}
