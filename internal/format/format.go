// Package format renders transcription results as plain text, JSON or SRT.
package format

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"scribe/pkg/stt"
)

type Kind string

const (
	KindText Kind = "txt"
	KindJSON Kind = "json"
	KindSRT  Kind = "srt"
)

type Options struct {
	Timestamps bool
	Confidence bool
}

// Render dispatches on kind; unknown kinds render as text.
func Render(kind Kind, res stt.Result, opt Options) (string, error) {
	switch kind {
	case KindJSON:
		return JSON(res, opt)
	case KindSRT:
		return SRT(res), nil
	default:
		return Text(res, opt), nil
	}
}

// Text returns the raw transcript unless timestamps are requested and the
// result carries segments.
func Text(res stt.Result, opt Options) string {
	if !opt.Timestamps || res.Segments == nil {
		return res.Text
	}

	blocks := make([]string, 0, len(res.Segments))
	for _, seg := range res.Segments {
		header := fmt.Sprintf("[%s - %s]", Clock(seg.Start), Clock(seg.End))
		if opt.Confidence {
			var c float64
			if seg.Confidence != nil {
				c = *seg.Confidence
			}
			header += fmt.Sprintf(" (confidence: %.2f)", c)
		}
		blocks = append(blocks, header+"\n"+seg.Text+"\n")
	}
	return strings.Join(blocks, "\n")
}

type textOnly struct {
	Text string `json:"text"`
}

// JSON encodes the result with two-space indentation. Without timestamps
// only the text field is kept.
func JSON(res stt.Result, opt Options) (string, error) {
	var v any = res
	if !opt.Timestamps {
		v = textOnly{Text: res.Text}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("encode json: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// SRT emits one index/time/text/blank block per segment.
func SRT(res stt.Result) string {
	var b strings.Builder
	for i, seg := range res.Segments {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", i+1, SRTClock(seg.Start), SRTClock(seg.End), seg.Text)
	}
	return b.String()
}

// Clock formats seconds as HH:MM:SS, dropping the fraction. Hours wrap at
// 24 like a wall clock starting at midnight.
func Clock(sec float64) string {
	h, m, s := hms(int64(clean(sec)))
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// SRTClock formats seconds as HH:MM:SS,mmm.
func SRTClock(sec float64) string {
	// Round to microseconds first so 0.57 does not become 569 ms.
	us := int64(math.Round(clean(sec) * 1e6))
	h, m, s := hms(us / 1e6)
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, (us%1e6)/1e3)
}

func clean(sec float64) float64 {
	if sec < 0 || math.IsNaN(sec) || math.IsInf(sec, 0) {
		return 0
	}
	return sec
}

func hms(total int64) (h, m, s int64) {
	return (total / 3600) % 24, (total / 60) % 60, total % 60
}
