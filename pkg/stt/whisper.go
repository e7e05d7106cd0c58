package stt

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"scribe/pkg/audioconv"
)

type Options struct {
	Language        string // e.g. "auto", "en", "uk"
	TranslateToEn   bool   // if true, translate non-EN -> EN
	Threads         int    // <=0 => NumCPU()
	InitialPrompt   string // optional prefix prompt
	MaxSegmentChars uint   // 0 = default
	BeamSize        int    // 0 = default (greedy)
	SplitOnWord     bool   // split on word boundaries
}

// Transcriber runs a whisper.cpp model in-process.
type Transcriber struct {
	model whisper.Model
	opts  Options
}

// LoadModel loads a ggml model file. opts apply to every Transcribe call;
// the language is taken per call.
func LoadModel(modelPath string, opts Options) (*Transcriber, error) {
	if modelPath == "" {
		return nil, ErrEmptyModelPath
	}
	m, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", modelPath, err)
	}
	return &Transcriber{model: m, opts: opts}, nil
}

func (t *Transcriber) Close() error {
	if t.model == nil {
		return nil
	}
	return t.model.Close()
}

// Transcribe decodes the audio file at path and runs the model over it.
func (t *Transcriber) Transcribe(ctx context.Context, path, language string) (Result, error) {
	pcm, err := audioconv.ConvertFileToPCM16k(ctx, path, audioconv.Options{})
	if err != nil {
		return Result{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return t.TranscribePCM(ctx, pcm, t.options(language))
}

func (t *Transcriber) options(language string) Options {
	opt := t.opts
	opt.Language = language
	return opt
}

// pcm16k must be mono @ 16 kHz, float32 in [-1, 1]
func (t *Transcriber) TranscribePCM(ctx context.Context, pcm16k []float32, opt Options) (Result, error) {
	if t.model == nil {
		return Result{}, ErrNilModel
	}
	if len(pcm16k) == 0 {
		return Result{}, ErrNoSamples
	}

	wctx, err := t.model.NewContext()
	if err != nil {
		return Result{}, fmt.Errorf("new context: %w", err)
	}

	if opt.Language == "" {
		opt.Language = "auto"
	}
	if err := wctx.SetLanguage(opt.Language); err != nil {
		return Result{}, fmt.Errorf("set language %q: %w", opt.Language, err)
	}
	wctx.SetTranslate(opt.TranslateToEn)

	threads := opt.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	wctx.SetThreads(uint(threads))

	if opt.SplitOnWord {
		wctx.SetSplitOnWord(true)
	}
	if opt.MaxSegmentChars > 0 {
		wctx.SetMaxSegmentLength(opt.MaxSegmentChars)
	}
	if opt.BeamSize > 0 {
		wctx.SetBeamSize(opt.BeamSize)
	}
	if opt.InitialPrompt != "" {
		wctx.SetInitialPrompt(opt.InitialPrompt)
	}

	if err := wctx.Process(pcm16k, nil, nil, nil); err != nil {
		return Result{}, fmt.Errorf("process: %w", err)
	}

	segs := []Segment{}
	var text strings.Builder
	for {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		default:
		}

		s, err := wctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Result{}, fmt.Errorf("next segment: %w", err)
		}

		seg := Segment{
			ID:    len(segs),
			Start: s.Start.Seconds(),
			End:   s.End.Seconds(),
			Text:  s.Text,
		}
		if p, ok := tokenConfidence(s.Tokens); ok {
			seg.Confidence = confidence(p)
		}
		segs = append(segs, seg)
		text.WriteString(s.Text)
	}

	lang := wctx.DetectedLanguage()
	if lang == "" {
		lang = wctx.Language()
	}

	return Result{
		Text:     text.String(),
		Segments: segs,
		Language: lang,
	}, nil
}

// tokenConfidence averages the probability of the text tokens of a segment.
// Control tokens such as [_BEG_] or [_TT_150] are skipped.
func tokenConfidence(tokens []whisper.Token) (float64, bool) {
	var (
		sum float64
		n   int
	)
	for _, tok := range tokens {
		if strings.HasPrefix(tok.Text, "[_") && strings.HasSuffix(tok.Text, "]") {
			continue
		}
		sum += float64(tok.P)
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}
