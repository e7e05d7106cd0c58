package stt

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	openai "github.com/openai/openai-go/v3"
	"github.com/tidwall/gjson"
)

// Remote transcribes through the OpenAI audio API.
type Remote struct {
	client openai.Client
	model  string
}

func NewRemote(client openai.Client, model string) *Remote {
	if model == "" {
		model = string(openai.AudioModelWhisper1)
	}
	return &Remote{client: client, model: model}
}

func (r *Remote) Close() error { return nil }

func (r *Remote) Transcribe(ctx context.Context, path, language string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, err
	}
	defer f.Close()

	params := openai.AudioTranscriptionNewParams{
		File:           f,
		Model:          openai.AudioModel(r.model),
		ResponseFormat: openai.AudioResponseFormatVerboseJSON,
	}
	if lang := strings.TrimSpace(language); lang != "" && !strings.EqualFold(lang, "auto") {
		params.Language = openai.String(lang)
	}

	resp, err := r.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return Result{}, fmt.Errorf("audio transcription: %w", err)
	}

	return parseVerboseJSON(resp.RawJSON())
}

// parseVerboseJSON reads a verbose_json transcription body. Segment
// confidence is exp(avg_logprob).
func parseVerboseJSON(raw string) (Result, error) {
	if !gjson.Valid(raw) {
		return Result{}, errors.New("invalid transcription response")
	}
	doc := gjson.Parse(raw)

	res := Result{
		Text:     doc.Get("text").String(),
		Language: doc.Get("language").String(),
	}

	segs := doc.Get("segments")
	if !segs.Exists() {
		return res, nil
	}
	res.Segments = []Segment{}
	segs.ForEach(func(_, s gjson.Result) bool {
		seg := Segment{
			ID:    int(s.Get("id").Int()),
			Start: s.Get("start").Float(),
			End:   s.Get("end").Float(),
			Text:  s.Get("text").String(),
		}
		if lp := s.Get("avg_logprob"); lp.Exists() {
			seg.Confidence = confidence(math.Exp(lp.Float()))
		}
		res.Segments = append(res.Segments, seg)
		return true
	})
	return res, nil
}
