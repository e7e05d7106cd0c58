package scribe

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"scribe/internal/config"
	"scribe/pkg/stt"
)

// fakeEngine returns a canned result and records how it was called.
type fakeEngine struct {
	res      stt.Result
	err      error
	path     string
	language string
	closed   bool
}

func (f *fakeEngine) Transcribe(_ context.Context, path, language string) (stt.Result, error) {
	f.path = path
	f.language = language
	return f.res, f.err
}

func (f *fakeEngine) Close() error {
	f.closed = true
	return nil
}

// newTestApp builds an App around a config document and a fake engine.
func newTestApp(t *testing.T, configJSON, input string, engine *fakeEngine) (*App, *bytes.Buffer, map[string]string) {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.json")
	if configJSON != "" {
		if err := os.WriteFile(cfgPath, []byte(configJSON), 0o644); err != nil {
			t.Fatalf("write config: %v", err)
		}
	}

	out := &bytes.Buffer{}
	env := map[string]string{}
	app := &App{
		ConfigPath: cfgPath,
		In:         strings.NewReader(input),
		Out:        out,
		Load: func(config.Config) (stt.Engine, error) {
			return engine, nil
		},
		Setenv: func(k, v string) error {
			env[k] = v
			return nil
		},
	}
	return app, out, env
}

func mustReadFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

// TestRunWritesSRT covers the srt scenario end to end.
func TestRunWritesSRT(t *testing.T) {
	audio := filepath.Join(t.TempDir(), "talk.mp3")
	engine := &fakeEngine{res: stt.Result{
		Segments: []stt.Segment{{Start: 0, End: 1.2, Text: "hi"}},
	}}
	app, out, env := newTestApp(t, `{"output_format": {"type": "srt"}}`, audio+"\n", engine)

	got, err := app.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := strings.TrimSuffix(audio, ".mp3") + ".srt"
	if got != want {
		t.Fatalf("output path = %q, want %q", got, want)
	}
	if content := mustReadFile(t, got); content != "1\n00:00:00,000 --> 00:00:01,200\nhi\n\n" {
		t.Fatalf("content = %q", content)
	}
	if engine.path != audio || engine.language != "uk" {
		t.Fatalf("engine called with %q, %q", engine.path, engine.language)
	}
	if !engine.closed {
		t.Fatal("expected engine to be closed")
	}
	if env[AllocatorEnv] != "1" {
		t.Fatalf("expected %s to be set, env = %v", AllocatorEnv, env)
	}

	printed := out.String()
	if !strings.HasPrefix(printed, prompt) {
		t.Fatalf("missing prompt: %q", printed)
	}
	if !strings.Contains(printed, "Transcription completed!") {
		t.Fatalf("missing spinner completion: %q", printed)
	}
	if !strings.HasSuffix(printed, "Text saved to file "+want+"\n") {
		t.Fatalf("missing confirmation: %q", printed)
	}
}

func TestRunTextDefaults(t *testing.T) {
	audio := filepath.Join(t.TempDir(), "memo.wav")
	engine := &fakeEngine{res: stt.Result{
		Text:     " hello there",
		Segments: []stt.Segment{{Start: 0, End: 2, Text: " hello there"}},
	}}
	app, _, env := newTestApp(t, `{"language": "en", "expandable_segments": false}`, audio+"\r\n", engine)

	got, err := app.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if filepath.Ext(got) != ".txt" {
		t.Fatalf("output path = %q, want .txt", got)
	}
	if content := mustReadFile(t, got); content != " hello there" {
		t.Fatalf("content = %q", content)
	}
	if engine.language != "en" {
		t.Fatalf("language = %q, want en", engine.language)
	}
	if _, ok := env[AllocatorEnv]; ok {
		t.Fatal("allocator variable should not be set")
	}
}

// TestRunUnknownTypeFallsBackToText checks "xml" behaves like txt.
func TestRunUnknownTypeFallsBackToText(t *testing.T) {
	audio := filepath.Join(t.TempDir(), "memo.ogg")
	engine := &fakeEngine{res: stt.Result{
		Text:     "x",
		Segments: []stt.Segment{{Start: 1, End: 2, Text: "x"}},
	}}
	app, _, _ := newTestApp(t, `{"output_format": {"type": "xml", "include_timestamps": true}}`, audio, engine)

	got, err := app.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !strings.HasSuffix(got, "memo.txt") {
		t.Fatalf("output path = %q", got)
	}
	if content := mustReadFile(t, got); content != "[00:00:01 - 00:00:02]\nx\n" {
		t.Fatalf("content = %q", content)
	}
}

func TestRunJSONWithoutTimestamps(t *testing.T) {
	audio := filepath.Join(t.TempDir(), "memo.m4a")
	engine := &fakeEngine{res: stt.Result{
		Text:     "текст",
		Segments: []stt.Segment{{Start: 0, End: 1, Text: "текст"}},
	}}
	app, _, _ := newTestApp(t, `{"output_format": {"type": "JSON"}}`, audio+"\n", engine)

	got, err := app.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if content := mustReadFile(t, got); content != "{\n  \"text\": \"текст\"\n}" {
		t.Fatalf("content = %q", content)
	}
}

// TestRunMissingConfigFailsBeforeLoading checks no model is loaded without config.
func TestRunMissingConfigFailsBeforeLoading(t *testing.T) {
	app, out, _ := newTestApp(t, "", "x.wav\n", &fakeEngine{})
	loaded := false
	app.Load = func(config.Config) (stt.Engine, error) {
		loaded = true
		return nil, nil
	}

	_, err := app.Run(context.Background())
	var cErr *config.Error
	if !errors.As(err, &cErr) {
		t.Fatalf("err = %v, want *config.Error", err)
	}
	if loaded {
		t.Fatal("model should not be loaded")
	}
	if out.Len() != 0 {
		t.Fatalf("nothing should be printed, got %q", out.String())
	}
}

func TestRunEmptyInput(t *testing.T) {
	app, _, _ := newTestApp(t, `{}`, "\n", &fakeEngine{})
	if _, err := app.Run(context.Background()); !errors.Is(err, ErrNoInput) {
		t.Fatalf("err = %v, want ErrNoInput", err)
	}
}

func TestRunTranscriptionFailure(t *testing.T) {
	dir := t.TempDir()
	audio := filepath.Join(dir, "broken.wav")
	boom := errors.New("decode failed")
	engine := &fakeEngine{err: boom}
	app, out, _ := newTestApp(t, `{}`, audio+"\n", engine)

	_, err := app.Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if !strings.Contains(out.String(), "Transcription completed!") {
		t.Fatal("spinner should be stopped before returning")
	}
	if _, statErr := os.Stat(filepath.Join(dir, "broken.txt")); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatalf("no output file expected, stat err = %v", statErr)
	}
}

func TestRunLoadFailure(t *testing.T) {
	app, _, _ := newTestApp(t, `{}`, "a.wav\n", nil)
	boom := errors.New("no such model")
	app.Load = func(config.Config) (stt.Engine, error) { return nil, boom }

	if _, err := app.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}

func TestRunPlaysNotification(t *testing.T) {
	audio := filepath.Join(t.TempDir(), "a.wav")
	app, _, _ := newTestApp(t, `{"notify_sound": "done.mp3"}`, audio+"\n", &fakeEngine{res: stt.Result{Text: "ok"}})

	var played string
	app.Notify = func(path string) error {
		played = path
		return errors.New("no audio device")
	}
	if _, err := app.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if played != "done.mp3" {
		t.Fatalf("played = %q, want done.mp3", played)
	}
}

func TestOutputPath(t *testing.T) {
	cases := []struct {
		in, ext, want string
	}{
		{"talk.mp3", "srt", "talk.srt"},
		{"/data/rec.2024.wav", "json", "/data/rec.2024.json"},
		{"/data/noext", "txt", "/data/noext.txt"},
		{"/data/.hidden", "txt", "/data/.hidden.txt"},
		{"/data/.hidden.wav", "txt", "/data/.hidden.txt"},
		{"/data.d/clip", "srt", "/data.d/clip.srt"},
	}
	for _, tc := range cases {
		if got := OutputPath(tc.in, tc.ext); got != tc.want {
			t.Fatalf("OutputPath(%q, %q) = %q, want %q", tc.in, tc.ext, got, tc.want)
		}
	}
}

func TestLoadEngineOpenAIRequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	cfg := config.Default()
	cfg.Backend = config.BackendOpenAI
	if _, err := LoadEngine(cfg); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("err = %v, want ErrMissingAPIKey", err)
	}
}

func TestLoadEngineOpenAI(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	cfg := config.Default()
	cfg.Backend = config.BackendOpenAI
	cfg.OpenAI.Proxy = "127.0.0.1:1080"

	engine, err := LoadEngine(cfg)
	if err != nil {
		t.Fatalf("LoadEngine() error = %v", err)
	}
	if _, ok := engine.(*stt.Remote); !ok {
		t.Fatalf("engine = %T, want *stt.Remote", engine)
	}
}

func TestWhisperOptions(t *testing.T) {
	cfg := config.Default()
	cfg.Threads = 6
	cfg.Whisper = config.WhisperConfig{
		Translate:       true,
		InitialPrompt:   "glossary",
		BeamSize:        5,
		SplitOnWord:     true,
		MaxSegmentChars: 40,
	}
	want := stt.Options{
		Threads:         6,
		TranslateToEn:   true,
		InitialPrompt:   "glossary",
		BeamSize:        5,
		SplitOnWord:     true,
		MaxSegmentChars: 40,
	}
	if got := WhisperOptions(cfg); got != want {
		t.Fatalf("WhisperOptions = %+v, want %+v", got, want)
	}
}

// TestRunLoadFailureNamesBackend checks remote setup errors are not reported as model loads.
func TestRunLoadFailureNamesBackend(t *testing.T) {
	app, _, _ := newTestApp(t, `{"backend": "openai"}`, "a.wav\n", nil)
	app.Load = func(config.Config) (stt.Engine, error) { return nil, ErrMissingAPIKey }

	_, err := app.Run(context.Background())
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("err = %v, want ErrMissingAPIKey", err)
	}
	if msg := err.Error(); !strings.Contains(msg, "openai") || strings.Contains(msg, "medium") {
		t.Fatalf("err = %q, want backend name without model", msg)
	}
}
