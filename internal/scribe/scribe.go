// Package scribe wires configuration, the speech engine, the progress
// spinner and the output formatter into a single transcription run.
package scribe

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	log "log/slog"
	"os"
	"path/filepath"
	"strings"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"scribe/internal/config"
	"scribe/internal/format"
	"scribe/internal/notify"
	"scribe/internal/progress"
	"scribe/internal/proxy"
	"scribe/pkg/stt"
)

// AllocatorEnv tunes the ggml CUDA allocator; it must be set before the
// model is loaded.
const AllocatorEnv = "GGML_CUDA_ENABLE_UNIFIED_MEMORY"

const prompt = "Enter the path to the audio file: "

var (
	ErrNoInput       = errors.New("no audio file path given")
	ErrMissingAPIKey = errors.New("OPENAI_API_KEY not set")
)

// LoadFunc builds the speech engine described by cfg.
type LoadFunc func(cfg config.Config) (stt.Engine, error)

type App struct {
	ConfigPath string
	In         io.Reader
	Out        io.Writer

	Load   LoadFunc
	Notify func(path string) error
	Setenv func(key, value string) error
}

// New returns an App reading from stdin and writing to stdout.
func New(configPath string) *App {
	return &App{
		ConfigPath: configPath,
		In:         os.Stdin,
		Out:        os.Stdout,
		Load:       LoadEngine,
		Notify:     notify.Play,
		Setenv:     os.Setenv,
	}
}

// Run performs one transcription and returns the written file path.
func (a *App) Run(ctx context.Context) (string, error) {
	cfg, err := config.Load(a.ConfigPath)
	if err != nil {
		return "", err
	}
	log.Debug("Loaded config", "path", a.ConfigPath, "model", cfg.Model, "language", cfg.Language, "backend", cfg.Backend)

	setenv := a.Setenv
	if setenv == nil {
		setenv = os.Setenv
	}
	if cfg.ExpandableSegments {
		if err := setenv(AllocatorEnv, "1"); err != nil {
			return "", fmt.Errorf("set %s: %w", AllocatorEnv, err)
		}
	}

	audioPath, err := a.askPath()
	if err != nil {
		return "", err
	}

	engine, err := a.Load(cfg)
	if err != nil {
		if cfg.Backend == config.BackendOpenAI {
			return "", fmt.Errorf("init %s backend: %w", cfg.Backend, err)
		}
		return "", fmt.Errorf("load model %q: %w", cfg.Model, err)
	}
	defer engine.Close()

	log.Debug("Loaded model", "model", cfg.Model)

	spin := progress.Start(a.Out)
	res, err := engine.Transcribe(ctx, audioPath, cfg.Language)
	spin.Stop()
	if err != nil {
		return "", fmt.Errorf("transcribe %s: %w", audioPath, err)
	}

	log.Debug("Transcribed", "segments", len(res.Segments), "language", res.Language)

	ext := cfg.OutputFormat.Ext()
	outPath := OutputPath(audioPath, ext)

	content, err := format.Render(format.Kind(ext), res, format.Options{
		Timestamps: cfg.OutputFormat.IncludeTimestamps,
		Confidence: cfg.OutputFormat.IncludeConfidence,
	})
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(outPath, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", outPath, err)
	}
	fmt.Fprintf(a.Out, "Text saved to file %s\n", outPath)

	if cfg.NotifySound != "" && a.Notify != nil {
		if err := a.Notify(cfg.NotifySound); err != nil {
			log.Warn("Failed to play notification", "sound", cfg.NotifySound, "err", err)
		}
	}

	return outPath, nil
}

func (a *App) askPath() (string, error) {
	fmt.Fprint(a.Out, prompt)

	line, err := bufio.NewReader(a.In).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read audio path: %w", err)
	}

	path := strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(path) == "" {
		return "", ErrNoInput
	}
	return path, nil
}

// OutputPath swaps the extension of audioPath for ext. A leading dot in the
// base name does not count as an extension.
func OutputPath(audioPath, ext string) string {
	base := filepath.Base(audioPath)
	stem := audioPath
	if e := filepath.Ext(base); e != "" && strings.TrimLeft(base, ".") != strings.TrimLeft(e, ".") {
		stem = strings.TrimSuffix(audioPath, e)
	}
	return stem + "." + ext
}

// LoadEngine opens the backend selected in cfg.
func LoadEngine(cfg config.Config) (stt.Engine, error) {
	switch cfg.Backend {
	case config.BackendOpenAI:
		return newRemote(cfg)
	default:
		path := stt.ModelPath(cfg.ModelsDir, cfg.Model)
		log.Info("Loading whisper model", "path", path)
		t, err := stt.LoadModel(path, WhisperOptions(cfg))
		if err != nil {
			return nil, err
		}
		return t, nil
	}
}

// WhisperOptions maps the whisper section of cfg onto decoder options.
func WhisperOptions(cfg config.Config) stt.Options {
	return stt.Options{
		Threads:         cfg.Threads,
		TranslateToEn:   cfg.Whisper.Translate,
		InitialPrompt:   cfg.Whisper.InitialPrompt,
		BeamSize:        cfg.Whisper.BeamSize,
		SplitOnWord:     cfg.Whisper.SplitOnWord,
		MaxSegmentChars: cfg.Whisper.MaxSegmentChars,
	}
}

func newRemote(cfg config.Config) (stt.Engine, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.OpenAI.Proxy != "" {
		httpClient, err := proxy.NewSocksClient(cfg.OpenAI.Proxy)
		if err != nil {
			return nil, err
		}
		opts = append(opts, option.WithHTTPClient(httpClient))
		log.Debug("Using socks proxy", "proxy", cfg.OpenAI.Proxy)
	}

	return stt.NewRemote(openai.NewClient(opts...), cfg.OpenAI.Model), nil
}
