package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the config document is looked up when no path is given.
const DefaultPath = "config.json"

const (
	BackendWhisper = "whisper"
	BackendOpenAI  = "openai"
)

type OutputFormat struct {
	Type              string `json:"type" yaml:"type"`
	IncludeTimestamps bool   `json:"include_timestamps" yaml:"include_timestamps"`
	IncludeConfidence bool   `json:"include_confidence" yaml:"include_confidence"`
}

// Ext returns the output file extension, falling back to txt for unknown types.
func (o OutputFormat) Ext() string {
	switch t := strings.ToLower(strings.TrimSpace(o.Type)); t {
	case "txt", "json", "srt":
		return t
	default:
		return "txt"
	}
}

type OpenAIConfig struct {
	Model string `json:"model" yaml:"model"`
	Proxy string `json:"proxy" yaml:"proxy"`
}

// WhisperConfig tunes local decoding. Zero values keep the whisper.cpp defaults.
type WhisperConfig struct {
	Translate       bool   `json:"translate" yaml:"translate"`
	InitialPrompt   string `json:"initial_prompt" yaml:"initial_prompt"`
	BeamSize        int    `json:"beam_size" yaml:"beam_size"`
	SplitOnWord     bool   `json:"split_on_word" yaml:"split_on_word"`
	MaxSegmentChars uint   `json:"max_segment_chars" yaml:"max_segment_chars"`
}

type Config struct {
	Language           string        `json:"language" yaml:"language"`
	Model              string        `json:"model" yaml:"model"`
	ExpandableSegments bool          `json:"expandable_segments" yaml:"expandable_segments"`
	OutputFormat       OutputFormat  `json:"output_format" yaml:"output_format"`
	Backend            string        `json:"backend" yaml:"backend"`
	ModelsDir          string        `json:"models_dir" yaml:"models_dir"`
	Threads            int           `json:"threads" yaml:"threads"`
	NotifySound        string        `json:"notify_sound" yaml:"notify_sound"`
	OpenAI             OpenAIConfig  `json:"openai" yaml:"openai"`
	Whisper            WhisperConfig `json:"whisper" yaml:"whisper"`
}

// Error is returned for a missing, unreadable or malformed config document.
type Error struct {
	Path string
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("config %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func Default() Config {
	return Config{
		Language:           "uk",
		Model:              "medium",
		ExpandableSegments: true,
		OutputFormat: OutputFormat{
			Type:              "txt",
			IncludeTimestamps: false,
			IncludeConfidence: false,
		},
		Backend:   BackendWhisper,
		ModelsDir: "models",
		Threads:   0,
		OpenAI: OpenAIConfig{
			Model: "whisper-1",
		},
	}
}

// Load reads the document at path over Default, so absent keys keep their
// defaults. The document itself must exist.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultPath
	}
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, &Error{Path: path, Op: "not found", Err: err}
		}
		return cfg, &Error{Path: path, Op: "read", Err: err}
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return Default(), &Error{Path: path, Op: "parse", Err: err}
	}

	applyEnvOverrides(&cfg)
	if err := Validate(cfg); err != nil {
		return cfg, &Error{Path: path, Op: "validate", Err: err}
	}
	return cfg, nil
}

func Validate(cfg Config) error {
	switch cfg.Backend {
	case BackendWhisper, BackendOpenAI:
	default:
		return fmt.Errorf("backend must be one of %s|%s, got %q", BackendWhisper, BackendOpenAI, cfg.Backend)
	}
	if cfg.Threads < 0 {
		return errors.New("threads must be >= 0")
	}
	if cfg.Whisper.BeamSize < 0 {
		return errors.New("whisper.beam_size must be >= 0")
	}
	if cfg.Backend == BackendWhisper && strings.TrimSpace(cfg.Model) == "" {
		return errors.New("model must not be empty")
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.Language, "SCRIBE_LANGUAGE")
	overrideString(&cfg.Model, "SCRIBE_MODEL")
	overrideString(&cfg.ModelsDir, "SCRIBE_MODELS_DIR")
	overrideString(&cfg.Backend, "SCRIBE_BACKEND")
	overrideInt(&cfg.Threads, "SCRIBE_THREADS")
	overrideBool(&cfg.ExpandableSegments, "SCRIBE_EXPANDABLE_SEGMENTS")
	overrideString(&cfg.OutputFormat.Type, "SCRIBE_OUTPUT_TYPE")
	overrideBool(&cfg.OutputFormat.IncludeTimestamps, "SCRIBE_INCLUDE_TIMESTAMPS")
	overrideBool(&cfg.OutputFormat.IncludeConfidence, "SCRIBE_INCLUDE_CONFIDENCE")
	overrideString(&cfg.NotifySound, "SCRIBE_NOTIFY_SOUND")
	overrideString(&cfg.OpenAI.Model, "SCRIBE_OPENAI_MODEL")
	overrideString(&cfg.OpenAI.Proxy, "SCRIBE_OPENAI_PROXY")
	overrideBool(&cfg.Whisper.Translate, "SCRIBE_WHISPER_TRANSLATE")
	overrideString(&cfg.Whisper.InitialPrompt, "SCRIBE_WHISPER_INITIAL_PROMPT")
	overrideInt(&cfg.Whisper.BeamSize, "SCRIBE_WHISPER_BEAM_SIZE")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}
