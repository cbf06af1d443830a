package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	AnswerProviderOpenAI = "openai"
	AnswerProviderGemini = "gemini"
)

// Config stores runtime configuration for the voice loop.
type Config struct {
	Deepgram  DeepgramConfig
	Audio     AudioConfig
	Rules     RulesConfig
	Session   SessionConfig
	Timing    TimingConfig
	Answer    AnswerConfig
	Speech    SpeechConfig
	Retrieval RetrievalConfig
	Loop      LoopConfig

	// File is the YAML file that was merged, if any.
	File string
}

type DeepgramConfig struct {
	APIKey         string
	APIBaseURL     string
	Model          string
	Language       string
	SmartFormat    bool
	InterimResults bool
	EndpointingMS  int
	UtteranceEndMS int
}

type AudioConfig struct {
	RecorderCommand string
	PlayerCommand   string
	InputFormat     string
	InputDevice     string
	SampleRate      int
	Channels        int
}

type RulesConfig struct {
	Path           string
	IterationLimit int
	Inline         []string
}

type SessionConfig struct {
	ChunkSize      int
	StreamingGrace time.Duration
	Language       string
}

// TimingConfig is the single timing policy shared by capture, dispatch and
// playback.
type TimingConfig struct {
	Silence           time.Duration
	UnreliableSilence time.Duration
	FinalSilence      time.Duration
	Fallback          time.Duration
	Settle            time.Duration
	PlaybackFailsafe  time.Duration
	DispatchTimeout   time.Duration
	RestartBase       time.Duration
	RestartCap        time.Duration
	RestartWindow     time.Duration
	MaxRapidRestarts  int
}

type AnswerConfig struct {
	Provider string
	OpenAI   ModelConfig
	Gemini   ModelConfig
}

type ModelConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

type SpeechConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Voice   string
	Format  string
}

type RetrievalConfig struct {
	BaseURL         string
	Token           string
	ProjectID       string
	DocumentID      string
	Scope           string
	QuestionTopK    int
	SearchTopK      int
	ContextPassages int
}

type LoopConfig struct {
	AutoResume      bool
	WakeWordEnabled bool
	WakePhrases     []string
	MaxRearms       int
}

// Load resolves configuration from .env files, the optional YAML file,
// environment variables and defaults. Environment variables win over the
// file.
func Load() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}
	configDir := filepath.Join(home, ".config", "scopevoice")

	loadEnvFiles(".env", ".env.local", filepath.Join(configDir, ".env"))

	path := envOrDefault("SCOPEVOICE_CONFIG", filepath.Join(configDir, "config.yaml"))
	file, err := readFile(path)
	if err != nil {
		return Config{}, err
	}

	rulesPath := firstNonEmpty(os.Getenv("SCOPEVOICE_RULES_FILE"), file.Rules.Path)
	if rulesPath == "" {
		rulesPath = firstExisting(filepath.Join(configDir, "utterance.rules"), filepath.Join(configDir, "substitutions.rules"))
	}

	cfg := Config{
		Deepgram: DeepgramConfig{
			APIKey:         firstNonEmpty(os.Getenv("DEEPGRAM_API_KEY"), file.Deepgram.APIKey),
			APIBaseURL:     envOrDefault("DEEPGRAM_API_BASE", firstNonEmpty(file.Deepgram.APIBase, "https://api.deepgram.com/v1")),
			Model:          envOrDefault("DEEPGRAM_MODEL", firstNonEmpty(file.Deepgram.Model, "nova-2")),
			Language:       firstNonEmpty(os.Getenv("DEEPGRAM_LANGUAGE"), file.Deepgram.Language),
			SmartFormat:    envOrDefaultBool("DEEPGRAM_SMART_FORMAT", boolOr(file.Deepgram.SmartFormat, true)),
			InterimResults: envOrDefaultBool("DEEPGRAM_INTERIM_RESULTS", boolOr(file.Deepgram.InterimResults, true)),
			EndpointingMS:  envOrDefaultInt("DEEPGRAM_ENDPOINTING_MS", intOr(file.Deepgram.EndpointingMS, 300)),
			UtteranceEndMS: envOrDefaultInt("DEEPGRAM_UTTERANCE_END_MS", intOr(file.Deepgram.UtteranceEndMS, 1000)),
		},
		Audio: AudioConfig{
			RecorderCommand: envOrDefault("SCOPEVOICE_FFMPEG_COMMAND", firstNonEmpty(file.Audio.RecorderCommand, "ffmpeg")),
			PlayerCommand:   envOrDefault("SCOPEVOICE_FFPLAY_COMMAND", firstNonEmpty(file.Audio.PlayerCommand, "ffplay")),
			InputFormat:     envOrDefault("SCOPEVOICE_AUDIO_INPUT_FORMAT", firstNonEmpty(file.Audio.InputFormat, "pulse")),
			InputDevice: firstNonEmpty(
				os.Getenv("SCOPEVOICE_AUDIO_INPUT_DEVICE"),
				os.Getenv("DEEPGRAM_PULSE_SOURCE"),
				file.Audio.InputDevice,
				"default",
			),
			SampleRate: envOrDefaultInt("SCOPEVOICE_SAMPLE_RATE", intOr(file.Audio.SampleRate, 16000)),
			Channels:   envOrDefaultInt("SCOPEVOICE_CHANNELS", intOr(file.Audio.Channels, 1)),
		},
		Rules: RulesConfig{
			Path:           rulesPath,
			IterationLimit: envOrDefaultInt("SCOPEVOICE_RULE_ITERATION_LIMIT", intOr(file.Rules.IterationLimit, 30)),
			Inline:         file.Rules.Inline,
		},
		Session: SessionConfig{
			ChunkSize:      envOrDefaultInt("SCOPEVOICE_AUDIO_CHUNK_SIZE", intOr(file.Session.ChunkSize, 4096)),
			StreamingGrace: envOrDefaultMillis("SCOPEVOICE_STREAMING_GRACE_MS", millisOr(file.Session.StreamingGraceMS, 300*time.Millisecond)),
			Language:       firstNonEmpty(os.Getenv("SCOPEVOICE_LANGUAGE"), file.Session.Language),
		},
		Timing: TimingConfig{
			Silence:           envOrDefaultMillis("SCOPEVOICE_SILENCE_MS", millisOr(file.Timing.SilenceMS, 1500*time.Millisecond)),
			UnreliableSilence: envOrDefaultMillis("SCOPEVOICE_UNRELIABLE_SILENCE_MS", millisOr(file.Timing.UnreliableSilenceMS, 2500*time.Millisecond)),
			FinalSilence:      envOrDefaultMillis("SCOPEVOICE_FINAL_SILENCE_MS", millisOr(file.Timing.FinalSilenceMS, 800*time.Millisecond)),
			Fallback:          envOrDefaultMillis("SCOPEVOICE_FALLBACK_MS", millisOr(file.Timing.FallbackMS, 3500*time.Millisecond)),
			Settle:            envOrDefaultMillis("SCOPEVOICE_SETTLE_MS", millisOr(file.Timing.SettleMS, 1500*time.Millisecond)),
			PlaybackFailsafe:  envOrDefaultMillis("SCOPEVOICE_PLAYBACK_FAILSAFE_MS", millisOr(file.Timing.PlaybackFailsafeMS, 45*time.Second)),
			DispatchTimeout:   envOrDefaultMillis("SCOPEVOICE_DISPATCH_TIMEOUT_MS", millisOr(file.Timing.DispatchTimeoutMS, 30*time.Second)),
			RestartBase:       envOrDefaultMillis("SCOPEVOICE_RESTART_BASE_MS", millisOr(file.Timing.RestartBaseMS, 200*time.Millisecond)),
			RestartCap:        envOrDefaultMillis("SCOPEVOICE_RESTART_CAP_MS", millisOr(file.Timing.RestartCapMS, 3*time.Second)),
			RestartWindow:     envOrDefaultMillis("SCOPEVOICE_RESTART_WINDOW_MS", millisOr(file.Timing.RestartWindowMS, time.Second)),
			MaxRapidRestarts:  envOrDefaultInt("SCOPEVOICE_MAX_RAPID_RESTARTS", intOr(file.Timing.MaxRapidRestarts, 4)),
		},
		Answer: AnswerConfig{
			Provider: strings.ToLower(envOrDefault("SCOPEVOICE_ANSWER_PROVIDER", firstNonEmpty(file.Answer.Provider, AnswerProviderOpenAI))),
			OpenAI: ModelConfig{
				APIKey:    firstNonEmpty(os.Getenv("OPENAI_API_KEY"), file.Answer.OpenAI.APIKey),
				BaseURL:   firstNonEmpty(os.Getenv("OPENAI_BASE_URL"), file.Answer.OpenAI.BaseURL),
				Model:     envOrDefault("SCOPEVOICE_OPENAI_MODEL", firstNonEmpty(file.Answer.OpenAI.Model, "gpt-4o-mini")),
				MaxTokens: envOrDefaultInt("SCOPEVOICE_OPENAI_MAX_TOKENS", intOr(file.Answer.OpenAI.MaxTokens, 400)),
			},
			Gemini: ModelConfig{
				APIKey:    firstNonEmpty(os.Getenv("GEMINI_API_KEY"), os.Getenv("GOOGLE_API_KEY"), file.Answer.Gemini.APIKey),
				BaseURL:   firstNonEmpty(os.Getenv("GEMINI_BASE_URL"), file.Answer.Gemini.BaseURL),
				Model:     envOrDefault("SCOPEVOICE_GEMINI_MODEL", firstNonEmpty(file.Answer.Gemini.Model, "gemini-2.0-flash")),
				MaxTokens: envOrDefaultInt("SCOPEVOICE_GEMINI_MAX_TOKENS", intOr(file.Answer.Gemini.MaxTokens, 400)),
			},
		},
		Speech: SpeechConfig{
			APIKey:  firstNonEmpty(os.Getenv("SCOPEVOICE_TTS_API_KEY"), file.Speech.APIKey, os.Getenv("OPENAI_API_KEY"), file.Answer.OpenAI.APIKey),
			BaseURL: firstNonEmpty(os.Getenv("SCOPEVOICE_TTS_BASE_URL"), file.Speech.BaseURL, os.Getenv("OPENAI_BASE_URL")),
			Model:   envOrDefault("SCOPEVOICE_TTS_MODEL", firstNonEmpty(file.Speech.Model, "tts-1")),
			Voice:   envOrDefault("SCOPEVOICE_TTS_VOICE", firstNonEmpty(file.Speech.Voice, "alloy")),
			Format:  envOrDefault("SCOPEVOICE_TTS_FORMAT", firstNonEmpty(file.Speech.Format, "mp3")),
		},
		Retrieval: RetrievalConfig{
			BaseURL:         firstNonEmpty(os.Getenv("SCOPEVOICE_API_URL"), file.Retrieval.BaseURL),
			Token:           firstNonEmpty(os.Getenv("SCOPEVOICE_API_TOKEN"), file.Retrieval.Token),
			ProjectID:       firstNonEmpty(os.Getenv("SCOPEVOICE_PROJECT_ID"), file.Retrieval.ProjectID),
			DocumentID:      firstNonEmpty(os.Getenv("SCOPEVOICE_DOCUMENT_ID"), file.Retrieval.DocumentID),
			Scope:           strings.ToLower(envOrDefault("SCOPEVOICE_SCOPE", firstNonEmpty(file.Retrieval.Scope, "project"))),
			QuestionTopK:    envOrDefaultInt("SCOPEVOICE_QUESTION_TOP_K", intOr(file.Retrieval.QuestionTopK, 5)),
			SearchTopK:      envOrDefaultInt("SCOPEVOICE_SEARCH_TOP_K", intOr(file.Retrieval.SearchTopK, 10)),
			ContextPassages: envOrDefaultInt("SCOPEVOICE_CONTEXT_PASSAGES", intOr(file.Retrieval.ContextPassages, 5)),
		},
		Loop: LoopConfig{
			AutoResume:      envOrDefaultBool("SCOPEVOICE_AUTO_RESUME", boolOr(file.Loop.AutoResume, true)),
			WakeWordEnabled: envOrDefaultBool("SCOPEVOICE_WAKE_WORD", boolOr(file.Loop.WakeWordEnabled, false)),
			WakePhrases:     envList("SCOPEVOICE_WAKE_PHRASES", file.Loop.WakePhrases),
			MaxRearms:       envOrDefaultInt("SCOPEVOICE_MAX_REARMS", intOr(file.Loop.MaxRearms, 3)),
		},
	}
	if file.loaded {
		cfg.File = path
	}

	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Rules.IterationLimit <= 0 {
		cfg.Rules.IterationLimit = 30
	}
	if cfg.Session.ChunkSize < 256 {
		cfg.Session.ChunkSize = 4096
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Answer.Provider {
	case AnswerProviderOpenAI, AnswerProviderGemini:
	default:
		return fmt.Errorf("unsupported answer provider %q (want %s or %s)", c.Answer.Provider, AnswerProviderOpenAI, AnswerProviderGemini)
	}
	switch c.Retrieval.Scope {
	case "project", "document":
	default:
		return fmt.Errorf("unsupported scope %q (want project or document)", c.Retrieval.Scope)
	}
	if c.Timing.Silence <= 0 || c.Timing.Fallback <= 0 {
		return errors.New("silence and fallback windows must be positive")
	}
	if c.Timing.Fallback < c.Timing.Silence {
		return fmt.Errorf("fallback window %s must not be shorter than the silence window %s", c.Timing.Fallback, c.Timing.Silence)
	}
	return nil
}

// loadEnvFiles loads dotenv files without overriding variables that are
// already set.
func loadEnvFiles(paths ...string) {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		_ = godotenv.Load(path)
	}
}

func readFile(path string) (fileConfig, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return fileConfig{}, nil
	}
	if err != nil {
		return fileConfig{}, fmt.Errorf("reading config file %q: %w", path, err)
	}

	var file fileConfig
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &file); err != nil {
		return fileConfig{}, fmt.Errorf("parsing config file %q: %w", path, err)
	}
	file.loaded = true
	return file, nil
}

func firstExisting(paths ...string) string {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	if len(paths) == 0 {
		return ""
	}
	return paths[0]
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultMillis(key string, fallback time.Duration) time.Duration {
	ms := envOrDefaultInt(key, -1)
	if ms < 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// envList splits a comma-separated variable, falling back to values.
func envList(key string, fallback []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func intOr(value int, fallback int) int {
	if value == 0 {
		return fallback
	}
	return value
}

func millisOr(ms int, fallback time.Duration) time.Duration {
	if ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

func boolOr(value *bool, fallback bool) bool {
	if value == nil {
		return fallback
	}
	return *value
}
