package config

// fileConfig mirrors config.yaml. Zero values mean "not set".
type fileConfig struct {
	Deepgram struct {
		APIKey         string `yaml:"api_key"`
		APIBase        string `yaml:"api_base"`
		Model          string `yaml:"model"`
		Language       string `yaml:"language"`
		SmartFormat    *bool  `yaml:"smart_format"`
		InterimResults *bool  `yaml:"interim_results"`
		EndpointingMS  int    `yaml:"endpointing_ms"`
		UtteranceEndMS int    `yaml:"utterance_end_ms"`
	} `yaml:"deepgram"`

	Audio struct {
		RecorderCommand string `yaml:"recorder_command"`
		PlayerCommand   string `yaml:"player_command"`
		InputFormat     string `yaml:"input_format"`
		InputDevice     string `yaml:"input_device"`
		SampleRate      int    `yaml:"sample_rate"`
		Channels        int    `yaml:"channels"`
	} `yaml:"audio"`

	Rules struct {
		Path           string   `yaml:"path"`
		IterationLimit int      `yaml:"iteration_limit"`
		Inline         []string `yaml:"inline"`
	} `yaml:"rules"`

	Session struct {
		ChunkSize        int    `yaml:"chunk_size"`
		StreamingGraceMS int    `yaml:"streaming_grace_ms"`
		Language         string `yaml:"language"`
	} `yaml:"session"`

	Timing struct {
		SilenceMS           int `yaml:"silence_ms"`
		UnreliableSilenceMS int `yaml:"unreliable_silence_ms"`
		FinalSilenceMS      int `yaml:"final_silence_ms"`
		FallbackMS          int `yaml:"fallback_ms"`
		SettleMS            int `yaml:"settle_ms"`
		PlaybackFailsafeMS  int `yaml:"playback_failsafe_ms"`
		DispatchTimeoutMS   int `yaml:"dispatch_timeout_ms"`
		RestartBaseMS       int `yaml:"restart_base_ms"`
		RestartCapMS        int `yaml:"restart_cap_ms"`
		RestartWindowMS     int `yaml:"restart_window_ms"`
		MaxRapidRestarts    int `yaml:"max_rapid_restarts"`
	} `yaml:"timing"`

	Answer struct {
		Provider string          `yaml:"provider"`
		OpenAI   fileModelConfig `yaml:"openai"`
		Gemini   fileModelConfig `yaml:"gemini"`
	} `yaml:"answer"`

	Speech struct {
		APIKey  string `yaml:"api_key"`
		BaseURL string `yaml:"base_url"`
		Model   string `yaml:"model"`
		Voice   string `yaml:"voice"`
		Format  string `yaml:"format"`
	} `yaml:"speech"`

	Retrieval struct {
		BaseURL         string `yaml:"base_url"`
		Token           string `yaml:"token"`
		ProjectID       string `yaml:"project_id"`
		DocumentID      string `yaml:"document_id"`
		Scope           string `yaml:"scope"`
		QuestionTopK    int    `yaml:"question_top_k"`
		SearchTopK      int    `yaml:"search_top_k"`
		ContextPassages int    `yaml:"context_passages"`
	} `yaml:"retrieval"`

	Loop struct {
		AutoResume      *bool    `yaml:"auto_resume"`
		WakeWordEnabled *bool    `yaml:"wake_word"`
		WakePhrases     []string `yaml:"wake_phrases"`
		MaxRearms       int      `yaml:"max_rearms"`
	} `yaml:"loop"`

	loaded bool
}

type fileModelConfig struct {
	APIKey    string `yaml:"api_key"`
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
}
