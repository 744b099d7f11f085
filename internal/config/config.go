// Package config provides the configuration schema, loader, and hot-reload
// watcher for the clip extraction pipeline.
package config

// Config is the root configuration structure for the pipeline.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Store      StoreConfig      `yaml:"store"`
	Queue      QueueConfig      `yaml:"queue"`
	Gateways   GatewaysConfig   `yaml:"gateways"`
	Poller     PollerConfig     `yaml:"poller"`
	Candidates CandidatesConfig `yaml:"candidates"`
	Shortlist  ShortlistConfig  `yaml:"shortlist"`
}

// ServerConfig holds network and logging settings for the worker/poller processes.
type ServerConfig struct {
	// ListenAddr is the TCP address the progress-stream server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// LogLevel is the set of valid log verbosities.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true
	}
	return false
}

// StoreConfig configures the durable persistence layer (§3 Data Model).
type StoreConfig struct {
	// DatabaseURL is the persistent store's connection string (DB URL).
	DatabaseURL string `yaml:"database_url"`
}

// QueueConfig configures the Work Dispatcher's (C7) queue back end.
type QueueConfig struct {
	// BrokerURL is the dispatcher back end's connection string.
	BrokerURL string `yaml:"broker_url"`

	// IOQueue, AIQueue, RenderQueue are decoded and defaulted to "io", "ai"
	// and "render", but nothing reads them: start-worker's -queues flag and
	// the dispatcher accept only the fixed names io, ai and render.
	IOQueue     string `yaml:"io_queue"`
	AIQueue     string `yaml:"ai_queue"`
	RenderQueue string `yaml:"render_queue"`
}

// GatewaysConfig selects and parameterises the three external-capability
// Gateways (C4 LLM, C5 Speech, C6 Media). The Feed Gateway (C11) takes no
// configuration.
type GatewaysConfig struct {
	LLM    LLMGatewayConfig    `yaml:"llm"`
	Speech SpeechGatewayConfig `yaml:"speech"`
	Media  MediaGatewayConfig  `yaml:"media"`
}

// LLMGatewayConfig configures the LLM Gateway (C4).
type LLMGatewayConfig struct {
	// APIKey is the LLM gateway credential.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific chat model.
	Model string `yaml:"model"`

	// FallbackModel, if set, selects an OpenAI model to fail over to
	// (via the direct OpenAI SDK, not the any-llm abstraction) whenever a
	// call to the primary provider fails or its circuit breaker is open.
	// Leave empty to run with no fallback.
	FallbackModel string `yaml:"fallback_model"`

	// FallbackAPIKey is the OpenAI API key for FallbackModel.
	FallbackAPIKey string `yaml:"fallback_api_key"`
}

// SpeechGatewayConfig configures the Speech Gateway's (C5) two transcription
// passes, each with its own model/beam-width tradeoff.
type SpeechGatewayConfig struct {
	// ServerURL is the whisper.cpp server's base URL.
	ServerURL string `yaml:"server_url"`

	// Pass1Model / Pass1Beam parameterise the cheap, fast pass-1 transcription
	// used for candidate scoring.
	Pass1Model string `yaml:"pass1_model"`
	Pass1Beam  int    `yaml:"pass1_beam"`

	// Pass2Model / Pass2Beam parameterise the higher-fidelity pass-2
	// transcription used for word-level snap-and-clean.
	Pass2Model string `yaml:"pass2_model"`
	Pass2Beam  int    `yaml:"pass2_beam"`
}

// MediaGatewayConfig configures the Media Gateway's (C6) yt-dlp/ffmpeg
// subprocess binaries and its working directory.
type MediaGatewayConfig struct {
	// YtDlpPath / FFmpegPath override the binaries looked up on PATH.
	YtDlpPath  string `yaml:"yt_dlp_path"`
	FFmpegPath string `yaml:"ffmpeg_path"`

	// WorkDir is where downloaded source media and rendered clips are written.
	WorkDir string `yaml:"work_dir"`
}

// PollerConfig configures the Feed Poller (C11).
type PollerConfig struct {
	// IntervalSeconds is C11's poll period.
	IntervalSeconds int `yaml:"interval_seconds"`
}

// CandidatesConfig configures the Candidate Generator's (C1) windowing
// parameters.
type CandidatesConfig struct {
	// MinClipSec / MaxClipSec bound a generated window's length.
	MinClipSec int `yaml:"min_clip_sec"`
	MaxClipSec int `yaml:"max_clip_sec"`

	// ShiftSec is the stride between successive windows, for every strategy.
	ShiftSec int `yaml:"shift_sec"`

	// Limit caps the number of candidate Clips generated per Item.
	Limit int `yaml:"limit"`
}

// ShortlistConfig configures the LLM Shortlisting stage's (C4/C8) sizing.
type ShortlistConfig struct {
	// Max bounds how many clips the shortlisting stage may promote per Item.
	Max int `yaml:"max"`

	// SendMax bounds how many candidate clips are sent to the LLM in a
	// single shortlisting request.
	SendMax int `yaml:"send_max"`
}
