package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mississippi1/whatsapp-transcripts-server/internal/domain"
)

// Config is the root configuration for the transcription server.
type Config struct {
	General       GeneralConfig       `json:"general" yaml:"general"`
	Server        ServerConfig        `json:"server" yaml:"server"`
	Channels      ChannelsConfig      `json:"channels" yaml:"channels"`
	Audio         AudioConfig         `json:"audio" yaml:"audio"`
	Transcription TranscriptionConfig `json:"transcription" yaml:"transcription"`
	History       HistoryConfig       `json:"history" yaml:"history"`
	Events        EventsConfig        `json:"events" yaml:"events"`
	Metrics       MetricsConfig       `json:"metrics" yaml:"metrics"`
}

type GeneralConfig struct {
	LogLevel        string `json:"logLevel" yaml:"logLevel"`
	LogFormat       string `json:"logFormat" yaml:"logFormat"` // "text" | "json"
	LogFile         string `json:"logFile,omitempty" yaml:"logFile,omitempty"`
	DefaultLanguage string `json:"defaultLanguage" yaml:"defaultLanguage"`
}

type ServerConfig struct {
	Host                   string `json:"host" yaml:"host"`
	Port                   int    `json:"port" yaml:"port"`
	Workers                int    `json:"workers" yaml:"workers"`     // queue shards, one worker each
	QueueSize              int    `json:"queueSize" yaml:"queueSize"` // buffered events per shard
	MaxBodyBytes           int64  `json:"maxBodyBytes" yaml:"maxBodyBytes"`
	ShutdownTimeoutSeconds int    `json:"shutdownTimeoutSeconds" yaml:"shutdownTimeoutSeconds"`
}

type ChannelsConfig struct {
	WhatsApp WhatsAppConfig `json:"whatsapp" yaml:"whatsapp"`
	Twilio   TwilioConfig   `json:"twilio" yaml:"twilio"`
	Telegram TelegramConfig `json:"telegram" yaml:"telegram"`
}

type WhatsAppConfig struct {
	Enabled        bool   `json:"enabled" yaml:"enabled"`
	APIURL         string `json:"apiUrl" yaml:"apiUrl"`
	PhoneNumberID  string `json:"phoneNumberId,omitempty" yaml:"phoneNumberId,omitempty"`
	AccessToken    string `json:"accessToken,omitempty" yaml:"accessToken,omitempty"`
	VerifyToken    string `json:"verifyToken,omitempty" yaml:"verifyToken,omitempty"`
	AppSecret      string `json:"appSecret,omitempty" yaml:"appSecret,omitempty"` // enables X-Hub-Signature-256 checks
	WebhookPath    string `json:"webhookPath" yaml:"webhookPath"`
	ExpectedObject string `json:"expectedObject" yaml:"expectedObject"`
	MarkAsRead     bool   `json:"markAsRead" yaml:"markAsRead"`
}

type TwilioConfig struct {
	Enabled        bool   `json:"enabled" yaml:"enabled"`
	APIBase        string `json:"apiBase" yaml:"apiBase"`
	AccountSID     string `json:"accountSid,omitempty" yaml:"accountSid,omitempty"`
	AuthToken      string `json:"authToken,omitempty" yaml:"authToken,omitempty"`
	WhatsAppNumber string `json:"whatsappNumber,omitempty" yaml:"whatsappNumber,omitempty"` // e.g. "whatsapp:+14155238886"
	WebhookPath    string `json:"webhookPath" yaml:"webhookPath"`
	PublicURL      string `json:"publicUrl,omitempty" yaml:"publicUrl,omitempty"` // enables X-Twilio-Signature checks
}

type TelegramConfig struct {
	Enabled      bool   `json:"enabled" yaml:"enabled"`
	Token        string `json:"token,omitempty" yaml:"token,omitempty"`
	APIEndpoint  string `json:"apiEndpoint,omitempty" yaml:"apiEndpoint,omitempty"`
	FileEndpoint string `json:"fileEndpoint,omitempty" yaml:"fileEndpoint,omitempty"`
	WebhookPath  string `json:"webhookPath" yaml:"webhookPath"`
	SecretToken  string `json:"secretToken,omitempty" yaml:"secretToken,omitempty"`
}

type AudioConfig struct {
	FFmpegPath    string `json:"ffmpegPath" yaml:"ffmpegPath"` // empty disables the fallback
	MaxInputBytes int64  `json:"maxInputBytes" yaml:"maxInputBytes"`
}

type TranscriptionConfig struct {
	Backend        string             `json:"backend" yaml:"backend"` // "google" | "whisper"
	TimeoutSeconds int                `json:"timeoutSeconds" yaml:"timeoutSeconds"`
	Google         GoogleSpeechConfig `json:"google" yaml:"google"`
	Whisper        WhisperConfig      `json:"whisper" yaml:"whisper"`
}

type GoogleSpeechConfig struct {
	Endpoint        string `json:"endpoint" yaml:"endpoint"`
	CredentialsPath string `json:"credentialsPath,omitempty" yaml:"credentialsPath,omitempty"`
	APIKey          string `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
	Model           string `json:"model" yaml:"model"`
}

type WhisperConfig struct {
	APIBase string `json:"apiBase" yaml:"apiBase"`
	APIKey  string `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
	Model   string `json:"model" yaml:"model"`
}

// HistoryConfig configures the optional transcript journal.
type HistoryConfig struct {
	Enabled       bool   `json:"enabled" yaml:"enabled"`
	DBPath        string `json:"dbPath" yaml:"dbPath"`
	RetentionDays int    `json:"retentionDays" yaml:"retentionDays"`
}

// EventsConfig configures the optional AMQP event publisher.
type EventsConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	URL      string `json:"url,omitempty" yaml:"url,omitempty"`
	Exchange string `json:"exchange" yaml:"exchange"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Endpoint string `json:"endpoint" yaml:"endpoint"`
}

// DefaultConfigDir returns the default config directory (~/.transcripts).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".transcripts"
	}
	return filepath.Join(home, ".transcripts")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load builds the effective config: defaults, then the file at path (skipped
// when path is empty), then environment overrides. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		path = ExpandPath(path)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
		}

		// Substitute environment variables: ${VAR} and ${VAR:-default}
		data = []byte(ExpandEnvVars(string(data)))

		if err := unmarshal(path, data, cfg); err != nil {
			return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
		}
	}

	ApplyEnv(cfg)

	cfg.History.DBPath = ExpandPath(cfg.History.DBPath)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.Transcription.Google.CredentialsPath = ExpandPath(cfg.Transcription.Google.CredentialsPath)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func unmarshal(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return json.Unmarshal(data, cfg)
	}
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // Keep original if no env var and no default
		}
		return val
	})
}

// Save writes cfg as JSON, or YAML when path ends in .yaml/.yml.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch strings.ToLower(cfg.General.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	switch cfg.General.LogFormat {
	case "", "text", "json":
	default:
		errs = append(errs, "general.logFormat must be one of: text, json")
	}
	if !domain.IsLanguageSupported(cfg.General.DefaultLanguage) {
		errs = append(errs, fmt.Sprintf("general.defaultLanguage must be one of: %s",
			strings.Join(domain.SupportedLanguages, ", ")))
	}

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 0 and 65535")
	}
	if cfg.Server.Workers < 1 || cfg.Server.Workers > 256 {
		errs = append(errs, "server.workers must be between 1 and 256")
	}
	if cfg.Server.QueueSize < 1 {
		errs = append(errs, "server.queueSize must be >= 1")
	}
	if cfg.Server.MaxBodyBytes < 1 {
		errs = append(errs, "server.maxBodyBytes must be >= 1")
	}
	if cfg.Server.ShutdownTimeoutSeconds < 1 {
		errs = append(errs, "server.shutdownTimeoutSeconds must be >= 1")
	}

	if wa := cfg.Channels.WhatsApp; wa.Enabled {
		if wa.APIURL == "" {
			errs = append(errs, "channels.whatsapp.apiUrl is required")
		}
		if wa.PhoneNumberID == "" {
			errs = append(errs, "channels.whatsapp.phoneNumberId is required")
		}
		if wa.AccessToken == "" {
			errs = append(errs, "channels.whatsapp.accessToken is required")
		}
		if wa.VerifyToken == "" {
			errs = append(errs, "channels.whatsapp.verifyToken is required")
		}
	}
	if tw := cfg.Channels.Twilio; tw.Enabled {
		if tw.AccountSID == "" || tw.AuthToken == "" {
			errs = append(errs, "channels.twilio: accountSid and authToken are required")
		}
		if tw.WhatsAppNumber == "" {
			errs = append(errs, "channels.twilio.whatsappNumber is required")
		}
	}
	if tg := cfg.Channels.Telegram; tg.Enabled && tg.Token == "" {
		errs = append(errs, "channels.telegram.token is required")
	}
	paths := map[string]string{}
	for name, p := range map[string]string{
		"whatsapp": enabledPath(cfg.Channels.WhatsApp.Enabled, cfg.Channels.WhatsApp.WebhookPath),
		"twilio":   enabledPath(cfg.Channels.Twilio.Enabled, cfg.Channels.Twilio.WebhookPath),
		"telegram": enabledPath(cfg.Channels.Telegram.Enabled, cfg.Channels.Telegram.WebhookPath),
	} {
		if p == "" {
			continue
		}
		if !strings.HasPrefix(p, "/") {
			errs = append(errs, fmt.Sprintf("channels.%s.webhookPath must start with /", name))
		}
		if other, dup := paths[p]; dup {
			errs = append(errs, fmt.Sprintf("channels.%s.webhookPath duplicates channels.%s", name, other))
		}
		paths[p] = name
	}

	if cfg.Audio.MaxInputBytes < 1 {
		errs = append(errs, "audio.maxInputBytes must be >= 1")
	}

	switch cfg.Transcription.Backend {
	case "google":
		g := cfg.Transcription.Google
		if g.Endpoint == "" {
			errs = append(errs, "transcription.google.endpoint is required")
		}
	case "whisper":
		if cfg.Transcription.Whisper.APIBase == "" {
			errs = append(errs, "transcription.whisper.apiBase is required")
		}
	default:
		errs = append(errs, "transcription.backend must be one of: google, whisper")
	}
	if cfg.Transcription.TimeoutSeconds < 1 {
		errs = append(errs, "transcription.timeoutSeconds must be >= 1")
	}

	if cfg.History.Enabled {
		if cfg.History.DBPath == "" {
			errs = append(errs, "history.dbPath is required")
		}
		if cfg.History.RetentionDays < 0 {
			errs = append(errs, "history.retentionDays must be >= 0")
		}
	}
	if cfg.Events.Enabled {
		if cfg.Events.URL == "" {
			errs = append(errs, "events.url is required")
		}
		if cfg.Events.Exchange == "" {
			errs = append(errs, "events.exchange is required")
		}
	}
	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Endpoint, "/") {
		errs = append(errs, "metrics.endpoint must start with /")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func enabledPath(enabled bool, path string) string {
	if !enabled {
		return ""
	}
	return path
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
