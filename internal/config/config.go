// Package config loads runtime settings from the environment, an optional
// env file and command line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"

	"carevox/internal/session"
	"carevox/internal/storage"
)

const (
	ModeText  = "text"
	ModeBus   = "bus"
	ModeVoice = "voice"
)

const (
	groqBaseURL = "https://api.groq.com/openai/v1/"
	// DefaultSocket is the control socket path.
	DefaultSocket = "/tmp/carevox.sock"
)

type Config struct {
	Mode     string
	LogLevel string
	// LogFile receives the log instead of stderr when set.
	LogFile string

	APIKey     string
	LLMBaseURL string
	LLMModel   string
	// SocksProxy routes LLM traffic through a SOCKS5 proxy when set.
	SocksProxy string

	DataDir        string
	StorageBackend string
	ProfileFile    string
	MetricsFile    string
	SQLitePath     string

	BusURL       string
	HubURL       string
	Socket       string
	WhisperModel string

	Knobs session.Knobs
}

// AddFlags registers the flags Load honours.
func AddFlags(fs *cli.FlagSet) {
	fs.StringP("mode", "m", ModeText, "Front end: text, bus or voice")
	fs.StringP("log", "l", "info", "Log level")
	fs.String("log-file", "", "Write the log to this file instead of stderr")
	fs.StringP("proxy", "p", "", "Socks proxy address for the LLM backend")
	fs.String("data-dir", "", "Directory for the profile and health data")
	fs.String("storage", "", "Metric storage backend: csv or sqlite")
	fs.String("bus", "", "Websocket url of the command bus (bus mode)")
	fs.String("hub", "", "Websocket url of the alert hub")
	fs.String("socket", "", "Control socket path")
	fs.String("whisper-model", "", "Path to the whisper model (voice mode)")
	fs.Duration("listen-timeout", 0, "How long to wait for speech to start")
	fs.Duration("phrase-limit", 0, "Longest accepted utterance")
}

// Load reads envFile when it exists, then the process environment, then any
// flag in fs that was set explicitly. fs may be nil.
func Load(envFile string, fs *cli.FlagSet) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	knobs := session.DefaultKnobs()
	listenTimeout, err := getDuration("LISTEN_TIMEOUT", knobs.ListenTimeout)
	if err != nil {
		return nil, err
	}
	phraseLimit, err := getDuration("PHRASE_TIME_LIMIT", knobs.PhraseTimeLimit)
	if err != nil {
		return nil, err
	}
	threshold, err := getFloat("CONFIDENCE_THRESHOLD", knobs.ConfidenceThreshold)
	if err != nil {
		return nil, err
	}

	c := &Config{
		Mode:     getEnv("CAREVOX_MODE", ModeText),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  os.Getenv("LOG_FILE"),

		APIKey:     getEnv("GROQ_API_KEY", os.Getenv("OPENAI_API_KEY")),
		LLMBaseURL: os.Getenv("LLM_BASE_URL"),
		LLMModel:   os.Getenv("LLM_MODEL"),
		SocksProxy: os.Getenv("SOCKS_PROXY"),

		DataDir:        getEnv("CAREVOX_DATA_DIR", "."),
		StorageBackend: getEnv("STORAGE_BACKEND", storage.BackendCSV),
		ProfileFile:    os.Getenv("PROFILE_FILE"),
		MetricsFile:    os.Getenv("METRICS_FILE"),
		SQLitePath:     os.Getenv("SQLITE_PATH"),

		BusURL:       os.Getenv("BUS_URL"),
		HubURL:       os.Getenv("HUB_URL"),
		Socket:       getEnv("CAREVOX_SOCKET", DefaultSocket),
		WhisperModel: getEnv("WHISPER_MODEL", "third_party/whisper.cpp/models/ggml-medium.bin"),

		Knobs: session.Knobs{
			ListenTimeout:       listenTimeout,
			PhraseTimeLimit:     phraseLimit,
			ConfidenceThreshold: threshold,
		},
	}

	if fs != nil {
		c.applyFlags(fs)
	}

	if c.LLMBaseURL == "" && os.Getenv("GROQ_API_KEY") != "" {
		c.LLMBaseURL = groqBaseURL
	}
	if c.ProfileFile == "" {
		c.ProfileFile = filepath.Join(c.DataDir, "user_profile.json")
	}
	if c.MetricsFile == "" {
		c.MetricsFile = filepath.Join(c.DataDir, "health_data.csv")
	}
	if c.SQLitePath == "" {
		c.SQLitePath = filepath.Join(c.DataDir, "health_data.db")
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyFlags(fs *cli.FlagSet) {
	str := func(name string, dst *string) {
		if fs.Changed(name) {
			*dst, _ = fs.GetString(name)
		}
	}
	dur := func(name string, dst *time.Duration) {
		if fs.Changed(name) {
			*dst, _ = fs.GetDuration(name)
		}
	}

	str("mode", &c.Mode)
	str("log", &c.LogLevel)
	str("log-file", &c.LogFile)
	str("proxy", &c.SocksProxy)
	str("data-dir", &c.DataDir)
	str("storage", &c.StorageBackend)
	str("bus", &c.BusURL)
	str("hub", &c.HubURL)
	str("socket", &c.Socket)
	str("whisper-model", &c.WhisperModel)
	dur("listen-timeout", &c.Knobs.ListenTimeout)
	dur("phrase-limit", &c.Knobs.PhraseTimeLimit)
}

func (c *Config) Validate() error {
	switch c.Mode {
	case ModeText, ModeVoice:
	case ModeBus:
		if c.BusURL == "" {
			return errors.New("BUS_URL is required in bus mode")
		}
	default:
		return fmt.Errorf("unknown mode %q: must be one of text, bus, voice", c.Mode)
	}

	switch c.StorageBackend {
	case storage.BackendCSV, storage.BackendSQLite:
	default:
		return fmt.Errorf("STORAGE_BACKEND must be csv or sqlite, got %q", c.StorageBackend)
	}

	if c.Knobs.ListenTimeout <= 0 || c.Knobs.PhraseTimeLimit <= 0 {
		return errors.New("listen timeout and phrase limit must be positive")
	}
	if c.Knobs.ConfidenceThreshold < 0 || c.Knobs.ConfidenceThreshold > 1 {
		return errors.New("CONFIDENCE_THRESHOLD must be between 0 and 1")
	}
	return nil
}

// StorageOptions maps the config onto storage.Open.
func (c *Config) StorageOptions() storage.Options {
	return storage.Options{
		Backend:     c.StorageBackend,
		ProfilePath: c.ProfileFile,
		MetricsPath: c.MetricsFile,
		SQLitePath:  c.SQLitePath,
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}
