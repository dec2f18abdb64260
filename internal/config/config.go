// Package config loads the dixit configuration from a YAML file, a .env
// file and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	BackendLlama     = "llama"
	BackendOpenAI    = "openai"
	BackendAnthropic = "anthropic"
)

const (
	DefaultLlamaServer      = "http://localhost:8080"
	DefaultClueTurns        = 3
	DefaultGuessTurns       = 1
	DefaultPersonality      = "generic"
	DefaultGuessConcurrency = 1
	DefaultClueWordLimit    = 3
	DefaultClueRetries      = 2
	DefaultHTTPTimeout      = 30 * time.Second
	DefaultDBPath           = "dixit.db"
	DefaultHandsDir         = "hands"
)

// Environment variables read by Load.
const (
	EnvOpenAIKey    = "OPENAI_API_KEY"
	EnvAnthropicKey = "ANTHROPIC_API_KEY"
	EnvLlamaServer  = "DIXIT_LLAMA_SERVER"
)

// BackendConfig selects and configures one model server.
type BackendConfig struct {
	Backend           string `yaml:"backend"`
	Name              string `yaml:"name,omitempty"` // defaults to Backend
	Addr              string `yaml:"addr,omitempty"` // server address (llama) or base URL override
	Model             string `yaml:"model,omitempty"`
	Seed              int    `yaml:"seed,omitempty"`
	MaxTokens         int    `yaml:"max_tokens,omitempty"`
	RequestsPerMinute int    `yaml:"requests_per_minute,omitempty"`
}

// DisplayName returns the name the backend reports, which labels captions.
func (b BackendConfig) DisplayName() string {
	if b.Name != "" {
		return b.Name
	}
	return b.Backend
}

type Config struct {
	LLM BackendConfig `yaml:"llm"`
	VQA BackendConfig `yaml:"vqa"`
	// Captioners make up the ensemble, in order.
	Captioners []BackendConfig `yaml:"captioners"`

	ClueTurns        int           `yaml:"clue_turns"`
	GuessTurns       int           `yaml:"guess_turns"`
	Personality      string        `yaml:"personality"`
	GuessConcurrency int           `yaml:"guess_concurrency"`
	ClueWordLimit    int           `yaml:"clue_word_limit"`
	ClueRetries      int           `yaml:"clue_retries"`
	CaptionCacheTTL  time.Duration `yaml:"caption_cache_ttl"`
	HTTPTimeout      time.Duration `yaml:"http_timeout"`

	DBPath   string `yaml:"db_path"`
	HandsDir string `yaml:"hands_dir"`

	OpenAIAPIKey    string `yaml:"-"`
	AnthropicAPIKey string `yaml:"-"`
}

// Default returns a configuration that runs every stage on a local llama.cpp
// server.
func Default() *Config {
	llama := BackendConfig{Backend: BackendLlama, Addr: DefaultLlamaServer}
	return &Config{
		LLM:              llama,
		VQA:              llama,
		Captioners:       []BackendConfig{llama},
		ClueTurns:        DefaultClueTurns,
		GuessTurns:       DefaultGuessTurns,
		Personality:      DefaultPersonality,
		GuessConcurrency: DefaultGuessConcurrency,
		ClueWordLimit:    DefaultClueWordLimit,
		ClueRetries:      DefaultClueRetries,
		HTTPTimeout:      DefaultHTTPTimeout,
		DBPath:           DefaultDBPath,
		HandsDir:         DefaultHandsDir,
	}
}

// LoadEnv loads .env style files into the environment. Missing files are
// skipped, with no arguments ".env" is tried.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// Load reads the YAML file at path over Default and applies the environment.
// An empty path uses the defaults alone. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}

		// Backends are replaced as a whole, scalar settings keep their
		// default when absent.
		cfg.LLM, cfg.VQA, cfg.Captioners = BackendConfig{}, BackendConfig{}, nil
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		cfg.applyBackendDefaults()
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyBackendDefaults() {
	def := Default()
	if c.LLM.Backend == "" {
		c.LLM = def.LLM
	}
	if c.VQA.Backend == "" {
		c.VQA = def.VQA
	}
	if c.Captioners == nil {
		c.Captioners = def.Captioners
	}
	for _, b := range c.Backends() {
		if b.Backend == BackendLlama && b.Addr == "" {
			b.Addr = DefaultLlamaServer
		}
	}
}

func (c *Config) applyEnv() {
	c.OpenAIAPIKey = os.Getenv(EnvOpenAIKey)
	c.AnthropicAPIKey = os.Getenv(EnvAnthropicKey)

	srv := strings.TrimSpace(os.Getenv(EnvLlamaServer))
	if srv == "" {
		return
	}
	for _, b := range c.Backends() {
		if b.Backend == BackendLlama {
			b.Addr = srv
		}
	}
}

// Backends returns pointers to every configured backend: the LLM, the VQA
// model and then the captioners.
func (c *Config) Backends() []*BackendConfig {
	out := []*BackendConfig{&c.LLM, &c.VQA}
	for i := range c.Captioners {
		out = append(out, &c.Captioners[i])
	}
	return out
}

// Validate reports every problem with the configuration.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Captioners) == 0 {
		errs = append(errs, errors.New("at least one captioner is required"))
	}
	seen := map[string]bool{}
	for i, b := range c.Captioners {
		if seen[b.DisplayName()] {
			errs = append(errs, fmt.Errorf("captioner %d: duplicate name %q", i, b.DisplayName()))
		}
		seen[b.DisplayName()] = true
	}
	for _, b := range c.Backends() {
		if err := b.validate(); err != nil {
			errs = append(errs, err)
		}
	}

	if strings.TrimSpace(c.Personality) == "" {
		errs = append(errs, errors.New("personality must not be empty"))
	}
	if c.ClueTurns < 0 || c.GuessTurns < 0 {
		errs = append(errs, fmt.Errorf("turn counts must not be negative (clue %d, guess %d)", c.ClueTurns, c.GuessTurns))
	}
	if c.GuessConcurrency < 1 {
		errs = append(errs, fmt.Errorf("guess_concurrency must be at least 1, got %d", c.GuessConcurrency))
	}
	if c.ClueWordLimit < 0 || c.ClueRetries < 0 {
		errs = append(errs, errors.New("clue_word_limit and clue_retries must not be negative"))
	}
	if c.HTTPTimeout < 0 || c.CaptionCacheTTL < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}

	return errors.Join(errs...)
}

func (b *BackendConfig) validate() error {
	switch b.Backend {
	case BackendLlama:
		if b.Addr == "" {
			return fmt.Errorf("backend %q: llama needs an addr", b.DisplayName())
		}
	case BackendOpenAI, BackendAnthropic:
	case "":
		return errors.New("backend not set")
	default:
		return fmt.Errorf("unknown backend %q", b.Backend)
	}
	return nil
}
