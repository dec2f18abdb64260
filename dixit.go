// Package dixit builds the clue and guess pipeline from a configuration and
// logs its results.
package dixit

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/chriskillpack/dixit/describer"
	"github.com/chriskillpack/dixit/internal/anthropic"
	"github.com/chriskillpack/dixit/internal/cache"
	"github.com/chriskillpack/dixit/internal/config"
	"github.com/chriskillpack/dixit/internal/llama"
	"github.com/chriskillpack/dixit/internal/openai"
	"github.com/chriskillpack/dixit/pipeline"
)

type InitOptions struct {
	Config *config.Config // if nil uses config.Default()
	Logger *slog.Logger   // if nil uses slog.Default()

	HttpClient *http.Client // if nil a client with Config.HTTPTimeout is used
}

type Dixit struct {
	*pipeline.Pipeline

	Config *config.Config

	// Backends lists every configured model server once, LLM first, then
	// the VQA model and the captioners.
	Backends []describer.Backend
}

func Init(dio InitOptions) (*Dixit, error) {
	cfg := dio.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	httpClient := dio.HttpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.HTTPTimeout}
	}

	d := &Dixit{Config: cfg}

	llm, err := NewBackend(cfg.LLM, cfg, httpClient)
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}
	vqa, err := NewBackend(cfg.VQA, cfg, httpClient)
	if err != nil {
		return nil, fmt.Errorf("vqa: %w", err)
	}
	d.Backends = append(d.Backends, llm, vqa)

	captioners := make([]describer.Captioner, len(cfg.Captioners))
	for i, bc := range cfg.Captioners {
		m, err := NewBackend(bc, cfg, httpClient)
		if err != nil {
			return nil, fmt.Errorf("captioner %d: %w", i, err)
		}
		d.Backends = append(d.Backends, m)

		captioners[i] = m
		if cfg.CaptionCacheTTL > 0 {
			captioners[i] = cache.NewCaptioner(m, cfg.CaptionCacheTTL)
		}
	}

	ensemble, err := pipeline.NewEnsemble(captioners...)
	if err != nil {
		return nil, err
	}

	d.Pipeline, err = pipeline.New(ensemble, vqa, llm, pipeline.Options{
		Logger:           dio.Logger,
		ClueWordLimit:    cfg.ClueWordLimit,
		ClueRetries:      cfg.ClueRetries,
		GuessConcurrency: cfg.GuessConcurrency,
	})
	if err != nil {
		return nil, err
	}

	return d, nil
}

// NewBackend returns the model server client described by bc.
func NewBackend(bc config.BackendConfig, cfg *config.Config, httpClient *http.Client) (describer.Model, error) {
	switch bc.Backend {
	case config.BackendLlama:
		return llama.Init(llama.Options{
			Name:       bc.DisplayName(),
			SrvAddr:    bc.Addr,
			Seed:       bc.Seed,
			MaxTokens:  bc.MaxTokens,
			HttpClient: httpClient,
		}), nil
	case config.BackendOpenAI:
		return openai.Init(openai.Options{
			Name:              bc.DisplayName(),
			APIKey:            cfg.OpenAIAPIKey,
			BaseURL:           bc.Addr,
			Model:             bc.Model,
			Seed:              bc.Seed,
			MaxTokens:         bc.MaxTokens,
			RequestsPerMinute: bc.RequestsPerMinute,
			HttpClient:        httpClient,
		}), nil
	case config.BackendAnthropic:
		return anthropic.Init(anthropic.Options{
			Name:              bc.DisplayName(),
			APIKey:            cfg.AnthropicAPIKey,
			BaseURL:           bc.Addr,
			Model:             bc.Model,
			MaxTokens:         bc.MaxTokens,
			RequestsPerMinute: bc.RequestsPerMinute,
			HttpClient:        httpClient,
		}), nil
	case "":
		return nil, errors.New("no backend selected")
	default:
		return nil, fmt.Errorf("unknown backend %q", bc.Backend)
	}
}

// Health reports IsHealthy for every configured backend, keyed by name.
func (d *Dixit) Health() map[string]bool {
	out := make(map[string]bool, len(d.Backends))
	for _, b := range d.Backends {
		if _, seen := out[b.Name()]; seen {
			continue
		}
		out[b.Name()] = b.IsHealthy()
	}
	return out
}
