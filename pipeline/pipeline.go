// Package pipeline generates Dixit clues for card images and guesses which
// card matches a clue. Every invocation threads its intermediate artifacts
// through return values, so a Pipeline can serve concurrent invocations.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chriskillpack/dixit/describer"
	"github.com/chriskillpack/dixit/internal/logging"
	"github.com/chriskillpack/dixit/prompts"
	"github.com/google/uuid"
)

const (
	DefaultClueTurns     = 3
	DefaultGuessTurns    = 1
	DefaultClueWordLimit = 3
	DefaultClueRetries   = 2
)

// Options tune a Pipeline. The zero value disables clue length validation
// and scores guess candidates sequentially.
type Options struct {
	Logger *slog.Logger // if nil uses slog.Default()

	// ClueWordLimit is the maximum number of words in a clue. Zero leaves
	// the limit to the prompt wording only.
	ClueWordLimit int
	// ClueRetries is how many times the clue stage is asked again when the
	// clue is over ClueWordLimit.
	ClueRetries int

	// GuessConcurrency is the number of guess candidates processed at once.
	// Values below 2 process candidates one after the other.
	GuessConcurrency int
}

// DefaultOptions returns the options used by the CLI when nothing is
// configured.
func DefaultOptions() Options {
	return Options{
		ClueWordLimit:    DefaultClueWordLimit,
		ClueRetries:      DefaultClueRetries,
		GuessConcurrency: 1,
	}
}

// Pipeline combines the captioner ensemble, the question answering session
// and the LLM stages into the clue and guess flows.
type Pipeline struct {
	ensemble    *Ensemble
	session     *Session
	synthesizer *Synthesizer
	llm         llmCaller

	opts   Options
	logger *slog.Logger
}

// New returns a Pipeline. vqa answers questions during sessions and llm
// completes every prompt template.
func New(ensemble *Ensemble, vqa describer.Answerer, llm describer.Completer, opts Options) (*Pipeline, error) {
	if ensemble == nil {
		return nil, errors.New("pipeline needs a captioner ensemble")
	}
	if vqa == nil {
		return nil, errors.New("pipeline needs a vqa backend")
	}
	if llm == nil {
		return nil, errors.New("pipeline needs an llm backend")
	}
	if opts.ClueWordLimit < 0 || opts.ClueRetries < 0 {
		return nil, fmt.Errorf("invalid clue limits %d/%d", opts.ClueWordLimit, opts.ClueRetries)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "pipeline")

	caller := llmCaller{llm: llm, logger: logger}
	return &Pipeline{
		ensemble:    ensemble,
		session:     &Session{vqa: vqa, llm: caller, logger: logger},
		synthesizer: &Synthesizer{llm: caller},
		llm:         caller,
		opts:        opts,
		logger:      logger,
	}, nil
}

// Ensemble returns the captioner ensemble of the pipeline.
func (p *Pipeline) Ensemble() *Ensemble { return p.ensemble }

// Session returns the question answering session runner of the pipeline.
func (p *Pipeline) Session() *Session { return p.session }

// Synthesizer returns the interpretation synthesizer of the pipeline.
func (p *Pipeline) Synthesizer() *Synthesizer { return p.synthesizer }

// withRun stamps a fresh run id on ctx for log correlation.
func withRun(ctx context.Context, flow string) (context.Context, string) {
	id := uuid.NewString()
	return logging.WithAttrs(ctx, slog.String("run_id", id), slog.String("flow", flow)), id
}

// llmCaller renders prompt templates and completes them, mapping every
// failure to an LLMBackendError named after the template.
type llmCaller struct {
	llm    describer.Completer
	logger *slog.Logger
}

func (c llmCaller) complete(ctx context.Context, stage string, vars map[string]string) (string, error) {
	prompt, err := prompts.Render(stage, vars)
	if err != nil {
		return "", err
	}

	start := time.Now()
	out, err := c.llm.Complete(ctx, prompt)
	if err != nil {
		c.logger.ErrorContext(ctx, "completion failed", "stage", stage, "error", err)
		return "", &LLMBackendError{Backend: c.llm.Name(), Stage: stage, Err: err}
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", &LLMBackendError{Backend: c.llm.Name(), Stage: stage, Err: ErrEmptyResponse}
	}

	c.logger.DebugContext(ctx, "completion", "stage", stage, "duration", time.Since(start).Round(time.Millisecond))
	return out, nil
}
