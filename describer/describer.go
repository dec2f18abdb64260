// Package describer defines the contracts of the model servers used to
// describe Dixit cards: captioning models, a vision question answering model
// and a text completion model.
package describer

import (
	"context"
	"errors"
)

// Backend is implemented by every model server client.
type Backend interface {
	// Name returns the configured name of the backend, e.g. "BLIP-2" or
	// "openai". Captioner names label ensemble output.
	Name() string

	// IsHealthy returns whether the model server is reachable.
	IsHealthy() bool
}

// Captioner produces a short caption for an image.
type Captioner interface {
	Name() string

	// Caption returns a one sentence English caption of the provided image.
	// The image data should be the full contents of a JPEG or PNG file
	// including the header. An empty caption is reported as an error.
	Caption(ctx context.Context, image []byte) (string, error)
}

// Answerer answers free-form questions about an image.
type Answerer interface {
	Name() string

	// Answer returns the model's answer to question about image.
	Answer(ctx context.Context, image []byte, question string) (string, error)
}

// Completer completes a fully rendered text prompt.
type Completer interface {
	Name() string

	// Complete returns the model's continuation of prompt.
	Complete(ctx context.Context, prompt string) (string, error)
}

// Model is a backend that can play every role in the pipeline.
type Model interface {
	Backend
	Captioner
	Answerer
	Completer
}

// ErrEmptyOutput is returned by backends when the model server answered
// with no text.
var ErrEmptyOutput = errors.New("model returned no output")
