package pipeline

import (
	"context"
	"errors"
	"strings"

	"github.com/chriskillpack/dixit/describer"
)

// Ensemble runs a fixed, ordered set of captioners against the same image.
type Ensemble struct {
	captioners []describer.Captioner
}

// NewEnsemble returns an Ensemble of captioners in the given order. Names
// must be unique since they label the captions.
func NewEnsemble(captioners ...describer.Captioner) (*Ensemble, error) {
	if len(captioners) == 0 {
		return nil, errors.New("ensemble needs at least one captioner")
	}

	seen := make(map[string]bool, len(captioners))
	for _, c := range captioners {
		if seen[c.Name()] {
			return nil, errors.New("duplicate captioner name " + c.Name())
		}
		seen[c.Name()] = true
	}

	return &Ensemble{captioners: captioners}, nil
}

// Models returns the captioner names in ensemble order.
func (e *Ensemble) Models() []string {
	names := make([]string, len(e.captioners))
	for i, c := range e.captioners {
		names[i] = c.Name()
	}
	return names
}

// CaptionAll captions image with every member. Either all members succeed
// and the set has one entry per member, or the first failure is returned as a
// CaptioningBackendError and no set is returned.
func (e *Ensemble) CaptionAll(ctx context.Context, image []byte) (CaptionSet, error) {
	set := make(CaptionSet, 0, len(e.captioners))
	for _, c := range e.captioners {
		text, err := c.Caption(ctx, image)
		if err != nil {
			return nil, &CaptioningBackendError{Backend: c.Name(), Err: err}
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return nil, &CaptioningBackendError{Backend: c.Name(), Err: ErrEmptyResponse}
		}
		set = append(set, Caption{Model: c.Name(), Text: text})
	}
	return set, nil
}
