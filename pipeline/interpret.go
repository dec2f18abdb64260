package pipeline

import (
	"context"
	"strings"

	"github.com/chriskillpack/dixit/prompts"
)

// Synthesizer turns captions, and optionally a session transcript, into a
// free text interpretation of an image.
type Synthesizer struct {
	llm llmCaller
}

// FromCaptions interprets an image from its ensemble captions alone.
func (s *Synthesizer) FromCaptions(ctx context.Context, captions CaptionSet) (string, error) {
	return s.llm.complete(ctx, prompts.Interpretation, map[string]string{
		"image_descriptions": captions.String(),
		"ai_models":          strings.Join(captions.Models(), ", "),
	})
}

// FromSession interprets an image from its captions and a question
// answering transcript.
func (s *Synthesizer) FromSession(ctx context.Context, captions CaptionSet, transcript Transcript) (string, error) {
	return s.llm.complete(ctx, prompts.PostSessionInterpretation, map[string]string{
		"captions":    captions.String(),
		"qna_session": transcript.String(),
		"ai_models":   strings.Join(captions.Models(), ", "),
	})
}

// interpretation is the outcome of the caption, session, interpretation
// sequence shared by the clue and guess flows.
type interpretation struct {
	captions       CaptionSet
	pre            string
	transcript     Transcript
	sessionHeld    bool
	interpretation string
}

// describe captions image, interprets the captions and, when maxTurns is
// positive, holds a session and interprets again. sessionSeed picks what the
// session questions are based on.
func (p *Pipeline) describe(ctx context.Context, image []byte, clue string, maxTurns int, sessionSeed func(CaptionSet, string) string) (*interpretation, error) {
	captions, err := p.ensemble.CaptionAll(ctx, image)
	if err != nil {
		return nil, err
	}

	pre, err := p.synthesizer.FromCaptions(ctx, captions)
	if err != nil {
		return nil, err
	}

	out := &interpretation{
		captions:       captions,
		pre:            pre,
		transcript:     Transcript{},
		interpretation: pre,
	}
	if maxTurns <= 0 {
		return out, nil
	}

	transcript, err := p.session.Converse(ctx, image, sessionSeed(captions, pre), clue, maxTurns)
	if err != nil {
		return nil, err
	}
	post, err := p.synthesizer.FromSession(ctx, captions, transcript)
	if err != nil {
		return nil, err
	}

	out.transcript = transcript
	out.sessionHeld = true
	out.interpretation = post
	return out, nil
}
