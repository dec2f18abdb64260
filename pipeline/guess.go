package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/chriskillpack/dixit/prompts"
	"golang.org/x/sync/errgroup"
)

// Guess picks the candidate card that best matches clue.
//
// precomputed is either nil or parallel to candidates. A non-nil entry is a
// stored record for that card (a card from the player's hand) and its
// captions, transcript and interpretation are reused without calling the
// ensemble, the session or the synthesizer. Its image may be nil. Other
// candidates are captioned, interpreted and, when maxTurns is positive,
// questioned with the clue as seed question.
//
// Every candidate then gets a clue relation explanation and a single ranking
// completion names the winner. Candidates are independent and may run
// concurrently (Options.GuessConcurrency) but ranking waits for all of them.
// A failure on any candidate fails the guess.
func (p *Pipeline) Guess(ctx context.Context, candidates [][]byte, clue string, maxTurns int, precomputed []*ClueRecord) (*GuessRecord, error) {
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}
	if precomputed != nil && len(precomputed) != len(candidates) {
		return nil, ErrPrecomputedMismatch
	}

	ctx, runID := withRun(ctx, "guess")
	start := time.Now()

	reasoning := make([]CandidateReasoning, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(p.opts.GuessConcurrency, 1))
	for i := range candidates {
		var prior *ClueRecord
		if precomputed != nil {
			prior = precomputed[i]
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := p.scoreCandidate(gctx, i, candidates[i], clue, maxTurns, prior)
			if err != nil {
				return err
			}
			reasoning[i] = *r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		p.logger.ErrorContext(ctx, "scoring candidates", "error", err)
		return nil, err
	}

	listing := make([]prompts.Candidate, len(reasoning))
	for i, r := range reasoning {
		listing[i] = prompts.Candidate{Description: r.Interpretation, Explanation: r.ClueRelation}
	}
	candidatesYAML, err := prompts.CandidateListing(listing)
	if err != nil {
		return nil, err
	}

	verdict, err := p.llm.complete(ctx, prompts.Ranking, map[string]string{
		"clue":       clue,
		"candidates": candidatesYAML,
	})
	if err != nil {
		return nil, err
	}

	choice, err := ParseVerdict(verdict, len(candidates))
	if err != nil {
		p.logger.ErrorContext(ctx, "parsing verdict", "error", err)
		return nil, err
	}

	p.logger.InfoContext(ctx, "guess made",
		slog.String("clue", clue),
		slog.Int("candidates", len(candidates)),
		slog.Int("choice", choice),
		slog.Duration("duration", time.Since(start).Round(time.Millisecond)))

	return &GuessRecord{
		Clue:        clue,
		PerImage:    reasoning,
		FinalAnswer: verdict,
		Choice:      choice,
		RunID:       runID,
	}, nil
}

func (p *Pipeline) scoreCandidate(ctx context.Context, index int, image []byte, clue string, maxTurns int, prior *ClueRecord) (*CandidateReasoning, error) {
	var r CandidateReasoning
	if prior != nil {
		r = CandidateReasoning{
			Captions:                 prior.Captions,
			PreSessionInterpretation: prior.PreSessionInterpretation,
			Transcript:               prior.Transcript,
			SessionHeld:              prior.SessionHeld,
			Interpretation:           prior.Interpretation,
			Precomputed:              true,
		}
	} else {
		// The session questions build on the raw captions here, the clue
		// seed question already steers them towards the clue.
		desc, err := p.describe(ctx, image, clue, maxTurns, func(cs CaptionSet, _ string) string { return cs.String() })
		if err != nil {
			return nil, err
		}
		r = CandidateReasoning{
			Captions:                 desc.captions,
			PreSessionInterpretation: desc.pre,
			Transcript:               desc.transcript,
			SessionHeld:              desc.sessionHeld,
			Interpretation:           desc.interpretation,
		}
	}

	relation, err := p.llm.complete(ctx, prompts.ClueRelation, map[string]string{
		"interpretation": r.Interpretation,
		"clue":           clue,
	})
	if err != nil {
		return nil, err
	}
	r.ClueRelation = relation

	p.logger.DebugContext(ctx, "candidate scored", "candidate", index, "precomputed", r.Precomputed)
	return &r, nil
}
