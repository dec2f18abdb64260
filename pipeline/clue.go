package pipeline

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/chriskillpack/dixit/prompts"
)

// ComposeClue produces a clue for the card in image. The stages run in a
// fixed order: captions, caption interpretation, a session of maxTurns
// questions, session interpretation, association and finally the clue. With
// maxTurns of zero the session and second interpretation are skipped.
//
// An empty personality means DefaultPersonality. The returned record holds
// every intermediate artifact. Any stage failure fails the whole call.
func (p *Pipeline) ComposeClue(ctx context.Context, image []byte, personality string, maxTurns int) (*ClueRecord, error) {
	ctx, runID := withRun(ctx, "clue")
	start := time.Now()

	if strings.TrimSpace(personality) == "" {
		personality = DefaultPersonality
	}

	desc, err := p.describe(ctx, image, "", maxTurns, func(_ CaptionSet, pre string) string { return pre })
	if err != nil {
		p.logger.ErrorContext(ctx, "describing card", "error", err)
		return nil, err
	}

	association, err := p.llm.complete(ctx, prompts.Association, map[string]string{
		"image_interpretation": desc.interpretation,
	})
	if err != nil {
		return nil, err
	}

	clue, err := p.compressClue(ctx, association, personality)
	if err != nil {
		p.logger.ErrorContext(ctx, "compressing clue", "error", err)
		return nil, err
	}

	p.logger.InfoContext(ctx, "clue composed",
		slog.String("clue", clue),
		slog.Int("turns", len(desc.transcript)),
		slog.Duration("duration", time.Since(start).Round(time.Millisecond)))

	return &ClueRecord{
		Captions:                 desc.captions,
		PreSessionInterpretation: desc.pre,
		Transcript:               desc.transcript,
		SessionHeld:              desc.sessionHeld,
		Interpretation:           desc.interpretation,
		Association:              association,
		Clue:                     clue,
		Personality:              personality,
		RunID:                    runID,
	}, nil
}

// compressClue asks for a clue phrase, re-asking while it is longer than the
// word limit.
func (p *Pipeline) compressClue(ctx context.Context, association, personality string) (string, error) {
	limit := p.opts.ClueWordLimit
	wordLimit := strconv.Itoa(DefaultClueWordLimit)
	if limit > 0 {
		wordLimit = strconv.Itoa(limit)
	}
	vars := map[string]string{
		"association": association,
		"personality": personality,
		"word_limit":  wordLimit,
	}

	var (
		clue  string
		words int
	)
	attempts := p.opts.ClueRetries + 1
	for attempt := range attempts {
		raw, err := p.llm.complete(ctx, prompts.Clue, vars)
		if err != nil {
			return "", err
		}
		clue = normalizeClue(raw)
		if clue == "" {
			return "", &LLMBackendError{Backend: p.llm.llm.Name(), Stage: prompts.Clue, Err: ErrEmptyResponse}
		}
		if limit == 0 {
			return clue, nil
		}
		if words = len(strings.Fields(clue)); words <= limit {
			return clue, nil
		}
		p.logger.WarnContext(ctx, "clue over word limit", "clue", clue, "words", words, "attempt", attempt)
	}

	return "", &ClueLengthError{Clue: clue, Words: words, Limit: limit, Attempts: attempts}
}

// normalizeClue strips the quoting and trailing punctuation models like to
// wrap short phrases in, and keeps the first line only.
func normalizeClue(raw string) string {
	clue, _, _ := strings.Cut(strings.TrimSpace(raw), "\n")
	clue = strings.TrimSpace(clue)
	for _, prefix := range []string{"Clue:", "clue:", "Phrase:", "phrase:"} {
		clue = strings.TrimPrefix(clue, prefix)
	}
	return strings.TrimFunc(clue, func(r rune) bool {
		return unicode.IsSpace(r) || (unicode.IsPunct(r) && r != '?' && r != '!')
	})
}
