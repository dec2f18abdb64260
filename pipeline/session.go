package pipeline

import (
	"context"
	"log/slog"
	"strings"

	"github.com/chriskillpack/dixit/describer"
	"github.com/chriskillpack/dixit/prompts"
)

const (
	// The question generating prompt casts the LLM as Bob talking to Alice,
	// who relays the VQA model's answers.
	answererPrefix = "Alice:"
	askerPrefix    = "Bob:"

	// openingAnswer stands in for Alice's first answer when no seed
	// question was asked.
	openingAnswer = "Only ask me questions that matter."
)

// Session runs bounded question answering exchanges between a question
// generating LLM and a VQA model.
type Session struct {
	vqa    describer.Answerer
	llm    llmCaller
	logger *slog.Logger
}

// Converse asks maxTurns questions about image and returns the transcript.
// The LLM writes each question from seed, a hint it derives once from seed,
// the exchange so far and the latest answer, so turns run strictly in order.
//
// When clue is not empty a seed question relating the image to clue is asked
// first and recorded as turn 0, so the transcript has maxTurns+1 turns. Any
// failure aborts the session and no transcript is returned.
func (s *Session) Converse(ctx context.Context, image []byte, seed, clue string, maxTurns int) (Transcript, error) {
	transcript := make(Transcript, 0, maxTurns+1)
	answer := openingAnswer

	if clue != "" {
		question, err := prompts.Render(prompts.SessionSeedQuestion, map[string]string{"clue": clue})
		if err != nil {
			return nil, err
		}
		if answer, err = s.ask(ctx, image, question); err != nil {
			return nil, err
		}
		transcript = append(transcript, Turn{Question: question, Answer: answer})
	}

	if maxTurns <= 0 {
		return transcript, nil
	}

	seed = strings.TrimSpace(seed)
	hint, err := s.llm.complete(ctx, prompts.SessionHint, map[string]string{"image_interpretation": seed})
	if err != nil {
		return nil, err
	}

	history := strings.Builder{}
	for turn := range maxTurns {
		raw, err := s.llm.complete(ctx, prompts.SessionQuestion, map[string]string{
			"image_interpretation": seed,
			"hint":                 hint,
			"chat_history":         strings.TrimSuffix(history.String(), "\n"),
			"answer":               answer,
		})
		if err != nil {
			return nil, err
		}

		question := cleanQuestion(raw)
		if question == "" {
			return nil, &LLMBackendError{Backend: s.llm.llm.Name(), Stage: prompts.SessionQuestion, Err: ErrEmptyResponse}
		}

		history.WriteString(answererPrefix + " " + answer + "\n")
		history.WriteString(askerPrefix + " " + question + "\n")

		if answer, err = s.ask(ctx, image, question); err != nil {
			return nil, err
		}
		transcript = append(transcript, Turn{Question: question, Answer: answer})
		s.logger.DebugContext(ctx, "session turn", "turn", turn, "question", question)
	}

	return transcript, nil
}

func (s *Session) ask(ctx context.Context, image []byte, question string) (string, error) {
	answer, err := s.vqa.Answer(ctx, image, question)
	if err != nil {
		return "", &VQABackendError{Backend: s.vqa.Name(), Question: question, Err: err}
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", &VQABackendError{Backend: s.vqa.Name(), Question: question, Err: ErrEmptyResponse}
	}
	return answer, nil
}

// cleanQuestion keeps only Bob's line, cutting at the first speaker switch in
// case the model also wrote Alice's reply.
func cleanQuestion(raw string) string {
	q, _, _ := strings.Cut(raw, answererPrefix)
	q = strings.TrimSpace(q)
	q = strings.TrimSpace(strings.TrimPrefix(q, askerPrefix))
	return q
}
