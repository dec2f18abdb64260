package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/chriskillpack/dixit/describer"
)

var errBackend = errors.New("backend down")

type stubCaptioner struct {
	name string
	// fail makes Caption fail for images equal to fail.
	fail string

	mu    sync.Mutex
	calls int
}

func (s *stubCaptioner) Name() string { return s.name }

func (s *stubCaptioner) Caption(_ context.Context, image []byte) (string, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.fail != "" && string(image) == s.fail {
		return "", errBackend
	}
	return fmt.Sprintf("%s sees %s", s.name, image), nil
}

func (s *stubCaptioner) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubVQA struct {
	err error

	mu        sync.Mutex
	questions []string
}

func (s *stubVQA) Name() string { return "stub-vqa" }

func (s *stubVQA) Answer(_ context.Context, image []byte, question string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.questions = append(s.questions, question)
	if s.err != nil {
		return "", s.err
	}
	return fmt.Sprintf("answer %d about %s", len(s.questions), image), nil
}

func (s *stubVQA) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.questions)
}

// Stage names used by stubLLM, detected from the opening words of each
// prompt template.
const (
	stageInterpretation = "interpretation"
	stageHint           = "hint"
	stageQuestion       = "question"
	stagePost           = "post"
	stageAssociation    = "association"
	stageClue           = "clue"
	stageRelation       = "relation"
	stageRanking        = "ranking"
)

var stagePrefixes = []struct{ prefix, stage string }{
	{"I give you a list of descriptions", stageInterpretation},
	{"You can't see this photo", stageHint},
	{"Your name is Bob", stageQuestion},
	{"Your task is to generate a detailed description", stagePost},
	{"For an image with a following", stageAssociation},
	{"Given the following association", stageClue},
	{"Given an image with the following description", stageRelation},
	{"Given the following image descriptions", stageRanking},
}

func promptStage(prompt string) string {
	for _, p := range stagePrefixes {
		if strings.HasPrefix(prompt, p.prefix) {
			return p.stage
		}
	}
	return ""
}

var lastAnswerRE = regexp.MustCompile(`Alice: (.*)\nAlice: You can ask me`)

// stubLLM answers every stage with a canned reply. Replies for a stage can be
// overridden through respond, which sees the stage, the prompt and how many
// times the stage was called before.
type stubLLM struct {
	respond func(stage, prompt string, n int) (string, error)

	mu      sync.Mutex
	calls   map[string]int
	prompts map[string][]string
}

func (s *stubLLM) Name() string { return "stub-llm" }

func (s *stubLLM) Complete(_ context.Context, prompt string) (string, error) {
	stage := promptStage(prompt)

	s.mu.Lock()
	if s.calls == nil {
		s.calls = map[string]int{}
		s.prompts = map[string][]string{}
	}
	n := s.calls[stage]
	s.calls[stage]++
	s.prompts[stage] = append(s.prompts[stage], prompt)
	s.mu.Unlock()

	if s.respond != nil {
		if out, err := s.respond(stage, prompt, n); out != "" || err != nil {
			return out, err
		}
	}

	switch stage {
	case stageInterpretation:
		return "a dreamy interpretation", nil
	case stageHint:
		return "what is the bird doing", nil
	case stageQuestion:
		last := "nothing"
		if m := lastAnswerRE.FindStringSubmatch(prompt); m != nil {
			last = m[1]
		}
		return fmt.Sprintf("What follows from %q?", last), nil
	case stagePost:
		return "a refined interpretation", nil
	case stageAssociation:
		return "flight and the wish to leave", nil
	case stageClue:
		return "freedom", nil
	case stageRelation:
		return "the open sky means freedom", nil
	case stageRanking:
		return "Image_1 has the strongest link.\nANSWER: 1", nil
	}
	return "", fmt.Errorf("unrecognised prompt %q", prompt)
}

func (s *stubLLM) Calls(stage string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[stage]
}

func (s *stubLLM) Prompts(stage string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts[stage]...)
}

type fixture struct {
	captioners []*stubCaptioner
	vqa        *stubVQA
	llm        *stubLLM
	pipeline   *Pipeline
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()

	f := &fixture{
		captioners: []*stubCaptioner{{name: "blip"}, {name: "llava"}, {name: "gpt"}},
		vqa:        &stubVQA{},
		llm:        &stubLLM{},
	}
	return f.build(t, opts)
}

func (f *fixture) build(t *testing.T, opts Options) *fixture {
	t.Helper()

	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	members := make([]describer.Captioner, len(f.captioners))
	for i, c := range f.captioners {
		members[i] = c
	}
	ensemble, err := NewEnsemble(members...)
	if err != nil {
		t.Fatal(err)
	}
	p, err := New(ensemble, f.vqa, f.llm, opts)
	if err != nil {
		t.Fatal(err)
	}
	f.pipeline = p
	return f
}

func (f *fixture) captionCalls() int {
	total := 0
	for _, c := range f.captioners {
		total += c.Calls()
	}
	return total
}
