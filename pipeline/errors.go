package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyResponse is wrapped when a backend returns nothing usable.
	ErrEmptyResponse = errors.New("empty response")

	ErrNoCandidates        = errors.New("no candidate images")
	ErrPrecomputedMismatch = errors.New("precomputed records do not match candidates")
)

// CaptioningBackendError reports a failed ensemble member. No partial
// caption set is returned alongside it.
type CaptioningBackendError struct {
	Backend string
	Err     error
}

func (e *CaptioningBackendError) Error() string {
	return fmt.Sprintf("captioning backend %q: %s", e.Backend, e.Err)
}

func (e *CaptioningBackendError) Unwrap() error { return e.Err }

// VQABackendError reports a failed question to the VQA backend.
type VQABackendError struct {
	Backend  string
	Question string
	Err      error
}

func (e *VQABackendError) Error() string {
	return fmt.Sprintf("vqa backend %q answering %q: %s", e.Backend, e.Question, e.Err)
}

func (e *VQABackendError) Unwrap() error { return e.Err }

// LLMBackendError reports a failed, timed out or empty completion. Stage is
// the prompt template that was being completed.
type LLMBackendError struct {
	Backend string
	Stage   string
	Err     error
}

func (e *LLMBackendError) Error() string {
	return fmt.Sprintf("llm backend %q at stage %s: %s", e.Backend, e.Stage, e.Err)
}

func (e *LLMBackendError) Unwrap() error { return e.Err }

// MalformedVerdictError is returned when no candidate can be extracted from
// the ranking response. The pipeline never picks a default candidate.
type MalformedVerdictError struct {
	Verdict    string
	Candidates int
}

func (e *MalformedVerdictError) Error() string {
	return fmt.Sprintf("no candidate in 0..%d found in verdict %q", e.Candidates-1, e.Verdict)
}

// ClueLengthError is returned when the composed clue is still longer than
// the word limit after all retries.
type ClueLengthError struct {
	Clue     string
	Words    int
	Limit    int
	Attempts int
}

func (e *ClueLengthError) Error() string {
	return fmt.Sprintf("clue %q has %d words, limit is %d (after %d attempts)", e.Clue, e.Words, e.Limit, e.Attempts)
}
