package pipeline

import (
	"strings"

	"github.com/chriskillpack/dixit/prompts"
)

// DefaultPersonality is used when no personality is given to ComposeClue.
const DefaultPersonality = "generic"

// Caption is the output of a single ensemble member.
type Caption struct {
	Model string `yaml:"model" json:"model"`
	Text  string `yaml:"text" json:"text"`
}

// CaptionSet holds one caption per ensemble member, in configured order.
type CaptionSet []Caption

// Models returns the member names in order.
func (cs CaptionSet) Models() []string {
	names := make([]string, len(cs))
	for i, c := range cs {
		names[i] = c.Model
	}
	return names
}

// String renders the set as labeled lines, "Model: caption".
func (cs CaptionSet) String() string {
	lines := make([]string, len(cs))
	for i, c := range cs {
		lines[i] = c.Model + ": " + c.Text
	}
	return strings.Join(lines, "\n")
}

// Turn is one question asked of the VQA model and its answer.
type Turn struct {
	Question string `yaml:"question" json:"question"`
	Answer   string `yaml:"answer" json:"answer"`
}

// Transcript is the ordered list of turns of a question answering session.
type Transcript []Turn

// String renders the transcript as alternating "Question:" and "Answer:"
// lines.
func (t Transcript) String() string {
	sb := strings.Builder{}
	for i, turn := range t {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString("Question: ")
		sb.WriteString(turn.Question)
		sb.WriteString("\nAnswer: ")
		sb.WriteString(turn.Answer)
	}
	return sb.String()
}

// ClueRecord bundles every artifact produced while composing a clue for a
// card. It is also the shape of the precomputed data for cards in a hand.
type ClueRecord struct {
	Captions                 CaptionSet `yaml:"captions" json:"captions"`
	PreSessionInterpretation string     `yaml:"pre_session_interpretation" json:"pre_session_interpretation"`
	Transcript               Transcript `yaml:"transcript" json:"transcript"`
	// SessionHeld is false when the turn budget was zero and no question
	// answering session took place. Interpretation then equals
	// PreSessionInterpretation.
	SessionHeld    bool   `yaml:"session_held" json:"session_held"`
	Interpretation string `yaml:"interpretation" json:"interpretation"`
	Association    string `yaml:"association" json:"association"`
	Clue           string `yaml:"clue" json:"clue"`
	Personality    string `yaml:"personality" json:"personality"`
	RunID          string `yaml:"run_id,omitempty" json:"run_id,omitempty"`
}

// CandidateReasoning is the per-card output of the guess scorer.
type CandidateReasoning struct {
	Captions                 CaptionSet `yaml:"captions" json:"captions"`
	PreSessionInterpretation string     `yaml:"pre_session_interpretation" json:"pre_session_interpretation"`
	Transcript               Transcript `yaml:"transcript" json:"transcript"`
	SessionHeld              bool       `yaml:"session_held" json:"session_held"`
	Interpretation           string     `yaml:"interpretation" json:"interpretation"`
	ClueRelation             string     `yaml:"clue_relation" json:"clue_relation"`
	// Precomputed is set when captions, transcript and interpretation were
	// taken from a stored ClueRecord instead of being generated.
	Precomputed bool `yaml:"precomputed" json:"precomputed"`
}

// GuessRecord is the result of one guess invocation.
type GuessRecord struct {
	Clue        string               `yaml:"clue" json:"clue"`
	PerImage    []CandidateReasoning `yaml:"per_image_reasoning" json:"per_image_reasoning"`
	FinalAnswer string               `yaml:"final_answer" json:"final_answer"`
	// Choice is the candidate index parsed from FinalAnswer.
	Choice int    `yaml:"choice" json:"choice"`
	RunID  string `yaml:"run_id,omitempty" json:"run_id,omitempty"`
}

// ChoiceLabel returns the label of the chosen candidate, e.g. "Image_1".
func (g *GuessRecord) ChoiceLabel() string {
	return prompts.CandidateLabel(g.Choice)
}

// ClueRelations concatenates the clue relation explanations of every
// candidate, in order.
func (g *GuessRecord) ClueRelations() string {
	parts := make([]string, len(g.PerImage))
	for i, r := range g.PerImage {
		parts[i] = prompts.CandidateLabel(i) + ": " + r.ClueRelation
	}
	return strings.Join(parts, "\n")
}
