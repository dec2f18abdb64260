// Package prompts holds the prompt templates used by the clue and guess
// pipelines. Every template has a fixed set of required variables and
// rendering fails if any of them is missing.
package prompts

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"text/template"
)

// Template names.
const (
	Interpretation            = "interpretation"
	SessionHint               = "session_hint"
	SessionQuestion           = "session_question"
	SessionSeedQuestion       = "session_seed_question"
	PostSessionInterpretation = "post_session_interpretation"
	Association               = "association"
	Clue                      = "clue"
	ClueRelation              = "clue_relation"
	Ranking                   = "ranking"
)

var (
	ErrUnknownTemplate = errors.New("unknown prompt template")
	ErrMissingVariable = errors.New("missing prompt variable")
)

type definition struct {
	required []string
	text     string
}

var definitions = map[string]definition{
	Interpretation: {
		required: []string{"image_descriptions", "ai_models"},
		text: `I give you a list of descriptions of the same image by different AI models ({{.ai_models}}). Here is the list of descriptions:
{{.image_descriptions}}
Can you describe in detail how do you imagine this image looks like? What characters and objects are on the image, and what they are doing? Be specific. By the way, it might be not an image of the real world.`,
	},

	SessionHint: {
		required: []string{"image_interpretation"},
		text: `You can't see this photo but you are given its description by AI models:
{{.image_interpretation}}
What additional information do you need to be able to tell a compelling story about what is happening in this photo?`,
	},

	SessionQuestion: {
		required: []string{"image_interpretation", "hint", "chat_history", "answer"},
		text: `Your name is Bob, you're talking with Alice to understand a photo. Your task is to get more information about the photo from Alice by asking her short questions. Hint - a good question is about the actions happening in the photo and what a specific character is doing, or about other objects or living creatures that are present in the photo.
{{.image_interpretation}}
{{.hint}}
{{.chat_history}}
Alice: {{.answer}}
Alice: You can ask me one short question about the photo.
Bob:`,
	},

	SessionSeedQuestion: {
		required: []string{"clue"},
		text:     `How does this image relate to the phrase '{{.clue}}'?`,
	},

	PostSessionInterpretation: {
		required: []string{"captions", "qna_session", "ai_models"},
		text: `Your task is to generate a detailed description of an image that you don't see. Here is the descriptions generated by AI models ({{.ai_models}}), they can be inaccurate:
{{.captions}}
Here is the QnA session with an AI model that can answer question about the image (may be inaccurate as well):
{{.qna_session}}
Can you describe in detail how do you imagine this image looks like? What characters and objects are on the image, and what they are doing? Be specific. By the way, it might be not an image of the real world.`,
	},

	Association: {
		required: []string{"image_interpretation"},
		text: `For an image with a following detailed description:
{{.image_interpretation}}
What does it associate with for you? Be abstract and creative! Any philosophical thoughts? What does it remind you about?`,
	},

	Clue: {
		required: []string{"association", "personality", "word_limit"},
		text: `Given the following association for an image
{{.association}}
Considering the provided personality traits : {{.personality}}, summarize the specified association. Pay attention to how the personality influences the dynamics, goals, and overall atmosphere of the association. Summarize association in one short phrase, no more than {{.word_limit}} words. More than {{.word_limit}} words is a violation of the rules. Reply with the phrase only.`,
	},

	ClueRelation: {
		required: []string{"interpretation", "clue"},
		text: `Given an image with the following description:
{{.interpretation}}
Explain how this image is associated with phrase "{{.clue}}"? Any movie, book, or historical facts you can think of?`,
	},

	Ranking: {
		required: []string{"clue", "candidates"},
		text: `Given the following image descriptions, explanations how those images can be associated with the phrase "{{.clue}}", all in the YAML format:

{{.candidates}}
Which image has the best and most logical explanation and is best described by the phrase "{{.clue}}"? Explain your choice. Give your final answer as the image name, then end your reply with a last line of exactly the form "ANSWER: <index>" where <index> is the number after "Image_".`,
	},
}

var templates = func() map[string]*template.Template {
	t := make(map[string]*template.Template, len(definitions))
	for name, def := range definitions {
		t[name] = template.Must(template.New(name).Option("missingkey=error").Parse(def.text))
	}
	return t
}()

// Names returns the sorted names of all templates.
func Names() []string {
	return slices.Sorted(maps.Keys(definitions))
}

// Required returns the variables template name needs to render.
func Required(name string) ([]string, error) {
	def, ok := definitions[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownTemplate, name)
	}
	return slices.Clone(def.required), nil
}

// Render fills template name with vars. Every required variable must be
// present in vars, empty values are allowed. Extra variables are ignored.
func Render(name string, vars map[string]string) (string, error) {
	def, ok := definitions[name]
	if !ok {
		supported := strings.Join(Names(), ", ")
		return "", fmt.Errorf("%w %q, supported templates are [%s]", ErrUnknownTemplate, name, supported)
	}

	var missing []string
	for _, key := range def.required {
		if _, ok := vars[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("%w: template %q needs %s", ErrMissingVariable, name, strings.Join(missing, ", "))
	}

	sb := strings.Builder{}
	if err := templates[name].Execute(&sb, vars); err != nil {
		return "", fmt.Errorf("rendering %q: %w", name, err)
	}
	return sb.String(), nil
}
