package prompts

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Candidate is one card as presented to the ranking prompt.
type Candidate struct {
	Description string `yaml:"description"`
	Explanation string `yaml:"explanation"`
}

// CandidateLabel returns the label used for the candidate at index, e.g.
// "Image_0". Verdicts refer to candidates by this label.
func CandidateLabel(index int) string {
	return fmt.Sprintf("Image_%d", index)
}

// CandidateListing renders candidates as a YAML sequence of single-key
// mappings, one per candidate, keyed by CandidateLabel:
//
//	- Image_0:
//	    description: ...
//	    explanation: ...
func CandidateListing(candidates []Candidate) (string, error) {
	list := make([]map[string]Candidate, len(candidates))
	for i, c := range candidates {
		list[i] = map[string]Candidate{CandidateLabel(i): c}
	}

	out, err := yaml.Marshal(list)
	if err != nil {
		return "", fmt.Errorf("marshaling candidates: %w", err)
	}
	return string(out), nil
}
