package pipeline

import (
	"regexp"
	"strconv"
)

var (
	answerLineRE = regexp.MustCompile(`(?im)^[\s*_>#-]*ANSWER\**\s*:\s*\**\s*(?:Image_)?(\d+)\b`)
	imageLabelRE = regexp.MustCompile(`Image_(\d+)`)
)

// ParseVerdict extracts the chosen candidate index from a ranking response
// over n candidates. The last "ANSWER: <index>" line wins. Responses without
// one fall back to the first "Image_<index>" mention. A missing or out of
// range index is a MalformedVerdictError.
func ParseVerdict(verdict string, n int) (int, error) {
	if m := answerLineRE.FindAllStringSubmatch(verdict, -1); len(m) > 0 {
		return verdictIndex(m[len(m)-1][1], verdict, n)
	}
	if m := imageLabelRE.FindStringSubmatch(verdict); m != nil {
		return verdictIndex(m[1], verdict, n)
	}
	return 0, &MalformedVerdictError{Verdict: verdict, Candidates: n}
}

func verdictIndex(s, verdict string, n int) (int, error) {
	idx, err := strconv.Atoi(s)
	if err != nil || idx < 0 || idx >= n {
		return 0, &MalformedVerdictError{Verdict: verdict, Candidates: n}
	}
	return idx, nil
}
