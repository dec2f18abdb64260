package openai

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/chriskillpack/dixit/describer"
)

const completion = `{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"gpt-4o-mini","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":%s}}]}`

type chatRequest struct {
	Model               string `json:"model"`
	MaxCompletionTokens int    `json:"max_completion_tokens"`
	Messages            []struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	} `json:"messages"`
}

func newServer(t *testing.T, content string, got *chatRequest) *OpenAI {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(got); err != nil {
			t.Errorf("Decoding request: %s", err)
		}
		quoted, _ := json.Marshal(content)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(strings.Replace(completion, "%s", string(quoted), 1)))
	}))
	t.Cleanup(srv.Close)

	return Init(Options{
		APIKey:            "test",
		BaseURL:           srv.URL + "/v1/",
		Model:             "gpt-test",
		MaxTokens:         50,
		RequestsPerMinute: -1,
		HttpClient:        srv.Client(),
	})
}

func TestComplete(t *testing.T) {
	var got chatRequest
	o := newServer(t, "  freedom \n", &got)

	out, err := o.Complete(t.Context(), "Summarize the association")
	if err != nil {
		t.Fatal(err)
	}
	if expected, actual := "freedom", out; expected != actual {
		t.Errorf("Expected completion %q, got %q", expected, actual)
	}
	if expected, actual := "gpt-test", got.Model; expected != actual {
		t.Errorf("Expected model %q, got %q", expected, actual)
	}
	if expected, actual := 50, got.MaxCompletionTokens; expected != actual {
		t.Errorf("Expected max tokens %d, got %d", expected, actual)
	}
	if len(got.Messages) != 1 || got.Messages[0].Role != "user" {
		t.Fatalf("Expected one user message, got %+v", got.Messages)
	}
	if !strings.Contains(string(got.Messages[0].Content), "Summarize the association") {
		t.Errorf("Expected prompt in message content %s", got.Messages[0].Content)
	}
}

func TestAnswer(t *testing.T) {
	var got chatRequest
	o := newServer(t, "A bird sits on a wire.", &got)

	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\x0dIHDR")
	out, err := o.Answer(t.Context(), png, "What sits on the wire?")
	if err != nil {
		t.Fatal(err)
	}
	if expected, actual := "A bird sits on a wire.", out; expected != actual {
		t.Errorf("Expected answer %q, got %q", expected, actual)
	}

	content := string(got.Messages[0].Content)
	if !strings.Contains(content, "What sits on the wire?") {
		t.Errorf("Expected question in content %s", content)
	}
	if !strings.Contains(content, "data:image/png;base64,") {
		t.Errorf("Expected png data url in content %s", content)
	}
}

func TestEmptyOutput(t *testing.T) {
	var got chatRequest
	o := newServer(t, "", &got)

	if _, err := o.Caption(t.Context(), []byte("jpeg")); !errors.Is(err, describer.ErrEmptyOutput) {
		t.Errorf("Expected ErrEmptyOutput, got %v", err)
	}
}

func TestDefaults(t *testing.T) {
	o := Init(Options{APIKey: "test"})
	if expected, actual := "openai", o.Name(); expected != actual {
		t.Errorf("Expected name %q, got %q", expected, actual)
	}
	if expected, actual := DefaultModel, o.Model(); expected != actual {
		t.Errorf("Expected model %q, got %q", expected, actual)
	}
	if expected, actual := DefaultMaxTokens, o.maxTokens; expected != actual {
		t.Errorf("Expected max tokens %d, got %d", expected, actual)
	}
}
