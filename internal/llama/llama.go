// Package llama talks to a llama.cpp server. A server started with a
// multimodal projector (llava, BLIP style models) can caption and answer
// questions about images, any server can complete text.
package llama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"strings"

	"github.com/chriskillpack/dixit/describer"
)

const (
	promptPreamble = `This is a conversation between User and Llama, a friendly chatbot. Llama is helpful, kind, honest, good at writing, and never fails to answer any requests immediately and with precision.

User:`
	promptSuffix = `
Llama:`

	imagePreamble = `A chat between a curious human and an artificial intelligence assistant. The assistant gives helpful, detailed, and polite answers to the human's questions.
USER:`
	imageSuffix = `
ASSISTANT:`

	// imageID ties the image_data entry to its placeholder in the prompt.
	imageID          = 10
	imagePlaceholder = "[img-10]"

	captionQuestion = "Write a one sentence caption for this image."
)

type jsonmap map[string]any

// These were lifted from the web inspector for the server UI
var defaultparams = jsonmap{
	"n_predict":         400,
	"n_probs":           0,
	"temperature":       0.7,
	"stop":              []string{"</s>", "Llama:", "User:", "USER:"},
	"repeat_last_n":     256,
	"repeat_penalty":    1.18,
	"top_k":             40,
	"top_p":             0.5,
	"tfs_z":             1,
	"typical_p":         1,
	"presence_penalty":  0,
	"frequency_penalty": 0,
	"mirostat":          0,
	"mirostat_tau":      5,
	"mirostat_eta":      0.1,
	"grammar":           "",
	"slot_id":           -1,
	"cache_prompt":      true,
}

type Options struct {
	Name      string // defaults to "llama"
	SrvAddr   string
	Seed      int
	MaxTokens int // overrides n_predict when positive

	HttpClient *http.Client // if nil uses http.DefaultClient
}

type Llama struct {
	name      string
	srvAddr   string
	seed      int
	maxTokens int

	client *http.Client
}

var _ describer.Model = &Llama{}

func Init(opts Options) *Llama {
	l := &Llama{
		name:      opts.Name,
		srvAddr:   strings.TrimSuffix(opts.SrvAddr, "/"),
		seed:      opts.Seed,
		maxTokens: opts.MaxTokens,
		client:    opts.HttpClient,
	}
	if l.name == "" {
		l.name = "llama"
	}
	if l.client == nil {
		l.client = http.DefaultClient
	}
	return l
}

func (l *Llama) Name() string { return l.name }

func (l *Llama) IsHealthy() bool {
	resp, err := l.client.Get(l.srvAddr + "/health")
	if err != nil {
		return false
	}
	resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

func (l *Llama) Caption(ctx context.Context, image []byte) (string, error) {
	return l.Answer(ctx, image, captionQuestion)
}

func (l *Llama) Answer(ctx context.Context, image []byte, question string) (string, error) {
	imb64 := base64.StdEncoding.EncodeToString(image)
	return l.sendRequest(ctx, imagePreamble+imagePlaceholder+question+imageSuffix, false, jsonmap{
		"image_data": []jsonmap{
			{
				"data": imb64, "id": imageID,
			},
		},
	})
}

// Complete sends a streaming completion request for a plain text prompt.
func (l *Llama) Complete(ctx context.Context, prompt string) (string, error) {
	return l.sendRequest(ctx, queryPrompt(prompt), true, jsonmap{})
}

// Use this with a text prompt
func queryPrompt(prompt string) string {
	return promptPreamble + prompt + promptSuffix
}

func (l *Llama) sendRequest(ctx context.Context, prompt string, stream bool, keys jsonmap) (string, error) {
	data := maps.Clone(defaultparams)
	maps.Copy(data, keys)
	data["prompt"] = prompt
	data["stream"] = stream
	data["seed"] = l.seed
	if l.maxTokens > 0 {
		data["n_predict"] = l.maxTokens
	}

	buf := bytes.NewBuffer(make([]byte, 0, 2_000_000)) // The buffer will be resized by Encode
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	err := enc.Encode(&data)
	if err != nil {
		return "", err
	}
	br := bytes.NewReader(buf.Bytes())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.srvAddr+"/completion", br)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s: unexpected status %s", l.name, resp.Status)
	}

	content := new(bytes.Buffer)
	respbody := struct {
		Content string
		Stop    bool
	}{}

	lr := bufio.NewScanner(resp.Body)
	lr.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for !respbody.Stop {
		// Read in one line
		if !lr.Scan() {
			if err := lr.Err(); err != nil {
				return "", err
			}
			return "", fmt.Errorf("%s: response ended before stop", l.name)
		}
		line := lr.Text()
		// The empty line appears after a JSON body
		if len(line) == 0 {
			continue
		}
		if stream {
			var found bool
			line, found = strings.CutPrefix(line, "data: ")
			if !found {
				return "", fmt.Errorf("missing `data: ` prefix")
			}
		}

		dec := json.NewDecoder(bytes.NewBufferString(line))
		if err := dec.Decode(&respbody); err != nil {
			return "", err
		}
		content.WriteString(respbody.Content)
	}

	out := strings.TrimSpace(content.String())
	if out == "" {
		return "", describer.ErrEmptyOutput
	}
	return out, nil
}
