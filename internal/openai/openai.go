package openai

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"github.com/chriskillpack/dixit/describer"

	oagc "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"golang.org/x/time/rate"
)

const (
	DefaultModel             = "gpt-4o-mini"
	DefaultMaxTokens         = 400
	DefaultRequestsPerMinute = 20

	captionPrompt = "Write a one sentence caption for this image."
)

type Options struct {
	Name              string // defaults to "openai"
	APIKey            string // if empty the client reads OPENAI_API_KEY
	BaseURL           string // for OpenAI compatible servers
	Model             string
	Seed              int
	MaxTokens         int
	RequestsPerMinute int // zero means DefaultRequestsPerMinute, negative disables the limit

	HttpClient *http.Client // if nil uses http.DefaultClient
}

type OpenAI struct {
	oac       oagc.Client
	name      string
	model     string
	seed      int
	maxTokens int

	rl *rate.Limiter // For requests to the OpenAI API
}

var _ describer.Model = &OpenAI{}

func Init(opts Options) *OpenAI {
	httpClient := opts.HttpClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	reqOpts := []option.RequestOption{option.WithHTTPClient(httpClient)}
	if key := strings.TrimSpace(opts.APIKey); key != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(key))
	}
	if base := strings.TrimSpace(opts.BaseURL); base != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(base))
	}

	o := &OpenAI{
		oac:       oagc.NewClient(reqOpts...),
		name:      opts.Name,
		model:     opts.Model,
		seed:      opts.Seed,
		maxTokens: opts.MaxTokens,
		rl:        newLimiter(opts.RequestsPerMinute),
	}
	if o.name == "" {
		o.name = "openai"
	}
	if o.model == "" {
		o.model = DefaultModel
	}
	if o.maxTokens <= 0 {
		o.maxTokens = DefaultMaxTokens
	}
	return o
}

func newLimiter(rpm int) *rate.Limiter {
	switch {
	case rpm < 0:
		return rate.NewLimiter(rate.Inf, 1)
	case rpm == 0:
		rpm = DefaultRequestsPerMinute
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 2)
}

func (o *OpenAI) Name() string { return o.name }

func (o *OpenAI) Model() string { return o.model }

// IsHealthy checks that the configured model is visible to the API key.
func (o *OpenAI) IsHealthy() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := o.oac.Models.Get(ctx, o.model)
	return err == nil
}

func (o *OpenAI) Caption(ctx context.Context, image []byte) (string, error) {
	return o.Answer(ctx, image, captionPrompt)
}

func (o *OpenAI) Answer(ctx context.Context, image []byte, question string) (string, error) {
	return o.chat(ctx, oagc.UserMessage([]oagc.ChatCompletionContentPartUnionParam{
		oagc.TextContentPart(question),
		oagc.ImageContentPart(oagc.ChatCompletionContentPartImageImageURLParam{URL: dataURL(image)}),
	}))
}

func (o *OpenAI) Complete(ctx context.Context, prompt string) (string, error) {
	return o.chat(ctx, oagc.UserMessage(prompt))
}

func (o *OpenAI) chat(ctx context.Context, msg oagc.ChatCompletionMessageParamUnion) (string, error) {
	// Rate limit use of the OpenAI API
	if err := o.rl.Wait(ctx); err != nil {
		return "", err
	}

	params := oagc.ChatCompletionNewParams{
		Messages:            []oagc.ChatCompletionMessageParamUnion{msg},
		Model:               oagc.ChatModel(o.model),
		MaxCompletionTokens: oagc.Int(int64(o.maxTokens)),
		Seed:                oagc.Int(int64(o.seed)),
	}
	resp, err := o.oac.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", describer.ErrEmptyOutput
	}

	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		return "", describer.ErrEmptyOutput
	}
	return out, nil
}

func dataURL(image []byte) string {
	return "data:" + http.DetectContentType(image) + ";base64," + base64.StdEncoding.EncodeToString(image)
}
