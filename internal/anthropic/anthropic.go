// Package anthropic implements the describer contracts on the Anthropic
// Messages API. Images are sent inline as base64 blocks.
package anthropic

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"github.com/chriskillpack/dixit/describer"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/time/rate"
)

const (
	DefaultModel             = "claude-3-5-haiku-latest"
	DefaultMaxTokens         = 400
	DefaultRequestsPerMinute = 20

	captionPrompt = "Write a one sentence caption for this image."
)

type Options struct {
	Name              string // defaults to "anthropic"
	APIKey            string // if empty the client reads ANTHROPIC_API_KEY
	BaseURL           string
	Model             string
	MaxTokens         int
	RequestsPerMinute int // zero means DefaultRequestsPerMinute, negative disables the limit

	HttpClient *http.Client // if nil uses http.DefaultClient
}

type Anthropic struct {
	client    sdk.Client
	name      string
	model     string
	maxTokens int

	rl *rate.Limiter
}

var _ describer.Model = &Anthropic{}

func Init(opts Options) *Anthropic {
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

	a := &Anthropic{
		client:    sdk.NewClient(reqOpts...),
		name:      opts.Name,
		model:     opts.Model,
		maxTokens: opts.MaxTokens,
		rl:        newLimiter(opts.RequestsPerMinute),
	}
	if a.name == "" {
		a.name = "anthropic"
	}
	if a.model == "" {
		a.model = DefaultModel
	}
	if a.maxTokens <= 0 {
		a.maxTokens = DefaultMaxTokens
	}
	return a
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

func (a *Anthropic) Name() string { return a.name }

func (a *Anthropic) Model() string { return a.model }

func (a *Anthropic) IsHealthy() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := a.client.Models.Get(ctx, a.model, sdk.ModelGetParams{})
	return err == nil
}

func (a *Anthropic) Caption(ctx context.Context, image []byte) (string, error) {
	return a.Answer(ctx, image, captionPrompt)
}

func (a *Anthropic) Answer(ctx context.Context, image []byte, question string) (string, error) {
	return a.send(ctx,
		sdk.NewImageBlockBase64(mediaType(image), base64.StdEncoding.EncodeToString(image)),
		sdk.NewTextBlock(question))
}

func (a *Anthropic) Complete(ctx context.Context, prompt string) (string, error) {
	return a.send(ctx, sdk.NewTextBlock(prompt))
}

func (a *Anthropic) send(ctx context.Context, blocks ...sdk.ContentBlockParamUnion) (string, error) {
	if err := a.rl.Wait(ctx); err != nil {
		return "", err
	}

	msg, err := a.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(a.model),
		MaxTokens: int64(a.maxTokens),
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(blocks...)},
	})
	if err != nil {
		return "", err
	}

	var out strings.Builder
	for _, block := range msg.Content {
		if text, ok := block.AsAny().(sdk.TextBlock); ok {
			out.WriteString(text.Text)
		}
	}
	if strings.TrimSpace(out.String()) == "" {
		return "", describer.ErrEmptyOutput
	}
	return strings.TrimSpace(out.String()), nil
}

// mediaType sniffs the image format, the API rejects blocks whose declared
// type does not match the data.
func mediaType(image []byte) string {
	switch ct := http.DetectContentType(image); ct {
	case "image/png", "image/gif", "image/webp":
		return ct
	default:
		return "image/jpeg"
	}
}
