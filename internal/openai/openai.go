// Package openai describes images through the OpenAI chat completions API
// using a vision-capable model.
package openai

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"vision2lang/describer"
	"vision2lang/imaging"

	oagc "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const model = oagc.ChatModelGPT4oMini

const captionPrompt = "Describe this image in one or two sentences."

type openai struct {
	oac *oagc.Client
}

var (
	_ describer.Describer = &openai{}

	rl *rateLimiter // For requests to the OpenAI API
)

func Init(httpClient *http.Client) *openai {
	rl = newRateLimiter(20, time.Minute)

	return &openai{
		oac: oagc.NewClient(
			option.WithHTTPClient(httpClient),
		),
	}
}

func (o *openai) Name() string { return "openai" }

func (o *openai) IsHealthy() bool {
	// The API has no cheap health endpoint, assume reachable and let the
	// first request surface connectivity problems.
	return true
}

func (o *openai) Caption(ctx context.Context, img *imaging.Image, maxTokens int) (string, error) {
	return o.complete(ctx, img, captionPrompt, maxTokens)
}

func (o *openai) Answer(ctx context.Context, img *imaging.Image, question string, maxTokens int) (string, error) {
	return o.complete(ctx, img, question, maxTokens)
}

func (o *openai) complete(ctx context.Context, img *imaging.Image, prompt string, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = describer.DefaultMaxTokens
	}

	// Rate limit use of the OpenAI API
	if err := rl.Acquire(ctx); err != nil {
		return "", err
	}

	jpg, err := img.EncodeJPEG()
	if err != nil {
		return "", &describer.InferenceError{Backend: o.Name(), Err: err}
	}
	dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpg)

	params := oagc.ChatCompletionNewParams{
		Model:     oagc.F(model),
		MaxTokens: oagc.Int(int64(maxTokens)),
		Messages: oagc.F([]oagc.ChatCompletionMessageParamUnion{
			oagc.UserMessageParts(
				oagc.TextPart(prompt),
				oagc.ImagePart(dataURL),
			),
		}),
	}

	resp, err := o.oac.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", &describer.InferenceError{Backend: o.Name(), Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &describer.InferenceError{Backend: o.Name(), Err: fmt.Errorf("no choices in response")}
	}

	return resp.Choices[0].Message.Content, nil
}
