package inference

import (
	"context"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"

	"github.com/guardian-genomics/guardian-cli/pkg/ollama"
)

// Backend is the narrow interface the engine scores through. Implementations
// are synchronous per call; the engine owns timeouts and concurrency.
type Backend interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// OllamaBackend classifies through a local Ollama server. This is the
// default backend: inference stays on-host and no patient-adjacent data
// leaves the machine.
type OllamaBackend struct {
	client      ollama.Client
	model       string
	temperature float64
}

// NewOllamaBackend creates a backend over an Ollama client with a pinned
// sampling temperature.
func NewOllamaBackend(client ollama.Client, model string, temperature float64) *OllamaBackend {
	return &OllamaBackend{client: client, model: model, temperature: temperature}
}

func (b *OllamaBackend) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := b.client.Generate(ctx, ollama.GenerateRequest{
		Model:   b.model,
		Prompt:  system + "\n\n" + user,
		Stream:  false,
		Options: &ollama.Options{Temperature: b.temperature},
	})
	if err != nil {
		return "", eris.Wrap(err, "inference: ollama generate")
	}
	return resp.Response, nil
}

// AnthropicBackend classifies through the Anthropic API for deployments
// without local GPU capacity.
type AnthropicBackend struct {
	client      sdk.Client
	model       string
	temperature float64
}

// NewAnthropicBackend creates a backend over the Anthropic SDK with a
// pinned sampling temperature.
func NewAnthropicBackend(apiKey, model string, temperature float64) *AnthropicBackend {
	return &AnthropicBackend{
		client:      sdk.NewClient(option.WithAPIKey(apiKey)),
		model:       model,
		temperature: temperature,
	}
}

func (b *AnthropicBackend) Complete(ctx context.Context, system, user string) (string, error) {
	msg, err := b.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:       sdk.Model(b.model),
		MaxTokens:   256,
		Temperature: sdk.Float(b.temperature),
		System:      []sdk.TextBlockParam{{Text: system}},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(user)),
		},
	})
	if err != nil {
		return "", eris.Wrap(err, "inference: anthropic create message")
	}

	var out string
	for _, block := range msg.Content {
		if block.Type == "text" {
			out += block.Text
		}
	}
	return out, nil
}
