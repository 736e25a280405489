package inference

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// LLMGenerator adapts a langchaingo model to Generator.
type LLMGenerator struct {
	log     *zap.Logger
	model   llms.Model
	limiter *rate.Limiter
	options []llms.CallOption
}

func NewLLMGenerator(log *zap.Logger, model llms.Model, rateLimit float64, options ...llms.CallOption) *LLMGenerator {
	return &LLMGenerator{
		log:     log,
		model:   model,
		limiter: newLimiter(rateLimit),
		options: options,
	}
}

// NewOllamaChat builds a generator on langchaingo's Ollama client, which uses
// the chat API instead of /api/generate.
func NewOllamaChat(log *zap.Logger, config Config) (*LLMGenerator, error) {
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	llm, err := ollama.New(
		ollama.WithModel(config.Model),
		ollama.WithServerURL(config.BaseURL()),
		ollama.WithHTTPClient(&http.Client{Timeout: config.Timeout}),
	)
	if err != nil {
		return nil, fmt.Errorf("create Ollama model: %w", err)
	}
	return NewLLMGenerator(log, llm, config.RateLimit), nil
}

func (g *LLMGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", newError(CodeRequestFailed, "rate limit wait", err)
	}

	g.log.Debug("Sending prompt.", zap.String("prompt", prompt))
	completion, err := llms.GenerateFromSinglePrompt(ctx, g.model, prompt, g.options...)
	if err != nil {
		return "", classify(err, "generate content")
	}
	g.log.Debug("Received reply.", zap.String("response", completion))
	return completion, nil
}
