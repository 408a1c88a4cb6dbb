package llm

import (
	"github.com/pkg/errors"
	"github.com/tmc/langchaingo/llms/openai"
)

// OpenAIConfig configures an OpenAI compatible model.
type OpenAIConfig struct {
	Model   string `mapstructure:"model"`
	Token   string `mapstructure:"token"`
	BaseURL string `mapstructure:"base_url"`
}

// NewOpenAI returns a Completer whose default model is an OpenAI compatible
// endpoint.
func NewOpenAI(cfg OpenAIConfig, opts ...Option) (*Completer, error) {
	var clientOpts []openai.Option
	if cfg.Model != "" {
		clientOpts = append(clientOpts, openai.WithModel(cfg.Model))
	}
	if cfg.Token != "" {
		clientOpts = append(clientOpts, openai.WithToken(cfg.Token))
	}
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, openai.WithBaseURL(cfg.BaseURL))
	}
	model, err := openai.New(clientOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create openai client")
	}
	return New(model, opts...), nil
}
