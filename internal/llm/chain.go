package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/kaiwa/internal/config"
	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/hyperjump/kaiwa/pkg/utils"
	"go.uber.org/zap"
)

const collaboratorName = "llm"

// Chain tries each Chatter in order and returns the first non-empty reply.
type Chain struct {
	chatters []Chatter
	logger   *zap.Logger
}

// NewChain builds a chain over chatters, in priority order.
func NewChain(logger *zap.Logger, chatters ...Chatter) *Chain {
	return &Chain{chatters: chatters, logger: utils.OrNop(logger)}
}

// New builds the provider chain described by cfg. It returns (nil, nil) when no provider is
// configured.
func New(cfg config.LLMConfig, logger *zap.Logger) (*Chain, error) {
	if len(cfg.Providers) == 0 {
		return nil, nil
	}
	chatters := make([]Chatter, 0, len(cfg.Providers))
	for _, p := range cfg.Providers {
		c, err := NewClient(ClientConfig{
			Name:              p.Name,
			BaseURL:           p.BaseURL,
			APIKey:            p.APIKey(),
			Model:             p.Model,
			Timeout:           cfg.Timeout,
			RequestsPerSecond: cfg.RequestsPerSecond,
			MaxRetries:        2,
		}, logger)
		if err != nil {
			return nil, err
		}
		chatters = append(chatters, c)
	}
	return NewChain(logger, chatters...), nil
}

// Name lists the chain's providers.
func (c *Chain) Name() string {
	name := "chain"
	for i, ch := range c.chatters {
		if i == 0 {
			name += ":"
		} else {
			name += ","
		}
		name += ch.Name()
	}
	return name
}

// Len reports the number of providers.
func (c *Chain) Len() int { return len(c.chatters) }

// Chat asks each provider in turn. When every provider fails the result is a CollaboratorError
// joining their errors.
func (c *Chain) Chat(ctx context.Context, messages []Message, opts ChatOptions) (string, error) {
	var errs []error
	for _, ch := range c.chatters {
		text, err := ch.Chat(ctx, messages, opts)
		if err == nil && text != "" {
			return text, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", models.NewCollaboratorError(collaboratorName, "chat", ctxErr)
		}
		if err == nil {
			err = errors.New("empty reply")
		}
		c.logger.Warn("llm provider failed, trying next",
			zap.String("provider", ch.Name()),
			zap.Error(err))
		errs = append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
	}
	if len(errs) == 0 {
		errs = append(errs, errors.New("no providers configured"))
	}
	return "", models.NewCollaboratorError(collaboratorName, "chat", errors.Join(errs...))
}

// Close closes every provider that holds resources.
func (c *Chain) Close() error {
	var errs []error
	for _, ch := range c.chatters {
		if cl, ok := ch.(interface{ Close() error }); ok {
			errs = append(errs, cl.Close())
		}
	}
	return errors.Join(errs...)
}
