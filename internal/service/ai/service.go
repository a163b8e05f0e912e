package ai

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/streamchat/internal/config"
	"github.com/zhouzirui/streamchat/internal/model/chat"
)

// ErrProviderUnavailable is returned when no provider has credentials.
var ErrProviderUnavailable = errors.New("no LLM provider configured")

// TokenStream yields reply tokens. Recv returns io.EOF once the reply is
// complete.
type TokenStream interface {
	Recv() (string, error)
	Close()
}

// Streamer opens a completion stream for a turn history.
type Streamer interface {
	Stream(ctx context.Context, turns []chat.Turn) (TokenStream, error)
}

// Service fronts the configured provider.
type Service struct {
	provider config.Provider
	streamer Streamer
}

// NewService creates the provider selected by cfg.
func NewService(ctx context.Context, cfg config.LLMConfig) (*Service, error) {
	provider, ok := cfg.Active()
	if !ok {
		return nil, ErrProviderUnavailable
	}

	var (
		streamer Streamer
		err      error
	)
	switch provider {
	case config.ProviderOpenAI:
		streamer = newOpenAIStreamer(cfg.OpenAI)
	case config.ProviderArk:
		streamer, err = newArkStreamer(ctx, cfg.Ark)
	default:
		return nil, ErrProviderUnavailable
	}
	if err != nil {
		return nil, errors.Wrapf(err, "init %s provider", provider)
	}

	log.Info().Str("provider", string(provider)).Msg("LLM provider initialized")
	return &Service{provider: provider, streamer: streamer}, nil
}

// NewServiceWithStreamer wraps an existing streamer.
func NewServiceWithStreamer(name config.Provider, streamer Streamer) *Service {
	return &Service{provider: name, streamer: streamer}
}

// Provider names the active provider.
func (s *Service) Provider() config.Provider {
	return s.provider
}

// Stream opens a reply stream for turns.
func (s *Service) Stream(ctx context.Context, turns []chat.Turn) (TokenStream, error) {
	if s == nil || s.streamer == nil {
		return nil, ErrProviderUnavailable
	}
	if len(turns) == 0 {
		return nil, errors.New("empty turn history")
	}
	return s.streamer.Stream(ctx, turns)
}

// Collect drains a stream into one string.
func Collect(stream TokenStream) (string, error) {
	defer stream.Close()

	var out []byte
	for {
		token, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return string(out), nil
		}
		if err != nil {
			return string(out), err
		}
		out = append(out, token...)
	}
}
