package ai

import (
	"context"
	"io"

	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"

	"github.com/zhouzirui/streamchat/internal/config"
	"github.com/zhouzirui/streamchat/internal/model/chat"
)

type openAIStreamer struct {
	client *openai.Client
	model  string
}

func newOpenAIStreamer(cfg config.OpenAIConfig) *openAIStreamer {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &openAIStreamer{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
	}
}

func (s *openAIStreamer) Stream(ctx context.Context, turns []chat.Turn) (TokenStream, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(turns))
	for _, turn := range turns {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: string(turn.Role), Content: turn.Content})
	}

	stream, err := s.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    s.model,
		Messages: msgs,
		Stream:   true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create chat completion stream")
	}
	return &openAIStream{stream: stream}, nil
}

type openAIStream struct {
	stream *openai.ChatCompletionStream
}

// Recv skips chunks that carry no content (role headers, usage).
func (s *openAIStream) Recv() (string, error) {
	for {
		resp, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			return "", errors.Wrap(err, "receive completion chunk")
		}
		if len(resp.Choices) == 0 {
			continue
		}
		if delta := resp.Choices[0].Delta.Content; delta != "" {
			return delta, nil
		}
	}
}

func (s *openAIStream) Close() {
	_ = s.stream.Close()
}
