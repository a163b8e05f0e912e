package ai

import (
	"context"
	"io"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/pkg/errors"

	"github.com/zhouzirui/streamchat/internal/config"
	"github.com/zhouzirui/streamchat/internal/model/chat"
)

// arkStreamer runs system prompt, history and query through an eino chain.
type arkStreamer struct {
	chain compose.Runnable[map[string]any, *schema.Message]
}

func newArkStreamer(ctx context.Context, cfg config.ArkConfig) (*arkStreamer, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create chat model")
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to compile chat chain")
	}
	return &arkStreamer{chain: runnable}, nil
}

func (s *arkStreamer) Stream(ctx context.Context, turns []chat.Turn) (TokenStream, error) {
	stream, err := s.chain.Stream(ctx, buildChainInput(turns))
	if err != nil {
		return nil, errors.Wrap(err, "failed to stream AI chain output")
	}
	return &arkStream{reader: stream}, nil
}

// buildChainInput splits turns into the template variables. The last user
// turn is the query; a leading system turn is the system prompt.
func buildChainInput(turns []chat.Turn) map[string]any {
	system := ""
	if len(turns) > 0 && turns[0].Role == chat.RoleSystem {
		system = turns[0].Content
		turns = turns[1:]
	}

	query := ""
	if n := len(turns); n > 0 && turns[n-1].Role == chat.RoleUser {
		query = turns[n-1].Content
		turns = turns[:n-1]
	}

	return map[string]any{
		"system":  system,
		"history": buildHistoryMessages(turns),
		"query":   query,
	}
}

func buildHistoryMessages(turns []chat.Turn) []*schema.Message {
	if len(turns) == 0 {
		return nil
	}

	history := make([]*schema.Message, 0, len(turns))
	for _, turn := range turns {
		switch turn.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(turn.Content))
		case chat.RoleAssistant:
			history = append(history, schema.AssistantMessage(turn.Content, nil))
		case chat.RoleSystem:
			history = append(history, schema.SystemMessage(turn.Content))
		}
	}
	return history
}

type arkStream struct {
	reader *schema.StreamReader[*schema.Message]
}

func (s *arkStream) Recv() (string, error) {
	for {
		msg, err := s.reader.Recv()
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			return "", errors.Wrap(err, "receive chain chunk")
		}
		if msg != nil && msg.Content != "" {
			return msg.Content, nil
		}
	}
}

func (s *arkStream) Close() {
	s.reader.Close()
}
