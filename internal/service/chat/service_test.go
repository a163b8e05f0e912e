package chat_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/zhouzirui/streamchat/internal/model/chat"
	chatservice "github.com/zhouzirui/streamchat/internal/service/chat"
)

const systemPrompt = "You are a helpful AI assistant."

func TestPromptSeedsSystemTurn(t *testing.T) {
	svc := chatservice.NewService(systemPrompt, 20)
	ctx := context.Background()

	prompt := svc.Prompt(ctx, "s1", "hello")

	if len(prompt) != 2 {
		t.Fatalf("unexpected prompt length: %d", len(prompt))
	}
	if prompt[0].Role != chat.RoleSystem || prompt[0].Content != systemPrompt {
		t.Fatalf("unexpected system turn: %+v", prompt[0])
	}
	if prompt[1].Role != chat.RoleUser || prompt[1].Content != "hello" {
		t.Fatalf("unexpected user turn: %+v", prompt[1])
	}

	if _, err := svc.GetSession(ctx, "s1"); err != nil {
		t.Fatalf("GetSession err: %v", err)
	}
	turns, err := svc.LoadTranscript(ctx, "s1")
	if err != nil {
		t.Fatalf("LoadTranscript err: %v", err)
	}
	if len(turns) != 0 {
		t.Fatalf("prompt must not record turns, got %d", len(turns))
	}
}

func TestCommitRecordsExchange(t *testing.T) {
	svc := chatservice.NewService(systemPrompt, 20)
	ctx := context.Background()

	svc.Prompt(ctx, "s1", "hi")
	if err := svc.Commit(ctx, "s1", "hi", "hello there"); err != nil {
		t.Fatalf("Commit err: %v", err)
	}

	prompt := svc.Prompt(ctx, "s1", "how are you?")
	want := []chat.Turn{
		{Role: chat.RoleSystem, Content: systemPrompt},
		{Role: chat.RoleUser, Content: "hi"},
		{Role: chat.RoleAssistant, Content: "hello there"},
		{Role: chat.RoleUser, Content: "how are you?"},
	}
	if fmt.Sprint(prompt) != fmt.Sprint(want) {
		t.Fatalf("unexpected prompt:\n got %+v\nwant %+v", prompt, want)
	}
}

func TestCommitEmptyReplyKeepsUserTurnOnly(t *testing.T) {
	svc := chatservice.NewService(systemPrompt, 20)
	ctx := context.Background()

	svc.Prompt(ctx, "s1", "hi")
	if err := svc.Commit(ctx, "s1", "hi", ""); err != nil {
		t.Fatalf("Commit err: %v", err)
	}

	turns, _ := svc.LoadTranscript(ctx, "s1")
	if len(turns) != 1 || turns[0].Role != chat.RoleUser {
		t.Fatalf("unexpected turns: %+v", turns)
	}
}

func TestHistoryLimit(t *testing.T) {
	svc := chatservice.NewService(systemPrompt, 4)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		msg := fmt.Sprintf("q%d", i)
		svc.Prompt(ctx, "s1", msg)
		if err := svc.Commit(ctx, "s1", msg, fmt.Sprintf("a%d", i)); err != nil {
			t.Fatalf("Commit err: %v", err)
		}
	}

	prompt := svc.Prompt(ctx, "s1", "next")
	if len(prompt) != 6 {
		t.Fatalf("expected system + 4 turns + user, got %d", len(prompt))
	}
	if prompt[1].Content != "q3" || prompt[4].Content != "a4" {
		t.Fatalf("window kept the wrong turns: %+v", prompt)
	}
}

func TestHistoryLimitKeepsWholeExchanges(t *testing.T) {
	svc := chatservice.NewService(systemPrompt, 3)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		msg := fmt.Sprintf("q%d", i)
		svc.Prompt(ctx, "s1", msg)
		if err := svc.Commit(ctx, "s1", msg, fmt.Sprintf("a%d", i)); err != nil {
			t.Fatalf("Commit err: %v", err)
		}
	}

	turns, err := svc.LoadTranscript(ctx, "s1")
	if err != nil {
		t.Fatalf("LoadTranscript err: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected the last exchange only, got %+v", turns)
	}
	if turns[0].Role != chat.RoleUser || turns[0].Content != "q1" {
		t.Fatalf("window must start on a user turn, got %+v", turns[0])
	}
}

func TestHistoryLimitWithUnansweredTurns(t *testing.T) {
	svc := chatservice.NewService(systemPrompt, 2)
	ctx := context.Background()

	svc.Prompt(ctx, "s1", "q0")
	if err := svc.Commit(ctx, "s1", "q0", ""); err != nil {
		t.Fatalf("Commit err: %v", err)
	}
	svc.Prompt(ctx, "s1", "q1")
	if err := svc.Commit(ctx, "s1", "q1", "a1"); err != nil {
		t.Fatalf("Commit err: %v", err)
	}

	turns, _ := svc.LoadTranscript(ctx, "s1")
	if len(turns) != 2 || turns[0].Content != "q1" || turns[1].Content != "a1" {
		t.Fatalf("unexpected window %+v", turns)
	}
}

func TestEmptySessionIDUsesDefault(t *testing.T) {
	svc := chatservice.NewService(systemPrompt, 20)
	ctx := context.Background()

	svc.Prompt(ctx, "", "hi")

	if _, err := svc.GetSession(ctx, chatservice.DefaultSessionID); err != nil {
		t.Fatalf("default session missing: %v", err)
	}
}

func TestClear(t *testing.T) {
	svc := chatservice.NewService(systemPrompt, 20)
	ctx := context.Background()

	if err := svc.Clear(ctx, "missing"); !errors.Is(err, chatservice.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	svc.Prompt(ctx, "s1", "hi")
	_ = svc.Commit(ctx, "s1", "hi", "hello")
	if err := svc.Clear(ctx, "s1"); err != nil {
		t.Fatalf("Clear err: %v", err)
	}

	prompt := svc.Prompt(ctx, "s1", "again")
	if len(prompt) != 2 {
		t.Fatalf("history not cleared: %+v", prompt)
	}
}

func TestCommitUnknownSession(t *testing.T) {
	svc := chatservice.NewService(systemPrompt, 20)
	if err := svc.Commit(context.Background(), "ghost", "hi", "x"); !errors.Is(err, chatservice.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}
