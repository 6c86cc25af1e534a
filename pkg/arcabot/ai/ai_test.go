package ai

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"google.golang.org/genai"
)

type fakeProvider struct {
	reply string
	err   error
	calls int
}

func (f *fakeProvider) Complete(context.Context, string, []Turn, string) (string, error) {
	f.calls++
	return f.reply, f.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	t.Run("missing key yields disabled", func(t *testing.T) {
		p, err := New(ctx, Config{Provider: "gemini"}, quietLogger())
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		if _, err := p.Complete(ctx, "", nil, "oi"); !errors.Is(err, ErrDisabled) {
			t.Errorf("expected ErrDisabled, got %v", err)
		}
	})

	t.Run("none provider", func(t *testing.T) {
		p, err := New(ctx, Config{Provider: "none", APIKey: "k"}, quietLogger())
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		if _, ok := p.(Disabled); !ok {
			t.Errorf("expected Disabled, got %T", p)
		}
	})

	t.Run("unknown provider", func(t *testing.T) {
		if _, err := New(ctx, Config{Provider: "llama", APIKey: "k"}, quietLogger()); err == nil {
			t.Error("expected error for unknown provider")
		}
	})

	t.Run("openai provider is wrapped", func(t *testing.T) {
		p, err := New(ctx, Config{Provider: "openai", APIKey: "sk-test"}, quietLogger())
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		if _, ok := p.(*breakerProvider); !ok {
			t.Errorf("expected breaker wrapper, got %T", p)
		}
	})
}

func TestKeyEnvVar(t *testing.T) {
	if got := KeyEnvVar("openai"); got != "OPENAI_API_KEY" {
		t.Errorf("expected OPENAI_API_KEY, got %s", got)
	}
	if got := KeyEnvVar("gemini"); got != "GEMINI_API_KEY" {
		t.Errorf("expected GEMINI_API_KEY, got %s", got)
	}
}

func TestWithBreaker(t *testing.T) {
	ctx := context.Background()
	inner := &fakeProvider{err: errors.New("upstream 500")}
	p := WithBreaker(inner, "test", BreakerConfig{MaxFailures: 2, OpenTimeout: time.Hour, HalfOpenRequests: 1}, quietLogger())

	for i := 0; i < 2; i++ {
		if _, err := p.Complete(ctx, "", nil, "x"); err == nil {
			t.Fatal("expected upstream error")
		}
	}

	_, err := p.Complete(ctx, "", nil, "x")
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("expected open circuit, got %v", err)
	}
	if inner.calls != 2 {
		t.Errorf("expected open circuit to skip the provider, got %d calls", inner.calls)
	}

	t.Run("success passes through", func(t *testing.T) {
		ok := WithBreaker(&fakeProvider{reply: "olá"}, "ok", BreakerConfig{}, quietLogger())
		reply, err := ok.Complete(ctx, "", nil, "oi")
		if err != nil || reply != "olá" {
			t.Errorf("expected olá, got %q (%v)", reply, err)
		}
	})
}

func TestWithTimeout(t *testing.T) {
	slow := providerFunc(func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	p := withTimeout{next: slow, timeout: 10 * time.Millisecond}
	if _, err := p.Complete(context.Background(), "", nil, "x"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

type providerFunc func(ctx context.Context) (string, error)

func (f providerFunc) Complete(ctx context.Context, _ string, _ []Turn, _ string) (string, error) {
	return f(ctx)
}

func TestGeminiContents(t *testing.T) {
	history := []Turn{
		{Role: RoleUser, Text: "oi"},
		{Role: RoleAssistant, Text: "olá!"},
	}
	contents := geminiContents(history, "tudo bem?")

	if len(contents) != 3 {
		t.Fatalf("expected 3 contents, got %d", len(contents))
	}
	wantRoles := []string{string(genai.RoleUser), string(genai.RoleModel), string(genai.RoleUser)}
	for i, c := range contents {
		if string(c.Role) != wantRoles[i] {
			t.Errorf("content %d: expected role %s, got %s", i, wantRoles[i], c.Role)
		}
	}
	if contents[2].Parts[0].Text != "tudo bem?" {
		t.Errorf("expected new message last, got %q", contents[2].Parts[0].Text)
	}
}

func TestOpenAIMessages(t *testing.T) {
	msgs := openAIMessages("seja breve", []Turn{{Role: RoleUser, Text: "a"}, {Role: RoleAssistant, Text: "b"}}, "c")
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(msgs))
	}
	if msgs[0].OfSystem == nil || msgs[1].OfUser == nil || msgs[2].OfAssistant == nil || msgs[3].OfUser == nil {
		t.Errorf("unexpected message roles: %+v", msgs)
	}

	if got := openAIMessages("", nil, "c"); len(got) != 1 {
		t.Errorf("expected only the new message without system instruction, got %d", len(got))
	}
}
