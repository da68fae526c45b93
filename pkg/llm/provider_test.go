package llm

import (
	"context"
	"testing"
)

type fakeProvider struct{ name string }

func (f *fakeProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	return make([][]float32, len(texts)), nil
}

func (f *fakeProvider) EmbedSingle(_ context.Context, _ string) ([]float32, error) {
	return []float32{0}, nil
}

func (f *fakeProvider) Chat(_ context.Context, _ ChatRequest) (*ChatResult, error) {
	return &ChatResult{Text: "ok"}, nil
}

func (f *fakeProvider) Generate(_ context.Context, _ string, _ string) (string, error) {
	return "ok", nil
}

func (f *fakeProvider) Name() string { return f.name }

func TestProviderRegistry(t *testing.T) {
	RegisterProvider("fake-full", func(_ map[string]any) (Provider, error) {
		return &fakeProvider{name: "fake-full"}, nil
	})
	RegisterChatProvider("fake-chat", func(_ map[string]any) (ChatProvider, error) {
		return &fakeProvider{name: "fake-chat"}, nil
	})
	RegisterEmbeddingProvider("fake-embed", func(_ map[string]any) (EmbeddingProvider, error) {
		return &fakeProvider{name: "fake-embed"}, nil
	})

	t.Run("full provider resolves for all roles", func(t *testing.T) {
		if _, err := NewProvider("fake-full", nil); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if _, err := NewChatProvider("fake-full", nil); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if _, err := NewEmbeddingProvider("fake-full", nil); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("dedicated factories resolve", func(t *testing.T) {
		chat, err := NewChatProvider("fake-chat", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if chat.Name() != "fake-chat" {
			t.Errorf("expected fake-chat, got %s", chat.Name())
		}

		embed, err := NewEmbeddingProvider("fake-embed", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if embed.Name() != "fake-embed" {
			t.Errorf("expected fake-embed, got %s", embed.Name())
		}
	})

	t.Run("unknown names fail", func(t *testing.T) {
		if _, err := NewProvider("missing", nil); err == nil {
			t.Error("expected error for unknown provider")
		}
		if _, err := NewChatProvider("missing", nil); err == nil {
			t.Error("expected error for unknown chat provider")
		}
		if _, err := NewEmbeddingProvider("missing", nil); err == nil {
			t.Error("expected error for unknown embedding provider")
		}
	})

	t.Run("list includes registered names", func(t *testing.T) {
		names := ListProviders()
		found := map[string]bool{}
		for _, n := range names {
			found[n] = true
		}
		for _, want := range []string{"fake-full", "fake-chat", "fake-embed"} {
			if !found[want] {
				t.Errorf("expected %s in provider list", want)
			}
		}
	})
}
