package fantasy

import (
	"context"
	"errors"
	"testing"

	core "charm.land/fantasy"

	"themeforge/pkg/config"
	"themeforge/pkg/convert"
	"themeforge/pkg/prompt"
	providertypes "themeforge/pkg/provider/types"
)

type fakeLanguageModelProvider struct {
	model     core.LanguageModel
	err       error
	lastID    string
	callCount int
}

func (f *fakeLanguageModelProvider) LanguageModel(ctx context.Context, modelID string) (core.LanguageModel, error) {
	f.callCount++
	f.lastID = modelID
	if f.err != nil {
		return nil, f.err
	}

	return f.model, nil
}

type fakeLanguageModel struct{}

func (f *fakeLanguageModel) Generate(context.Context, core.Call) (*core.Response, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeLanguageModel) Stream(context.Context, core.Call) (core.StreamResponse, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeLanguageModel) GenerateObject(context.Context, core.ObjectCall) (*core.ObjectResponse, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeLanguageModel) StreamObject(context.Context, core.ObjectCall) (core.ObjectStreamResponse, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeLanguageModel) Provider() string { return "openai" }
func (f *fakeLanguageModel) Model() string    { return "gpt-5.2" }

func TestNewRequiresAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	cfg := config.Default()
	if _, err := New(cfg); err == nil {
		t.Fatal("expected missing api key error")
	}
}

func TestNewRejectsForeignModel(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg := config.Default()
	cfg.Gateway.Model = "anthropic/claude-sonnet-4-5"
	if _, err := New(cfg); err == nil {
		t.Fatal("expected error for non-openai model")
	}
}

func TestNewAppliesGenerationSettings(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg := config.Default()
	cfg.Gateway.MaxTokens = 2048
	cfg.Gateway.Temperature = 0.4

	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if client.modelID != "gpt-5.2" {
		t.Fatalf("modelID = %q", client.modelID)
	}
	if client.maxOutputTokens == nil || *client.maxOutputTokens != 2048 {
		t.Fatalf("maxOutputTokens = %v", client.maxOutputTokens)
	}
	if client.temperature == nil || *client.temperature != 0.4 {
		t.Fatalf("temperature = %v", client.temperature)
	}
}

func TestHealth(t *testing.T) {
	provider := &fakeLanguageModelProvider{model: &fakeLanguageModel{}}
	client := &Client{provider: provider, modelID: "gpt-5.2"}

	if err := client.Health(context.Background()); err != nil {
		t.Fatalf("Health error: %v", err)
	}
	if provider.lastID != "gpt-5.2" {
		t.Fatalf("model id = %q", provider.lastID)
	}

	provider.err = errors.New("bad key")
	if err := client.Health(context.Background()); err == nil {
		t.Fatal("expected health error")
	}
}

func TestCompleteBuildsPromptAndReturnsUsage(t *testing.T) {
	provider := &fakeLanguageModelProvider{model: &fakeLanguageModel{}}
	var captured core.Call
	client := &Client{
		provider: provider,
		modelID:  "gpt-5.2",
		generate: func(ctx context.Context, model core.LanguageModel, call core.Call) (*core.Response, error) {
			captured = call
			return &core.Response{
				Content: core.ResponseContent{core.TextContent{Text: ` {"text":"Done"} `}},
				Usage:   core.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
			}, nil
		},
	}

	completion, err := client.Complete(context.Background(), providertypes.Request{
		System: "You are a theme designer.",
		Messages: []convert.APIMessage{
			{Role: prompt.RoleUser, Parts: []convert.Part{
				{Type: convert.PartImage, Image: "data:image/png;base64,aGk="},
				{Type: convert.PartImage, Image: "https://example.com/shot.png"},
				{Type: convert.PartText, Text: "make it blue"},
			}},
			{Role: prompt.RoleAssistant, Text: "Done"},
			{Role: prompt.RoleUser},
		},
	})
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if completion.Text != `{"text":"Done"}` {
		t.Fatalf("text = %q", completion.Text)
	}
	if completion.Metadata.Usage == nil || completion.Metadata.Usage.TotalTokens != 15 {
		t.Fatalf("usage = %#v", completion.Metadata.Usage)
	}

	// The empty trailing user message is dropped.
	if len(captured.Prompt) != 3 {
		t.Fatalf("prompt length = %d, want 3", len(captured.Prompt))
	}
	if captured.Prompt[0].Role != core.MessageRoleSystem {
		t.Fatalf("first role = %q", captured.Prompt[0].Role)
	}
	user := captured.Prompt[1]
	if user.Role != core.MessageRoleUser || len(user.Content) != 3 {
		t.Fatalf("user message = %#v", user)
	}
	file, ok := user.Content[0].(core.FilePart)
	if !ok || file.MediaType != "image/png" || string(file.Data) != "hi" {
		t.Fatalf("first part = %#v", user.Content[0])
	}
	if text, ok := user.Content[1].(core.TextPart); !ok || text.Text != "Reference image: https://example.com/shot.png" {
		t.Fatalf("second part = %#v", user.Content[1])
	}
	if captured.Prompt[2].Role != core.MessageRoleAssistant {
		t.Fatalf("third role = %q", captured.Prompt[2].Role)
	}
}

func TestCompleteErrors(t *testing.T) {
	provider := &fakeLanguageModelProvider{model: &fakeLanguageModel{}}
	client := &Client{
		provider: provider,
		modelID:  "gpt-5.2",
		generate: func(context.Context, core.LanguageModel, core.Call) (*core.Response, error) {
			return &core.Response{Content: core.ResponseContent{core.ReasoningContent{Text: "hmm"}}}, nil
		},
	}
	req := providertypes.Request{Messages: []convert.APIMessage{{Role: prompt.RoleUser, Parts: []convert.Part{{Type: convert.PartText, Text: "x"}}}}}

	if _, err := client.Complete(context.Background(), providertypes.Request{}); err == nil {
		t.Fatal("expected error for empty request")
	}
	if _, err := client.Complete(context.Background(), req); err == nil {
		t.Fatal("expected error for empty completion")
	}

	client.generate = func(context.Context, core.LanguageModel, core.Call) (*core.Response, error) {
		return nil, context.Canceled
	}
	if _, err := client.Complete(context.Background(), req); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestExtractText(t *testing.T) {
	content := core.ResponseContent{
		core.ReasoningContent{Text: "ignore me"},
		core.TextContent{Text: "  first  "},
		core.TextContent{Text: ""},
		core.TextContent{Text: "second"},
	}

	got := extractText(content)
	if got != "first\nsecond" {
		t.Fatalf("extractText() = %q", got)
	}
}
