package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/genai"

	"github.com/askdb/askdb/internal/config"
)

func TestOpenAIClientSendsMessagesAndReturnsContent(t *testing.T) {
	var captured chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Fatalf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer k" {
			t.Fatalf("Authorization = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"SELECT 1"}}]}`))
	}))
	defer server.Close()

	client, err := NewOpenAIClient(OpenAIConfig{BaseURL: server.URL + "/", APIKey: "k", Model: "m"})
	if err != nil {
		t.Fatalf("NewOpenAIClient() error = %v", err)
	}
	text, err := client.Generate(context.Background(), []Message{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: "question"},
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if text != "SELECT 1" {
		t.Fatalf("Generate() = %q", text)
	}
	if captured.Model != "m" || captured.Temperature != 0 || len(captured.Messages) != 2 {
		t.Fatalf("request = %+v", captured)
	}
	if captured.Messages[0].Role != "system" || captured.Messages[1].Content != "question" {
		t.Fatalf("messages = %+v", captured.Messages)
	}
	if client.Info().Provider != "openai" {
		t.Fatalf("Info() = %+v", client.Info())
	}
}

func TestOpenAIClientReportsHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client, err := NewOpenAIClient(OpenAIConfig{BaseURL: server.URL, APIKey: "k"})
	if err != nil {
		t.Fatalf("NewOpenAIClient() error = %v", err)
	}
	_, err = client.Generate(context.Background(), []Message{{Role: RoleUser, Content: "q"}})
	if err == nil || !strings.Contains(err.Error(), "status=429") {
		t.Fatalf("Generate() error = %v", err)
	}
}

func TestOpenAIClientRejectsEmptyContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  "}}]}`))
	}))
	defer server.Close()

	client, _ := NewOpenAIClient(OpenAIConfig{BaseURL: server.URL, APIKey: "k"})
	if _, err := client.Generate(context.Background(), nil); !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("Generate() error = %v", err)
	}
}

func TestNewOpenAIClientRequiresAPIKey(t *testing.T) {
	if _, err := NewOpenAIClient(OpenAIConfig{}); err == nil {
		t.Fatal("expected error without api key")
	}
}

type fakeGenerator struct {
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
	text     string
	err      error
}

func (f *fakeGenerator) GenerateContent(_ context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.contents = contents
	f.config = cfg
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: genai.NewContentFromText(f.text, genai.RoleModel)}},
	}, nil
}

func TestGeminiClientMapsSystemInstructionAndTemperature(t *testing.T) {
	fake := &fakeGenerator{text: "SELECT Name FROM Artist"}
	client := newGeminiClient(fake, GeminiConfig{})

	text, err := client.Generate(context.Background(), []Message{
		{Role: RoleSystem, Content: "convert to SQL"},
		{Role: RoleUser, Content: "names of artists"},
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if text != "SELECT Name FROM Artist" {
		t.Fatalf("Generate() = %q", text)
	}
	if fake.model != "gemini-2.5-flash" {
		t.Fatalf("model = %q", fake.model)
	}
	if len(fake.contents) != 1 || fake.contents[0].Parts[0].Text != "names of artists" {
		t.Fatalf("contents = %+v", fake.contents)
	}
	if fake.config.SystemInstruction == nil || fake.config.SystemInstruction.Parts[0].Text != "convert to SQL" {
		t.Fatalf("SystemInstruction = %+v", fake.config.SystemInstruction)
	}
	if fake.config.Temperature == nil || *fake.config.Temperature != 0 {
		t.Fatalf("Temperature = %v", fake.config.Temperature)
	}
}

func TestGeminiClientErrors(t *testing.T) {
	client := newGeminiClient(&fakeGenerator{err: errors.New("unavailable")}, GeminiConfig{Model: "gemini-x"})
	if _, err := client.Generate(context.Background(), []Message{{Role: RoleUser, Content: "q"}}); err == nil {
		t.Fatal("expected error")
	}

	client = newGeminiClient(&fakeGenerator{text: ""}, GeminiConfig{})
	if _, err := client.Generate(context.Background(), []Message{{Role: RoleUser, Content: "q"}}); !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("Generate() error = %v", err)
	}
}

func TestNewRejectsUnknownProviderAndMissingKey(t *testing.T) {
	if _, err := New(context.Background(), config.AIConfig{Provider: "watson", APIKey: "k"}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
	if _, err := New(context.Background(), config.AIConfig{Provider: config.ProviderOpenAI}); err == nil {
		t.Fatal("expected error for missing api key")
	}
}

func TestNewBuildsInstrumentedOpenAIClient(t *testing.T) {
	model, err := New(context.Background(), config.AIConfig{Provider: config.ProviderOpenAI, APIKey: "k", Model: "m"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, ok := model.(*instrumented); !ok {
		t.Fatalf("New() = %T, want instrumented", model)
	}
	if Instrument(model) != model {
		t.Fatal("Instrument() should not double wrap")
	}
	if model.Info().Model != "m" {
		t.Fatalf("Info() = %+v", model.Info())
	}
}
