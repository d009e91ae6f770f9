package nl2sql

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type capturedRequest struct {
	Path          string
	Authorization string
	Body          chatRequest
}

func newCompletionServer(t *testing.T, status int, reply string) (*httptest.Server, *[]capturedRequest) {
	t.Helper()
	captured := &[]capturedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body chatRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		*captured = append(*captured, capturedRequest{
			Path:          r.URL.Path,
			Authorization: r.Header.Get("Authorization"),
			Body:          body,
		})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv, captured
}

func completionReply(content string) string {
	raw, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{{"message": map[string]string{"content": content}}},
	})
	return string(raw)
}

func TestTranslateSendsPromptAndStripsFences(t *testing.T) {
	srv, captured := newCompletionServer(t, http.StatusOK, completionReply("```sql\nSELECT * FROM employees;\n```"))
	client, err := NewOpenAIClient(OpenAIConfig{BaseURL: srv.URL + "/openai/", APIKey: "k1", SQLModel: "sql-model"})
	if err != nil {
		t.Fatalf("NewOpenAIClient() error = %v", err)
	}

	result, err := client.Translate(context.Background(), Request{Question: "list employees", Schema: "Table: employees"})
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if result.SQL != "SELECT * FROM employees;" {
		t.Fatalf("SQL = %q", result.SQL)
	}
	if result.Model != "sql-model" {
		t.Fatalf("Model = %q", result.Model)
	}

	if len(*captured) != 1 {
		t.Fatalf("requests = %d", len(*captured))
	}
	req := (*captured)[0]
	if req.Path != "/openai/v1/chat/completions" {
		t.Fatalf("path = %q", req.Path)
	}
	if req.Authorization != "Bearer k1" {
		t.Fatalf("authorization = %q", req.Authorization)
	}
	if req.Body.Temperature != 0 || req.Body.MaxTokens != 512 {
		t.Fatalf("temperature=%v max_tokens=%d", req.Body.Temperature, req.Body.MaxTokens)
	}
	if len(req.Body.Messages) != 2 || req.Body.Messages[0].Content != translateSystemPrompt {
		t.Fatalf("messages = %#v", req.Body.Messages)
	}
	if !strings.Contains(req.Body.Messages[1].Content, `Query: "list employees"`) {
		t.Fatalf("user prompt = %q", req.Body.Messages[1].Content)
	}
}

func TestExplainAndChatUseTheirOwnModes(t *testing.T) {
	srv, captured := newCompletionServer(t, http.StatusOK, completionReply("  It lists rows.  "))
	client, err := NewOpenAIClient(OpenAIConfig{BaseURL: srv.URL, APIKey: "k1", SQLModel: "sql-model", ChatModel: "chat-model"})
	if err != nil {
		t.Fatalf("NewOpenAIClient() error = %v", err)
	}

	explanation, err := client.Explain(context.Background(), "SELECT 1")
	if err != nil {
		t.Fatalf("Explain() error = %v", err)
	}
	if explanation != "It lists rows." {
		t.Fatalf("Explain() = %q", explanation)
	}
	answer, err := client.Chat(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if answer != "It lists rows." {
		t.Fatalf("Chat() = %q", answer)
	}

	explainReq, chatReq := (*captured)[0].Body, (*captured)[1].Body
	if explainReq.Temperature != explainTemperature || explainReq.Model != "sql-model" {
		t.Fatalf("explain request = %+v", explainReq)
	}
	if explainReq.Messages[0].Content != "You are an SQL teacher." {
		t.Fatalf("explain system prompt = %q", explainReq.Messages[0].Content)
	}
	if chatReq.Temperature != chatTemperature || chatReq.Model != "chat-model" {
		t.Fatalf("chat request = %+v", chatReq)
	}
	if chatReq.Messages[1].Content != "hello" {
		t.Fatalf("chat user message = %q", chatReq.Messages[1].Content)
	}
}

func TestTranslateSurfacesAPIErrors(t *testing.T) {
	srv, _ := newCompletionServer(t, http.StatusTooManyRequests, `{"error":{"message":"quota exceeded"}}`)
	client, err := NewOpenAIClient(OpenAIConfig{BaseURL: srv.URL, APIKey: "k1"})
	if err != nil {
		t.Fatalf("NewOpenAIClient() error = %v", err)
	}

	_, err = client.Translate(context.Background(), Request{Question: "q"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "status=429") || !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("error = %v", err)
	}
}

func TestTranslateRejectsResponseWithoutChoices(t *testing.T) {
	srv, _ := newCompletionServer(t, http.StatusOK, `{"choices":[]}`)
	client, err := NewOpenAIClient(OpenAIConfig{BaseURL: srv.URL, APIKey: "k1"})
	if err != nil {
		t.Fatalf("NewOpenAIClient() error = %v", err)
	}
	if _, err := client.Translate(context.Background(), Request{Question: "q"}); err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestTranslatePassesEmptyContentThrough(t *testing.T) {
	srv, _ := newCompletionServer(t, http.StatusOK, completionReply(""))
	client, err := NewOpenAIClient(OpenAIConfig{BaseURL: srv.URL, APIKey: "k1"})
	if err != nil {
		t.Fatalf("NewOpenAIClient() error = %v", err)
	}
	result, err := client.Translate(context.Background(), Request{Question: "q"})
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if result.SQL != "" {
		t.Fatalf("SQL = %q", result.SQL)
	}
}

func TestNewOpenAIClientWithoutKeyIsNotConfigured(t *testing.T) {
	_, err := NewOpenAIClient(OpenAIConfig{BaseURL: "https://example.com"})
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("error = %v, want ErrNotConfigured", err)
	}
}

func TestDisabledFailsEveryMode(t *testing.T) {
	var model Model = Disabled{}
	if _, err := model.Translate(context.Background(), Request{}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("Translate() error = %v", err)
	}
	if _, err := model.Explain(context.Background(), "SELECT 1"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("Explain() error = %v", err)
	}
	if _, err := model.Chat(context.Background(), "hi"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("Chat() error = %v", err)
	}
}
