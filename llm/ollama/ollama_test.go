package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"interrogation/config"
	"interrogation/llm"
	"interrogation/models"
)

func TestFlattenPrompt(t *testing.T) {
	got := flattenPrompt("You are Ada.", []models.Message{
		{Role: models.RoleUser, Content: "Where were you?"},
		{Role: models.RoleAssistant, Content: "Upstairs."},
	})
	want := "You are Ada.\nuser: Where were you?\nassistant: Upstairs."
	if got != want {
		t.Errorf("flattenPrompt() = %q, want %q", got, want)
	}
}

func newTestServer(t *testing.T, gotStream *bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Model  string `json:"model"`
			Prompt string `json:"prompt"`
			Stream *bool  `json:"stream"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		*gotStream = req.Stream != nil && *req.Stream

		w.Header().Set("Content-Type", "application/x-ndjson")
		if *gotStream {
			fmt.Fprintln(w, `{"model":"llama3.1","response":"In the ","done":false}`)
			fmt.Fprintln(w, `{"model":"llama3.1","response":"garden.","done":false}`)
			fmt.Fprintln(w, `{"model":"llama3.1","response":"","done":true}`)
			return
		}
		fmt.Fprintln(w, `{"model":"llama3.1","response":"In the garden.","done":true}`)
	}))
}

func TestGenerate(t *testing.T) {
	var streamed bool
	srv := newTestServer(t, &streamed)
	defer srv.Close()

	backend, err := New(context.Background(), config.Inference{Service: "ollama", Model: "llama3.1", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := backend.Generate(context.Background(), llm.Request{
		SystemPrompt: "sys",
		Messages:     []models.Message{{Role: models.RoleUser, Content: "Where?"}},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if streamed {
		t.Error("Generate should request a non-streaming reply")
	}
	if got.Text != "In the garden." || got.InputTokens != nil || got.OutputTokens != nil {
		t.Errorf("completion = %+v", got)
	}
}

func TestGenerateStream(t *testing.T) {
	var streamed bool
	srv := newTestServer(t, &streamed)
	defer srv.Close()

	backend, err := New(context.Background(), config.Inference{Service: "ollama", Model: "llama3.1", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var chunks []string
	got, err := backend.(llm.StreamingBackend).GenerateStream(context.Background(), llm.Request{
		Messages: []models.Message{{Role: models.RoleUser, Content: "Where?"}},
	}, func(c string) error {
		chunks = append(chunks, c)
		return nil
	})
	if err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}
	if !streamed || got.Text != "In the garden." || len(chunks) != 2 {
		t.Errorf("streamed=%v text=%q chunks=%q", streamed, got.Text, chunks)
	}
}

func TestNewRejectsBadURL(t *testing.T) {
	if _, err := New(context.Background(), config.Inference{Model: "llama3.1", BaseURL: "localhost"}); err == nil {
		t.Error("New accepted a URL without scheme")
	}
}
