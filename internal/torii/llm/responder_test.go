package llm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bdobrica/Torii/internal/torii/llm"
	"github.com/bdobrica/Torii/internal/torii/ops"
)

func TestResponderSendsHistoryWithSystemPrompt(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("auth = %q", auth)
		}
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": "hello!"}},
			},
		})
	}))
	defer srv.Close()

	r := llm.New(llm.Config{BaseURL: srv.URL, APIKey: "test-key", Model: "gpt-4o-mini"})
	reply, err := r.Respond(context.Background(), []ops.ChatMessage{
		{Role: "user", Content: "hi"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if reply != "hello!" {
		t.Fatalf("reply = %q", reply)
	}
	if got.Model != "gpt-4o-mini" {
		t.Errorf("model = %q", got.Model)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "hi" {
		t.Fatalf("messages = %+v", got.Messages)
	}
}

func TestResponderFailuresAreTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	r := llm.New(llm.Config{BaseURL: srv.URL, APIKey: "k", Model: "m"})
	if _, err := r.Respond(context.Background(), nil); !ops.IsTransient(err) {
		t.Fatalf("err = %v, want transient", err)
	}
}

func TestStaticResponder(t *testing.T) {
	s := &llm.StaticResponder{}
	reply, err := s.Respond(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(reply, "approve") {
		t.Fatalf("default help = %q", reply)
	}

	s.Reply = "custom"
	if reply, _ := s.Respond(context.Background(), nil); reply != "custom" {
		t.Fatalf("reply = %q", reply)
	}
}
