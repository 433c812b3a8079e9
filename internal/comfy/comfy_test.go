package comfy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

const testWorkflow = `{
	"3": {"class_type": "KSampler", "inputs": {"seed": 42}},
	"6": {"class_type": "CLIPTextEncode", "inputs": {"text": "placeholder", "clip": ["4", 1]}}
}`

func writeWorkflow(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "workflow.json")
	if err := os.WriteFile(path, []byte(testWorkflow), 0o644); err != nil {
		t.Fatalf("failed to write workflow: %v", err)
	}
	return path
}

func TestQueuePrompt_SplicesPromptIntoNode(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/prompt" {
			t.Errorf("expected path /prompt, got %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, err := NewClient(Config{BaseURL: server.URL, WorkflowFile: writeWorkflow(t)})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	if err := client.QueuePrompt(context.Background(), "a melancholy seascape"); err != nil {
		t.Fatalf("QueuePrompt failed: %v", err)
	}

	graph, ok := got["prompt"].(map[string]any)
	if !ok {
		t.Fatal("request body has no prompt graph")
	}
	node := graph["6"].(map[string]any)
	inputs := node["inputs"].(map[string]any)
	if inputs["text"] != "a melancholy seascape" {
		t.Errorf("prompt node text = %q, want %q", inputs["text"], "a melancholy seascape")
	}
	// Other inputs survive the splice.
	if _, ok := inputs["clip"]; !ok {
		t.Error("splice dropped the clip input")
	}
}

func TestQueuePrompt_TemplateNotMutated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, err := NewClient(Config{BaseURL: server.URL, WorkflowFile: writeWorkflow(t)})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	if err := client.QueuePrompt(context.Background(), "first"); err != nil {
		t.Fatalf("QueuePrompt failed: %v", err)
	}

	node := client.workflow["6"].(map[string]any)
	inputs := node["inputs"].(map[string]any)
	if inputs["text"] != "placeholder" {
		t.Errorf("template was mutated: text = %q", inputs["text"])
	}
}

func TestQueuePrompt_ServerErrorSurfaced(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "queue full", http.StatusInternalServerError)
	}))
	defer server.Close()

	client, err := NewClient(Config{BaseURL: server.URL, WorkflowFile: writeWorkflow(t)})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	if err := client.QueuePrompt(context.Background(), "anything"); err == nil {
		t.Error("expected error from 500 response, got nil")
	}
}

func TestQueuePrompt_NoWorkflowConfigured(t *testing.T) {
	client, err := NewClient(Config{BaseURL: "http://localhost:1"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if err := client.QueuePrompt(context.Background(), "anything"); err == nil {
		t.Error("expected error when no workflow template is loaded")
	}
}

func TestNewClient_MissingPromptNode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workflow.json")
	if err := os.WriteFile(path, []byte(`{"3": {"inputs": {}}}`), 0o644); err != nil {
		t.Fatalf("failed to write workflow: %v", err)
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, err := NewClient(Config{BaseURL: server.URL, WorkflowFile: path})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if err := client.QueuePrompt(context.Background(), "anything"); err == nil {
		t.Error("expected error when prompt node is missing")
	}
}
