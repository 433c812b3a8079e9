// Package comfy queues image-generation jobs on a ComfyUI server. A
// workflow template JSON is loaded once; each job gets the creature's
// drawing prompt spliced into the template's prompt node before the
// whole graph is POSTed to /prompt.
package comfy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"
)

// Client queues prompts against a ComfyUI instance.
type Client struct {
	baseURL    string
	promptNode string // node id whose inputs.text carries the positive prompt
	workflow   map[string]any
	httpClient *http.Client
}

// Config holds ComfyUI client configuration.
type Config struct {
	BaseURL      string        // e.g. http://localhost:8188
	WorkflowFile string        // path to the workflow template JSON
	PromptNode   string        // node id for the positive prompt (default "6")
	Timeout      time.Duration // queue request ceiling (default 5s)
}

// NewClient loads the workflow template and returns a ready client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8188"
	}
	if cfg.PromptNode == "" {
		cfg.PromptNode = "6"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}

	var workflow map[string]any
	if cfg.WorkflowFile != "" {
		data, err := os.ReadFile(cfg.WorkflowFile)
		if err != nil {
			return nil, fmt.Errorf("read workflow template: %w", err)
		}
		if err := json.Unmarshal(data, &workflow); err != nil {
			return nil, fmt.Errorf("parse workflow template: %w", err)
		}
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		promptNode: cfg.PromptNode,
		workflow:   workflow,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// QueuePrompt splices the drawing prompt into the workflow and queues it.
func (c *Client) QueuePrompt(ctx context.Context, prompt string) error {
	if c.workflow == nil {
		return fmt.Errorf("no workflow template configured")
	}

	graph, err := c.withPrompt(prompt)
	if err != nil {
		return err
	}

	body, err := json.Marshal(map[string]any{"prompt": graph})
	if err != nil {
		return fmt.Errorf("marshal workflow: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/prompt", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("queue prompt: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("comfyui returned status %d", resp.StatusCode)
	}
	return nil
}

// withPrompt returns a copy of the workflow with the prompt node's text
// replaced. The template itself is never mutated.
func (c *Client) withPrompt(prompt string) (map[string]any, error) {
	// Deep-copy through JSON; workflows are small.
	raw, err := json.Marshal(c.workflow)
	if err != nil {
		return nil, fmt.Errorf("copy workflow: %w", err)
	}
	var graph map[string]any
	if err := json.Unmarshal(raw, &graph); err != nil {
		return nil, fmt.Errorf("copy workflow: %w", err)
	}

	node, ok := graph[c.promptNode].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("workflow has no prompt node %q", c.promptNode)
	}
	inputs, ok := node["inputs"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("prompt node %q has no inputs", c.promptNode)
	}
	inputs["text"] = prompt
	return graph, nil
}
