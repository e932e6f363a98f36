package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"salva/internal/apperr"
	"salva/internal/config"
	"salva/internal/logger"
	"salva/internal/service"
)

// Client talks to an Ollama server and implements service.Generator.
type Client struct {
	log        *logger.Logger
	baseURL    string
	model      string
	httpClient *http.Client
}

var _ service.Generator = (*Client)(nil)

func New(cfg config.OllamaConfig, log *logger.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		log:        log.With("client", "ollama"),
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Format  string         `json:"format,omitempty"`
	Options map[string]any `json:"options,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Generate sends one non-streaming completion request and returns the raw text.
func (c *Client) Generate(ctx context.Context, prompt string, temperature float64) (string, error) {
	body := generateRequest{
		Model:   c.model,
		Prompt:  prompt,
		Stream:  false,
		Format:  "json",
		Options: map[string]any{"temperature": temperature},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return "", fmt.Errorf("encode ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", &buf)
	if err != nil {
		return "", fmt.Errorf("build ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", apperr.External("ollama request: %v", err)
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return "", apperr.External("read ollama response: %v", readErr)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", apperr.External("ollama status %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", apperr.External("decode ollama response: %v", err)
	}
	c.log.Debug("ollama generate", "model", c.model, "duration", time.Since(start), "chars", len(out.Response))
	return out.Response, nil
}

// Propose asks the model for a day plan. Malformed model output yields a nil proposal.
func (c *Client) Propose(ctx context.Context, pc service.PlanContext) (*service.Proposal, error) {
	text, err := c.Generate(ctx, BuildDayPrompt(pc), 1.0)
	if err != nil {
		return nil, err
	}
	p := ParseProposal(text)
	if p == nil {
		c.log.Warn("unusable ollama proposal", "date", pc.Date, "response", truncate(text, 500))
		return nil, nil
	}
	c.log.Info("ollama proposal", "date", pc.Date, "tasks", len(p.Tasks))
	return p, nil
}

// Warm loads the model into memory with a throwaway prompt.
func (c *Client) Warm(ctx context.Context) error {
	_, err := c.Generate(ctx, "Warm model", 0)
	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
