package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/triage-engine/internal/domain"
)

// OllamaClient classifies tickets against a local Ollama instance, keeping
// ticket text entirely on-premise.
type OllamaClient struct {
	endpoint string
	model    string
	client   *http.Client
	retry    retryPolicy
	logger   *zap.Logger
}

// OllamaOptions tunes the local client.
type OllamaOptions struct {
	Model       string
	Timeout     time.Duration
	MaxAttempts int
	RetryBase   time.Duration
}

// NewOllamaClient targets the given Ollama host.
func NewOllamaClient(host string, opts OllamaOptions, logger *zap.Logger) *OllamaClient {
	model := opts.Model
	if model == "" {
		model = "llama3"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		// Local CPU inference is slow; give it room.
		timeout = 60 * time.Second
	}
	return &OllamaClient{
		endpoint: host + "/api/generate",
		model:    model,
		client:   &http.Client{Timeout: timeout},
		retry:    newRetryPolicy(opts.MaxAttempts, opts.RetryBase, logger),
		logger:   logger,
	}
}

type ollamaGenerateRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
}

// Classify sends the prompt and returns the category, or the sentinel on any
// failure after retries.
func (o *OllamaClient) Classify(ctx context.Context, description string, categories []string, examples []Example) string {
	prompt := buildPrompt(description, categories, examples)

	// Zero temperature for deterministic classification.
	category, err := o.retry.run(ctx, func() (string, error) {
		return o.generate(ctx, prompt, 0)
	})
	if err != nil {
		o.logger.Error("ollama classification failed", zap.Error(err))
		return domain.CategoryUnclassified
	}
	return category
}

// GenerateText runs one free-form generation under the retry policy. Used by
// the synthetic data seeder.
func (o *OllamaClient) GenerateText(ctx context.Context, prompt string) (string, error) {
	return o.retry.run(ctx, func() (string, error) {
		return o.generate(ctx, prompt, 0.7)
	})
}

func (o *OllamaClient) generate(ctx context.Context, prompt string, temperature float64) (string, error) {
	payload, err := json.Marshal(ollamaGenerateRequest{
		Model:   o.model,
		Prompt:  prompt,
		Stream:  false,
		Options: ollamaOptions{Temperature: temperature},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", markTransient(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		err := fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return "", markTransient(err)
		}
		return "", err
	}

	var parsed ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode ollama response: %w", err)
	}
	if strings.TrimSpace(parsed.Response) == "" {
		return domain.CategoryUnclassified, nil
	}
	return strings.TrimSpace(parsed.Response), nil
}
