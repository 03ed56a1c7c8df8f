package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/triage-engine/internal/domain"
)

const geminiEndpoint = "https://generativelanguage.googleapis.com/v1beta/models"

// GeminiClient classifies tickets against the hosted Gemini API.
type GeminiClient struct {
	apiKey string
	model  string
	client *http.Client
	retry  retryPolicy
	logger *zap.Logger
}

// GeminiOptions tunes the hosted client.
type GeminiOptions struct {
	Model       string
	Timeout     time.Duration
	MaxAttempts int
	RetryBase   time.Duration
}

// NewGeminiClient validates the key and constructs the client.
func NewGeminiClient(apiKey string, opts GeminiOptions, logger *zap.Logger) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is missing")
	}
	model := opts.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &GeminiClient{
		apiKey: apiKey,
		model:  model,
		client: &http.Client{Timeout: timeout},
		retry:  newRetryPolicy(opts.MaxAttempts, opts.RetryBase, logger),
		logger: logger,
	}, nil
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature float64 `json:"temperature"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Classify sends the prompt and returns the category, or the sentinel on any
// failure after retries.
func (g *GeminiClient) Classify(ctx context.Context, description string, categories []string, examples []Example) string {
	prompt := buildPrompt(description, categories, examples)

	// Zero temperature for deterministic classification.
	category, err := g.retry.run(ctx, func() (string, error) {
		return g.generate(ctx, prompt, 0)
	})
	if err != nil {
		g.logger.Error("gemini classification failed", zap.Error(err))
		return domain.CategoryUnclassified
	}
	return category
}

// GenerateText runs one free-form generation under the retry policy. High
// temperature for variety; used by the synthetic data seeder.
func (g *GeminiClient) GenerateText(ctx context.Context, prompt string) (string, error) {
	return g.retry.run(ctx, func() (string, error) {
		return g.generate(ctx, prompt, 0.7)
	})
}

func (g *GeminiClient) generate(ctx context.Context, prompt string, temperature float64) (string, error) {
	payload, err := json.Marshal(geminiRequest{
		Contents:         []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: geminiGenerationConfig{Temperature: temperature},
	})
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/%s:generateContent?key=%s", geminiEndpoint, g.model, g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		// Network-level failures are worth retrying.
		return "", markTransient(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		err := fmt.Errorf("gemini returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return "", markTransient(err)
		}
		return "", err
	}

	var parsed geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode gemini response: %w", err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("gemini response contained no candidates")
	}
	return strings.TrimSpace(parsed.Candidates[0].Content.Parts[0].Text), nil
}
