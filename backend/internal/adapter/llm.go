package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"nexus/backend/pkg/logger"
)

// LLMAdapter handles communication with the collaborator model through
// an OpenAI-compatible endpoint. A nil adapter is valid and reports
// unavailable; callers fall back to deterministic behavior.
type LLMAdapter struct {
	client *openai.Client
	model  string
	mu     sync.RWMutex // Protects model field for concurrent access
	logger *zap.Logger
}

// NewLLMAdapter creates a new LLM adapter. Returns nil when no base URL
// is configured, which puts the engine in fallback mode.
func NewLLMAdapter(baseURL, apiKey, modelID string) *LLMAdapter {
	if baseURL == "" {
		return nil
	}
	// Gateways like LiteLLM accept a dummy key
	if apiKey == "" {
		apiKey = "dummy-key"
	}

	config := openai.DefaultConfig(apiKey)
	config.BaseURL = strings.TrimSuffix(baseURL, "/") + "/v1"

	return &LLMAdapter{
		client: openai.NewClientWithConfig(config),
		model:  modelID,
		logger: logger.Named("llm"),
	}
}

// Available reports whether a collaborator endpoint is configured
func (a *LLMAdapter) Available() bool {
	return a != nil && a.client != nil
}

// SetModel updates the model used by this adapter
func (a *LLMAdapter) SetModel(model string) {
	if a == nil || model == "" {
		return
	}
	a.mu.Lock()
	a.model = model
	a.mu.Unlock()
	a.logger.Debug("LLM adapter model updated", zap.String("model", model))
}

// GetModel returns the current model
func (a *LLMAdapter) GetModel() string {
	if a == nil {
		return ""
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.model
}

// Generate sends a system/user prompt pair and returns the raw text
// completion. Transient failures are retried with linear backoff.
func (a *LLMAdapter) Generate(ctx context.Context, systemPrompt, userMsg string) (string, error) {
	if !a.Available() {
		return "", fmt.Errorf("no collaborator endpoint configured")
	}

	a.mu.RLock()
	currentModel := a.model
	a.mu.RUnlock()

	req := openai.ChatCompletionRequest{
		Model: currentModel,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: userMsg,
			},
		},
		Temperature: 0.7,
	}

	var resp openai.ChatCompletionResponse
	var err error
	maxRetries := 3
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * time.Second
			a.logger.Warn("Retrying LLM request",
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff),
			)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		resp, err = a.client.CreateChatCompletion(ctx, req)
		if err == nil {
			break
		}

		a.logger.Error("LLM request failed",
			zap.Error(err),
			zap.Int("attempt", attempt+1),
			zap.String("model", currentModel),
		)
	}

	if err != nil {
		return "", fmt.Errorf("failed to generate response after %d attempts: %w", maxRetries, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in LLM response")
	}

	content := resp.Choices[0].Message.Content
	a.logger.Debug("LLM response generated",
		zap.String("model", currentModel),
		zap.Int("length", len(content)),
	)
	return content, nil
}

// GenerateJSON sends a prompt pair that asks for a JSON answer and
// decodes the completion into out, stripping markdown code fences the
// model wraps its output in.
func (a *LLMAdapter) GenerateJSON(ctx context.Context, systemPrompt, userMsg string, out interface{}) error {
	raw, err := a.Generate(ctx, systemPrompt, userMsg)
	if err != nil {
		return err
	}

	cleaned := StripCodeFence(raw)
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		a.logger.Warn("Failed to parse LLM JSON response",
			zap.Error(err),
			zap.String("response", truncate(cleaned, 200)),
		)
		return fmt.Errorf("failed to parse LLM response: %w", err)
	}
	return nil
}

// StripCodeFence removes a surrounding ```json ... ``` fence, if any
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
