// Package llm provides the AI-fallback capability used both by the
// extractor cascade's lowest-confidence stage and by the normalizer
// when a field is too ambiguous for rule-based cleanup. Every call
// passes through a caller-supplied budget; see internal/capabilities.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"jobpipe/internal/config"
)

// Provider represents a logical LLM provider.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGoogle    Provider = "google"
)

// FieldSpec describes one field the extraction prompt should populate.
type FieldSpec struct {
	Name        string
	Description string
	Type        string
}

// ExtractRequest asks the model to pull structured fields out of a
// job posting's markdown body.
type ExtractRequest struct {
	URL      string
	Markdown string
	Fields   []FieldSpec
	Prompt   string
	Timeout  time.Duration
	Strict   bool
}

// ExtractResult is the structured output from the LLM.
type ExtractResult struct {
	Fields map[string]any
}

// NormalizeRequest asks the model to clean up a single ambiguous raw
// value (a date string, a location string) into a canonical form.
type NormalizeRequest struct {
	FieldName string
	RawValue  string
	Timeout   time.Duration
}

// NormalizeResult is the model's best-effort canonical value.
type NormalizeResult struct {
	Value      string
	Confidence float64
}

// Client is the provider-agnostic AI fallback abstraction.
type Client interface {
	ExtractFields(ctx context.Context, req ExtractRequest) (ExtractResult, error)
	NormalizeField(ctx context.Context, req NormalizeRequest) (NormalizeResult, error)
}

// parseJSONFields attempts to parse a JSON object from the given content.
// It first tries the whole string, and if that fails, it attempts to
// extract the first {...} block. On failure it returns an error so the
// caller can decide how to fall back.
func parseJSONFields(content string) (map[string]any, error) {
	var fields map[string]any
	if err := json.Unmarshal([]byte(content), &fields); err == nil {
		return fields, nil
	}

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end <= start {
		return nil, errors.New("no JSON object found in content")
	}

	snippet := content[start : end+1]
	if err := json.Unmarshal([]byte(snippet), &fields); err != nil {
		return nil, err
	}

	return fields, nil
}

// NewClientFromConfig constructs a Client for cfg.AI.DefaultProvider.
// An empty provider means AI fallback/normalization is disabled;
// callers must check that before calling this.
func NewClientFromConfig(cfg *config.Config) (Client, Provider, string, error) {
	prov := Provider(cfg.AI.DefaultProvider)

	switch prov {
	case ProviderOpenAI:
		openaiCfg := cfg.AI.OpenAI
		if openaiCfg.APIKey == "" || openaiCfg.Model == "" {
			return nil, prov, openaiCfg.Model, errors.New("openai ai provider is not fully configured")
		}
		return &openAIClient{
			apiKey:  openaiCfg.APIKey,
			baseURL: openaiCfg.BaseURL,
			model:   openaiCfg.Model,
			http:    &http.Client{Timeout: 30 * time.Second},
		}, prov, openaiCfg.Model, nil
	case ProviderAnthropic:
		anthCfg := cfg.AI.Anthropic
		if anthCfg.APIKey == "" || anthCfg.Model == "" {
			return nil, prov, anthCfg.Model, errors.New("anthropic ai provider is not fully configured")
		}
		return &anthropicClient{
			apiKey: anthCfg.APIKey,
			model:  anthCfg.Model,
			http:   &http.Client{Timeout: 30 * time.Second},
		}, prov, anthCfg.Model, nil
	case ProviderGoogle:
		googleCfg := cfg.AI.Google
		if googleCfg.APIKey == "" || googleCfg.Model == "" {
			return nil, prov, googleCfg.Model, errors.New("google ai provider is not fully configured")
		}
		return &googleClient{
			apiKey: googleCfg.APIKey,
			model:  googleCfg.Model,
			http:   &http.Client{Timeout: 30 * time.Second},
		}, prov, googleCfg.Model, nil
	default:
		return nil, prov, "", fmt.Errorf("unsupported ai provider: %s", cfg.AI.DefaultProvider)
	}
}

// openAIClient implements Client using OpenAI-compatible Chat Completions.
type openAIClient struct {
	apiKey  string
	baseURL string
	model   string
	http    *http.Client
}

// anthropicClient implements Client using Anthropic's Messages API.
type anthropicClient struct {
	apiKey string
	model  string
	http   *http.Client
}

// googleClient implements Client using Google Gemini (Generative Language API).
type googleClient struct {
	apiKey string
	model  string
	http   *http.Client
}

type openAIChatRequest struct {
	Model          string                `json:"model"`
	Messages       []openAIChatMessage   `json:"messages"`
	Temperature    float64               `json:"temperature"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message openAIChatMessage `json:"message"`
	} `json:"choices"`
}

type anthropicMessagesRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string                 `json:"role"`
	Content []anthropicTextContent `json:"content"`
}

type anthropicTextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicMessagesResponse struct {
	Content []anthropicTextContent `json:"content"`
}

type googleGenerateContentRequest struct {
	Contents []googleContent `json:"contents"`
}

type googleContent struct {
	Parts []googlePart `json:"parts"`
}

type googlePart struct {
	Text string `json:"text,omitempty"`
}

type googleGenerateContentResponse struct {
	Candidates []struct {
		Content googleContent `json:"content"`
	} `json:"candidates"`
}

func extractPrompt(req ExtractRequest) string {
	fieldJSON, _ := json.Marshal(req.Fields)
	userContent := fmt.Sprintf("You are a JSON-only extractor. Given markdown content from URL %s and the following field definitions, extract a JSON object with exactly those keys. Fields: %s\n\nMarkdown:\n%s", req.URL, string(fieldJSON), req.Markdown)
	if req.Prompt != "" {
		userContent = req.Prompt + "\n\n" + userContent
	}
	return userContent
}

func normalizePrompt(req NormalizeRequest) string {
	return fmt.Sprintf("Normalize this %s value to a single canonical form. Respond with JSON {\"value\": \"...\", \"confidence\": 0.0-1.0}. Raw value: %q", req.FieldName, req.RawValue)
}

func (c *openAIClient) chat(ctx context.Context, system, user string) (string, error) {
	body := openAIChatRequest{
		Model: c.model,
		Messages: []openAIChatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature:    0.0,
		ResponseFormat: &openAIResponseFormat{Type: "json_object"},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	endpoint := c.baseURL
	if endpoint == "" {
		endpoint = "https://api.openai.com/v1"
	}
	endpoint += "/chat/completions"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("openai chat completion failed with status %d", resp.StatusCode)
	}

	var parsed openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("openai chat completion returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

func (c *openAIClient) ExtractFields(ctx context.Context, req ExtractRequest) (ExtractResult, error) {
	content, err := c.chat(ctx, "You are a JSON-only extractor. Respond with a single JSON object and no extra text.", extractPrompt(req))
	if err != nil {
		return ExtractResult{}, err
	}

	fields, err := parseJSONFields(content)
	if err != nil {
		if req.Strict {
			return ExtractResult{}, fmt.Errorf("failed to parse JSON from LLM response: %w", err)
		}
		fields = map[string]any{"_raw": content}
	}

	return ExtractResult{Fields: fields}, nil
}

func (c *openAIClient) NormalizeField(ctx context.Context, req NormalizeRequest) (NormalizeResult, error) {
	content, err := c.chat(ctx, "You normalize messy field values into canonical form. Respond with JSON only.", normalizePrompt(req))
	if err != nil {
		return NormalizeResult{}, err
	}
	return parseNormalizeResult(content)
}

func (c *anthropicClient) messages(ctx context.Context, system, user string) (string, error) {
	body := anthropicMessagesRequest{
		Model:     c.model,
		MaxTokens: 512,
		System:    system,
		Messages: []anthropicMessage{
			{Role: "user", Content: []anthropicTextContent{{Type: "text", Text: user}}},
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.anthropic.com/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("anthropic messages request failed with status %d", resp.StatusCode)
	}

	var parsed anthropicMessagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	if len(parsed.Content) == 0 {
		return "", errors.New("anthropic messages returned no content")
	}
	return parsed.Content[0].Text, nil
}

func (c *anthropicClient) ExtractFields(ctx context.Context, req ExtractRequest) (ExtractResult, error) {
	content, err := c.messages(ctx, "You are a JSON-only extractor. Respond with a single JSON object and no extra text.", extractPrompt(req))
	if err != nil {
		return ExtractResult{}, err
	}

	fields, err := parseJSONFields(content)
	if err != nil {
		if req.Strict {
			return ExtractResult{}, fmt.Errorf("failed to parse JSON from LLM response: %w", err)
		}
		fields = map[string]any{"_raw": content}
	}

	return ExtractResult{Fields: fields}, nil
}

func (c *anthropicClient) NormalizeField(ctx context.Context, req NormalizeRequest) (NormalizeResult, error) {
	content, err := c.messages(ctx, "You normalize messy field values into canonical form. Respond with JSON only.", normalizePrompt(req))
	if err != nil {
		return NormalizeResult{}, err
	}
	return parseNormalizeResult(content)
}

func (c *googleClient) generate(ctx context.Context, prompt string) (string, error) {
	body := googleGenerateContentRequest{Contents: []googleContent{{Parts: []googlePart{{Text: prompt}}}}}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	base := "https://generativelanguage.googleapis.com/v1beta"
	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", base, c.model, url.QueryEscape(c.apiKey))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("google generateContent failed with status %d", resp.StatusCode)
	}

	var parsed googleGenerateContentResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("google generateContent returned no candidates")
	}

	var sb strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}

func (c *googleClient) ExtractFields(ctx context.Context, req ExtractRequest) (ExtractResult, error) {
	content, err := c.generate(ctx, extractPrompt(req))
	if err != nil {
		return ExtractResult{}, err
	}

	fields, err := parseJSONFields(content)
	if err != nil {
		if req.Strict {
			return ExtractResult{}, fmt.Errorf("failed to parse JSON from LLM response: %w", err)
		}
		fields = map[string]any{"_raw": content}
	}

	return ExtractResult{Fields: fields}, nil
}

func (c *googleClient) NormalizeField(ctx context.Context, req NormalizeRequest) (NormalizeResult, error) {
	content, err := c.generate(ctx, normalizePrompt(req))
	if err != nil {
		return NormalizeResult{}, err
	}
	return parseNormalizeResult(content)
}

func parseNormalizeResult(content string) (NormalizeResult, error) {
	fields, err := parseJSONFields(content)
	if err != nil {
		return NormalizeResult{Value: strings.TrimSpace(content), Confidence: 0.4}, nil
	}

	res := NormalizeResult{Confidence: 0.4}
	if v, ok := fields["value"].(string); ok {
		res.Value = v
	}
	if c, ok := fields["confidence"].(float64); ok {
		res.Confidence = c
	}
	return res, nil
}
