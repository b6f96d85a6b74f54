package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com"
	defaultChatModel     = "gpt-3.5-turbo"
	defaultSTTModel      = "whisper-1"

	systemPrompt = "You are TestBook Assistant."
)

// OpenAIClient backs Complete, Translate, and Transcribe with the OpenAI
// HTTP API directly; no SDK, just chat completions and audio transcriptions.
type OpenAIClient struct {
	BaseURL   string
	APIKey    string
	ChatModel string
	STTModel  string
	HTTP      *http.Client
}

func NewOpenAI(baseURL, apiKey, model string) *OpenAIClient {
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	if model == "" {
		model = defaultChatModel
	}
	return &OpenAIClient{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		APIKey:    apiKey,
		ChatModel: model,
		STTModel:  defaultSTTModel,
		HTTP:      &http.Client{Timeout: 90 * time.Second},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	body := chatCompletionRequest{
		Model: c.ChatModel,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   400,
		Temperature: 0.7,
	}

	b, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/chat/completions", bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	var out chatCompletionResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("openai: decode response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if out.Error != nil && out.Error.Message != "" {
			return "", fmt.Errorf("openai http %d: %s", resp.StatusCode, out.Error.Message)
		}
		return "", fmt.Errorf("openai http %d: %s", resp.StatusCode, string(raw))
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("openai: empty choices")
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

// Translate goes through the chat model with a fixed instruction. The
// deployment has no dedicated translation service, so the completion model
// doubles as one.
func (c *OpenAIClient) Translate(ctx context.Context, text, targetLang string) (string, error) {
	if strings.TrimSpace(targetLang) == "" || targetLang == "auto" {
		targetLang = "en"
	}
	prompt := fmt.Sprintf("Translate the following text to %s. Reply with the translation only.\n\n%s", targetLang, text)
	return c.Complete(ctx, prompt)
}

type transcriptionResponse struct {
	Text  string `json:"text"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Transcribe uploads the voice audio to the audio transcriptions endpoint.
// Telegram voice notes arrive as OGG/Opus, which the endpoint accepts as-is.
func (c *OpenAIClient) Transcribe(ctx context.Context, audio []byte) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "voice.ogg")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(audio); err != nil {
		return "", err
	}
	if err := mw.WriteField("model", c.STTModel); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/audio/transcriptions", &buf)
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	if c.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	var out transcriptionResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("openai: decode transcription: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if out.Error != nil && out.Error.Message != "" {
			return "", fmt.Errorf("openai http %d: %s", resp.StatusCode, out.Error.Message)
		}
		return "", fmt.Errorf("openai http %d: %s", resp.StatusCode, string(raw))
	}
	return strings.TrimSpace(out.Text), nil
}
