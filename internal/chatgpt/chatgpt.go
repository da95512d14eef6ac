package chatgpt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
	"yieldbot/internal/llm"
	"yieldbot/internal/messagestore/models"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

type Options struct {
	APIKey  string
	Model   string
	Timeout time.Duration
	// BaseURL overrides the public API endpoint, e.g. for a proxy.
	BaseURL string
}

// Service talks to the OpenAI chat completions API. It is immutable after
// construction.
type Service struct {
	client *openai.Client
	model  string
	apiKey string
}

func NewService(opts Options) *Service {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}

	model := opts.Model
	if model == "" {
		model = openai.GPT4Dot1
	}

	return &Service{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		apiKey: opts.APIKey,
	}
}

func (s *Service) Name() string {
	return "openai"
}

// Generate sends the system prompt and history as one chat completion request.
func (s *Service) Generate(ctx context.Context, turns []llm.Turn, systemPrompt string) llm.Outcome {
	if s.apiKey == "" {
		return llm.Failed(llm.FailureTransport, errors.New("openai api key is not configured"))
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(turns)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt,
	})
	for _, turn := range turns {
		role := openai.ChatMessageRoleUser
		if turn.Role == models.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: turn.Text,
		})
	}

	resp, err := s.client.CreateChatCompletion(context.WithoutCancel(ctx), openai.ChatCompletionRequest{
		Model:       s.model,
		Messages:    messages,
		Temperature: 0.7,
		TopP:        0.95,
		MaxTokens:   1024,
	})
	if err != nil {
		logrus.Warnf("OpenAI request failed: %v", err)
		return classifyError(err)
	}

	if len(resp.Choices) == 0 {
		return llm.Failed(llm.FailureEmptyCandidates, errors.New("response has no choices"))
	}
	text := resp.Choices[0].Message.Content
	if strings.TrimSpace(text) == "" {
		return llm.Failed(llm.FailureMalformed, errors.New("first choice has no content"))
	}

	model := resp.Model
	if model == "" {
		model = s.model
	}
	return llm.Succeeded(text, model, resp.Usage.TotalTokens)
}

func classifyError(err error) llm.Outcome {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return llm.FailedStatus(apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		body := ""
		if reqErr.Err != nil {
			body = reqErr.Err.Error()
		}
		return llm.FailedStatus(reqErr.HTTPStatusCode, body)
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return llm.Failed(llm.FailureMalformed, err)
	}
	return llm.Failed(llm.FailureTransport, err)
}

// TranscribeAudio turns a voice note into text with Whisper.
func (s *Service) TranscribeAudio(ctx context.Context, audioData []byte) (string, error) {
	tempFile, err := os.CreateTemp("", "audio-*.ogg")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tempFile.Name())
	defer tempFile.Close()

	if _, err = tempFile.Write(audioData); err != nil {
		return "", fmt.Errorf("failed to write audio data: %w", err)
	}

	resp, err := s.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: tempFile.Name(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to transcribe audio: %w", err)
	}

	return strings.TrimSpace(resp.Text), nil
}
