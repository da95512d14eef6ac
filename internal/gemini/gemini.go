// Package gemini is the Google Gemini generateContent client.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"yieldbot/internal/llm"
	"yieldbot/internal/messagestore/models"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

const (
	roleUser  = "user"
	roleModel = "model"

	DefaultTimeout = 30 * time.Second
)

var errNotConfigured = errors.New("gemini api key or endpoint is not configured")

// GenerationConfig holds the fixed sampling parameters sent with every request.
type GenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopK            int     `json:"topK"`
	TopP            float64 `json:"topP"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

var defaultGeneration = GenerationConfig{
	Temperature:     0.7,
	TopK:            40,
	TopP:            0.95,
	MaxOutputTokens: 1024,
}

type Options struct {
	APIKey          string
	Endpoint        string
	Model           string
	Timeout         time.Duration
	Acknowledgement string
}

// Client is immutable after construction and safe for concurrent use.
type Client struct {
	http            *resty.Client
	apiKey          string
	endpoint        string
	model           string
	acknowledgement string
	generation      GenerationConfig
}

func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("Content-Type", "application/json")

	return &Client{
		http:            client,
		apiKey:          opts.APIKey,
		endpoint:        opts.Endpoint,
		model:           opts.Model,
		acknowledgement: opts.Acknowledgement,
		generation:      defaultGeneration,
	}
}

func (c *Client) Name() string {
	return "gemini"
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig GenerationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	UsageMetadata *struct {
		TotalTokenCount int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	ModelVersion string `json:"modelVersion"`
}

// Generate performs a single attempt. The caller's cancellation is not
// propagated; only the client timeout ends an in-flight call.
func (c *Client) Generate(ctx context.Context, turns []llm.Turn, systemPrompt string) llm.Outcome {
	if c.apiKey == "" || c.endpoint == "" {
		return llm.Failed(llm.FailureTransport, errNotConfigured)
	}

	resp, err := c.http.R().
		SetContext(context.WithoutCancel(ctx)).
		SetQueryParam("key", c.apiKey).
		SetBody(c.buildRequest(turns, systemPrompt)).
		Post(c.endpoint)
	if err != nil {
		logrus.Warnf("Gemini request failed: %v", err)
		return llm.Failed(llm.FailureTransport, err)
	}

	if resp.StatusCode() != http.StatusOK {
		logrus.Warnf("Gemini returned status %d", resp.StatusCode())
		return llm.FailedStatus(resp.StatusCode(), resp.String())
	}

	var body generateResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return llm.Failed(llm.FailureMalformed, fmt.Errorf("failed to decode response: %w", err))
	}
	if len(body.Candidates) == 0 {
		return llm.Failed(llm.FailureEmptyCandidates, errors.New("response has no candidates"))
	}

	parts := body.Candidates[0].Content.Parts
	if len(parts) == 0 || strings.TrimSpace(parts[0].Text) == "" {
		return llm.Failed(llm.FailureMalformed, errors.New("first candidate has no text"))
	}

	model := c.model
	if body.ModelVersion != "" {
		model = body.ModelVersion
	}
	tokens := 0
	if body.UsageMetadata != nil {
		tokens = body.UsageMetadata.TotalTokenCount
	}

	return llm.Succeeded(parts[0].Text, model, tokens)
}

func (c *Client) buildRequest(turns []llm.Turn, systemPrompt string) generateRequest {
	contents := make([]content, 0, len(turns)+2)
	contents = append(contents,
		content{Role: roleUser, Parts: []part{{Text: "SYSTEM INSTRUCTIONS:\n" + systemPrompt + "\n\nPlease acknowledge you understand these instructions."}}},
		content{Role: roleModel, Parts: []part{{Text: c.acknowledgement}}},
	)

	for _, turn := range turns {
		role := roleUser
		if turn.Role == models.RoleAssistant {
			role = roleModel
		}
		contents = append(contents, content{Role: role, Parts: []part{{Text: turn.Text}}})
	}

	return generateRequest{Contents: contents, GenerationConfig: c.generation}
}
