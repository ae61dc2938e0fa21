package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"
)

type ObserverFunc func(endpoint string, status int, duration time.Duration)

type Option func(*Client)

type Client struct {
	models   *genai.Models
	observer ObserverFunc
}

// Error is an upstream failure reported by the Gemini API.
type Error struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("gemini request failed with status %d: %s", e.StatusCode, e.Message)
}

type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// InlineData is binary input sent alongside the prompt, e.g. an audio file.
type InlineData struct {
	Data     []byte
	MIMEType string
}

type Request struct {
	Model             string
	SystemInstruction string
	Prompt            string
	Audio             *InlineData
	Temperature       *float32
	// ResponseSchema switches the call to JSON output constrained by the schema.
	ResponseSchema *genai.Schema
}

type Response struct {
	Text  string
	Usage *TokenUsage
}

func WithObserver(observer ObserverFunc) Option {
	return func(c *Client) {
		c.observer = observer
	}
}

func New(ctx context.Context, apiKey, baseURL string, httpClient *http.Client, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini: api key is required")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	cc := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: strings.TrimRight(baseURL, "/") + "/"}
	}

	gc, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	c := &Client{models: gc.Models}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

func (c *Client) Generate(ctx context.Context, req Request) (Response, error) {
	endpoint := "generate_content"
	if req.Audio != nil {
		endpoint = "generate_content_audio"
	}
	started := time.Now()
	statusCode := 0
	defer func() { c.observe(endpoint, statusCode, time.Since(started)) }()

	parts := make([]*genai.Part, 0, 2)
	if req.Audio != nil {
		parts = append(parts, genai.NewPartFromBytes(req.Audio.Data, req.Audio.MIMEType))
	}
	if req.Prompt != "" {
		parts = append(parts, genai.NewPartFromText(req.Prompt))
	}
	if len(parts) == 0 {
		return Response{}, errors.New("gemini: request has no content")
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	gcfg := &genai.GenerateContentConfig{Temperature: req.Temperature}
	if req.SystemInstruction != "" {
		gcfg.SystemInstruction = genai.NewContentFromText(req.SystemInstruction, genai.RoleUser)
	}
	if req.ResponseSchema != nil {
		gcfg.ResponseMIMEType = "application/json"
		gcfg.ResponseSchema = req.ResponseSchema
	}

	resp, err := c.models.GenerateContent(ctx, req.Model, contents, gcfg)
	if err != nil {
		upErr := asUpstreamError(err)
		if upErr != nil {
			statusCode = upErr.StatusCode
			return Response{}, upErr
		}
		return Response{}, err
	}
	statusCode = http.StatusOK

	return Response{Text: responseText(resp), Usage: usageFrom(resp)}, nil
}

// CheckModel verifies the credential can see the given model.
func (c *Client) CheckModel(ctx context.Context, model string) error {
	started := time.Now()
	statusCode := 0
	defer func() { c.observe("models_get", statusCode, time.Since(started)) }()

	if _, err := c.models.Get(ctx, model, nil); err != nil {
		if upErr := asUpstreamError(err); upErr != nil {
			statusCode = upErr.StatusCode
			return upErr
		}
		return err
	}
	statusCode = http.StatusOK
	return nil
}

func (c *Client) observe(endpoint string, status int, duration time.Duration) {
	if c.observer != nil {
		c.observer(endpoint, status, duration)
	}
}

func asUpstreamError(err error) *Error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &Error{StatusCode: apiErr.Code, Status: apiErr.Status, Message: truncateMessage(apiErr.Message)}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &Error{StatusCode: apiErrPtr.Code, Status: apiErrPtr.Status, Message: truncateMessage(apiErrPtr.Message)}
	}
	return nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		b.WriteString(part.Text)
	}
	return strings.TrimSpace(b.String())
}

func usageFrom(resp *genai.GenerateContentResponse) *TokenUsage {
	if resp == nil || resp.UsageMetadata == nil {
		return nil
	}
	return &TokenUsage{
		PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
		CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
	}
}

func truncateMessage(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= 4096 {
		return s
	}
	return s[:4096] + "..."
}
