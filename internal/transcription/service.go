package transcription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"minutes-studio/internal/fallback"
	"minutes-studio/internal/upstream/gemini"
)

// MockTranscript is returned for any non-empty batch when no AI credential
// is configured.
const MockTranscript = "【モック文字起こし】GEMINI_API_KEY が設定されていないため、音声の文字起こしは実行されていません。"

const Prompt = `この音声を日本語で一字一句正確に文字起こししてください。
話者が変わるところでは改行してください。
文字起こし結果のテキストのみを出力し、説明や要約は付けないでください。`

// Separator joins the transcripts of consecutive files.
const Separator = "\n\n"

type Audio struct {
	Name     string
	Data     []byte
	MIMEType string
}

type Generator interface {
	Generate(ctx context.Context, req gemini.Request) (gemini.Response, error)
}

type Hooks struct {
	// OnFallback is called when a file needed a model after the first one.
	OnFallback func(model string)
	// OnFileFailed is called when every model failed for a file.
	OnFileFailed func()
}

type Service struct {
	client  Generator
	models  []string
	timeout time.Duration
	logger  *slog.Logger
	hooks   Hooks
}

// New returns an adapter that tries models in order for each file. A nil
// client means mock mode.
func New(client Generator, models []string, timeout time.Duration, logger *slog.Logger, hooks Hooks) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	cleaned := make([]string, 0, len(models))
	for _, m := range models {
		if m = strings.TrimSpace(m); m != "" {
			cleaned = append(cleaned, m)
		}
	}
	return &Service{
		client:  client,
		models:  cleaned,
		timeout: timeout,
		logger:  logger,
		hooks:   hooks,
	}
}

// Transcribe returns the non-empty per-file transcripts joined by a blank
// line. A file whose every model attempt fails contributes nothing; only
// context cancellation is reported as an error.
func (s *Service) Transcribe(ctx context.Context, files []Audio) (string, error) {
	if len(files) == 0 {
		return "", nil
	}
	if s.client == nil {
		return MockTranscript, nil
	}

	results := fallback.Collect(files, func(f Audio) (string, string, error) {
		text, err := s.transcribeFile(ctx, f)
		return f.Name, text, err
	})
	if err := ctx.Err(); err != nil {
		return "", err
	}

	for _, failed := range fallback.Failures(results) {
		s.logger.Warn("audio transcription failed", "file", failed.Name, "error", failed.Err)
		if s.hooks.OnFileFailed != nil {
			s.hooks.OnFileFailed()
		}
	}

	texts := make([]string, 0, len(results))
	for _, text := range fallback.Successes(results) {
		if text = strings.TrimSpace(text); text != "" {
			texts = append(texts, text)
		}
	}
	return strings.Join(texts, Separator), nil
}

func (s *Service) transcribeFile(ctx context.Context, f Audio) (string, error) {
	if len(f.Data) == 0 {
		return "", errors.New("empty audio file")
	}
	mimeType := DetectMIMEType(f.MIMEType, f.Data)

	attempts := make([]fallback.Attempt[string], 0, len(s.models))
	for _, model := range s.models {
		attempts = append(attempts, fallback.Attempt[string]{
			Name: model,
			Run: func(ctx context.Context) (string, error) {
				return s.transcribeWith(ctx, model, f.Data, mimeType)
			},
		})
	}

	text, idx, err := fallback.FirstSuccess(ctx, attempts...)
	if err != nil {
		return "", err
	}
	if idx > 0 {
		s.logger.Info("audio transcribed with fallback model", "file", f.Name, "model", s.models[idx])
		if s.hooks.OnFallback != nil {
			s.hooks.OnFallback(s.models[idx])
		}
	}
	return text, nil
}

func (s *Service) transcribeWith(ctx context.Context, model string, data []byte, mimeType string) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	resp, err := s.client.Generate(ctx, gemini.Request{
		Model:  model,
		Prompt: Prompt,
		Audio:  &gemini.InlineData{Data: data, MIMEType: mimeType},
	})
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

// DetectMIMEType keeps a declared audio/video type and otherwise sniffs the
// content.
func DetectMIMEType(declared string, data []byte) string {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if i := strings.IndexByte(declared, ';'); i >= 0 {
		declared = strings.TrimSpace(declared[:i])
	}
	if strings.HasPrefix(declared, "audio/") || strings.HasPrefix(declared, "video/") {
		return declared
	}
	return mimetype.Detect(data).String()
}
