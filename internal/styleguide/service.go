package styleguide

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"google.golang.org/genai"

	"minutes-studio/internal/upstream/gemini"
)

const (
	// MinCorpusChars is the smallest corpus, in characters, worth analysing.
	MinCorpusChars = 200
	// MaxCorpusChars bounds the corpus sent to the model.
	MaxCorpusChars = 15000
	Temperature    = 0.2
)

const SystemPrompt = `あなたは議事録の文体分析の専門家です。
与えられた過去の議事録から、文体・言い回し・見出しや箇条書きの構成・敬語の使い方・日付や数値の表記ルールなどの特徴を抽出し、
新しい議事録を書く際にそのまま使えるスタイルガイドとして、日本語の箇条書き10項目程度にまとめてください。
会議の具体的な内容や固有名詞は含めず、再利用可能なルールだけを書いてください。
出力は「- 」で始まる箇条書きのみとし、前置きや結びの文は書かないでください。`

type Generator interface {
	Generate(ctx context.Context, req gemini.Request) (gemini.Response, error)
}

type Service struct {
	client  Generator
	model   string
	timeout time.Duration
}

// New returns a synthesizer. A nil client means no AI credential is
// configured and Build always returns "".
func New(client Generator, model string, timeout time.Duration) *Service {
	return &Service{
		client:  client,
		model:   strings.TrimSpace(model),
		timeout: timeout,
	}
}

// Build derives bullet-point style guidelines from corpus. An empty result
// means no style adaptation.
func (s *Service) Build(ctx context.Context, corpus string) (string, error) {
	if utf8.RuneCountInString(corpus) < MinCorpusChars {
		return "", nil
	}
	if s.client == nil {
		return "", nil
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	resp, err := s.client.Generate(ctx, gemini.Request{
		Model:             s.model,
		SystemInstruction: SystemPrompt,
		Prompt:            "以下が過去の議事録です。\n\n" + truncateRunes(corpus, MaxCorpusChars),
		Temperature:       genai.Ptr[float32](Temperature),
	})
	if err != nil {
		return "", fmt.Errorf("build style guidelines: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
