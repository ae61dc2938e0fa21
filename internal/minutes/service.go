package minutes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"google.golang.org/genai"

	"minutes-studio/internal/upstream/gemini"
)

// MaxTranscriptChars bounds the transcript sent to the model.
const MaxTranscriptChars = 120000

const Temperature = 0.3

const DefaultSystemPrompt = `あなたは日本企業の会議に同席する、経験豊富な議事録作成担当者です。
会議の文字起こしを受け取り、社内で共有できる正式な議事録を作成してください。

作成ルール:
- summary には会議全体の要点を3〜5文の1段落で書いてください。
- minutes には見出しと箇条書きを使い、次の構成で本文を書いてください。
  ■ 会議概要 / ■ 議題と議論の内容 / ■ 決定事項 / ■ 今後の対応（担当者・期限）
- 文字起こしに含まれない事実、人名、数値は補わないでください。不明な点は「（未確認）」と書いてください。
- 言い淀みや雑談は省き、発言の意図が変わらない範囲で簡潔な書き言葉にしてください。
- 出力は指定された JSON 形式のみとしてください。`

const (
	MockTranscript = "【モック】これはサンプルの文字起こしです。GEMINI_API_KEY を設定すると実際の内容が生成されます。"
	MockSummary    = "【モック】これはサンプルの要約です。AI が設定されていないため、固定の文章を返しています。"
	MockMinutes    = "■ 会議概要\n- 【モック】AI 未設定のためサンプルの議事録を表示しています。\n\n■ 決定事項\n- なし\n\n■ 今後の対応\n- GEMINI_API_KEY を設定する"
)

// Placeholders returned when the model's structured output cannot be used.
const (
	SummaryParseFailure = "要約の解析に失敗しました。"
	MinutesParseFailure = "議事録本文の解析に失敗しました。"
)

var errSchemaViolation = errors.New("structured response violates schema")

type Result struct {
	Transcript  string
	Summary     string
	MinutesBody string
	// Parsed is false when the placeholders were substituted.
	Parsed bool
	Usage  *gemini.TokenUsage
}

// MockResult is the fixed answer of the no-credential path.
func MockResult() Result {
	return Result{Transcript: MockTranscript, Summary: MockSummary, MinutesBody: MockMinutes, Parsed: true}
}

type Generator interface {
	Generate(ctx context.Context, req gemini.Request) (gemini.Response, error)
}

type Service struct {
	client     Generator
	model      string
	basePrompt string
	timeout    time.Duration
}

// New returns a synthesizer. A nil client means mock mode; an empty
// basePrompt selects DefaultSystemPrompt.
func New(client Generator, model, basePrompt string, timeout time.Duration) *Service {
	basePrompt = strings.TrimSpace(basePrompt)
	if basePrompt == "" {
		basePrompt = DefaultSystemPrompt
	}
	return &Service{
		client:     client,
		model:      strings.TrimSpace(model),
		basePrompt: basePrompt,
		timeout:    timeout,
	}
}

// ResponseSchema is the strict shape requested from the model: an object
// with exactly the required string fields summary and minutes.
func ResponseSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"summary": {Type: genai.TypeString, Description: "会議全体の要約（1段落）"},
			"minutes": {Type: genai.TypeString, Description: "見出しと箇条書きで構成した議事録本文"},
		},
		Required:         []string{"summary", "minutes"},
		PropertyOrdering: []string{"summary", "minutes"},
	}
}

func (s *Service) Generate(ctx context.Context, transcript, guidelines string) (Result, error) {
	if s.client == nil {
		return MockResult(), nil
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	resp, err := s.client.Generate(ctx, gemini.Request{
		Model:             s.model,
		SystemInstruction: s.SystemInstruction(guidelines),
		Prompt:            "以下は会議の文字起こしです。議事録を作成してください。\n\n" + truncateRunes(transcript, MaxTranscriptChars),
		Temperature:       genai.Ptr[float32](Temperature),
		ResponseSchema:    ResponseSchema(),
	})
	if err != nil {
		return Result{}, fmt.Errorf("generate minutes: %w", err)
	}

	result := Result{Transcript: transcript, Usage: resp.Usage}
	summary, body, err := parseStructured(resp.Text)
	if err != nil {
		result.Summary = SummaryParseFailure
		result.MinutesBody = MinutesParseFailure
		return result, nil
	}
	result.Summary = summary
	result.MinutesBody = body
	result.Parsed = true
	return result, nil
}

// SystemInstruction appends the style guidelines to the base prompt.
func (s *Service) SystemInstruction(guidelines string) string {
	guidelines = strings.TrimSpace(guidelines)
	if guidelines == "" {
		return s.basePrompt
	}
	return s.basePrompt + "\n\n以下は過去の議事録から抽出したスタイルガイドです。文体・構成・表記はこれに従ってください。\n" + guidelines
}

// parseStructured decodes {"summary": string, "minutes": string} and
// rejects anything else: missing, null or non-string fields, extra or
// differently cased properties, trailing values.
func parseStructured(raw string) (string, string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", "", fmt.Errorf("%w: empty response", errSchemaViolation)
	}

	var fields map[string]json.RawMessage
	dec := json.NewDecoder(strings.NewReader(raw))
	if err := dec.Decode(&fields); err != nil {
		return "", "", fmt.Errorf("%w: %v", errSchemaViolation, err)
	}
	var extra any
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return "", "", fmt.Errorf("%w: trailing data", errSchemaViolation)
	}
	if len(fields) != 2 {
		return "", "", fmt.Errorf("%w: expected exactly summary and minutes", errSchemaViolation)
	}

	summary, err := stringField(fields, "summary")
	if err != nil {
		return "", "", err
	}
	body, err := stringField(fields, "minutes")
	if err != nil {
		return "", "", err
	}
	return summary, body, nil
}

func stringField(fields map[string]json.RawMessage, name string) (string, error) {
	raw, ok := fields[name]
	if !ok {
		return "", fmt.Errorf("%w: missing %s", errSchemaViolation, name)
	}
	var value *string
	if err := json.Unmarshal(raw, &value); err != nil || value == nil {
		return "", fmt.Errorf("%w: %s is not a string", errSchemaViolation, name)
	}
	return strings.TrimSpace(*value), nil
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
