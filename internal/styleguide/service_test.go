package styleguide

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"minutes-studio/internal/upstream/gemini"
)

type fakeGenerator struct {
	calls   int
	request gemini.Request
	resp    gemini.Response
	err     error
}

func (f *fakeGenerator) Generate(_ context.Context, req gemini.Request) (gemini.Response, error) {
	f.calls++
	f.request = req
	return f.resp, f.err
}

func TestBuildSkipsShortCorpusRegardlessOfAI(t *testing.T) {
	short := strings.Repeat("あ", MinCorpusChars-1)

	gen := &fakeGenerator{resp: gemini.Response{Text: "- rule"}}
	for _, svc := range []*Service{New(gen, "m", time.Second), New(nil, "m", time.Second)} {
		got, err := svc.Build(context.Background(), short)
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}
		if got != "" {
			t.Fatalf("expected empty guidelines, got %q", got)
		}
	}
	if gen.calls != 0 {
		t.Fatalf("expected no model calls, got %d", gen.calls)
	}
}

func TestBuildWithoutAIReturnsEmpty(t *testing.T) {
	got, err := New(nil, "m", time.Second).Build(context.Background(), strings.Repeat("x", 500))
	if err != nil || got != "" {
		t.Fatalf("Build() = %q, %v", got, err)
	}
}

func TestBuildTruncatesCorpusAndUsesLowTemperature(t *testing.T) {
	gen := &fakeGenerator{resp: gemini.Response{Text: "  - です・ます調\n- 見出しは【】  "}}
	svc := New(gen, "style-model", time.Second)

	corpus := strings.Repeat("会", MaxCorpusChars) + "TAIL"
	got, err := svc.Build(context.Background(), corpus)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if got != "- です・ます調\n- 見出しは【】" {
		t.Fatalf("unexpected guidelines: %q", got)
	}
	if gen.request.Model != "style-model" {
		t.Fatalf("unexpected model: %q", gen.request.Model)
	}
	if gen.request.Temperature == nil || *gen.request.Temperature != 0.2 {
		t.Fatalf("unexpected temperature: %v", gen.request.Temperature)
	}
	if strings.Contains(gen.request.Prompt, "TAIL") {
		t.Fatal("corpus was not truncated")
	}
	if n := strings.Count(gen.request.Prompt, "会"); n != MaxCorpusChars {
		t.Fatalf("expected %d corpus characters, got %d", MaxCorpusChars, n)
	}
	if gen.request.SystemInstruction != SystemPrompt {
		t.Fatal("unexpected system instruction")
	}
}

func TestBuildAtThresholdCallsModel(t *testing.T) {
	gen := &fakeGenerator{}
	corpus := strings.Repeat("a", MinCorpusChars)
	got, err := New(gen, "m", time.Second).Build(context.Background(), corpus)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if gen.calls != 1 {
		t.Fatalf("expected one call, got %d", gen.calls)
	}
	if got != "" {
		t.Fatalf("expected empty result for empty response, got %q", got)
	}
}

func TestBuildPropagatesUpstreamError(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("quota")}
	_, err := New(gen, "m", time.Second).Build(context.Background(), strings.Repeat("a", 300))
	if err == nil || !strings.Contains(err.Error(), "quota") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTruncateRunesKeepsCharacterBoundaries(t *testing.T) {
	got := truncateRunes("日本語テキスト", 3)
	if got != "日本語" || !utf8.ValidString(got) {
		t.Fatalf("unexpected truncation: %q", got)
	}
}
