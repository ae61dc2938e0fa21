package transcription

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"minutes-studio/internal/upstream/gemini"
)

// fakeGenerator answers by audio payload and model. Missing entries fail.
type fakeGenerator struct {
	answers map[string]string
	calls   []string
}

func (f *fakeGenerator) Generate(_ context.Context, req gemini.Request) (gemini.Response, error) {
	key := string(req.Audio.Data) + "|" + req.Model
	f.calls = append(f.calls, key)
	text, ok := f.answers[key]
	if !ok {
		return gemini.Response{}, errors.New("upstream failed for " + key)
	}
	return gemini.Response{Text: text}, nil
}

func newTestService(gen Generator, hooks Hooks) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(gen, []string{"primary", "secondary"}, time.Second, logger, hooks)
}

func TestTranscribeEmptyBatch(t *testing.T) {
	got, err := newTestService(&fakeGenerator{}, Hooks{}).Transcribe(context.Background(), nil)
	if err != nil || got != "" {
		t.Fatalf("Transcribe(nil) = %q, %v", got, err)
	}
	got, err = New(nil, nil, time.Second, nil, Hooks{}).Transcribe(context.Background(), nil)
	if err != nil || got != "" {
		t.Fatalf("mock Transcribe(nil) = %q, %v", got, err)
	}
}

func TestTranscribeWithoutAIReturnsMock(t *testing.T) {
	svc := New(nil, []string{"primary"}, time.Second, nil, Hooks{})
	got, err := svc.Transcribe(context.Background(), []Audio{{Name: "a.mp3", Data: []byte("x")}})
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if got != MockTranscript {
		t.Fatalf("unexpected transcript: %q", got)
	}
}

func TestTranscribeIsolatesFailedFile(t *testing.T) {
	gen := &fakeGenerator{answers: map[string]string{
		"one|primary":   "一つ目",
		"three|primary": "三つ目",
	}}
	failed := 0
	svc := newTestService(gen, Hooks{OnFileFailed: func() { failed++ }})

	got, err := svc.Transcribe(context.Background(), []Audio{
		{Name: "1.mp3", Data: []byte("one"), MIMEType: "audio/mpeg"},
		{Name: "2.mp3", Data: []byte("two"), MIMEType: "audio/mpeg"},
		{Name: "3.mp3", Data: []byte("three"), MIMEType: "audio/mpeg"},
	})
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if got != "一つ目\n\n三つ目" {
		t.Fatalf("unexpected transcript: %q", got)
	}
	if failed != 1 {
		t.Fatalf("expected one failed file, got %d", failed)
	}
	want := "one|primary,two|primary,two|secondary,three|primary"
	if strings.Join(gen.calls, ",") != want {
		t.Fatalf("unexpected calls: %v", gen.calls)
	}
}

func TestTranscribeFallsBackToSecondaryModel(t *testing.T) {
	gen := &fakeGenerator{answers: map[string]string{"one|secondary": "  fallback text  "}}
	var fallbackModel string
	svc := newTestService(gen, Hooks{OnFallback: func(model string) { fallbackModel = model }})

	got, err := svc.Transcribe(context.Background(), []Audio{{Name: "1.wav", Data: []byte("one"), MIMEType: "audio/wav"}})
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if got != "fallback text" {
		t.Fatalf("unexpected transcript: %q", got)
	}
	if fallbackModel != "secondary" {
		t.Fatalf("unexpected fallback model: %q", fallbackModel)
	}
	if len(gen.calls) != 2 {
		t.Fatalf("expected 2 attempts, got %v", gen.calls)
	}
}

func TestTranscribeAllFailedReturnsEmpty(t *testing.T) {
	svc := newTestService(&fakeGenerator{}, Hooks{})
	got, err := svc.Transcribe(context.Background(), []Audio{{Name: "1.wav", Data: []byte("x")}})
	if err != nil || got != "" {
		t.Fatalf("Transcribe() = %q, %v", got, err)
	}
}

func TestTranscribeReportsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestService(&fakeGenerator{}, Hooks{}).Transcribe(ctx, []Audio{{Name: "1.wav", Data: []byte("x")}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDetectMIMEType(t *testing.T) {
	if got := DetectMIMEType("Audio/MPEG; charset=binary", nil); got != "audio/mpeg" {
		t.Fatalf("unexpected declared type: %q", got)
	}
	wav := append([]byte("RIFF\x24\x00\x00\x00WAVEfmt "), make([]byte, 32)...)
	if got := DetectMIMEType("application/octet-stream", wav); !strings.Contains(got, "wav") {
		t.Fatalf("expected sniffed wav type, got %q", got)
	}
}
