package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"minutes-studio/internal/minutes"
	"minutes-studio/internal/storage"
	"minutes-studio/internal/stylecorpus"
	"minutes-studio/internal/styleguide"
	"minutes-studio/internal/transcription"
)

// recorder collects the order in which stages ran.
type recorder struct {
	steps []string
}

type fakeTranscriber struct {
	rec   *recorder
	text  string
	err   error
	files []transcription.Audio
}

func (f *fakeTranscriber) Transcribe(_ context.Context, files []transcription.Audio) (string, error) {
	f.rec.steps = append(f.rec.steps, "transcribe")
	f.files = files
	return f.text, f.err
}

type fakeExtractor struct {
	rec    *recorder
	corpus string
}

func (f *fakeExtractor) Extract(docs []stylecorpus.Document) string {
	f.rec.steps = append(f.rec.steps, "extract")
	return f.corpus
}

type fakeGuidelines struct {
	rec    *recorder
	result string
	err    error
	corpus string
}

func (f *fakeGuidelines) Build(_ context.Context, corpus string) (string, error) {
	f.rec.steps = append(f.rec.steps, "guidelines")
	f.corpus = corpus
	return f.result, f.err
}

type fakeMinutes struct {
	rec        *recorder
	err        error
	transcript string
	guidelines string
}

func (f *fakeMinutes) Generate(_ context.Context, transcript, guidelines string) (minutes.Result, error) {
	f.rec.steps = append(f.rec.steps, "minutes")
	f.transcript = transcript
	f.guidelines = guidelines
	if f.err != nil {
		return minutes.Result{}, f.err
	}
	return minutes.Result{Transcript: transcript, Summary: "要約", MinutesBody: "本文", Parsed: true}, nil
}

type fakeFetcher struct {
	rec     *recorder
	objects map[string]storage.Object
}

func (f *fakeFetcher) Fetch(_ context.Context, key string) (storage.Object, error) {
	f.rec.steps = append(f.rec.steps, "fetch:"+key)
	obj, ok := f.objects[key]
	if !ok {
		return storage.Object{}, errors.New("no such key")
	}
	return obj, nil
}

type fixture struct {
	rec         *recorder
	transcriber *fakeTranscriber
	guidelines  *fakeGuidelines
	minutes     *fakeMinutes
	fetcher     *fakeFetcher
}

func newFixture() *fixture {
	rec := &recorder{}
	return &fixture{
		rec:         rec,
		transcriber: &fakeTranscriber{rec: rec, text: "音声の文字起こし"},
		guidelines:  &fakeGuidelines{rec: rec, result: "- です・ます調"},
		minutes:     &fakeMinutes{rec: rec},
		fetcher: &fakeFetcher{rec: rec, objects: map[string]storage.Object{
			"uploads/1_a.mp3": {Key: "uploads/1_a.mp3", Data: []byte("a"), ContentType: "audio/mpeg"},
		}},
	}
}

func (f *fixture) service(withStorage bool) *Service {
	deps := Dependencies{
		Transcriber: f.transcriber,
		Extractor:   &fakeExtractor{rec: f.rec, corpus: "過去の議事録"},
		Guidelines:  f.guidelines,
		Minutes:     f.minutes,
		UsedAI:      true,
	}
	if withStorage {
		deps.Storage = f.fetcher
	}
	return New(deps)
}

func ptr(s string) *string { return &s }

func TestDecidePriority(t *testing.T) {
	audio := []transcription.Audio{{Name: "a.mp3", Data: []byte("a")}}

	in, err := Submission{Audio: audio, StorageKeys: []string{"uploads/k"}, Transcript: ptr("text")}.Decide()
	if err != nil || in.Mode != ModeAudio || len(in.StorageKeys) != 0 || in.Transcript != "" {
		t.Fatalf("expected audio mode, got %+v, %v", in, err)
	}

	in, err = Submission{StorageKeys: []string{" ", "uploads/k "}, Transcript: ptr("text")}.Decide()
	if err != nil || in.Mode != ModeStorageKeys {
		t.Fatalf("expected storage mode, got %+v, %v", in, err)
	}
	if len(in.StorageKeys) != 1 || in.StorageKeys[0] != "uploads/k" {
		t.Fatalf("unexpected keys: %v", in.StorageKeys)
	}

	in, err = Submission{StorageKeys: []string{""}, Transcript: ptr("text")}.Decide()
	if err != nil || in.Mode != ModeTranscript || in.Transcript != "text" {
		t.Fatalf("expected transcript mode, got %+v, %v", in, err)
	}
}

func TestDecideRejectsMissingOrBlankInput(t *testing.T) {
	if _, err := (Submission{}).Decide(); !errors.Is(err, ErrNoInput) {
		t.Fatalf("expected ErrNoInput, got %v", err)
	}
	for _, blank := range []string{"", "   ", "\n\t"} {
		if _, err := (Submission{Transcript: ptr(blank)}).Decide(); !errors.Is(err, ErrEmptyTranscript) {
			t.Fatalf("Decide(%q) error = %v", blank, err)
		}
	}
}

func TestProcessRunsStagesInOrder(t *testing.T) {
	f := newFixture()
	res, err := f.service(false).Process(context.Background(), Input{
		Mode:  ModeAudio,
		Audio: []transcription.Audio{{Name: "a.mp3", Data: []byte("a")}},
	})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if got := strings.Join(f.rec.steps, ","); got != "transcribe,extract,guidelines,minutes" {
		t.Fatalf("unexpected stage order: %s", got)
	}
	if f.guidelines.corpus != "過去の議事録" {
		t.Fatalf("unexpected corpus: %q", f.guidelines.corpus)
	}
	if f.minutes.transcript != "音声の文字起こし" || f.minutes.guidelines != "- です・ます調" {
		t.Fatalf("unexpected synthesis input: %+v", f.minutes)
	}
	if res.Transcript != "音声の文字起こし" || res.Summary != "要約" || res.Minutes != "本文" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.StyleGuidelines != "- です・ます調" || !res.UsedAI || !res.MinutesParsed {
		t.Fatalf("unexpected result flags: %+v", res)
	}
	if res.Timings.Total < res.Timings.Synthesis {
		t.Fatalf("total timing smaller than a stage: %+v", res.Timings)
	}
}

func TestProcessTranscriptModeSkipsTranscription(t *testing.T) {
	f := newFixture()
	res, err := f.service(false).Process(context.Background(), Input{Mode: ModeTranscript, Transcript: "貼り付けたテキスト"})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if got := strings.Join(f.rec.steps, ","); got != "extract,guidelines,minutes" {
		t.Fatalf("unexpected stages: %s", got)
	}
	if res.Transcript != "貼り付けたテキスト" {
		t.Fatalf("unexpected transcript: %q", res.Transcript)
	}
}

func TestProcessBlankTranscriptMakesNoCalls(t *testing.T) {
	f := newFixture()
	_, err := f.service(true).Process(context.Background(), Input{Mode: ModeTranscript, Transcript: "  \n "})
	if !errors.Is(err, ErrEmptyTranscript) {
		t.Fatalf("expected ErrEmptyTranscript, got %v", err)
	}
	if len(f.rec.steps) != 0 {
		t.Fatalf("expected no stage calls, got %v", f.rec.steps)
	}

	if _, err := f.service(true).Process(context.Background(), Input{}); !errors.Is(err, ErrNoInput) {
		t.Fatalf("expected ErrNoInput, got %v", err)
	}
}

func TestProcessStorageKeysFetchesObjects(t *testing.T) {
	f := newFixture()
	_, err := f.service(true).Process(context.Background(), Input{Mode: ModeStorageKeys, StorageKeys: []string{"uploads/1_a.mp3"}})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if f.rec.steps[0] != "fetch:uploads/1_a.mp3" || f.rec.steps[1] != "transcribe" {
		t.Fatalf("unexpected stages: %v", f.rec.steps)
	}
	if len(f.transcriber.files) != 1 || f.transcriber.files[0].MIMEType != "audio/mpeg" {
		t.Fatalf("unexpected audio handed to transcriber: %+v", f.transcriber.files)
	}
}

func TestProcessStorageKeysWithoutStorage(t *testing.T) {
	f := newFixture()
	_, err := f.service(false).Process(context.Background(), Input{Mode: ModeStorageKeys, StorageKeys: []string{"uploads/1_a.mp3"}})
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
	if len(f.rec.steps) != 0 {
		t.Fatalf("expected no stage calls, got %v", f.rec.steps)
	}
}

func TestProcessPropagatesFetchAndUpstreamErrors(t *testing.T) {
	f := newFixture()
	_, err := f.service(true).Process(context.Background(), Input{Mode: ModeStorageKeys, StorageKeys: []string{"uploads/missing"}})
	if err == nil || !strings.Contains(err.Error(), "no such key") {
		t.Fatalf("unexpected fetch error: %v", err)
	}

	f = newFixture()
	f.minutes.err = errors.New("upstream 500")
	_, err = f.service(false).Process(context.Background(), Input{Mode: ModeTranscript, Transcript: "t"})
	if err == nil || !strings.Contains(err.Error(), "upstream 500") {
		t.Fatalf("unexpected synthesis error: %v", err)
	}
}

func TestProcessWithoutAIReturnsMockTriple(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := New(Dependencies{
		Transcriber: transcription.New(nil, nil, time.Second, logger, transcription.Hooks{}),
		Extractor:   stylecorpus.New(logger, nil),
		Guidelines:  styleguide.New(nil, "", time.Second),
		Minutes:     minutes.New(nil, "", "", time.Second),
	})

	res, err := svc.Process(context.Background(), Input{
		Mode:  ModeAudio,
		Audio: []transcription.Audio{{Name: "a.mp3", Data: []byte("a")}},
		Style: []stylecorpus.Document{{Name: "old.txt", Content: []byte(strings.Repeat("議事録", 100))}},
	})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	mock := minutes.MockResult()
	if res.Transcript != mock.Transcript || res.Summary != mock.Summary || res.Minutes != mock.MinutesBody {
		t.Fatalf("expected mock triple, got %+v", res)
	}
	if res.UsedAI || res.StyleGuidelines != "" {
		t.Fatalf("unexpected mock flags: %+v", res)
	}
}
