package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"minutes-studio/internal/minutes"
	"minutes-studio/internal/storage"
	"minutes-studio/internal/stylecorpus"
	"minutes-studio/internal/transcription"
)

type Transcriber interface {
	Transcribe(ctx context.Context, files []transcription.Audio) (string, error)
}

type CorpusExtractor interface {
	Extract(docs []stylecorpus.Document) string
}

type GuidelineBuilder interface {
	Build(ctx context.Context, corpus string) (string, error)
}

type MinutesGenerator interface {
	Generate(ctx context.Context, transcript, guidelines string) (minutes.Result, error)
}

type ObjectFetcher interface {
	Fetch(ctx context.Context, key string) (storage.Object, error)
}

type Dependencies struct {
	Transcriber Transcriber
	Extractor   CorpusExtractor
	Guidelines  GuidelineBuilder
	Minutes     MinutesGenerator
	// Storage is nil when object storage is not configured.
	Storage ObjectFetcher
	// UsedAI reports whether the AI-backed components run live.
	UsedAI bool
}

type Service struct {
	transcriber Transcriber
	extractor   CorpusExtractor
	guidelines  GuidelineBuilder
	minutes     MinutesGenerator
	storage     ObjectFetcher
	usedAI      bool
}

type Timings struct {
	Transcription time.Duration
	Style         time.Duration
	Synthesis     time.Duration
	Total         time.Duration
}

type Result struct {
	// Transcript is the text the minutes were synthesized from. In mock mode
	// it is the fixed mock transcript.
	Transcript      string
	Summary         string
	Minutes         string
	StyleGuidelines string
	UsedAI          bool
	// MinutesParsed is false when the structured response was unusable and
	// placeholders were returned.
	MinutesParsed bool
	Timings       Timings
}

func New(deps Dependencies) *Service {
	if deps.Transcriber == nil || deps.Extractor == nil || deps.Guidelines == nil || deps.Minutes == nil {
		panic("pipeline: transcriber, extractor, guidelines and minutes are required")
	}
	return &Service{
		transcriber: deps.Transcriber,
		extractor:   deps.Extractor,
		guidelines:  deps.Guidelines,
		minutes:     deps.Minutes,
		storage:     deps.Storage,
		usedAI:      deps.UsedAI,
	}
}

// StorageEnabled reports whether storage-key input can be served.
func (s *Service) StorageEnabled() bool {
	return s.storage != nil
}

// Process runs transcription, style extraction, guideline synthesis and
// minutes synthesis strictly in that order.
func (s *Service) Process(ctx context.Context, in Input) (Result, error) {
	started := time.Now()
	result := Result{UsedAI: s.usedAI}

	transcriptionStarted := time.Now()
	transcript, err := s.transcript(ctx, in)
	if err != nil {
		return Result{}, err
	}
	result.Timings.Transcription = time.Since(transcriptionStarted)

	styleStarted := time.Now()
	corpus := s.extractor.Extract(in.Style)
	guidelines, err := s.guidelines.Build(ctx, corpus)
	if err != nil {
		return Result{}, err
	}
	result.StyleGuidelines = guidelines
	result.Timings.Style = time.Since(styleStarted)

	synthesisStarted := time.Now()
	mr, err := s.minutes.Generate(ctx, transcript, guidelines)
	if err != nil {
		return Result{}, err
	}
	result.Transcript = mr.Transcript
	result.Summary = mr.Summary
	result.Minutes = mr.MinutesBody
	result.MinutesParsed = mr.Parsed
	result.Timings.Synthesis = time.Since(synthesisStarted)

	result.Timings.Total = time.Since(started)
	return result, nil
}

func (s *Service) transcript(ctx context.Context, in Input) (string, error) {
	switch in.Mode {
	case ModeAudio:
		return s.transcriber.Transcribe(ctx, in.Audio)
	case ModeStorageKeys:
		audio, err := s.fetchAudio(ctx, in.StorageKeys)
		if err != nil {
			return "", err
		}
		return s.transcriber.Transcribe(ctx, audio)
	case ModeTranscript:
		if strings.TrimSpace(in.Transcript) == "" {
			return "", ErrEmptyTranscript
		}
		return in.Transcript, nil
	default:
		return "", ErrNoInput
	}
}

func (s *Service) fetchAudio(ctx context.Context, keys []string) ([]transcription.Audio, error) {
	if s.storage == nil {
		return nil, ErrStorageUnavailable
	}
	audio := make([]transcription.Audio, 0, len(keys))
	for _, key := range keys {
		obj, err := s.storage.Fetch(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("fetch uploaded audio: %w", err)
		}
		audio = append(audio, transcription.Audio{Name: key, Data: obj.Data, MIMEType: obj.ContentType})
	}
	return audio, nil
}
