package pipeline

import (
	"errors"
	"strings"

	"minutes-studio/internal/stylecorpus"
	"minutes-studio/internal/transcription"
)

// Client input errors. The HTTP layer maps them to 400.
var (
	ErrNoInput            = errors.New("音声ファイルまたは文字起こしテキストを指定してください")
	ErrEmptyTranscript    = errors.New("文字起こしテキストが空です")
	ErrStorageUnavailable = errors.New("ストレージが設定されていないため s3Keys は使用できません")
)

type Mode int

const (
	ModeNone Mode = iota
	ModeAudio
	ModeStorageKeys
	ModeTranscript
)

func (m Mode) String() string {
	switch m {
	case ModeAudio:
		return "audio"
	case ModeStorageKeys:
		return "storage_keys"
	case ModeTranscript:
		return "transcript"
	default:
		return "none"
	}
}

// Input is the decided form of one request. Only the fields belonging to
// Mode are populated.
type Input struct {
	Mode        Mode
	Audio       []transcription.Audio
	StorageKeys []string
	Transcript  string
	Style       []stylecorpus.Document
}

// Submission is everything a request body carried, before the mode is
// decided. Transcript is nil when the field was absent.
type Submission struct {
	Audio       []transcription.Audio
	StorageKeys []string
	Transcript  *string
	Style       []stylecorpus.Document
}

// Decide picks exactly one mode. Direct audio files win over storage keys,
// and storage keys win over transcript text.
func (s Submission) Decide() (Input, error) {
	in := Input{Style: s.Style}

	if len(s.Audio) > 0 {
		in.Mode = ModeAudio
		in.Audio = s.Audio
		return in, nil
	}

	keys := cleanKeys(s.StorageKeys)
	if len(keys) > 0 {
		in.Mode = ModeStorageKeys
		in.StorageKeys = keys
		return in, nil
	}

	if s.Transcript == nil {
		return Input{}, ErrNoInput
	}
	if strings.TrimSpace(*s.Transcript) == "" {
		return Input{}, ErrEmptyTranscript
	}
	in.Mode = ModeTranscript
	in.Transcript = *s.Transcript
	return in, nil
}

func cleanKeys(keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}
